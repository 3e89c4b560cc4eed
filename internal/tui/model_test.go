package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/landolt/internal/distance"
	"github.com/verte-zerg/landolt/internal/model"
	"github.com/verte-zerg/landolt/internal/session"
)

type fakeController struct {
	mu       sync.Mutex
	starts   int
	toggles  int
	restarts int
	aborts   int
	startErr error
}

func (f *fakeController) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeController) TogglePause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
}

func (f *fakeController) Restart(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	return nil
}

func (f *fakeController) Abort() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
	return nil
}

type fakeMonitor struct {
	runs   int
	closed int
	err    error
}

func (f *fakeMonitor) Run(context.Context) error {
	f.runs++
	return f.err
}

func (f *fakeMonitor) Close() error {
	f.closed++
	return nil
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func run(cmd tea.Cmd) tea.Msg {
	if cmd == nil {
		return nil
	}
	return cmd()
}

func testingSnapshot(version uint64) session.Snapshot {
	return session.Snapshot{
		Version:       version,
		Active:        true,
		Stage:         session.StageTesting,
		Level:         model.Catalog[3],
		Row:           model.TestRow{model.Left, model.Up, model.Right},
		Responses:     []model.Outcome{model.Correct, model.Pending, model.Pending},
		Current:       1,
		TimeRemaining: 9,
		Link:          session.LinkReady,
		SizePixels:    30,
	}
}

func TestSkipDistanceStartsSessionImmediately(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(context.Background(), Options{Session: ctrl})
	if m.phase != phaseTest {
		t.Fatalf("expected test phase, got %v", m.phase)
	}
	run(m.startCmd())
	if ctrl.starts != 1 {
		t.Fatalf("expected one start, got %d", ctrl.starts)
	}
}

func TestDistanceGateLeadsToCountdownAndStart(t *testing.T) {
	ctrl := &fakeController{}
	mon := &fakeMonitor{}
	m := NewModel(context.Background(), Options{Session: ctrl, Distance: mon, TargetFrames: 3, Countdown: 2 * time.Second})
	if m.phase != phaseDistance {
		t.Fatalf("expected distance phase")
	}
	at := distance.Reading{Success: true, AtTargetDistance: true, Faces: []distance.Face{{Distance: 4.02}}}
	for i := 0; i < 2; i++ {
		m.Update(readingMsg{reading: at})
	}
	if m.phase != phaseDistance {
		t.Fatalf("expected gate to need 3 frames")
	}
	if !strings.Contains(m.View(), "2/3") {
		t.Fatalf("expected frame progress in view: %s", m.View())
	}
	m.Update(readingMsg{reading: at})
	if m.phase != phaseCountdown || m.remaining != 2 {
		t.Fatalf("expected countdown from 2, got phase %v remaining %d", m.phase, m.remaining)
	}
	m.Update(countdownMsg{})
	if m.phase != phaseCountdown {
		t.Fatalf("expected countdown to continue")
	}
	_, cmd := m.Update(countdownMsg{})
	if m.phase != phaseTest {
		t.Fatalf("expected test phase after countdown")
	}
	run(cmd)
	if ctrl.starts != 1 {
		t.Fatalf("expected session start, got %d", ctrl.starts)
	}

	// Later readings only update the footer.
	m.Update(readingMsg{reading: distance.Reading{Success: true, Faces: []distance.Face{{Distance: 4.6}}}})
	if m.phase != phaseTest || !strings.Contains(m.renderFooter(), "4.60m") {
		t.Fatalf("expected footer distance, got %s", m.renderFooter())
	}
}

func TestDistanceSkipKey(t *testing.T) {
	m := NewModel(context.Background(), Options{Session: &fakeController{}, Distance: &fakeMonitor{}})
	m.Update(runes("s"))
	if m.phase != phaseCountdown {
		t.Fatalf("expected countdown after skip, got %v", m.phase)
	}
}

func TestDistanceRetryWaitsForRunToEnd(t *testing.T) {
	mon := &fakeMonitor{err: distance.ErrConnectionLost}
	m := NewModel(context.Background(), Options{Session: &fakeController{}, Distance: mon})
	msg := run(m.runDistanceCmd())
	if _, cmd := m.Update(runes("r")); cmd != nil {
		t.Fatalf("expected retry to wait while the monitor runs")
	}
	m.Update(msg)
	if !strings.Contains(m.View(), "connection lost") {
		t.Fatalf("expected error in view: %s", m.View())
	}
	_, cmd := m.Update(runes("r"))
	run(cmd)
	if mon.runs != 2 {
		t.Fatalf("expected a second run, got %d", mon.runs)
	}
}

func TestSnapshotsDropOlderVersions(t *testing.T) {
	m := NewModel(context.Background(), Options{Session: &fakeController{}})
	m.Update(snapshotMsg{snap: testingSnapshot(5)})
	stale := testingSnapshot(4)
	stale.TimeRemaining = 1
	m.Update(snapshotMsg{snap: stale})
	if m.snap.TimeRemaining != 9 || m.version != 5 {
		t.Fatalf("expected stale snapshot to be dropped, got %+v", m.snap)
	}
	view := m.View()
	if !containsAll(view, []string{"Level 6/6", "Symbol 2/3", "9s", "Say the direction"}) {
		t.Fatalf("unexpected view: %s", view)
	}
}

func TestPausedAndHeardRender(t *testing.T) {
	m := NewModel(context.Background(), Options{Session: &fakeController{}})
	snap := testingSnapshot(1)
	snap.Paused = true
	snap.Status = "Paused"
	snap.LastHeard = "lft"
	m.Update(snapshotMsg{snap: snap})
	if !containsAll(m.View(), []string{"PAUSED", "Paused", `Heard: "lft"`}) {
		t.Fatalf("unexpected view: %s", m.View())
	}
}

func TestKeysDriveSession(t *testing.T) {
	ctrl := &fakeController{}
	tr := &KeyTranscriber{}
	var heard []string
	if err := tr.Start(context.Background(), func(text string) { heard = append(heard, text) }); err != nil {
		t.Fatalf("start: %v", err)
	}
	m := NewModel(context.Background(), Options{Session: ctrl, Transcriber: tr})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace})
	run(cmd)
	_, cmd = m.Update(runes("p"))
	run(cmd)
	if ctrl.toggles != 2 {
		t.Fatalf("expected two toggles, got %d", ctrl.toggles)
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	run(cmd)
	_, cmd = m.Update(runes("k"))
	run(cmd)

	m.Update(runes("i"))
	if !m.inputMode {
		t.Fatalf("expected input mode")
	}
	m.Update(runes("down"))
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	run(cmd)
	if m.inputMode {
		t.Fatalf("expected input mode to end")
	}
	if strings.Join(heard, ",") != "left,up,down" {
		t.Fatalf("unexpected transcripts: %q", heard)
	}

	_, cmd = m.Update(runes("r"))
	run(cmd)
	if ctrl.restarts != 1 {
		t.Fatalf("expected restart, got %d", ctrl.restarts)
	}
}

func TestInputKeepsDirectionWordBursts(t *testing.T) {
	tr := &KeyTranscriber{}
	var heard []string
	_ = tr.Start(context.Background(), func(text string) { heard = append(heard, text) })
	m := NewModel(context.Background(), Options{Session: &fakeController{}, Transcriber: tr})

	for _, word := range []string{"up", "down", "left", "right"} {
		m.Update(runes("i"))
		m.Update(runes(word))
		if got := m.input.Value(); got != word {
			t.Fatalf("expected input %q, got %q", word, got)
		}
		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		run(cmd)
	}
	if strings.Join(heard, ",") != "up,down,left,right" {
		t.Fatalf("unexpected transcripts: %q", heard)
	}
}

func TestInputBurstInsertsAtCursor(t *testing.T) {
	m := NewModel(context.Background(), Options{Session: &fakeController{}})
	m.Update(runes("i"))
	m.Update(runes("ht"))
	m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	m.Update(runes("rig"))
	if got := m.input.Value(); got != "right" {
		t.Fatalf("expected %q, got %q", "right", got)
	}
	if got := m.input.Position(); got != 3 {
		t.Fatalf("expected cursor after the burst, got %d", got)
	}
}

func TestInputEscapeCancels(t *testing.T) {
	tr := &KeyTranscriber{}
	var heard []string
	_ = tr.Start(context.Background(), func(text string) { heard = append(heard, text) })
	m := NewModel(context.Background(), Options{Session: &fakeController{}, Transcriber: tr})
	m.Update(runes("/"))
	m.Update(runes("up"))
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.inputMode || len(heard) != 0 {
		t.Fatalf("expected cancel without transcript, got %q", heard)
	}
}

func TestQuitAbortsAndClosesDistance(t *testing.T) {
	ctrl := &fakeController{}
	mon := &fakeMonitor{}
	m := NewModel(context.Background(), Options{Session: ctrl, Distance: mon})
	_, cmd := m.Update(runes("q"))
	if _, ok := run(cmd).(tea.QuitMsg); !ok {
		t.Fatalf("expected quit message")
	}
	if ctrl.aborts != 1 || mon.closed != 1 {
		t.Fatalf("expected abort and close, got %d %d", ctrl.aborts, mon.closed)
	}
}

func TestFinishedShowsReportAndRestarts(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(context.Background(), Options{Session: ctrl})
	lvl := model.Catalog[3]
	m.Update(finishedMsg{report: model.Report{
		ID:            "r1",
		FinalAcuity:   lvl,
		DecimalAcuity: lvl.Decimal(),
		History:       []model.AttemptRecord{{Level: lvl, Passed: true}, {Level: model.Catalog[1], Passed: false}},
	}})
	if m.phase != phaseReport {
		t.Fatalf("expected report phase")
	}
	if !containsAll(m.View(), []string{"Test complete", "Final acuity: 6/6", "Decimal acuity: 1.00", "Normal vision"}) {
		t.Fatalf("unexpected report view: %s", m.View())
	}
	_, cmd := m.Update(runes("r"))
	run(cmd)
	if m.phase != phaseTest || ctrl.restarts != 1 {
		t.Fatalf("expected restart into test phase")
	}
}

func TestStartErrorShownUnlessBlocked(t *testing.T) {
	m := NewModel(context.Background(), Options{Session: &fakeController{startErr: errors.New("boom")}})
	m.Update(run(m.startCmd()))
	if !strings.Contains(m.View(), "boom") {
		t.Fatalf("expected start error in view")
	}
	m.Update(snapshotMsg{snap: session.Snapshot{Version: 1, Blocked: true, Status: "Speech input is not available."}})
	view := m.View()
	if strings.Contains(view, "boom") || !strings.Contains(view, "Speech input is not available.") {
		t.Fatalf("expected blocked status only: %s", view)
	}
}

func TestRenderMarkers(t *testing.T) {
	out := renderMarkers([]model.Outcome{model.Correct, model.Incorrect, model.Pending, model.Pending}, 2)
	if !containsAll(out, []string{"+", "x", "o", "."}) {
		t.Fatalf("unexpected markers: %q", out)
	}
}

func containsAll(haystack string, needles []string) bool {
	for _, needle := range needles {
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}
