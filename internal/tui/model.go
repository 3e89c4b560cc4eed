// Package tui provides the Bubble Tea screening interface.
package tui

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/landolt/internal/distance"
	"github.com/verte-zerg/landolt/internal/model"
	"github.com/verte-zerg/landolt/internal/session"
	"github.com/verte-zerg/landolt/internal/stats"
)

type phase int

const (
	phaseDistance phase = iota
	phaseCountdown
	phaseTest
	phaseReport
)

const defaultCountdown = 5 * time.Second

// Controller drives a screening session.
type Controller interface {
	Start(ctx context.Context) error
	TogglePause()
	Restart(ctx context.Context) error
	Abort() error
}

// DistanceMonitor keeps the distance channel running until closed.
type DistanceMonitor interface {
	Run(ctx context.Context) error
	Close() error
}

// Options configures the screening UI. A nil Distance skips the distance check.
type Options struct {
	Session      Controller
	Transcriber  *KeyTranscriber
	Distance     DistanceMonitor
	TargetFrames int
	Countdown    time.Duration
	Logger       *slog.Logger
}

type countdownMsg struct{}

type distanceDoneMsg struct{ err error }

type sessionErrMsg struct{ err error }

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	glyphStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	correctStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	wrongStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	heardStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Italic(true)
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
)

// Model implements the Bubble Tea screening UI.
type Model struct {
	ctx         context.Context
	session     Controller
	transcriber *KeyTranscriber
	distance    DistanceMonitor
	gate        *distance.Gate
	countdown   int
	logger      *slog.Logger

	width  int
	height int

	phase     phase
	remaining int

	gateProgress   distance.Progress
	distanceStatus string
	distanceActive bool
	lastDistance   float64
	hasDistance    bool

	snap    session.Snapshot
	version uint64
	report  *model.Report
	errMsg  string

	spinner   spinner.Model
	inputMode bool
	input     textinput.Model
}

// NewModel constructs a screening UI model.
func NewModel(ctx context.Context, opts Options) *Model {
	if ctx == nil {
		ctx = context.Background()
	}
	countdown := opts.Countdown
	if countdown <= 0 {
		countdown = defaultCountdown
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tr := opts.Transcriber
	if tr == nil {
		tr = &KeyTranscriber{}
	}
	input := textinput.New()
	input.Prompt = "Say: "
	input.Placeholder = "left, right, up, down"
	input.CharLimit = 64
	input.KeyMap.NextSuggestion = key.NewBinding(key.WithDisabled())
	input.KeyMap.PrevSuggestion = key.NewBinding(key.WithDisabled())

	m := &Model{
		ctx:         ctx,
		session:     opts.Session,
		transcriber: tr,
		distance:    opts.Distance,
		gate:        distance.NewGate(opts.TargetFrames),
		countdown:   int(countdown / time.Second),
		logger:      logger,
		spinner:     spinner.New(spinner.WithSpinner(spinner.Dot)),
		input:       input,
	}
	if m.distance == nil {
		m.phase = phaseTest
	}
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	if m.phase == phaseTest {
		return tea.Batch(m.spinner.Tick, m.startCmd())
	}
	return tea.Batch(m.spinner.Tick, m.runDistanceCmd())
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = maxInt(10, m.width-lipgloss.Width(m.input.Prompt)-2)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case snapshotMsg:
		if msg.snap.Version <= m.version {
			return m, nil
		}
		m.version = msg.snap.Version
		m.snap = msg.snap
		if m.phase == phaseReport && msg.snap.Active {
			m.phase = phaseTest
			m.report = nil
		}
		return m, nil
	case finishedMsg:
		r := msg.report
		m.report = &r
		m.phase = phaseReport
		m.inputMode = false
		m.input.Blur()
		return m, nil
	case readingMsg:
		return m.handleReading(msg.reading)
	case distanceStatusMsg:
		m.distanceStatus = msg.text
		return m, nil
	case distanceDoneMsg:
		m.distanceActive = false
		if msg.err != nil {
			m.logger.Warn("distance channel stopped", "err", msg.err)
			if m.phase == phaseDistance {
				m.errMsg = msg.err.Error()
			}
		}
		return m, nil
	case countdownMsg:
		if m.phase != phaseCountdown {
			return m, nil
		}
		m.remaining--
		if m.remaining > 0 {
			return m, countdownTick()
		}
		m.phase = phaseTest
		return m, m.startCmd()
	case sessionErrMsg:
		m.errMsg = msg.err.Error()
		return m, nil
	}
	return m, nil
}

func (m *Model) handleReading(r distance.Reading) (tea.Model, tea.Cmd) {
	if d, ok := r.Distance(); ok && r.Success {
		m.lastDistance, m.hasDistance = d, true
	}
	if m.phase != phaseDistance {
		return m, nil
	}
	m.gateProgress = m.gate.Observe(r)
	if !m.gateProgress.Reached {
		return m, nil
	}
	return m, m.beginCountdown()
}

func (m *Model) beginCountdown() tea.Cmd {
	m.errMsg = ""
	m.phase = phaseCountdown
	m.remaining = m.countdown
	if m.remaining <= 0 {
		m.phase = phaseTest
		return m.startCmd()
	}
	return countdownTick()
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, m.quitCmd()
	}
	if m.inputMode {
		return m.updateInput(msg)
	}
	pressed := msg.String()
	if pressed == "q" {
		return m, m.quitCmd()
	}
	switch m.phase {
	case phaseDistance:
		switch pressed {
		case "s":
			return m, m.beginCountdown()
		case "r":
			if m.distanceActive {
				return m, nil
			}
			m.errMsg = ""
			m.gate.Reset()
			m.gateProgress = distance.Progress{}
			return m, m.runDistanceCmd()
		}
	case phaseCountdown:
		if pressed == "s" {
			m.phase = phaseTest
			return m, m.startCmd()
		}
	case phaseTest:
		switch pressed {
		case " ", "p":
			return m, m.toggleCmd()
		case "r":
			return m, m.restartCmd()
		case "i", "/":
			m.inputMode = true
			m.input.SetValue("")
			return m, m.input.Focus()
		}
		if word, ok := keyWord(msg); ok {
			return m, m.sayCmd(word)
		}
	case phaseReport:
		if pressed == "r" {
			m.phase = phaseTest
			m.report = nil
			return m, m.restartCmd()
		}
	}
	return m, nil
}

func (m *Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		text := m.input.Value()
		m.inputMode = false
		m.input.Blur()
		m.input.SetValue("")
		return m, m.sayCmd(text)
	case tea.KeyEsc:
		m.inputMode = false
		m.input.Blur()
		m.input.SetValue("")
		return m, nil
	case tea.KeyRunes:
		if len(msg.Runes) > 1 {
			m.insertRunes(msg.Runes)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// insertRunes types a burst of runes at the cursor. Bursts such as "left"
// or "down" would otherwise match the input's movement bindings.
func (m *Model) insertRunes(r []rune) {
	value := []rune(m.input.Value())
	pos := min(m.input.Position(), len(value))
	next := make([]rune, 0, len(value)+len(r))
	next = append(next, value[:pos]...)
	next = append(next, r...)
	next = append(next, value[pos:]...)
	m.input.SetValue(string(next))
	m.input.SetCursor(pos + len(r))
}

// Session methods present synchronously through program.Send, so they
// run as commands and never inside Update.

func (m *Model) startCmd() tea.Cmd {
	ctrl, ctx := m.session, m.ctx
	return func() tea.Msg {
		if err := ctrl.Start(ctx); err != nil {
			return sessionErrMsg{err: err}
		}
		return nil
	}
}

func (m *Model) restartCmd() tea.Cmd {
	ctrl, ctx, logger := m.session, m.ctx, m.logger
	return func() tea.Msg {
		if err := ctrl.Restart(ctx); err != nil {
			logger.Warn("restart closed companions with errors", "err", err)
		}
		return nil
	}
}

func (m *Model) toggleCmd() tea.Cmd {
	ctrl := m.session
	return func() tea.Msg {
		ctrl.TogglePause()
		return nil
	}
}

func (m *Model) sayCmd(text string) tea.Cmd {
	tr := m.transcriber
	return func() tea.Msg {
		tr.Say(text)
		return nil
	}
}

func (m *Model) quitCmd() tea.Cmd {
	ctrl, dist, logger := m.session, m.distance, m.logger
	return func() tea.Msg {
		if err := ctrl.Abort(); err != nil {
			logger.Warn("abort closed companions with errors", "err", err)
		}
		if dist != nil {
			if err := dist.Close(); err != nil {
				logger.Warn("distance channel close failed", "err", err)
			}
		}
		return tea.Quit()
	}
}

func (m *Model) runDistanceCmd() tea.Cmd {
	dist, ctx := m.distance, m.ctx
	if dist == nil {
		return nil
	}
	m.distanceActive = true
	return func() tea.Msg {
		return distanceDoneMsg{err: dist.Run(ctx)}
	}
}

func countdownTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return countdownMsg{} })
}

// View implements tea.Model.
func (m *Model) View() string {
	var body string
	switch m.phase {
	case phaseDistance:
		body = m.renderDistance()
	case phaseCountdown:
		body = titleStyle.Render(fmt.Sprintf("Distance reached. Starting in %d", m.remaining))
	case phaseTest:
		body = m.renderTest()
	case phaseReport:
		body = m.renderReport()
	}
	footer := m.renderFooter()
	if m.width == 0 || m.height == 0 {
		return body + "\n\n" + footer
	}
	footerHeight := lipgloss.Height(footer)
	bodyHeight := maxInt(1, m.height-footerHeight)
	placed := lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Center, body)
	return placed + "\n" + fitLines(footer, m.width, footerHeight)
}

func (m *Model) renderDistance() string {
	lines := []string{titleStyle.Render("Distance check")}
	msg := m.gateProgress.Message
	if msg == "" {
		msg = m.distanceStatus
	}
	if msg == "" {
		msg = m.spinner.View() + " Connecting to distance service..."
	}
	lines = append(lines, statusStyle.Render(wrapText(msg, m.textWidth())))
	required := m.gate.Required()
	lines = append(lines, renderFrameBar(m.gateProgress.Consecutive, required))
	if m.hasDistance {
		lines = append(lines, pendingStyle.Render(fmt.Sprintf("Current distance: %.2fm (target %.1fm)", m.lastDistance, distance.TargetMeters)))
	}
	if m.errMsg != "" {
		lines = append(lines, errorStyle.Render(wrapText(m.errMsg, m.textWidth())))
	}
	return strings.Join(lines, "\n")
}

func renderFrameBar(done, required int) string {
	if required <= 0 {
		return ""
	}
	if done > required {
		done = required
	}
	bar := correctStyle.Render(strings.Repeat("#", done)) + pendingStyle.Render(strings.Repeat(".", required-done))
	return fmt.Sprintf("[%s] %d/%d", bar, done, required)
}

func (m *Model) renderTest() string {
	snap := m.snap
	lines := []string{titleStyle.Render(m.renderHeader())}
	if snap.Stage == session.StageTesting && snap.Current < len(snap.Row) {
		limit := maxInt(minGlyphCells, m.height-10)
		if m.width > 0 {
			limit = minInt(limit, m.width/2-2)
		}
		n := glyphCells(snap.SizePixels, limit)
		lines = append(lines, "", glyphStyle.Render(strings.Join(renderGlyph(snap.Row[snap.Current], n), "\n")), "")
		lines = append(lines, renderMarkers(snap.Responses, snap.Current))
	} else if snap.Active && snap.Link != session.LinkReady {
		lines = append(lines, "", m.spinner.View()+" Waiting for the voice service", "")
	}
	if status := m.statusLine(); status != "" {
		lines = append(lines, statusStyle.Render(wrapText(status, m.textWidth())))
	}
	if snap.LastHeard != "" {
		lines = append(lines, heardStyle.Render(fmt.Sprintf("Heard: %q", snap.LastHeard)))
	}
	if m.errMsg != "" && !snap.Blocked {
		lines = append(lines, errorStyle.Render(wrapText(m.errMsg, m.textWidth())))
	}
	if m.inputMode {
		lines = append(lines, "", m.input.View())
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderHeader() string {
	snap := m.snap
	parts := []string{fmt.Sprintf("Level %s", snap.Level.Notation)}
	switch snap.Stage {
	case session.StageInitialPrep:
		if snap.Link == session.LinkReady {
			parts = append(parts, fmt.Sprintf("Get ready %ds", snap.TimeRemaining))
		} else {
			parts = append(parts, "Preparing")
		}
	case session.StageTesting:
		if len(snap.Row) > 0 {
			parts = append(parts, fmt.Sprintf("Symbol %d/%d", minInt(snap.Current+1, len(snap.Row)), len(snap.Row)))
		}
		parts = append(parts, fmt.Sprintf("%ds", snap.TimeRemaining))
		if snap.Paused {
			parts = append(parts, "PAUSED")
		}
	case session.StageEvaluating:
		parts = append(parts, "Evaluating")
	case session.StageTransition:
		parts = append(parts, "Next level")
	case session.StageCompleted:
		parts = append(parts, "Done")
	}
	return strings.Join(parts, "  ")
}

func (m *Model) statusLine() string {
	if m.snap.Status != "" {
		return m.snap.Status
	}
	if m.snap.Stage == session.StageTesting && !m.snap.Paused {
		return "Say the direction of the gap."
	}
	return ""
}

func renderMarkers(responses []model.Outcome, current int) string {
	parts := make([]string, len(responses))
	for i, o := range responses {
		switch {
		case o == model.Correct:
			parts[i] = correctStyle.Render("+")
		case o == model.Incorrect:
			parts[i] = wrongStyle.Render("x")
		case i == current:
			parts[i] = titleStyle.Render("o")
		default:
			parts[i] = pendingStyle.Render(".")
		}
	}
	return strings.Join(parts, " ")
}

func (m *Model) renderReport() string {
	if m.report == nil {
		return ""
	}
	var buf bytes.Buffer
	if err := stats.RenderReport(&buf, *m.report); err != nil {
		return errorStyle.Render(fmt.Sprintf("Failed to render report: %v", err))
	}
	return titleStyle.Render("Test complete") + "\n\n" + strings.TrimRight(buf.String(), "\n")
}

func (m *Model) renderFooter() string {
	var help string
	switch {
	case m.inputMode:
		help = "enter: send  esc: cancel"
	case m.phase == phaseDistance:
		help = "s: skip check  r: retry  q: quit"
	case m.phase == phaseCountdown:
		help = "s: start now  q: quit"
	case m.phase == phaseTest:
		help = "arrows/hjkl: answer  i: type  space/p: pause  r: restart  q: quit"
	case m.phase == phaseReport:
		help = "r: test again  q: quit"
	}
	if m.phase != phaseDistance && m.hasDistance {
		help += fmt.Sprintf("  distance %.2fm", m.lastDistance)
	}
	return footerStyle.Render(help)
}

func (m *Model) textWidth() int {
	if m.width <= 0 {
		return 60
	}
	return maxInt(10, m.width*7/10)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
