// Package session runs the screening state machine: preparation, per-symbol
// testing, row evaluation, level transitions and completion.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/verte-zerg/landolt/internal/generator"
	"github.com/verte-zerg/landolt/internal/model"
	"github.com/verte-zerg/landolt/internal/staircase"
	"github.com/verte-zerg/landolt/internal/voice"
)

// ErrNoTranscriber is returned by Start when no speech input is wired.
var ErrNoTranscriber = errors.New("speech input unavailable")

// Timing holds the fixed delays of the test flow.
type Timing struct {
	Prep          time.Duration
	Symbol        time.Duration
	Feedback      time.Duration
	Evaluate      time.Duration
	Transition    time.Duration
	Reconnect     time.Duration
	LastHeard     time.Duration
	MaxReconnects int
}

// DefaultTiming returns the clinical defaults.
func DefaultTiming() Timing {
	return Timing{
		Prep:          15 * time.Second,
		Symbol:        12 * time.Second,
		Feedback:      700 * time.Millisecond,
		Evaluate:      300 * time.Millisecond,
		Transition:    200 * time.Millisecond,
		Reconnect:     3 * time.Second,
		LastHeard:     1500 * time.Millisecond,
		MaxReconnects: 5,
	}
}

func (t Timing) withDefaults() Timing {
	def := DefaultTiming()
	if t.Prep <= 0 {
		t.Prep = def.Prep
	}
	if t.Symbol <= 0 {
		t.Symbol = def.Symbol
	}
	if t.Feedback <= 0 {
		t.Feedback = def.Feedback
	}
	if t.Evaluate <= 0 {
		t.Evaluate = def.Evaluate
	}
	if t.Transition <= 0 {
		t.Transition = def.Transition
	}
	if t.Reconnect <= 0 {
		t.Reconnect = def.Reconnect
	}
	if t.LastHeard <= 0 {
		t.LastHeard = def.LastHeard
	}
	if t.MaxReconnects <= 0 {
		t.MaxReconnects = def.MaxReconnects
	}
	return t
}

// Options configures a Session. Dial is required.
type Options struct {
	Tree        *staircase.Tree
	StartLevel  string
	RowLength   int
	Timing      Timing
	Calibration model.Calibration
	Dial        VoiceDialFunc
	Transcriber SpeechTranscriber
	Generator   RowGenerator
	Presenter   Presenter
	Recorder    ReportRecorder
	// Closers are companion channels closed on abort and restart.
	Closers []io.Closer
	Clock   Clock
	Logger  *slog.Logger
	// Spawn runs blocking work such as dialing. Defaults to a new goroutine.
	Spawn func(func())
}

// Session owns the authoritative test state. Every handler, whether driven
// by a timer, a voice message or the host, mutates it under mu and reads it
// fresh, so a callback never acts on state captured when it was registered.
type Session struct {
	tree        *staircase.Tree
	levels      []model.AcuityLevel
	startLevel  int
	rowLength   int
	timing      Timing
	calibration model.Calibration
	dial        VoiceDialFunc
	transcriber SpeechTranscriber
	gen         RowGenerator
	presenter   Presenter
	recorder    ReportRecorder
	closers     []io.Closer
	clock       Clock
	logger      *slog.Logger
	spawnFn     func(func())

	mu        sync.Mutex
	st        state
	version   uint64
	effects   []func()
	timers    [numTimers]Timer
	timerSeq  [numTimers]uint64
	link      VoiceLink
	linkID    uint64
	dialing   bool
	outbox    []voice.Outbound
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time
}

// New builds a Session at the start level. Nothing runs until Start.
func New(opts Options) (*Session, error) {
	if opts.Dial == nil {
		return nil, errors.New("session: voice dialer is required")
	}
	tree := opts.Tree
	if tree == nil {
		tree = staircase.Default()
	}
	levels := tree.Levels()
	notation := opts.StartLevel
	if notation == "" {
		notation = model.StartNotation
	}
	start := -1
	for i, lvl := range levels {
		if lvl.Notation == notation {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, fmt.Errorf("session: %w: %s", staircase.ErrUnknownLevel, notation)
	}
	rowLength := opts.RowLength
	if rowLength <= 0 {
		rowLength = 5
	}
	s := &Session{
		tree:        tree,
		levels:      levels,
		startLevel:  start,
		rowLength:   rowLength,
		timing:      opts.Timing.withDefaults(),
		calibration: opts.Calibration,
		dial:        opts.Dial,
		transcriber: opts.Transcriber,
		gen:         opts.Generator,
		presenter:   opts.Presenter,
		recorder:    opts.Recorder,
		closers:     opts.Closers,
		clock:       opts.Clock,
		logger:      opts.Logger,
		spawnFn:     opts.Spawn,
	}
	if s.gen == nil {
		s.gen = generator.New()
	}
	if s.presenter == nil {
		s.presenter = noopPresenter{}
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.spawnFn == nil {
		s.spawnFn = func(f func()) { go f() }
	}
	s.st.resetFlow(start)
	return s, nil
}

// do runs fn under the lock, then runs the effects it queued and presents
// the resulting snapshot. Effects never run with the lock held.
func (s *Session) do(fn func()) {
	s.mu.Lock()
	fn()
	s.version++
	snap := s.snapshotLocked()
	effects := s.effects
	s.effects = nil
	s.mu.Unlock()

	s.presenter.Present(snap)
	for _, e := range effects {
		e()
	}
}

func (s *Session) effect(f func()) {
	s.effects = append(s.effects, f)
}

func (s *Session) spawn(f func()) {
	s.effect(func() { s.spawnFn(f) })
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	lvl := s.levels[s.st.levelIndex]
	snap := Snapshot{
		Version:       s.version,
		Active:        s.st.active,
		Stage:         s.st.stage,
		LevelIndex:    s.st.levelIndex,
		Level:         lvl,
		Row:           append(model.TestRow(nil), s.st.row...),
		Responses:     append([]model.Outcome(nil), s.st.responses...),
		Current:       s.st.current,
		TimeRemaining: s.st.remaining,
		Paused:        s.st.paused,
		ForceFail:     s.st.forceFail,
		History:       append([]model.AttemptRecord(nil), s.st.history...),
		Link:          s.st.link,
		Status:        s.st.status,
		Blocked:       s.st.blocked,
		LastHeard:     s.st.lastHeard,
		SizePixels:    generator.OpticalSizePixels(lvl, s.calibration),
	}
	if s.st.final != nil {
		final := *s.st.final
		snap.Final = &final
	}
	return snap
}

// Start opens the voice channel and speech input. The prep countdown begins
// once the speech service reports ready. Starting a running session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	var err error
	s.do(func() {
		if s.st.active {
			return
		}
		if s.transcriber == nil {
			s.st.status = "Speech input is not available. The test cannot run."
			s.st.blocked = true
			err = ErrNoTranscriber
			return
		}
		s.startLocked(ctx)
	})
	return err
}

func (s *Session) startLocked(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.st.resetFlow(s.startLevel)
	s.st.active = true
	s.st.blocked = false
	s.st.reconnectTries = 0
	s.st.status = "Connecting to voice service..."
	s.startedAt = s.clock.Now()

	runCtx := s.ctx
	tr := s.transcriber
	s.effect(func() {
		if err := tr.Start(runCtx, s.forwardTranscript); err != nil {
			s.logger.Error("speech input failed to start", "err", err)
			s.do(func() {
				s.stopAllTimers()
				s.releaseLocked()
				s.st.status = fmt.Sprintf("Speech input failed: %v", err)
				s.st.blocked = true
			})
		}
	})
	s.connectLocked()
}

// Pause freezes the countdown. It is legal only while testing.
func (s *Session) Pause() bool {
	var ok bool
	s.do(func() { ok = s.pauseLocked() })
	return ok
}

// Resume continues from the remaining whole seconds.
func (s *Session) Resume() bool {
	var ok bool
	s.do(func() { ok = s.resumeLocked() })
	return ok
}

// TogglePause pauses a running row or resumes a paused one.
func (s *Session) TogglePause() {
	s.do(s.togglePauseLocked)
}

func (s *Session) togglePauseLocked() {
	if s.st.paused {
		s.resumeLocked()
		return
	}
	s.pauseLocked()
}

func (s *Session) pauseLocked() bool {
	if s.st.stage != StageTesting || s.st.paused {
		return false
	}
	s.st.paused = true
	s.st.status = "Paused"
	s.stopTimer(timerCountdown)
	if s.currentResolvedLocked() {
		s.stopTimer(timerStep)
	}
	return true
}

func (s *Session) resumeLocked() bool {
	if !s.st.paused {
		return false
	}
	s.st.paused = false
	s.st.status = ""
	if s.currentResolvedLocked() {
		s.schedule(timerStep, s.timing.Feedback, s.advanceLocked)
		return true
	}
	s.armCountdownLocked()
	return true
}

// Abort stops all timers, closes the voice channel and companion channels,
// and resets to initial-prep at the start level with empty history.
// Aborting an idle session is a no-op.
func (s *Session) Abort() error {
	var closeErr error
	s.do(func() {
		s.resetLocked()
		s.effect(func() { closeErr = s.closeCompanions() })
	})
	return closeErr
}

// Restart aborts and starts a fresh session.
func (s *Session) Restart(ctx context.Context) error {
	var closeErr error
	s.do(func() {
		s.resetLocked()
		s.effect(func() { closeErr = s.closeCompanions() })
		if s.transcriber == nil {
			s.st.status = "Speech input is not available. The test cannot run."
			s.st.blocked = true
			return
		}
		s.startLocked(ctx)
	})
	return closeErr
}

func (s *Session) resetLocked() {
	s.stopAllTimers()
	s.releaseLocked()
	s.st.resetFlow(s.startLevel)
	s.st.status = ""
	s.st.blocked = false
	s.st.reconnectTries = 0
	s.st.link = LinkIdle
}

// releaseLocked retires the voice link and speech input of the current run.
func (s *Session) releaseLocked() {
	s.linkID++
	s.dialing = false
	s.outbox = nil
	if link := s.link; link != nil {
		s.link = nil
		s.effect(func() {
			if err := link.Close(); err != nil {
				s.logger.Warn("voice channel close failed", "err", err)
			}
		})
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.st.active && s.transcriber != nil {
		s.effect(s.transcriber.Stop)
	}
	s.st.active = false
	if s.st.link != LinkLost {
		s.st.link = LinkIdle
	}
}

func (s *Session) closeCompanions() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Warn("companion channel close failed", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func seconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
