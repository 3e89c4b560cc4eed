package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/landolt/internal/model"
	"github.com/verte-zerg/landolt/internal/staircase"
	"github.com/verte-zerg/landolt/internal/voice"
)

const saveTimeout = 5 * time.Second

// RecordResponse resolves the symbol at index. It is a no-op unless that
// symbol is the one awaiting a response in an unpaused, connected row.
func (s *Session) RecordResponse(index int, correct bool) bool {
	var ok bool
	s.do(func() { ok = s.recordLocked(index, correct) })
	return ok
}

func (s *Session) recordLocked(index int, correct bool) bool {
	if s.st.stage != StageTesting || s.st.paused || s.st.link != LinkReady {
		s.logger.Debug("stale response dropped",
			"stage", s.st.stage.String(), "paused", s.st.paused, "link", s.st.link.String())
		return false
	}
	if index != s.st.current || index < 0 || index >= len(s.st.responses) || s.st.responses[index] != model.Pending {
		s.logger.Debug("stale response dropped", "index", index, "current", s.st.current)
		return false
	}
	outcome := model.Incorrect
	if correct {
		outcome = model.Correct
	}
	s.resolveLocked(index, outcome)
	return true
}

func (s *Session) currentResolvedLocked() bool {
	i := s.st.current
	return i >= 0 && i < len(s.st.responses) && s.st.responses[i] != model.Pending
}

// armCountdownLocked starts the countdown unless the row is paused or the
// voice link is down. Scheduling replaces any countdown already live.
func (s *Session) armCountdownLocked() {
	if s.st.paused || s.st.link != LinkReady {
		s.stopTimer(timerCountdown)
		return
	}
	s.schedule(timerCountdown, tickInterval, s.tickLocked)
}

func (s *Session) tickLocked() {
	s.st.remaining--
	if s.st.remaining > 0 {
		s.schedule(timerCountdown, tickInterval, s.tickLocked)
		return
	}
	s.st.remaining = 0
	switch s.st.stage {
	case StageInitialPrep:
		s.beginRowLocked()
	case StageTesting:
		s.timeoutLocked()
	}
}

func (s *Session) startPrepLocked() {
	s.st.prepStarted = true
	s.st.stage = StageInitialPrep
	s.st.remaining = seconds(s.timing.Prep)
	s.armCountdownLocked()
}

func (s *Session) beginRowLocked() {
	s.st.stage = StageTesting
	s.st.row = s.gen.Row(s.rowLength)
	s.st.responses = make([]model.Outcome, len(s.st.row))
	s.st.forceFail = false
	s.logger.Info("row started", "level", s.levels[s.st.levelIndex].Notation, "symbols", len(s.st.row))
	if len(s.st.row) == 0 {
		s.st.stage = StageEvaluating
		s.schedule(timerStep, s.timing.Evaluate, s.evaluateLocked)
		return
	}
	s.startSymbolLocked(0)
}

func (s *Session) startSymbolLocked(index int) {
	s.st.current = index
	s.st.remaining = seconds(s.timing.Symbol)
	s.sendLocked(voice.Symbol(s.st.row[index], index == 0))
	s.armCountdownLocked()
}

func (s *Session) timeoutLocked() {
	if s.st.stage != StageTesting || s.currentResolvedLocked() {
		return
	}
	s.logger.Info("symbol timed out", "index", s.st.current)
	s.resolveLocked(s.st.current, model.Incorrect)
}

// resolveLocked records an outcome and, after the feedback delay, moves to
// the next symbol or evaluates the row. Outcomes are never retracted.
func (s *Session) resolveLocked(index int, outcome model.Outcome) {
	s.st.responses[index] = outcome
	if outcome == model.Incorrect {
		s.st.forceFail = true
	}
	s.stopTimer(timerCountdown)
	s.schedule(timerStep, s.timing.Feedback, s.advanceLocked)
}

func (s *Session) advanceLocked() {
	if s.st.stage != StageTesting {
		return
	}
	next := s.st.current + 1
	if next < len(s.st.row) {
		s.startSymbolLocked(next)
		return
	}
	s.st.stage = StageEvaluating
	s.schedule(timerStep, s.timing.Evaluate, s.evaluateLocked)
}

func (s *Session) evaluateLocked() {
	if s.st.stage != StageEvaluating {
		return
	}
	passed := staircase.RowPassed(s.st.responses, s.st.forceFail)
	level := s.levels[s.st.levelIndex]
	s.st.history = append(s.st.history, model.AttemptRecord{Level: level, Passed: passed})
	s.st.row = nil
	s.st.responses = nil
	s.st.current = 0
	s.logger.Info("row evaluated", "level", level.Notation, "passed", passed)

	d, err := s.tree.Decide(s.st.levelIndex, passed)
	if err != nil {
		s.logger.Error("staircase decision failed", "level", level.Notation, "err", err)
		s.stopAllTimers()
		s.releaseLocked()
		s.st.status = "Test stopped: " + err.Error()
		s.st.blocked = true
		return
	}
	if d.Finished {
		s.completeLocked(d.Final)
		return
	}
	s.st.stage = StageTransition
	s.st.levelIndex = d.Next
	s.schedule(timerStep, s.timing.Transition, s.beginRowLocked)
}

func (s *Session) completeLocked(finalIndex int) {
	final := s.levels[finalIndex]
	s.st.stage = StageCompleted
	s.st.final = &final
	s.st.remaining = 0
	s.st.status = ""
	s.stopAllTimers()
	s.releaseLocked()

	report := model.Report{
		ID:            uuid.NewString(),
		FinalAcuity:   final,
		DecimalAcuity: final.Decimal(),
		History:       append([]model.AttemptRecord(nil), s.st.history...),
		StartedAt:     s.startedAt,
		FinishedAt:    s.clock.Now(),
	}
	s.logger.Info("test completed", "final", final.Notation, "rows", len(report.History))
	recorder := s.recorder
	presenter := s.presenter
	s.effect(func() {
		if recorder != nil {
			ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
			err := recorder.SaveReport(ctx, report)
			cancel()
			if err != nil {
				s.logger.Error("report not saved", "id", report.ID, "err", err)
				s.do(func() { s.st.status = "Report could not be saved" })
			}
		}
		presenter.Finished(report)
	})
}
