package session

import "time"

// Clock schedules callbacks. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type timerKind int

const (
	// timerCountdown is the single live countdown: prep seconds or symbol seconds.
	timerCountdown timerKind = iota
	// timerStep delays feedback, evaluation and level transitions.
	timerStep
	timerLastHeard
	timerReconnect
	numTimers
)

const tickInterval = time.Second

// schedule replaces any pending timer of the same kind. A fire is ignored
// when the timer was replaced or stopped in the meantime. Callers hold s.mu.
func (s *Session) schedule(kind timerKind, d time.Duration, fn func()) {
	s.stopTimer(kind)
	seq := s.timerSeq[kind]
	s.timers[kind] = s.clock.AfterFunc(d, func() {
		s.do(func() {
			if s.timerSeq[kind] != seq {
				s.logger.Debug("stale timer dropped", "timer", int(kind))
				return
			}
			s.timers[kind] = nil
			fn()
		})
	})
}

func (s *Session) stopTimer(kind timerKind) {
	s.timerSeq[kind]++
	if t := s.timers[kind]; t != nil {
		t.Stop()
		s.timers[kind] = nil
	}
}

func (s *Session) stopAllTimers() {
	for k := timerKind(0); k < numTimers; k++ {
		s.stopTimer(k)
	}
}
