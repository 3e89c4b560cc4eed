package session

import (
	"fmt"

	"github.com/verte-zerg/landolt/internal/model"
	"github.com/verte-zerg/landolt/internal/voice"
)

// connectLocked dials a new voice link off the lock. Messages sent before the
// dial returns are queued and flushed once the link is attached.
func (s *Session) connectLocked() {
	s.linkID++
	id := s.linkID
	s.dialing = true
	s.outbox = nil
	if s.st.link != LinkReconnecting {
		s.st.link = LinkConnecting
	}
	ctx := s.ctx
	h := &linkHandler{s: s, id: id}
	s.spawn(func() {
		link, err := s.dial(ctx, h)
		s.do(func() { s.linkDialedLocked(id, link, err) })
	})
}

func (s *Session) linkDialedLocked(id uint64, link VoiceLink, err error) {
	if id != s.linkID || !s.st.active {
		if link != nil {
			s.effect(func() { _ = link.Close() })
		}
		return
	}
	s.dialing = false
	if err != nil {
		s.logger.Warn("voice dial failed", "err", err)
		s.outbox = nil
		s.linkDownLocked()
		return
	}
	s.link = link
	queued := s.outbox
	s.outbox = nil
	for _, msg := range queued {
		s.sendLocked(msg)
	}
}

func (s *Session) linkClosedLocked(id uint64, info voice.CloseInfo) {
	if id != s.linkID {
		return
	}
	s.linkID++
	s.link = nil
	s.dialing = false
	s.outbox = nil
	if !s.st.active || s.st.stage == StageCompleted {
		s.st.link = LinkIdle
		return
	}
	if info.Normal() {
		s.logger.Info("voice service closed the channel")
		s.stopTimer(timerCountdown)
		s.st.link = LinkIdle
		s.st.status = "Voice service ended the session. Press r to restart."
		return
	}
	s.logger.Warn("voice channel dropped", "code", info.Code, "reason", info.Reason, "err", info.Err)
	s.linkDownLocked()
}

// linkDownLocked suspends the countdown and schedules a bounded reconnect.
// Once attempts are exhausted the link is lost until restart.
func (s *Session) linkDownLocked() {
	s.stopTimer(timerCountdown)
	if s.st.reconnectTries >= s.timing.MaxReconnects {
		s.st.link = LinkLost
		s.st.status = "Connection lost. Press r to restart."
		s.logger.Error("voice reconnect attempts exhausted", "attempts", s.st.reconnectTries)
		return
	}
	s.st.reconnectTries++
	s.st.link = LinkReconnecting
	s.st.status = fmt.Sprintf("Voice connection lost. Reconnecting (%d/%d)...",
		s.st.reconnectTries, s.timing.MaxReconnects)
	s.schedule(timerReconnect, s.timing.Reconnect, s.connectLocked)
}

// linkReadyLocked starts the prep countdown the first time the speech service
// is ready. After a reconnect it re-sends the symbol under test and resumes.
func (s *Session) linkReadyLocked() {
	s.st.link = LinkReady
	s.st.reconnectTries = 0
	if !s.st.paused {
		s.st.status = ""
	}
	switch {
	case !s.st.prepStarted:
		s.startPrepLocked()
	case s.st.stage == StageInitialPrep:
		s.armCountdownLocked()
	case s.st.stage == StageTesting && s.st.current < len(s.st.responses) &&
		s.st.responses[s.st.current] == model.Pending:
		s.sendLocked(voice.Symbol(s.st.row[s.st.current], true))
		s.armCountdownLocked()
	}
}

func (s *Session) sendLocked(msg voice.Outbound) {
	if s.link == nil {
		if s.dialing {
			s.outbox = append(s.outbox, msg)
			return
		}
		s.logger.Debug("voice message not sent, no channel", "command", string(msg.Command))
		return
	}
	link := s.link
	s.effect(func() {
		if err := link.Send(msg); err != nil {
			s.logger.Warn("voice send failed", "command", string(msg.Command), "err", err)
		}
	})
}
