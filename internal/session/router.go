package session

import (
	"strings"

	"github.com/verte-zerg/landolt/internal/voice"
)

// linkHandler tags voice traffic with the link it came from so events from
// a retired link are dropped.
type linkHandler struct {
	s  *Session
	id uint64
}

func (h *linkHandler) HandleMessage(msg voice.Inbound) {
	h.s.do(func() { h.s.routeLocked(h.id, msg) })
}

func (h *linkHandler) HandleClose(info voice.CloseInfo) {
	h.s.do(func() { h.s.linkClosedLocked(h.id, info) })
}

func (s *Session) routeLocked(id uint64, msg voice.Inbound) {
	if id != s.linkID {
		s.logger.Debug("event from retired voice link dropped", "status", string(msg.Status))
		return
	}
	if msg.IsError() {
		s.logger.Warn("voice service error", "error", msg.Error, "message", msg.Message)
		s.st.status = "Voice service error: " + msg.ErrorText()
		return
	}
	switch msg.Status {
	case voice.StatusAuthenticated:
		s.st.link = LinkAuthenticated
		s.sendLocked(voice.Prepare())
	case voice.StatusReady:
		s.linkReadyLocked()
	case voice.StatusCorrect, voice.StatusIncorrect:
		s.hearLocked(msg.Text)
		if s.st.stage != StageTesting || s.st.paused {
			s.logger.Debug("stale transcript dropped",
				"status", string(msg.Status), "stage", s.st.stage.String(), "paused", s.st.paused)
			return
		}
		s.recordLocked(s.st.current, msg.Status == voice.StatusCorrect)
	case voice.StatusUnrecognized:
		s.hearLocked(msg.Text)
	case voice.StatusPartial:
		text := msg.Partial
		if text == "" {
			text = msg.Text
		}
		s.hearLocked(text)
	case voice.StatusPauseRequested:
		s.togglePauseLocked()
	default:
		s.logger.Debug("unknown voice status", "status", string(msg.Status))
	}
}

// hearLocked shows text as the last heard value until it self-clears.
func (s *Session) hearLocked(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.st.lastHeard = text
	s.schedule(timerLastHeard, s.timing.LastHeard, func() { s.st.lastHeard = "" })
}

// forwardTranscript relays a final transcript to the speech service for classification.
func (s *Session) forwardTranscript(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.do(func() {
		if !s.st.active {
			return
		}
		s.sendLocked(voice.VoiceInput(text))
	})
}
