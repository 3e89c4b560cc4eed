// Package voice implements the client side of the speech classification channel.
package voice

import (
	"encoding/json"
	"fmt"

	"github.com/verte-zerg/landolt/internal/model"
)

// Command is an outbound instruction to the speech service.
type Command string

// Outbound commands.
const (
	CommandPrepare       Command = "prepare_voice_model"
	CommandStartSymbol   Command = "START_SYMBOL"
	CommandNextSymbol    Command = "NEXT_SYMBOL"
	CommandStopListening Command = "STOP_LISTENING"
	CommandVoiceInput    Command = "VOICE_INPUT"
)

// Status identifies an inbound message.
type Status string

// Inbound statuses.
const (
	StatusAuthenticated  Status = "authenticated"
	StatusReady          Status = "ready_for_test"
	StatusCorrect        Status = "CORRECT"
	StatusIncorrect      Status = "INCORRECT"
	StatusUnrecognized   Status = "UNRECOGNIZED"
	StatusPauseRequested Status = "PAUSE_REQUESTED"
	StatusPartial        Status = "partial"
)

// Outbound is one message sent to the speech service.
type Outbound struct {
	Command     Command           `json:"command"`
	Orientation model.Orientation `json:"orientation,omitempty"`
	Text        string            `json:"text,omitempty"`
}

// Inbound is one message received from the speech service.
type Inbound struct {
	Status  Status `json:"status,omitempty"`
	Text    string `json:"text,omitempty"`
	Partial string `json:"partial,omitempty"`
	User    string `json:"user,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// IsError reports whether the message carries a service error.
func (m Inbound) IsError() bool {
	return m.Error != ""
}

// ErrorText returns the most descriptive error string.
func (m Inbound) ErrorText() string {
	if m.Message != "" {
		return m.Message
	}
	return m.Error
}

// Prepare asks the service to load its recognition model.
func Prepare() Outbound { return Outbound{Command: CommandPrepare} }

// Symbol tells the service which orientation counts as correct.
// The first symbol of a row uses START_SYMBOL.
func Symbol(o model.Orientation, first bool) Outbound {
	if first {
		return Outbound{Command: CommandStartSymbol, Orientation: o}
	}
	return Outbound{Command: CommandNextSymbol, Orientation: o}
}

// StopListening ends classification for the session.
func StopListening() Outbound { return Outbound{Command: CommandStopListening} }

// VoiceInput forwards a final transcript for classification.
func VoiceInput(text string) Outbound { return Outbound{Command: CommandVoiceInput, Text: text} }

// Decode parses one inbound frame.
func Decode(data []byte) (Inbound, error) {
	var m Inbound
	if err := json.Unmarshal(data, &m); err != nil {
		return Inbound{}, fmt.Errorf("voice: decode message: %w", err)
	}
	if m.Status == "" && m.Error == "" {
		return Inbound{}, fmt.Errorf("voice: message has neither status nor error")
	}
	return m, nil
}
