package tui

import (
	"context"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// KeyTranscriber stands in for a microphone: keys and typed words become
// final transcripts. It is active between Start and Stop.
type KeyTranscriber struct {
	mu   sync.Mutex
	ctx  context.Context
	emit func(string)
}

// Start implements session.SpeechTranscriber.
func (k *KeyTranscriber) Start(ctx context.Context, emit func(string)) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.ctx = ctx
	k.emit = emit
	return nil
}

// Stop implements session.SpeechTranscriber.
func (k *KeyTranscriber) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.ctx = nil
	k.emit = nil
}

// Say emits text as a transcript. It reports false when inactive or text is blank.
func (k *KeyTranscriber) Say(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	k.mu.Lock()
	emit, ctx := k.emit, k.ctx
	k.mu.Unlock()
	if emit == nil || (ctx != nil && ctx.Err() != nil) {
		return false
	}
	emit(text)
	return true
}

func keyWord(msg tea.KeyMsg) (string, bool) {
	switch msg.String() {
	case "up", "k":
		return "up", true
	case "down", "j":
		return "down", true
	case "left", "h":
		return "left", true
	case "right", "l":
		return "right", true
	default:
		return "", false
	}
}
