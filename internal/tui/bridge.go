package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/landolt/internal/distance"
	"github.com/verte-zerg/landolt/internal/model"
	"github.com/verte-zerg/landolt/internal/session"
)

// Sender delivers messages into a running program. *tea.Program implements it.
type Sender interface {
	Send(tea.Msg)
}

type snapshotMsg struct{ snap session.Snapshot }

type finishedMsg struct{ report model.Report }

type readingMsg struct{ reading distance.Reading }

type distanceStatusMsg struct{ text string }

// Bridge forwards session and distance callbacks into the program.
// Callbacks arriving before Attach are dropped.
type Bridge struct {
	mu     sync.Mutex
	sender Sender
}

// Attach sets the program that receives messages.
func (b *Bridge) Attach(s Sender) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sender = s
}

func (b *Bridge) send(msg tea.Msg) {
	b.mu.Lock()
	s := b.sender
	b.mu.Unlock()
	if s != nil {
		s.Send(msg)
	}
}

// Present implements session.Presenter.
func (b *Bridge) Present(snap session.Snapshot) { b.send(snapshotMsg{snap: snap}) }

// Finished implements session.Presenter.
func (b *Bridge) Finished(r model.Report) { b.send(finishedMsg{report: r}) }

// Reading forwards a distance reading.
func (b *Bridge) Reading(r distance.Reading) { b.send(readingMsg{reading: r}) }

// DistanceStatus forwards a distance channel status line.
func (b *Bridge) DistanceStatus(text string) { b.send(distanceStatusMsg{text: text}) }
