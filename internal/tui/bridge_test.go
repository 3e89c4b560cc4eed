package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/landolt/internal/distance"
	"github.com/verte-zerg/landolt/internal/model"
	"github.com/verte-zerg/landolt/internal/session"
)

type recordingSender struct {
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) { r.msgs = append(r.msgs, msg) }

func TestBridgeDropsUntilAttached(t *testing.T) {
	b := &Bridge{}
	b.Present(session.Snapshot{Version: 1})

	rec := &recordingSender{}
	b.Attach(rec)
	b.Present(session.Snapshot{Version: 2})
	b.Finished(model.Report{ID: "r1"})
	b.Reading(distance.Reading{Success: true})
	b.DistanceStatus("Move closer")

	if len(rec.msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(rec.msgs))
	}
	if snap, ok := rec.msgs[0].(snapshotMsg); !ok || snap.snap.Version != 2 {
		t.Fatalf("unexpected first message: %#v", rec.msgs[0])
	}
	if fin, ok := rec.msgs[1].(finishedMsg); !ok || fin.report.ID != "r1" {
		t.Fatalf("unexpected second message: %#v", rec.msgs[1])
	}
	if _, ok := rec.msgs[2].(readingMsg); !ok {
		t.Fatalf("unexpected third message: %#v", rec.msgs[2])
	}
	if st, ok := rec.msgs[3].(distanceStatusMsg); !ok || st.text != "Move closer" {
		t.Fatalf("unexpected fourth message: %#v", rec.msgs[3])
	}
}
