package stats

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/landolt/internal/model"
	"github.com/verte-zerg/landolt/internal/store"
)

func TestBuildHistory(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "landolt.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	ctx := context.Background()
	ids := []string{"r0", "r1", "r2"}
	for i, id := range ids {
		finished := time.Unix(0, 0).UTC().Add(time.Duration(i) * time.Hour)
		r := model.Report{
			ID:            id,
			FinalAcuity:   catalogLevel(t, "6/6"),
			DecimalAcuity: 1,
			History: []model.AttemptRecord{
				{Level: catalogLevel(t, "6/6"), Passed: i > 0},
				{Level: catalogLevel(t, "6/4"), Passed: false},
			},
			StartedAt:  finished.Add(-time.Minute),
			FinishedAt: finished,
		}
		if err := st.SaveReport(ctx, r); err != nil {
			t.Fatalf("save report: %v", err)
		}
	}

	h, err := BuildHistory(ctx, st, model.HistoryConfig{Last: 2, CurveWindow: 1})
	if err != nil {
		t.Fatalf("build history: %v", err)
	}
	if len(h.Reports) != 2 || h.Reports[0].ID != "r1" || h.Reports[1].ID != "r2" {
		t.Fatalf("unexpected reports: %+v", h.Reports)
	}
	if len(h.WindowReportIDs) != 1 || h.WindowReportIDs[0] != "r2" {
		t.Fatalf("unexpected window ids: %v", h.WindowReportIDs)
	}
	if len(h.LevelsAll) != 2 || h.LevelsAll[1].Notation != "6/6" || h.LevelsAll[1].Passed != 2 {
		t.Fatalf("unexpected all-level stats: %+v", h.LevelsAll)
	}
	if len(h.LevelsWindow) != 2 || h.LevelsWindow[0].Failed != 1 {
		t.Fatalf("unexpected window stats: %+v", h.LevelsWindow)
	}

	empty, err := BuildHistory(ctx, st, model.HistoryConfig{Since: ptrTime(time.Now().Add(time.Hour))})
	if err != nil {
		t.Fatalf("build empty history: %v", err)
	}
	if len(empty.Reports) != 0 || empty.LevelsAll != nil {
		t.Fatalf("expected empty history, got %+v", empty)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
