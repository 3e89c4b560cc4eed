package historyui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/landolt/internal/model"
)

type fakeSource struct {
	reports []model.ReportSummary
	aggs    []model.LevelAggregate
	full    map[string]model.Report
	listErr error
	lastCfg model.HistoryConfig
}

func (f *fakeSource) ListReports(_ context.Context, cfg model.HistoryConfig) ([]model.ReportSummary, error) {
	f.lastCfg = cfg
	return f.reports, f.listErr
}

func (f *fakeSource) LevelAggregates(context.Context, []string) ([]model.LevelAggregate, error) {
	return f.aggs, nil
}

func (f *fakeSource) GetReport(_ context.Context, id string) (model.Report, error) {
	r, ok := f.full[id]
	if !ok {
		return model.Report{}, errors.New("not found")
	}
	return r, nil
}

func newSource() *fakeSource {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &fakeSource{
		reports: []model.ReportSummary{
			{ID: "old", FinishedAt: t0, FinalAcuity: "6/9", DecimalAcuity: 6.0 / 9, Attempts: 3},
			{ID: "new", FinishedAt: t0.Add(24 * time.Hour), FinalAcuity: "6/6", DecimalAcuity: 1, Attempts: 2},
		},
		aggs: []model.LevelAggregate{{Notation: "6/6", Passed: 1, Failed: 1}, {Notation: "6/9", Passed: 1}},
		full: map[string]model.Report{
			"new": {ID: "new", FinalAcuity: model.Catalog[3], DecimalAcuity: 1},
		},
	}
}

func sized(m *Model) {
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
}

func TestOverviewShowsSummary(t *testing.T) {
	m := NewModel(newSource(), model.HistoryConfig{CurveWindow: 5})
	sized(m)
	view := m.View()
	for _, want := range []string{"Overview", "Reports", "Latest", "6/6", "Pass rate by level"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected %q in view:\n%s", want, view)
		}
	}
}

func TestReportsTabListsNewestFirstAndOpensDetail(t *testing.T) {
	m := NewModel(newSource(), model.HistoryConfig{CurveWindow: 5})
	sized(m)
	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	if m.activeTab != tabReports {
		t.Fatalf("expected reports tab")
	}
	rows := m.tables[tabReports].Rows()
	if len(rows) != 2 || rows[0][1] != "6/6" || rows[1][1] != "6/9" {
		t.Fatalf("unexpected rows: %v", rows)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !m.detailMode {
		t.Fatalf("expected detail mode, err=%q", m.errMsg)
	}
	if !strings.Contains(m.View(), "Final acuity: 6/6") {
		t.Fatalf("expected report detail:\n%s", m.View())
	}
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.detailMode {
		t.Fatalf("expected detail to close")
	}

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.detailMode || m.errMsg == "" {
		t.Fatalf("expected missing report to surface an error")
	}
}

func TestLevelsTab(t *testing.T) {
	m := NewModel(newSource(), model.HistoryConfig{})
	sized(m)
	m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	if m.activeTab != tabLevels {
		t.Fatalf("expected wrap to levels tab")
	}
	if !strings.Contains(m.View(), "50.0%") {
		t.Fatalf("expected pass rate in view:\n%s", m.View())
	}
}

func TestFilterAppliesConfig(t *testing.T) {
	src := newSource()
	m := NewModel(src, model.HistoryConfig{CurveWindow: 5})
	sized(m)
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	if !m.filterMode {
		t.Fatalf("expected filter mode")
	}
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("2026-03-02")})
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("3")})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.filterMode {
		t.Fatalf("expected filter to apply, err=%q", m.filterError)
	}
	if src.lastCfg.Since == nil || src.lastCfg.Since.Day() != 2 || src.lastCfg.Last != 3 || src.lastCfg.CurveWindow != 5 {
		t.Fatalf("unexpected config: %+v", src.lastCfg)
	}
}

func TestParseFilterErrors(t *testing.T) {
	if _, err := parseFilter("March", "", ""); err == nil {
		t.Fatalf("expected since error")
	}
	if _, err := parseFilter("", "-1", ""); err == nil {
		t.Fatalf("expected last error")
	}
	if _, err := parseFilter("", "", "0"); err == nil {
		t.Fatalf("expected window error")
	}
	cfg, err := parseFilter("", "", "")
	if err != nil || cfg.CurveWindow != 1 || cfg.Since != nil {
		t.Fatalf("unexpected defaults: %+v %v", cfg, err)
	}
}

func TestLoadErrorShown(t *testing.T) {
	src := newSource()
	src.listErr = errors.New("db locked")
	m := NewModel(src, model.HistoryConfig{})
	sized(m)
	if !strings.Contains(m.View(), "db locked") {
		t.Fatalf("expected error in footer:\n%s", m.View())
	}
}

func TestCurveWindowSteps(t *testing.T) {
	if nextCurveWindow(1) != 5 || nextCurveWindow(5) != 10 || nextCurveWindow(7) != 10 {
		t.Fatalf("unexpected next windows")
	}
	if prevCurveWindow(5) != 1 || prevCurveWindow(10) != 5 || prevCurveWindow(7) != 5 {
		t.Fatalf("unexpected prev windows")
	}
}
