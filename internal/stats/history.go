package stats

import (
	"context"

	"github.com/verte-zerg/landolt/internal/model"
)

// HistorySource reads stored reports.
type HistorySource interface {
	ListReports(ctx context.Context, cfg model.HistoryConfig) ([]model.ReportSummary, error)
	LevelAggregates(ctx context.Context, reportIDs []string) ([]model.LevelAggregate, error)
}

// History contains precomputed data for history rendering.
type History struct {
	Reports         []model.ReportSummary
	WindowReportIDs []string
	LevelsAll       []model.LevelAggregate
	LevelsWindow    []model.LevelAggregate
}

// BuildHistory loads and prepares data for history rendering.
func BuildHistory(ctx context.Context, src HistorySource, cfg model.HistoryConfig) (History, error) {
	reports, err := src.ListReports(ctx, cfg)
	if err != nil {
		return History{}, err
	}
	if len(reports) == 0 {
		return History{}, nil
	}

	allIDs := reportIDs(reports)
	windowIDs := lastReportIDs(reports, cfg.CurveWindow)
	levelsAll, err := src.LevelAggregates(ctx, allIDs)
	if err != nil {
		return History{}, err
	}
	levelsWindow, err := src.LevelAggregates(ctx, windowIDs)
	if err != nil {
		return History{}, err
	}

	return History{
		Reports:         reports,
		WindowReportIDs: windowIDs,
		LevelsAll:       levelsAll,
		LevelsWindow:    levelsWindow,
	}, nil
}

func reportIDs(reports []model.ReportSummary) []string {
	ids := make([]string, len(reports))
	for i, r := range reports {
		ids[i] = r.ID
	}
	return ids
}

func lastReportIDs(reports []model.ReportSummary, window int) []string {
	if window <= 0 || len(reports) <= window {
		return reportIDs(reports)
	}
	return reportIDs(reports[len(reports)-window:])
}
