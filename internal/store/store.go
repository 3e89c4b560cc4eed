// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/landolt/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound is returned when a report id is unknown.
var ErrNotFound = errors.New("report not found")

// Store wraps SQLite access for reports and calibration.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			final_notation TEXT NOT NULL,
			final_decimal REAL NOT NULL,
			attempts INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS report_attempts (
			report_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			notation TEXT NOT NULL,
			passed INTEGER NOT NULL,
			PRIMARY KEY (report_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS calibrations (
			id INTEGER PRIMARY KEY,
			saved_at TEXT NOT NULL,
			focal_length REAL NOT NULL,
			pixels_per_mm REAL NOT NULL,
			screen_ppi REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_finished_at ON reports(finished_at);`,
		`CREATE INDEX IF NOT EXISTS idx_report_attempts_notation ON report_attempts(notation);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveReport stores a completed report and its attempt history.
// A report without an id gets a new one.
func (s *Store) SaveReport(ctx context.Context, r model.Report) (err error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reports (id, started_at, finished_at, final_notation, final_decimal, attempts)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.StartedAt.Format(time.RFC3339Nano),
		r.FinishedAt.Format(time.RFC3339Nano),
		r.FinalAcuity.Notation,
		r.DecimalAcuity,
		len(r.History),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	if len(r.History) > 0 {
		stmt, perr := tx.PrepareContext(ctx,
			`INSERT INTO report_attempts (report_id, seq, notation, passed) VALUES (?, ?, ?, ?)`)
		if perr != nil {
			err = perr
			return err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for i, a := range r.History {
			if _, err = stmt.ExecContext(ctx, r.ID, i, a.Level.Notation, boolInt(a.Passed)); err != nil {
				return fmt.Errorf("insert attempt: %w", err)
			}
		}
	}

	return tx.Commit()
}

// ListReports returns report summaries oldest first, filtered by cfg.
// Last keeps only the most recent n reports.
func (s *Store) ListReports(ctx context.Context, cfg model.HistoryConfig) ([]model.ReportSummary, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Since != nil {
		clauses = append(clauses, "finished_at >= ?")
		args = append(args, cfg.Since.Format(time.RFC3339Nano))
	}
	limit := -1
	if cfg.Last > 0 {
		limit = cfg.Last
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT id, finished_at, final_notation, final_decimal, attempts FROM (
		SELECT id, finished_at, final_notation, final_decimal, attempts
		FROM reports
		WHERE %s
		ORDER BY finished_at DESC
		LIMIT ?
	) ORDER BY finished_at ASC`, strings.Join(clauses, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var reports []model.ReportSummary
	for rows.Next() {
		var sum model.ReportSummary
		var finishedAt string
		if err := rows.Scan(&sum.ID, &finishedAt, &sum.FinalAcuity, &sum.DecimalAcuity, &sum.Attempts); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, finishedAt)
		if err != nil {
			return nil, err
		}
		sum.FinishedAt = parsed
		reports = append(reports, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reports, nil
}

// GetReport loads one report with its history.
func (s *Store) GetReport(ctx context.Context, id string) (model.Report, error) {
	var r model.Report
	var startedAt, finishedAt, notation string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, final_notation, final_decimal FROM reports WHERE id = ?`, id,
	).Scan(&r.ID, &startedAt, &finishedAt, &notation, &r.DecimalAcuity)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Report{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Report{}, err
	}
	if r.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return model.Report{}, err
	}
	if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
		return model.Report{}, err
	}
	if r.FinalAcuity, err = levelFor(notation); err != nil {
		return model.Report{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT notation, passed FROM report_attempts WHERE report_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return model.Report{}, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()
	for rows.Next() {
		var n string
		var passed int
		if err := rows.Scan(&n, &passed); err != nil {
			return model.Report{}, err
		}
		lvl, err := levelFor(n)
		if err != nil {
			return model.Report{}, err
		}
		r.History = append(r.History, model.AttemptRecord{Level: lvl, Passed: passed != 0})
	}
	if err := rows.Err(); err != nil {
		return model.Report{}, err
	}
	return r, nil
}

// LevelAggregates counts passed and failed rows per level across reports,
// in catalog order. No ids means every report.
func (s *Store) LevelAggregates(ctx context.Context, reportIDs []string) ([]model.LevelAggregate, error) {
	where := "1=1"
	args := make([]any, 0, len(reportIDs))
	if len(reportIDs) > 0 {
		placeholders := make([]string, len(reportIDs))
		for i, id := range reportIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		where = fmt.Sprintf("report_id IN (%s)", strings.Join(placeholders, ","))
	}
	query := fmt.Sprintf(`SELECT notation, SUM(passed) AS passed, SUM(1 - passed) AS failed
		FROM report_attempts
		WHERE %s
		GROUP BY notation`, where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	byNotation := map[string]model.LevelAggregate{}
	var extra []model.LevelAggregate
	for rows.Next() {
		var agg model.LevelAggregate
		if err := rows.Scan(&agg.Notation, &agg.Passed, &agg.Failed); err != nil {
			return nil, err
		}
		if _, ok := model.LevelIndex(agg.Notation); ok {
			byNotation[agg.Notation] = agg
		} else {
			extra = append(extra, agg)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var result []model.LevelAggregate
	for _, lvl := range model.Catalog {
		if agg, ok := byNotation[lvl.Notation]; ok {
			result = append(result, agg)
		}
	}
	return append(result, extra...), nil
}

// SaveCalibration caches a calibration fetched from the server.
func (s *Store) SaveCalibration(ctx context.Context, cal model.Calibration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calibrations (saved_at, focal_length, pixels_per_mm, screen_ppi) VALUES (?, ?, ?, ?)`,
		s.now().Format(time.RFC3339Nano), cal.FocalLength, cal.PixelsPerMM, cal.ScreenPPI)
	if err != nil {
		return fmt.Errorf("insert calibration: %w", err)
	}
	return nil
}

// LatestCalibration returns the most recently cached calibration.
func (s *Store) LatestCalibration(ctx context.Context) (model.Calibration, bool, error) {
	var cal model.Calibration
	err := s.db.QueryRowContext(ctx,
		`SELECT focal_length, pixels_per_mm, screen_ppi FROM calibrations ORDER BY id DESC LIMIT 1`,
	).Scan(&cal.FocalLength, &cal.PixelsPerMM, &cal.ScreenPPI)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Calibration{}, false, nil
	}
	if err != nil {
		return model.Calibration{}, false, err
	}
	cal.Source = model.SourceCache
	return cal, true, nil
}

func levelFor(notation string) (model.AcuityLevel, error) {
	if i, ok := model.LevelIndex(notation); ok {
		return model.Catalog[i], nil
	}
	return model.ParseNotation(notation)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
