// Package model defines shared data structures.
package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Orientation is the direction of the Landolt C gap.
type Orientation string

// Gap orientations.
const (
	Up    Orientation = "up"
	Down  Orientation = "down"
	Left  Orientation = "left"
	Right Orientation = "right"
)

// Orientations lists every gap direction a row may draw from.
var Orientations = []Orientation{Right, Left, Up, Down}

// ParseOrientation maps a direction word to an Orientation.
func ParseOrientation(s string) (Orientation, bool) {
	switch Orientation(strings.ToLower(strings.TrimSpace(s))) {
	case Up:
		return Up, true
	case Down:
		return Down, true
	case Left:
		return Left, true
	case Right:
		return Right, true
	default:
		return "", false
	}
}

// AcuityLevel is one notation of the acuity catalog, e.g. 6/9.
type AcuityLevel struct {
	Notation    string
	Numerator   float64
	Denominator float64
}

// String returns the notation.
func (l AcuityLevel) String() string {
	return l.Notation
}

// Decimal returns numerator over denominator.
func (l AcuityLevel) Decimal() float64 {
	if l.Denominator <= 0 {
		return 0
	}
	return l.Numerator / l.Denominator
}

// ParseNotation parses a "numerator/denominator" acuity notation.
func ParseNotation(s string) (AcuityLevel, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return AcuityLevel{}, fmt.Errorf("invalid acuity notation %q", s)
	}
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return AcuityLevel{}, fmt.Errorf("invalid acuity numerator %q: %w", parts[0], err)
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return AcuityLevel{}, fmt.Errorf("invalid acuity denominator %q: %w", parts[1], err)
	}
	if num <= 0 || den <= 0 {
		return AcuityLevel{}, fmt.Errorf("acuity notation %q must be positive", s)
	}
	return AcuityLevel{Notation: s, Numerator: num, Denominator: den}, nil
}

// Catalog is ordered from best (smallest denominator) to worst.
// Levels are referenced by index into this slice.
var Catalog = []AcuityLevel{
	{Notation: "6/3", Numerator: 6, Denominator: 3},
	{Notation: "6/4", Numerator: 6, Denominator: 4},
	{Notation: "6/5", Numerator: 6, Denominator: 5},
	{Notation: "6/6", Numerator: 6, Denominator: 6},
	{Notation: "6/8", Numerator: 6, Denominator: 8},
	{Notation: "6/9", Numerator: 6, Denominator: 9},
	{Notation: "6/12", Numerator: 6, Denominator: 12},
	{Notation: "6/18", Numerator: 6, Denominator: 18},
	{Notation: "6/24", Numerator: 6, Denominator: 24},
}

// StartNotation is the level every session begins at.
const StartNotation = "6/6"

// LevelIndex returns the catalog index of a notation.
func LevelIndex(notation string) (int, bool) {
	notation = strings.TrimSpace(notation)
	for i, lvl := range Catalog {
		if lvl.Notation == notation {
			return i, true
		}
	}
	return 0, false
}

// Outcome is the per-symbol response state.
type Outcome int

// Response outcomes.
const (
	Pending Outcome = iota
	Correct
	Incorrect
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Correct:
		return "correct"
	case Incorrect:
		return "incorrect"
	default:
		return "unknown"
	}
}

// TestRow is the ordered set of optotype orientations tested at one level.
type TestRow []Orientation

// AttemptRecord is one evaluated row.
type AttemptRecord struct {
	Level  AcuityLevel
	Passed bool
}

// Calibration is the display and camera profile used for size math.
type Calibration struct {
	PixelsPerMM       float64
	ViewingDistanceMM float64
	FocalLength       float64
	ScreenPPI         float64
	Source            string
}

const (
	// DefaultPPI is used when no usable screen density is known.
	DefaultPPI = 96.0
	// MMPerInch converts PPI to pixels per millimeter.
	MMPerInch = 25.4
	// DefaultViewingDistanceMM is the 4 m chart distance.
	DefaultViewingDistanceMM = 4000.0
)

// PositiveFinite reports whether v is usable as a physical measurement.
func PositiveFinite(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Calibration sources.
const (
	SourceServer  = "server"
	SourceCache   = "cache"
	SourceDefault = "default"
)

// DefaultCalibration returns the 96 DPI profile at the default distance.
func DefaultCalibration() Calibration {
	return Calibration{
		PixelsPerMM:       DefaultPPI / MMPerInch,
		ViewingDistanceMM: DefaultViewingDistanceMM,
		ScreenPPI:         DefaultPPI,
		Source:            SourceDefault,
	}
}

// Report is the final artifact of a completed session.
type Report struct {
	ID            string
	FinalAcuity   AcuityLevel
	DecimalAcuity float64
	History       []AttemptRecord
	StartedAt     time.Time
	FinishedAt    time.Time
}

// ReportSummary describes a stored report for listings.
type ReportSummary struct {
	ID            string
	FinishedAt    time.Time
	FinalAcuity   string
	DecimalAcuity float64
	Attempts      int
}

// LevelAggregate counts row results for one level across reports.
type LevelAggregate struct {
	Notation string
	Passed   int
	Failed   int
}

// Config defines screening session settings.
type Config struct {
	ServerURL         string
	Token             string
	StartLevel        string
	RowLength         int
	SymbolTimeout     time.Duration
	PrepCountdown     time.Duration
	ViewingDistanceMM float64
	SkipDistance      bool
	FramesDir         string
	TargetFrames      int
}

// HistoryConfig defines filters and options for history output.
type HistoryConfig struct {
	Since       *time.Time
	Last        int
	CurveWindow int
}
