// Package stats contains acuity calculations and reporting.
package stats

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/verte-zerg/landolt/internal/model"
)

const sparkChars = " .:-=+*#%@"

// Interpretation bands by denominator of the final level.
const (
	InterpretNormal      = "Normal vision or better"
	InterpretMild        = "Mild vision loss"
	InterpretModerate    = "Moderate vision loss"
	InterpretSignificant = "Significant vision loss"
)

// Interpret maps a final acuity to its severity band.
func Interpret(level model.AcuityLevel) string {
	switch d := level.Denominator; {
	case d <= 6:
		return InterpretNormal
	case d <= 12:
		return InterpretMild
	case d <= 24:
		return InterpretModerate
	default:
		return InterpretSignificant
	}
}

// InterpretNotation is Interpret for a stored notation string.
func InterpretNotation(notation string) string {
	lvl, err := model.ParseNotation(notation)
	if err != nil {
		return "Unknown"
	}
	return Interpret(lvl)
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := values[0], values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// Summary aggregates a list of reports.
type Summary struct {
	Reports     int
	AvgDecimal  float64
	BestDecimal float64
	BestAcuity  string
	Latest      string
}

// Summarize computes the summary of reports ordered oldest first.
func Summarize(reports []model.ReportSummary) Summary {
	sum := Summary{Reports: len(reports)}
	if len(reports) == 0 {
		return sum
	}
	var total float64
	for _, r := range reports {
		total += r.DecimalAcuity
		if r.DecimalAcuity > sum.BestDecimal {
			sum.BestDecimal = r.DecimalAcuity
			sum.BestAcuity = r.FinalAcuity
		}
	}
	sum.AvgDecimal = total / float64(len(reports))
	sum.Latest = reports[len(reports)-1].FinalAcuity
	return sum
}

// RenderSummary prints a summary block for reports.
func RenderSummary(w io.Writer, reports []model.ReportSummary) error {
	if len(reports) == 0 {
		_, err := fmt.Fprintln(w, "No reports found.")
		return err
	}
	s := Summarize(reports)
	lines := []string{
		"Summary",
		fmt.Sprintf("Reports: %d", s.Reports),
		fmt.Sprintf("Latest: %s (%s)", s.Latest, InterpretNotation(s.Latest)),
		fmt.Sprintf("Best: %s (%.2f)", s.BestAcuity, s.BestDecimal),
		fmt.Sprintf("Avg decimal acuity: %.2f", s.AvgDecimal),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderCurve prints the smoothed decimal acuity trend as a sparkline.
func RenderCurve(w io.Writer, reports []model.ReportSummary, window int) error {
	if len(reports) < 2 {
		return nil
	}
	values := make([]float64, len(reports))
	for i, r := range reports {
		values[i] = r.DecimalAcuity
	}
	smoothed := MovingAverage(values, window)
	_, err := fmt.Fprintf(w, "Trend  [%s]  %.2f -> %.2f\n\n", Sparkline(smoothed), smoothed[0], smoothed[len(smoothed)-1])
	return err
}

// RenderReport prints one report with its attempt history.
func RenderReport(w io.Writer, r model.Report) error {
	lines := []string{
		fmt.Sprintf("Final acuity: %s", r.FinalAcuity.Notation),
		fmt.Sprintf("Decimal acuity: %.2f", r.DecimalAcuity),
		fmt.Sprintf("Interpretation: %s", Interpret(r.FinalAcuity)),
	}
	if !r.FinishedAt.IsZero() {
		lines = append(lines, fmt.Sprintf("Finished: %s", r.FinishedAt.Local().Format("2006-01-02 15:04")))
	}
	lines = append(lines, "")
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if len(r.History) == 0 {
		return nil
	}
	tbl := newTable(right("Row"), left("Level"), left("Result"))
	for i, a := range r.History {
		result := "fail"
		if a.Passed {
			result = "pass"
		}
		tbl.add(fmt.Sprintf("%d", i+1), a.Level.Notation, result)
	}
	return tbl.write(w)
}

// RenderLevelTable prints per-level pass and fail counts.
func RenderLevelTable(w io.Writer, aggs []model.LevelAggregate) error {
	if len(aggs) == 0 {
		_, err := fmt.Fprintln(w, "No level stats found.")
		return err
	}
	if _, err := fmt.Fprintln(w, "Per-Level"); err != nil {
		return err
	}
	tbl := newTable(left("Level"), right("Pass rate"), right("Passed"), right("Failed"))
	for _, agg := range aggs {
		tbl.add(
			agg.Notation,
			fmt.Sprintf("%.1f%%", PassRate(agg)*100),
			fmt.Sprintf("%d", agg.Passed),
			fmt.Sprintf("%d", agg.Failed),
		)
	}
	if err := tbl.write(w); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// PassRate is the share of passed rows, zero when a level was never tested.
func PassRate(agg model.LevelAggregate) float64 {
	total := agg.Passed + agg.Failed
	if total == 0 {
		return 0
	}
	return float64(agg.Passed) / float64(total)
}
