package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/verte-zerg/landolt/internal/model"
)

const (
	terminalWidthBackup = 80
	minBarWidth         = 10
	barFill             = "#"
	barEmpty            = "."
)

// TerminalWidth returns the width of f when it is a terminal, or 80.
func TerminalWidth(f *os.File) int {
	if f == nil || !term.IsTerminal(int(f.Fd())) {
		return terminalWidthBackup
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return terminalWidthBackup
	}
	return w
}

// RenderPassRates draws one pass-rate bar per level, fitted to totalWidth.
func RenderPassRates(w io.Writer, aggs []model.LevelAggregate, totalWidth int) error {
	if len(aggs) == 0 {
		return nil
	}
	labelWidth := 0
	for _, agg := range aggs {
		labelWidth = max(labelWidth, displayWidth(agg.Notation))
	}
	// label, space, bracket, bar, bracket, space, "100%"
	barWidth := max(minBarWidth, totalWidth-labelWidth-8)

	if _, err := fmt.Fprintln(w, "Pass rate by level"); err != nil {
		return err
	}
	for _, agg := range aggs {
		rate := PassRate(agg)
		filled := int(math.Round(rate * float64(barWidth)))
		bar := strings.Repeat(barFill, filled) + strings.Repeat(barEmpty, barWidth-filled)
		label := padCell(agg.Notation, labelWidth, false)
		if _, err := fmt.Fprintf(w, "%s [%s] %3.0f%%\n", label, bar, rate*100); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}
