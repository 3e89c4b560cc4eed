// Package generator builds randomized optotype rows and derives optotype size.
package generator

import (
	"math"
	"math/rand"
	"time"

	"github.com/verte-zerg/landolt/internal/model"
)

const (
	// gapArcMinutes is the visual angle of a full Landolt C at the reference level.
	gapArcMinutes        = 5.0
	referenceDenominator = 6.0
)

// Generator produces randomized test rows.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator seeded with the current time.
func New() *Generator {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded returns a Generator with a fixed seed.
func NewSeeded(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Row draws length orientations independently and uniformly. Repeats are allowed.
func (g *Generator) Row(length int) model.TestRow {
	if length <= 0 {
		return model.TestRow{}
	}
	row := make(model.TestRow, length)
	for i := range row {
		row[i] = model.Orientations[g.rnd.Intn(len(model.Orientations))]
	}
	return row
}

// OpticalSizeMM returns the optotype diameter in millimeters at the given viewing distance.
func OpticalSizeMM(level model.AcuityLevel, viewingDistanceMM float64) float64 {
	if !model.PositiveFinite(viewingDistanceMM) {
		viewingDistanceMM = model.DefaultViewingDistanceMM
	}
	den := level.Denominator
	if !model.PositiveFinite(den) {
		den = referenceDenominator
	}
	angle := (gapArcMinutes / 60.0) * (math.Pi / 180.0)
	standard := 2 * viewingDistanceMM * math.Tan(angle/2)
	return standard * (den / referenceDenominator)
}

// OpticalSizePixels converts the optotype diameter to pixels using the calibration.
// Unusable density falls back to 96 DPI. The result is always finite and positive
// and is not floored, so it keeps shrinking with the denominator even when it
// drops below one pixel. Rendering decides the smallest drawable size.
func OpticalSizePixels(level model.AcuityLevel, cal model.Calibration) float64 {
	mm := OpticalSizeMM(level, cal.ViewingDistanceMM)
	px := mm * cal.PixelsPerMM
	if !model.PositiveFinite(px) {
		px = mm * model.DefaultPPI / model.MMPerInch
	}
	return px
}
