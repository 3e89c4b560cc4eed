package tui

import (
	"math"
	"strings"

	"github.com/verte-zerg/landolt/internal/model"
)

const (
	minGlyphCells = 5
	// A glyph cell is two terminal columns by one row, roughly square.
	pixelsPerCell = 3.0
	glyphOn       = "██"
	glyphOff      = "  "
)

// glyphCells maps the optotype pixel size to an odd cell count within [5, limit].
func glyphCells(sizePixels float64, limit int) int {
	n := int(math.Round(sizePixels / pixelsPerCell))
	if limit < minGlyphCells {
		limit = minGlyphCells
	}
	if limit%2 == 0 {
		limit--
	}
	if n > limit {
		n = limit
	}
	if n < minGlyphCells {
		n = minGlyphCells
	}
	if n%2 == 0 {
		n++
	}
	return n
}

// renderGlyph draws a Landolt C with n x n cells. Stroke and gap are one fifth
// of the outer diameter.
func renderGlyph(o model.Orientation, n int) []string {
	if n < minGlyphCells {
		n = minGlyphCells
	}
	c := float64(n-1) / 2
	outer := c + 0.5
	inner := outer * 3 / 5
	halfGap := outer / 5

	lines := make([]string, n)
	for y := 0; y < n; y++ {
		var b strings.Builder
		for x := 0; x < n; x++ {
			dx := float64(x) - c
			dy := float64(y) - c
			r := math.Hypot(dx, dy)
			if r <= outer && r >= inner && !inGap(o, dx, dy, halfGap) {
				b.WriteString(glyphOn)
			} else {
				b.WriteString(glyphOff)
			}
		}
		lines[y] = b.String()
	}
	return lines
}

func inGap(o model.Orientation, dx, dy, halfGap float64) bool {
	switch o {
	case model.Right:
		return dx > 0 && math.Abs(dy) < halfGap
	case model.Left:
		return dx < 0 && math.Abs(dy) < halfGap
	case model.Up:
		return dy < 0 && math.Abs(dx) < halfGap
	case model.Down:
		return dy > 0 && math.Abs(dx) < halfGap
	default:
		return false
	}
}
