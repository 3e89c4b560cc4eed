package model

import (
	"math"
	"testing"
)

func TestPositiveFinite(t *testing.T) {
	for _, v := range []float64{1e-300, 0.5, 96} {
		if !PositiveFinite(v) {
			t.Fatalf("expected %v to be usable", v)
		}
	}
	for _, v := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		if PositiveFinite(v) {
			t.Fatalf("expected %v to be rejected", v)
		}
	}
}

func TestParseNotation(t *testing.T) {
	lvl, err := ParseNotation(" 6/12 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if lvl.Notation != "6/12" || lvl.Decimal() != 0.5 {
		t.Fatalf("unexpected level: %+v", lvl)
	}
	for _, bad := range []string{"6", "a/6", "6/0", "6/6/6"} {
		if _, err := ParseNotation(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
