package tui

import (
	"strings"
	"testing"
)

func TestWrapTextBreaksOnSpaces(t *testing.T) {
	got := wrapText("Voice connection lost. Reconnecting (1/5)...", 20)
	want := "Voice connection\nlost. Reconnecting\n(1/5)..."
	if got != want {
		t.Fatalf("unexpected wrap:\n%q\nwant\n%q", got, want)
	}
}

func TestWrapTextSplitsLongWords(t *testing.T) {
	got := wrapText("abcdefgh ij", 3)
	want := "abc\ndef\ngh\nij"
	if got != want {
		t.Fatalf("unexpected wrap: %q, want %q", got, want)
	}
}

func TestWrapTextWideRunes(t *testing.T) {
	got := wrapText("左右 上下", 4)
	if got != "左右\n上下" {
		t.Fatalf("unexpected wrap: %q", got)
	}
}

func TestWrapTextKeepsParagraphs(t *testing.T) {
	got := wrapText("a\n\nb", 10)
	if got != "a\n\nb" {
		t.Fatalf("unexpected wrap: %q", got)
	}
}

func TestFitLinesPadsAndTruncates(t *testing.T) {
	out := fitLines("a\nb\nc", 3, 2)
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0] != "a  " || lines[1] != "b  " {
		t.Fatalf("unexpected lines: %q", lines)
	}
	out = fitLines("a", 2, 3)
	if strings.Count(out, "\n") != 2 {
		t.Fatalf("expected padding rows, got %q", out)
	}
}
