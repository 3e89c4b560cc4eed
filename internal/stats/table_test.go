package stats

import (
	"bytes"
	"testing"
)

func TestTableAlignsColumns(t *testing.T) {
	tbl := newTable(left("Level"), right("Pass rate"), right("Passed"))
	tbl.add("6/6", "75.0%", "3")
	tbl.add("6/12", "100.0%", "12")

	lines := tbl.lines()
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "Level Pass rate Passed" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if lines[1] != "6/6       75.0%      3" {
		t.Fatalf("unexpected row line: %q", lines[1])
	}
	if lines[2] != "6/12     100.0%     12" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
}

func TestTableWideRunes(t *testing.T) {
	tbl := newTable(left("A"), left("B"))
	tbl.add("视力", "x")
	tbl.add("ab", "y")
	lines := tbl.lines()
	if lines[1] != "视力 x" {
		t.Fatalf("unexpected wide row: %q", lines[1])
	}
	if lines[2] != "ab   y" {
		t.Fatalf("unexpected narrow row: %q", lines[2])
	}
}

func TestTableShortAndLongRows(t *testing.T) {
	tbl := newTable(right("Row"), left("Level"), left("Result"))
	tbl.add("1", "6/6")
	tbl.add("2", "6/9", "fail", "ignored")
	var buf bytes.Buffer
	if err := tbl.write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "Row Level Result\n  1 6/6\n  2 6/9   fail\n"
	if buf.String() != want {
		t.Fatalf("unexpected table:\n%q\nwant\n%q", buf.String(), want)
	}
}
