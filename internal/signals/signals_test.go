package signals

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultGenerate(t *testing.T) {
	got := Default().Generate()

	wantTops := []string{"2014-04-30", "2017-12-09", "2021-10-11", "2025-09-20"}
	wantBottoms := []string{"2015-04-30", "2018-12-09", "2022-10-11", "2026-09-20"}
	wantAnchors := []string{"2012-11-28", "2016-07-09", "2020-05-11", "2024-04-20"}

	if len(got.Anchors) != 4 || len(got.Tops) != 4 || len(got.Bottoms) != 4 {
		t.Fatalf("expected 4 parallel entries, got %d/%d/%d", len(got.Anchors), len(got.Tops), len(got.Bottoms))
	}
	for i := range wantAnchors {
		if got.Anchors[i].String() != wantAnchors[i] {
			t.Errorf("anchor %d: got %s, want %s", i, got.Anchors[i], wantAnchors[i])
		}
		if got.Tops[i].String() != wantTops[i] {
			t.Errorf("top %d: got %s, want %s", i, got.Tops[i], wantTops[i])
		}
		if got.Bottoms[i].String() != wantBottoms[i] {
			t.Errorf("bottom %d: got %s, want %s", i, got.Bottoms[i], wantBottoms[i])
		}
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	a := Default().Generate()
	b := Default().Generate()
	for i := range a.Anchors {
		if a.Anchors[i] != b.Anchors[i] || a.Tops[i] != b.Tops[i] || a.Bottoms[i] != b.Bottoms[i] {
			t.Fatalf("generation differs at %d", i)
		}
	}
}

func TestDefaultDoesNotAliasHalvings(t *testing.T) {
	table := Default()
	table.Anchors[0] = NewDate(1999, time.January, 1)
	if Halvings[0].Year != 2012 {
		t.Fatal("Default must copy the halving list")
	}
}

func TestOffsetsApplyUniformly(t *testing.T) {
	table, err := NewTable([]Date{NewDate(2028, time.April, 15)}, 10, 20)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	got := table.Generate()
	if got.Tops[0].String() != "2028-04-25" || got.Bottoms[0].String() != "2028-05-05" {
		t.Fatalf("unexpected projections: %s %s", got.Tops[0], got.Bottoms[0])
	}
}

func TestNewTableValidation(t *testing.T) {
	tests := []struct {
		name    string
		anchors []Date
		top     int
		bottom  int
	}{
		{"empty", nil, 1, 1},
		{"negative offset", []Date{NewDate(2020, 1, 1)}, -1, 1},
		{"unordered", []Date{NewDate(2020, 1, 1), NewDate(2016, 1, 1)}, 1, 1},
		{"duplicate", []Date{NewDate(2020, 1, 1), NewDate(2020, 1, 1)}, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTable(tt.anchors, tt.top, tt.bottom); !errors.Is(err, ErrInvalidTable) {
				t.Fatalf("expected ErrInvalidTable, got %v", err)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-04-20")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d != (Date{2024, time.April, 20}) {
		t.Fatalf("unexpected date %+v", d)
	}
	if _, err := ParseDate("20/04/2024"); err == nil {
		t.Fatal("expected error for non ISO date")
	}
}

func TestAddDaysCrossesLeapDay(t *testing.T) {
	if got := NewDate(2024, time.February, 28).AddDays(2).String(); got != "2024-03-01" {
		t.Fatalf("got %s, want 2024-03-01", got)
	}
}
