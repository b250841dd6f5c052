// Package signals projects calendar markers from the Bitcoin halving dates.
package signals

import (
	"errors"
	"fmt"
	"time"
)

// Default day offsets from each halving.
const (
	DefaultTopOffsetDays    = 518
	DefaultBottomOffsetDays = 883
)

// ErrInvalidTable reports an unusable anchor table.
var ErrInvalidTable = errors.New("signals: invalid table")

// Date is a civil calendar date without a zone or time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate returns the normalized civil date (so Feb 30 becomes Mar 1 or 2).
func NewDate(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// ParseDate parses an ISO-8601 calendar date (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// AddDays returns the date n calendar days later.
func (d Date) AddDays(n int) Date {
	return NewDate(d.Year, d.Month, d.Day+n)
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// String formats the date as 2006-01-02.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// MarshalYAML renders the date as a plain scalar.
func (d Date) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Halvings are the historical Bitcoin block subsidy halvings.
var Halvings = []Date{
	{2012, time.November, 28},
	{2016, time.July, 9},
	{2020, time.May, 11},
	{2024, time.April, 20},
}

// Table is the anchor list and the uniform offsets applied to every anchor.
type Table struct {
	Anchors          []Date
	TopOffsetDays    int
	BottomOffsetDays int
}

// Signals are the anchors and their projections, parallel by index.
type Signals struct {
	Anchors []Date `json:"anchors" yaml:"anchors"`
	Tops    []Date `json:"tops" yaml:"tops"`
	Bottoms []Date `json:"bottoms" yaml:"bottoms"`
}

// Default returns the halving table with the 518/883 day offsets.
func Default() Table {
	anchors := make([]Date, len(Halvings))
	copy(anchors, Halvings)
	return Table{
		Anchors:          anchors,
		TopOffsetDays:    DefaultTopOffsetDays,
		BottomOffsetDays: DefaultBottomOffsetDays,
	}
}

// NewTable validates and returns a table. Anchors must be strictly
// increasing and offsets non-negative.
func NewTable(anchors []Date, topOffset, bottomOffset int) (Table, error) {
	if len(anchors) == 0 {
		return Table{}, fmt.Errorf("%w: no anchors", ErrInvalidTable)
	}
	if topOffset < 0 || bottomOffset < 0 {
		return Table{}, fmt.Errorf("%w: negative offset (top=%d bottom=%d)", ErrInvalidTable, topOffset, bottomOffset)
	}
	for i := 1; i < len(anchors); i++ {
		if !anchors[i-1].Before(anchors[i]) {
			return Table{}, fmt.Errorf("%w: anchor %s not after %s", ErrInvalidTable, anchors[i], anchors[i-1])
		}
	}
	out := make([]Date, len(anchors))
	copy(out, anchors)
	return Table{Anchors: out, TopOffsetDays: topOffset, BottomOffsetDays: bottomOffset}, nil
}

// Generate returns the anchors with their top and bottom projections.
func (t Table) Generate() Signals {
	s := Signals{
		Anchors: make([]Date, len(t.Anchors)),
		Tops:    make([]Date, len(t.Anchors)),
		Bottoms: make([]Date, len(t.Anchors)),
	}
	for i, a := range t.Anchors {
		s.Anchors[i] = a
		s.Tops[i] = a.AddDays(t.TopOffsetDays)
		s.Bottoms[i] = a.AddDays(t.BottomOffsetDays)
	}
	return s
}
