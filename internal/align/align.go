// Package align snaps calendar targets onto the timestamps of a bar series.
//
// Every comparison happens between UTC instants. A target either already is
// an instant (Aware) or is a wall clock without a zone (Naive); the latter is
// localized once, in the resolver's location, before any search.
package align

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrTimeComparison reports a target that cannot be reconciled with the
	// series' timezone.
	ErrTimeComparison = errors.New("align: cannot reconcile target with series timezone")
	// ErrNoTimestamps reports an empty timestamp sequence.
	ErrNoTimestamps = errors.New("align: no timestamps to align against")
)

// Target is a calendar instant to align. The zero value is an aware
// target at the zero time.
type Target struct {
	at    time.Time
	naive bool
}

// Aware wraps an instant whose zone is meaningful.
func Aware(t time.Time) Target {
	return Target{at: t}
}

// Naive wraps a wall clock reading. Only the year through nanosecond fields
// of t are used; its location is ignored.
func Naive(t time.Time) Target {
	return Target{
		at:    time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC),
		naive: true,
	}
}

// NaiveDate is midnight of the given civil date, zone unspecified.
func NaiveDate(year int, month time.Month, day int) Target {
	return Target{at: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), naive: true}
}

// IsNaive reports whether the target lacks a zone.
func (t Target) IsNaive() bool { return t.naive }

// String formats the target, marking naive wall clocks.
func (t Target) String() string {
	if t.naive {
		return t.at.Format("2006-01-02T15:04:05.999999999") + " (naive)"
	}
	return t.at.Format(time.RFC3339Nano)
}

// Resolver aligns targets against bar timestamps recorded in one location.
type Resolver struct {
	loc *time.Location
}

// NewResolver returns a resolver that localizes naive targets in loc. A nil
// loc makes every naive target fail with ErrTimeComparison.
func NewResolver(loc *time.Location) *Resolver {
	return &Resolver{loc: loc}
}

// Location returns the zone used for naive targets.
func (r *Resolver) Location() *time.Location { return r.loc }

// Normalize converts target to a UTC instant.
func (r *Resolver) Normalize(target Target) (time.Time, error) {
	if !target.naive {
		return target.at.UTC(), nil
	}
	if r.loc == nil {
		return time.Time{}, fmt.Errorf("%w: naive target %s and no series location", ErrTimeComparison, target)
	}

	wall := target.at
	var found []time.Time
	for _, offset := range r.candidateOffsets(wall) {
		cand := wall.Add(-time.Duration(offset) * time.Second)
		if _, got := cand.In(r.loc).Zone(); got != offset {
			continue
		}
		if !containsInstant(found, cand) {
			found = append(found, cand)
		}
	}

	switch len(found) {
	case 0:
		return time.Time{}, fmt.Errorf("%w: %s does not exist in %s", ErrTimeComparison, target, r.loc)
	case 1:
		return found[0].UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %s is ambiguous in %s", ErrTimeComparison, target, r.loc)
	}
}

// candidateOffsets lists the UTC offsets in effect around the wall clock.
// Transitions are at least a day apart in every real zone, so sampling a
// day either side covers both sides of any transition.
func (r *Resolver) candidateOffsets(wall time.Time) []int {
	var offsets []int
	for _, shift := range []time.Duration{-24 * time.Hour, 0, 24 * time.Hour} {
		_, offset := wall.Add(shift).In(r.loc).Zone()
		seen := false
		for _, o := range offsets {
			if o == offset {
				seen = true
				break
			}
		}
		if !seen {
			offsets = append(offsets, offset)
		}
	}
	return offsets
}

func containsInstant(list []time.Time, t time.Time) bool {
	for _, v := range list {
		if v.Equal(t) {
			return true
		}
	}
	return false
}

// NearestIndex returns the index of the stamp closest to target. stamps must
// be strictly increasing. Ties go to the earlier stamp; targets outside the
// sequence resolve to the nearest edge.
func (r *Resolver) NearestIndex(target Target, stamps []time.Time) (int, error) {
	if len(stamps) == 0 {
		return 0, ErrNoTimestamps
	}
	at, err := r.Normalize(target)
	if err != nil {
		return 0, err
	}

	i := sort.Search(len(stamps), func(i int) bool {
		return !stamps[i].Before(at)
	})
	switch {
	case i == 0:
		return 0, nil
	case i == len(stamps):
		return len(stamps) - 1, nil
	}
	if at.Sub(stamps[i-1]) <= stamps[i].Sub(at) {
		return i - 1, nil
	}
	return i, nil
}

// Nearest returns the stamp closest to target, as recorded in stamps.
func (r *Resolver) Nearest(target Target, stamps []time.Time) (time.Time, error) {
	i, err := r.NearestIndex(target, stamps)
	if err != nil {
		return time.Time{}, err
	}
	return stamps[i], nil
}
