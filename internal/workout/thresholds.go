package workout

import (
	"fmt"
	"time"
)

// IntervalDuration is one of the supported work interval lengths
type IntervalDuration time.Duration

const (
	Interval15s IntervalDuration = IntervalDuration(15 * time.Second)
	Interval30s IntervalDuration = IntervalDuration(30 * time.Second)
	Interval1m  IntervalDuration = IntervalDuration(1 * time.Minute)
	Interval2m  IntervalDuration = IntervalDuration(2 * time.Minute)
	Interval3m  IntervalDuration = IntervalDuration(3 * time.Minute)
	Interval5m  IntervalDuration = IntervalDuration(5 * time.Minute)
	Interval10m IntervalDuration = IntervalDuration(10 * time.Minute)
)

// AllIntervalDurations lists the supported durations, shortest first
var AllIntervalDurations = []IntervalDuration{
	Interval15s,
	Interval30s,
	Interval1m,
	Interval2m,
	Interval3m,
	Interval5m,
	Interval10m,
}

// ParseIntervalDuration accepts Go duration strings ("3m", "30s", "10m0s")
func ParseIntervalDuration(s string) (IntervalDuration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrUnsupportedDuration, s, err)
	}
	candidate := IntervalDuration(d)
	if !candidate.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedDuration, d)
	}
	return candidate, nil
}

// Valid reports whether d is one of AllIntervalDurations
func (d IntervalDuration) Valid() bool {
	for _, supported := range AllIntervalDurations {
		if d == supported {
			return true
		}
	}
	return false
}

func (d IntervalDuration) Duration() time.Duration {
	return time.Duration(d)
}

func (d IntervalDuration) Seconds() int {
	return int(time.Duration(d) / time.Second)
}

func (d IntervalDuration) String() string {
	return time.Duration(d).String()
}

// ThresholdRange is the tolerated power drop, in percent, for one interval duration
type ThresholdRange struct {
	MinDropPct float64
	MaxDropPct float64
}

// Cutoff picks the single drop percentage that ends the workout.
// strictness 0 returns MaxDropPct, strictness 1 returns MinDropPct.
func (r ThresholdRange) Cutoff(strictness float64) (float64, error) {
	if strictness < 0 || strictness > 1 {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidStrictness, strictness)
	}
	return r.MaxDropPct - strictness*(r.MaxDropPct-r.MinDropPct), nil
}

// ThresholdTable maps each supported duration to its threshold range.
// Build it once with NewThresholdTable and share it; it is never mutated.
type ThresholdTable struct {
	ranges map[IntervalDuration]ThresholdRange
}

func NewThresholdTable() ThresholdTable {
	return ThresholdTable{
		ranges: map[IntervalDuration]ThresholdRange{
			Interval10m: {MinDropPct: 4, MaxDropPct: 6},
			Interval5m:  {MinDropPct: 5, MaxDropPct: 7},
			Interval3m:  {MinDropPct: 8, MaxDropPct: 9},
			Interval2m:  {MinDropPct: 10, MaxDropPct: 12},
			Interval1m:  {MinDropPct: 10, MaxDropPct: 12},
			Interval30s: {MinDropPct: 10, MaxDropPct: 12},
			Interval15s: {MinDropPct: 10, MaxDropPct: 15},
		},
	}
}

// Lookup returns the range for d, false if d is not a supported duration
func (t ThresholdTable) Lookup(d IntervalDuration) (ThresholdRange, bool) {
	r, ok := t.ranges[d]
	return r, ok
}
