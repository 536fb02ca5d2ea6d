package workout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholdTable_CoversEveryDuration(t *testing.T) {
	table := NewThresholdTable()

	for _, d := range AllIntervalDurations {
		r, ok := table.Lookup(d)
		require.True(t, ok, "missing range for %s", d)
		assert.Greater(t, r.MinDropPct, 0.0, d.String())
		assert.LessOrEqual(t, r.MinDropPct, r.MaxDropPct, d.String())
		assert.Less(t, r.MaxDropPct, 100.0, d.String())
	}
}

func TestThresholdTable_Values(t *testing.T) {
	table := NewThresholdTable()

	tests := []struct {
		duration IntervalDuration
		min, max float64
	}{
		{Interval10m, 4, 6},
		{Interval5m, 5, 7},
		{Interval3m, 8, 9},
		{Interval2m, 10, 12},
		{Interval1m, 10, 12},
		{Interval30s, 10, 12},
		{Interval15s, 10, 15},
	}
	for _, tt := range tests {
		t.Run(tt.duration.String(), func(t *testing.T) {
			r, ok := table.Lookup(tt.duration)
			require.True(t, ok)
			assert.Equal(t, tt.min, r.MinDropPct)
			assert.Equal(t, tt.max, r.MaxDropPct)
		})
	}
}

func TestThresholdTable_Lookup_Unsupported(t *testing.T) {
	_, ok := NewThresholdTable().Lookup(IntervalDuration(4 * time.Minute))
	assert.False(t, ok)
}

func TestThresholdRange_Cutoff(t *testing.T) {
	r := ThresholdRange{MinDropPct: 8, MaxDropPct: 9}

	cutoff, err := r.Cutoff(0)
	require.NoError(t, err)
	assert.Equal(t, 9.0, cutoff)

	cutoff, err = r.Cutoff(1)
	require.NoError(t, err)
	assert.Equal(t, 8.0, cutoff)

	cutoff, err = r.Cutoff(0.5)
	require.NoError(t, err)
	assert.InDelta(t, 8.5, cutoff, 1e-9)
}

func TestThresholdRange_Cutoff_OutOfRange(t *testing.T) {
	r := ThresholdRange{MinDropPct: 4, MaxDropPct: 6}

	_, err := r.Cutoff(-0.1)
	assert.ErrorIs(t, err, ErrInvalidStrictness)

	_, err = r.Cutoff(1.1)
	assert.ErrorIs(t, err, ErrInvalidStrictness)
}

func TestParseIntervalDuration(t *testing.T) {
	tests := []struct {
		in   string
		want IntervalDuration
	}{
		{"15s", Interval15s},
		{"30s", Interval30s},
		{"1m", Interval1m},
		{"2m0s", Interval2m},
		{"3m", Interval3m},
		{"300s", Interval5m},
		{"10m0s", Interval10m},
	}
	for _, tt := range tests {
		got, err := ParseIntervalDuration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseIntervalDuration_Invalid(t *testing.T) {
	for _, in := range []string{"", "4m", "abc", "-3m", "1h"} {
		_, err := ParseIntervalDuration(in)
		assert.ErrorIs(t, err, ErrUnsupportedDuration, in)
	}
}

func TestIntervalDuration_Seconds(t *testing.T) {
	assert.Equal(t, 15, Interval15s.Seconds())
	assert.Equal(t, 180, Interval3m.Seconds())
	assert.Equal(t, 600, Interval10m.Seconds())
	assert.Equal(t, "3m0s", Interval3m.String())
}
