package workout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completed(index int, d IntervalDuration, watts float64) CompletedInterval {
	return CompletedInterval{Index: index, AveragePowerWatts: watts, Duration: d, SampleCount: 1}
}

func TestExpectedBaselineIndex(t *testing.T) {
	want := map[IntervalDuration]int{
		Interval10m: 1,
		Interval5m:  2,
		Interval3m:  3,
		Interval2m:  3,
		Interval1m:  3,
		Interval30s: 3,
		Interval15s: 3,
	}
	for _, d := range AllIntervalDurations {
		assert.Equal(t, want[d], ExpectedBaselineIndex(d), d.String())
	}
}

func TestBaselineSelector_PerDuration(t *testing.T) {
	for _, d := range AllIntervalDurations {
		t.Run(d.String(), func(t *testing.T) {
			s := NewBaselineSelector(d)
			selected := 0
			for index := 1; index <= 5; index++ {
				if s.Offer(completed(index, d, float64(300-index))) {
					require.Zero(t, selected, "baseline selected twice")
					selected = index
				}
			}
			assert.Equal(t, ExpectedBaselineIndex(d), selected)

			base, ok := s.Baseline()
			require.True(t, ok)
			assert.Equal(t, selected, base.Index)
			assert.Equal(t, float64(300-selected), base.AveragePowerWatts)
		})
	}
}

func TestBaselineSelector_NoSamplesNeverSelected(t *testing.T) {
	s := NewBaselineSelector(Interval3m)
	assert.False(t, s.Offer(completed(1, Interval3m, 300)))
	assert.False(t, s.Offer(completed(2, Interval3m, 300)))

	empty := CompletedInterval{Index: 3, Duration: Interval3m, NoSamples: true}
	assert.False(t, s.Offer(empty))
	_, ok := s.Baseline()
	assert.False(t, ok)

	// the next interval with samples qualifies on its own index
	assert.True(t, s.Offer(completed(4, Interval3m, 290)))
	base, ok := s.Baseline()
	require.True(t, ok)
	assert.Equal(t, 4, base.Index)
}

func TestBaselineSelector_DropoutAtThirdIntervalMovesBaselineToFourth(t *testing.T) {
	s := NewBaselineSelector(Interval30s)
	assert.False(t, s.Offer(completed(1, Interval30s, 300)))
	assert.False(t, s.Offer(completed(2, Interval30s, 300)))
	assert.False(t, s.Offer(CompletedInterval{Index: 3, Duration: Interval30s, NoSamples: true}))

	assert.True(t, s.Offer(completed(4, Interval30s, 300)))
	base, ok := s.Baseline()
	require.True(t, ok)
	assert.Equal(t, 4, base.Index)
	assert.Equal(t, 300.0, base.AveragePowerWatts)
}

func TestBaselineSelector_Idempotent(t *testing.T) {
	s := NewBaselineSelector(Interval10m)
	require.True(t, s.Offer(completed(1, Interval10m, 250)))

	for index := 2; index <= 6; index++ {
		assert.False(t, s.Offer(completed(index, Interval10m, 400)))
	}
	base, ok := s.Baseline()
	require.True(t, ok)
	assert.Equal(t, 1, base.Index)
	assert.Equal(t, 250.0, base.AveragePowerWatts)
}
