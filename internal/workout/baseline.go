package workout

// baselineWindowSeconds is the elapsed interval time after which an interval qualifies as baseline
const baselineWindowSeconds = 600

// baselineMaxIndex is the interval index from which an interval qualifies as
// baseline regardless of elapsed time
const baselineMaxIndex = 3

// CompletedInterval is the immutable record of a closed interval
type CompletedInterval struct {
	Index             int              `json:"index"`
	AveragePowerWatts float64          `json:"average_power_watts"`
	Duration          IntervalDuration `json:"duration"`
	SampleCount       int              `json:"sample_count"`
	NoSamples         bool             `json:"no_samples"`
}

// Baseline is the interval all later intervals are compared against
type Baseline struct {
	Index             int     `json:"index"`
	AveragePowerWatts float64 `json:"average_power_watts"`
}

// BaselineSelector picks the first interval with samples that is the third or
// later, or ends at least ten minutes of interval time. Once set it never changes.
type BaselineSelector struct {
	durationSeconds int
	baseline        *Baseline
}

func NewBaselineSelector(d IntervalDuration) BaselineSelector {
	return BaselineSelector{durationSeconds: d.Seconds()}
}

// Offer reports whether interval became the baseline on this call.
// Intervals without samples are never selected.
func (s *BaselineSelector) Offer(interval CompletedInterval) bool {
	if s.baseline != nil || interval.NoSamples {
		return false
	}
	if !qualifiesAsBaseline(interval.Index, s.durationSeconds) {
		return false
	}
	s.baseline = &Baseline{
		Index:             interval.Index,
		AveragePowerWatts: interval.AveragePowerWatts,
	}
	return true
}

// Baseline returns the selected baseline, false if none has been selected yet
func (s *BaselineSelector) Baseline() (Baseline, bool) {
	if s.baseline == nil {
		return Baseline{}, false
	}
	return *s.baseline, true
}

func qualifiesAsBaseline(index, durationSeconds int) bool {
	return index*durationSeconds >= baselineWindowSeconds || index >= baselineMaxIndex
}

// ExpectedBaselineIndex is the index that becomes baseline when every interval has samples
func ExpectedBaselineIndex(d IntervalDuration) int {
	for index := 1; index < baselineMaxIndex; index++ {
		if qualifiesAsBaseline(index, d.Seconds()) {
			return index
		}
	}
	return baselineMaxIndex
}
