package workout

// DropResult is the outcome of comparing one interval against the baseline
type DropResult struct {
	DropPct         float64
	CutoffPct       float64
	ShouldTerminate bool
}

// EvaluateDrop computes the percentage drop of intervalWatts from baselineWatts.
// A negative drop means the interval was stronger than the baseline.
func EvaluateDrop(baselineWatts, intervalWatts, cutoffPct float64) (DropResult, error) {
	if baselineWatts <= 0 {
		return DropResult{CutoffPct: cutoffPct}, ErrInvalidBaseline
	}
	drop := (baselineWatts - intervalWatts) / baselineWatts * 100
	return DropResult{
		DropPct:         drop,
		CutoffPct:       cutoffPct,
		ShouldTerminate: drop >= cutoffPct,
	}, nil
}
