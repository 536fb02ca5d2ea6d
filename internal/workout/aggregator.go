package workout

import "time"

// PowerSample is a single power reading delivered by a trainer
type PowerSample struct {
	Timestamp time.Time `json:"timestamp"`
	Watts     float64   `json:"watts"`
}

// Aggregator keeps a running sum and count for the interval in progress.
// Raw samples are not retained.
type Aggregator struct {
	sum    float64
	count  int
	closed bool
}

// NewAggregator returns an open aggregator with no samples
func NewAggregator() Aggregator {
	return Aggregator{}
}

// Add folds a sample into the running sum
func (a *Aggregator) Add(sample PowerSample) error {
	if a.closed {
		return ErrIntervalClosed
	}
	watts := sample.Watts
	if watts < 0 {
		watts = 0
	}
	a.sum += watts
	a.count++
	return nil
}

// Close ends the window and returns the average power.
// A window that saw no samples returns ErrNoSamples.
func (a *Aggregator) Close() (float64, error) {
	if a.closed {
		return 0, ErrIntervalClosed
	}
	a.closed = true
	if a.count == 0 {
		return 0, ErrNoSamples
	}
	return a.sum / float64(a.count), nil
}

// Average is the running average, false while no sample has been added
func (a *Aggregator) Average() (float64, bool) {
	if a.count == 0 {
		return 0, false
	}
	return a.sum / float64(a.count), true
}

func (a *Aggregator) Count() int {
	return a.count
}

func (a *Aggregator) IsClosed() bool {
	return a.closed
}
