package workout

import (
	"fmt"
	"time"
)

// ERGTargets are the target powers sent to the trainer on phase changes
type ERGTargets struct {
	Enabled   bool
	WorkWatts int16
	RestWatts int16
}

// Config is the protocol for one session. It is fixed once the session starts.
type Config struct {
	Duration     IntervalDuration
	Rest         time.Duration
	MaxIntervals int // 0 means no ceiling
	Strictness   float64
	ERG          ERGTargets
}

func (c Config) Validate() error {
	if !c.Duration.Valid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedDuration, c.Duration)
	}
	if c.Strictness < 0 || c.Strictness > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidStrictness, c.Strictness)
	}
	if c.Rest < 0 {
		return fmt.Errorf("workout: rest must not be negative, got %s", c.Rest)
	}
	if c.MaxIntervals < 0 {
		return fmt.Errorf("workout: max intervals must not be negative, got %d", c.MaxIntervals)
	}
	return nil
}
