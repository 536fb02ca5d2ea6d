package workout

import "errors"

var (
	// ErrNoSamples is reported when an interval closes without a single power sample
	ErrNoSamples = errors.New("workout: interval closed with no samples")

	// ErrInvalidBaseline is reported when the baseline average is not positive
	ErrInvalidBaseline = errors.New("workout: baseline power must be positive")

	// ErrInvalidTransition is reported when a command is not allowed in the current state
	ErrInvalidTransition = errors.New("workout: invalid transition")

	ErrIntervalClosed      = errors.New("workout: interval already closed")
	ErrUnsupportedDuration = errors.New("workout: unsupported interval duration")
	ErrInvalidStrictness   = errors.New("workout: strictness must be within [0,1]")
)

// ErrSessionClosed is returned by commands issued after Shutdown
var ErrSessionClosed = errors.New("workout: session is shut down")
