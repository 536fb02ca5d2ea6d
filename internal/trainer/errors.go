package trainer

import "errors"

var (
	// ErrDevice wraps every failure to reach or set up the trainer
	ErrDevice = errors.New("trainer: device error")

	ErrNoAddress          = errors.New("trainer: no device address configured")
	ErrNotConnected       = errors.New("trainer: not connected")
	ErrControlNotAcquired = errors.New("trainer: control not acquired")
	ErrNoPowerStream      = errors.New("trainer: no power characteristic")

	ErrShortPayload = errors.New("trainer: payload too short")
	ErrNoPowerField = errors.New("trainer: payload carries no power")
)
