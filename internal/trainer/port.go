package trainer

import (
	"context"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/workout"
)

// Port is a power source a session can ride against: a BLE trainer or the demo generator
type Port interface {
	workout.Trainer

	Name() string
	// Start connects and begins delivering samples
	Start(ctx context.Context) error
	ListenToStatus(ch chan<- Status) func()
	Shutdown()
}

// clampWatts floors negative readings, some meters report them while coasting
func clampWatts(watts float64) float64 {
	if watts < 0 {
		return 0
	}
	return watts
}
