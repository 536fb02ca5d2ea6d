package trainer

import (
	"context"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/events"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/workout"
)

type DemoPortArgs struct {
	Logger *log.Logger

	// Optional
	BaseWatts          float64
	FadeWattsPerMinute float64
	SampleInterval     time.Duration
	Seed               uint64 // 0 seeds from the clock
	Now                func() time.Time
}

// DemoPort is a synthetic power meter: jitter around a wandering base that fades
// over time. With an ERG target set, the base follows the target instead.
type DemoPort struct {
	logger   *log.Logger
	interval time.Duration
	fade     float64
	now      func() time.Time

	mu      sync.Mutex
	rng     *rand.Rand
	base    float64
	drift   float64
	target  int16
	started time.Time
	status  Status

	samplesEvent *events.ChannelEvent[workout.PowerSample]
	statusEvent  *events.ChannelEvent[Status]

	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

var _ Port = (*DemoPort)(nil)

func NewDemoPort(args DemoPortArgs) *DemoPort {
	if args.Logger == nil {
		panic("DemoPort: logger cannot be nil")
	}
	if args.BaseWatts <= 0 {
		args.BaseWatts = DefaultDemoBaseWatts
	}
	if args.SampleInterval <= 0 {
		args.SampleInterval = DefaultDemoSampleInterval
	}
	if args.Now == nil {
		args.Now = time.Now
	}
	if args.Seed == 0 {
		args.Seed = uint64(args.Now().UnixNano())
	}
	return &DemoPort{
		logger:       args.Logger,
		interval:     args.SampleInterval,
		fade:         args.FadeWattsPerMinute,
		now:          args.Now,
		rng:          rand.New(rand.NewPCG(args.Seed, args.Seed>>1|1)),
		base:         args.BaseWatts,
		status:       Status{Source: "demo", Stream: StreamDemo},
		samplesEvent: events.NewChannelEvent[workout.PowerSample](false),
		statusEvent:  events.NewChannelEvent[Status](true),
	}
}

func (d *DemoPort) Name() string {
	return "demo power source"
}

// Start emits one sample per interval until ctx is done or Shutdown is called
func (d *DemoPort) Start(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)

	d.mu.Lock()
	d.started = d.now()
	d.status.Connected = true
	d.status.ControlAcquired = true
	status := d.status
	d.mu.Unlock()
	d.statusEvent.Notify(status)

	d.logger.Printf("DemoPort: Generating samples every %v", d.interval)
	go_func_utils.SafeGoWait(d.logger, &d.wg, func() {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				d.logger.Printf("DemoPort: Goroutine exiting")
				return
			case <-ticker.C:
				now := d.now()
				d.samplesEvent.Notify(workout.PowerSample{Timestamp: now, Watts: d.Next(now)})
			}
		}
	})
	return nil
}

// Next produces the sample for time now
func (d *DemoPort) Next(now time.Time) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	base := d.base
	if d.target > 0 {
		base = float64(d.target)
	}
	if !d.started.IsZero() && d.fade > 0 {
		base -= d.fade * now.Sub(d.started).Minutes()
	}

	jitter := float64(d.rng.IntN(2*demoJitterWatts+1) - demoJitterWatts)
	d.drift += d.rng.Float64()*2*demoDriftStepWatts - demoDriftStepWatts
	d.drift = max(-demoDriftLimitWatts, min(demoDriftLimitWatts, d.drift))

	return clampWatts(base + jitter + d.drift)
}

// SetTargetPower moves the generated base to the ERG target
func (d *DemoPort) SetTargetPower(watts int16) error {
	watts = ClampTargetPower(watts)
	status := func() Status {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.target = watts
		d.status.TargetPowerWatts = watts
		return d.status
	}()
	d.statusEvent.Notify(status)
	d.logger.Printf("DemoPort: Target power %d W", watts)
	return nil
}

func (d *DemoPort) ListenToSamples(ch chan<- workout.PowerSample) func() {
	return d.samplesEvent.Listen(ch)
}

func (d *DemoPort) ListenToStatus(ch chan<- Status) func() {
	return d.statusEvent.Listen(ch)
}

func (d *DemoPort) Shutdown() {
	d.shutdownOnce.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		d.wg.Wait()
		d.logger.Printf("DemoPort: Shutdown complete")
	})
}
