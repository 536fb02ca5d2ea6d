package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/bt"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/events"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/workout"
)

type BLEPortArgs struct {
	Manager bt.BTManagerInterface
	Address string
	Logger  *log.Logger

	// WatchControlPoint subscribes to control point indications. Off by default:
	// enabling indications next to data notifications stalls some BLE stacks.
	WatchControlPoint bool
	Now               func() time.Time
}

// BLEPort reads power from a trainer over BLE and drives its ERG target through FTMS
type BLEPort struct {
	manager           bt.BTManagerInterface
	address           string
	logger            *log.Logger
	watchControlPoint bool
	now               func() time.Time

	mu            sync.RWMutex
	device        bt.BTDevice
	status        Status
	unlistenState func()

	samplesEvent *events.ChannelEvent[workout.PowerSample]
	statusEvent  *events.ChannelEvent[Status]
}

var _ Port = (*BLEPort)(nil)

func NewBLEPort(args BLEPortArgs) *BLEPort {
	if args.Manager == nil {
		panic("BLEPort: manager cannot be nil")
	}
	if args.Logger == nil {
		panic("BLEPort: logger cannot be nil")
	}
	if args.Now == nil {
		args.Now = time.Now
	}
	return &BLEPort{
		manager:           args.Manager,
		address:           args.Address,
		logger:            args.Logger,
		watchControlPoint: args.WatchControlPoint,
		now:               args.Now,
		status:            Status{Source: "ble", Address: args.Address},
		samplesEvent:      events.NewChannelEvent[workout.PowerSample](false),
		statusEvent:       events.NewChannelEvent[Status](true),
	}
}

func (p *BLEPort) Name() string {
	return fmt.Sprintf("trainer %s", p.address)
}

// Start connects by address, subscribes to the first power stream the trainer
// offers and requests FTMS control. Failing to get control is not fatal.
func (p *BLEPort) Start(ctx context.Context) error {
	if p.address == "" {
		return fmt.Errorf("%w: %w", ErrDevice, ErrNoAddress)
	}
	if err := p.manager.Enable(); err != nil {
		return p.fail(fmt.Errorf("%w: enable adapter: %w", ErrDevice, err))
	}

	device, err := p.manager.ConnectByAddress(ctx, p.address)
	if err != nil {
		return p.fail(fmt.Errorf("%w: %w", ErrDevice, err))
	}
	unlisten := device.ListenToState(p.onDeviceState)
	p.mu.Lock()
	p.device = device
	p.unlistenState = unlisten
	p.mu.Unlock()

	stream, err := p.subscribe(device)
	if err != nil {
		return p.fail(fmt.Errorf("%w: %w", ErrDevice, err))
	}
	p.update(func(s *Status) { s.Stream = stream.ID })

	if err := p.requestControl(device); err != nil {
		p.logger.Printf("BLEPort: Trainer control unavailable, ERG targets will be skipped: %v", err)
	}
	return nil
}

func (p *BLEPort) subscribe(device bt.BTDevice) (PowerStream, error) {
	for _, stream := range AllPowerStreams {
		p.logger.Printf("BLEPort: Enabling notifications on %s", stream.DisplayName)
		err := device.EnableNotifications(stream.ServiceUUID, stream.CharacteristicUUID, p.notificationHandler(stream))
		if err == nil {
			p.logger.Printf("BLEPort: Subscribed to %s", stream.DisplayName)
			return stream, nil
		}
		p.logger.Printf("BLEPort: %s unavailable: %v", stream.DisplayName, err)
	}
	return PowerStream{}, ErrNoPowerStream
}

func (p *BLEPort) notificationHandler(stream PowerStream) func(buf []byte) {
	return func(buf []byte) {
		watts, err := stream.Parse(buf)
		if errors.Is(err, ErrNoPowerField) {
			return
		}
		if err != nil {
			p.logger.Printf("BLEPort: Error parsing %s: %v", stream.DisplayName, err)
			return
		}
		p.samplesEvent.Notify(workout.PowerSample{Timestamp: p.now(), Watts: clampWatts(watts)})
	}
}

// requestControl sends Request Control then Start. Some trainers require Start
// before they accept target power, others reject it; only the first write must succeed.
func (p *BLEPort) requestControl(device bt.BTDevice) error {
	if p.watchControlPoint {
		err := device.EnableNotifications(ServiceUUIDFTMS, CharUUIDFTMSControlPoint, p.controlPointHandler)
		if err != nil {
			p.logger.Printf("BLEPort: Control point indications unavailable: %v", err)
		}
	}

	if err := device.WriteCharacteristic(ServiceUUIDFTMS, CharUUIDFTMSControlPoint, []byte{FTMSOpCodeRequestControl}); err != nil {
		return fmt.Errorf("request control: %w", err)
	}
	if err := device.WriteCharacteristic(ServiceUUIDFTMS, CharUUIDFTMSControlPoint, []byte{FTMSOpCodeStartOrResume}); err != nil {
		p.logger.Printf("BLEPort: Start command failed (may not be required): %v", err)
	}

	p.update(func(s *Status) { s.ControlAcquired = true })
	p.logger.Printf("BLEPort: Trainer control acquired")
	return nil
}

func (p *BLEPort) controlPointHandler(buf []byte) {
	response, err := ParseControlPointResponse(buf)
	if err != nil {
		p.logger.Printf("BLEPort: %v", err)
		return
	}
	p.logger.Printf("BLEPort: FTMS Control Point: %s", response)
	if response.RequestOpCode == FTMSOpCodeRequestControl && response.Result == FTMSResultControlNotPermitted {
		p.update(func(s *Status) { s.ControlAcquired = false })
	}
}

// SetTargetPower writes an ERG target, clamped to the FTMS range
func (p *BLEPort) SetTargetPower(watts int16) error {
	p.mu.RLock()
	device := p.device
	controlAcquired := p.status.ControlAcquired
	p.mu.RUnlock()

	if device == nil || !device.IsConnected() {
		return ErrNotConnected
	}
	if !controlAcquired {
		return ErrControlNotAcquired
	}

	watts = ClampTargetPower(watts)
	p.logger.Printf("BLEPort: Setting target power to %d W", watts)
	if err := device.WriteCharacteristic(ServiceUUIDFTMS, CharUUIDFTMSControlPoint, EncodeSetTargetPower(watts)); err != nil {
		return fmt.Errorf("set target power: %w", err)
	}
	p.update(func(s *Status) { s.TargetPowerWatts = watts })
	return nil
}

func (p *BLEPort) ListenToSamples(ch chan<- workout.PowerSample) func() {
	return p.samplesEvent.Listen(ch)
}

func (p *BLEPort) ListenToStatus(ch chan<- Status) func() {
	return p.statusEvent.Listen(ch)
}

// Shutdown unsubscribes and disconnects, then releases the adapter
func (p *BLEPort) Shutdown() {
	p.logger.Printf("BLEPort: Shutting down")
	p.mu.Lock()
	device := p.device
	unlisten := p.unlistenState
	p.device = nil
	p.unlistenState = nil
	p.mu.Unlock()

	if unlisten != nil {
		unlisten()
	}

	if device != nil {
		p.mu.RLock()
		stream, ok := GetPowerStreamByID(p.status.Stream)
		p.mu.RUnlock()
		if ok {
			if err := device.DisableNotifications(stream.ServiceUUID, stream.CharacteristicUUID); err != nil {
				p.logger.Printf("BLEPort: Error disabling notifications: %v", err)
			}
		}
		if err := p.manager.Disconnect(device); err != nil {
			p.logger.Printf("BLEPort: Error disconnecting: %v", err)
		}
	}
	p.manager.Shutdown()
	p.update(func(s *Status) {
		s.Connected = false
		s.ControlAcquired = false
	})
	p.logger.Printf("BLEPort: Shutdown complete")
}

// onDeviceState mirrors the link state into Status. A drop mid-session leaves
// the session running; it sees no samples until the link comes back.
func (p *BLEPort) onDeviceState(state bt.BTDeviceState) {
	switch state {
	case bt.Connected:
		p.update(func(s *Status) {
			s.Connected = true
			s.Err = nil
		})
	case bt.Disconnected:
		p.logger.Printf("BLEPort: Link to %s lost", p.address)
		p.update(func(s *Status) {
			s.Connected = false
			s.ControlAcquired = false
			s.Err = fmt.Errorf("%w: link lost", ErrNotConnected)
		})
	}
}

func (p *BLEPort) fail(err error) error {
	p.logger.Printf("BLEPort: %v", err)
	p.update(func(s *Status) { s.Err = err })
	return err
}

// update mutates the status under the lock and publishes the result after it
func (p *BLEPort) update(fn func(s *Status)) {
	status := func() Status {
		p.mu.Lock()
		defer p.mu.Unlock()
		fn(&p.status)
		return p.status
	}()
	p.statusEvent.Notify(status)
}
