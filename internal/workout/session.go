package workout

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/events"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/go_func_utils"
)

// Trainer is the source of power samples and the sink for ERG targets
type Trainer interface {
	ListenToSamples(ch chan<- PowerSample) func()
	SetTargetPower(watts int16) error
}

// Timer is the part of *time.Timer the session needs
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d
type AfterFunc func(d time.Duration, f func()) Timer

// RealAfterFunc is AfterFunc backed by the runtime clock
func RealAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

const (
	sampleBufferSize = 64
	eventBufferSize  = 16
)

type SessionArgs struct {
	Config  Config
	Table   ThresholdTable
	Trainer Trainer
	Logger  *log.Logger

	// Optional
	AfterFunc AfterFunc
	Now       func() time.Time
	ID        string
}

// Session runs one workout: a single goroutine owns the snapshot and applies
// commands, samples and timer fires to it in arrival order.
type Session struct {
	id        string
	trainer   Trainer
	logger    *log.Logger
	afterFunc AfterFunc
	now       func() time.Time

	mu       sync.RWMutex
	snapshot Snapshot

	// owned by the loop goroutine
	timer Timer

	notificationEvent *events.ChannelEvent[Notification]
	terminatedChan    chan struct{}
	terminatedOnce    sync.Once

	eventChan      chan Event
	sampleChan     chan PowerSample
	powerChan      chan int16
	unlistenSample func()

	doneChan     chan struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// NewSession validates the protocol, subscribes to the trainer and starts the loop.
// The session waits in StateAwaitingStart until Start is called.
func NewSession(args SessionArgs) (*Session, error) {
	if args.Logger == nil {
		panic("Session: logger cannot be nil")
	}
	if args.Trainer == nil {
		panic("Session: trainer cannot be nil")
	}
	if args.ID == "" {
		args.ID = uuid.New().String()
	}
	if args.AfterFunc == nil {
		args.AfterFunc = RealAfterFunc
	}
	if args.Now == nil {
		args.Now = time.Now
	}

	snapshot, err := NewSnapshot(args.ID, args.Config, args.Table)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:                args.ID,
		trainer:           args.Trainer,
		logger:            args.Logger,
		afterFunc:         args.AfterFunc,
		now:               args.Now,
		snapshot:          snapshot,
		notificationEvent: events.NewChannelEvent[Notification](true),
		terminatedChan:    make(chan struct{}),
		eventChan:         make(chan Event, eventBufferSize),
		sampleChan:        make(chan PowerSample, sampleBufferSize),
		powerChan:         make(chan int16, 1),
		doneChan:          make(chan struct{}),
	}
	s.unlistenSample = args.Trainer.ListenToSamples(s.sampleChan)

	go_func_utils.SafeGoWait(s.logger, &s.wg, s.runLoop)
	go_func_utils.SafeGoWait(s.logger, &s.wg, s.runTargetPowerLoop)

	s.logger.Printf("Session: %s created (%s intervals, cutoff %.1f%%)", args.ID, args.Config.Duration, snapshot.CutoffPct)
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

// Snapshot returns a copy of the current session state
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// ListenToNotifications subscribes ch to state changes. The latest notification
// is replayed on subscribe. Returns the unsubscribe func.
func (s *Session) ListenToNotifications(ch chan<- Notification) func() {
	return s.notificationEvent.Listen(ch)
}

// Terminated is closed once the session reaches StateTerminated
func (s *Session) Terminated() <-chan struct{} {
	return s.terminatedChan
}

func (s *Session) Start() error {
	return s.post(StartCommand{At: s.now()})
}

func (s *Session) Stop() error {
	return s.post(StopCommand{At: s.now()})
}

// StopAndWait stops the session and waits until the stop has been applied or
// ctx is done. It returns the snapshot seen at that point.
func (s *Session) StopAndWait(ctx context.Context) (Snapshot, error) {
	if s.Snapshot().State.IsTerminal() {
		return s.Snapshot(), nil
	}
	if err := s.Stop(); err != nil {
		return s.Snapshot(), err
	}
	select {
	case <-s.terminatedChan:
		return s.Snapshot(), nil
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

// Shutdown stops the loop, pending timers and the trainer subscription.
// Safe to call multiple times.
func (s *Session) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.logger.Printf("Session: Shutting down")
		s.unlistenSample()
		close(s.doneChan)
		s.wg.Wait()
		s.cancelTimer()
		s.logger.Printf("Session: Shutdown complete")
	})
}

func (s *Session) post(ev Event) error {
	select {
	case <-s.doneChan:
		return ErrSessionClosed
	default:
	}
	select {
	case s.eventChan <- ev:
		return nil
	case <-s.doneChan:
		return ErrSessionClosed
	}
}

func (s *Session) runLoop() {
	for {
		select {
		case <-s.doneChan:
			s.logger.Printf("Session: Goroutine exiting")
			return
		case ev := <-s.eventChan:
			switch ev.(type) {
			case IntervalElapsed, RestElapsed:
				s.drainSamples()
			}
			s.apply(ev)
		case sample := <-s.sampleChan:
			s.apply(SampleReceived{Sample: sample})
		}
	}
}

// drainSamples applies every sample already queued, so a timer fire never
// overtakes samples delivered before it
func (s *Session) drainSamples() {
	for {
		select {
		case sample := <-s.sampleChan:
			s.apply(SampleReceived{Sample: sample})
		default:
			return
		}
	}
}

// apply transitions under the lock, then runs the effects without it
func (s *Session) apply(ev Event) {
	effects := func() []Effect {
		s.mu.Lock()
		defer s.mu.Unlock()
		next, effects := Transition(s.snapshot, ev)
		s.snapshot = next
		return effects
	}()

	for _, effect := range effects {
		s.run(effect)
	}
}

func (s *Session) run(effect Effect) {
	switch e := effect.(type) {
	case NotifyEffect:
		s.publish(e.Notification)
	case ScheduleIntervalEffect:
		index := e.Index
		s.schedule(e.After, func() { _ = s.post(IntervalElapsed{Index: index, At: s.now()}) })
	case ScheduleRestEffect:
		index := e.Index
		s.schedule(e.After, func() { _ = s.post(RestElapsed{Index: index, At: s.now()}) })
	case CancelTimersEffect:
		s.cancelTimer()
	case SetTargetPowerEffect:
		s.queueTargetPower(e.Watts)
		s.logger.Printf("Session: %s target %d W", e.Phase, e.Watts)
	}
}

func (s *Session) publish(n Notification) {
	switch {
	case n.Err != nil:
		s.logger.Printf("Session: #%d %s: %v", n.Seq, n.StateName, n.Err)
	case n.Interval != nil && n.DropPct != nil:
		s.logger.Printf("Session: #%d interval %d avg %.1f W, drop %.2f%% (cutoff %.1f%%) -> %s",
			n.Seq, n.Interval.Index, n.Interval.AveragePowerWatts, *n.DropPct, n.CutoffPct, n.StateName)
	case n.Interval != nil:
		s.logger.Printf("Session: #%d interval %d avg %.1f W -> %s", n.Seq, n.Interval.Index, n.Interval.AveragePowerWatts, n.StateName)
	default:
		s.logger.Printf("Session: #%d %s", n.Seq, n.StateName)
	}

	s.notificationEvent.Notify(n)

	if n.State.IsTerminal() {
		s.terminatedOnce.Do(func() {
			s.logger.Printf("Session: terminated, %s", n.ReasonText)
			close(s.terminatedChan)
		})
	}
}

// schedule replaces the pending timer; a session never has more than one
func (s *Session) schedule(d time.Duration, f func()) {
	s.cancelTimer()
	s.timer = s.afterFunc(d, f)
}

func (s *Session) cancelTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// queueTargetPower keeps only the newest pending target
func (s *Session) queueTargetPower(watts int16) {
	for {
		select {
		case s.powerChan <- watts:
			return
		default:
		}
		select {
		case <-s.powerChan:
		default:
		}
	}
}

func (s *Session) runTargetPowerLoop() {
	for {
		select {
		case <-s.doneChan:
			return
		case watts := <-s.powerChan:
			if err := s.trainer.SetTargetPower(watts); err != nil {
				s.logger.Printf("Session: Failed to set target power: %v", err)
			}
		}
	}
}
