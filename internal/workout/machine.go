package workout

import (
	"fmt"
	"slices"
	"time"
)

// State is the lifecycle state of a workout session
type State int

const (
	StateAwaitingStart   State = iota // Created, waiting for the start command
	StateIntervalActive               // Collecting samples for the current interval
	StateIntervalClosing              // Interval window elapsed, result being evaluated
	StateContinuing                   // Interval accepted, resting before the next one
	StateTerminated                   // Session over, no further intervals
)

func (s State) String() string {
	switch s {
	case StateAwaitingStart:
		return "AwaitingStart"
	case StateIntervalActive:
		return "IntervalActive"
	case StateIntervalClosing:
		return "IntervalClosing"
	case StateContinuing:
		return "Continuing"
	case StateTerminated:
		return "Terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) IsTerminal() bool {
	return s == StateTerminated
}

// TerminationReason records why a session reached StateTerminated
type TerminationReason int

const (
	ReasonNone TerminationReason = iota
	ReasonDropThreshold
	ReasonManualStop
	ReasonRepeatLimit
)

func (r TerminationReason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonDropThreshold:
		return "power drop reached cutoff"
	case ReasonManualStop:
		return "stopped by rider"
	case ReasonRepeatLimit:
		return "interval limit reached"
	default:
		return fmt.Sprintf("TerminationReason(%d)", int(r))
	}
}

// Phase tells the trainer which part of the protocol is being ridden
type Phase int

const (
	PhaseWork Phase = iota
	PhaseRest
)

func (p Phase) String() string {
	if p == PhaseRest {
		return "rest"
	}
	return "work"
}

// --- Events ---

// Event is anything the session loop consumes
type Event interface {
	isEvent()
}

type StartCommand struct{ At time.Time }

type StopCommand struct{ At time.Time }

type SampleReceived struct{ Sample PowerSample }

// IntervalElapsed fires when the work window for Index has run its full duration
type IntervalElapsed struct {
	Index int
	At    time.Time
}

// RestElapsed fires when the rest after interval Index is over
type RestElapsed struct {
	Index int
	At    time.Time
}

func (StartCommand) isEvent()    {}
func (StopCommand) isEvent()     {}
func (SampleReceived) isEvent()  {}
func (IntervalElapsed) isEvent() {}
func (RestElapsed) isEvent()     {}

// --- Effects ---

// Effect is work the session runtime performs after a transition
type Effect interface {
	isEffect()
}

type NotifyEffect struct{ Notification Notification }

type ScheduleIntervalEffect struct {
	Index int
	After time.Duration
}

type ScheduleRestEffect struct {
	Index int
	After time.Duration
}

type CancelTimersEffect struct{}

type SetTargetPowerEffect struct {
	Watts int16
	Phase Phase
}

func (NotifyEffect) isEffect()           {}
func (ScheduleIntervalEffect) isEffect() {}
func (ScheduleRestEffect) isEffect()     {}
func (CancelTimersEffect) isEffect()     {}
func (SetTargetPowerEffect) isEffect()   {}

// Notification is published on every state change
type Notification struct {
	SessionID     string             `json:"session_id"`
	Seq           int                `json:"seq"`
	State         State              `json:"-"`
	StateName     string             `json:"state"`
	Interval      *CompletedInterval `json:"interval,omitempty"`
	BaselineIndex int                `json:"baseline_index,omitempty"`
	DropPct       *float64           `json:"drop_pct,omitempty"`
	CutoffPct     float64            `json:"cutoff_pct"`
	Reason        TerminationReason  `json:"-"`
	ReasonText    string             `json:"reason,omitempty"`
	Err           error              `json:"-"`
	ErrText       string             `json:"error,omitempty"`
	At            time.Time          `json:"at"`
}

// --- Snapshot ---

// Snapshot is the complete session state. Transition never mutates its input.
type Snapshot struct {
	ID        string
	Config    Config
	Range     ThresholdRange
	CutoffPct float64
	State     State
	Index     int
	History   []CompletedInterval
	Reason    TerminationReason
	StartedAt time.Time // zero until the start command is accepted

	seq        int
	aggregator Aggregator
	baseline   BaselineSelector
}

// NewSnapshot validates cfg and returns a session waiting for its start command
func NewSnapshot(id string, cfg Config, table ThresholdTable) (Snapshot, error) {
	if err := cfg.Validate(); err != nil {
		return Snapshot{}, err
	}
	r, ok := table.Lookup(cfg.Duration)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrUnsupportedDuration, cfg.Duration)
	}
	cutoff, err := r.Cutoff(cfg.Strictness)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		ID:        id,
		Config:    cfg,
		Range:     r,
		CutoffPct: cutoff,
		State:     StateAwaitingStart,
		baseline:  NewBaselineSelector(cfg.Duration),
	}, nil
}

// Baseline returns the session baseline, false until one is selected
func (s Snapshot) Baseline() (Baseline, bool) {
	return s.baseline.Baseline()
}

// SamplesInInterval is the sample count of the interval in progress
func (s Snapshot) SamplesInInterval() int {
	return s.aggregator.Count()
}

// IntervalAverage is the running average of the interval in progress
func (s Snapshot) IntervalAverage() (float64, bool) {
	return s.aggregator.Average()
}

// Transition applies ev to s and returns the next snapshot plus the effects to run.
// It is deterministic: the same snapshot and event always yield the same result.
func Transition(s Snapshot, ev Event) (Snapshot, []Effect) {
	switch e := ev.(type) {
	case StartCommand:
		return s.start(e.At)
	case StopCommand:
		return s.stop(e.At)
	case SampleReceived:
		return s.addSample(e.Sample)
	case IntervalElapsed:
		return s.closeInterval(e)
	case RestElapsed:
		return s.nextInterval(e)
	default:
		return s, nil
	}
}

func (s Snapshot) start(at time.Time) (Snapshot, []Effect) {
	if s.State != StateAwaitingStart {
		return s.reject("start", at)
	}
	s.State = StateIntervalActive
	s.Index = 1
	s.StartedAt = at
	s.aggregator = NewAggregator()

	var effects []Effect
	s, effects = s.notify(effects, at, nil, nil, nil)
	effects = append(effects, ScheduleIntervalEffect{Index: s.Index, After: s.Config.Duration.Duration()})
	effects = s.targetPower(effects, PhaseWork)
	return s, effects
}

func (s Snapshot) stop(at time.Time) (Snapshot, []Effect) {
	if s.State.IsTerminal() {
		return s.reject("stop", at)
	}
	s.State = StateTerminated
	s.Reason = ReasonManualStop

	effects := []Effect{CancelTimersEffect{}}
	s, effects = s.notify(effects, at, nil, nil, nil)
	return s, effects
}

func (s Snapshot) addSample(sample PowerSample) (Snapshot, []Effect) {
	if s.State != StateIntervalActive {
		return s, nil
	}
	// the window is always open while IntervalActive
	_ = s.aggregator.Add(sample)
	return s, nil
}

func (s Snapshot) closeInterval(e IntervalElapsed) (Snapshot, []Effect) {
	if s.State != StateIntervalActive || e.Index != s.Index {
		return s, nil
	}

	var effects []Effect
	s.State = StateIntervalClosing
	s, effects = s.notify(effects, e.At, nil, nil, nil)

	_, hadBaseline := s.baseline.Baseline()
	avg, closeErr := s.aggregator.Close()
	completed := CompletedInterval{
		Index:             s.Index,
		AveragePowerWatts: avg,
		Duration:          s.Config.Duration,
		SampleCount:       s.aggregator.Count(),
		NoSamples:         closeErr != nil,
	}
	s.History = append(slices.Clip(s.History), completed)
	becameBaseline := s.baseline.Offer(completed)

	var dropPct *float64
	var evalErr error
	terminate := false

	switch {
	case completed.NoSamples:
		evalErr = ErrNoSamples
	case hadBaseline && !becameBaseline:
		base, _ := s.baseline.Baseline()
		result, err := EvaluateDrop(base.AveragePowerWatts, completed.AveragePowerWatts, s.CutoffPct)
		if err != nil {
			evalErr = err
			break
		}
		drop := result.DropPct
		dropPct = &drop
		terminate = result.ShouldTerminate
	}

	if terminate {
		s.State = StateTerminated
		s.Reason = ReasonDropThreshold
	} else if s.Config.MaxIntervals > 0 && s.Index >= s.Config.MaxIntervals {
		s.State = StateTerminated
		s.Reason = ReasonRepeatLimit
	} else {
		s.State = StateContinuing
	}

	s, effects = s.notify(effects, e.At, &completed, dropPct, evalErr)
	if s.State == StateContinuing {
		effects = append(effects, ScheduleRestEffect{Index: s.Index, After: s.Config.Rest})
		effects = s.targetPower(effects, PhaseRest)
	}
	return s, effects
}

func (s Snapshot) nextInterval(e RestElapsed) (Snapshot, []Effect) {
	if s.State != StateContinuing || e.Index != s.Index {
		return s, nil
	}
	s.Index++
	s.aggregator = NewAggregator()
	s.State = StateIntervalActive

	var effects []Effect
	s, effects = s.notify(effects, e.At, nil, nil, nil)
	effects = append(effects, ScheduleIntervalEffect{Index: s.Index, After: s.Config.Duration.Duration()})
	effects = s.targetPower(effects, PhaseWork)
	return s, effects
}

// reject leaves the state untouched and reports the refused command
func (s Snapshot) reject(command string, at time.Time) (Snapshot, []Effect) {
	err := fmt.Errorf("%w: %s while %s", ErrInvalidTransition, command, s.State)
	var effects []Effect
	s, effects = s.notify(effects, at, nil, nil, err)
	return s, effects
}

func (s Snapshot) notify(effects []Effect, at time.Time, interval *CompletedInterval, dropPct *float64, err error) (Snapshot, []Effect) {
	s.seq++
	n := Notification{
		SessionID:  s.ID,
		Seq:        s.seq,
		State:      s.State,
		StateName:  s.State.String(),
		Interval:   interval,
		DropPct:    dropPct,
		CutoffPct:  s.CutoffPct,
		Reason:     s.Reason,
		ReasonText: s.Reason.String(),
		Err:        err,
		At:         at,
	}
	if base, ok := s.baseline.Baseline(); ok {
		n.BaselineIndex = base.Index
	}
	if err != nil {
		n.ErrText = err.Error()
	}
	return s, append(effects, NotifyEffect{Notification: n})
}

func (s Snapshot) targetPower(effects []Effect, phase Phase) []Effect {
	if !s.Config.ERG.Enabled {
		return effects
	}
	watts := s.Config.ERG.WorkWatts
	if phase == PhaseRest {
		watts = s.Config.ERG.RestWatts
	}
	return append(effects, SetTargetPowerEffect{Watts: watts, Phase: phase})
}
