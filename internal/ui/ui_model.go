package ui

import (
	"context"
	"log"
	"sync"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/events"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/trainer"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/workout"
)

// SessionFeed is the read side of a workout session
type SessionFeed interface {
	Snapshot() workout.Snapshot
	ListenToNotifications(ch chan<- workout.Notification) func()
}

// TrainerFeed is the read side of a trainer port
type TrainerFeed interface {
	ListenToSamples(ch chan<- workout.PowerSample) func()
	ListenToStatus(ch chan<- trainer.Status) func()
}

// SessionView is what the session panel renders
type SessionView struct {
	Snapshot workout.Snapshot
	Last     *workout.Notification
}

// LiveData holds the latest power reading and a short trailing history
type LiveData struct {
	Watts           float64
	IntervalAverage float64
	HasAverage      bool
	Samples         int
	History         []float64
}

const (
	maxLogLines      = 1000
	maxPowerHistory  = 120
	feedChannelDepth = 16
)

type UIModelArgs struct {
	Session SessionFeed
	Trainer TrainerFeed
	Logger  *log.Logger
	LogChan <-chan string
}

type UIModel struct {
	session SessionFeed

	logEvent              *events.ChannelEvent[string]
	closeApplicationEvent *events.ChannelEvent[struct{}]
	sessionEvent          *events.ChannelEvent[SessionView]
	liveEvent             *events.ChannelEvent[LiveData]
	trainerStatusEvent    *events.ChannelEvent[trainer.Status]

	mu            sync.RWMutex
	sessionView   SessionView
	live          LiveData
	trainerStatus trainer.Status

	logLines []string
	logMu    sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *log.Logger
}

func NewUIModel(args UIModelArgs) *UIModel {
	if args.Logger == nil {
		panic("UIModel: logger cannot be nil")
	}
	if args.LogChan == nil {
		panic("UIModel: log channel cannot be nil")
	}
	if args.Session == nil {
		panic("UIModel: session cannot be nil")
	}
	if args.Trainer == nil {
		panic("UIModel: trainer cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &UIModel{
		session:               args.Session,
		logEvent:              events.NewChannelEvent[string](false),
		closeApplicationEvent: events.NewChannelEvent[struct{}](true),
		sessionEvent:          events.NewChannelEvent[SessionView](true),
		liveEvent:             events.NewChannelEvent[LiveData](true),
		trainerStatusEvent:    events.NewChannelEvent[trainer.Status](true),
		sessionView:           SessionView{Snapshot: args.Session.Snapshot()},
		logLines:              make([]string, 0, maxLogLines),
		ctx:                   ctx,
		cancel:                cancel,
		logger:                args.Logger,
	}

	// Subscribe before the goroutines start so nothing published meanwhile is missed
	notificationChan := make(chan workout.Notification, feedChannelDepth)
	unlistenNotifications := args.Session.ListenToNotifications(notificationChan)
	sampleChan := make(chan workout.PowerSample, feedChannelDepth)
	unlistenSamples := args.Trainer.ListenToSamples(sampleChan)
	statusChan := make(chan trainer.Status, feedChannelDepth)
	unlistenStatus := args.Trainer.ListenToStatus(statusChan)

	go_func_utils.SafeGoWait(m.logger, &m.wg, func() {
		defer unlistenNotifications()
		m.listenToNotifications(notificationChan)
	})
	go_func_utils.SafeGoWait(m.logger, &m.wg, func() {
		defer unlistenSamples()
		m.listenToSamples(sampleChan)
	})
	go_func_utils.SafeGoWait(m.logger, &m.wg, func() {
		defer unlistenStatus()
		m.listenToTrainerStatus(statusChan)
	})
	go_func_utils.SafeGoWait(m.logger, &m.wg, func() { m.readFromLogChannel(args.LogChan) })

	return m
}

// Shutdown stops all goroutines and waits for them to finish
func (m *UIModel) Shutdown() {
	m.logger.Println("UIModel: Shutting down")
	m.cancel()
	m.wg.Wait()
	m.logger.Println("UIModel: Shutdown complete")
}

func (m *UIModel) ListenToLog(ch chan<- string) func() {
	return m.logEvent.Listen(ch)
}

func (m *UIModel) ListenToCloseApplication(ch chan<- struct{}) func() {
	return m.closeApplicationEvent.Listen(ch)
}

// RequestCloseApplication signals that the application should close
func (m *UIModel) RequestCloseApplication() {
	m.closeApplicationEvent.Notify(struct{}{})
}

// ListenToSession receives a fresh SessionView after every session notification
func (m *UIModel) ListenToSession(ch chan<- SessionView) func() {
	return m.sessionEvent.Listen(ch)
}

func (m *UIModel) GetSessionView() SessionView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionView
}

func (m *UIModel) ListenToLive(ch chan<- LiveData) func() {
	return m.liveEvent.Listen(ch)
}

// GetLiveData returns a copy of the live data, history included
func (m *UIModel) GetLiveData() LiveData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.live.clone()
}

func (m *UIModel) ListenToTrainerStatus(ch chan<- trainer.Status) func() {
	return m.trainerStatusEvent.Listen(ch)
}

func (m *UIModel) GetTrainerStatus() trainer.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trainerStatus
}

func (m *UIModel) listenToNotifications(ch <-chan workout.Notification) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case n := <-ch:
			view := SessionView{Snapshot: m.session.Snapshot(), Last: &n}
			m.mu.Lock()
			m.sessionView = view
			m.mu.Unlock()

			m.sessionEvent.Notify(view)
		}
	}
}

func (m *UIModel) listenToSamples(ch <-chan workout.PowerSample) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case sample := <-ch:
			snapshot := m.session.Snapshot()
			avg, ok := snapshot.IntervalAverage()

			m.mu.Lock()
			m.live.Watts = sample.Watts
			m.live.IntervalAverage = avg
			m.live.HasAverage = ok
			m.live.Samples = snapshot.SamplesInInterval()
			m.live.History = append(m.live.History, sample.Watts)
			if len(m.live.History) > maxPowerHistory {
				m.live.History = m.live.History[len(m.live.History)-maxPowerHistory:]
			}
			live := m.live.clone()
			m.mu.Unlock()

			m.liveEvent.Notify(live)
		}
	}
}

func (m *UIModel) listenToTrainerStatus(ch <-chan trainer.Status) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case status := <-ch:
			m.mu.Lock()
			m.trainerStatus = status
			m.mu.Unlock()

			m.trainerStatusEvent.Notify(status)
		}
	}
}

// readFromLogChannel reads log lines from the channel and populates logLines
func (m *UIModel) readFromLogChannel(logChan <-chan string) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case line, ok := <-logChan:
			if !ok {
				return
			}

			m.logMu.Lock()
			m.logLines = append(m.logLines, line)
			if len(m.logLines) > maxLogLines {
				m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
			}
			m.logMu.Unlock()

			m.logEvent.Notify(line)
		}
	}
}

// GetLogTail returns the last n lines of logs
func (m *UIModel) GetLogTail(n int) []string {
	m.logMu.RLock()
	defer m.logMu.RUnlock()

	if n <= 0 {
		return []string{}
	}
	if n > len(m.logLines) {
		n = len(m.logLines)
	}
	result := make([]string, n)
	copy(result, m.logLines[len(m.logLines)-n:])
	return result
}

func (d LiveData) clone() LiveData {
	d.History = append([]float64(nil), d.History...)
	return d
}
