package ui

import (
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/events"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/trainer"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/workout"
)

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// fakeSession publishes whatever snapshot the test hands it
type fakeSession struct {
	mu       sync.Mutex
	snapshot workout.Snapshot
	starts   int
	stops    int
	stopErr  error

	notifications *events.ChannelEvent[workout.Notification]
}

func newFakeSession(s workout.Snapshot) *fakeSession {
	return &fakeSession{
		snapshot:      s,
		notifications: events.NewChannelEvent[workout.Notification](true),
	}
}

func (f *fakeSession) Snapshot() workout.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot
}

func (f *fakeSession) ListenToNotifications(ch chan<- workout.Notification) func() {
	return f.notifications.Listen(ch)
}

func (f *fakeSession) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return nil
}

func (f *fakeSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.stopErr
}

func (f *fakeSession) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

// publish swaps the snapshot then notifies, the way the session loop does
func (f *fakeSession) publish(s workout.Snapshot, n workout.Notification) {
	f.mu.Lock()
	f.snapshot = s
	f.mu.Unlock()
	f.notifications.Notify(n)
}

type fakeTrainer struct {
	samples *events.ChannelEvent[workout.PowerSample]
	status  *events.ChannelEvent[trainer.Status]
}

func newFakeTrainer() *fakeTrainer {
	return &fakeTrainer{
		samples: events.NewChannelEvent[workout.PowerSample](false),
		status:  events.NewChannelEvent[trainer.Status](true),
	}
}

func (f *fakeTrainer) ListenToSamples(ch chan<- workout.PowerSample) func() {
	return f.samples.Listen(ch)
}

func (f *fakeTrainer) ListenToStatus(ch chan<- trainer.Status) func() {
	return f.status.Listen(ch)
}

// snapshotAfter replays a short 10m session: interval 1 at 250 W becomes the
// baseline, later intervals ride at the given watts.
func snapshotAfter(t *testing.T, cfg workout.Config, intervalWatts ...float64) (workout.Snapshot, []workout.Notification) {
	t.Helper()
	s, err := workout.NewSnapshot("session-1", cfg, workout.NewThresholdTable())
	require.NoError(t, err)

	var notes []workout.Notification
	collect := func(effects []workout.Effect) {
		for _, e := range effects {
			if n, ok := e.(workout.NotifyEffect); ok {
				notes = append(notes, n.Notification)
			}
		}
	}

	var effects []workout.Effect
	s, effects = workout.Transition(s, workout.StartCommand{At: t0})
	collect(effects)
	for i, w := range intervalWatts {
		if i > 0 {
			s, effects = workout.Transition(s, workout.RestElapsed{Index: s.Index, At: t0})
			collect(effects)
		}
		if w > 0 {
			s, _ = workout.Transition(s, workout.SampleReceived{Sample: workout.PowerSample{Timestamp: t0, Watts: w}})
		}
		s, effects = workout.Transition(s, workout.IntervalElapsed{Index: s.Index, At: t0})
		collect(effects)
	}
	return s, notes
}

type fakeView struct {
	mu          sync.Mutex
	initialized bool
	keysSetUp   bool
	stopped     bool
	draws       int
	logHeight   int
	logLines    []string
	sessions    []SessionView
	lives       []LiveData
	statuses    []trainer.Status
}

func (v *fakeView) Initialize(*UIController) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.initialized = true
}

func (v *fakeView) SetupKeyboardHandlers(*UIController) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keysSetUp = true
}

func (v *fakeView) Run() error { return nil }

func (v *fakeView) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopped = true
}

func (v *fakeView) Draw() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.draws++
	return nil
}

func (v *fakeView) GetLogViewHeight() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.logHeight
}

func (v *fakeView) ClearLogView() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.logLines = nil
}

func (v *fakeView) WriteLogLine(line string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.logLines = append(v.logLines, line)
	return nil
}

func (v *fakeView) UpdateSession(view SessionView) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sessions = append(v.sessions, view)
}

func (v *fakeView) UpdateLive(data LiveData) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lives = append(v.lives, data)
}

func (v *fakeView) UpdateTrainerStatus(status trainer.Status) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.statuses = append(v.statuses, status)
}

func (v *fakeView) lastSession() (SessionView, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.sessions) == 0 {
		return SessionView{}, false
	}
	return v.sessions[len(v.sessions)-1], true
}

func (v *fakeView) lastLive() (LiveData, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.lives) == 0 {
		return LiveData{}, false
	}
	return v.lives[len(v.lives)-1], true
}

func (v *fakeView) lines() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.logLines...)
}

func (v *fakeView) isStopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped
}
