package web

import (
	"bufio"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/events"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/workout"
)

type idleTrainer struct {
	samples *events.ChannelEvent[workout.PowerSample]
}

func (t idleTrainer) ListenToSamples(ch chan<- workout.PowerSample) func() {
	return t.samples.Listen(ch)
}

func (t idleTrainer) SetTargetPower(int16) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *workout.Session) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	session, err := workout.NewSession(workout.SessionArgs{
		Config:  workout.Config{Duration: workout.Interval10m, Rest: time.Minute},
		Table:   workout.NewThresholdTable(),
		Trainer: idleTrainer{samples: events.NewChannelEvent[workout.PowerSample](false)},
		Logger:  logger,
		ID:      "feed-1",
	})
	require.NoError(t, err)
	t.Cleanup(session.Shutdown)

	server := NewServer(ServerArgs{Feed: session, Logger: logger})
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return srv, session
}

func TestServer_State(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var view StateView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))

	assert.Equal(t, "feed-1", view.SessionID)
	assert.Equal(t, "AwaitingStart", view.State)
	assert.Equal(t, "10m0s", view.Interval)
	assert.Equal(t, 6.0, view.CutoffPct)
	assert.Equal(t, 4.0, view.MinDropPct)
	assert.Nil(t, view.Baseline)
	assert.Empty(t, view.History)
}

func TestServer_EventsStreamUntilTermination(t *testing.T) {
	srv, session := newTestServer(t)
	require.NoError(t, session.Start())
	require.Eventually(t, func() bool {
		return session.Snapshot().State == workout.StateIntervalActive
	}, time.Second, time.Millisecond)

	resp, err := http.Get(srv.URL + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() workout.Notification {
		t.Helper()
		var n workout.Notification
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				require.NoError(t, json.Unmarshal([]byte(data), &n))
				return n
			}
		}
	}

	n := readEvent()
	assert.Equal(t, "IntervalActive", n.StateName)
	assert.Equal(t, "feed-1", n.SessionID)

	stop, err := http.Post(srv.URL+"/stop", "", nil)
	require.NoError(t, err)
	stop.Body.Close()
	assert.Equal(t, http.StatusAccepted, stop.StatusCode)

	n = readEvent()
	assert.Equal(t, "Terminated", n.StateName)
	assert.Equal(t, "stopped by rider", n.ReasonText)

	rest, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(string(rest)))
}

func TestServer_StopAfterTermination(t *testing.T) {
	srv, session := newTestServer(t)
	require.NoError(t, session.Start())
	require.NoError(t, session.Stop())
	<-session.Terminated()

	resp, err := http.Post(srv.URL+"/stop", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestNewStateView_Baseline(t *testing.T) {
	snapshot, err := workout.NewSnapshot("s", workout.Config{Duration: workout.Interval10m}, workout.NewThresholdTable())
	require.NoError(t, err)

	snapshot, _ = workout.Transition(snapshot, workout.StartCommand{At: time.Unix(0, 0)})
	snapshot, _ = workout.Transition(snapshot, workout.SampleReceived{Sample: workout.PowerSample{Timestamp: time.Unix(1, 0), Watts: 240}})
	snapshot, _ = workout.Transition(snapshot, workout.IntervalElapsed{Index: 1, At: time.Unix(600, 0)})

	view := NewStateView(snapshot)
	require.NotNil(t, view.Baseline)
	assert.Equal(t, 1, view.Baseline.Index)
	assert.Equal(t, 240.0, view.Baseline.AveragePowerWatts)
	assert.Len(t, view.History, 1)
	assert.Equal(t, "Continuing", view.State)
}

func TestNewServer_NilDependencies(t *testing.T) {
	assert.Panics(t, func() { NewServer(ServerArgs{}) })
}
