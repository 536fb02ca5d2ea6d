package ui

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/workout"
)

func TestUIController_StartAndStopKeys(t *testing.T) {
	f := newModelFixture(t)
	c := NewUIController(f.model, f.session, testLogger())

	c.OnStartKey()
	c.OnStopKey()
	c.OnStopKey()

	starts, stops := f.session.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 2, stops)
}

func TestUIController_StopErrorIsLoggedNotPropagated(t *testing.T) {
	f := newModelFixture(t)
	f.session.stopErr = errors.New("boom")
	c := NewUIController(f.model, f.session, testLogger())

	assert.NotPanics(t, c.OnStopKey)
}

func TestUIController_EscapeStopsRunningSessionAndCloses(t *testing.T) {
	f := newModelFixture(t)
	c := NewUIController(f.model, f.session, testLogger())
	closeChan := make(chan struct{}, 1)
	defer f.model.ListenToCloseApplication(closeChan)()

	c.OnEscapeKey()

	_, stops := f.session.counts()
	assert.Equal(t, 1, stops)
	select {
	case <-closeChan:
	case <-time.After(eventually):
		t.Fatal("close not requested")
	}
}

func TestUIController_EscapeAfterTerminationOnlyCloses(t *testing.T) {
	f := newModelFixture(t)
	s, notes := snapshotAfter(t, workout.Config{Duration: workout.Interval10m}, 250, 200)
	require.Equal(t, workout.StateTerminated, s.State)
	f.session.publish(s, notes[len(notes)-1])
	require.Eventually(t, func() bool {
		return f.model.GetSessionView().Snapshot.State == workout.StateTerminated
	}, eventually, time.Millisecond)

	c := NewUIController(f.model, f.session, testLogger())
	c.OnEscapeKey()

	_, stops := f.session.counts()
	assert.Zero(t, stops)
}

func TestUIController_InterruptIsRemembered(t *testing.T) {
	f := newModelFixture(t)
	c := NewUIController(f.model, f.session, testLogger())
	assert.False(t, c.Interrupted())

	c.OnInterruptKey()
	assert.True(t, c.Interrupted())
	_, stops := f.session.counts()
	assert.Equal(t, 1, stops)
}

func TestNewUIController_NilDependenciesPanic(t *testing.T) {
	f := newModelFixture(t)
	assert.PanicsWithValue(t, "UIController: model cannot be nil", func() {
		NewUIController(nil, f.session, testLogger())
	})
	assert.PanicsWithValue(t, "UIController: session cannot be nil", func() {
		NewUIController(f.model, nil, testLogger())
	})
	assert.PanicsWithValue(t, "UIController: logger cannot be nil", func() {
		NewUIController(f.model, f.session, nil)
	})
}
