package ui

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/workout"
)

func TestRenderThresholdTable(t *testing.T) {
	out, err := RenderThresholdTable(workout.NewThresholdTable(), 0)
	require.NoError(t, err)

	for _, want := range []string{"INTERVAL", "15s", "10m0s", "15%", "#2", "#3"} {
		assert.Contains(t, out, want)
	}

	lines := strings.Split(out, "\n")
	var tenMinute string
	for _, l := range lines {
		if strings.Contains(l, "10m0s") {
			tenMinute = l
		}
	}
	require.NotEmpty(t, tenMinute)
	assert.Contains(t, tenMinute, "6.0%")
	assert.Contains(t, tenMinute, "#1")
}

func TestRenderThresholdTable_StrictnessMovesCutoff(t *testing.T) {
	out, err := RenderThresholdTable(workout.NewThresholdTable(), 1)
	require.NoError(t, err)
	assert.Contains(t, out, "strictness 1.00")
	assert.Contains(t, out, "4.0%")

	_, err = RenderThresholdTable(workout.NewThresholdTable(), 1.5)
	assert.ErrorIs(t, err, workout.ErrInvalidStrictness)
}

func TestRenderReport(t *testing.T) {
	s, _ := snapshotAfter(t, workout.Config{Duration: workout.Interval10m}, 250, 240, 230)

	out := RenderReport(s, t0.Add(45*time.Minute))
	assert.Contains(t, out, "Session session-1")
	assert.Contains(t, out, "power drop reached cutoff")
	assert.Contains(t, out, "45 minutes ago")
	assert.Contains(t, out, "3 completed, 3 with power")
	// (250+240+230) W * 600 s
	assert.Contains(t, out, "432 kJ")
	assert.Contains(t, out, "#1 at 250 W")
	assert.Contains(t, out, "8.0%")
	assert.Contains(t, out, "interval average (W)")
}

func TestRenderReport_NoIntervals(t *testing.T) {
	s, err := workout.NewSnapshot("idle", workout.Config{Duration: workout.Interval1m}, workout.NewThresholdTable())
	require.NoError(t, err)

	out := RenderReport(s, t0)
	assert.Contains(t, out, "AwaitingStart")
	assert.Contains(t, out, "0 completed")
	assert.NotContains(t, out, "Started:")
}

func TestFormatNotification(t *testing.T) {
	_, notes := snapshotAfter(t, workout.Config{Duration: workout.Interval10m}, 250, 230)

	var lines []string
	for _, n := range notes {
		lines = append(lines, FormatNotification(n))
	}
	joined := strings.Join(lines, "\n")

	assert.Contains(t, lines[0], "18:00:00")
	assert.Contains(t, lines[0], "IntervalActive")
	assert.Contains(t, joined, "interval 1: 250 W (baseline)")
	assert.Contains(t, joined, "interval 2: 230 W, drop 8.0% of 6.0% - power drop reached cutoff")
}

func TestFormatNotification_NoSamples(t *testing.T) {
	_, notes := snapshotAfter(t, workout.Config{Duration: workout.Interval10m}, 0)
	last := FormatNotification(notes[len(notes)-1])
	assert.Contains(t, last, "interval 1: no samples")
	assert.Contains(t, last, "error: workout: interval closed with no samples")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestConsoleReporter_PrintsUntilTerminated(t *testing.T) {
	start, _ := snapshotAfter(t, workout.Config{Duration: workout.Interval10m})
	session := newFakeSession(start)
	out := &syncBuffer{}
	r := NewConsoleReporter(ConsoleReporterArgs{Session: session, Out: out, Logger: testLogger()})

	done := make(chan workout.Snapshot, 1)
	go func() { done <- r.Run(context.Background()) }()

	end, notes := snapshotAfter(t, workout.Config{Duration: workout.Interval10m}, 250, 200)
	// wait for the subscription before publishing
	require.Eventually(t, func() bool { return session.notifications.Notify(notes[0]) > 0 }, eventually, time.Millisecond)
	for _, n := range notes[1 : len(notes)-1] {
		session.notifications.Notify(n)
	}
	session.publish(end, notes[len(notes)-1])

	select {
	case got := <-done:
		assert.Equal(t, workout.StateTerminated, got.State)
	case <-time.After(eventually):
		t.Fatal("reporter did not stop at termination")
	}
	assert.Contains(t, out.String(), "power drop reached cutoff")
}

func TestConsoleReporter_StopsOnContextCancel(t *testing.T) {
	s, _ := snapshotAfter(t, workout.Config{Duration: workout.Interval3m})
	r := NewConsoleReporter(ConsoleReporterArgs{Session: newFakeSession(s), Out: &syncBuffer{}, Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := r.Run(ctx)
	assert.Equal(t, workout.StateIntervalActive, got.State)
}
