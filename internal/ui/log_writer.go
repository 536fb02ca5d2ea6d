package ui

import "sync/atomic"

// LogChannelWriter forwards each written log line to the dashboard. A line is
// dropped when the channel is full so logging never waits on the UI.
type LogChannelWriter struct {
	ch      chan<- string
	dropped atomic.Uint64
}

func NewLogChannelWriter(ch chan<- string) *LogChannelWriter {
	if ch == nil {
		panic("LogChannelWriter: channel cannot be nil")
	}
	return &LogChannelWriter{ch: ch}
}

func (w *LogChannelWriter) Write(p []byte) (int, error) {
	select {
	case w.ch <- string(p):
	default:
		w.dropped.Add(1)
	}
	return len(p), nil
}

// Dropped is the number of lines lost to a full channel
func (w *LogChannelWriter) Dropped() uint64 {
	return w.dropped.Load()
}
