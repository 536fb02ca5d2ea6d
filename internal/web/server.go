package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/workout"
)

const clientBufferSize = 16

// Feed is the session the server exposes
type Feed interface {
	ID() string
	Snapshot() workout.Snapshot
	ListenToNotifications(ch chan<- workout.Notification) func()
	Stop() error
}

// StateView is the JSON form of a session snapshot
type StateView struct {
	SessionID   string                      `json:"session_id"`
	State       string                      `json:"state"`
	Interval    string                      `json:"interval"`
	Index       int                         `json:"index"`
	CutoffPct   float64                     `json:"cutoff_pct"`
	MinDropPct  float64                     `json:"min_drop_pct"`
	MaxDropPct  float64                     `json:"max_drop_pct"`
	Baseline    *workout.Baseline           `json:"baseline,omitempty"`
	History     []workout.CompletedInterval `json:"history"`
	Reason      string                      `json:"reason,omitempty"`
	SampleCount int                         `json:"samples_in_interval"`
	StartedAt   *time.Time                  `json:"started_at,omitempty"`
}

func NewStateView(s workout.Snapshot) StateView {
	view := StateView{
		SessionID:   s.ID,
		State:       s.State.String(),
		Interval:    s.Config.Duration.String(),
		Index:       s.Index,
		CutoffPct:   s.CutoffPct,
		MinDropPct:  s.Range.MinDropPct,
		MaxDropPct:  s.Range.MaxDropPct,
		History:     s.History,
		Reason:      s.Reason.String(),
		SampleCount: s.SamplesInInterval(),
	}
	if view.History == nil {
		view.History = []workout.CompletedInterval{}
	}
	if !s.StartedAt.IsZero() {
		started := s.StartedAt
		view.StartedAt = &started
	}
	if b, ok := s.Baseline(); ok {
		view.Baseline = &b
	}
	return view
}

type ServerArgs struct {
	Addr   string
	Feed   Feed
	Logger *log.Logger
}

// Server publishes a session over HTTP:
//
//	GET  /state   current snapshot
//	GET  /events  notifications as server-sent events, ending after termination
//	POST /stop    manual stop
type Server struct {
	feed   Feed
	logger *log.Logger
	server *http.Server

	doneChan     chan struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

func NewServer(args ServerArgs) *Server {
	if args.Logger == nil {
		panic("Server: logger cannot be nil")
	}
	if args.Feed == nil {
		panic("Server: feed cannot be nil")
	}
	s := &Server{
		feed:     args.Feed,
		logger:   args.Logger,
		doneChan: make(chan struct{}),
	}
	s.server = &http.Server{Addr: args.Addr, Handler: s.Handler()}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/state", s.handleState)
	r.Get("/events", s.handleEvents)
	r.Post("/stop", s.handleStop)
	return r
}

// Start serves in the background until Shutdown
func (s *Server) Start() {
	go_func_utils.SafeGoWait(s.logger, &s.wg, func() {
		s.logger.Printf("Server: Live feed on http://%s/events", s.server.Addr)
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server: Error serving: %v", err)
		}
	})
}

// Shutdown ends open event streams and stops the listener
func (s *Server) Shutdown(ctx context.Context) {
	s.shutdownOnce.Do(func() {
		close(s.doneChan)
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Printf("Server: Error shutting down: %v", err)
		}
		s.wg.Wait()
		s.logger.Printf("Server: Shutdown complete")
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, NewStateView(s.feed.Snapshot()), http.StatusOK)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if s.feed.Snapshot().State.IsTerminal() {
		respondError(w, "session already terminated", http.StatusConflict)
		return
	}
	if err := s.feed.Stop(); err != nil {
		respondError(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	notifications := make(chan workout.Notification, clientBufferSize)
	unlisten := s.feed.ListenToNotifications(notifications)
	defer unlisten()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.doneChan:
			return
		case n := <-notifications:
			if err := writeEvent(w, n); err != nil {
				s.logger.Printf("Server: Error writing event: %v", err)
				return
			}
			flusher.Flush()
			if n.State.IsTerminal() {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, n workout.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: notification\ndata: %s\n\n", n.Seq, data)
	return err
}

func respondJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, msg string, status int) {
	respondJSON(w, map[string]string{"error": msg}, status)
}
