package ui

import (
	"errors"
	"log"
	"sync/atomic"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/workout"
)

// SessionControl is the command side of a workout session
type SessionControl interface {
	Start() error
	Stop() error
}

// UIController turns key presses into session commands
type UIController struct {
	model   *UIModel
	session SessionControl
	logger  *log.Logger

	interrupted atomic.Bool
}

func NewUIController(model *UIModel, session SessionControl, logger *log.Logger) *UIController {
	if model == nil {
		panic("UIController: model cannot be nil")
	}
	if session == nil {
		panic("UIController: session cannot be nil")
	}
	if logger == nil {
		panic("UIController: logger cannot be nil")
	}
	return &UIController{
		model:   model,
		session: session,
		logger:  logger,
	}
}

// OnStartKey starts the first interval. Invalid starts are reported by the
// session itself through a notification.
func (c *UIController) OnStartKey() {
	if err := c.session.Start(); err != nil {
		c.logger.Printf("UIController: Start failed: %v", err)
	}
}

func (c *UIController) OnStopKey() {
	if err := c.session.Stop(); err != nil {
		c.logger.Printf("UIController: Stop failed: %v", err)
	}
}

// OnEscapeKey stops a running session, then asks the application to close
func (c *UIController) OnEscapeKey() {
	if !c.model.GetSessionView().Snapshot.State.IsTerminal() {
		if err := c.session.Stop(); err != nil && !errors.Is(err, workout.ErrSessionClosed) {
			c.logger.Printf("UIController: Stop on exit failed: %v", err)
		}
	}
	c.model.RequestCloseApplication()
}

// OnInterruptKey is Ctrl-C: the same as Escape, remembered so the caller can
// report an interrupt
func (c *UIController) OnInterruptKey() {
	c.interrupted.Store(true)
	c.OnEscapeKey()
}

func (c *UIController) Interrupted() bool {
	return c.interrupted.Load()
}
