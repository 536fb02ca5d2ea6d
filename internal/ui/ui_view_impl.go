package ui

import "github.com/lowaak/smart-trainer/interval-trainer/internal/trainer"

// UIViewImpl defines the interface for framework-specific UI implementations
type UIViewImpl interface {
	// Initialize is called after construction to set up framework-specific widgets
	Initialize(controller *UIController)

	SetupKeyboardHandlers(controller *UIController)

	// Run starts the UI framework and blocks until it exits
	Run() error

	Stop()

	// Draw refreshes/redraws the UI
	Draw() error

	// --- Log View ---

	// GetLogViewHeight returns the visible height of the log view
	GetLogViewHeight() int

	ClearLogView()

	WriteLogLine(line string) error

	// --- Dashboard ---

	UpdateSession(view SessionView)

	UpdateLive(data LiveData)

	UpdateTrainerStatus(status trainer.Status)
}
