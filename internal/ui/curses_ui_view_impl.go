package ui

import (
	"fmt"
	"log"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/trainer"
)

// CursesUIViewImpl implements UIViewImpl using tview (curses-based terminal UI)
type CursesUIViewImpl struct {
	logger *log.Logger
	app    *tview.Application

	logView  *tview.TextView
	mainFlex *tview.Flex // Dashboard on the left, logs on the right

	sessionPanel *tview.TextView
	powerPanel   *tview.TextView
	trainerPanel *tview.TextView
	tabWidgets   []*tview.Box
}

func NewCursesUIView(logger *log.Logger, app *tview.Application) *CursesUIViewImpl {
	if logger == nil {
		panic("CursesUIViewImpl: logger cannot be nil")
	}
	if app == nil {
		panic("CursesUIViewImpl: app cannot be nil")
	}
	return &CursesUIViewImpl{
		logger: logger,
		app:    app,
	}
}

func newPanel(title string) *tview.TextView {
	panel := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	panel.SetBorder(true).SetTitle(title)
	return panel
}

// Initialize sets up the tview widgets
func (ui *CursesUIViewImpl) Initialize(controller *UIController) {
	// No SetChangedFunc with app.Draw(): it can hang once the app is stopped
	// while log lines are still arriving. BaseUIView draws after each update.
	ui.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	ui.logView.SetBorder(true).SetTitle(" Logs ")

	ui.sessionPanel = newPanel(" Session ")
	ui.powerPanel = newPanel(" Power ")
	ui.trainerPanel = newPanel(" Trainer ")

	ui.tabWidgets = []*tview.Box{ui.sessionPanel.Box, ui.powerPanel.Box, ui.trainerPanel.Box, ui.logView.Box}

	rightColumn := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.trainerPanel, 7, 0, false).
		AddItem(ui.logView, 0, 1, false)

	leftColumn := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.sessionPanel, 0, 1, true).
		AddItem(ui.powerPanel, 0, 1, false)

	ui.mainFlex = tview.NewFlex().
		AddItem(leftColumn, 0, 3, true).
		AddItem(rightColumn, 0, 2, false)
}

// SetupKeyboardHandlers sets up keyboard event handlers
func (ui *CursesUIViewImpl) SetupKeyboardHandlers(controller *UIController) {
	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEscape:
			controller.OnEscapeKey()
			return nil
		case tcell.KeyCtrlC:
			controller.OnInterruptKey()
			return nil
		case tcell.KeyTab:
			ui.focusNext()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 's', 'S':
				controller.OnStartKey()
				return nil
			case 'x', 'X':
				controller.OnStopKey()
				return nil
			}
		}
		return event
	})
}

func (ui *CursesUIViewImpl) focusNext() {
	for i, w := range ui.tabWidgets {
		if w.HasFocus() {
			ui.app.SetFocus(ui.tabWidgets[(i+1)%len(ui.tabWidgets)])
			return
		}
	}
	ui.app.SetFocus(ui.tabWidgets[0])
}

// GetLogViewHeight returns the visible height of the log view
func (ui *CursesUIViewImpl) GetLogViewHeight() int {
	_, _, _, height := ui.logView.GetInnerRect()
	return height
}

func (ui *CursesUIViewImpl) ClearLogView() {
	ui.logView.Clear()
}

func (ui *CursesUIViewImpl) WriteLogLine(line string) error {
	_, err := fmt.Fprint(ui.logView, tview.Escape(line))
	return err
}

func (ui *CursesUIViewImpl) UpdateSession(view SessionView) {
	ui.sessionPanel.SetText(formatSessionPanel(view))
}

func (ui *CursesUIViewImpl) UpdateLive(data LiveData) {
	_, _, width, height := ui.powerPanel.GetInnerRect()
	ui.powerPanel.SetText(formatPowerPanel(data, width, height))
}

func (ui *CursesUIViewImpl) UpdateTrainerStatus(status trainer.Status) {
	ui.trainerPanel.SetText(formatTrainerPanel(status))
}

// Draw refreshes/redraws the UI
func (ui *CursesUIViewImpl) Draw() error {
	ui.app.Draw()
	return nil
}

// Run starts the UI and blocks until it exits
func (ui *CursesUIViewImpl) Run() error {
	// SetRoot must be called before setting focus, otherwise focus may be reset
	ui.app.SetRoot(ui.mainFlex, true)
	ui.app.SetFocus(ui.sessionPanel)
	return ui.app.Run()
}

func (ui *CursesUIViewImpl) Stop() {
	ui.app.Stop()
}
