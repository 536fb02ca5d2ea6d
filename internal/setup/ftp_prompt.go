package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/config"
)

// ErrCancelled is returned when the user exits the prompt without an FTP
var ErrCancelled = errors.New("setup: cancelled by user")

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

// ParseFTP accepts a positive integer number of watts. ok is false when the
// user asked to exit.
func ParseFTP(input string) (ftp int, ok bool, err error) {
	input = strings.TrimSpace(input)
	switch strings.ToLower(input) {
	case "e", "exit":
		return 0, false, nil
	}
	ftp, err = strconv.Atoi(input)
	if err != nil {
		return 0, true, errors.New("Invalid input. Please enter a positive integer.")
	}
	if ftp <= 0 {
		return 0, true, errors.New("FTP must be a positive number. Try again.")
	}
	if ftp > config.MaxFTP {
		return 0, true, fmt.Errorf("FTP must be at most %d W. Try again.", config.MaxFTP)
	}
	return ftp, true, nil
}

// FTPModel asks for FTP until it gets a positive integer or the user exits
type FTPModel struct {
	input     textinput.Model
	ftp       int
	cancelled bool
	errMsg    string
}

func NewFTPModel() FTPModel {
	ti := textinput.New()
	ti.Placeholder = "watts"
	ti.CharLimit = 5
	ti.Prompt = "> "
	ti.Focus()
	return FTPModel{input: ti}
}

func (m FTPModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m FTPModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancelled = true
			return m, tea.Quit
		case tea.KeyEnter:
			ftp, ok, err := ParseFTP(m.input.Value())
			switch {
			case !ok:
				m.cancelled = true
				return m, tea.Quit
			case err != nil:
				m.errMsg = err.Error()
				m.input.SetValue("")
				return m, nil
			default:
				m.ftp = ftp
				m.errMsg = ""
				return m, tea.Quit
			}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m FTPModel) View() string {
	if m.ftp > 0 {
		return fmt.Sprintf("FTP set to %d W\n", m.ftp)
	}
	if m.cancelled {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("FTP (Functional Threshold Power) not configured.") + "\n")
	sb.WriteString("Please enter your FTP in watts (positive integer):\n")
	sb.WriteString(hintStyle.Render(`Type "(e)xit" to exit.`) + "\n\n")
	sb.WriteString(m.input.View() + "\n")
	if m.errMsg != "" {
		sb.WriteString(errorStyle.Render(m.errMsg) + "\n")
	}
	return sb.String()
}

// FTP returns the entered value; 0 until one was accepted
func (m FTPModel) FTP() int {
	return m.ftp
}

func (m FTPModel) Cancelled() bool {
	return m.cancelled
}

// PromptFTP runs the prompt on the given terminal streams
func PromptFTP(ctx context.Context, in io.Reader, out io.Writer) (int, error) {
	p := tea.NewProgram(NewFTPModel(), tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) {
			return 0, ErrCancelled
		}
		return 0, fmt.Errorf("setup: %w", err)
	}
	m := final.(FTPModel)
	if m.Cancelled() || m.FTP() <= 0 {
		return 0, ErrCancelled
	}
	return m.FTP(), nil
}
