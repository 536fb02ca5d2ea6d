package ui

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/guptarohit/asciigraph"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/workout"
)

var (
	primaryColor   = lipgloss.Color("#FC4C02")
	secondaryColor = lipgloss.Color("#3B82F6")
	mutedColor     = lipgloss.Color("#6B7280")
	alertColor     = lipgloss.Color("#EF4444")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(secondaryColor)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	alertStyle  = lipgloss.NewStyle().Foreground(alertColor)
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)
)

// RenderThresholdTable lists every supported interval duration with its drop
// range, the cutoff at strictness and the interval that becomes the baseline.
func RenderThresholdTable(t workout.ThresholdTable, strictness float64) (string, error) {
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("INTERVAL", "MIN DROP", "MAX DROP", "CUTOFF", "BASELINE").
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return style.Inherit(headerStyle)
			}
			return style
		})

	for _, d := range workout.AllIntervalDurations {
		r, ok := t.Lookup(d)
		if !ok {
			continue
		}
		cutoff, err := r.Cutoff(strictness)
		if err != nil {
			return "", err
		}
		tbl.Row(
			d.String(),
			fmt.Sprintf("%.0f%%", r.MinDropPct),
			fmt.Sprintf("%.0f%%", r.MaxDropPct),
			fmt.Sprintf("%.1f%%", cutoff),
			fmt.Sprintf("#%d", workout.ExpectedBaselineIndex(d)),
		)
	}

	title := titleStyle.Render(fmt.Sprintf("Drop thresholds (strictness %.2f)", strictness))
	return lipgloss.JoinVertical(lipgloss.Left, title, tbl.String()), nil
}

// RenderReport summarizes a finished (or abandoned) session
func RenderReport(s workout.Snapshot, now time.Time) string {
	lines := []string{titleStyle.Render("Session " + s.ID)}

	status := s.State.String()
	if s.State.IsTerminal() {
		status = s.Reason.String()
	}
	lines = append(lines,
		mutedStyle.Render(fmt.Sprintf("%s intervals, cutoff %.1f%%", s.Config.Duration, s.CutoffPct)),
		fmt.Sprintf("Result:    %s", status),
	)
	if !s.StartedAt.IsZero() {
		lines = append(lines, fmt.Sprintf("Started:   %s (%s)", s.StartedAt.Format("15:04"), humanize.RelTime(s.StartedAt, now, "ago", "from now")))
	}

	completed := 0
	var avgs []float64
	var joules float64
	for _, iv := range s.History {
		if iv.NoSamples {
			continue
		}
		completed++
		avgs = append(avgs, iv.AveragePowerWatts)
		joules += iv.AveragePowerWatts * iv.Duration.Duration().Seconds()
	}
	lines = append(lines,
		fmt.Sprintf("Intervals: %d completed, %d with power", len(s.History), completed),
		fmt.Sprintf("Work:      %s kJ", humanize.Comma(int64(joules/1000))),
	)

	if base, ok := s.Baseline(); ok {
		lines = append(lines, fmt.Sprintf("Baseline:  #%d at %.0f W", base.Index, base.AveragePowerWatts))
	}

	if len(s.History) > 0 {
		lines = append(lines, "", headerStyle.Render(" #    avg W    drop"))
		for _, iv := range s.History {
			lines = append(lines, reportRow(s, iv))
		}
	}

	if len(avgs) > 1 {
		graph := asciigraph.Plot(avgs,
			asciigraph.Height(8),
			asciigraph.Width(50),
			asciigraph.Precision(0),
			asciigraph.Caption("interval average (W)"),
		)
		lines = append(lines, "", graph)
	}

	return cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func reportRow(s workout.Snapshot, iv workout.CompletedInterval) string {
	if iv.NoSamples {
		return mutedStyle.Render(fmt.Sprintf(" %-3d  no data", iv.Index))
	}
	row := fmt.Sprintf(" %-3d  %5.0f", iv.Index, iv.AveragePowerWatts)
	if base, ok := s.Baseline(); ok && base.Index == iv.Index {
		return row + "    base"
	}
	drop, ok := IntervalDrop(s, iv)
	if !ok {
		return row
	}
	cell := fmt.Sprintf("  %5.1f%%", drop)
	if drop >= s.CutoffPct {
		return row + alertStyle.Render(cell)
	}
	return row + cell
}

// FormatNotification is the one-line console form of a notification
func FormatNotification(n workout.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %-15s", n.At.Format("15:04:05"), n.StateName)
	if n.Interval != nil {
		if n.Interval.NoSamples {
			fmt.Fprintf(&b, " interval %d: no samples", n.Interval.Index)
		} else {
			fmt.Fprintf(&b, " interval %d: %.0f W", n.Interval.Index, n.Interval.AveragePowerWatts)
		}
	}
	if n.DropPct != nil {
		fmt.Fprintf(&b, ", drop %.1f%% of %.1f%%", *n.DropPct, n.CutoffPct)
	}
	if n.BaselineIndex > 0 && n.Interval != nil && n.Interval.Index == n.BaselineIndex {
		b.WriteString(" (baseline)")
	}
	if n.ReasonText != "" {
		fmt.Fprintf(&b, " - %s", n.ReasonText)
	}
	if n.ErrText != "" {
		fmt.Fprintf(&b, " error: %s", n.ErrText)
	}
	return b.String()
}

type ConsoleReporterArgs struct {
	Session SessionFeed
	Out     io.Writer
	Logger  *log.Logger
}

// ConsoleReporter prints notifications line by line for headless runs
type ConsoleReporter struct {
	session SessionFeed
	out     io.Writer
	logger  *log.Logger

	outMu sync.Mutex
}

func NewConsoleReporter(args ConsoleReporterArgs) *ConsoleReporter {
	if args.Logger == nil {
		panic("ConsoleReporter: logger cannot be nil")
	}
	if args.Session == nil {
		panic("ConsoleReporter: session cannot be nil")
	}
	if args.Out == nil {
		panic("ConsoleReporter: writer cannot be nil")
	}
	return &ConsoleReporter{
		session: args.Session,
		out:     args.Out,
		logger:  args.Logger,
	}
}

// Run prints until the session terminates or ctx is done. It returns the
// last snapshot seen.
func (r *ConsoleReporter) Run(ctx context.Context) workout.Snapshot {
	ch := make(chan workout.Notification, feedChannelDepth)
	unlisten := r.session.ListenToNotifications(ch)
	defer unlisten()

	for {
		select {
		case <-ctx.Done():
			return r.session.Snapshot()
		case n := <-ch:
			r.println(FormatNotification(n))
			if n.State.IsTerminal() {
				return r.session.Snapshot()
			}
		}
	}
}

func (r *ConsoleReporter) println(line string) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	if _, err := fmt.Fprintln(r.out, line); err != nil {
		r.logger.Printf("ConsoleReporter: write failed: %v", err)
	}
}
