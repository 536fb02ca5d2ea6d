package ui

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"
	"github.com/rivo/tview"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/trainer"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/workout"
)

const maxHistoryRows = 8

// IntervalDrop is the drop of iv against the session baseline. False for the
// baseline itself, intervals before it and intervals without samples.
func IntervalDrop(s workout.Snapshot, iv workout.CompletedInterval) (float64, bool) {
	base, ok := s.Baseline()
	if !ok || iv.NoSamples || iv.Index <= base.Index {
		return 0, false
	}
	r, err := workout.EvaluateDrop(base.AveragePowerWatts, iv.AveragePowerWatts, s.CutoffPct)
	if err != nil {
		return 0, false
	}
	return r.DropPct, true
}

func stateColor(state workout.State) string {
	switch state {
	case workout.StateIntervalActive:
		return "green"
	case workout.StateIntervalClosing:
		return "yellow"
	case workout.StateContinuing:
		return "aqua"
	case workout.StateTerminated:
		return "red"
	default:
		return "gray"
	}
}

func formatSessionPanel(view SessionView) string {
	s := view.Snapshot
	var b strings.Builder

	fmt.Fprintf(&b, "\n  [gray]State:[white]     [%s]%s[white]\n", stateColor(s.State), s.State)
	fmt.Fprintf(&b, "  [gray]Intervals:[white] %s work / %s rest", s.Config.Duration, s.Config.Rest)
	if s.Config.MaxIntervals > 0 {
		fmt.Fprintf(&b, " (max %d)", s.Config.MaxIntervals)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "  [gray]Cutoff:[white]    %.1f%% [gray](range %.0f-%.0f%%)[white]\n", s.CutoffPct, s.Range.MinDropPct, s.Range.MaxDropPct)

	if base, ok := s.Baseline(); ok {
		fmt.Fprintf(&b, "  [gray]Baseline:[white]  #%d at [yellow]%.0f[white] W\n", base.Index, base.AveragePowerWatts)
	} else {
		fmt.Fprintf(&b, "  [gray]Baseline:[white]  [gray]pending (interval %d)[white]\n", workout.ExpectedBaselineIndex(s.Config.Duration))
	}

	if s.Index > 0 && !s.State.IsTerminal() {
		fmt.Fprintf(&b, "\n  [cyan]Interval %d[white]\n", s.Index)
	}

	if len(s.History) > 0 {
		b.WriteString("\n  [gray]#    avg W    drop[white]\n")
		start := max(0, len(s.History)-maxHistoryRows)
		for _, iv := range s.History[start:] {
			b.WriteString(formatHistoryRow(s, iv))
		}
	}

	if last := view.Last; last != nil && last.Err != nil {
		fmt.Fprintf(&b, "\n  [red]%s[white]\n", tview.Escape(last.ErrText))
	}

	switch s.State {
	case workout.StateAwaitingStart:
		b.WriteString("\n  [yellow]S[white] Start  |  [yellow]Esc[white] Quit\n")
	case workout.StateTerminated:
		fmt.Fprintf(&b, "\n  [red]Finished:[white] %s\n", s.Reason)
		b.WriteString("  [yellow]Esc[white] Quit\n")
	default:
		b.WriteString("\n  [yellow]X[white] Stop  |  [yellow]Esc[white] Quit\n")
	}
	return b.String()
}

func formatHistoryRow(s workout.Snapshot, iv workout.CompletedInterval) string {
	if iv.NoSamples {
		return fmt.Sprintf("  %-3d  [gray]no data[white]\n", iv.Index)
	}
	row := fmt.Sprintf("  %-3d  %5.0f", iv.Index, iv.AveragePowerWatts)
	if base, ok := s.Baseline(); ok && base.Index == iv.Index {
		return row + "    [aqua]base[white]\n"
	}
	if drop, ok := IntervalDrop(s, iv); ok {
		color := "white"
		if drop >= s.CutoffPct {
			color = "red"
		}
		return row + fmt.Sprintf("  [%s]%5.1f%%[white]\n", color, drop)
	}
	return row + "\n"
}

func formatPowerPanel(data LiveData, width, height int) string {
	if len(data.History) == 0 {
		return "\n\n  [gray]Waiting for power...[white]"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n  [blue]Power:[white]        [yellow]%.0f[white] W\n", data.Watts)
	if data.HasAverage {
		fmt.Fprintf(&b, "  [blue]Interval avg:[white] [yellow]%.0f[white] W [gray](%d samples)[white]\n", data.IntervalAverage, data.Samples)
	} else {
		b.WriteString("  [blue]Interval avg:[white] [gray]-[white]\n")
	}

	graphHeight := height - 5
	graphWidth := width - 12
	if graphHeight >= 3 && graphWidth >= 10 && len(data.History) > 1 {
		graph := asciigraph.Plot(data.History,
			asciigraph.Height(graphHeight),
			asciigraph.Width(graphWidth),
			asciigraph.Precision(0),
			asciigraph.LowerBound(0),
		)
		b.WriteString("\n")
		b.WriteString(tview.Escape(graph))
	}
	return b.String()
}

func formatTrainerPanel(status trainer.Status) string {
	if status.Source == "" {
		return "\n  [gray]No trainer[white]"
	}
	var b strings.Builder
	if status.Connected {
		fmt.Fprintf(&b, "\n  [green]●[white] %s", status.Source)
	} else {
		fmt.Fprintf(&b, "\n  [gray]○[white] %s", status.Source)
	}
	if status.Address != "" {
		fmt.Fprintf(&b, " [gray](%s)[white]", status.Address)
	}
	b.WriteString("\n")
	if stream, ok := trainer.GetPowerStreamByID(status.Stream); ok {
		fmt.Fprintf(&b, "  [gray]Stream:[white] %s\n", stream.DisplayName)
	}
	if status.ControlAcquired {
		if status.TargetPowerWatts > 0 {
			fmt.Fprintf(&b, "  [gray]ERG:[white]    [yellow]%d[white] W\n", status.TargetPowerWatts)
		} else {
			b.WriteString("  [gray]ERG:[white]    ready\n")
		}
	}
	if status.Err != nil {
		fmt.Fprintf(&b, "  [red]%s[white]\n", tview.Escape(status.Err.Error()))
	}
	return b.String()
}
