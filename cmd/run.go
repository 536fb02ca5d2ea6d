package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rivo/tview"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
	"tinygo.org/x/bluetooth"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/bt"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/config"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/setup"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/trainer"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/ui"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/web"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/workout"
)

const (
	logChannelDepth = 256
	shutdownTimeout = 5 * time.Second
	stopTimeout     = 2 * time.Second
)

func runWorkout(cmd *cobra.Command, opts *options, stdin io.Reader, stdout io.Writer) error {
	ctx := cmd.Context()

	cfg, loader, missing, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	if cfg.FTP == 0 {
		if opts.demo || opts.sim {
			cfg.FTP = config.DefaultFTP
		} else {
			ftp, err := setup.PromptFTP(ctx, stdin, stdout)
			if errors.Is(err, setup.ErrCancelled) {
				fmt.Fprintln(stdout, "\nSetup cancelled by user")
				return nil
			}
			if err != nil {
				return err
			}
			if err := loader.Save(ftp, cfg.DeviceAddress); err != nil {
				return err
			}
			cfg.FTP = ftp
			missing = false
		}
	}
	if missing && !opts.demo && !opts.sim {
		if err := loader.Save(cfg.FTP, cfg.DeviceAddress); err != nil {
			return err
		}
	}

	sessionConfig, err := cfg.SessionConfig()
	if err != nil {
		return err
	}

	logChan := make(chan string, logChannelDepth)
	logFile := &lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}
	defer logFile.Close()

	// the dashboard owns the terminal, so only headless runs log to stderr
	var logOut io.Writer = io.MultiWriter(logFile, ui.NewLogChannelWriter(logChan))
	if opts.headless {
		logOut = io.MultiWriter(logFile, cmd.ErrOrStderr())
	}
	logger := log.New(logOut, "", log.LstdFlags|log.Lmicroseconds)
	logger.Printf("main: Starting with config %s (ftp %dW, %s intervals)", loader.Path(), cfg.FTP, sessionConfig.Duration)

	port := newPort(cfg, opts, logger)
	defer port.Shutdown()

	if err := port.Start(ctx); err != nil {
		return err
	}

	session, err := workout.NewSession(workout.SessionArgs{
		Config:  sessionConfig,
		Table:   workout.NewThresholdTable(),
		Trainer: port,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	defer session.Shutdown()

	if cfg.Web.Addr != "" {
		server := web.NewServer(web.ServerArgs{Addr: cfg.Web.Addr, Feed: session, Logger: logger})
		server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	var final workout.Snapshot
	if opts.headless {
		final, err = runHeadless(ctx, session, stdout, logger)
	} else {
		final, err = runDashboard(ctx, session, port, logger, logChan)
	}

	if !final.StartedAt.IsZero() {
		fmt.Fprintln(stdout, ui.RenderReport(final, time.Now()))
	}
	return err
}

func newPort(cfg config.Config, opts *options, logger *log.Logger) trainer.Port {
	switch {
	case opts.demo:
		return trainer.NewDemoPort(trainer.DemoPortArgs{
			Logger:             logger,
			BaseWatts:          cfg.Demo.BaseWatts,
			FadeWattsPerMinute: cfg.Demo.FadeWattsPerMinute,
			SampleInterval:     cfg.Demo.SampleInterval,
		})
	case opts.sim:
		device := trainer.NewSimulatedTrainer(trainer.SimulatedTrainerArgs{
			Logger:          logger,
			PowerWatts:      int16(cfg.Demo.BaseWatts),
			FadeWattsPerMin: cfg.Demo.FadeWattsPerMinute,
			NotifyInterval:  time.Second,
		})
		return trainer.NewBLEPort(trainer.BLEPortArgs{
			Manager: trainer.NewSimulatedManager(logger, device, cfg.Sim.Addr),
			Address: trainer.DefaultSimulatorAddress,
			Logger:  logger,
		})
	default:
		return trainer.NewBLEPort(trainer.BLEPortArgs{
			Manager: bt.NewBTManager(bluetooth.DefaultAdapter, logger),
			Address: cfg.DeviceAddress,
			Logger:  logger,
		})
	}
}

// runHeadless starts the session at once and prints notifications until it ends
func runHeadless(ctx context.Context, session *workout.Session, out io.Writer, logger *log.Logger) (workout.Snapshot, error) {
	reporter := ui.NewConsoleReporter(ui.ConsoleReporterArgs{Session: session, Out: out, Logger: logger})
	if err := session.Start(); err != nil {
		return session.Snapshot(), err
	}
	final := reporter.Run(ctx)
	if ctx.Err() != nil {
		return stopSession(session, logger), errInterrupted
	}
	return final, nil
}

// stopSession stops the session and returns the snapshot once the stop has landed
func stopSession(session *workout.Session, logger *log.Logger) workout.Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	final, err := session.StopAndWait(ctx)
	if err != nil && !errors.Is(err, workout.ErrSessionClosed) {
		logger.Printf("main: Stop failed: %v", err)
	}
	return final
}

func runDashboard(ctx context.Context, session *workout.Session, port trainer.Port, logger *log.Logger, logChan <-chan string) (workout.Snapshot, error) {
	app := tview.NewApplication()
	model := ui.NewUIModel(ui.UIModelArgs{
		Session: session,
		Trainer: port,
		Logger:  logger,
		LogChan: logChan,
	})
	controller := ui.NewUIController(model, session, logger)
	view := ui.NewBaseUIView(ui.NewBaseUIViewArg{
		UIViewImpl:   ui.NewCursesUIView(logger, app),
		UIModel:      model,
		UIController: controller,
		Logger:       logger,
	})

	stopChan := make(chan struct{})
	go_func_utils.SafeGo(logger, func() {
		select {
		case <-ctx.Done():
			controller.OnInterruptKey()
		case <-stopChan:
		}
	})

	err := view.Run()
	close(stopChan)
	view.Shutdown()
	model.Shutdown()

	if err != nil {
		return stopSession(session, logger), err
	}
	// Esc and Ctrl-C have already queued a stop
	select {
	case <-session.Terminated():
	case <-time.After(stopTimeout):
	}
	final := stopSession(session, logger)
	if controller.Interrupted() || ctx.Err() != nil {
		return final, errInterrupted
	}
	return final, nil
}

func renderConfig(cfg config.Config, path string, missing bool) string {
	source := path
	if missing {
		source += " (not found, defaults)"
	}
	ftp := "not set"
	if cfg.FTP > 0 {
		ftp = fmt.Sprintf("%d W", cfg.FTP)
	}
	device := cfg.DeviceAddress
	if device == "" {
		device = "not set"
	}
	webAddr := cfg.Web.Addr
	if webAddr == "" {
		webAddr = "disabled"
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Rows(
			[]string{"config", source},
			[]string{"ftp", ftp},
			[]string{"device_address", device},
			[]string{"workout.interval", cfg.Workout.Interval},
			[]string{"workout.rest", cfg.Workout.Rest.String()},
			[]string{"workout.max_intervals", fmt.Sprintf("%d", cfg.Workout.MaxIntervals)},
			[]string{"workout.strictness", fmt.Sprintf("%.2f", cfg.Workout.Strictness)},
			[]string{"erg", fmt.Sprintf("%t (work %.0f%%, rest %.0f%%)", cfg.ERG.Enabled, cfg.ERG.WorkPct, cfg.ERG.RestPct)},
			[]string{"web.addr", webAddr},
			[]string{"sim.addr", cfg.Sim.Addr},
			[]string{"log.file", cfg.Log.File},
		)
	return t.Render()
}
