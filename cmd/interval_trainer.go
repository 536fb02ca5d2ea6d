package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/config"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/setup"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/trainer"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/ui"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/workout"
)

var errInterrupted = errors.New("interrupted by user")

type options struct {
	configPath string
	demo       bool
	sim        bool
	headless   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(os.Stdin, os.Stdout, os.Stderr)
	err := cmd.ExecuteContext(ctx)
	if err == nil && ctx.Err() != nil {
		err = errInterrupted
	}
	code := exitCode(err)
	if err != nil {
		fmt.Fprintln(os.Stderr, "\n"+describeError(err))
	}
	stop()
	os.Exit(code)
}

// exitCode is 130 for an interrupt and 1 for every other failure
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errInterrupted), errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

func describeError(err error) string {
	switch {
	case errors.Is(err, errInterrupted), errors.Is(err, context.Canceled):
		return "Interrupted by user"
	case errors.Is(err, config.ErrInvalidConfig), errors.Is(err, config.ErrNoConfig):
		return fmt.Sprintf("Configuration error: %v", err)
	case errors.Is(err, trainer.ErrDevice):
		return fmt.Sprintf("Device error: %v", err)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "interval-trainer",
		Short: "Adaptive interval workouts for FTMS smart trainers",
		Long: `Rides repeated intervals on a smart trainer and ends the workout once the
average power of an interval has dropped past the cutoff for its duration,
measured against a baseline interval from early in the session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkout(cmd, opts, stdin, stdout)
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default "+config.DefaultPath()+")")

	flags := root.Flags()
	flags.BoolVar(&opts.demo, "demo", false, "ride against a synthetic power source instead of a trainer")
	flags.BoolVar(&opts.sim, "sim", false, "ride against an in-process simulated FTMS trainer")
	flags.BoolVar(&opts.headless, "headless", false, "start at once and print notifications instead of the dashboard")
	flags.Int("ftp", 0, "functional threshold power in watts")
	flags.String("device", "", "trainer Bluetooth address")
	flags.String("interval", "", "interval duration: 15s, 30s, 1m, 2m, 3m, 5m or 10m")
	flags.Duration("rest", 0, "rest between intervals")
	flags.Int("max-intervals", 0, "stop after this many intervals (0 for no limit)")
	flags.Float64("strictness", 0, "0 uses the most permissive cutoff, 1 the strictest")
	flags.Bool("erg", false, "drive trainer target power for work and rest")
	flags.String("web-addr", "", "serve the live session feed on this address")
	flags.String("sim-addr", "", "serve the simulated trainer control API on this address")
	flags.String("log-file", "", "log file path")
	root.MarkFlagsMutuallyExclusive("demo", "sim")

	root.AddCommand(newThresholdsCommand(opts), newConfigCommand(opts))
	return root
}

// loadConfig resolves config for cmd. A missing file is not an error here;
// missing reports it so the caller can write one.
func loadConfig(cmd *cobra.Command, opts *options) (cfg config.Config, loader *config.Loader, missing bool, err error) {
	loader = config.NewLoader(opts.configPath)
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return config.Config{}, nil, false, err
	}
	cfg, err = loader.Load()
	if errors.Is(err, config.ErrNoConfig) {
		return cfg, loader, true, nil
	}
	return cfg, loader, false, err
}

func newThresholdsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Show the drop cutoff and baseline interval for every duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			out, err := ui.RenderThresholdTable(workout.NewThresholdTable(), cfg.Workout.Strictness)
			if err != nil {
				return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().Float64("strictness", 0, "0 uses the most permissive cutoff, 1 the strictest")
	return cmd
}

func newConfigCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), config.NewLoader(opts.configPath).Path())
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the resolved configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, loader, missing, err := loadConfig(cmd, opts)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderConfig(cfg, loader.Path(), missing))
				return nil
			},
		},
		&cobra.Command{
			Use:   "setup",
			Short: "Prompt for FTP and save it",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, loader, _, err := loadConfig(cmd, opts)
				if err != nil {
					return err
				}
				ftp, err := setup.PromptFTP(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
				if errors.Is(err, setup.ErrCancelled) {
					fmt.Fprintln(cmd.OutOrStdout(), "\nSetup cancelled by user")
					return nil
				}
				if err != nil {
					return err
				}
				if err := loader.Save(ftp, cfg.DeviceAddress); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved FTP %dW to %s\n", ftp, loader.Path())
				return nil
			},
		},
	)
	return cmd
}
