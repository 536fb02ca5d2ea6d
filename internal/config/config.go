package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/workout"
)

var (
	// ErrNoConfig is returned by Load when the config file does not exist.
	// The returned Config still carries the defaults.
	ErrNoConfig      = errors.New("config: file not found")
	ErrInvalidConfig = errors.New("config: invalid")
)

const (
	EnvPrefix  = "INTERVAL_TRAINER"
	DefaultFTP = 300
	MaxFTP     = 2000
)

type Config struct {
	FTP           int           `mapstructure:"ftp"`
	DeviceAddress string        `mapstructure:"device_address"`
	Workout       WorkoutConfig `mapstructure:"workout"`
	ERG           ERGConfig     `mapstructure:"erg"`
	Demo          DemoConfig    `mapstructure:"demo"`
	Log           LogConfig     `mapstructure:"log"`
	Web           WebConfig     `mapstructure:"web"`
	Sim           SimConfig     `mapstructure:"sim"`
}

type WorkoutConfig struct {
	Interval     string        `mapstructure:"interval"`
	Rest         time.Duration `mapstructure:"rest"`
	MaxIntervals int           `mapstructure:"max_intervals"`
	Strictness   float64       `mapstructure:"strictness"`
}

// ERGConfig targets are percentages of FTP
type ERGConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	WorkPct float64 `mapstructure:"work_pct"`
	RestPct float64 `mapstructure:"rest_pct"`
}

type DemoConfig struct {
	BaseWatts          float64       `mapstructure:"base_watts"`
	FadeWattsPerMinute float64       `mapstructure:"fade_watts_per_min"`
	SampleInterval     time.Duration `mapstructure:"sample_interval"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// WebConfig.Addr empty disables the live feed
type WebConfig struct {
	Addr string `mapstructure:"addr"`
}

type SimConfig struct {
	Addr string `mapstructure:"addr"`
}

// DefaultDir is ~/.config/interval-trainer
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "interval-trainer")
}

func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.toml")
}

var defaults = map[string]any{
	"ftp":                     0,
	"device_address":          "",
	"workout.interval":        "3m",
	"workout.rest":            3 * time.Minute,
	"workout.max_intervals":   0,
	"workout.strictness":      0.0,
	"erg.enabled":             false,
	"erg.work_pct":            105.0,
	"erg.rest_pct":            50.0,
	"demo.base_watts":         200.0,
	"demo.fade_watts_per_min": 2.0,
	"demo.sample_interval":    time.Second,
	"log.file":                "",
	"log.max_size_mb":         10,
	"log.max_backups":         3,
	"web.addr":                "",
	"sim.addr":                "localhost:9902",
}

// flagKeys maps command line flag names to config keys
var flagKeys = map[string]string{
	"ftp":           "ftp",
	"device":        "device_address",
	"interval":      "workout.interval",
	"rest":          "workout.rest",
	"max-intervals": "workout.max_intervals",
	"strictness":    "workout.strictness",
	"erg":           "erg.enabled",
	"web-addr":      "web.addr",
	"sim-addr":      "sim.addr",
	"log-file":      "log.file",
}

// Loader resolves config from, in increasing priority: defaults, the TOML
// file, INTERVAL_TRAINER_* environment variables and bound flags.
type Loader struct {
	path string
	v    *viper.Viper
}

func NewLoader(path string) *Loader {
	if path == "" {
		path = DefaultPath()
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return &Loader{path: path, v: v}
}

func (l *Loader) Path() string {
	return l.path
}

// BindFlags binds every known flag present in fs
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := l.v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("config: bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads and validates the config. A missing file yields the defaults and
// ErrNoConfig; an FTP of 0 means FTP has not been set up yet and is not an error.
func (l *Loader) Load() (Config, error) {
	var missing bool
	if err := l.v.ReadInConfig(); err != nil {
		if !isNotExist(err) {
			return Config{}, fmt.Errorf("%w: reading %s: %w", ErrInvalidConfig, l.path, err)
		}
		missing = true
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parsing %s: %w", ErrInvalidConfig, l.path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(filepath.Dir(l.path), "interval-trainer.log")
	}
	if missing {
		return cfg, ErrNoConfig
	}
	return cfg, nil
}

// Save writes FTP and device address back to the file, keeping every other
// value already in it. An unset FTP is saved as DefaultFTP.
func (l *Loader) Save(ftp int, deviceAddress string) error {
	if ftp <= 0 {
		ftp = DefaultFTP
	}

	// a separate viper so env and flag overrides are not persisted
	file := viper.New()
	file.SetConfigFile(l.path)
	file.SetConfigType("toml")
	if err := file.ReadInConfig(); err != nil && !isNotExist(err) {
		return fmt.Errorf("%w: reading %s: %w", ErrInvalidConfig, l.path, err)
	}
	file.Set("ftp", ftp)
	if deviceAddress != "" {
		file.Set("device_address", deviceAddress)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("config: creating config directory: %w", err)
	}
	if err := file.WriteConfigAs(l.path); err != nil {
		return fmt.Errorf("config: writing %s: %w", l.path, err)
	}

	l.v.Set("ftp", ftp)
	if deviceAddress != "" {
		l.v.Set("device_address", deviceAddress)
	}
	return nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound)
}

func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.FTP >= 0 && c.FTP <= MaxFTP, "ftp must be in [0,%d], got %d", MaxFTP, c.FTP)
	if _, err := workout.ParseIntervalDuration(c.Workout.Interval); err != nil {
		errs = append(errs, err)
	}
	check(c.Workout.Rest >= 0, "workout.rest must not be negative, got %s", c.Workout.Rest)
	check(c.Workout.MaxIntervals >= 0, "workout.max_intervals must not be negative, got %d", c.Workout.MaxIntervals)
	check(c.Workout.Strictness >= 0 && c.Workout.Strictness <= 1, "workout.strictness must be in [0,1], got %v", c.Workout.Strictness)
	check(c.ERG.WorkPct > 0 && c.ERG.WorkPct <= 200, "erg.work_pct must be in (0,200], got %v", c.ERG.WorkPct)
	check(c.ERG.RestPct > 0 && c.ERG.RestPct <= 200, "erg.rest_pct must be in (0,200], got %v", c.ERG.RestPct)
	check(c.Demo.BaseWatts > 0, "demo.base_watts must be positive, got %v", c.Demo.BaseWatts)
	check(c.Demo.FadeWattsPerMinute >= 0, "demo.fade_watts_per_min must not be negative, got %v", c.Demo.FadeWattsPerMinute)
	check(c.Demo.SampleInterval > 0, "demo.sample_interval must be positive, got %s", c.Demo.SampleInterval)
	check(c.Log.MaxSizeMB > 0, "log.max_size_mb must be positive, got %d", c.Log.MaxSizeMB)
	check(c.Log.MaxBackups >= 0, "log.max_backups must not be negative, got %d", c.Log.MaxBackups)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// SessionConfig builds the workout protocol. FTP must be set.
func (c Config) SessionConfig() (workout.Config, error) {
	if c.FTP <= 0 {
		return workout.Config{}, fmt.Errorf("%w: ftp is not set", ErrInvalidConfig)
	}
	if c.FTP > MaxFTP {
		return workout.Config{}, fmt.Errorf("%w: ftp must not exceed %d, got %d", ErrInvalidConfig, MaxFTP, c.FTP)
	}
	duration, err := workout.ParseIntervalDuration(c.Workout.Interval)
	if err != nil {
		return workout.Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return workout.Config{
		Duration:     duration,
		Rest:         c.Workout.Rest,
		MaxIntervals: c.Workout.MaxIntervals,
		Strictness:   c.Workout.Strictness,
		ERG: workout.ERGTargets{
			Enabled:   c.ERG.Enabled,
			WorkWatts: c.wattsAt(c.ERG.WorkPct),
			RestWatts: c.wattsAt(c.ERG.RestPct),
		},
	}, nil
}

// wattsAt is pct of FTP, clamped to the int16 range the trainer protocol carries
func (c Config) wattsAt(pct float64) int16 {
	watts := math.Round(float64(c.FTP) * pct / 100)
	return int16(max(0, min(watts, math.MaxInt16)))
}
