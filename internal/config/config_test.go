package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/workout"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoader_Load_MissingFileGivesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := NewLoader(path).Load()
	assert.ErrorIs(t, err, ErrNoConfig)

	assert.Zero(t, cfg.FTP)
	assert.Equal(t, "3m", cfg.Workout.Interval)
	assert.Equal(t, 3*time.Minute, cfg.Workout.Rest)
	assert.Equal(t, 0.0, cfg.Workout.Strictness)
	assert.False(t, cfg.ERG.Enabled)
	assert.Equal(t, 200.0, cfg.Demo.BaseWatts)
	assert.Equal(t, time.Second, cfg.Demo.SampleInterval)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "interval-trainer.log"), cfg.Log.File)
}

func TestLoader_Load_ReadsFile(t *testing.T) {
	path := writeConfig(t, `
ftp = 280
device_address = "C0:FF:EE:00:00:01"

[workout]
interval = "5m"
rest = "2m30s"
max_intervals = 8
strictness = 0.5

[erg]
enabled = true
work_pct = 110
rest_pct = 45

[web]
addr = ":8090"
`)

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 280, cfg.FTP)
	assert.Equal(t, "C0:FF:EE:00:00:01", cfg.DeviceAddress)
	assert.Equal(t, "5m", cfg.Workout.Interval)
	assert.Equal(t, 150*time.Second, cfg.Workout.Rest)
	assert.Equal(t, 8, cfg.Workout.MaxIntervals)
	assert.Equal(t, 0.5, cfg.Workout.Strictness)
	assert.True(t, cfg.ERG.Enabled)
	assert.Equal(t, ":8090", cfg.Web.Addr)
	assert.Equal(t, 10, cfg.Log.MaxSizeMB)
}

func TestLoader_Load_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "ftp = 280\n")
	t.Setenv("INTERVAL_TRAINER_FTP", "310")
	t.Setenv("INTERVAL_TRAINER_WORKOUT_STRICTNESS", "1")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 310, cfg.FTP)
	assert.Equal(t, 1.0, cfg.Workout.Strictness)
}

func TestLoader_Load_FlagsOverrideEnv(t *testing.T) {
	path := writeConfig(t, "ftp = 280\n")
	t.Setenv("INTERVAL_TRAINER_WORKOUT_INTERVAL", "10m")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("interval", "", "")
	fs.Bool("erg", false, "")
	fs.String("unrelated", "", "")
	require.NoError(t, fs.Parse([]string{"--interval=30s", "--erg"}))

	loader := NewLoader(path)
	require.NoError(t, loader.BindFlags(fs))

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "30s", cfg.Workout.Interval)
	assert.True(t, cfg.ERG.Enabled)
}

func TestLoader_Load_Invalid(t *testing.T) {
	path := writeConfig(t, `
ftp = 250
[workout]
interval = "4m"
strictness = 1.5
`)

	_, err := NewLoader(path).Load()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, workout.ErrUnsupportedDuration)
	assert.Contains(t, err.Error(), "workout.strictness")
}

func TestLoader_Load_FTPAboveLimit(t *testing.T) {
	path := writeConfig(t, "ftp = 40000\n")

	_, err := NewLoader(path).Load()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "ftp must be in [0,2000]")
}

func TestLoader_Load_Malformed(t *testing.T) {
	path := writeConfig(t, "ftp = = 3\n")

	_, err := NewLoader(path).Load()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoader_Save_FreshConfigDefaultsFTP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	loader := NewLoader(path)

	require.NoError(t, loader.Save(0, "AA:BB:CC:DD:EE:FF"))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultFTP, cfg.FTP)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", cfg.DeviceAddress)
}

func TestLoader_Save_PreservesOtherValues(t *testing.T) {
	path := writeConfig(t, `
ftp = 240
device_address = "AA:BB:CC:DD:EE:FF"

[workout]
interval = "2m"
`)
	t.Setenv("INTERVAL_TRAINER_WORKOUT_REST", "10s")

	require.NoError(t, NewLoader(path).Save(265, ""))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "10s")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 265, cfg.FTP)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", cfg.DeviceAddress)
	assert.Equal(t, "2m", cfg.Workout.Interval)
}

func TestConfig_SessionConfig(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "config.toml")).Load()
	require.ErrorIs(t, err, ErrNoConfig)

	_, err = cfg.SessionConfig()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg.FTP = 250
	cfg.ERG.Enabled = true
	sessionCfg, err := cfg.SessionConfig()
	require.NoError(t, err)

	assert.Equal(t, workout.Interval3m, sessionCfg.Duration)
	assert.Equal(t, 3*time.Minute, sessionCfg.Rest)
	assert.True(t, sessionCfg.ERG.Enabled)
	assert.Equal(t, int16(263), sessionCfg.ERG.WorkWatts)
	assert.Equal(t, int16(125), sessionCfg.ERG.RestWatts)
	assert.NoError(t, sessionCfg.Validate())
}

func TestConfig_SessionConfig_FTPAboveLimit(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "config.toml")).Load()
	require.ErrorIs(t, err, ErrNoConfig)

	cfg.FTP = 40000
	cfg.ERG.Enabled = true
	_, err = cfg.SessionConfig()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_WattsAtStaysInRange(t *testing.T) {
	cfg := Config{FTP: 40000}
	assert.Equal(t, int16(math.MaxInt16), cfg.wattsAt(200))
	assert.Equal(t, int16(0), cfg.wattsAt(-10))

	cfg.FTP = MaxFTP
	assert.Equal(t, int16(4000), cfg.wattsAt(200))
}
