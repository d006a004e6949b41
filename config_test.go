package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chalat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, -1, cfg.CPU)
	assert.Equal(t, time.Second, time.Duration(cfg.Interval))
	assert.Equal(t, uint(48), cfg.CounterWidth)
	assert.Equal(t, uint64(2_400_000_000), cfg.UncoreFrequencyHz)
	assert.Equal(t, 18, cfg.Boxes)
	assert.Equal(t, "/dev/cpu", cfg.MSRDir)
	_, err := uuid.Parse(cfg.AgentID)
	assert.NoError(t, err, "agent id should default to a uuid")
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CPU = -2
	cfg.Interval = 0
	cfg.CounterWidth = 65
	cfg.Boxes = 1
	cfg.LogFormat = "xml"

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	for _, want := range []string{"cpu -2", "interval", "counter width 65", "boxes 1", "log format"} {
		assert.Contains(t, err.Error(), want)
	}
	assert.Empty(t, cfg.AgentID)
}

func TestValidateWindowOnlyWithServer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window = 0
	assert.NoError(t, cfg.Validate())

	cfg.ServerURL = "ws://localhost:8080/monitoring"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
cpu: 5
interval: 250ms
count: 20
uncore_frequency_hz: 0
metrics_addr: ":9105"
`)
	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFile(path, nil))

	assert.Equal(t, 5, cfg.CPU)
	assert.Equal(t, 250*time.Millisecond, time.Duration(cfg.Interval))
	assert.Equal(t, uint64(20), cfg.Count)
	assert.Zero(t, cfg.UncoreFrequencyHz)
	assert.Equal(t, ":9105", cfg.MetricsAddr)
	assert.Equal(t, 18, cfg.Boxes, "unset keys keep their defaults")
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "cores: 3\n")
	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFile(path, nil))
}

func TestLoadFileBadDuration(t *testing.T) {
	path := writeConfig(t, "interval: soon\n")
	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFile(path, nil))
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "cpu: 5\ninterval: 250ms\n")
	cfg := DefaultConfig()
	fs := pflag.NewFlagSet("chalat", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--cpu", "7", "-o", "out.txt"}))

	require.NoError(t, cfg.LoadFile(path, fs))

	assert.Equal(t, 7, cfg.CPU)
	assert.Equal(t, 250*time.Millisecond, time.Duration(cfg.Interval))
	assert.Equal(t, "out.txt", cfg.Output)
}

func TestDurationMarshalYAML(t *testing.T) {
	v, err := Duration(1500 * time.Millisecond).MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1.5s", v)
}
