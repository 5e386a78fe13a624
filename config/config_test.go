package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOptions() CLIOptions {
	return CLIOptions{
		SeedDir:    "/tmp/seeds",
		OutputDir:  "/tmp/out",
		TargetArgs: []string{"./target", "-v", "@@"},
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"LOG_LEVEL", "SERVICE_NAME", "EXEC_TIMEOUT", "MAP_SIZE", "MAX_INPUT_SIZE", "STATS_INTERVAL", "RNG_SEED", "SEED_SYNC", "OTEL_ENABLED"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig(validOptions())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "covfuzz", cfg.ServiceName)
	assert.Equal(t, time.Second, cfg.FuzzConfig.ExecTimeout)
	assert.Equal(t, 1<<16, cfg.FuzzConfig.MapSize)
	assert.Equal(t, 1<<20, cfg.FuzzConfig.MaxInputSize)
	assert.Equal(t, 5*time.Second, cfg.FuzzConfig.StatsInterval)
	assert.False(t, cfg.FuzzConfig.SeedSync)
	assert.False(t, cfg.TelemetryEnabled)
	assert.NotEmpty(t, cfg.RunID)
	assert.Equal(t, []string{"./target", "-v", "@@"}, cfg.TargetArgs)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("EXEC_TIMEOUT", "250ms")
	t.Setenv("MAP_SIZE", "4096")
	t.Setenv("RNG_SEED", "42")
	t.Setenv("SEED_SYNC", "true")
	t.Setenv("STATS_INTERVAL", "not-a-duration")

	cfg, err := LoadConfig(validOptions())
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.FuzzConfig.ExecTimeout)
	assert.Equal(t, 4096, cfg.FuzzConfig.MapSize)
	assert.Equal(t, int64(42), cfg.FuzzConfig.RNGSeed)
	assert.True(t, cfg.FuzzConfig.SeedSync)
	// malformed values fall back to the default
	assert.Equal(t, 5*time.Second, cfg.FuzzConfig.StatsInterval)
}

func TestLoadConfigRequiredOptions(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*CLIOptions)
	}{
		{"missing seeds", func(o *CLIOptions) { o.SeedDir = "" }},
		{"missing output", func(o *CLIOptions) { o.OutputDir = "" }},
		{"missing target", func(o *CLIOptions) { o.TargetArgs = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validOptions()
			tt.modify(&opts)
			_, err := LoadConfig(opts)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigRejectsBadMapSize(t *testing.T) {
	t.Setenv("MAP_SIZE", "-1")
	_, err := LoadConfig(validOptions())
	assert.Error(t, err)
}
