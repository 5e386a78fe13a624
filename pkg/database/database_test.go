package database

import (
	"covfuzz/config"
	"covfuzz/internal/types"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func TestMetricValueScan(t *testing.T) {
	m := Metric{"execs": 10.0, "total_node": 3.0}
	v, err := m.Value()
	require.NoError(t, err)

	var scanned Metric
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, m, scanned)

	require.NoError(t, scanned.Scan(nil))
	assert.Nil(t, scanned)

	assert.Error(t, scanned.Scan(42))

	var empty Metric
	v, err = empty.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestNewCrashAndSeed(t *testing.T) {
	now := time.Now()
	crash := NewCrash(types.CrashMessage{
		Kind:       "crash",
		Path:       "/out/crashes/abc",
		Hash:       "abc",
		RunId:      "run-1",
		DetectedAt: now,
	})
	assert.Equal(t, &Crash{RunID: "run-1", CreatedAt: now, Kind: "crash", Path: "/out/crashes/abc", Hash: "abc"}, crash)

	seed := NewSeed(types.SeedMessage{SeedId: 7, Path: "/out/queue/id:000007", Size: 12, NewNode: 3, RunId: "run-1"})
	assert.Equal(t, "run-1", seed.RunID)
	assert.Equal(t, 7, seed.SeedID)
	assert.Equal(t, int64(3), seed.NewNode)

	run := NewRun("run-1", "./target @@", "seeds", "out")
	assert.Equal(t, "run-1", run.ID)
	assert.NotNil(t, run.Metric)
}

func TestOptionalBackendsDisabled(t *testing.T) {
	cfg := &config.AppConfig{}

	db, err := NewDBConnection(DBParams{AppConfig: cfg, Logger: zap.NewNop()})
	require.NoError(t, err)
	assert.Nil(t, db)

	client, err := NewRedisClient(RedisParams{Lc: fxtest.NewLifecycle(t), Config: cfg, Logger: zap.NewNop()})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewRedisClientBadURL(t *testing.T) {
	_, err := NewRedisClient(RedisParams{
		Lc:     fxtest.NewLifecycle(t),
		Config: &config.AppConfig{RedisUrl: "not-a-redis-url"},
		Logger: zap.NewNop(),
	})
	assert.Error(t, err)
}
