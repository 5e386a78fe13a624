package stats

import (
	"context"
	"covfuzz/config"
	"covfuzz/pkg/metrics"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const StatsFileName = "fuzzer_stats"

// fileStats is the on-disk layout of <out>/fuzzer_stats.
type fileStats struct {
	RunID       string  `yaml:"run_id"`
	StartTime   int64   `yaml:"start_time"`
	LastUpdate  int64   `yaml:"last_update"`
	ExecsDone   uint64  `yaml:"execs_done"`
	ExecsPerSec float64 `yaml:"execs_per_sec"`
	TotalNode   uint64  `yaml:"total_node"`
	CorpusCount int     `yaml:"corpus_count"`
	CrashExecs  uint64  `yaml:"crash_execs"`
	HangExecs   uint64  `yaml:"hang_execs"`
	LastNewNode int64   `yaml:"last_find,omitempty"`
	TargetCmd   string  `yaml:"command_line"`
}

// Reporter publishes snapshots of State at most once per interval.
type Reporter struct {
	logger    *zap.Logger
	collector *metrics.Collector
	redis     *redis.Client

	runID     string
	statsPath string
	targetCmd string
	interval  time.Duration
	startTime time.Time
	now       func() time.Time

	mu         sync.Mutex
	lastReport time.Time
}

type ReporterParams struct {
	fx.In

	Logger      *zap.Logger
	AppConfig   *config.AppConfig
	Collector   *metrics.Collector
	RedisClient *redis.Client `optional:"true"`
}

func NewReporter(p ReporterParams) *Reporter {
	return &Reporter{
		logger:    p.Logger.Named("stats"),
		collector: p.Collector,
		redis:     p.RedisClient,
		runID:     p.AppConfig.RunID,
		statsPath: filepath.Join(p.AppConfig.OutputDir, StatsFileName),
		targetCmd: strings.Join(p.AppConfig.TargetArgs, " "),
		interval:  p.AppConfig.FuzzConfig.StatsInterval,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Report publishes the snapshot unless the previous report is younger than the interval.
func (r *Reporter) Report(ctx context.Context, snap Snapshot, corpusSize int) {
	r.mu.Lock()
	now := r.now()
	if !r.lastReport.IsZero() && now.Sub(r.lastReport) < r.interval {
		r.mu.Unlock()
		return
	}
	r.lastReport = now
	r.mu.Unlock()

	r.publish(ctx, snap, corpusSize, now)
}

// Flush publishes the snapshot regardless of the interval.
func (r *Reporter) Flush(ctx context.Context, snap Snapshot, corpusSize int) {
	r.mu.Lock()
	now := r.now()
	r.lastReport = now
	r.mu.Unlock()

	r.publish(ctx, snap, corpusSize, now)
}

func (r *Reporter) publish(ctx context.Context, snap Snapshot, corpusSize int, now time.Time) {
	var execsPerSec float64
	if elapsed := now.Sub(r.startTime).Seconds(); elapsed > 0 {
		execsPerSec = float64(snap.ExecCount) / elapsed
	}

	r.logger.Info("fuzzing stats",
		zap.Uint64("execs", snap.ExecCount),
		zap.Uint64("total_node", snap.TotalNode),
		zap.Int("corpus", corpusSize),
		zap.Uint64("crash_execs", snap.Crashes),
		zap.Uint64("hang_execs", snap.Hangs),
		zap.String("exec_speed", fmt.Sprintf("%.1f/s", execsPerSec)),
	)

	if r.collector != nil {
		r.collector.Observe(snap.ExecCount, snap.TotalNode, snap.Crashes, snap.Hangs, corpusSize)
	}

	stats := fileStats{
		RunID:       r.runID,
		StartTime:   r.startTime.Unix(),
		LastUpdate:  now.Unix(),
		ExecsDone:   snap.ExecCount,
		ExecsPerSec: execsPerSec,
		TotalNode:   snap.TotalNode,
		CorpusCount: corpusSize,
		CrashExecs:  snap.Crashes,
		HangExecs:   snap.Hangs,
		TargetCmd:   r.targetCmd,
	}
	if !snap.LastNewNode.IsZero() {
		stats.LastNewNode = snap.LastNewNode.Unix()
	}
	if err := r.writeStatsFile(stats); err != nil {
		r.logger.Warn("failed to write stats file", zap.String("path", r.statsPath), zap.Error(err))
	}

	if r.redis != nil {
		key := fmt.Sprintf("covfuzz:stats:%s", r.runID)
		err := r.redis.HSet(ctx, key, map[string]any{
			"execs":       snap.ExecCount,
			"total_node":  snap.TotalNode,
			"corpus":      corpusSize,
			"crash_execs": snap.Crashes,
			"hang_execs":  snap.Hangs,
			"last_update": now.Unix(),
		}).Err()
		if err != nil {
			r.logger.Warn("failed to push stats to redis", zap.String("key", key), zap.Error(err))
		}
	}
}

// writeStatsFile replaces the stats file atomically so readers never see a partial document.
func (r *Reporter) writeStatsFile(stats fileStats) error {
	data, err := yaml.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}
	tmp := r.statsPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, r.statsPath)
}
