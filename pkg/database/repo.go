package database

import (
	"context"
	"covfuzz/internal/types"
	"os"
	"time"

	"gorm.io/gorm"
)

// AddRun inserts the record of a starting run
func AddRun(ctx context.Context, db *gorm.DB, run *Run) error {
	if run == nil {
		return nil
	}
	return db.WithContext(ctx).Create(run).Error
}

// FinishRun stores the final counters of a run
func FinishRun(ctx context.Context, db *gorm.DB, runID string, metric Metric) error {
	return db.WithContext(ctx).
		Model(&Run{}).
		Where("id = ?", runID).
		Updates(map[string]any{"metric": metric, "updated_at": time.Now()}).Error
}

// NewRun creates a new Run object with the provided parameters
func NewRun(runID, target, seedDir, outputDir string) *Run {
	hostname, _ := os.Hostname()
	return &Run{
		ID:        runID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Target:    target,
		SeedDir:   seedDir,
		OutputDir: outputDir,
		Instance:  hostname,
		Metric:    Metric{},
	}
}

// inserts multiple crash records into the database
func AddCrashes(ctx context.Context, db *gorm.DB, crashes []*Crash) error {
	if len(crashes) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(crashes).Error
}

// NewCrash creates a new Crash object from an archived crash message
func NewCrash(msg types.CrashMessage) *Crash {
	return &Crash{
		RunID:     msg.RunId,
		CreatedAt: msg.DetectedAt,
		Kind:      msg.Kind,
		Path:      msg.Path,
		Hash:      msg.Hash,
	}
}

// inserts multiple seed records into the database
func AddSeeds(ctx context.Context, db *gorm.DB, seeds []*Seed) error {
	if len(seeds) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(seeds).Error
}

// NewSeed creates a new Seed object from an accepted seed message
func NewSeed(msg types.SeedMessage) *Seed {
	return &Seed{
		RunID:     msg.RunId,
		SeedID:    msg.SeedId,
		CreatedAt: time.Now(),
		Path:      msg.Path,
		Size:      msg.Size,
		NewNode:   int64(msg.NewNode),
	}
}
