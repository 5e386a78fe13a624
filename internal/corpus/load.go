package corpus

import (
	"covfuzz/config"
	"covfuzz/internal/utils"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrNoSeeds = errors.New("no seed files found")

// SeedDir is the directory the initial corpus was loaded from.
type SeedDir string

var Module = fx.Options(
	fx.Provide(NewInitialCorpus),
	fx.Provide(NewQueueStore),
)

type InitialCorpusParams struct {
	fx.In

	Logger    *zap.Logger
	AppConfig *config.AppConfig
}

// NewInitialCorpus loads the startup corpus from the configured seed location.
// A .tar.gz seed bundle is unpacked into <output>/seeds first.
func NewInitialCorpus(p InitialCorpusParams) (*Corpus, SeedDir, error) {
	dir := p.AppConfig.SeedDir
	if utils.IsTarGz(dir) {
		unpacked := filepath.Join(p.AppConfig.OutputDir, "seeds")
		if err := os.MkdirAll(unpacked, 0755); err != nil {
			return nil, "", fmt.Errorf("failed to create seed folder: %w", err)
		}
		if err := utils.UnpackTarGz(dir, unpacked); err != nil {
			return nil, "", err
		}
		p.Logger.Info("unpacked seed bundle", zap.String("bundle", dir), zap.String("seed_dir", unpacked))
		dir = unpacked
	}

	c, err := LoadDir(p.Logger, dir)
	if err != nil {
		return nil, "", err
	}
	return c, SeedDir(dir), nil
}

// LoadDir builds a corpus from the regular files in dir, in lexical order.
// Seeds stay on disk; every file is checked for readability up front.
func LoadDir(logger *zap.Logger, dir string) (*Corpus, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed folder: %w", err)
	}

	seeds := make([]*Seed, 0, len(entries))
	for _, entry := range entries {
		if !IsSeedFile(entry.Name()) || !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open seed file: %w", err)
		}
		f.Close()
		seeds = append(seeds, NewFileSeed(len(seeds), path))
	}

	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSeeds, dir)
	}

	logger.Info("loaded seed corpus",
		zap.String("seed_dir", dir),
		zap.Int("seed_count", len(seeds)))
	return New(seeds...), nil
}

// IsSeedFile filters out hidden files such as editor swap files.
func IsSeedFile(name string) bool {
	base := filepath.Base(name)
	return base != "" && !strings.HasPrefix(base, ".")
}
