package crash

import (
	"context"
	"covfuzz/config"
	"covfuzz/internal/types"
	"covfuzz/pkg/database"
	"covfuzz/pkg/mq"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	CrashDirName = "crashes"
	HangDirName  = "hangs"
)

// Manager archives crashing and hanging inputs in the background.
type Manager struct {
	db       *gorm.DB
	rabbitMQ mq.RabbitMQ
	logger   *zap.Logger

	crashFolder string
	hangFolder  string
	crashChan   chan types.CrashMessage
	done        chan struct{}

	archived int
}

type ManagerParams struct {
	fx.In

	Lc        fx.Lifecycle
	Logger    *zap.Logger
	AppConfig *config.AppConfig
	DB        *gorm.DB    `optional:"true"`
	RabbitMQ  mq.RabbitMQ `optional:"true"`
}

func NewManager(p ManagerParams) (*Manager, error) {
	c := &Manager{
		db:          p.DB,
		rabbitMQ:    p.RabbitMQ,
		logger:      p.Logger.Named("crash"),
		crashFolder: filepath.Join(p.AppConfig.OutputDir, CrashDirName),
		hangFolder:  filepath.Join(p.AppConfig.OutputDir, HangDirName),
		crashChan:   make(chan types.CrashMessage, 1024),
		done:        make(chan struct{}),
	}
	for _, dir := range []string{c.crashFolder, c.hangFolder} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			c.logger.Debug("starting crash manager")
			go c.start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			c.logger.Debug("stopping crash manager")
			close(c.crashChan)
			select {
			case <-c.done: // wait until all crashes are processed
				c.logger.Info("crash manager stopped", zap.Int("archived", c.archived))
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})

	return c, nil
}

// Submit queues a crashing or hanging input for archiving. It must not be called after stop.
func (c *Manager) Submit(msg types.CrashMessage) {
	msg.Input = append([]byte(nil), msg.Input...)
	c.crashChan <- msg
}

func (c *Manager) start() {
	defer close(c.done)
	for msg := range c.crashChan {
		if err := c.processCrash(msg); err != nil {
			c.logger.Error("failed to process crash", zap.Error(err))
			continue
		}
	}
}

// processCrash stores the input under its md5 and announces it
func (c *Manager) processCrash(msg types.CrashMessage) error {
	var folder string
	switch msg.Status {
	case types.Crash:
		folder = c.crashFolder
		msg.Kind = "crash"
	case types.Timeout:
		folder = c.hangFolder
		msg.Kind = "hang"
	default:
		return fmt.Errorf("unexpected status %s", msg.Status)
	}

	sum := md5.Sum(msg.Input)
	msg.Hash = hex.EncodeToString(sum[:])
	msg.Path = filepath.Join(folder, msg.Hash)

	if _, err := os.Stat(msg.Path); err == nil {
		c.logger.Debug("input already archived", zap.String("path", msg.Path))
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat %s: %w", msg.Path, err)
	}

	if err := os.WriteFile(msg.Path, msg.Input, 0644); err != nil {
		return fmt.Errorf("failed to write crash file: %w", err)
	}
	c.archived++
	c.logger.Info("archived input",
		zap.String("kind", msg.Kind),
		zap.String("path", msg.Path),
		zap.Int("size", len(msg.Input)))

	// Use the global context for database and broker operations
	ctx := context.Background()
	if c.db != nil {
		if err := database.AddCrashes(ctx, c.db, []*database.Crash{database.NewCrash(msg)}); err != nil {
			return fmt.Errorf("failed to add crash: %w", err)
		}
	}
	if c.rabbitMQ != nil {
		if err := c.rabbitMQ.Publish(ctx, mq.CrashQueueName, msg); err != nil {
			return fmt.Errorf("failed to publish crash: %w", err)
		}
	}
	return nil
}
