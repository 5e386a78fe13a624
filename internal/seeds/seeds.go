package seeds

import (
	"context"
	"covfuzz/internal/types"
	"covfuzz/pkg/database"
	"covfuzz/pkg/mq"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	batchSize     = 256
	flushInterval = time.Minute
)

// Manager records accepted seeds in the optional database and broker, in batches.
type Manager struct {
	rabbitMQ mq.RabbitMQ
	db       *gorm.DB
	logger   *zap.Logger

	seedChan chan types.SeedMessage
	done     chan struct{}

	flushEvery time.Duration
	processed  int
}

type ManagerParams struct {
	fx.In

	Lc       fx.Lifecycle
	Logger   *zap.Logger
	DB       *gorm.DB    `optional:"true"`
	RabbitMQ mq.RabbitMQ `optional:"true"`
}

func NewManager(p ManagerParams) *Manager {
	s := &Manager{
		rabbitMQ:   p.RabbitMQ,
		db:         p.DB,
		logger:     p.Logger.Named("seeds"),
		seedChan:   make(chan types.SeedMessage, 1024),
		done:       make(chan struct{}),
		flushEvery: flushInterval,
	}

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.logger.Debug("starting seed manager")
			go s.start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.logger.Debug("stopping seed manager")
			close(s.seedChan)
			select {
			case <-s.done:
				s.logger.Info("seed manager stopped", zap.Int("processed", s.processed))
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})

	return s
}

// Submit queues an accepted seed. It must not be called after stop.
func (s *Manager) Submit(msg types.SeedMessage) {
	s.seedChan <- msg
}

func (s *Manager) start() {
	defer close(s.done)

	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()

	batch := make([]types.SeedMessage, 0, batchSize)

	for {
		select {
		case seed, ok := <-s.seedChan:
			if !ok {
				// channel closed: flush any remaining seeds, then exit
				if len(batch) > 0 {
					s.processSeedMessages(batch)
				}
				return
			}
			batch = append(batch, seed)

			// threshold reached: flush immediately
			if len(batch) >= batchSize {
				s.processSeedMessages(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			// timer fired: flush whatever we have
			if len(batch) > 0 {
				s.processSeedMessages(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Manager) processSeedMessages(msgs []types.SeedMessage) {
	s.logger.Debug("processing seed messages", zap.Int("seeds_count", len(msgs)))
	s.processed += len(msgs)

	ctx := context.Background()
	if s.db != nil {
		entries := make([]*database.Seed, 0, len(msgs))
		for _, msg := range msgs {
			entries = append(entries, database.NewSeed(msg))
		}
		if err := database.AddSeeds(ctx, s.db, entries); err != nil {
			s.logger.Error("failed to save seeds to database", zap.Error(err), zap.Int("seeds_count", len(msgs)))
		}
	}

	if s.rabbitMQ != nil {
		for _, msg := range msgs {
			if err := s.rabbitMQ.Publish(ctx, mq.SeedQueueName, msg); err != nil {
				s.logger.Error("failed to publish seed", zap.Error(err), zap.Int("seed_id", msg.SeedId))
				return
			}
		}
	}
}
