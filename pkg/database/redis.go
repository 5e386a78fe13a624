package database

import (
	"context"
	"covfuzz/config"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type RedisParams struct {
	fx.In

	Lc     fx.Lifecycle
	Config *config.AppConfig
	Logger *zap.Logger
}

// NewRedisClient connects to REDIS_URL. It returns a nil client when no redis is configured.
func NewRedisClient(p RedisParams) (*redis.Client, error) {
	if p.Config.RedisUrl == "" {
		p.Logger.Debug("no redis configured")
		return nil, nil
	}

	client, err := newRedisClient(p.Config.RedisUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	p.Lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	p.Logger.Debug("Redis client created successfully")
	return client, nil
}

func newRedisClient(redisUrl string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisUrl)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(options)

	// Test the connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}
