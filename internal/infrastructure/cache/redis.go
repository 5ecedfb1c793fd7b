package cache

import (
	"context"
	"fmt"
	"time"

	"or-scheduler/config"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// pingTimeout bounds the startup check so a missing redis falls back to
// in-process slot locks quickly.
const pingTimeout = 3 * time.Second

// NewRedisClient connects the client shared by slot locks, token revocation
// and the event channel.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	opts := clientOptions(cfg)
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis at %s (db %d): %w", opts.Addr, opts.DB, err)
	}

	logrus.WithFields(logrus.Fields{"addr": opts.Addr, "db": opts.DB}).Info("Connected to Redis")

	return client, nil
}

func clientOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: pingTimeout,
	}
}
