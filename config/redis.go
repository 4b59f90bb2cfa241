package config

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// NewRedis returns a client even when the first ping fails so the caller
// can keep probing it.
func NewRedis(ctx context.Context, cfg *Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return rdb, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
