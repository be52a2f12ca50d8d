package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/hamsukypay/engine/internal/infrastructure/config"
	pkgretry "github.com/hamsukypay/engine/pkg/retry"
	"github.com/redis/go-redis/v9"
)

// NewClient connects to Redis, retrying the initial ping so the engine
// tolerates Redis coming up slightly after it in orchestrated deploys.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	})

	attempts := cfg.ConnectRetries
	if attempts <= 0 {
		attempts = 5
	}
	delay := cfg.ConnectRetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	err := pkgretry.Do(ctx, pkgretry.Config{
		MaxAttempts:  uint(attempts),
		InitialDelay: delay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}, func() error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis after %d attempts: %w", attempts, err)
	}

	return client, nil
}
