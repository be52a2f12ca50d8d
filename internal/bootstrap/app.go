// Package bootstrap wires the shared infrastructure every binary needs:
// config, logging, tracing, metrics, PostgreSQL and Redis.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/hamsukypay/engine/internal/infrastructure/config"
	"github.com/hamsukypay/engine/internal/infrastructure/observability"
	infraRedis "github.com/hamsukypay/engine/internal/infrastructure/redis"
	"github.com/hamsukypay/engine/internal/repository/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App holds the dependencies shared by the API server and the worker.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
}

// New loads config and connects to Postgres and Redis. Both connections
// are mandatory; tracing is best-effort and only logs on failure.
func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().Str("service", serviceName).Msg("starting")

	pool, err := postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("postgres connected")

	redisClient, err := infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("redis connected")

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("tracer init failed, continuing without tracing")
		} else {
			logger.Info().Msg("tracing enabled")
			go func() {
				<-ctx.Done()
				observability.Shutdown(context.Background(), tp)
			}()
		}
	}

	return &App{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Redis:   redisClient,
		Metrics: observability.NewMetrics(metricsNamespace, nil),
	}, nil
}

// Close releases the connections. Safe to call once after New succeeds.
func (a *App) Close() {
	a.Redis.Close()
	a.Pool.Close()
}
