package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hamsukypay/engine/internal/acquirer"
	appReconcile "github.com/hamsukypay/engine/internal/application/reconcile"
	appTransaction "github.com/hamsukypay/engine/internal/application/transaction"
	appWebhook "github.com/hamsukypay/engine/internal/application/webhook"
	"github.com/hamsukypay/engine/internal/bootstrap"
	domainErrors "github.com/hamsukypay/engine/internal/domain/errors"
	"github.com/hamsukypay/engine/internal/domain/transaction"
	infraRedis "github.com/hamsukypay/engine/internal/infrastructure/redis"
	"github.com/hamsukypay/engine/internal/repository/postgres"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "engine-worker", "hamsukypay_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	transactionRepo := postgres.NewTransactionRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	merchantRepo := postgres.NewMerchantRepository(app.Pool)
	deliveryRepo := postgres.NewDeliveryRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Infrastructure ---
	engineCfg := app.Config.Engine
	webhookCfg := app.Config.Webhook
	acquirerFactory := acquirer.NewFactory()
	streamProducer := infraRedis.NewStreamProducer(app.Redis)
	retryScheduler := infraRedis.NewRetryScheduler(app.Redis)
	newLock := func(key string) appTransaction.Lock {
		return infraRedis.NewDistributedLock(app.Redis, key, engineCfg.LockTTL)
	}

	// --- Use cases ---
	advanceUC := appTransaction.NewAdvanceUseCase(
		transactionRepo, outboxRepo, txManager, acquirerFactory,
		retryScheduler, newLock, app.Metrics, app.Logger,
		engineCfg.AcquirerTimeout, engineCfg.StepRetries,
	)
	fanoutUC := appWebhook.NewFanoutUseCase(
		outboxRepo, deliveryRepo, merchantRepo, txManager,
		app.Logger, webhookCfg.ClaimBatch, webhookCfg.MaxAttempts,
	)
	dispatcherUC := appWebhook.NewDispatcherUseCase(
		deliveryRepo, merchantRepo,
		&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		app.Metrics, app.Logger,
		webhookCfg.ClaimBatch, webhookCfg.SendTimeout, webhookCfg.BaseDelay, webhookCfg.MaxDelay,
	)
	sweeper := appReconcile.NewSweeper(
		transactionRepo, deliveryRepo, idempotencyRepo, advanceUC, retryScheduler, streamProducer,
		app.Metrics, app.Logger,
		app.Config.Sweeper.Interval, app.Config.Sweeper.StalenessThreshold,
		app.Config.Sweeper.BatchSize, app.Config.Sweeper.IdempotencyRetention,
	)

	// --- Advance stream consumer ---
	workerCfg := app.Config.Worker
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.TransactionStream,
		workerCfg.ConsumerGroup,
		app.Config.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to create consumer group")
	}

	app.Logger.Info().
		Str("stream", infraRedis.TransactionStream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Msg("Worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Advance processor (reads from the Redis stream).
	g.Go(func() error {
		return runAdvanceProcessor(gCtx, app, consumer, advanceUC, streamProducer)
	})

	// 2. Outbox fanout (expands outcome events into deliveries).
	g.Go(func() error {
		return runPollLoop(gCtx, app.Logger, "outbox fanout", workerCfg.OutboxPollInterval, fanoutUC.Execute)
	})

	// 3. Webhook dispatcher (posts due deliveries).
	g.Go(func() error {
		return runPollLoop(gCtx, app.Logger, "webhook dispatcher", webhookCfg.PollInterval, dispatcherUC.Execute)
	})

	// 4. Reconciliation sweeper.
	g.Go(func() error {
		err := sweeper.Run(gCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// 5. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

func runAdvanceProcessor(
	ctx context.Context,
	app *bootstrap.App,
	consumer *infraRedis.StreamConsumer,
	advanceUC *appTransaction.AdvanceUseCase,
	producer *infraRedis.StreamProducer,
) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		streams, err := consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			app.Logger.Error().Err(err).Msg("Failed to read from stream")
			time.Sleep(1 * time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				handleAdvanceMessage(ctx, app, advanceUC, producer, msg.Values)
				consumer.Ack(ctx, msg.ID)
			}
		}
	}
}

func handleAdvanceMessage(
	ctx context.Context,
	app *bootstrap.App,
	advanceUC *appTransaction.AdvanceUseCase,
	producer *infraRedis.StreamProducer,
	values map[string]any,
) {
	idStr, _ := values["transaction_id"].(string)
	id, err := uuid.Parse(idStr)
	if err != nil {
		app.Logger.Error().Str("raw", idStr).Msg("Invalid transaction id in stream message")
		producer.PublishToDLQ(ctx, idStr, "unparseable transaction id")
		return
	}

	actor := transaction.ActorWorker
	if a, _ := values["actor"].(string); a == string(transaction.ActorSweeper) {
		actor = transaction.ActorSweeper
	}

	start := time.Now()
	err = advanceUC.Execute(ctx, id, actor)
	app.Metrics.WorkerProcessingDuration.WithLabelValues(infraRedis.TransactionStream).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		app.Metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.TransactionStream, "success").Inc()
	case errors.Is(err, domainErrors.ErrLockAcquisitionFailed):
		// Another worker owns the transaction; its advance covers this message.
		app.Metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.TransactionStream, "skipped").Inc()
	default:
		app.Logger.Error().Err(err).Str("transaction_id", id.String()).Msg("Failed to advance transaction")
		app.Metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.TransactionStream, "error").Inc()
	}
}

// runPollLoop drives a batch-processing use case on a fixed interval until
// the context is cancelled.
func runPollLoop(
	ctx context.Context,
	logger zerolog.Logger,
	name string,
	interval time.Duration,
	execute func(ctx context.Context) (int, error),
) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if _, err := execute(ctx); err != nil {
			logger.Error().Err(err).Str("loop", name).Msg("Poll loop iteration failed")
		}
	}
}
