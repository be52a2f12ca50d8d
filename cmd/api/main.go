package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	appTransaction "github.com/hamsukypay/engine/internal/application/transaction"
	"github.com/hamsukypay/engine/internal/acquirer"
	"github.com/hamsukypay/engine/internal/bootstrap"
	"github.com/hamsukypay/engine/internal/controller"
	infraRedis "github.com/hamsukypay/engine/internal/infrastructure/redis"
	"github.com/hamsukypay/engine/internal/repository/postgres"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "engine-api", "hamsukypay")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	transactionRepo := postgres.NewTransactionRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	merchantRepo := postgres.NewMerchantRepository(app.Pool)
	deliveryRepo := postgres.NewDeliveryRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Application services ---
	engineCfg := app.Config.Engine
	acquirerFactory := acquirer.NewFactory()
	streamProducer := infraRedis.NewStreamProducer(app.Redis)
	newLock := func(key string) appTransaction.Lock {
		return infraRedis.NewDistributedLock(app.Redis, key, engineCfg.LockTTL)
	}

	initiateUC := appTransaction.NewInitiateUseCase(
		transactionRepo, idempotencyRepo, txManager, streamProducer,
		app.Logger, engineCfg.MaxAttempts, engineCfg.DefaultAcquirer,
	)
	verifyUC := appTransaction.NewVerifyUseCase(transactionRepo)
	getUC := appTransaction.NewGetTransactionUseCase(transactionRepo)
	reverseUC := appTransaction.NewReverseUseCase(
		transactionRepo, outboxRepo, txManager, acquirerFactory,
		newLock, app.Metrics, app.Logger, engineCfg.AcquirerTimeout,
	)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:         app.Pool,
		RedisClient:  app.Redis,
		MerchantRepo: merchantRepo,
		DeliveryRepo: deliveryRepo,
		Initiate:     initiateUC,
		Verify:       verifyUC,
		Get:          getUC,
		Reverse:      reverseUC,
		Metrics:      app.Metrics,
		ServerConfig: app.Config.Server,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
