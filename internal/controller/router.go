package controller

import (
	"time"

	appTransaction "github.com/hamsukypay/engine/internal/application/transaction"
	"github.com/hamsukypay/engine/internal/domain/merchant"
	"github.com/hamsukypay/engine/internal/domain/webhook"
	"github.com/hamsukypay/engine/internal/infrastructure/config"
	"github.com/hamsukypay/engine/internal/infrastructure/observability"
	customMW "github.com/hamsukypay/engine/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type RouterDeps struct {
	Pool         *pgxpool.Pool
	RedisClient  *redis.Client
	MerchantRepo merchant.Repository
	DeliveryRepo webhook.Repository
	Initiate     *appTransaction.InitiateUseCase
	Verify       *appTransaction.VerifyUseCase
	Get          *appTransaction.GetTransactionUseCase
	Reverse      *appTransaction.ReverseUseCase
	Metrics      *observability.Metrics
	ServerConfig config.ServerConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.ServerConfig.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.ServerConfig.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))
	if deps.ServerConfig.RequestsPerMinute > 0 {
		r.Use(customMW.RateLimit(deps.ServerConfig.RequestsPerMinute))
	}

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	transactionH := NewTransactionController(deps.Initiate, deps.Verify, deps.Get, deps.Reverse)
	webhookH := NewWebhookController(deps.MerchantRepo, deps.DeliveryRepo)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(customMW.RequireMerchant(deps.MerchantRepo))

		// Transactions
		r.Post("/transactions/initialize", transactionH.Initialize)
		r.Get("/transactions/verify/{reference}", transactionH.Verify)
		r.Get("/transactions/{id}", transactionH.Get)
		r.Get("/transactions", transactionH.List)
		r.Post("/transactions/{id}/reverse", transactionH.Reverse)

		// Webhooks
		r.Post("/webhooks/endpoints", webhookH.RegisterEndpoint)
		r.Get("/webhooks/endpoints", webhookH.ListEndpoints)
		r.Get("/webhooks/deliveries", webhookH.ListDeliveries)
	})

	return r
}
