// Package reconcile contains the self-healing sweep over work that lost its
// driver: stale transactions, due transient retries, deliveries stuck in
// sending after a dispatcher crash, and expired idempotency reservations.
package reconcile

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/hamsukypay/engine/internal/domain/errors"
	"github.com/hamsukypay/engine/internal/domain/idempotency"
	"github.com/hamsukypay/engine/internal/domain/transaction"
	"github.com/hamsukypay/engine/internal/domain/webhook"
	"github.com/hamsukypay/engine/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Advancer drives one transaction toward a terminal state.
type Advancer interface {
	Execute(ctx context.Context, id uuid.UUID, actor transaction.Actor) error
}

// RetrySchedule hands out transaction ids whose scheduled retry is due.
type RetrySchedule interface {
	PopDue(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// AdvancePublisher enqueues an advance request for the worker pool.
type AdvancePublisher interface {
	PublishAdvance(ctx context.Context, transactionID string, actor string) error
}

// Sweeper periodically rescues transactions that stopped moving: a crashed
// worker, a lost acquirer response, or a dropped stream message all leave a
// non-terminal row whose updated_at stops advancing. Because Advance is
// idempotent and version-checked, sweeping a transaction that is actually
// healthy is harmless.
type Sweeper struct {
	transactionRepo transaction.Repository
	deliveryRepo    webhook.Repository
	idempotency     idempotency.Store
	advancer        Advancer
	schedule        RetrySchedule
	publisher       AdvancePublisher
	metrics         *observability.Metrics
	logger          zerolog.Logger

	interval             time.Duration
	staleness            time.Duration
	batchSize            int
	idempotencyRetention time.Duration
}

func NewSweeper(
	transactionRepo transaction.Repository,
	deliveryRepo webhook.Repository,
	idempotencyStore idempotency.Store,
	advancer Advancer,
	schedule RetrySchedule,
	publisher AdvancePublisher,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	interval, staleness time.Duration,
	batchSize int,
	idempotencyRetention time.Duration,
) *Sweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	if idempotencyRetention <= 0 {
		idempotencyRetention = 24 * time.Hour
	}
	return &Sweeper{
		transactionRepo:      transactionRepo,
		deliveryRepo:         deliveryRepo,
		idempotency:          idempotencyStore,
		advancer:             advancer,
		schedule:             schedule,
		publisher:            publisher,
		metrics:              metrics,
		logger:               logger,
		interval:             interval,
		staleness:            staleness,
		batchSize:            batchSize,
		idempotencyRetention: idempotencyRetention,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().
		Dur("interval", s.interval).
		Dur("staleness_threshold", s.staleness).
		Msg("reconciliation sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("reconciliation sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one reconciliation pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.metrics.SweeperRuns.Inc()

	s.dispatchDueRetries(ctx)
	s.rescueStale(ctx)
	s.releaseStuckDeliveries(ctx)
	s.expireReservations(ctx)
}

// dispatchDueRetries republishes transactions whose scheduled transient
// retry has come due.
func (s *Sweeper) dispatchDueRetries(ctx context.Context) {
	ids, err := s.schedule.PopDue(ctx, time.Now(), s.batchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to pop due retries")
		return
	}
	for _, id := range ids {
		if err := s.publisher.PublishAdvance(ctx, id, string(transaction.ActorSweeper)); err != nil {
			s.logger.Error().Err(err).
				Str("transaction_id", id).
				Msg("failed to republish due retry")
		}
	}
}

// rescueStale re-advances non-terminal transactions nothing has touched for
// longer than the staleness threshold.
func (s *Sweeper) rescueStale(ctx context.Context) {
	cutoff := time.Now().Add(-s.staleness)
	stale, err := s.transactionRepo.ListStale(ctx, cutoff, s.batchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list stale transactions")
		return
	}
	if len(stale) == 0 {
		return
	}

	s.logger.Info().Int("count", len(stale)).Msg("rescuing stale transactions")

	for _, t := range stale {
		err := s.advancer.Execute(ctx, t.ID, transaction.ActorSweeper)
		switch {
		case err == nil:
			s.metrics.SweeperRescued.WithLabelValues("advanced").Inc()
		case errors.Is(err, domainErrors.ErrLockAcquisitionFailed):
			// A worker is already on it.
			s.metrics.SweeperRescued.WithLabelValues("skipped").Inc()
		default:
			s.metrics.SweeperRescued.WithLabelValues("error").Inc()
			s.logger.Error().Err(err).
				Str("transaction_id", t.ID.String()).
				Str("status", string(t.Status)).
				Msg("failed to rescue stale transaction")
		}
	}
}

// releaseStuckDeliveries returns deliveries stranded in sending by a crashed
// dispatcher back to the claimable pool.
func (s *Sweeper) releaseStuckDeliveries(ctx context.Context) {
	released, err := s.deliveryRepo.ReleaseStuck(ctx, int(s.staleness.Seconds()))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to release stuck deliveries")
		return
	}
	if released > 0 {
		s.logger.Warn().Int64("count", released).Msg("released deliveries stuck in sending")
	}
}

// expireReservations drops idempotency reservations past the retention
// window. A key whose reservation expired may create a new transaction; the
// retention is sized so merchants retrying a request never hit that.
func (s *Sweeper) expireReservations(ctx context.Context) {
	removed, err := s.idempotency.Cleanup(ctx, s.idempotencyRetention)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to clean up idempotency reservations")
		return
	}
	if removed > 0 {
		s.logger.Info().Int64("count", removed).Msg("expired idempotency reservations")
	}
}
