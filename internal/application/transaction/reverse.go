package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hamsukypay/engine/internal/acquirer"
	domainErrors "github.com/hamsukypay/engine/internal/domain/errors"
	"github.com/hamsukypay/engine/internal/domain/outbox"
	"github.com/hamsukypay/engine/internal/domain/transaction"
	"github.com/hamsukypay/engine/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ReverseUseCase refunds a succeeded transaction. Reversal is synchronous:
// the caller waits for the acquirer, and a transient acquirer failure is
// reported back instead of being retried in the background.
type ReverseUseCase struct {
	transactionRepo transaction.Repository
	outboxRepo      outbox.Repository
	txManager       TransactionManager
	acquirers       *acquirer.Factory
	newLock         LockFactory
	metrics         *observability.Metrics
	logger          zerolog.Logger
	acquirerTimeout time.Duration
}

func NewReverseUseCase(
	transactionRepo transaction.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	acquirers *acquirer.Factory,
	newLock LockFactory,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	acquirerTimeout time.Duration,
) *ReverseUseCase {
	return &ReverseUseCase{
		transactionRepo: transactionRepo,
		outboxRepo:      outboxRepo,
		txManager:       txManager,
		acquirers:       acquirers,
		newLock:         newLock,
		metrics:         metrics,
		logger:          logger,
		acquirerTimeout: acquirerTimeout,
	}
}

// Execute reverses a succeeded transaction. Reversing an already reversed
// transaction returns it unchanged.
func (uc *ReverseUseCase) Execute(ctx context.Context, id uuid.UUID, reason string) (*transaction.Transaction, error) {
	lock := uc.newLock("transaction:" + id.String())
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire reverse lock: %w", err)
	}
	if !acquired {
		return nil, domainErrors.ErrLockAcquisitionFailed
	}
	defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()

	t, err := uc.transactionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == transaction.StatusReversed {
		return t, nil
	}
	if t.Status != transaction.StatusSucceeded {
		return nil, domainErrors.NewDomainError(
			"invalid_transition",
			"only succeeded transactions can be reversed",
			domainErrors.ErrInvalidStateTransition,
		)
	}

	acq, breaker, err := uc.acquirers.Get(t.AcquirerName)
	if err != nil {
		return nil, err
	}

	outcome, err := uc.refund(ctx, acq, breaker, t, reason)
	if err != nil {
		return nil, domainErrors.NewDomainError(
			"reversal_failed",
			"acquirer refund did not complete: "+err.Error(),
			domainErrors.ErrAcquirerUnavailable,
		)
	}
	if outcome.Kind == acquirer.PermanentFailure {
		return nil, domainErrors.NewDomainError(
			"reversal_rejected",
			"acquirer rejected the refund: "+outcome.Reason,
			domainErrors.ErrAcquirerUnavailable,
		)
	}

	prev := t.Status
	if err := t.TransitionTo(transaction.StatusReversed); err != nil {
		return nil, err
	}
	if err := saveTransition(ctx, uc.txManager, uc.transactionRepo, uc.outboxRepo, uc.metrics, t, prev, transaction.ActorAPI); err != nil {
		return nil, err
	}

	uc.logger.Info().
		Str("transaction_id", t.ID.String()).
		Str("reference", t.Reference).
		Str("reason", reason).
		Msg("transaction reversed")
	return t, nil
}

func (uc *ReverseUseCase) refund(
	ctx context.Context,
	acq acquirer.Acquirer,
	breaker *gobreaker.CircuitBreaker[acquirer.Outcome],
	t *transaction.Transaction,
	reason string,
) (acquirer.Outcome, error) {
	callCtx, cancel := context.WithTimeout(ctx, uc.acquirerTimeout)
	defer cancel()

	req := acquirer.RefundRequest{
		TransactionID: t.ID.String(),
		AmountMinor:   t.Amount.ValueMinor,
		Currency:      t.Amount.Currency,
		Reason:        reason,
	}
	if t.AcquirerReference != nil {
		req.AcquirerReference = *t.AcquirerReference
	}

	start := time.Now()
	outcome, err := breaker.Execute(func() (acquirer.Outcome, error) {
		return acq.Refund(callCtx, req)
	})
	uc.metrics.AcquirerDuration.WithLabelValues(acq.Name(), "refund").Observe(time.Since(start).Seconds())

	switch {
	case err == nil && outcome.Kind == acquirer.TransientFailure:
		err = errors.New(outcome.Reason)
	case errors.Is(err, domainErrors.ErrAcquirerTimeout), errors.Is(err, context.DeadlineExceeded):
		err = errors.New("acquirer call timed out")
	}

	result := string(outcome.Kind)
	if err != nil {
		result = "error"
	}
	uc.metrics.AcquirerCalls.WithLabelValues(acq.Name(), "refund", result).Inc()
	return outcome, err
}
