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
	pkgretry "github.com/hamsukypay/engine/pkg/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Transient retries back off exponentially from this base, capped well below
// the staleness threshold so the sweeper never races a scheduled retry.
const (
	transientRetryBase = 10 * time.Second
	transientRetryMax  = 2 * time.Minute
)

// AdvanceUseCase drives a transaction one or more steps toward a terminal
// state. Every step is idempotent: the version check in the ledger makes at
// most one concurrent attempt effective, and advancing a terminal
// transaction is a no-op.
type AdvanceUseCase struct {
	transactionRepo transaction.Repository
	outboxRepo      outbox.Repository
	txManager       TransactionManager
	acquirers       *acquirer.Factory
	scheduler       RetryScheduler
	newLock         LockFactory
	metrics         *observability.Metrics
	logger          zerolog.Logger

	acquirerTimeout time.Duration
	stepRetry       pkgretry.Config
}

func NewAdvanceUseCase(
	transactionRepo transaction.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	acquirers *acquirer.Factory,
	scheduler RetryScheduler,
	newLock LockFactory,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	acquirerTimeout time.Duration,
	stepRetries int,
) *AdvanceUseCase {
	if stepRetries <= 0 {
		stepRetries = 3
	}
	return &AdvanceUseCase{
		transactionRepo: transactionRepo,
		outboxRepo:      outboxRepo,
		txManager:       txManager,
		acquirers:       acquirers,
		scheduler:       scheduler,
		newLock:         newLock,
		metrics:         metrics,
		logger:          logger,
		acquirerTimeout: acquirerTimeout,
		stepRetry: pkgretry.Config{
			MaxAttempts:  uint(stepRetries),
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
		},
	}
}

// Execute advances the transaction until it reaches a terminal state or
// pauses for a scheduled retry. Returns ErrLockAcquisitionFailed when
// another worker already holds the transaction; callers treat that as a
// skip, not a failure.
func (uc *AdvanceUseCase) Execute(ctx context.Context, id uuid.UUID, actor transaction.Actor) error {
	lock := uc.newLock("transaction:" + id.String())
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire advance lock: %w", err)
	}
	if !acquired {
		return domainErrors.ErrLockAcquisitionFailed
	}
	defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()

	for {
		var stop bool
		err := pkgretry.Do(ctx, uc.stepRetry, func() error {
			t, err := uc.transactionRepo.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if t.IsTerminal() {
				stop = true
				return nil
			}
			stop, err = uc.step(ctx, t, actor)
			if errors.Is(err, domainErrors.ErrOptimisticLockFailed) {
				// Lost a version race; reload and redo the whole step.
				uc.metrics.StepConflicts.Inc()
			}
			return err
		})
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// step performs a single state-machine move. It returns stop=true when the
// transaction reached a terminal state or paused for a scheduled retry.
func (uc *AdvanceUseCase) step(ctx context.Context, t *transaction.Transaction, actor transaction.Actor) (bool, error) {
	switch t.Status {
	case transaction.StatusPending:
		return false, uc.transitionTo(ctx, t, transaction.StatusAuthorizing, actor, nil)
	case transaction.StatusAuthorizing:
		return uc.settle(ctx, t, actor, opAuthorize)
	case transaction.StatusAuthorized:
		return false, uc.transitionTo(ctx, t, transaction.StatusCapturing, actor, nil)
	case transaction.StatusCapturing:
		return uc.settle(ctx, t, actor, opCapture)
	default:
		return true, nil
	}
}

type operation string

const (
	opAuthorize operation = "authorize"
	opCapture   operation = "capture"
)

func (op operation) successStatus() transaction.Status {
	if op == opAuthorize {
		return transaction.StatusAuthorized
	}
	return transaction.StatusSucceeded
}

// settle runs one acquirer call for an in-flight transaction and applies the
// classified outcome. When an earlier attempt may have reached the acquirer,
// it asks for that attempt's fate first instead of dialing again.
func (uc *AdvanceUseCase) settle(ctx context.Context, t *transaction.Transaction, actor transaction.Actor, op operation) (bool, error) {
	acq, breaker, err := uc.acquirers.Get(t.AcquirerName)
	if err != nil {
		return true, uc.failTransition(ctx, t, actor, err.Error())
	}

	if t.AttemptCount > 0 {
		outcome := uc.call(ctx, acq.Name(), "query", breaker, func(callCtx context.Context) (acquirer.Outcome, error) {
			return acq.Query(callCtx, queryRequest(t, op))
		})
		switch outcome.Kind {
		case acquirer.Success:
			return op == opCapture, uc.transitionTo(ctx, t, op.successStatus(), actor, &outcome.Reference)
		case acquirer.PermanentFailure:
			return true, uc.failTransition(ctx, t, actor, outcome.Reason)
		}
		// Unknown at the acquirer: the earlier call never landed, try again.
	}

	if t.AttemptsExhausted() {
		return true, uc.failTransition(ctx, t, actor, "max attempts exceeded")
	}

	// Consume the attempt before dialing out, so a crash mid-call is visible
	// to recovery as an attempt whose fate must be queried.
	if err := t.RecordAttempt(); err != nil {
		return true, uc.failTransition(ctx, t, actor, "max attempts exceeded")
	}
	if err := uc.transactionRepo.Update(ctx, t); err != nil {
		return false, err
	}

	outcome := uc.call(ctx, acq.Name(), string(op), breaker, func(callCtx context.Context) (acquirer.Outcome, error) {
		if op == opAuthorize {
			return acq.Authorize(callCtx, authorizeRequest(t))
		}
		return acq.Capture(callCtx, captureRequest(t))
	})

	switch outcome.Kind {
	case acquirer.Success:
		return op == opCapture, uc.transitionTo(ctx, t, op.successStatus(), actor, &outcome.Reference)
	case acquirer.PermanentFailure:
		return true, uc.failTransition(ctx, t, actor, outcome.Reason)
	default:
		return uc.transientFailure(ctx, t, actor, outcome.Reason)
	}
}

// call runs one acquirer call under the configured timeout and the
// acquirer's circuit breaker, and normalizes every error into a classified
// outcome. Timeouts, transport errors and an open breaker are all transient.
func (uc *AdvanceUseCase) call(
	ctx context.Context,
	acquirerName, op string,
	breaker *gobreaker.CircuitBreaker[acquirer.Outcome],
	fn func(ctx context.Context) (acquirer.Outcome, error),
) acquirer.Outcome {
	callCtx, cancel := context.WithTimeout(ctx, uc.acquirerTimeout)
	defer cancel()

	start := time.Now()
	outcome, err := breaker.Execute(func() (acquirer.Outcome, error) {
		return fn(callCtx)
	})
	uc.metrics.AcquirerDuration.WithLabelValues(acquirerName, op).Observe(time.Since(start).Seconds())

	if err != nil {
		outcome = acquirer.Outcome{Kind: acquirer.TransientFailure, Reason: err.Error()}
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, domainErrors.ErrAcquirerTimeout):
			outcome.Reason = "acquirer call timed out"
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			outcome.Reason = "acquirer circuit open"
		}
	}

	uc.metrics.AcquirerCalls.WithLabelValues(acquirerName, op, string(outcome.Kind)).Inc()
	return outcome
}

// transientFailure keeps the transaction in place and schedules a delayed
// re-advance, or fails it once the attempt budget is spent.
func (uc *AdvanceUseCase) transientFailure(ctx context.Context, t *transaction.Transaction, actor transaction.Actor, reason string) (bool, error) {
	if t.AttemptsExhausted() {
		return true, uc.failTransition(ctx, t, actor, "max attempts exceeded")
	}

	delay := transientRetryBase << (t.AttemptCount - 1)
	if delay > transientRetryMax || delay <= 0 {
		delay = transientRetryMax
	}

	uc.logger.Info().
		Str("transaction_id", t.ID.String()).
		Str("status", string(t.Status)).
		Int("attempt", t.AttemptCount).
		Dur("retry_in", delay).
		Str("reason", reason).
		Msg("transient acquirer failure, retry scheduled")

	if err := uc.scheduler.Schedule(ctx, t.ID.String(), time.Now().Add(delay)); err != nil {
		// The sweeper finds the stale transaction even without a schedule.
		uc.logger.Warn().Err(err).
			Str("transaction_id", t.ID.String()).
			Msg("failed to schedule retry, sweeper will recover")
	}
	return true, nil
}

func (uc *AdvanceUseCase) transitionTo(
	ctx context.Context,
	t *transaction.Transaction,
	next transaction.Status,
	actor transaction.Actor,
	acquirerRef *string,
) error {
	prev := t.Status
	if err := t.TransitionTo(next); err != nil {
		return err
	}
	if acquirerRef != nil && *acquirerRef != "" {
		t.AcquirerReference = acquirerRef
	}
	return saveTransition(ctx, uc.txManager, uc.transactionRepo, uc.outboxRepo, uc.metrics, t, prev, actor)
}

func (uc *AdvanceUseCase) failTransition(ctx context.Context, t *transaction.Transaction, actor transaction.Actor, reason string) error {
	prev := t.Status
	if err := t.MarkFailed(reason); err != nil {
		return err
	}
	uc.logger.Info().
		Str("transaction_id", t.ID.String()).
		Str("reference", t.Reference).
		Str("reason", reason).
		Msg("transaction failed")
	return saveTransition(ctx, uc.txManager, uc.transactionRepo, uc.outboxRepo, uc.metrics, t, prev, actor)
}

// saveTransition persists a transition, its event, and, for terminal states,
// the outbox entry, all in one database transaction. The single commit is
// what makes the outcome event exactly-once.
func saveTransition(
	ctx context.Context,
	tm TransactionManager,
	repo transaction.Repository,
	outboxRepo outbox.Repository,
	metrics *observability.Metrics,
	t *transaction.Transaction,
	prev transaction.Status,
	actor transaction.Actor,
) error {
	err := tm.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := repo.Update(txCtx, t); err != nil {
			return err
		}
		if err := repo.AddEvent(txCtx, transaction.NewEvent(t.ID, prev, t.Status, actor)); err != nil {
			return err
		}
		if t.IsTerminal() {
			entry := outbox.NewEntry(t.ID, t.MerchantID, eventTypeFor(t.Status), outcomePayload(t, prev))
			return outboxRepo.Insert(txCtx, entry)
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.TransitionsTotal.WithLabelValues(string(prev), string(t.Status), string(actor)).Inc()
	if t.IsTerminal() {
		metrics.TransactionsTotal.WithLabelValues(string(t.Status), t.Amount.Currency).Inc()
		metrics.TransactionDuration.WithLabelValues(string(t.Status)).Observe(time.Since(t.CreatedAt).Seconds())
	}
	return nil
}

func eventTypeFor(status transaction.Status) string {
	switch status {
	case transaction.StatusSucceeded:
		return outbox.EventTransactionSucceeded
	case transaction.StatusReversed:
		return outbox.EventTransactionReversed
	default:
		return outbox.EventTransactionFailed
	}
}

// outcomePayload is the body merchants receive in outcome webhooks.
func outcomePayload(t *transaction.Transaction, prev transaction.Status) map[string]any {
	payload := map[string]any{
		"transaction_id":  t.ID.String(),
		"reference":       t.Reference,
		"previous_status": string(prev),
		"new_status":      string(t.Status),
		"amount":          t.Amount.ValueMinor,
		"currency":        t.Amount.Currency,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	}
	if t.FailureReason != nil {
		payload["failure_reason"] = *t.FailureReason
	}
	if t.AcquirerReference != nil {
		payload["acquirer_reference"] = *t.AcquirerReference
	}
	return payload
}

func authorizeRequest(t *transaction.Transaction) acquirer.AuthorizeRequest {
	return acquirer.AuthorizeRequest{
		TransactionID:   t.ID.String(),
		Reference:       t.Reference,
		AmountMinor:     t.Amount.ValueMinor,
		Currency:        t.Amount.Currency,
		InstrumentKind:  string(t.Instrument.Kind),
		InstrumentToken: t.Instrument.Token,
		Metadata:        t.Metadata,
	}
}

func captureRequest(t *transaction.Transaction) acquirer.CaptureRequest {
	req := acquirer.CaptureRequest{
		TransactionID: t.ID.String(),
		AmountMinor:   t.Amount.ValueMinor,
		Currency:      t.Amount.Currency,
	}
	if t.AcquirerReference != nil {
		req.AcquirerReference = *t.AcquirerReference
	}
	return req
}

func queryRequest(t *transaction.Transaction, op operation) acquirer.QueryRequest {
	req := acquirer.QueryRequest{TransactionID: t.ID.String(), Operation: string(op)}
	if t.AcquirerReference != nil {
		req.AcquirerReference = *t.AcquirerReference
	}
	return req
}
