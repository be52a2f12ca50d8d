package transaction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	domainErrors "github.com/hamsukypay/engine/internal/domain/errors"
	"github.com/hamsukypay/engine/internal/domain/idempotency"
	"github.com/hamsukypay/engine/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// InitiateRequest holds the input for initiating a transaction.
type InitiateRequest struct {
	MerchantID     uuid.UUID
	IdempotencyKey string
	AmountMinor    int64
	Currency       string
	InstrumentKind string
	InstrumentTok  string
	AcquirerName   string
	Metadata       map[string]any
}

// InitiateResponse holds the result of initiating a transaction.
type InitiateResponse struct {
	Transaction *transaction.Transaction
	// Created is false when the idempotency key replayed a prior submission.
	Created bool
}

// InitiateUseCase accepts a transaction, reserves its idempotency key, and
// hands it to the worker pool. The reservation and the pending row commit in
// one database transaction, so a key can never map to two transactions.
type InitiateUseCase struct {
	transactionRepo transaction.Repository
	idempotency     idempotency.Store
	txManager       TransactionManager
	publisher       AdvancePublisher
	logger          zerolog.Logger

	maxAttempts     int
	defaultAcquirer string
}

func NewInitiateUseCase(
	transactionRepo transaction.Repository,
	idempotencyStore idempotency.Store,
	txManager TransactionManager,
	publisher AdvancePublisher,
	logger zerolog.Logger,
	maxAttempts int,
	defaultAcquirer string,
) *InitiateUseCase {
	return &InitiateUseCase{
		transactionRepo: transactionRepo,
		idempotency:     idempotencyStore,
		txManager:       txManager,
		publisher:       publisher,
		logger:          logger,
		maxAttempts:     maxAttempts,
		defaultAcquirer: defaultAcquirer,
	}
}

// Execute creates a pending transaction, or replays the one a previous call
// with the same key created. A reused key with a different request body is
// rejected with ErrIdempotencyConflict.
func (uc *InitiateUseCase) Execute(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	acquirerName := req.AcquirerName
	if acquirerName == "" {
		acquirerName = uc.defaultAcquirer
	}

	t, err := transaction.New(
		req.MerchantID,
		req.IdempotencyKey,
		transaction.Amount{ValueMinor: req.AmountMinor, Currency: req.Currency},
		transaction.Instrument{Kind: transaction.InstrumentKind(req.InstrumentKind), Token: req.InstrumentTok},
		acquirerName,
		uc.maxAttempts,
		req.Metadata,
	)
	if err != nil {
		return nil, err
	}

	fingerprint := Fingerprint(req)

	var created bool
	var winner *idempotency.Reservation
	reserve := func() error {
		return uc.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			var err error
			winner, created, err = uc.idempotency.Reserve(txCtx, &idempotency.Reservation{
				MerchantID:    req.MerchantID,
				Key:           req.IdempotencyKey,
				Fingerprint:   fingerprint,
				TransactionID: t.ID,
				CreatedAt:     time.Now(),
			})
			if err != nil {
				return err
			}
			if !created {
				return nil
			}
			return uc.transactionRepo.Create(txCtx, t)
		})
	}
	if err := reserve(); err != nil {
		return nil, err
	}
	if !created && winner == nil {
		// Lost the insert race, but the winning reservation was already
		// cleaned up before we could read it back. The key is free again,
		// so claim it once more.
		if err := reserve(); err != nil {
			return nil, err
		}
	}
	if !created && winner == nil {
		return nil, domainErrors.NewDomainError(
			"idempotency_conflict",
			"idempotency key reservation could not be resolved, retry the request",
			domainErrors.ErrIdempotencyConflict,
		)
	}

	if !created {
		if winner.Fingerprint != fingerprint {
			return nil, domainErrors.NewDomainError(
				"idempotency_conflict",
				"idempotency key was already used with a different request body",
				domainErrors.ErrIdempotencyConflict,
			)
		}
		existing, err := uc.transactionRepo.GetByID(ctx, winner.TransactionID)
		if err != nil {
			return nil, err
		}
		return &InitiateResponse{Transaction: existing, Created: false}, nil
	}

	// Publish after commit. A lost message is not fatal: the reconciliation
	// sweeper picks up pending transactions that nobody advanced.
	if err := uc.publisher.PublishAdvance(ctx, t.ID.String(), string(transaction.ActorAPI)); err != nil {
		uc.logger.Warn().Err(err).
			Str("transaction_id", t.ID.String()).
			Msg("failed to publish advance request, sweeper will recover")
	}

	return &InitiateResponse{Transaction: t, Created: true}, nil
}

// Fingerprint hashes the business content of an initiation request so a
// reused idempotency key with a different body can be detected.
func Fingerprint(req InitiateRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s", req.AmountMinor, req.Currency, req.InstrumentKind, req.InstrumentTok)
	return hex.EncodeToString(h.Sum(nil))
}
