// Package webhook turns outbox entries into merchant webhook deliveries and
// drives the delivery retry loop.
package webhook

import (
	"context"

	"github.com/hamsukypay/engine/internal/domain/merchant"
	"github.com/hamsukypay/engine/internal/domain/outbox"
	"github.com/hamsukypay/engine/internal/domain/webhook"
	"github.com/rs/zerolog"
)

// TransactionManager defines the interface for database transaction
// management.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// FanoutUseCase expands pending outbox entries into one delivery per active
// merchant endpoint. Each entry's expansion and published mark commit
// together, and the unique (event, endpoint) constraint makes re-expansion
// harmless, so a relay crash can duplicate work but never deliveries.
type FanoutUseCase struct {
	outboxRepo   outbox.Repository
	deliveryRepo webhook.Repository
	merchantRepo merchant.Repository
	txManager    TransactionManager
	logger       zerolog.Logger

	batchSize   int
	maxAttempts int
}

func NewFanoutUseCase(
	outboxRepo outbox.Repository,
	deliveryRepo webhook.Repository,
	merchantRepo merchant.Repository,
	txManager TransactionManager,
	logger zerolog.Logger,
	batchSize int,
	maxAttempts int,
) *FanoutUseCase {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &FanoutUseCase{
		outboxRepo:   outboxRepo,
		deliveryRepo: deliveryRepo,
		merchantRepo: merchantRepo,
		txManager:    txManager,
		logger:       logger,
		batchSize:    batchSize,
		maxAttempts:  maxAttempts,
	}
}

// Execute processes one batch of pending outbox entries and returns how many
// it expanded. Entries commit one by one: an entry that cannot be expanded
// burns a retry via MarkFailed and is skipped, so one poisoned event never
// blocks other merchants' deliveries.
func (uc *FanoutUseCase) Execute(ctx context.Context) (int, error) {
	var entries []*outbox.Entry
	err := uc.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		entries, err = uc.outboxRepo.GetPending(txCtx, uc.batchSize)
		return err
	})
	if err != nil {
		return 0, err
	}

	var processed int
	for _, entry := range entries {
		if err := uc.publish(ctx, entry); err != nil {
			uc.logger.Error().Err(err).
				Str("entry_id", entry.ID.String()).
				Str("event_type", entry.EventType).
				Int("retry_count", entry.RetryCount).
				Msg("outbox expansion failed")
			if err := uc.outboxRepo.MarkFailed(ctx, entry.ID); err != nil {
				return processed, err
			}
			continue
		}
		processed++
	}
	return processed, nil
}

// publish expands one entry and marks it published in its own transaction.
func (uc *FanoutUseCase) publish(ctx context.Context, entry *outbox.Entry) error {
	return uc.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := uc.expand(txCtx, entry); err != nil {
			return err
		}
		return uc.outboxRepo.MarkPublished(txCtx, entry.ID)
	})
}

func (uc *FanoutUseCase) expand(ctx context.Context, entry *outbox.Entry) error {
	endpoints, err := uc.merchantRepo.ListEndpoints(ctx, entry.MerchantID)
	if err != nil {
		return err
	}
	if len(endpoints) == 0 {
		uc.logger.Debug().
			Str("merchant_id", entry.MerchantID.String()).
			Str("event_type", entry.EventType).
			Msg("no active endpoints, outcome event dropped")
		return nil
	}

	for _, ep := range endpoints {
		d := webhook.NewDelivery(
			entry.ID,
			entry.TransactionID,
			entry.MerchantID,
			ep.ID,
			ep.URL,
			entry.EventType,
			entry.Payload,
			uc.maxAttempts,
		)
		if err := uc.deliveryRepo.Insert(ctx, d); err != nil {
			return err
		}
	}
	return nil
}
