package testutil

import (
	"time"

	"github.com/hamsukypay/engine/internal/domain/merchant"
	"github.com/hamsukypay/engine/internal/domain/outbox"
	"github.com/hamsukypay/engine/internal/domain/transaction"
	"github.com/hamsukypay/engine/internal/domain/webhook"
	"github.com/google/uuid"
)

// NewTestMerchant creates a merchant with deterministic test keys.
func NewTestMerchant() *merchant.Merchant {
	now := time.Now()
	return &merchant.Merchant{
		ID:        uuid.New(),
		Name:      "Test Merchant",
		Email:     "test@example.com",
		PublicKey: merchant.PublicKeyPrefix + "testpublickey0000000000000000000",
		SecretKey: merchant.SecretKeyPrefix + "testsecretkey0000000000000000000",
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestTransaction creates a card transaction in the given status. With no
// argument it starts at pending.
func NewTestTransaction(merchantID uuid.UUID, status ...transaction.Status) *transaction.Transaction {
	s := transaction.StatusPending
	if len(status) > 0 {
		s = status[0]
	}
	now := time.Now()
	return &transaction.Transaction{
		ID:             uuid.New(),
		Reference:      transaction.NewReference(),
		MerchantID:     merchantID,
		IdempotencyKey: uuid.NewString(),
		Amount:         transaction.Amount{ValueMinor: 150000, Currency: "NGN"},
		Instrument:     transaction.Instrument{Kind: transaction.InstrumentCard, Token: "tok_test_4242"},
		Status:         s,
		AcquirerName:   "mock",
		MaxAttempts:    3,
		Version:        1,
		Metadata:       map[string]any{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewTestEndpoint creates an active webhook endpoint for a merchant.
func NewTestEndpoint(merchantID uuid.UUID, url string) *merchant.Endpoint {
	return &merchant.Endpoint{
		ID:         uuid.New(),
		MerchantID: merchantID,
		URL:        url,
		Active:     true,
		CreatedAt:  time.Now(),
	}
}

// NewTestOutboxEntry creates a pending outbox entry for a succeeded
// transaction outcome.
func NewTestOutboxEntry(transactionID, merchantID uuid.UUID) *outbox.Entry {
	return outbox.NewEntry(transactionID, merchantID, outbox.EventTransactionSucceeded, map[string]any{
		"transaction_id": transactionID.String(),
		"new_status":     "succeeded",
	})
}

// NewTestDelivery creates a pending delivery due immediately.
func NewTestDelivery(merchantID, endpointID uuid.UUID, url string) *webhook.Delivery {
	return webhook.NewDelivery(
		uuid.New(), uuid.New(), merchantID, endpointID,
		url, outbox.EventTransactionSucceeded,
		map[string]any{"new_status": "succeeded"},
		8,
	)
}

// UUIDPtr returns a pointer to the given UUID.
func UUIDPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

// StrPtr returns a pointer to the given string.
func StrPtr(s string) *string {
	return &s
}
