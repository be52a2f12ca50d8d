// Package idempotency guards transaction initiation against duplicate
// submissions. A reservation binds an (merchant, key) pair to the single
// transaction it created; the store arbitrates concurrent callers.
package idempotency

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Reservation binds an idempotency key to the one transaction it created.
type Reservation struct {
	MerchantID    uuid.UUID
	Key           string
	Fingerprint   string
	TransactionID uuid.UUID
	CreatedAt     time.Time
}

// Store persists reservations.
type Store interface {
	// Reserve atomically claims the key for a new transaction. It returns the
	// winning reservation and whether this call created it. When created is
	// false the caller must compare fingerprints and either replay the prior
	// result or reject the request.
	Reserve(ctx context.Context, res *Reservation) (*Reservation, bool, error)

	// Get returns the reservation for a key, or nil when none exists.
	Get(ctx context.Context, merchantID uuid.UUID, key string) (*Reservation, error)

	// Cleanup removes reservations older than the retention window.
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}
