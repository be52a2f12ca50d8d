package webhook

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for webhook delivery persistence.
type Repository interface {
	// Insert creates a delivery row; inserting a second row for the same
	// (event, endpoint) pair is a silent no-op.
	Insert(ctx context.Context, d *Delivery) error

	// ClaimDue atomically flips due pending/failed deliveries to sending and
	// returns them. A claimed delivery is owned by the caller until Update.
	ClaimDue(ctx context.Context, limit int) ([]*Delivery, error)

	// Update persists the outcome of an attempt.
	Update(ctx context.Context, d *Delivery) error

	// GetByID retrieves a delivery.
	GetByID(ctx context.Context, id uuid.UUID) (*Delivery, error)

	// ListByTransaction returns deliveries for a transaction, newest first.
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*Delivery, error)

	// ReleaseStuck returns sending rows older than the cutoff back to pending;
	// covers dispatchers that died mid-send.
	ReleaseStuck(ctx context.Context, olderThanSeconds int) (int64, error)
}
