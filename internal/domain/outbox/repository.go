package outbox

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists outbox entries. Insert participates in whatever
// database transaction is carried in ctx; the remaining methods are used by
// the fanout worker outside any transaction.
type Repository interface {
	Insert(ctx context.Context, entry *Entry) error
	GetPending(ctx context.Context, limit int) ([]*Entry, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}
