package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for transaction persistence. The
// transaction table plus the append-only event log are the ledger of
// record; everything the state machine knows is reconstructable from them.
type Repository interface {
	// Create inserts a new transaction at pending
	Create(ctx context.Context, tx *Transaction) error

	// GetByID retrieves a transaction by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// GetByReference retrieves a transaction by its merchant-facing reference
	GetByReference(ctx context.Context, reference string) (*Transaction, error)

	// Update conditionally updates a transaction: the write only applies when
	// the stored version matches tx.Version, and bumps the version. Returns
	// errors.ErrOptimisticLockFailed when a concurrent writer got there first.
	Update(ctx context.Context, tx *Transaction) error

	// List lists transactions with filters
	List(ctx context.Context, filter ListFilter) ([]*Transaction, error)

	// ListStale returns non-terminal transactions whose updated_at is older
	// than the cutoff, oldest first, up to limit.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*Transaction, error)

	// AddEvent appends a transition to the event log
	AddEvent(ctx context.Context, event *Event) error

	// GetEvents retrieves the ordered event log for a transaction
	GetEvents(ctx context.Context, transactionID uuid.UUID) ([]*Event, error)
}

// ListFilter defines filters for listing transactions
type ListFilter struct {
	MerchantID *uuid.UUID
	Status     *Status
	Limit      int
	Offset     int
	SortBy     string
	SortOrder  string
}

// Event is one immutable entry in the transition log. Replaying a
// transaction's events from pending always reconstructs its current status.
type Event struct {
	ID             uuid.UUID
	TransactionID  uuid.UUID
	PreviousStatus Status
	NewStatus      Status
	Actor          Actor
	CreatedAt      time.Time
}

// NewEvent records a single transition.
func NewEvent(transactionID uuid.UUID, previous, next Status, actor Actor) *Event {
	return &Event{
		ID:             uuid.New(),
		TransactionID:  transactionID,
		PreviousStatus: previous,
		NewStatus:      next,
		Actor:          actor,
		CreatedAt:      time.Now(),
	}
}
