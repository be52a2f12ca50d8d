package transaction

import (
	"context"
	"time"
)

// TransactionManager defines the interface for database transaction
// management. This is an application-layer port, not a domain concern.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Lock is a per-transaction mutual exclusion handle. The lock narrows
// duplicate work across workers; correctness rests on the version check in
// the ledger, not on the lock.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory creates a lock for the given key.
type LockFactory func(key string) Lock

// AdvancePublisher enqueues an advance request for the worker pool.
type AdvancePublisher interface {
	PublishAdvance(ctx context.Context, transactionID string, actor string) error
}

// RetryScheduler schedules a delayed re-advance after a transient failure.
type RetryScheduler interface {
	Schedule(ctx context.Context, transactionID string, at time.Time) error
}
