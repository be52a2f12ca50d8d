package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Event types published for terminal transaction outcomes. Names follow the
// webhook event vocabulary merchants subscribe to.
const (
	EventTransactionSucceeded = "transaction.succeeded"
	EventTransactionFailed    = "transaction.failed"
	EventTransactionReversed  = "transaction.reversed"
)

// Entry is a transactional outbox record. It is written in the same database
// transaction as the terminal state transition, so an outcome event is
// enqueued exactly once per transaction outcome.
type Entry struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	MerchantID    uuid.UUID
	EventType     string
	Payload       map[string]any
	Status        Status
	RetryCount    int
	MaxRetries    int
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

func NewEntry(transactionID, merchantID uuid.UUID, eventType string, payload map[string]any) *Entry {
	return &Entry{
		ID:            uuid.New(),
		TransactionID: transactionID,
		MerchantID:    merchantID,
		EventType:     eventType,
		Payload:       payload,
		Status:        StatusPending,
		RetryCount:    0,
		MaxRetries:    5,
		CreatedAt:     time.Now(),
	}
}
