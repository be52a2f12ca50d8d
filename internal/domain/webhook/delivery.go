package webhook

import (
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus represents the delivery retry state machine.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusSending   DeliveryStatus = "sending"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
	StatusAbandoned DeliveryStatus = "abandoned"
)

// Delivery tracks the attempts to hand one transaction-outcome event to one
// merchant endpoint. There is exactly one row per (event, endpoint) pair;
// the sending claim makes concurrent duplicate sends impossible.
type Delivery struct {
	ID               uuid.UUID
	EventID          uuid.UUID
	TransactionID    uuid.UUID
	MerchantID       uuid.UUID
	EndpointID       uuid.UUID
	URL              string
	Payload          map[string]any
	EventType        string
	AttemptNumber    int
	MaxAttempts      int
	Status           DeliveryStatus
	NextRetryAt      time.Time
	LastResponseCode *int
	LastError        *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeliveredAt      *time.Time
}

// NewDelivery schedules an event for immediate delivery to an endpoint.
func NewDelivery(
	eventID, transactionID, merchantID, endpointID uuid.UUID,
	url, eventType string,
	payload map[string]any,
	maxAttempts int,
) *Delivery {
	if maxAttempts <= 0 {
		maxAttempts = 8
	}

	// Merchants dedupe at-least-once redeliveries by event id, so every
	// payload carries it. Copy before annotating: the caller's map is
	// shared across the endpoints of one event.
	p := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		p[k] = v
	}
	p["event_id"] = eventID.String()

	now := time.Now()
	return &Delivery{
		ID:            uuid.New(),
		EventID:       eventID,
		TransactionID: transactionID,
		MerchantID:    merchantID,
		EndpointID:    endpointID,
		URL:           url,
		Payload:       p,
		EventType:     eventType,
		AttemptNumber: 0,
		MaxAttempts:   maxAttempts,
		Status:        StatusPending,
		NextRetryAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsTerminal reports whether no further attempts will be made.
func (d *Delivery) IsTerminal() bool {
	return d.Status == StatusDelivered || d.Status == StatusAbandoned
}

// MarkDelivered records a successful attempt.
func (d *Delivery) MarkDelivered(statusCode int) {
	now := time.Now()
	d.Status = StatusDelivered
	d.LastResponseCode = &statusCode
	d.DeliveredAt = &now
	d.UpdatedAt = now
}

// MarkRejected records a permanent endpoint rejection; no retry.
func (d *Delivery) MarkRejected(statusCode int) {
	d.Status = StatusAbandoned
	d.LastResponseCode = &statusCode
	d.UpdatedAt = time.Now()
}

// MarkFailed records a retryable failure and schedules the next attempt, or
// abandons the delivery once the attempt budget is spent.
func (d *Delivery) MarkFailed(statusCode *int, errMsg string, baseDelay, maxDelay time.Duration) {
	d.LastResponseCode = statusCode
	d.LastError = &errMsg
	d.UpdatedAt = time.Now()

	if d.AttemptNumber >= d.MaxAttempts {
		d.Status = StatusAbandoned
		return
	}
	d.Status = StatusFailed
	d.NextRetryAt = time.Now().Add(Backoff(d.AttemptNumber, baseDelay, maxDelay))
}

// ClassifyResponse maps an HTTP status code to the next delivery state:
// 2xx delivered, 429 retry, other 4xx permanent rejection, 5xx retry.
func ClassifyResponse(statusCode int) DeliveryStatus {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusDelivered
	case statusCode == http.StatusTooManyRequests:
		return StatusFailed
	case statusCode >= 400 && statusCode < 500:
		return StatusAbandoned
	default:
		return StatusFailed
	}
}

// Backoff returns the exponential delay with full jitter for the given
// attempt number (1-based).
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base << (attempt - 1)
	if delay > max || delay <= 0 {
		delay = max
	}
	jitter := time.Duration(rand.Int64N(int64(delay)/2 + 1))
	return delay/2 + jitter
}
