package controller

import (
	"time"

	"github.com/hamsukypay/engine/internal/domain/merchant"
	"github.com/hamsukypay/engine/internal/domain/transaction"
	"github.com/hamsukypay/engine/internal/domain/webhook"
)

// --- Request DTOs ---
// DTOs handle HTTP/JSON concerns (string ids, validation tags). Controllers
// convert these to application-layer requests before calling business logic.

// InstrumentRequest identifies a vaulted payment instrument.
type InstrumentRequest struct {
	Kind  string `json:"kind" validate:"required,oneof=card bank_transfer mobile_money ussd qr"`
	Token string `json:"token" validate:"required"`
}

// InitializeTransactionRequest holds the input for initializing a transaction.
// Amount is in the smallest currency unit (kobo, cents).
type InitializeTransactionRequest struct {
	Amount            int64             `json:"amount" validate:"required,gt=0"`
	Currency          string            `json:"currency" validate:"required,len=3"`
	PaymentInstrument InstrumentRequest `json:"payment_instrument" validate:"required"`
	Acquirer          string            `json:"acquirer,omitempty"`
	IdempotencyKey    string            `json:"idempotency_key,omitempty"`
	Metadata          map[string]any    `json:"metadata,omitempty"`
}

// ReverseTransactionRequest holds the input for reversing a transaction.
type ReverseTransactionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RegisterEndpointRequest holds the input for registering a webhook endpoint.
type RegisterEndpointRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// --- Response DTOs ---

// TransactionResponse represents a transaction in API responses.
type TransactionResponse struct {
	ID                string         `json:"id"`
	Reference         string         `json:"reference"`
	Status            string         `json:"status"`
	Amount            int64          `json:"amount"`
	Currency          string         `json:"currency"`
	InstrumentKind    string         `json:"instrument_kind"`
	AcquirerName      string         `json:"acquirer,omitempty"`
	AcquirerReference *string        `json:"acquirer_reference,omitempty"`
	AttemptCount      int            `json:"attempt_count"`
	FailureReason     *string        `json:"failure_reason,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	TerminalAt        *time.Time     `json:"terminal_at,omitempty"`
}

// EventResponse represents one state transition in API responses.
type EventResponse struct {
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Actor          string    `json:"actor"`
	CreatedAt      time.Time `json:"created_at"`
}

// VerifyResponse is the status plus transition log for a reference.
type VerifyResponse struct {
	Transaction *TransactionResponse `json:"transaction"`
	Events      []*EventResponse     `json:"events"`
}

// EndpointResponse represents a webhook endpoint in API responses.
type EndpointResponse struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// DeliveryResponse represents a webhook delivery in API responses.
type DeliveryResponse struct {
	ID               string     `json:"id"`
	TransactionID    string     `json:"transaction_id"`
	EventType        string     `json:"event_type"`
	URL              string     `json:"url"`
	Status           string     `json:"status"`
	AttemptNumber    int        `json:"attempt_number"`
	MaxAttempts      int        `json:"max_attempts"`
	LastResponseCode *int       `json:"last_response_code,omitempty"`
	LastError        *string    `json:"last_error,omitempty"`
	NextRetryAt      time.Time  `json:"next_retry_at"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromTransaction converts a domain transaction to an API response.
func FromTransaction(t *transaction.Transaction) *TransactionResponse {
	return &TransactionResponse{
		ID:                t.ID.String(),
		Reference:         t.Reference,
		Status:            string(t.Status),
		Amount:            t.Amount.ValueMinor,
		Currency:          t.Amount.Currency,
		InstrumentKind:    string(t.Instrument.Kind),
		AcquirerName:      t.AcquirerName,
		AcquirerReference: t.AcquirerReference,
		AttemptCount:      t.AttemptCount,
		FailureReason:     t.FailureReason,
		Metadata:          t.Metadata,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
		TerminalAt:        t.TerminalAt,
	}
}

// FromEvents converts a transition log to API responses.
func FromEvents(events []*transaction.Event) []*EventResponse {
	out := make([]*EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, &EventResponse{
			PreviousStatus: string(e.PreviousStatus),
			NewStatus:      string(e.NewStatus),
			Actor:          string(e.Actor),
			CreatedAt:      e.CreatedAt,
		})
	}
	return out
}

// FromEndpoint converts a webhook endpoint to an API response.
func FromEndpoint(e *merchant.Endpoint) *EndpointResponse {
	return &EndpointResponse{
		ID:        e.ID.String(),
		URL:       e.URL,
		Active:    e.Active,
		CreatedAt: e.CreatedAt,
	}
}

// FromDelivery converts a webhook delivery to an API response.
func FromDelivery(d *webhook.Delivery) *DeliveryResponse {
	return &DeliveryResponse{
		ID:               d.ID.String(),
		TransactionID:    d.TransactionID.String(),
		EventType:        d.EventType,
		URL:              d.URL,
		Status:           string(d.Status),
		AttemptNumber:    d.AttemptNumber,
		MaxAttempts:      d.MaxAttempts,
		LastResponseCode: d.LastResponseCode,
		LastError:        d.LastError,
		NextRetryAt:      d.NextRetryAt,
		DeliveredAt:      d.DeliveredAt,
		CreatedAt:        d.CreatedAt,
	}
}
