package acquirer

import (
	"context"
)

// OutcomeKind classifies the result of an acquirer call. Transient failures
// consume one retry attempt; permanent failures terminate the transaction.
type OutcomeKind string

const (
	Success          OutcomeKind = "success"
	PermanentFailure OutcomeKind = "permanent_failure"
	TransientFailure OutcomeKind = "transient_failure"
)

// Outcome is the classified result of an authorize, capture, refund or
// query call against the settlement rail.
type Outcome struct {
	Kind      OutcomeKind
	Reference string // acquirer-side reference, set on Success
	Reason    string // human-readable reason, set on failures
}

// Succeeded reports whether the call settled forward.
func (o Outcome) Succeeded() bool { return o.Kind == Success }

// Acquirer abstracts an external settlement provider (card network, bank
// rail, mobile-money rail). Implementations must be safe for concurrent use.
type Acquirer interface {
	// Name returns the acquirer name used for configuration and routing.
	Name() string
	// Authorize places a hold on the customer's funds.
	Authorize(ctx context.Context, req AuthorizeRequest) (Outcome, error)
	// Capture settles a previously authorized hold.
	Capture(ctx context.Context, req CaptureRequest) (Outcome, error)
	// Refund reverses a settled transaction.
	Refund(ctx context.Context, req RefundRequest) (Outcome, error)
	// Query asks the acquirer for the outcome of a possibly lost call.
	Query(ctx context.Context, req QueryRequest) (Outcome, error)
}

type AuthorizeRequest struct {
	TransactionID   string
	Reference       string
	AmountMinor     int64
	Currency        string
	InstrumentKind  string
	InstrumentToken string
	Metadata        map[string]any
}

type CaptureRequest struct {
	TransactionID     string
	AcquirerReference string
	AmountMinor       int64
	Currency          string
}

type RefundRequest struct {
	TransactionID     string
	AcquirerReference string
	AmountMinor       int64
	Currency          string
	Reason            string
}

type QueryRequest struct {
	TransactionID     string
	AcquirerReference string
	// Operation names the call whose fate is being asked about
	// ("authorize" or "capture"); acquirers report per-operation status.
	Operation string
}
