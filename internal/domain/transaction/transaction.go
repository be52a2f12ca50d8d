package transaction

import (
	"fmt"
	"time"

	"github.com/hamsukypay/engine/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/jaevor/go-nanoid"
)

// Status represents the transaction status in the state machine
type Status string

const (
	StatusPending     Status = "pending"
	StatusAuthorizing Status = "authorizing"
	StatusAuthorized  Status = "authorized"
	StatusCapturing   Status = "capturing"
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
	StatusReversed    Status = "reversed"
)

// Actor identifies which part of the system drove a state transition.
type Actor string

const (
	ActorAPI     Actor = "api"
	ActorWorker  Actor = "worker"
	ActorSweeper Actor = "sweeper"
)

// InstrumentKind represents the kind of payment instrument used to settle.
type InstrumentKind string

const (
	InstrumentCard         InstrumentKind = "card"
	InstrumentBankTransfer InstrumentKind = "bank_transfer"
	InstrumentMobileMoney  InstrumentKind = "mobile_money"
	InstrumentUSSD         InstrumentKind = "ussd"
	InstrumentQR           InstrumentKind = "qr"
)

var instrumentKinds = map[InstrumentKind]struct{}{
	InstrumentCard:         {},
	InstrumentBankTransfer: {},
	InstrumentMobileMoney:  {},
	InstrumentUSSD:         {},
	InstrumentQR:           {},
}

// Instrument is an opaque handle to a payment instrument. The engine never
// sees raw card data; the token references a vaulted instrument at the
// acquirer side.
type Instrument struct {
	Kind  InstrumentKind
	Token string
}

// Validate checks that the instrument is usable.
func (i Instrument) Validate() error {
	if _, ok := instrumentKinds[i.Kind]; !ok {
		return errors.NewValidationError("payment_instrument.kind", "unknown instrument kind "+string(i.Kind))
	}
	if i.Token == "" {
		return errors.NewValidationError("payment_instrument.token", "cannot be empty")
	}
	return nil
}

// Amount represents a monetary amount in the smallest currency unit (e.g. kobo, cents).
type Amount struct {
	ValueMinor int64
	Currency   string
}

// String returns a human-readable representation of the amount.
func (a Amount) String() string {
	whole := a.ValueMinor / 100
	frac := a.ValueMinor % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d %s", whole, frac, a.Currency)
}

// Validate checks that the amount is valid.
func (a Amount) Validate() error {
	if a.ValueMinor <= 0 {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	if len(a.Currency) != 3 {
		return errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	return nil
}

// Transaction represents one attempt to move money from a customer to a merchant.
type Transaction struct {
	ID                uuid.UUID
	Reference         string
	MerchantID        uuid.UUID
	IdempotencyKey    string
	Amount            Amount
	Instrument        Instrument
	Status            Status
	AcquirerName      string
	AcquirerReference *string
	AttemptCount      int
	MaxAttempts       int
	FailureReason     *string
	Version           int
	Metadata          map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
	TerminalAt        *time.Time
}

var newReferenceID = mustReferenceID()

func mustReferenceID() func() string {
	gen, err := nanoid.CustomASCII("0123456789ABCDEFGHJKMNPQRSTVWXYZ", 14)
	if err != nil {
		panic(err)
	}
	return gen
}

// NewReference generates a merchant-facing transaction reference.
func NewReference() string {
	return "HMSKY-" + newReferenceID()
}

// New creates a transaction record at pending.
func New(
	merchantID uuid.UUID,
	idempotencyKey string,
	amount Amount,
	instrument Instrument,
	acquirerName string,
	maxAttempts int,
	metadata map[string]any,
) (*Transaction, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}
	if err := instrument.Validate(); err != nil {
		return nil, err
	}
	if idempotencyKey == "" {
		return nil, errors.NewValidationError("idempotency_key", "cannot be empty")
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if metadata == nil {
		metadata = make(map[string]any)
	}

	now := time.Now()
	return &Transaction{
		ID:             uuid.New(),
		Reference:      NewReference(),
		MerchantID:     merchantID,
		IdempotencyKey: idempotencyKey,
		Amount:         amount,
		Instrument:     instrument,
		Status:         StatusPending,
		AcquirerName:   acquirerName,
		AttemptCount:   0,
		MaxAttempts:    maxAttempts,
		Version:        1,
		Metadata:       metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// legalTransitions is the forward-only transition table. Failed is reachable
// from every non-terminal state; reversed only from succeeded.
var legalTransitions = map[Status][]Status{
	StatusPending:     {StatusAuthorizing, StatusFailed},
	StatusAuthorizing: {StatusAuthorized, StatusFailed},
	StatusAuthorized:  {StatusCapturing, StatusFailed},
	StatusCapturing:   {StatusSucceeded, StatusFailed},
	StatusSucceeded:   {StatusReversed},
	StatusFailed:      {},
	StatusReversed:    {},
}

// CanTransitionTo checks if the transaction can transition to the given status
func (t *Transaction) CanTransitionTo(newStatus Status) bool {
	allowed, exists := legalTransitions[t.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo transitions the transaction to a new status
func (t *Transaction) TransitionTo(newStatus Status) error {
	if !t.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(t.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}

	t.Status = newStatus
	t.UpdatedAt = time.Now()

	if t.IsTerminal() {
		now := time.Now()
		t.TerminalAt = &now
	}

	return nil
}

// MarkFailed transitions the transaction to failed with a reason.
func (t *Transaction) MarkFailed(reason string) error {
	if err := t.TransitionTo(StatusFailed); err != nil {
		return err
	}
	t.FailureReason = &reason
	return nil
}

// RecordAttempt increments the acquirer call counter.
func (t *Transaction) RecordAttempt() error {
	if t.AttemptCount >= t.MaxAttempts {
		return errors.ErrMaxAttemptsExceeded
	}
	t.AttemptCount++
	t.UpdatedAt = time.Now()
	return nil
}

// AttemptsExhausted reports whether the retry budget is spent.
func (t *Transaction) AttemptsExhausted() bool {
	return t.AttemptCount >= t.MaxAttempts
}

// IsTerminal checks if the transaction is in a terminal state
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusSucceeded ||
		t.Status == StatusFailed ||
		t.Status == StatusReversed
}

// InFlight reports whether the status marks an acquirer call that may have
// been interrupted (crashed worker, lost response).
func (t *Transaction) InFlight() bool {
	return t.Status == StatusAuthorizing || t.Status == StatusCapturing
}
