package acquirer

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	domainErrors "github.com/hamsukypay/engine/internal/domain/errors"
	"github.com/google/uuid"
)

// MockAcquirer simulates a settlement rail for development and sandbox use.
// Declines and timeouts are driven by configurable rates; it remembers the
// outcome of every authorize/capture so Query answers consistently.
type MockAcquirer struct {
	name        string
	declineRate float64 // 0.0 to 1.0, permanent declines
	timeoutRate float64 // 0.0 to 1.0, simulated lost responses
	latency     time.Duration

	mu      sync.Mutex
	settled map[string]Outcome // "transaction id|operation" -> known outcome
}

type MockOption func(*MockAcquirer)

func WithDeclineRate(rate float64) MockOption {
	return func(a *MockAcquirer) { a.declineRate = rate }
}

func WithTimeoutRate(rate float64) MockOption {
	return func(a *MockAcquirer) { a.timeoutRate = rate }
}

func WithLatency(d time.Duration) MockOption {
	return func(a *MockAcquirer) { a.latency = d }
}

func NewMockAcquirer(name string, opts ...MockOption) *MockAcquirer {
	a := &MockAcquirer{
		name:    name,
		latency: 100 * time.Millisecond,
		settled: make(map[string]Outcome),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *MockAcquirer) Name() string { return a.name }

func (a *MockAcquirer) Authorize(ctx context.Context, req AuthorizeRequest) (Outcome, error) {
	return a.call(ctx, req.TransactionID, "authorize")
}

func (a *MockAcquirer) Capture(ctx context.Context, req CaptureRequest) (Outcome, error) {
	return a.call(ctx, req.TransactionID, "capture")
}

func (a *MockAcquirer) Refund(ctx context.Context, req RefundRequest) (Outcome, error) {
	return a.call(ctx, req.TransactionID, "refund")
}

// Query returns the remembered outcome of the named operation, or a
// transient "unknown" outcome when the acquirer never saw a completed call.
func (a *MockAcquirer) Query(ctx context.Context, req QueryRequest) (Outcome, error) {
	select {
	case <-time.After(a.latency / 2):
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if outcome, ok := a.settled[req.TransactionID+"|"+req.Operation]; ok {
		return outcome, nil
	}
	return Outcome{Kind: TransientFailure, Reason: "transaction unknown to acquirer"}, nil
}

func (a *MockAcquirer) call(ctx context.Context, transactionID, op string) (Outcome, error) {
	select {
	case <-time.After(a.latency):
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}

	if rand.Float64() < a.timeoutRate {
		return Outcome{}, domainErrors.ErrAcquirerTimeout
	}

	if rand.Float64() < a.declineRate {
		outcome := Outcome{
			Kind:   PermanentFailure,
			Reason: fmt.Sprintf("%s: declined by issuer", a.name),
		}
		a.remember(transactionID, op, outcome)
		return outcome, nil
	}

	outcome := Outcome{
		Kind:      Success,
		Reference: fmt.Sprintf("%s_%s_%s", a.name, op, uuid.New().String()[:8]),
	}
	a.remember(transactionID, op, outcome)
	return outcome, nil
}

func (a *MockAcquirer) remember(transactionID, op string, outcome Outcome) {
	a.mu.Lock()
	a.settled[transactionID+"|"+op] = outcome
	a.mu.Unlock()
}
