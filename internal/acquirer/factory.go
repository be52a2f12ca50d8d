package acquirer

import (
	"fmt"
	"time"

	domainErrors "github.com/hamsukypay/engine/internal/domain/errors"
	"github.com/sony/gobreaker/v2"
)

// Factory routes transactions to acquirers by name and wraps every acquirer
// behind its own circuit breaker so a misbehaving rail cannot soak the
// retry budget of every worker.
type Factory struct {
	acquirers       map[string]Acquirer
	circuitBreakers map[string]*gobreaker.CircuitBreaker[Outcome]
}

func NewFactory(acquirers ...Acquirer) *Factory {
	f := &Factory{
		acquirers:       make(map[string]Acquirer),
		circuitBreakers: make(map[string]*gobreaker.CircuitBreaker[Outcome]),
	}

	if len(acquirers) == 0 {
		f.Register(NewMockAcquirer("interswitch",
			WithLatency(200*time.Millisecond),
			WithDeclineRate(0.05),
		))
		f.Register(NewMockAcquirer("flutterwave",
			WithLatency(300*time.Millisecond),
			WithDeclineRate(0.08),
		))
	} else {
		for _, a := range acquirers {
			f.Register(a)
		}
	}

	return f
}

func (f *Factory) Register(a Acquirer) {
	f.acquirers[a.Name()] = a
	f.circuitBreakers[a.Name()] = gobreaker.NewCircuitBreaker[Outcome](gobreaker.Settings{
		Name:        a.Name(),
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
	})
}

// Names returns the registered acquirer names.
func (f *Factory) Names() []string {
	names := make([]string, 0, len(f.acquirers))
	for name := range f.acquirers {
		names = append(names, name)
	}
	return names
}

func (f *Factory) Get(name string) (Acquirer, *gobreaker.CircuitBreaker[Outcome], error) {
	a, ok := f.acquirers[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown acquirer %q: %w", name, domainErrors.ErrAcquirerNotFound)
	}
	return a, f.circuitBreakers[name], nil
}
