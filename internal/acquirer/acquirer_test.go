package acquirer_test

import (
	"context"
	"testing"
	"time"

	"github.com/hamsukypay/engine/internal/acquirer"
	domainErrors "github.com/hamsukypay/engine/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockAcquirer_AuthorizeSuccess(t *testing.T) {
	a := acquirer.NewMockAcquirer("test", acquirer.WithLatency(0))

	outcome, err := a.Authorize(context.Background(), acquirer.AuthorizeRequest{
		TransactionID: "tx-1",
		AmountMinor:   150000,
		Currency:      "NGN",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Succeeded())
	assert.NotEmpty(t, outcome.Reference)
}

func TestMockAcquirer_AlwaysDeclines(t *testing.T) {
	a := acquirer.NewMockAcquirer("test",
		acquirer.WithLatency(0),
		acquirer.WithDeclineRate(1.0),
	)

	outcome, err := a.Authorize(context.Background(), acquirer.AuthorizeRequest{TransactionID: "tx-1"})
	require.NoError(t, err)
	assert.Equal(t, acquirer.PermanentFailure, outcome.Kind)
	assert.NotEmpty(t, outcome.Reason)
}

func TestMockAcquirer_AlwaysTimesOut(t *testing.T) {
	a := acquirer.NewMockAcquirer("test",
		acquirer.WithLatency(0),
		acquirer.WithTimeoutRate(1.0),
	)

	_, err := a.Capture(context.Background(), acquirer.CaptureRequest{TransactionID: "tx-1"})
	assert.ErrorIs(t, err, domainErrors.ErrAcquirerTimeout)
}

func TestMockAcquirer_QueryRemembersOutcome(t *testing.T) {
	a := acquirer.NewMockAcquirer("test", acquirer.WithLatency(0))
	ctx := context.Background()

	authorized, err := a.Authorize(ctx, acquirer.AuthorizeRequest{TransactionID: "tx-1"})
	require.NoError(t, err)
	require.True(t, authorized.Succeeded())

	queried, err := a.Query(ctx, acquirer.QueryRequest{TransactionID: "tx-1", Operation: "authorize"})
	require.NoError(t, err)
	assert.Equal(t, authorized, queried)

	// a capture was never attempted, so its fate is unknown
	unknown, err := a.Query(ctx, acquirer.QueryRequest{TransactionID: "tx-1", Operation: "capture"})
	require.NoError(t, err)
	assert.Equal(t, acquirer.TransientFailure, unknown.Kind)
}

func TestMockAcquirer_QueryUnknownTransaction(t *testing.T) {
	a := acquirer.NewMockAcquirer("test", acquirer.WithLatency(0))

	outcome, err := a.Query(context.Background(), acquirer.QueryRequest{TransactionID: "never-seen"})
	require.NoError(t, err)
	assert.Equal(t, acquirer.TransientFailure, outcome.Kind)
}

func TestMockAcquirer_CancelledContext(t *testing.T) {
	a := acquirer.NewMockAcquirer("test", acquirer.WithLatency(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Authorize(ctx, acquirer.AuthorizeRequest{TransactionID: "tx-1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFactory_Get(t *testing.T) {
	f := acquirer.NewFactory(acquirer.NewMockAcquirer("interswitch", acquirer.WithLatency(0)))

	a, breaker, err := f.Get("interswitch")
	require.NoError(t, err)
	assert.Equal(t, "interswitch", a.Name())
	assert.NotNil(t, breaker)
}

func TestFactory_UnknownAcquirer(t *testing.T) {
	f := acquirer.NewFactory(acquirer.NewMockAcquirer("interswitch", acquirer.WithLatency(0)))

	_, _, err := f.Get("no-such-rail")
	assert.ErrorIs(t, err, domainErrors.ErrAcquirerNotFound)
}

func TestFactory_DefaultAcquirers(t *testing.T) {
	f := acquirer.NewFactory()
	assert.ElementsMatch(t, []string{"interswitch", "flutterwave"}, f.Names())
}
