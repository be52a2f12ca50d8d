package controller

import (
	"testing"
	"time"

	"github.com/hamsukypay/engine/internal/domain/transaction"
	"github.com/hamsukypay/engine/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromTransaction(t *testing.T) {
	tx := testutil.NewTestTransaction(uuid.New(), transaction.StatusFailed)
	tx.FailureReason = testutil.StrPtr("card declined")
	tx.AcquirerReference = testutil.StrPtr("mock_authorize_abc123")
	now := time.Now()
	tx.TerminalAt = &now

	resp := FromTransaction(tx)
	assert.Equal(t, tx.ID.String(), resp.ID)
	assert.Equal(t, tx.Reference, resp.Reference)
	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, tx.Amount.ValueMinor, resp.Amount)
	assert.Equal(t, "NGN", resp.Currency)
	assert.Equal(t, "card", resp.InstrumentKind)
	require.NotNil(t, resp.FailureReason)
	assert.Equal(t, "card declined", *resp.FailureReason)
	assert.NotNil(t, resp.TerminalAt)
}

func TestFromEvents_PreservesOrder(t *testing.T) {
	id := uuid.New()
	events := []*transaction.Event{
		transaction.NewEvent(id, transaction.StatusPending, transaction.StatusAuthorizing, transaction.ActorWorker),
		transaction.NewEvent(id, transaction.StatusAuthorizing, transaction.StatusAuthorized, transaction.ActorWorker),
	}

	out := FromEvents(events)
	require.Len(t, out, 2)
	assert.Equal(t, "authorizing", out[0].NewStatus)
	assert.Equal(t, "authorized", out[1].NewStatus)
	assert.Equal(t, "worker", out[0].Actor)
}

func TestFromDelivery(t *testing.T) {
	d := testutil.NewTestDelivery(uuid.New(), uuid.New(), "https://merchant.example.com/hooks")
	code := 502
	d.LastResponseCode = &code

	resp := FromDelivery(d)
	assert.Equal(t, d.ID.String(), resp.ID)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "https://merchant.example.com/hooks", resp.URL)
	require.NotNil(t, resp.LastResponseCode)
	assert.Equal(t, 502, *resp.LastResponseCode)
}
