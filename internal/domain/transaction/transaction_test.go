package transaction_test

import (
	"strings"
	"testing"

	"github.com/hamsukypay/engine/internal/domain/errors"
	"github.com/hamsukypay/engine/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAmount() transaction.Amount {
	return transaction.Amount{ValueMinor: 150000, Currency: "NGN"}
}

func validInstrument() transaction.Instrument {
	return transaction.Instrument{Kind: transaction.InstrumentCard, Token: "tok_test_4242"}
}

func TestNew_Valid(t *testing.T) {
	tx, err := transaction.New(uuid.New(), "key-1", validAmount(), validInstrument(), "mock", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, tx.Status)
	assert.Equal(t, "key-1", tx.IdempotencyKey)
	assert.Equal(t, int64(150000), tx.Amount.ValueMinor)
	assert.Equal(t, 0, tx.AttemptCount)
	assert.Equal(t, 3, tx.MaxAttempts)
	assert.Equal(t, 1, tx.Version)
	assert.NotNil(t, tx.Metadata)
	assert.Nil(t, tx.TerminalAt)
}

func TestNew_InvalidAmount(t *testing.T) {
	_, err := transaction.New(uuid.New(), "key-1", transaction.Amount{ValueMinor: 0, Currency: "NGN"}, validInstrument(), "mock", 3, nil)
	assert.Error(t, err)

	_, err = transaction.New(uuid.New(), "key-1", transaction.Amount{ValueMinor: -500, Currency: "NGN"}, validInstrument(), "mock", 3, nil)
	assert.Error(t, err)
}

func TestNew_InvalidCurrency(t *testing.T) {
	_, err := transaction.New(uuid.New(), "key-1", transaction.Amount{ValueMinor: 100, Currency: "NG"}, validInstrument(), "mock", 3, nil)
	assert.Error(t, err)
}

func TestNew_UnknownInstrumentKind(t *testing.T) {
	bad := transaction.Instrument{Kind: "cheque", Token: "tok_1"}
	_, err := transaction.New(uuid.New(), "key-1", validAmount(), bad, "mock", 3, nil)
	assert.Error(t, err)
}

func TestNew_MissingInstrumentToken(t *testing.T) {
	bad := transaction.Instrument{Kind: transaction.InstrumentCard}
	_, err := transaction.New(uuid.New(), "key-1", validAmount(), bad, "mock", 3, nil)
	assert.Error(t, err)
}

func TestNew_EmptyIdempotencyKey(t *testing.T) {
	_, err := transaction.New(uuid.New(), "", validAmount(), validInstrument(), "mock", 3, nil)
	assert.Error(t, err)
}

func TestNew_DefaultMaxAttempts(t *testing.T) {
	tx, err := transaction.New(uuid.New(), "key-1", validAmount(), validInstrument(), "mock", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, tx.MaxAttempts)
}

func TestNewReference(t *testing.T) {
	ref := transaction.NewReference()
	assert.True(t, strings.HasPrefix(ref, "HMSKY-"))
	assert.Len(t, ref, len("HMSKY-")+14)

	// no ambiguous characters in the suffix
	for _, c := range ref[len("HMSKY-"):] {
		assert.NotContains(t, "ILOU", string(c))
	}

	assert.NotEqual(t, ref, transaction.NewReference())
}

// --- State Machine Tests ---

func newInStatus(t *testing.T, s transaction.Status) *transaction.Transaction {
	t.Helper()
	tx, err := transaction.New(uuid.New(), "key-"+uuid.NewString(), validAmount(), validInstrument(), "mock", 3, nil)
	require.NoError(t, err)
	tx.Status = s
	return tx
}

func TestTransitionTo_HappyPath(t *testing.T) {
	tx := newInStatus(t, transaction.StatusPending)
	for _, next := range []transaction.Status{
		transaction.StatusAuthorizing,
		transaction.StatusAuthorized,
		transaction.StatusCapturing,
		transaction.StatusSucceeded,
	} {
		require.NoError(t, tx.TransitionTo(next))
		assert.Equal(t, next, tx.Status)
	}
	assert.True(t, tx.IsTerminal())
	assert.NotNil(t, tx.TerminalAt)
}

func TestTransitionTo_LegalTable(t *testing.T) {
	cases := []struct {
		from  transaction.Status
		to    transaction.Status
		legal bool
	}{
		{transaction.StatusPending, transaction.StatusAuthorizing, true},
		{transaction.StatusPending, transaction.StatusFailed, true},
		{transaction.StatusPending, transaction.StatusSucceeded, false},
		{transaction.StatusPending, transaction.StatusCapturing, false},
		{transaction.StatusAuthorizing, transaction.StatusAuthorized, true},
		{transaction.StatusAuthorizing, transaction.StatusFailed, true},
		{transaction.StatusAuthorizing, transaction.StatusSucceeded, false},
		{transaction.StatusAuthorized, transaction.StatusCapturing, true},
		{transaction.StatusAuthorized, transaction.StatusFailed, true},
		{transaction.StatusCapturing, transaction.StatusSucceeded, true},
		{transaction.StatusCapturing, transaction.StatusFailed, true},
		{transaction.StatusSucceeded, transaction.StatusReversed, true},
		{transaction.StatusSucceeded, transaction.StatusFailed, false},
		{transaction.StatusFailed, transaction.StatusPending, false},
		{transaction.StatusFailed, transaction.StatusAuthorizing, false},
		{transaction.StatusReversed, transaction.StatusSucceeded, false},
	}

	for _, tc := range cases {
		tx := newInStatus(t, tc.from)
		err := tx.TransitionTo(tc.to)
		if tc.legal {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
		} else {
			assert.ErrorIs(t, err, errors.ErrInvalidStateTransition, "%s -> %s", tc.from, tc.to)
			assert.Equal(t, tc.from, tx.Status, "status must not change on illegal transition")
		}
	}
}

func TestMarkFailed(t *testing.T) {
	tx := newInStatus(t, transaction.StatusAuthorizing)
	require.NoError(t, tx.MarkFailed("card declined"))
	assert.Equal(t, transaction.StatusFailed, tx.Status)
	require.NotNil(t, tx.FailureReason)
	assert.Equal(t, "card declined", *tx.FailureReason)
	assert.NotNil(t, tx.TerminalAt)
}

func TestMarkFailed_FromTerminal(t *testing.T) {
	tx := newInStatus(t, transaction.StatusSucceeded)
	assert.Error(t, tx.MarkFailed("too late"))
	assert.Equal(t, transaction.StatusSucceeded, tx.Status)
	assert.Nil(t, tx.FailureReason)
}

func TestRecordAttempt(t *testing.T) {
	tx := newInStatus(t, transaction.StatusAuthorizing)

	for i := 1; i <= 3; i++ {
		require.NoError(t, tx.RecordAttempt())
		assert.Equal(t, i, tx.AttemptCount)
	}
	assert.True(t, tx.AttemptsExhausted())
	assert.ErrorIs(t, tx.RecordAttempt(), errors.ErrMaxAttemptsExceeded)
	assert.Equal(t, 3, tx.AttemptCount)
}

func TestInFlight(t *testing.T) {
	assert.True(t, newInStatus(t, transaction.StatusAuthorizing).InFlight())
	assert.True(t, newInStatus(t, transaction.StatusCapturing).InFlight())
	assert.False(t, newInStatus(t, transaction.StatusPending).InFlight())
	assert.False(t, newInStatus(t, transaction.StatusAuthorized).InFlight())
	assert.False(t, newInStatus(t, transaction.StatusSucceeded).InFlight())
}
