package transaction_test

import (
	"context"
	"testing"
	"time"

	"github.com/hamsukypay/engine/internal/acquirer"
	appTransaction "github.com/hamsukypay/engine/internal/application/transaction"
	domainErrors "github.com/hamsukypay/engine/internal/domain/errors"
	"github.com/hamsukypay/engine/internal/domain/outbox"
	"github.com/hamsukypay/engine/internal/domain/transaction"
	"github.com/hamsukypay/engine/internal/infrastructure/observability"
	"github.com/hamsukypay/engine/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type advanceFixture struct {
	repo       *testutil.MockTransactionRepository
	outboxRepo *testutil.MockOutboxRepository
	scheduler  *testutil.MockScheduler
	uc         *appTransaction.AdvanceUseCase
}

func newAdvanceFixture(t *testing.T, acq acquirer.Acquirer, newLock appTransaction.LockFactory) *advanceFixture {
	t.Helper()
	if newLock == nil {
		newLock = func(key string) appTransaction.Lock { return &testutil.MockLock{} }
	}
	f := &advanceFixture{
		repo:       testutil.NewMockTransactionRepository(),
		outboxRepo: testutil.NewMockOutboxRepository(),
		scheduler:  testutil.NewMockScheduler(),
	}
	f.uc = appTransaction.NewAdvanceUseCase(
		f.repo,
		f.outboxRepo,
		testutil.NewMockTransactionManager(),
		acquirer.NewFactory(acq),
		f.scheduler,
		newLock,
		observability.NewMetrics("test", prometheus.NewRegistry()),
		zerolog.Nop(),
		time.Second,
		3,
	)
	return f
}

func TestAdvance_HappyPath(t *testing.T) {
	ctx := context.Background()
	f := newAdvanceFixture(t, acquirer.NewMockAcquirer("mock", acquirer.WithLatency(0)), nil)

	tx := testutil.NewTestTransaction(testutil.NewTestMerchant().ID)
	f.repo.Add(tx)

	require.NoError(t, f.uc.Execute(ctx, tx.ID, transaction.ActorWorker))

	stored := f.repo.Stored(tx.ID)
	assert.Equal(t, transaction.StatusSucceeded, stored.Status)
	assert.Equal(t, 2, stored.AttemptCount, "one authorize plus one capture")
	require.NotNil(t, stored.AcquirerReference)
	assert.NotNil(t, stored.TerminalAt)

	events, err := f.repo.GetEvents(ctx, tx.ID)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, transaction.StatusPending, events[0].PreviousStatus)
	assert.Equal(t, transaction.StatusAuthorizing, events[0].NewStatus)
	assert.Equal(t, transaction.StatusSucceeded, events[3].NewStatus)

	entries := f.outboxRepo.Entries()
	require.Len(t, entries, 1, "exactly one outcome event")
	assert.Equal(t, outbox.EventTransactionSucceeded, entries[0].EventType)
	assert.Equal(t, "succeeded", entries[0].Payload["new_status"])
}

func TestAdvance_PermanentDecline(t *testing.T) {
	ctx := context.Background()
	f := newAdvanceFixture(t, acquirer.NewMockAcquirer("mock",
		acquirer.WithLatency(0),
		acquirer.WithDeclineRate(1.0),
	), nil)

	tx := testutil.NewTestTransaction(testutil.NewTestMerchant().ID)
	f.repo.Add(tx)

	require.NoError(t, f.uc.Execute(ctx, tx.ID, transaction.ActorWorker))

	stored := f.repo.Stored(tx.ID)
	assert.Equal(t, transaction.StatusFailed, stored.Status)
	assert.Equal(t, 1, stored.AttemptCount, "a decline is permanent, no retry")
	require.NotNil(t, stored.FailureReason)
	assert.Contains(t, *stored.FailureReason, "declined")

	entries := f.outboxRepo.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, outbox.EventTransactionFailed, entries[0].EventType)
	assert.Empty(t, f.scheduler.Scheduled)
}

func TestAdvance_TransientFailureSchedulesRetry(t *testing.T) {
	ctx := context.Background()
	f := newAdvanceFixture(t, acquirer.NewMockAcquirer("mock",
		acquirer.WithLatency(0),
		acquirer.WithTimeoutRate(1.0),
	), nil)

	tx := testutil.NewTestTransaction(testutil.NewTestMerchant().ID)
	f.repo.Add(tx)

	require.NoError(t, f.uc.Execute(ctx, tx.ID, transaction.ActorWorker))

	stored := f.repo.Stored(tx.ID)
	assert.Equal(t, transaction.StatusAuthorizing, stored.Status, "stays in place for the retry")
	assert.Equal(t, 1, stored.AttemptCount)

	at, ok := f.scheduler.Scheduled[tx.ID.String()]
	require.True(t, ok, "a delayed re-advance must be scheduled")
	assert.True(t, at.After(time.Now()))
	assert.Empty(t, f.outboxRepo.Entries(), "no outcome yet")
}

func TestAdvance_MaxAttemptsExceeded(t *testing.T) {
	ctx := context.Background()
	f := newAdvanceFixture(t, acquirer.NewMockAcquirer("mock",
		acquirer.WithLatency(0),
		acquirer.WithTimeoutRate(1.0),
	), nil)

	tx := testutil.NewTestTransaction(testutil.NewTestMerchant().ID)
	f.repo.Add(tx)

	// three transient failures exhaust the attempt budget
	for i := 0; i < 3; i++ {
		require.NoError(t, f.uc.Execute(ctx, tx.ID, transaction.ActorWorker))
	}

	stored := f.repo.Stored(tx.ID)
	assert.Equal(t, transaction.StatusFailed, stored.Status)
	assert.Equal(t, 3, stored.AttemptCount)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, "max attempts exceeded", *stored.FailureReason)

	entries := f.outboxRepo.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, outbox.EventTransactionFailed, entries[0].EventType)
}

func TestAdvance_TerminalIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newAdvanceFixture(t, acquirer.NewMockAcquirer("mock", acquirer.WithLatency(0)), nil)

	tx := testutil.NewTestTransaction(testutil.NewTestMerchant().ID, transaction.StatusSucceeded)
	f.repo.Add(tx)

	require.NoError(t, f.uc.Execute(ctx, tx.ID, transaction.ActorWorker))

	events, err := f.repo.GetEvents(ctx, tx.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Empty(t, f.outboxRepo.Entries())
}

func TestAdvance_LockContention(t *testing.T) {
	ctx := context.Background()
	contended := func(key string) appTransaction.Lock { return &testutil.MockLock{Held: true} }
	f := newAdvanceFixture(t, acquirer.NewMockAcquirer("mock", acquirer.WithLatency(0)), contended)

	tx := testutil.NewTestTransaction(testutil.NewTestMerchant().ID)
	f.repo.Add(tx)

	err := f.uc.Execute(ctx, tx.ID, transaction.ActorWorker)
	assert.ErrorIs(t, err, domainErrors.ErrLockAcquisitionFailed)
	assert.Equal(t, transaction.StatusPending, f.repo.Stored(tx.ID).Status)
}

func TestAdvance_NotFound(t *testing.T) {
	f := newAdvanceFixture(t, acquirer.NewMockAcquirer("mock", acquirer.WithLatency(0)), nil)
	tx := testutil.NewTestTransaction(testutil.NewTestMerchant().ID)

	err := f.uc.Execute(context.Background(), tx.ID, transaction.ActorWorker)
	assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
}

func TestAdvance_UnknownAcquirerFailsTransaction(t *testing.T) {
	ctx := context.Background()
	f := newAdvanceFixture(t, acquirer.NewMockAcquirer("mock", acquirer.WithLatency(0)), nil)

	tx := testutil.NewTestTransaction(testutil.NewTestMerchant().ID)
	tx.AcquirerName = "decommissioned-rail"
	f.repo.Add(tx)

	require.NoError(t, f.uc.Execute(ctx, tx.ID, transaction.ActorWorker))

	stored := f.repo.Stored(tx.ID)
	assert.Equal(t, transaction.StatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Contains(t, *stored.FailureReason, "decommissioned-rail")
}

// A worker that crashed after dialing the acquirer leaves an attempt with an
// unknown fate; the next advance asks the acquirer instead of dialing again.
func TestAdvance_RecoversLostAuthorizeResponse(t *testing.T) {
	ctx := context.Background()
	mock := acquirer.NewMockAcquirer("mock", acquirer.WithLatency(0))
	f := newAdvanceFixture(t, mock, nil)

	tx := testutil.NewTestTransaction(testutil.NewTestMerchant().ID, transaction.StatusAuthorizing)
	tx.AttemptCount = 1

	// the acquirer saw the authorize land, the worker never saw the response
	outcome, err := mock.Authorize(ctx, acquirer.AuthorizeRequest{TransactionID: tx.ID.String()})
	require.NoError(t, err)
	require.True(t, outcome.Succeeded())
	f.repo.Add(tx)

	require.NoError(t, f.uc.Execute(ctx, tx.ID, transaction.ActorWorker))

	stored := f.repo.Stored(tx.ID)
	assert.Equal(t, transaction.StatusSucceeded, stored.Status)
	assert.Equal(t, 2, stored.AttemptCount, "the authorize attempt was not re-dialed")
}

func TestAdvance_RetriesStepOnVersionConflict(t *testing.T) {
	ctx := context.Background()
	f := newAdvanceFixture(t, acquirer.NewMockAcquirer("mock", acquirer.WithLatency(0)), nil)

	tx := testutil.NewTestTransaction(testutil.NewTestMerchant().ID)
	f.repo.Add(tx)

	conflicted := false
	f.repo.UpdateFunc = func(ctx context.Context, updated *transaction.Transaction) error {
		if !conflicted {
			conflicted = true
			return domainErrors.ErrOptimisticLockFailed
		}
		f.repo.UpdateFunc = nil
		return f.repo.Update(ctx, updated)
	}

	require.NoError(t, f.uc.Execute(ctx, tx.ID, transaction.ActorWorker))
	assert.Equal(t, transaction.StatusSucceeded, f.repo.Stored(tx.ID).Status)
}
