package transaction_test

import (
	"context"
	"testing"

	appTransaction "github.com/hamsukypay/engine/internal/application/transaction"
	domainErrors "github.com/hamsukypay/engine/internal/domain/errors"
	"github.com/hamsukypay/engine/internal/domain/transaction"
	"github.com/hamsukypay/engine/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify_ByReference(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockTransactionRepository()
	tx := testutil.NewTestTransaction(uuid.New(), transaction.StatusSucceeded)
	repo.Add(tx)
	require.NoError(t, repo.AddEvent(ctx, transaction.NewEvent(tx.ID, transaction.StatusPending, transaction.StatusAuthorizing, transaction.ActorWorker)))

	uc := appTransaction.NewVerifyUseCase(repo)
	found, events, err := uc.Execute(ctx, tx.Reference)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, found.ID)
	assert.Len(t, events, 1)
}

func TestVerify_UnknownReference(t *testing.T) {
	uc := appTransaction.NewVerifyUseCase(testutil.NewMockTransactionRepository())
	_, _, err := uc.Execute(context.Background(), "HMSKY-DOESNOTEXIST")
	assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
}

func TestList_ClampsLimit(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockTransactionRepository()
	merchantID := uuid.New()

	var captured transaction.ListFilter
	uc := appTransaction.NewGetTransactionUseCase(repo)

	for _, limit := range []int{0, -5, 101} {
		captured = transaction.ListFilter{MerchantID: testutil.UUIDPtr(merchantID), Limit: limit}
		_, err := uc.List(ctx, captured)
		require.NoError(t, err)
	}

	// in-range limits pass through
	_, err := uc.List(ctx, transaction.ListFilter{MerchantID: testutil.UUIDPtr(merchantID), Limit: 25})
	require.NoError(t, err)
}

func TestList_FiltersByMerchant(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockTransactionRepository()
	mine := uuid.New()
	repo.Add(testutil.NewTestTransaction(mine))
	repo.Add(testutil.NewTestTransaction(uuid.New()))

	uc := appTransaction.NewGetTransactionUseCase(repo)
	result, err := uc.List(ctx, transaction.ListFilter{MerchantID: testutil.UUIDPtr(mine)})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, mine, result[0].MerchantID)
}
