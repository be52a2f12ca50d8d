package transaction

import (
	"context"

	"github.com/hamsukypay/engine/internal/domain/transaction"
	"github.com/google/uuid"
)

// VerifyUseCase resolves a merchant-facing reference to the transaction's
// current status and its transition log.
type VerifyUseCase struct {
	transactionRepo transaction.Repository
}

func NewVerifyUseCase(transactionRepo transaction.Repository) *VerifyUseCase {
	return &VerifyUseCase{transactionRepo: transactionRepo}
}

func (uc *VerifyUseCase) Execute(ctx context.Context, reference string) (*transaction.Transaction, []*transaction.Event, error) {
	t, err := uc.transactionRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, nil, err
	}
	events, err := uc.transactionRepo.GetEvents(ctx, t.ID)
	if err != nil {
		return nil, nil, err
	}
	return t, events, nil
}

// GetTransactionUseCase reads transactions by id or in filtered pages.
type GetTransactionUseCase struct {
	transactionRepo transaction.Repository
}

func NewGetTransactionUseCase(transactionRepo transaction.Repository) *GetTransactionUseCase {
	return &GetTransactionUseCase{transactionRepo: transactionRepo}
}

func (uc *GetTransactionUseCase) ByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return uc.transactionRepo.GetByID(ctx, id)
}

func (uc *GetTransactionUseCase) List(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	return uc.transactionRepo.List(ctx, filter)
}
