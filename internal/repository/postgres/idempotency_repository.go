package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/hamsukypay/engine/internal/domain/idempotency"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyRepository persists idempotency reservations. Reserve is the
// single strict mutual-exclusion point of the engine: the unique
// (merchant_id, key) constraint arbitrates concurrent callers.
type IdempotencyRepository struct {
	pool *pgxpool.Pool
}

func NewIdempotencyRepository(pool *pgxpool.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

func (r *IdempotencyRepository) db(ctx context.Context) Querier {
	return conn(ctx, r.pool)
}

func (r *IdempotencyRepository) Reserve(ctx context.Context, res *idempotency.Reservation) (*idempotency.Reservation, bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`INSERT INTO idempotency_reservations (merchant_id, key, fingerprint, transaction_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (merchant_id, key) DO NOTHING`,
		res.MerchantID, res.Key, res.Fingerprint, res.TransactionID, res.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return res, true, nil
	}

	existing, err := r.Get(ctx, res.MerchantID, res.Key)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *IdempotencyRepository) Get(ctx context.Context, merchantID uuid.UUID, key string) (*idempotency.Reservation, error) {
	res := &idempotency.Reservation{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT merchant_id, key, fingerprint, transaction_id, created_at
		 FROM idempotency_reservations WHERE merchant_id = $1 AND key = $2`,
		merchantID, key,
	).Scan(&res.MerchantID, &res.Key, &res.Fingerprint, &res.TransactionID, &res.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // not found
		}
		return nil, fmt.Errorf("get idempotency reservation: %w", err)
	}
	return res, nil
}

func (r *IdempotencyRepository) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`DELETE FROM idempotency_reservations WHERE created_at < $1`,
		time.Now().Add(-retention),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency reservations: %w", err)
	}
	return tag.RowsAffected(), nil
}
