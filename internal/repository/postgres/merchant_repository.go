package postgres

import (
	"context"
	"fmt"

	domainErrors "github.com/hamsukypay/engine/internal/domain/errors"
	"github.com/hamsukypay/engine/internal/domain/merchant"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MerchantRepository implements merchant.Repository using PostgreSQL.
type MerchantRepository struct {
	pool *pgxpool.Pool
}

func NewMerchantRepository(pool *pgxpool.Pool) *MerchantRepository {
	return &MerchantRepository{pool: pool}
}

func (r *MerchantRepository) db(ctx context.Context) Querier {
	return conn(ctx, r.pool)
}

func (r *MerchantRepository) Create(ctx context.Context, m *merchant.Merchant) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO merchants (id, name, email, public_key, secret_key, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.Name, m.Email, m.PublicKey, m.SecretKey, m.Active, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert merchant: %w", err)
	}
	return nil
}

func (r *MerchantRepository) GetByID(ctx context.Context, id uuid.UUID) (*merchant.Merchant, error) {
	return r.scanMerchant(r.db(ctx).QueryRow(ctx,
		`SELECT id, name, email, public_key, secret_key, active, created_at, updated_at
		 FROM merchants WHERE id = $1`, id))
}

func (r *MerchantRepository) GetBySecretKey(ctx context.Context, secretKey string) (*merchant.Merchant, error) {
	return r.scanMerchant(r.db(ctx).QueryRow(ctx,
		`SELECT id, name, email, public_key, secret_key, active, created_at, updated_at
		 FROM merchants WHERE secret_key = $1 AND active`, secretKey))
}

func (r *MerchantRepository) AddEndpoint(ctx context.Context, e *merchant.Endpoint) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO webhook_endpoints (id, merchant_id, url, active, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.MerchantID, e.URL, e.Active, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook endpoint: %w", err)
	}
	return nil
}

func (r *MerchantRepository) ListEndpoints(ctx context.Context, merchantID uuid.UUID) ([]*merchant.Endpoint, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, merchant_id, url, active, created_at
		 FROM webhook_endpoints WHERE merchant_id = $1 AND active
		 ORDER BY created_at ASC`, merchantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list webhook endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []*merchant.Endpoint
	for rows.Next() {
		e := &merchant.Endpoint{}
		if err := rows.Scan(&e.ID, &e.MerchantID, &e.URL, &e.Active, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook endpoint: %w", err)
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}

func (r *MerchantRepository) scanMerchant(row pgx.Row) (*merchant.Merchant, error) {
	m := &merchant.Merchant{}
	err := row.Scan(&m.ID, &m.Name, &m.Email, &m.PublicKey, &m.SecretKey, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrMerchantNotFound
		}
		return nil, fmt.Errorf("scan merchant: %w", err)
	}
	return m, nil
}
