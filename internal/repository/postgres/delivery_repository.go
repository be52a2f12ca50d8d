package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	domainErrors "github.com/hamsukypay/engine/internal/domain/errors"
	"github.com/hamsukypay/engine/internal/domain/webhook"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const deliveryColumns = `id, event_id, transaction_id, merchant_id, endpoint_id, url,
		payload, event_type, attempt_number, max_attempts, status, next_retry_at,
		last_response_code, last_error, created_at, updated_at, delivered_at`

// DeliveryRepository implements webhook.Repository using PostgreSQL.
type DeliveryRepository struct {
	pool *pgxpool.Pool
}

func NewDeliveryRepository(pool *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{pool: pool}
}

func (r *DeliveryRepository) db(ctx context.Context) Querier {
	return conn(ctx, r.pool)
}

// Insert creates a delivery row. The unique (event_id, endpoint_id)
// constraint makes duplicate fan-out a no-op, so replaying an outbox entry
// never produces a second delivery for the same pair.
func (r *DeliveryRepository) Insert(ctx context.Context, d *webhook.Delivery) error {
	payload, err := json.Marshal(d.Payload)
	if err != nil {
		return fmt.Errorf("marshal delivery payload: %w", err)
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO webhook_deliveries
		 (id, event_id, transaction_id, merchant_id, endpoint_id, url,
		  payload, event_type, attempt_number, max_attempts, status, next_retry_at,
		  last_response_code, last_error, created_at, updated_at, delivered_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		 ON CONFLICT (event_id, endpoint_id) DO NOTHING`,
		d.ID, d.EventID, d.TransactionID, d.MerchantID, d.EndpointID, d.URL,
		payload, d.EventType, d.AttemptNumber, d.MaxAttempts, string(d.Status), d.NextRetryAt,
		d.LastResponseCode, d.LastError, d.CreatedAt, d.UpdatedAt, d.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

// ClaimDue flips due deliveries to sending and returns them. The UPDATE is
// the in-flight guard: a row can only move pending/failed -> sending once,
// so no two dispatchers send the same attempt.
func (r *DeliveryRepository) ClaimDue(ctx context.Context, limit int) ([]*webhook.Delivery, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db(ctx).Query(ctx,
		`UPDATE webhook_deliveries SET status = 'sending', attempt_number = attempt_number + 1, updated_at = NOW()
		 WHERE id IN (
		   SELECT id FROM webhook_deliveries
		   WHERE status IN ('pending', 'failed') AND next_retry_at <= NOW()
		   ORDER BY next_retry_at ASC
		   LIMIT $1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+deliveryColumns, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*webhook.Delivery
	for rows.Next() {
		d, err := r.scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// Update persists the outcome of an attempt.
func (r *DeliveryRepository) Update(ctx context.Context, d *webhook.Delivery) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE webhook_deliveries SET
		  attempt_number=$1, status=$2, next_retry_at=$3,
		  last_response_code=$4, last_error=$5, updated_at=$6, delivered_at=$7
		 WHERE id=$8`,
		d.AttemptNumber, string(d.Status), d.NextRetryAt,
		d.LastResponseCode, d.LastError, d.UpdatedAt, d.DeliveredAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update webhook delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrDeliveryNotFound
	}
	return nil
}

// GetByID retrieves a delivery.
func (r *DeliveryRepository) GetByID(ctx context.Context, id uuid.UUID) (*webhook.Delivery, error) {
	return r.scanDelivery(r.db(ctx).QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = $1`, id))
}

// ListByTransaction returns deliveries for a transaction, newest first.
func (r *DeliveryRepository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*webhook.Delivery, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+deliveryColumns+` FROM webhook_deliveries
		 WHERE transaction_id = $1 ORDER BY created_at DESC`, transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list webhook deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*webhook.Delivery
	for rows.Next() {
		d, err := r.scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// ReleaseStuck returns sending rows older than the cutoff back to pending.
func (r *DeliveryRepository) ReleaseStuck(ctx context.Context, olderThanSeconds int) (int64, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE webhook_deliveries SET status = 'pending', updated_at = NOW()
		 WHERE status = 'sending' AND updated_at < NOW() - make_interval(secs => $1)`,
		olderThanSeconds,
	)
	if err != nil {
		return 0, fmt.Errorf("release stuck deliveries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *DeliveryRepository) scanDelivery(s scanner) (*webhook.Delivery, error) {
	d := &webhook.Delivery{}
	var payload []byte
	var status string
	err := s.Scan(
		&d.ID, &d.EventID, &d.TransactionID, &d.MerchantID, &d.EndpointID, &d.URL,
		&payload, &d.EventType, &d.AttemptNumber, &d.MaxAttempts, &status, &d.NextRetryAt,
		&d.LastResponseCode, &d.LastError, &d.CreatedAt, &d.UpdatedAt, &d.DeliveredAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("scan webhook delivery: %w", err)
	}
	d.Status = webhook.DeliveryStatus(status)
	if len(payload) > 0 {
		d.Payload = make(map[string]any)
		if err := json.Unmarshal(payload, &d.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal delivery payload: %w", err)
		}
	}
	return d, nil
}
