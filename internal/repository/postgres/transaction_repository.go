package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/hamsukypay/engine/internal/domain/errors"
	"github.com/hamsukypay/engine/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// allowedSortColumns is a whitelist of columns valid for ORDER BY.
var allowedSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"amount":     "amount",
	"status":     "status",
}

const transactionColumns = `id, reference, merchant_id, idempotency_key,
		amount, currency, instrument_kind, instrument_token, status,
		acquirer_name, acquirer_reference, attempt_count, max_attempts,
		failure_reason, version, metadata, created_at, updated_at, terminal_at`

// TransactionRepository implements transaction.Repository using PostgreSQL.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func (r *TransactionRepository) db(ctx context.Context) Querier {
	return conn(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Create inserts a new transaction.
func (r *TransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	amountStr := minorToNumericString(t.Amount.ValueMinor)

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO transactions
		 (id, reference, merchant_id, idempotency_key,
		  amount, currency, instrument_kind, instrument_token, status,
		  acquirer_name, acquirer_reference, attempt_count, max_attempts,
		  failure_reason, version, metadata, created_at, updated_at, terminal_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		t.ID, t.Reference, t.MerchantID, t.IdempotencyKey,
		amountStr, t.Amount.Currency, string(t.Instrument.Kind), t.Instrument.Token, string(t.Status),
		t.AcquirerName, t.AcquirerReference, t.AttemptCount, t.MaxAttempts,
		t.FailureReason, t.Version, metadata, t.CreatedAt, t.UpdatedAt, t.TerminalAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domainErrors.ErrIdempotencyConflict
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a transaction by its ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return r.scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

// GetByReference retrieves a transaction by its merchant-facing reference.
func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*transaction.Transaction, error) {
	return r.scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference))
}

// Update conditionally updates a transaction. The write applies only when
// the stored version matches the in-memory one; everything the state
// machine does rides on this check.
func (r *TransactionRepository) Update(ctx context.Context, t *transaction.Transaction) error {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE transactions SET
		  status=$1, acquirer_name=$2, acquirer_reference=$3,
		  attempt_count=$4, failure_reason=$5, metadata=$6,
		  updated_at=$7, terminal_at=$8, version=version+1
		 WHERE id=$9 AND version=$10`,
		string(t.Status), t.AcquirerName, t.AcquirerReference,
		t.AttemptCount, t.FailureReason, metadata,
		t.UpdatedAt, t.TerminalAt, t.ID, t.Version,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Row missing or a concurrent writer bumped the version first.
		var exists bool
		if err := r.db(ctx).QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM transactions WHERE id = $1)`, t.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check transaction exists: %w", err)
		}
		if !exists {
			return domainErrors.ErrTransactionNotFound
		}
		return domainErrors.ErrOptimisticLockFailed
	}
	t.Version++
	return nil
}

// List lists transactions with optional filters.
func (r *TransactionRepository) List(ctx context.Context, f transaction.ListFilter) ([]*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.MerchantID != nil {
		query += fmt.Sprintf(" AND merchant_id = $%d", argIdx)
		args = append(args, *f.MerchantID)
		argIdx++
	}
	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*f.Status))
		argIdx++
	}

	// Strict whitelist for sort column
	sortBy := "created_at"
	if col, ok := allowedSortColumns[f.SortBy]; ok {
		sortBy = col
	}
	sortOrder := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		sortOrder = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, sortOrder)

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	return r.queryTransactions(ctx, query, args...)
}

// ListStale returns non-terminal transactions untouched since the cutoff.
func (r *TransactionRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*transaction.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE status NOT IN ('succeeded', 'failed', 'reversed') AND updated_at < $1
		 ORDER BY updated_at ASC
		 LIMIT $2`, cutoff, limit)
}

func (r *TransactionRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*transaction.Transaction, error) {
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*transaction.Transaction
	for rows.Next() {
		t, err := r.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

// AddEvent appends a transition to the event log.
func (r *TransactionRepository) AddEvent(ctx context.Context, event *transaction.Event) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO transaction_events (id, transaction_id, previous_status, new_status, actor, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.TransactionID, string(event.PreviousStatus), string(event.NewStatus),
		string(event.Actor), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction event: %w", err)
	}
	return nil
}

// GetEvents retrieves the ordered event log for a transaction.
func (r *TransactionRepository) GetEvents(ctx context.Context, transactionID uuid.UUID) ([]*transaction.Event, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, transaction_id, previous_status, new_status, actor, created_at
		 FROM transaction_events WHERE transaction_id = $1 ORDER BY created_at ASC, id ASC`, transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list transaction events: %w", err)
	}
	defer rows.Close()

	var events []*transaction.Event
	for rows.Next() {
		e := &transaction.Event{}
		var prev, next, actor string
		if err := rows.Scan(&e.ID, &e.TransactionID, &prev, &next, &actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.PreviousStatus = transaction.Status(prev)
		e.NewStatus = transaction.Status(next)
		e.Actor = transaction.Actor(actor)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- scanning helpers ---

func (r *TransactionRepository) scanTransaction(s scanner) (*transaction.Transaction, error) {
	t := &transaction.Transaction{Metadata: make(map[string]any)}
	var (
		amountStr      string
		instrumentKind string
		status         string
		metadata       []byte
	)
	err := s.Scan(
		&t.ID, &t.Reference, &t.MerchantID, &t.IdempotencyKey,
		&amountStr, &t.Amount.Currency, &instrumentKind, &t.Instrument.Token, &status,
		&t.AcquirerName, &t.AcquirerReference, &t.AttemptCount, &t.MaxAttempts,
		&t.FailureReason, &t.Version, &metadata, &t.CreatedAt, &t.UpdatedAt, &t.TerminalAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	minor, err := numericStringToMinor(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	t.Amount.ValueMinor = minor

	t.Instrument.Kind = transaction.InstrumentKind(instrumentKind)
	t.Status = transaction.Status(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal transaction metadata: %w", err)
		}
	}
	return t, nil
}
