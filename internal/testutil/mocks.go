// Package testutil provides map-backed mocks and fixtures shared by
// package tests.
package testutil

import (
	"context"
	"sync"
	"time"

	domainErrors "github.com/hamsukypay/engine/internal/domain/errors"
	"github.com/hamsukypay/engine/internal/domain/idempotency"
	"github.com/hamsukypay/engine/internal/domain/merchant"
	"github.com/hamsukypay/engine/internal/domain/outbox"
	"github.com/hamsukypay/engine/internal/domain/transaction"
	"github.com/hamsukypay/engine/internal/domain/webhook"
	"github.com/google/uuid"
)

// --- Transaction Repository Mock ---

// MockTransactionRepository is a mock implementation of
// transaction.Repository. It emulates the version check of the real store:
// Update fails with ErrOptimisticLockFailed when the caller's copy is stale.
type MockTransactionRepository struct {
	mu           sync.Mutex
	transactions map[uuid.UUID]*transaction.Transaction
	byReference  map[string]uuid.UUID
	events       map[uuid.UUID][]*transaction.Event

	CreateFunc    func(ctx context.Context, t *transaction.Transaction) error
	GetByIDFunc   func(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	UpdateFunc    func(ctx context.Context, t *transaction.Transaction) error
	ListStaleFunc func(ctx context.Context, cutoff time.Time, limit int) ([]*transaction.Transaction, error)
	AddEventFunc  func(ctx context.Context, event *transaction.Event) error
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{
		transactions: make(map[uuid.UUID]*transaction.Transaction),
		byReference:  make(map[string]uuid.UUID),
		events:       make(map[uuid.UUID][]*transaction.Event),
	}
}

func copyTransaction(t *transaction.Transaction) *transaction.Transaction {
	cp := *t
	return &cp
}

// Add pre-populates the mock with a transaction.
func (m *MockTransactionRepository) Add(t *transaction.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[t.ID] = copyTransaction(t)
	m.byReference[t.Reference] = t.ID
}

func (m *MockTransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.transactions {
		if existing.MerchantID == t.MerchantID && existing.IdempotencyKey == t.IdempotencyKey {
			return domainErrors.ErrIdempotencyConflict
		}
	}
	m.transactions[t.ID] = copyTransaction(t)
	m.byReference[t.Reference] = t.ID
	return nil
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return nil, domainErrors.ErrTransactionNotFound
	}
	return copyTransaction(t), nil
}

func (m *MockTransactionRepository) GetByReference(ctx context.Context, reference string) (*transaction.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byReference[reference]
	if !ok {
		return nil, domainErrors.ErrTransactionNotFound
	}
	return copyTransaction(m.transactions[id]), nil
}

func (m *MockTransactionRepository) Update(ctx context.Context, t *transaction.Transaction) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.transactions[t.ID]
	if !ok {
		return domainErrors.ErrTransactionNotFound
	}
	if stored.Version != t.Version {
		return domainErrors.ErrOptimisticLockFailed
	}
	t.Version++
	m.transactions[t.ID] = copyTransaction(t)
	return nil
}

func (m *MockTransactionRepository) List(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*transaction.Transaction
	for _, t := range m.transactions {
		if filter.MerchantID != nil && t.MerchantID != *filter.MerchantID {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		result = append(result, copyTransaction(t))
	}
	return result, nil
}

func (m *MockTransactionRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*transaction.Transaction, error) {
	if m.ListStaleFunc != nil {
		return m.ListStaleFunc(ctx, cutoff, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*transaction.Transaction
	for _, t := range m.transactions {
		if !t.IsTerminal() && t.UpdatedAt.Before(cutoff) {
			result = append(result, copyTransaction(t))
		}
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *MockTransactionRepository) AddEvent(ctx context.Context, event *transaction.Event) error {
	if m.AddEventFunc != nil {
		return m.AddEventFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.TransactionID] = append(m.events[event.TransactionID], event)
	return nil
}

func (m *MockTransactionRepository) GetEvents(ctx context.Context, transactionID uuid.UUID) ([]*transaction.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*transaction.Event(nil), m.events[transactionID]...), nil
}

// Stored returns the stored transaction (test helper).
func (m *MockTransactionRepository) Stored(id uuid.UUID) *transaction.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return nil
	}
	return copyTransaction(t)
}

// --- Idempotency Store Mock ---

// MockIdempotencyStore is a mock implementation of idempotency.Store.
type MockIdempotencyStore struct {
	mu           sync.Mutex
	reservations map[string]*idempotency.Reservation

	ReserveFunc func(ctx context.Context, res *idempotency.Reservation) (*idempotency.Reservation, bool, error)
}

func NewMockIdempotencyStore() *MockIdempotencyStore {
	return &MockIdempotencyStore{reservations: make(map[string]*idempotency.Reservation)}
}

func reservationKey(merchantID uuid.UUID, key string) string {
	return merchantID.String() + "|" + key
}

func (m *MockIdempotencyStore) Reserve(ctx context.Context, res *idempotency.Reservation) (*idempotency.Reservation, bool, error) {
	if m.ReserveFunc != nil {
		return m.ReserveFunc(ctx, res)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := reservationKey(res.MerchantID, res.Key)
	if existing, ok := m.reservations[k]; ok {
		return existing, false, nil
	}
	m.reservations[k] = res
	return res, true, nil
}

func (m *MockIdempotencyStore) Get(ctx context.Context, merchantID uuid.UUID, key string) (*idempotency.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reservations[reservationKey(merchantID, key)], nil
}

func (m *MockIdempotencyStore) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-retention)
	var removed int64
	for k, r := range m.reservations {
		if r.CreatedAt.Before(cutoff) {
			delete(m.reservations, k)
			removed++
		}
	}
	return removed, nil
}

// --- Merchant Repository Mock ---

// MockMerchantRepository is a mock implementation of merchant.Repository.
type MockMerchantRepository struct {
	mu        sync.Mutex
	merchants map[uuid.UUID]*merchant.Merchant
	endpoints map[uuid.UUID][]*merchant.Endpoint
}

func NewMockMerchantRepository() *MockMerchantRepository {
	return &MockMerchantRepository{
		merchants: make(map[uuid.UUID]*merchant.Merchant),
		endpoints: make(map[uuid.UUID][]*merchant.Endpoint),
	}
}

func (m *MockMerchantRepository) Create(ctx context.Context, mc *merchant.Merchant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merchants[mc.ID] = mc
	return nil
}

func (m *MockMerchantRepository) GetByID(ctx context.Context, id uuid.UUID) (*merchant.Merchant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.merchants[id]
	if !ok {
		return nil, domainErrors.ErrMerchantNotFound
	}
	return mc, nil
}

func (m *MockMerchantRepository) GetBySecretKey(ctx context.Context, secretKey string) (*merchant.Merchant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mc := range m.merchants {
		if mc.SecretKey == secretKey && mc.Active {
			return mc, nil
		}
	}
	return nil, domainErrors.ErrMerchantNotFound
}

func (m *MockMerchantRepository) AddEndpoint(ctx context.Context, e *merchant.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints[e.MerchantID] = append(m.endpoints[e.MerchantID], e)
	return nil
}

func (m *MockMerchantRepository) ListEndpoints(ctx context.Context, merchantID uuid.UUID) ([]*merchant.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active []*merchant.Endpoint
	for _, e := range m.endpoints[merchantID] {
		if e.Active {
			active = append(active, e)
		}
	}
	return active, nil
}

// --- Delivery Repository Mock ---

// MockDeliveryRepository is a mock implementation of webhook.Repository.
type MockDeliveryRepository struct {
	mu         sync.Mutex
	deliveries map[uuid.UUID]*webhook.Delivery

	InsertFunc   func(ctx context.Context, d *webhook.Delivery) error
	ClaimDueFunc func(ctx context.Context, limit int) ([]*webhook.Delivery, error)
}

func NewMockDeliveryRepository() *MockDeliveryRepository {
	return &MockDeliveryRepository{deliveries: make(map[uuid.UUID]*webhook.Delivery)}
}

func (m *MockDeliveryRepository) Insert(ctx context.Context, d *webhook.Delivery) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, d)
	}
	m.Store(d)
	return nil
}

// Store puts a delivery into the backing map directly, bypassing any
// InsertFunc override. Duplicate (event, endpoint) pairs are dropped
// silently, like the unique constraint would.
func (m *MockDeliveryRepository) Store(d *webhook.Delivery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.deliveries {
		if existing.EventID == d.EventID && existing.EndpointID == d.EndpointID {
			return
		}
	}
	m.deliveries[d.ID] = d
}

func (m *MockDeliveryRepository) ClaimDue(ctx context.Context, limit int) ([]*webhook.Delivery, error) {
	if m.ClaimDueFunc != nil {
		return m.ClaimDueFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var claimed []*webhook.Delivery
	for _, d := range m.deliveries {
		if len(claimed) == limit {
			break
		}
		if (d.Status == webhook.StatusPending || d.Status == webhook.StatusFailed) && !d.NextRetryAt.After(now) {
			d.Status = webhook.StatusSending
			d.AttemptNumber++
			claimed = append(claimed, d)
		}
	}
	return claimed, nil
}

func (m *MockDeliveryRepository) Update(ctx context.Context, d *webhook.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[d.ID] = d
	return nil
}

func (m *MockDeliveryRepository) GetByID(ctx context.Context, id uuid.UUID) (*webhook.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return nil, domainErrors.ErrDeliveryNotFound
	}
	return d, nil
}

func (m *MockDeliveryRepository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*webhook.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*webhook.Delivery
	for _, d := range m.deliveries {
		if d.TransactionID == transactionID {
			result = append(result, d)
		}
	}
	return result, nil
}

func (m *MockDeliveryRepository) ReleaseStuck(ctx context.Context, olderThanSeconds int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)
	var released int64
	for _, d := range m.deliveries {
		if d.Status == webhook.StatusSending && d.UpdatedAt.Before(cutoff) {
			d.Status = webhook.StatusPending
			released++
		}
	}
	return released, nil
}

// All returns every stored delivery (test helper).
func (m *MockDeliveryRepository) All() []*webhook.Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*webhook.Delivery, 0, len(m.deliveries))
	for _, d := range m.deliveries {
		result = append(result, d)
	}
	return result
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is a stateful mock implementation of
// outbox.Repository.
type MockOutboxRepository struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*outbox.Entry

	InsertFunc func(ctx context.Context, entry *outbox.Entry) error
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{entries: make(map[uuid.UUID]*outbox.Entry)}
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = entry
	return nil
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []*outbox.Entry
	for _, e := range m.entries {
		if len(pending) == limit {
			break
		}
		if e.Status == outbox.StatusPending {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		now := time.Now()
		e.Status = outbox.StatusPublished
		e.PublishedAt = &now
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		e.RetryCount++
		if e.RetryCount >= e.MaxRetries {
			e.Status = outbox.StatusFailed
		}
	}
	return nil
}

// Entries returns every stored entry (test helper).
func (m *MockOutboxRepository) Entries() []*outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*outbox.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		result = append(result, e)
	}
	return result
}

// --- Transaction Manager Mock ---

// MockTransactionManager runs the callback without a real database
// transaction. Callbacks run serially under a mutex, so concurrent callers
// observe only fully committed state, like they would against Postgres.
type MockTransactionManager struct {
	mu sync.Mutex

	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx)
}

// --- Lock Mock ---

// MockLock always acquires unless Held is set.
type MockLock struct {
	Held bool
}

func (l *MockLock) Acquire(ctx context.Context) (bool, error) { return !l.Held, nil }
func (l *MockLock) Release(ctx context.Context) error         { return nil }

// --- Publisher Mock ---

// MockPublisher records advance publications.
type MockPublisher struct {
	mu        sync.Mutex
	Published []string

	PublishAdvanceFunc func(ctx context.Context, transactionID string, actor string) error
}

func (m *MockPublisher) PublishAdvance(ctx context.Context, transactionID string, actor string) error {
	if m.PublishAdvanceFunc != nil {
		return m.PublishAdvanceFunc(ctx, transactionID, actor)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, transactionID)
	return nil
}

// --- Scheduler Mock ---

// MockScheduler records scheduled retries and hands them back via PopDue.
type MockScheduler struct {
	mu        sync.Mutex
	Scheduled map[string]time.Time
}

func NewMockScheduler() *MockScheduler {
	return &MockScheduler{Scheduled: make(map[string]time.Time)}
}

func (m *MockScheduler) Schedule(ctx context.Context, transactionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scheduled[transactionID] = at
	return nil
}

func (m *MockScheduler) PopDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []string
	for id, at := range m.Scheduled {
		if len(due) == limit {
			break
		}
		if !at.After(now) {
			due = append(due, id)
			delete(m.Scheduled, id)
		}
	}
	return due, nil
}
