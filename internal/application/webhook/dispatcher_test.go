package webhook_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appWebhook "github.com/hamsukypay/engine/internal/application/webhook"
	"github.com/hamsukypay/engine/internal/domain/merchant"
	"github.com/hamsukypay/engine/internal/domain/webhook"
	"github.com/hamsukypay/engine/internal/infrastructure/observability"
	"github.com/hamsukypay/engine/internal/testutil"
	"github.com/hamsukypay/engine/pkg/signature"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatcherFixture struct {
	deliveryRepo *testutil.MockDeliveryRepository
	merchantRepo *testutil.MockMerchantRepository
	merchant     *merchant.Merchant
	uc           *appWebhook.DispatcherUseCase
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	f := &dispatcherFixture{
		deliveryRepo: testutil.NewMockDeliveryRepository(),
		merchantRepo: testutil.NewMockMerchantRepository(),
		merchant:     testutil.NewTestMerchant(),
	}
	require.NoError(t, f.merchantRepo.Create(context.Background(), f.merchant))
	f.uc = appWebhook.NewDispatcherUseCase(
		f.deliveryRepo,
		f.merchantRepo,
		&http.Client{},
		observability.NewMetrics("test", prometheus.NewRegistry()),
		zerolog.Nop(),
		20,
		2*time.Second,
		30*time.Second,
		time.Hour,
	)
	return f
}

func (f *dispatcherFixture) addDelivery(t *testing.T, url string) *webhook.Delivery {
	t.Helper()
	d := testutil.NewTestDelivery(f.merchant.ID, uuid.New(), url)
	require.NoError(t, f.deliveryRepo.Insert(context.Background(), d))
	return d
}

func TestDispatcher_DeliversSignedPayload(t *testing.T) {
	f := newDispatcherFixture(t)

	var gotBody []byte
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := f.addDelivery(t, srv.URL)

	attempted, err := f.uc.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, attempted)

	stored, err := f.deliveryRepo.GetByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, webhook.StatusDelivered, stored.Status)
	assert.NotNil(t, stored.DeliveredAt)

	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, d.EventType, gotHeaders.Get(signature.HeaderEvent))
	assert.True(t, signature.Verify(f.merchant.SecretKey, gotBody, gotHeaders.Get(signature.HeaderSignature)),
		"signature must verify against the exact bytes sent")

	var payload map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, "succeeded", payload["new_status"])
	assert.Equal(t, d.EventID.String(), payload["event_id"],
		"merchants dedupe redeliveries by event id")
}

func TestDispatcher_ServerErrorSchedulesRetry(t *testing.T) {
	f := newDispatcherFixture(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := f.addDelivery(t, srv.URL)

	_, err := f.uc.Execute(context.Background())
	require.NoError(t, err)

	stored, err := f.deliveryRepo.GetByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, webhook.StatusFailed, stored.Status)
	assert.Equal(t, 1, stored.AttemptNumber)
	require.NotNil(t, stored.LastResponseCode)
	assert.Equal(t, http.StatusInternalServerError, *stored.LastResponseCode)
	assert.True(t, stored.NextRetryAt.After(time.Now()))
}

func TestDispatcher_ClientErrorAbandons(t *testing.T) {
	f := newDispatcherFixture(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := f.addDelivery(t, srv.URL)

	_, err := f.uc.Execute(context.Background())
	require.NoError(t, err)

	stored, err := f.deliveryRepo.GetByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, webhook.StatusAbandoned, stored.Status, "a 4xx is a permanent rejection")
}

func TestDispatcher_TooManyRequestsRetries(t *testing.T) {
	f := newDispatcherFixture(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := f.addDelivery(t, srv.URL)

	_, err := f.uc.Execute(context.Background())
	require.NoError(t, err)

	stored, err := f.deliveryRepo.GetByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, webhook.StatusFailed, stored.Status, "429 is retried, not abandoned")
}

func TestDispatcher_ConnectionRefusedRetries(t *testing.T) {
	f := newDispatcherFixture(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening

	d := f.addDelivery(t, srv.URL)

	_, err := f.uc.Execute(context.Background())
	require.NoError(t, err)

	stored, err := f.deliveryRepo.GetByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, webhook.StatusFailed, stored.Status)
	require.NotNil(t, stored.LastError)
}

func TestDispatcher_AbandonsAtAttemptCap(t *testing.T) {
	f := newDispatcherFixture(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := f.addDelivery(t, srv.URL)
	d.MaxAttempts = 1

	_, err := f.uc.Execute(context.Background())
	require.NoError(t, err)

	stored, err := f.deliveryRepo.GetByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, webhook.StatusAbandoned, stored.Status)
}

func TestDispatcher_NothingDue(t *testing.T) {
	f := newDispatcherFixture(t)
	attempted, err := f.uc.Execute(context.Background())
	require.NoError(t, err)
	assert.Zero(t, attempted)
}

func TestDispatcher_ClaimedOnceWhileInFlight(t *testing.T) {
	f := newDispatcherFixture(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f.addDelivery(t, srv.URL)

	first, err := f.deliveryRepo.ClaimDue(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// the claim flipped the row to sending; a second claimer gets nothing
	second, err := f.deliveryRepo.ClaimDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, second)
}
