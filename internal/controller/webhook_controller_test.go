package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hamsukypay/engine/internal/domain/merchant"
	"github.com/hamsukypay/engine/internal/middleware"
	"github.com/hamsukypay/engine/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webhookAPIFixture struct {
	merchantRepo *testutil.MockMerchantRepository
	deliveryRepo *testutil.MockDeliveryRepository
	merchant     *merchant.Merchant
	router       chi.Router
}

func newWebhookAPIFixture(t *testing.T) *webhookAPIFixture {
	t.Helper()
	f := &webhookAPIFixture{
		merchantRepo: testutil.NewMockMerchantRepository(),
		deliveryRepo: testutil.NewMockDeliveryRepository(),
		merchant:     testutil.NewTestMerchant(),
	}
	require.NoError(t, f.merchantRepo.Create(context.Background(), f.merchant))

	wc := NewWebhookController(f.merchantRepo, f.deliveryRepo)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.ContextWithMerchant(req.Context(), f.merchant)))
		})
	})
	r.Post("/api/v1/webhooks/endpoints", wc.RegisterEndpoint)
	r.Get("/api/v1/webhooks/endpoints", wc.ListEndpoints)
	r.Get("/api/v1/webhooks/deliveries", wc.ListDeliveries)

	f.router = r
	return f
}

func TestRegisterEndpoint(t *testing.T) {
	f := newWebhookAPIFixture(t)

	body, _ := json.Marshal(RegisterEndpointRequest{URL: "https://merchant.example.com/hooks"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/endpoints", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp EndpointResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://merchant.example.com/hooks", resp.URL)
	assert.True(t, resp.Active)

	endpoints, err := f.merchantRepo.ListEndpoints(context.Background(), f.merchant.ID)
	require.NoError(t, err)
	assert.Len(t, endpoints, 1)
}

func TestRegisterEndpoint_InvalidURL(t *testing.T) {
	f := newWebhookAPIFixture(t)

	for _, url := range []string{"", "not-a-url", "ftp://example.com/hooks"} {
		body, _ := json.Marshal(RegisterEndpointRequest{URL: url})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/endpoints", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "url %q", url)
	}
}

func TestListEndpoints(t *testing.T) {
	f := newWebhookAPIFixture(t)
	require.NoError(t, f.merchantRepo.AddEndpoint(context.Background(), testutil.NewTestEndpoint(f.merchant.ID, "https://a.example.com/hooks")))
	require.NoError(t, f.merchantRepo.AddEndpoint(context.Background(), testutil.NewTestEndpoint(f.merchant.ID, "https://b.example.com/hooks")))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/endpoints", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Endpoints []*EndpointResponse `json:"endpoints"`
		Count     int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestListDeliveries_FiltersByMerchant(t *testing.T) {
	f := newWebhookAPIFixture(t)
	transactionID := uuid.New()

	mine := testutil.NewTestDelivery(f.merchant.ID, uuid.New(), "https://a.example.com/hooks")
	mine.TransactionID = transactionID
	require.NoError(t, f.deliveryRepo.Insert(context.Background(), mine))

	foreign := testutil.NewTestDelivery(uuid.New(), uuid.New(), "https://b.example.com/hooks")
	foreign.TransactionID = transactionID
	require.NoError(t, f.deliveryRepo.Insert(context.Background(), foreign))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/deliveries?transaction_id="+transactionID.String(), nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Deliveries []*DeliveryResponse `json:"deliveries"`
		Count      int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, mine.ID.String(), resp.Deliveries[0].ID)
}

func TestListDeliveries_MissingTransactionID(t *testing.T) {
	f := newWebhookAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/deliveries", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
