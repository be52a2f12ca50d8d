package controller

import (
	"net/http"

	domainErrors "github.com/hamsukypay/engine/internal/domain/errors"
	"github.com/hamsukypay/engine/internal/domain/merchant"
	"github.com/hamsukypay/engine/internal/domain/webhook"
	"github.com/hamsukypay/engine/internal/middleware"
	"github.com/google/uuid"
)

// WebhookController handles webhook endpoint registration and delivery
// inspection.
type WebhookController struct {
	merchantRepo merchant.Repository
	deliveryRepo webhook.Repository
}

func NewWebhookController(merchantRepo merchant.Repository, deliveryRepo webhook.Repository) *WebhookController {
	return &WebhookController{merchantRepo: merchantRepo, deliveryRepo: deliveryRepo}
}

// RegisterEndpoint handles POST /api/v1/webhooks/endpoints
func (h *WebhookController) RegisterEndpoint(w http.ResponseWriter, r *http.Request) {
	m, ok := middleware.MerchantFromContext(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	var req RegisterEndpointRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ep, err := merchant.NewEndpoint(m.ID, req.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.merchantRepo.AddEndpoint(r.Context(), ep); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, FromEndpoint(ep))
}

// ListEndpoints handles GET /api/v1/webhooks/endpoints
func (h *WebhookController) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	m, ok := middleware.MerchantFromContext(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	endpoints, err := h.merchantRepo.ListEndpoints(r.Context(), m.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]*EndpointResponse, 0, len(endpoints))
	for _, ep := range endpoints {
		out = append(out, FromEndpoint(ep))
	}
	writeJSON(w, http.StatusOK, map[string]any{"endpoints": out, "count": len(out)})
}

// ListDeliveries handles GET /api/v1/webhooks/deliveries?transaction_id=...
func (h *WebhookController) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	m, ok := middleware.MerchantFromContext(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	transactionID, err := uuid.Parse(r.URL.Query().Get("transaction_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid or missing transaction_id", Code: "invalid_id"})
		return
	}

	deliveries, err := h.deliveryRepo.ListByTransaction(r.Context(), transactionID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]*DeliveryResponse, 0, len(deliveries))
	for _, d := range deliveries {
		if d.MerchantID != m.ID {
			continue
		}
		out = append(out, FromDelivery(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"deliveries": out, "count": len(out)})
}
