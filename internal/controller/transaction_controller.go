package controller

import (
	"net/http"
	"strconv"

	appTransaction "github.com/hamsukypay/engine/internal/application/transaction"
	domainErrors "github.com/hamsukypay/engine/internal/domain/errors"
	"github.com/hamsukypay/engine/internal/domain/transaction"
	"github.com/hamsukypay/engine/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// TransactionController handles transaction-related HTTP requests.
type TransactionController struct {
	initiate *appTransaction.InitiateUseCase
	verify   *appTransaction.VerifyUseCase
	get      *appTransaction.GetTransactionUseCase
	reverse  *appTransaction.ReverseUseCase
}

func NewTransactionController(
	initiate *appTransaction.InitiateUseCase,
	verify *appTransaction.VerifyUseCase,
	get *appTransaction.GetTransactionUseCase,
	reverse *appTransaction.ReverseUseCase,
) *TransactionController {
	return &TransactionController{
		initiate: initiate,
		verify:   verify,
		get:      get,
		reverse:  reverse,
	}
}

// Initialize handles POST /api/v1/transactions/initialize
func (h *TransactionController) Initialize(w http.ResponseWriter, r *http.Request) {
	m, ok := middleware.MerchantFromContext(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	var req InitializeTransactionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		idempotencyKey = req.IdempotencyKey
	}
	if idempotencyKey == "" {
		writeError(w, domainErrors.NewValidationError("idempotency_key", "required via Idempotency-Key header or body field"))
		return
	}

	resp, err := h.initiate.Execute(r.Context(), appTransaction.InitiateRequest{
		MerchantID:     m.ID,
		IdempotencyKey: idempotencyKey,
		AmountMinor:    req.Amount,
		Currency:       req.Currency,
		InstrumentKind: req.PaymentInstrument.Kind,
		InstrumentTok:  req.PaymentInstrument.Token,
		AcquirerName:   req.Acquirer,
		Metadata:       req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusAccepted
	}
	writeJSON(w, status, FromTransaction(resp.Transaction))
}

// Verify handles GET /api/v1/transactions/verify/{reference}
func (h *TransactionController) Verify(w http.ResponseWriter, r *http.Request) {
	m, ok := middleware.MerchantFromContext(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	reference := chi.URLParam(r, "reference")
	t, events, err := h.verify.Execute(r.Context(), reference)
	if err != nil {
		writeError(w, err)
		return
	}
	if t.MerchantID != m.ID {
		writeError(w, domainErrors.ErrTransactionNotFound)
		return
	}

	writeJSON(w, http.StatusOK, VerifyResponse{
		Transaction: FromTransaction(t),
		Events:      FromEvents(events),
	})
}

// Get handles GET /api/v1/transactions/{id}
func (h *TransactionController) Get(w http.ResponseWriter, r *http.Request) {
	m, ok := middleware.MerchantFromContext(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid transaction id", Code: "invalid_id"})
		return
	}

	t, err := h.get.ByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if t.MerchantID != m.ID {
		writeError(w, domainErrors.ErrTransactionNotFound)
		return
	}

	writeJSON(w, http.StatusOK, FromTransaction(t))
}

// List handles GET /api/v1/transactions
func (h *TransactionController) List(w http.ResponseWriter, r *http.Request) {
	m, ok := middleware.MerchantFromContext(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	filter := transaction.ListFilter{MerchantID: &m.ID}
	if s := r.URL.Query().Get("status"); s != "" {
		status := transaction.Status(s)
		filter.Status = &status
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		filter.Offset = offset
	}

	transactions, err := h.get.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]*TransactionResponse, 0, len(transactions))
	for _, t := range transactions {
		out = append(out, FromTransaction(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out, "count": len(out)})
}

// Reverse handles POST /api/v1/transactions/{id}/reverse
func (h *TransactionController) Reverse(w http.ResponseWriter, r *http.Request) {
	m, ok := middleware.MerchantFromContext(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid transaction id", Code: "invalid_id"})
		return
	}

	var req ReverseTransactionRequest
	if r.ContentLength > 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	// Ownership check before any acquirer call.
	t, err := h.get.ByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if t.MerchantID != m.ID {
		writeError(w, domainErrors.ErrTransactionNotFound)
		return
	}

	reversed, err := h.reverse.Execute(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromTransaction(reversed))
}
