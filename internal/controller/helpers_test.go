package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	domainErrors "github.com/hamsukypay/engine/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeErrorResponse(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestWriteError_StatusMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{domainErrors.ErrTransactionNotFound, http.StatusNotFound, "not_found"},
		{domainErrors.ErrMerchantNotFound, http.StatusNotFound, "not_found"},
		{domainErrors.ErrIdempotencyConflict, http.StatusConflict, "idempotency_conflict"},
		{domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
		{domainErrors.ErrOptimisticLockFailed, http.StatusConflict, "conflict"},
		{domainErrors.ErrLockAcquisitionFailed, http.StatusConflict, "busy"},
		{domainErrors.ErrAcquirerNotFound, http.StatusUnprocessableEntity, "unknown_acquirer"},
		{domainErrors.ErrAcquirerUnavailable, http.StatusBadGateway, "acquirer_unavailable"},
		{domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{domainErrors.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, tc.err)
		assert.Equal(t, tc.wantStatus, rec.Code, "%v", tc.err)
		assert.Equal(t, tc.wantCode, decodeErrorResponse(t, rec).Code, "%v", tc.err)
	}
}

func TestWriteError_WrappedSentinel(t *testing.T) {
	wrapped := domainErrors.NewDomainError("idempotency_conflict", "key reused", domainErrors.ErrIdempotencyConflict)
	rec := httptest.NewRecorder()
	writeError(rec, wrapped)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestWriteError_ValidationError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, domainErrors.NewValidationError("amount", "must be greater than 0"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeErrorResponse(t, rec).Code)
}

func TestWriteError_DomainErrorFallback(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, domainErrors.NewDomainError("reversal_rejected", "acquirer said no", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "reversal_rejected", decodeErrorResponse(t, rec).Code)
}

func TestWriteError_UnknownErrorIsOpaque(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, errors.New("pq: column does not exist"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeErrorResponse(t, rec)
	assert.Equal(t, "internal_error", resp.Code)
	assert.NotContains(t, resp.Error, "pq:", "internal details must not leak")
}

func TestWriteJSON_ContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusTeapot, map[string]string{"hello": "world"})
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
