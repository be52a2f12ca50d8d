package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	domainErrors "github.com/hamsukypay/engine/internal/domain/errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

// sentinelStatuses maps domain sentinels to HTTP status and API error code.
// Order matters only in that the first errors.Is match wins.
var sentinelStatuses = []struct {
	err    error
	status int
	code   string
}{
	{domainErrors.ErrTransactionNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrMerchantNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrEndpointNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrDeliveryNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrIdempotencyConflict, http.StatusConflict, "idempotency_conflict"},
	{domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{domainErrors.ErrOptimisticLockFailed, http.StatusConflict, "conflict"},
	{domainErrors.ErrLockAcquisitionFailed, http.StatusConflict, "busy"},
	{domainErrors.ErrAcquirerNotFound, http.StatusUnprocessableEntity, "unknown_acquirer"},
	{domainErrors.ErrAcquirerUnavailable, http.StatusBadGateway, "acquirer_unavailable"},
	{domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domainErrors.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError translates domain errors to API responses. Anything not
// recognized is answered with an opaque 500 so storage or acquirer
// internals never reach the client.
func writeError(w http.ResponseWriter, err error) {
	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: "validation_error", Error: err.Error()})
		return
	}

	for _, m := range sentinelStatuses {
		if !errors.Is(err, m.err) {
			continue
		}
		msg := err.Error()
		if m.err == domainErrors.ErrOptimisticLockFailed {
			msg = "concurrent modification, please retry"
		}
		writeJSON(w, m.status, ErrorResponse{Code: m.code, Error: msg})
		return
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Code: domainErr.Code, Error: err.Error()})
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Code: "internal_error", Error: "internal server error"})
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return domainErrors.NewValidationError(fieldErrs[0].Field(), fieldErrs[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}
