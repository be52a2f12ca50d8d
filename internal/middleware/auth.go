package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hamsukypay/engine/internal/domain/merchant"
)

type contextKey string

const merchantKey contextKey = "merchant"

// MerchantAuthenticator resolves a secret key to an active merchant.
type MerchantAuthenticator interface {
	GetBySecretKey(ctx context.Context, secretKey string) (*merchant.Merchant, error)
}

// RequireMerchant authenticates requests with a merchant secret key passed
// as a bearer token (`Authorization: Bearer sk_live_...`) and stores the
// merchant in the request context.
func RequireMerchant(auth MerchantAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "missing authorization header", "auth_required")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeAuthError(w, "invalid authorization scheme", "auth_invalid_scheme")
				return
			}

			secretKey := strings.TrimPrefix(authHeader, "Bearer ")
			if !strings.HasPrefix(secretKey, merchant.SecretKeyPrefix) {
				writeAuthError(w, "invalid secret key", "auth_invalid")
				return
			}

			m, err := auth.GetBySecretKey(r.Context(), secretKey)
			if err != nil {
				writeAuthError(w, "invalid secret key", "auth_invalid")
				return
			}

			ctx := context.WithValue(r.Context(), merchantKey, m)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MerchantFromContext returns the authenticated merchant, if any.
func MerchantFromContext(ctx context.Context) (*merchant.Merchant, bool) {
	m, ok := ctx.Value(merchantKey).(*merchant.Merchant)
	return m, ok
}

// ContextWithMerchant stores a merchant the way RequireMerchant does.
func ContextWithMerchant(ctx context.Context, m *merchant.Merchant) context.Context {
	return context.WithValue(ctx, merchantKey, m)
}

func writeAuthError(w http.ResponseWriter, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
		"code":  code,
	})
}
