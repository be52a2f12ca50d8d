package merchant

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for merchant and endpoint persistence.
type Repository interface {
	Create(ctx context.Context, m *Merchant) error

	GetByID(ctx context.Context, id uuid.UUID) (*Merchant, error)

	// GetBySecretKey resolves the merchant authenticating an API call.
	GetBySecretKey(ctx context.Context, secretKey string) (*Merchant, error)

	AddEndpoint(ctx context.Context, e *Endpoint) error

	// ListEndpoints returns the active webhook endpoints for a merchant.
	ListEndpoints(ctx context.Context, merchantID uuid.UUID) ([]*Endpoint, error)
}
