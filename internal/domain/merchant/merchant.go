package merchant

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/hamsukypay/engine/internal/domain/errors"
	"github.com/google/uuid"
)

// API key prefixes. Secret keys authenticate server-to-server calls and
// sign webhook payloads; public keys identify the merchant client-side.
const (
	PublicKeyPrefix = "pk_live_"
	SecretKeyPrefix = "sk_live_"
)

// Merchant is the owner of transactions and webhook endpoints. Account
// management lives elsewhere; the engine only needs identity, API keys and
// the webhook signing secret.
type Merchant struct {
	ID        uuid.UUID
	Name      string
	Email     string
	PublicKey string
	SecretKey string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Endpoint is a merchant-registered webhook destination.
type Endpoint struct {
	ID         uuid.UUID
	MerchantID uuid.UUID
	URL        string
	Active     bool
	CreatedAt  time.Time
}

// New creates a merchant with freshly generated API keys.
func New(name, email string) (*Merchant, error) {
	if name == "" {
		return nil, errors.NewValidationError("name", "cannot be empty")
	}
	now := time.Now()
	return &Merchant{
		ID:        uuid.New(),
		Name:      name,
		Email:     email,
		PublicKey: GenerateKey(PublicKeyPrefix),
		SecretKey: GenerateKey(SecretKeyPrefix),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NewEndpoint registers a webhook destination for a merchant.
func NewEndpoint(merchantID uuid.UUID, url string) (*Endpoint, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, errors.NewValidationError("url", "must be an http(s) URL")
	}
	return &Endpoint{
		ID:         uuid.New(),
		MerchantID: merchantID,
		URL:        url,
		Active:     true,
		CreatedAt:  time.Now(),
	}, nil
}

// GenerateKey returns a prefixed random API key.
func GenerateKey(prefix string) string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return prefix + hex.EncodeToString(buf)
}
