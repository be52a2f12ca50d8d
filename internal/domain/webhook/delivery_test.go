package webhook_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/hamsukypay/engine/internal/domain/webhook"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDelivery(maxAttempts int) *webhook.Delivery {
	return webhook.NewDelivery(
		uuid.New(), uuid.New(), uuid.New(), uuid.New(),
		"https://merchant.example.com/hooks", "transaction.succeeded",
		map[string]any{"new_status": "succeeded"},
		maxAttempts,
	)
}

func TestNewDelivery_DueImmediately(t *testing.T) {
	d := newDelivery(8)
	assert.Equal(t, webhook.StatusPending, d.Status)
	assert.Equal(t, 0, d.AttemptNumber)
	assert.Equal(t, 8, d.MaxAttempts)
	assert.False(t, d.NextRetryAt.After(time.Now()))
	assert.False(t, d.IsTerminal())
}

func TestNewDelivery_DefaultMaxAttempts(t *testing.T) {
	d := newDelivery(0)
	assert.Equal(t, 8, d.MaxAttempts)
}

func TestNewDelivery_PayloadCarriesEventID(t *testing.T) {
	eventID := uuid.New()
	shared := map[string]any{"new_status": "succeeded"}

	d := webhook.NewDelivery(
		eventID, uuid.New(), uuid.New(), uuid.New(),
		"https://merchant.example.com/hooks", "transaction.succeeded",
		shared, 8,
	)

	assert.Equal(t, eventID.String(), d.Payload["event_id"])
	assert.Equal(t, "succeeded", d.Payload["new_status"])
	assert.NotContains(t, shared, "event_id", "caller's map must stay untouched")
}

func TestMarkDelivered(t *testing.T) {
	d := newDelivery(8)
	d.AttemptNumber = 1
	d.MarkDelivered(http.StatusOK)
	assert.Equal(t, webhook.StatusDelivered, d.Status)
	require.NotNil(t, d.LastResponseCode)
	assert.Equal(t, http.StatusOK, *d.LastResponseCode)
	assert.NotNil(t, d.DeliveredAt)
	assert.True(t, d.IsTerminal())
}

func TestMarkRejected(t *testing.T) {
	d := newDelivery(8)
	d.AttemptNumber = 1
	d.MarkRejected(http.StatusGone)
	assert.Equal(t, webhook.StatusAbandoned, d.Status)
	assert.True(t, d.IsTerminal())
}

func TestMarkFailed_SchedulesRetry(t *testing.T) {
	d := newDelivery(8)
	d.AttemptNumber = 1
	code := http.StatusBadGateway
	before := time.Now()

	d.MarkFailed(&code, "bad gateway", 30*time.Second, time.Hour)

	assert.Equal(t, webhook.StatusFailed, d.Status)
	require.NotNil(t, d.LastError)
	assert.Equal(t, "bad gateway", *d.LastError)
	assert.True(t, d.NextRetryAt.After(before), "next attempt must be in the future")
	assert.False(t, d.IsTerminal())
}

func TestMarkFailed_AbandonsAtCap(t *testing.T) {
	d := newDelivery(3)
	d.AttemptNumber = 3
	d.MarkFailed(nil, "connection refused", 30*time.Second, time.Hour)
	assert.Equal(t, webhook.StatusAbandoned, d.Status)
	assert.True(t, d.IsTerminal())
}

func TestClassifyResponse(t *testing.T) {
	cases := []struct {
		code int
		want webhook.DeliveryStatus
	}{
		{200, webhook.StatusDelivered},
		{201, webhook.StatusDelivered},
		{204, webhook.StatusDelivered},
		{301, webhook.StatusFailed},
		{400, webhook.StatusAbandoned},
		{401, webhook.StatusAbandoned},
		{404, webhook.StatusAbandoned},
		{410, webhook.StatusAbandoned},
		{429, webhook.StatusFailed},
		{500, webhook.StatusFailed},
		{502, webhook.StatusFailed},
		{503, webhook.StatusFailed},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, webhook.ClassifyResponse(tc.code), "status %d", tc.code)
	}
}

func TestBackoff_Bounds(t *testing.T) {
	base := 30 * time.Second
	max := time.Hour

	for attempt := 1; attempt <= 12; attempt++ {
		for i := 0; i < 20; i++ {
			delay := webhook.Backoff(attempt, base, max)
			assert.GreaterOrEqual(t, delay, base/2, "attempt %d", attempt)
			assert.LessOrEqual(t, delay, max, "attempt %d", attempt)
		}
	}
}

func TestBackoff_GrowsWithAttempts(t *testing.T) {
	base := 30 * time.Second
	max := time.Hour

	// the jittered delay is at least half the raw exponential delay, so the
	// floor for attempt 4 (120s) is above the ceiling for attempt 1 (30s)
	low := webhook.Backoff(1, base, max)
	high := webhook.Backoff(4, base, max)
	assert.Greater(t, high, low)
}
