package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hamsukypay/engine/internal/domain/merchant"
	"github.com/hamsukypay/engine/internal/domain/webhook"
	"github.com/hamsukypay/engine/internal/infrastructure/observability"
	"github.com/hamsukypay/engine/pkg/signature"
	"github.com/rs/zerolog"
)

// DispatcherUseCase claims due deliveries and posts them to merchant
// endpoints. The claim flips rows to sending before any network call, so at
// most one attempt per delivery is ever in flight, and delivery failures
// never touch transaction state.
type DispatcherUseCase struct {
	deliveryRepo webhook.Repository
	merchantRepo merchant.Repository
	client       *http.Client
	metrics      *observability.Metrics
	logger       zerolog.Logger

	claimBatch  int
	sendTimeout time.Duration
	baseDelay   time.Duration
	maxDelay    time.Duration
}

func NewDispatcherUseCase(
	deliveryRepo webhook.Repository,
	merchantRepo merchant.Repository,
	client *http.Client,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	claimBatch int,
	sendTimeout, baseDelay, maxDelay time.Duration,
) *DispatcherUseCase {
	if claimBatch <= 0 {
		claimBatch = 20
	}
	if client == nil {
		client = &http.Client{}
	}
	return &DispatcherUseCase{
		deliveryRepo: deliveryRepo,
		merchantRepo: merchantRepo,
		client:       client,
		metrics:      metrics,
		logger:       logger,
		claimBatch:   claimBatch,
		sendTimeout:  sendTimeout,
		baseDelay:    baseDelay,
		maxDelay:     maxDelay,
	}
}

// Execute claims one batch of due deliveries, attempts each, and returns how
// many attempts were made.
func (uc *DispatcherUseCase) Execute(ctx context.Context) (int, error) {
	deliveries, err := uc.deliveryRepo.ClaimDue(ctx, uc.claimBatch)
	if err != nil {
		return 0, fmt.Errorf("claim due deliveries: %w", err)
	}

	for _, d := range deliveries {
		uc.attempt(ctx, d)
		if err := uc.deliveryRepo.Update(ctx, d); err != nil {
			uc.logger.Error().Err(err).
				Str("delivery_id", d.ID.String()).
				Msg("failed to persist delivery outcome")
		}
	}
	return len(deliveries), nil
}

// attempt performs one signed POST and applies the outcome to the delivery.
func (uc *DispatcherUseCase) attempt(ctx context.Context, d *webhook.Delivery) {
	m, err := uc.merchantRepo.GetByID(ctx, d.MerchantID)
	if err != nil {
		uc.fail(d, nil, "load merchant: "+err.Error())
		return
	}

	body, err := json.Marshal(d.Payload)
	if err != nil {
		uc.fail(d, nil, "marshal payload: "+err.Error())
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, uc.sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		uc.fail(d, nil, "build request: "+err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.HeaderSignature, signature.Sign(m.SecretKey, body))
	req.Header.Set(signature.HeaderEvent, d.EventType)

	resp, err := uc.client.Do(req)
	if err != nil {
		uc.fail(d, nil, err.Error())
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	switch webhook.ClassifyResponse(resp.StatusCode) {
	case webhook.StatusDelivered:
		d.MarkDelivered(resp.StatusCode)
		uc.metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
	case webhook.StatusAbandoned:
		d.MarkRejected(resp.StatusCode)
		uc.metrics.WebhookDeliveries.WithLabelValues("rejected").Inc()
		uc.metrics.WebhookAbandoned.WithLabelValues("rejected").Inc()
		uc.logger.Warn().
			Str("delivery_id", d.ID.String()).
			Str("url", d.URL).
			Int("status_code", resp.StatusCode).
			Msg("endpoint rejected webhook, delivery abandoned")
	default:
		code := resp.StatusCode
		uc.fail(d, &code, http.StatusText(resp.StatusCode))
	}
}

func (uc *DispatcherUseCase) fail(d *webhook.Delivery, statusCode *int, errMsg string) {
	d.MarkFailed(statusCode, errMsg, uc.baseDelay, uc.maxDelay)
	uc.metrics.WebhookDeliveries.WithLabelValues("failed").Inc()

	if d.Status == webhook.StatusAbandoned {
		uc.metrics.WebhookAbandoned.WithLabelValues("max_attempts").Inc()
		uc.logger.Error().
			Str("delivery_id", d.ID.String()).
			Str("transaction_id", d.TransactionID.String()).
			Str("url", d.URL).
			Int("attempts", d.AttemptNumber).
			Str("last_error", errMsg).
			Msg("webhook delivery abandoned after exhausting attempts")
		return
	}

	uc.logger.Info().
		Str("delivery_id", d.ID.String()).
		Str("url", d.URL).
		Int("attempt", d.AttemptNumber).
		Time("next_retry_at", d.NextRetryAt).
		Str("error", errMsg).
		Msg("webhook delivery attempt failed")
}
