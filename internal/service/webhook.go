package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	webhookTimeout     = 5 * time.Second
	webhookAttempts    = 3
	webhookBaseBackoff = 200 * time.Millisecond
)

// WebhookService posts security alerts as JSON to a single URL.
type WebhookService struct {
	client     *http.Client
	log        *zap.SugaredLogger
	webhookURL string
	backoff    time.Duration
}

func NewWebhookService(log *zap.SugaredLogger, webhookURL string) *WebhookService {
	return &WebhookService{
		client:     &http.Client{Timeout: webhookTimeout},
		log:        log,
		webhookURL: webhookURL,
		backoff:    webhookBaseBackoff,
	}
}

// NotifyTokenReuse returns immediately; delivery happens in the background and
// outlives the request that triggered it. Network errors and 5xx answers are
// retried a bounded number of times.
func (s *WebhookService) NotifyTokenReuse(ctx context.Context, alert TokenReuseAlert) {
	if s.webhookURL == "" {
		return
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		s.log.Errorw("Failed to marshal token reuse alert", "error", err)
		return
	}
	ctx = context.WithoutCancel(ctx)

	go func() {
		b := retry.WithMaxRetries(webhookAttempts-1, retry.NewExponential(s.backoff))
		err := retry.Do(ctx, b, func(ctx context.Context) error {
			return s.post(ctx, payload)
		})
		if err != nil {
			s.log.Errorw("Token reuse alert not delivered", "user_id", alert.UserID, "error", err)
		}
	}()
}

func (s *WebhookService) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return retry.RetryableError(fmt.Errorf("send webhook: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return retry.RetryableError(fmt.Errorf("webhook answered %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusMultipleChoices:
		return fmt.Errorf("webhook answered %d", resp.StatusCode)
	}
	return nil
}
