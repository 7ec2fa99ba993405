// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/custodia-ops/custodia/internal/logging"
	"github.com/custodia-ops/custodia/internal/models"
)

// ErrRateLimited is returned when the webhook rate limit rejects a
// notification before it is sent.
var ErrRateLimited = errors.New("notify: webhook rate limit exceeded")

// WebhookConfig tunes webhook delivery.
type WebhookConfig struct {
	// Timeout bounds a single delivery attempt. Default: 10s.
	Timeout time.Duration `koanf:"timeout"`

	// RatePerSecond caps outbound notifications. Default: 5.
	RatePerSecond float64 `koanf:"rate_per_second"`

	// Burst is the rate limiter burst size. Default: 10.
	Burst int `koanf:"burst"`
}

// DefaultWebhookConfig returns production defaults.
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Timeout:       10 * time.Second,
		RatePerSecond: 5,
		Burst:         10,
	}
}

// WebhookNotifier POSTs JSON notifications to each contact's endpoint.
// Deliveries go through a circuit breaker so a dead endpoint during an
// incident cannot stall plan execution, and a rate limiter so a plan
// with many contacts cannot flood the receiver.
type WebhookNotifier struct {
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[struct{}]
	limiter *rate.Limiter
}

// NewWebhookNotifier creates a webhook notifier.
//
// Circuit breaker configuration:
// - Opens after 60% failure rate with minimum 5 requests
// - 1 minute measurement window
// - 30 second timeout before attempting recovery
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "recovery-webhook",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Webhook circuit breaker state transition")
		},
	})

	return &WebhookNotifier{
		client:  &http.Client{Timeout: cfg.Timeout},
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
	}
}

// Notify delivers the message to contact.Endpoint.
func (w *WebhookNotifier) Notify(ctx context.Context, contact models.Contact, msg Message) error {
	if !w.limiter.Allow() {
		return ErrRateLimited
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	_, err = w.cb.Execute(func() (struct{}, error) {
		return struct{}{}, w.post(ctx, contact.Endpoint, body)
	})
	return err
}

func (w *WebhookNotifier) post(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "custodia-notify/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
