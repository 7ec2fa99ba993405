// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/custodia-ops/custodia/internal/models"
)

func TestWebhookNotifierDelivers(t *testing.T) {
	var got Message
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(DefaultWebhookConfig())
	contact := models.Contact{Name: "ops", Channel: "webhook", Endpoint: srv.URL}
	msg := Message{PlanID: "plan-1", PlanName: "db-loss", Summary: "plan activated", SentAt: time.Now().UTC()}

	if err := n.Notify(context.Background(), contact, msg); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("deliveries = %d, want 1", calls.Load())
	}
	if got.PlanID != "plan-1" || got.Summary != "plan activated" {
		t.Errorf("delivered message = %+v", got)
	}
}

func TestWebhookNotifierNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(DefaultWebhookConfig())
	err := n.Notify(context.Background(), models.Contact{Endpoint: srv.URL}, Message{PlanID: "plan-1"})
	if err == nil {
		t.Fatal("Notify() error = nil, want non-nil for 500 response")
	}
}

func TestWebhookNotifierRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := WebhookConfig{Timeout: time.Second, RatePerSecond: 0.001, Burst: 1}
	n := NewWebhookNotifier(cfg)
	contact := models.Contact{Endpoint: srv.URL}

	if err := n.Notify(context.Background(), contact, Message{}); err != nil {
		t.Fatalf("first Notify() error = %v", err)
	}
	if err := n.Notify(context.Background(), contact, Message{}); !errors.Is(err, ErrRateLimited) {
		t.Errorf("second Notify() error = %v, want ErrRateLimited", err)
	}
}

func TestRouterSendsWebhookChannelToWebhook(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRouter(NewWebhookNotifier(DefaultWebhookConfig()))

	webhookContact := models.Contact{Name: "ops", Channel: "webhook", Endpoint: srv.URL}
	if err := r.Notify(context.Background(), webhookContact, Message{PlanID: "plan-1"}); err != nil {
		t.Fatalf("Notify(webhook) error = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("webhook deliveries = %d, want 1", calls.Load())
	}

	// Non-webhook channels never touch the network.
	emailContact := models.Contact{Name: "dba", Channel: "email", Endpoint: "dba@example.com"}
	if err := r.Notify(context.Background(), emailContact, Message{PlanID: "plan-1"}); err != nil {
		t.Fatalf("Notify(email) error = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("webhook deliveries after email = %d, want still 1", calls.Load())
	}
}
