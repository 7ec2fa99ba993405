// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

// Package notify delivers recovery notifications to plan contacts.
//
// Contacts declare a channel (email, sms, pager, webhook) and an
// endpoint. Only webhook delivery is performed over the network; the
// other channels are logged for an external relay to pick up, which
// keeps the orchestrator free of provider credentials.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-ops/custodia/internal/logging"
	"github.com/custodia-ops/custodia/internal/models"
)

// Message is the payload delivered to a contact when a recovery plan
// activates or completes.
type Message struct {
	PlanID     string    `json:"plan_id"`
	PlanName   string    `json:"plan_name"`
	IncidentID string    `json:"incident_id,omitempty"`
	Summary    string    `json:"summary"`
	Severity   string    `json:"severity"`
	SentAt     time.Time `json:"sent_at"`
}

// Notifier delivers a message to a single contact.
type Notifier interface {
	Notify(ctx context.Context, contact models.Contact, msg Message) error
}

// LogNotifier writes notifications to the structured log. It is the
// delivery path for channels without a network transport and the
// default when no webhook notifier is configured.
type LogNotifier struct{}

// Notify logs the notification.
func (LogNotifier) Notify(_ context.Context, contact models.Contact, msg Message) error {
	logging.Info().
		Str("contact", contact.Name).
		Str("channel", contact.Channel).
		Str("endpoint", contact.Endpoint).
		Str("plan_id", msg.PlanID).
		Str("incident_id", msg.IncidentID).
		Msg("Recovery notification")
	return nil
}

// Router dispatches by contact channel: webhook contacts go to the
// webhook notifier, everything else to the fallback.
type Router struct {
	webhook  Notifier
	fallback Notifier
}

// NewRouter creates a channel router. A nil webhook notifier sends
// webhook contacts through the fallback as well.
func NewRouter(webhook Notifier) *Router {
	return &Router{webhook: webhook, fallback: LogNotifier{}}
}

// Notify routes the message to the contact's channel.
func (r *Router) Notify(ctx context.Context, contact models.Contact, msg Message) error {
	if contact.Channel == "webhook" && r.webhook != nil {
		if err := r.webhook.Notify(ctx, contact, msg); err != nil {
			return fmt.Errorf("notify %s via webhook: %w", contact.Name, err)
		}
		return nil
	}
	return r.fallback.Notify(ctx, contact, msg)
}
