// Package notifications delivers operator alerts for the backfill pipeline.
package notifications

import (
	"context"
	"fmt"

	"github.com/openshelf/openshelf/internal/db"
	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
)

// SlackAlerter posts operator alerts to a Slack incoming webhook. A zero
// webhook URL disables delivery, so callers can wire it unconditionally.
type SlackAlerter struct {
	webhookURL string
}

// NewSlackAlerter creates an alerter for the given webhook URL
func NewSlackAlerter(webhookURL string) *SlackAlerter {
	return &SlackAlerter{webhookURL: webhookURL}
}

// TaskExhausted alerts operators that a task burned through its attempt
// budget. Repeated exhaustions usually mean a provider outage; the retry API
// is the recovery path once the provider is healthy again.
func (a *SlackAlerter) TaskExhausted(ctx context.Context, task *db.Task, errMsg string) {
	if a == nil || a.webhookURL == "" {
		return
	}

	msg := &slack.WebhookMessage{
		Text: fmt.Sprintf("Backfill task exhausted after %d attempts", task.MaxAttempts),
		Attachments: []slack.Attachment{{
			Color: "danger",
			Fields: []slack.AttachmentField{
				{Title: "Source", Value: task.Source, Short: true},
				{Title: "Source ID", Value: task.SourceID, Short: true},
				{Title: "Task ID", Value: task.ID, Short: true},
				{Title: "Last error", Value: errMsg},
			},
		}},
	}

	if err := slack.PostWebhookContext(ctx, a.webhookURL, msg); err != nil {
		log.Error().
			Err(err).
			Str("task_id", task.ID).
			Msg("Failed to deliver Slack alert")
	}
}
