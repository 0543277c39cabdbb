// Package notify delivers deployment outcome notifications to the
// channels configured for the platform: a generic webhook, Slack,
// Discord, and a structured-log fallback.
package notify

import (
	"context"

	"github.com/helvetia-cloud/worker/internal/events"
)

// Notifier sends events to an external system.
type Notifier interface {
	Send(ctx context.Context, event events.Event) error
	Name() string
}

// Logger is a minimal logging interface to avoid importing the logging package.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Multi fans out events to multiple notifiers.
// It never returns errors — failures are logged but don't block deployments.
type Multi struct {
	notifiers []Notifier
	log       Logger
}

// NewMulti creates a dispatcher from the given notifiers.
func NewMulti(log Logger, notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers, log: log}
}

// Notify sends an event to all registered notifiers.
// Returns true if at least one notifier succeeded (or none are configured).
func (m *Multi) Notify(ctx context.Context, event events.Event) bool {
	if len(m.notifiers) == 0 {
		return true
	}

	anyOK := false
	for _, n := range m.notifiers {
		if err := n.Send(ctx, event); err != nil {
			m.log.Error("notification failed",
				"provider", n.Name(),
				"event", string(event.Type),
				"service", event.ServiceName,
				"error", err.Error(),
			)
		} else {
			anyOK = true
		}
	}
	return anyOK
}

// FromConfig assembles the notifier chain for the configured channels.
// The structured-log notifier is always present so every outcome leaves
// a record even with no external channel set up.
func FromConfig(webhookURL, slackWebhook, discordWebhook string, log Logger) *Multi {
	notifiers := []Notifier{NewLogNotifier(log)}
	if webhookURL != "" {
		notifiers = append(notifiers, NewWebhook(webhookURL, nil))
	}
	if slackWebhook != "" {
		notifiers = append(notifiers, NewSlack(slackWebhook))
	}
	if discordWebhook != "" {
		notifiers = append(notifiers, NewDiscord(discordWebhook))
	}
	return NewMulti(log, notifiers...)
}
