package notify

import (
	"fmt"
	"strings"

	"github.com/helvetia-cloud/worker/internal/events"
)

// formatTitle produces a human-readable notification title.
func formatTitle(t events.EventType) string {
	readable := strings.ReplaceAll(string(t), "_", " ")
	words := strings.Fields(readable)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return "Helvetia: " + strings.Join(words, " ")
}

// formatMessage builds a plain-text notification body from event fields.
func formatMessage(e events.Event) string {
	var b strings.Builder
	if e.ServiceName != "" {
		fmt.Fprintf(&b, "Service: %s", e.ServiceName)
		if e.ServiceType != "" {
			fmt.Fprintf(&b, " (%s)", e.ServiceType)
		}
		b.WriteString("\n")
	}
	if e.DeploymentID != "" {
		fmt.Fprintf(&b, "Deployment: %s\n", e.DeploymentID)
	}
	if e.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", e.Error)
	}
	return b.String()
}

// formatMessageMarkdown renders the body in Slack mrkdwn.
func formatMessageMarkdown(e events.Event) string {
	var b strings.Builder
	if e.ServiceName != "" {
		fmt.Fprintf(&b, "*Service:* %s", e.ServiceName)
		if e.ServiceType != "" {
			fmt.Fprintf(&b, " (%s)", e.ServiceType)
		}
		b.WriteString("\n")
	}
	if e.DeploymentID != "" {
		fmt.Fprintf(&b, "*Deployment:* `%s`\n", e.DeploymentID)
	}
	if e.Error != "" {
		fmt.Fprintf(&b, "*Error:* %s\n", e.Error)
	}
	return b.String()
}
