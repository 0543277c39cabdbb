// Package logbus streams deployment log chunks to live subscribers over
// redis pub/sub and normalizes log blobs before they are persisted.
package logbus

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/helvetia-cloud/worker/internal/logging"
)

// TopicPrefix keys per-deployment channels.
const TopicPrefix = "deployment-logs:"

// Topic returns the pub/sub channel for a deployment.
func Topic(deploymentID string) string {
	return TopicPrefix + deploymentID
}

// Bus publishes log chunks. Publishing is fire-and-forget: a missing or
// slow subscriber never blocks or fails a deployment.
type Bus struct {
	rdb redis.UniversalClient
	log *logging.Logger
}

func New(rdb redis.UniversalClient, log *logging.Logger) *Bus {
	return &Bus{rdb: rdb, log: log}
}

// Publish sends one chunk to the deployment's channel. Errors are logged
// at debug level and dropped.
func (b *Bus) Publish(ctx context.Context, deploymentID, chunk string) {
	if chunk == "" {
		return
	}
	if err := b.rdb.Publish(ctx, Topic(deploymentID), chunk).Err(); err != nil {
		b.log.Debug("log publish failed", "deployment", deploymentID, "error", err)
	}
}

// Subscribe attaches to a deployment's channel. The returned channel closes
// when ctx is cancelled or the returned stop function runs. Chunks published
// before Subscribe are not replayed; combine with the persisted blob for the
// full record.
func (b *Bus) Subscribe(ctx context.Context, deploymentID string) (<-chan string, func()) {
	sub := b.rdb.Subscribe(ctx, Topic(deploymentID))
	out := make(chan string, 64)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, func() { _ = sub.Close() }
}

// Sanitize strips control bytes that corrupt terminals and database text
// columns. Tab, newline and carriage return survive.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 0x00 && r <= 0x08,
			r == 0x0B, r == 0x0C,
			r >= 0x0E && r <= 0x1F,
			r == 0x7F:
			return -1
		}
		return r
	}, s)
}

// Truncate bounds a log blob to max characters, keeping the tail: failure
// detail is appended at the end and must survive truncation.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[len(runes)-max:])
}
