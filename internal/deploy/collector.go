package deploy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/helvetia-cloud/worker/internal/logbus"
	"github.com/helvetia-cloud/worker/internal/scrub"
)

// LogPublisher is the live side of the log pipeline. *logbus.Bus satisfies
// it; tests use a recording fake.
type LogPublisher interface {
	Publish(ctx context.Context, deploymentID, chunk string)
}

// FailureHeader opens the error block appended to a failed deployment's
// persisted logs.
const FailureHeader = "=== DEPLOYMENT FAILURE ==="

// Collector is the single consumer of a deployment's output stream: every
// chunk is scrubbed once, appended to the local blob, and published live.
// Safe for concurrent writers, though a deployment normally has one.
type Collector struct {
	ctx          context.Context
	deploymentID string
	scrubber     *scrub.Scrubber
	bus          LogPublisher

	mu  sync.Mutex
	buf strings.Builder
}

// NewCollector wires a collector for one deployment. secrets seeds the
// scrubber; bus may be nil in tests that only care about the blob.
func NewCollector(ctx context.Context, deploymentID string, secrets []string, bus LogPublisher) *Collector {
	return &Collector{
		ctx:          ctx,
		deploymentID: deploymentID,
		scrubber:     scrub.New(secrets),
		bus:          bus,
	}
}

// Chunk ingests one piece of build output.
func (c *Collector) Chunk(s string) {
	if s == "" {
		return
	}
	clean := c.scrubber.Scrub(s)

	c.mu.Lock()
	c.buf.WriteString(clean)
	c.mu.Unlock()

	if c.bus != nil {
		c.bus.Publish(c.ctx, c.deploymentID, clean)
	}
}

// Linef writes a formatted progress line from the worker itself.
func (c *Collector) Linef(format string, args ...any) {
	c.Chunk(fmt.Sprintf(format, args...) + "\n")
}

// Scrub masks secrets in text that bypasses Chunk, like event payloads.
func (c *Collector) Scrub(s string) string {
	return c.scrubber.Scrub(s)
}

// String returns the accumulated raw blob (already scrubbed).
func (c *Collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// Blob returns the persistable success blob: scrubbed, control characters
// stripped, bounded to max characters.
func (c *Collector) Blob(max int) string {
	return logbus.Truncate(logbus.Sanitize(c.String()), max)
}

// FailureBlob builds the persistable blob for a failed deployment. The
// header and error stay intact; the captured build output absorbs whatever
// budget remains, keeping its tail.
func (c *Collector) FailureBlob(failure error, stack string, max int) string {
	var head strings.Builder
	head.WriteString(FailureHeader)
	head.WriteString("\nError: ")
	head.WriteString(c.scrubber.Scrub(failure.Error()))
	head.WriteString("\n")
	if stack != "" {
		head.WriteString("\n")
		head.WriteString(c.scrubber.Scrub(stack))
		head.WriteString("\n")
	}
	head.WriteString("\n--- Build output ---\n")

	headStr := logbus.Sanitize(head.String())
	budget := max - len([]rune(headStr))
	if budget <= 0 {
		// Pathologically small budget: keep the head, which starts with
		// the failure header.
		return string([]rune(headStr)[:max])
	}
	output := logbus.Truncate(logbus.Sanitize(c.String()), budget)
	return headStr + output
}
