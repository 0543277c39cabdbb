package notify

import (
	"context"

	"github.com/helvetia-cloud/worker/internal/events"
)

// Dispatcher subscribes to the event bus and forwards outcome events to
// the notifier chain. Failures are always forwarded; successes (including
// cleanup summaries) only when onSuccess is set. Start events are never
// forwarded.
type Dispatcher struct {
	bus       *events.Bus
	multi     *Multi
	onSuccess bool
}

// NewDispatcher wires the bus to the notifier chain.
func NewDispatcher(bus *events.Bus, multi *Multi, onSuccess bool) *Dispatcher {
	return &Dispatcher{bus: bus, multi: multi, onSuccess: onSuccess}
}

// Run consumes events until ctx is canceled. Meant to run in its own
// goroutine; it never returns an error because notification failures are
// already logged by the chain.
func (d *Dispatcher) Run(ctx context.Context) {
	ch, cancel := d.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-ch:
			if !d.wants(evt.Type) {
				continue
			}
			d.multi.Notify(ctx, evt)
		}
	}
}

func (d *Dispatcher) wants(t events.EventType) bool {
	switch t {
	case events.EventDeploymentFailed:
		return true
	case events.EventDeploymentSucceeded, events.EventCleanupCompleted:
		return d.onSuccess
	default:
		return false
	}
}
