package notify

import (
	"context"
	"testing"
	"time"

	"github.com/helvetia-cloud/worker/internal/events"
)

// publishAndSettle pushes an event and gives the dispatcher goroutine a
// moment to drain it.
func publishAndSettle(bus *events.Bus, evt events.Event) {
	bus.Publish(evt)
	time.Sleep(20 * time.Millisecond)
}

func startDispatcher(t *testing.T, onSuccess bool) (*events.Bus, *stubNotifier) {
	t.Helper()
	bus := events.New()
	sink := &stubNotifier{name: "sink"}
	d := NewDispatcher(bus, NewMulti(&spyLogger{}, sink), onSuccess)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.Run(ctx)
	time.Sleep(10 * time.Millisecond)
	return bus, sink
}

func TestDispatcherForwardsFailures(t *testing.T) {
	bus, sink := startDispatcher(t, false)

	publishAndSettle(bus, events.Event{Type: events.EventDeploymentFailed, ServiceName: "blog"})
	got := sink.events()
	if len(got) != 1 {
		t.Fatalf("sent = %d", len(got))
	}
	if got[0].ServiceName != "blog" {
		t.Errorf("event = %+v", got[0])
	}
}

func TestDispatcherGatesSuccesses(t *testing.T) {
	bus, sink := startDispatcher(t, false)

	publishAndSettle(bus, events.Event{Type: events.EventDeploymentSucceeded})
	publishAndSettle(bus, events.Event{Type: events.EventCleanupCompleted})
	if len(sink.sent) != 0 {
		t.Errorf("success events forwarded with the toggle off: %d", len(sink.sent))
	}
}

func TestDispatcherForwardsSuccessesWhenEnabled(t *testing.T) {
	bus, sink := startDispatcher(t, true)

	publishAndSettle(bus, events.Event{Type: events.EventDeploymentSucceeded})
	publishAndSettle(bus, events.Event{Type: events.EventCleanupCompleted})
	if len(sink.sent) != 2 {
		t.Errorf("sent = %d, want both outcome events", len(sink.sent))
	}
}

func TestDispatcherIgnoresStartEvents(t *testing.T) {
	bus, sink := startDispatcher(t, true)

	publishAndSettle(bus, events.Event{Type: events.EventDeploymentStarted})
	if len(sink.sent) != 0 {
		t.Errorf("start event forwarded: %+v", sink.sent)
	}
}
