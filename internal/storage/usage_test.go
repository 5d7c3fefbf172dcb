package storage

import (
	"testing"
	"time"

	"github.com/dohr-michael/groqlink/internal/events"
)

func publishResponse(bus *events.Bus, p events.ExchangeResponsePayload) {
	bus.Publish(events.NewTypedEventWithSession(events.SourceExchange, p, "run_1"))
}

func TestUsageTracker_Accumulates(t *testing.T) {
	bus := events.NewBus(64)
	ut := NewUsageTracker(bus)
	defer ut.Close()

	publishResponse(bus, events.ExchangeResponsePayload{Kind: "text", TokensInput: 100, TokensOutput: 40, Duration: 300 * time.Millisecond})
	publishResponse(bus, events.ExchangeResponsePayload{Kind: "text", TokensInput: 50, TokensOutput: 10, DroppedBytes: 120, Duration: 200 * time.Millisecond})
	publishResponse(bus, events.ExchangeResponsePayload{Kind: "transport_error", Duration: 15 * time.Second})
	// Ignored by the subscription filter.
	bus.Publish(events.NewTypedEvent(events.SourceExchange, events.ExchangeRequestPayload{BodyBytes: 99}))
	bus.Close()

	u := ut.Snapshot()
	if u.Exchanges != 3 {
		t.Errorf("exchanges = %d, want 3", u.Exchanges)
	}
	if u.TokensInput != 150 || u.TokensOutput != 50 {
		t.Errorf("tokens = %d/%d", u.TokensInput, u.TokensOutput)
	}
	if u.DroppedBytes != 120 {
		t.Errorf("dropped = %d", u.DroppedBytes)
	}
	if u.Failures["transport_error"] != 1 || len(u.Failures) != 1 {
		t.Errorf("failures = %v", u.Failures)
	}
	if u.Elapsed != 15500*time.Millisecond {
		t.Errorf("elapsed = %s", u.Elapsed)
	}
}

func TestUsageTracker_ReportsDroppedEvents(t *testing.T) {
	bus := events.NewBus(1)
	release := make(chan struct{})
	bus.Subscribe(func(events.Event) { <-release }, events.EventPromptSubmitted)
	ut := NewUsageTracker(bus)
	defer ut.Close()

	// The dispatcher blocks on the first event and the buffer holds one more,
	// so at least one of the three is discarded.
	for i := 0; i < 3; i++ {
		bus.Publish(events.NewTypedEvent(events.SourceConsole, events.PromptSubmittedPayload{Content: "x"}))
	}
	if ut.Snapshot().EventsDropped == 0 {
		t.Error("expected dropped events in snapshot")
	}
	close(release)
	bus.Close()
}

func TestUsageTracker_SnapshotIsCopy(t *testing.T) {
	bus := events.NewBus(8)
	ut := NewUsageTracker(bus)
	publishResponse(bus, events.ExchangeResponsePayload{Kind: "missing_field"})
	bus.Close()

	snap := ut.Snapshot()
	snap.Failures["missing_field"] = 99
	if ut.Snapshot().Failures["missing_field"] != 1 {
		t.Error("snapshot shares the failures map")
	}
}
