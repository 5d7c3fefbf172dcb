package storage

import (
	"sync"
	"time"

	"github.com/dohr-michael/groqlink/internal/events"
)

// Usage is the accumulated exchange statistics of a run.
type Usage struct {
	Exchanges    int
	Failures     map[string]int // by result kind
	TokensInput  int
	TokensOutput int
	DroppedBytes int
	Elapsed      time.Duration

	// EventsDropped counts telemetry the bus discarded, so the totals above may undercount.
	EventsDropped uint64
}

// UsageTracker folds exchange.response events into a Usage summary.
type UsageTracker struct {
	bus         *events.Bus
	mu          sync.Mutex
	usage       Usage
	unsubscribe func()
}

// NewUsageTracker subscribes to exchange responses on bus.
func NewUsageTracker(bus *events.Bus) *UsageTracker {
	ut := &UsageTracker{bus: bus, usage: Usage{Failures: make(map[string]int)}}
	ut.unsubscribe = bus.Subscribe(ut.handleEvent, events.EventExchangeResponse)
	return ut
}

// Close unsubscribes the tracker.
func (ut *UsageTracker) Close() {
	if ut.unsubscribe != nil {
		ut.unsubscribe()
	}
}

// Snapshot returns a copy of the current totals.
func (ut *UsageTracker) Snapshot() Usage {
	ut.mu.Lock()
	defer ut.mu.Unlock()

	u := ut.usage
	u.Failures = make(map[string]int, len(ut.usage.Failures))
	for k, v := range ut.usage.Failures {
		u.Failures[k] = v
	}
	u.EventsDropped = ut.bus.Dropped()
	return u
}

func (ut *UsageTracker) handleEvent(e events.Event) {
	p, ok := events.GetExchangeResponsePayload(e)
	if !ok {
		return
	}

	ut.mu.Lock()
	defer ut.mu.Unlock()

	ut.usage.Exchanges++
	if p.Kind != "text" {
		ut.usage.Failures[p.Kind]++
	}
	ut.usage.TokensInput += p.TokensInput
	ut.usage.TokensOutput += p.TokensOutput
	ut.usage.DroppedBytes += p.DroppedBytes
	ut.usage.Elapsed += p.Duration
}
