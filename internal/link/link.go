// Package link provides the network link the console supervises before any prompt
// is sent: a start step, asynchronous connect attempts and keepalive probing, all
// reported as events.
package link

import (
	"context"
	"time"
)

// EventKind identifies a link-layer notification.
type EventKind int

const (
	// EventStarted is emitted once the link layer is up and can attempt a connect.
	EventStarted EventKind = iota
	// EventDisconnected is emitted when a connect attempt fails or an established link is lost.
	EventDisconnected
	// EventAddressAcquired is emitted when the link can carry application traffic.
	EventAddressAcquired
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventDisconnected:
		return "disconnected"
	case EventAddressAcquired:
		return "address_acquired"
	default:
		return "unknown"
	}
}

// Event is a link-layer notification.
type Event struct {
	Kind    EventKind
	Address string // local address, set on EventAddressAcquired
	Reason  string // failure cause, set on EventDisconnected
	Attempt uint64 // attempt passed to the Connect that produced the event
	At      time.Time
}

// Notify receives link events. Implementations of Link call it from their own goroutines.
type Notify func(Event)

// Link is the link layer driven by the connectivity manager.
type Link interface {
	// Start brings the link layer up and emits EventStarted through notify.
	Start(ctx context.Context, notify Notify) error
	// Connect begins one asynchronous connect attempt. Its outcome arrives as
	// EventAddressAcquired or EventDisconnected carrying attempt, as does a later
	// loss of the link it established.
	Connect(ctx context.Context, attempt uint64)
	// Close stops keepalive probing and releases resources.
	Close() error
}
