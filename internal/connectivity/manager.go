// Package connectivity supervises the network link: it drives the link to a usable
// state, retries lost or failed connects a bounded number of times and signals
// readiness or permanent failure to whoever waits on it.
package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dohr-michael/groqlink/internal/events"
	"github.com/dohr-michael/groqlink/internal/link"
)

// ErrNotStarted is returned by AwaitReady before Start was called.
var ErrNotStarted = errors.New("connectivity: manager not started")

// State is the connection state owned by the Manager.
type State int

const (
	Idle State = iota
	Connecting
	Retrying
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Retrying:
		return "retrying"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options configures a Manager.
type Options struct {
	MaxRetry int           // retries allowed per cycle before Failed
	Backoff  time.Duration // delay before a retry; zero or negative retries immediately
	Bus      *events.Bus   // optional telemetry
}

// Snapshot is a point-in-time view of the Manager.
type Snapshot struct {
	State   State     `json:"-"`
	Retries int       `json:"retries"`
	Address string    `json:"address,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Since   time.Time `json:"since"`
}

// cycle is one readiness signal: it resolves exactly once, to Ready or Failed.
type cycle struct {
	done   chan struct{}
	result State
}

func newCycle() *cycle {
	return &cycle{done: make(chan struct{})}
}

func (c *cycle) resolve(s State) {
	c.result = s
	close(c.done)
}

type message struct {
	event    link.Event
	retryDue bool
	gen      uint64
}

// Manager is the connectivity state machine. Link events are queued on an inbound
// channel and applied by a single goroutine, so transitions are strictly ordered.
type Manager struct {
	link link.Link
	opts Options

	inbox   chan message
	stop    chan struct{}
	stopped chan struct{}
	runOnce sync.Once

	mu      sync.Mutex
	state   State
	retries int
	addr    string
	reason  string
	since   time.Time
	cycle   *cycle
	gen     uint64
	linkCtx context.Context
	pending []Snapshot // transitions not yet published
}

// New creates a Manager over l.
func New(l link.Link, opts Options) *Manager {
	if opts.MaxRetry < 0 {
		opts.MaxRetry = 0
	}
	return &Manager{
		link:    l,
		opts:    opts,
		inbox:   make(chan message, 32),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		state:   Idle,
		since:   time.Now(),
	}
}

// Start begins link acquisition for a fresh cycle: the retry counter is reset and
// the readiness signal re-armed. It does not wait for the outcome.
func (m *Manager) Start(ctx context.Context) error {
	m.runOnce.Do(func() { go m.run() })

	m.mu.Lock()
	m.gen++
	m.retries = 0
	m.addr = ""
	m.reason = ""
	m.cycle = newCycle()
	m.linkCtx = ctx
	m.setStateLocked(Idle)
	pending := m.takePendingLocked()
	m.mu.Unlock()

	m.publish(pending)

	if err := m.link.Start(ctx, m.Notify); err != nil {
		return err
	}
	return nil
}

// Notify queues a link event. It is the callback handed to the link layer.
func (m *Manager) Notify(e link.Event) {
	select {
	case m.inbox <- message{event: e}:
	case <-m.stop:
	}
}

// AwaitReady blocks until the current cycle reaches Ready or Failed and returns
// which, or until ctx ends.
func (m *Manager) AwaitReady(ctx context.Context) (State, error) {
	m.mu.Lock()
	c := m.cycle
	m.mu.Unlock()

	if c == nil {
		return Idle, ErrNotStarted
	}

	select {
	case <-c.done:
		return c.result, nil
	case <-ctx.Done():
		return m.State(), ctx.Err()
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Retries returns the retry counter of the current cycle.
func (m *Manager) Retries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries
}

// Address returns the address acquired when Ready.
func (m *Manager) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

// Snapshot returns the current state, counter, address and last disconnect reason.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Close stops the event goroutine and the link.
func (m *Manager) Close() error {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	m.runOnce.Do(func() { close(m.stopped) })
	<-m.stopped
	return m.link.Close()
}

func (m *Manager) run() {
	defer close(m.stopped)
	for {
		select {
		case msg := <-m.inbox:
			m.handle(msg)
		case <-m.stop:
			return
		}
	}
}

// action is what handle decided to do once the lock is released.
type action struct {
	connect bool
	retryIn time.Duration
	gen     uint64
}

func (m *Manager) handle(msg message) {
	m.mu.Lock()
	var act action
	if msg.retryDue {
		act = m.onRetryDueLocked(msg.gen)
	} else {
		act = m.onEventLocked(msg.event)
	}
	pending := m.takePendingLocked()
	ctx := m.linkCtx
	m.mu.Unlock()

	m.publish(pending)
	if act.retryIn > 0 {
		gen := act.gen
		time.AfterFunc(act.retryIn, func() {
			select {
			case m.inbox <- message{retryDue: true, gen: gen}:
			case <-m.stop:
			}
		})
	}
	if act.connect {
		m.link.Connect(ctx, act.gen)
	}
}

func (m *Manager) onEventLocked(e link.Event) action {
	switch e.Kind {
	case link.EventStarted:
		if m.state != Idle {
			return action{}
		}
		m.setStateLocked(Connecting)
		return action{connect: true, gen: m.gen}

	case link.EventAddressAcquired:
		if e.Attempt != m.gen {
			return action{}
		}
		if m.state != Connecting && m.state != Retrying {
			return action{}
		}
		m.retries = 0
		m.addr = e.Address
		m.reason = ""
		m.setStateLocked(Ready)
		m.cycle.resolve(Ready)
		return action{}

	case link.EventDisconnected:
		// Outcomes of attempts from an earlier cycle do not count against this one.
		if e.Attempt != m.gen {
			return action{}
		}
		switch m.state {
		case Ready:
			// A lost link opens a new readiness cycle.
			m.cycle = newCycle()
			m.addr = ""
		case Connecting:
		default:
			return action{}
		}
		m.reason = e.Reason
		if m.retries >= m.opts.MaxRetry {
			m.setStateLocked(Failed)
			m.cycle.resolve(Failed)
			return action{}
		}
		m.retries++
		m.setStateLocked(Retrying)
		if m.opts.Backoff > 0 {
			return action{retryIn: m.opts.Backoff, gen: m.gen}
		}
		m.setStateLocked(Connecting)
		return action{connect: true, gen: m.gen}
	}
	return action{}
}

func (m *Manager) onRetryDueLocked(gen uint64) action {
	if gen != m.gen || m.state != Retrying {
		return action{}
	}
	m.setStateLocked(Connecting)
	return action{connect: true, gen: m.gen}
}

func (m *Manager) setStateLocked(s State) {
	slog.Debug("link state", "from", m.state.String(), "to", s.String(), "retries", m.retries)
	m.state = s
	m.since = time.Now()
	m.pending = append(m.pending, m.snapshotLocked())
}

func (m *Manager) takePendingLocked() []Snapshot {
	p := m.pending
	m.pending = nil
	return p
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		State:   m.state,
		Retries: m.retries,
		Address: m.addr,
		Reason:  m.reason,
		Since:   m.since,
	}
}

func (m *Manager) publish(transitions []Snapshot) {
	for _, s := range transitions {
		switch s.State {
		case Ready:
			slog.Info("link ready", "address", s.Address)
		case Retrying:
			slog.Info("retrying link", "attempt", s.Retries, "max", m.opts.MaxRetry, "reason", s.Reason)
		case Failed:
			slog.Info("link failed", "retries", s.Retries, "reason", s.Reason)
		}

		if m.opts.Bus == nil {
			continue
		}
		m.opts.Bus.Publish(events.NewTypedEvent(events.SourceConnectivity, events.LinkStatePayload{
			State:   s.State.String(),
			Retries: s.Retries,
			Address: s.Address,
			Reason:  s.Reason,
		}))
	}
}
