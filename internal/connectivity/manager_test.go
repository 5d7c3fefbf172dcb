package connectivity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dohr-michael/groqlink/internal/events"
	"github.com/dohr-michael/groqlink/internal/link"
)

// fakeLink replays a scripted list of connect outcomes. Once the script is
// exhausted every further attempt acquires an address.
type fakeLink struct {
	mu       sync.Mutex
	notify   link.Notify
	script   []bool // false = disconnect, true = address acquired
	connects int
	attempt  uint64
	startErr error
}

func (f *fakeLink) Start(_ context.Context, notify link.Notify) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.notify = notify
	f.mu.Unlock()
	go notify(link.Event{Kind: link.EventStarted, At: time.Now()})
	return nil
}

func (f *fakeLink) Connect(_ context.Context, attempt uint64) {
	f.mu.Lock()
	f.attempt = attempt
	ok := true
	if f.connects < len(f.script) {
		ok = f.script[f.connects]
	}
	f.connects++
	notify := f.notify
	f.mu.Unlock()

	go func() {
		if ok {
			notify(link.Event{Kind: link.EventAddressAcquired, Address: "10.0.0.2", Attempt: attempt})
			return
		}
		notify(link.Event{Kind: link.EventDisconnected, Reason: "assoc failed", Attempt: attempt})
	}()
}

func (f *fakeLink) Close() error { return nil }

func (f *fakeLink) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeLink) drop(reason string) {
	f.mu.Lock()
	notify, attempt := f.notify, f.attempt
	f.mu.Unlock()
	notify(link.Event{Kind: link.EventDisconnected, Reason: reason, Attempt: attempt})
}

func failures(n int) []bool {
	return make([]bool, n)
}

func await(t *testing.T, m *Manager) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := m.AwaitReady(ctx)
	if err != nil {
		t.Fatalf("AwaitReady: %v", err)
	}
	return s
}

func TestManager_ReadyWithinRetryBudget(t *testing.T) {
	for n := 0; n <= 5; n++ {
		fl := &fakeLink{script: failures(n)}
		m := New(fl, Options{MaxRetry: 5})

		if err := m.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		if got := await(t, m); got != Ready {
			t.Fatalf("%d disconnects: state = %s, want ready", n, got)
		}
		if m.Retries() != 0 {
			t.Errorf("%d disconnects: retries = %d after ready, want 0", n, m.Retries())
		}
		if m.Address() != "10.0.0.2" {
			t.Errorf("address = %q", m.Address())
		}
		if fl.Connects() != n+1 {
			t.Errorf("%d disconnects: connects = %d, want %d", n, fl.Connects(), n+1)
		}
		m.Close()
	}
}

func TestManager_FailsPastRetryBudget(t *testing.T) {
	fl := &fakeLink{script: failures(10)}
	m := New(fl, Options{MaxRetry: 5})
	defer m.Close()

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := await(t, m); got != Failed {
		t.Fatalf("state = %s, want failed", got)
	}

	// One initial attempt plus MaxRetry retries, then nothing more.
	time.Sleep(50 * time.Millisecond)
	if fl.Connects() != 6 {
		t.Errorf("connects = %d, want 6", fl.Connects())
	}
	snap := m.Snapshot()
	if snap.State != Failed || snap.Retries != 5 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Reason != "assoc failed" {
		t.Errorf("reason = %q", snap.Reason)
	}
}

func TestManager_ZeroRetries(t *testing.T) {
	fl := &fakeLink{script: failures(1)}
	m := New(fl, Options{MaxRetry: 0})
	defer m.Close()

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := await(t, m); got != Failed {
		t.Fatalf("state = %s, want failed", got)
	}
	if fl.Connects() != 1 {
		t.Errorf("connects = %d, want 1", fl.Connects())
	}
}

func TestManager_DisconnectAfterReadyOpensNewCycle(t *testing.T) {
	fl := &fakeLink{}
	m := New(fl, Options{MaxRetry: 2})
	defer m.Close()

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := await(t, m); got != Ready {
		t.Fatalf("state = %s, want ready", got)
	}

	// Next attempt (index 1) succeeds, so the manager recovers on its own.
	fl.drop("beacon timeout")
	deadline := time.Now().Add(2 * time.Second)
	for fl.Connects() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := await(t, m); got != Ready {
		t.Fatalf("state after reconnect = %s, want ready", got)
	}
	if fl.Connects() != 2 {
		t.Errorf("connects = %d, want 2", fl.Connects())
	}
}

func TestManager_RestartAfterFailed(t *testing.T) {
	fl := &fakeLink{script: failures(3)}
	m := New(fl, Options{MaxRetry: 2})
	defer m.Close()

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := await(t, m); got != Failed {
		t.Fatalf("state = %s, want failed", got)
	}

	// Script exhausted: the fresh cycle connects on its first attempt.
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := await(t, m); got != Ready {
		t.Fatalf("state after restart = %s, want ready", got)
	}
	if fl.Connects() != 4 {
		t.Errorf("connects = %d, want 4", fl.Connects())
	}
}

func TestManager_Backoff(t *testing.T) {
	fl := &fakeLink{script: failures(2)}
	m := New(fl, Options{MaxRetry: 3, Backoff: 20 * time.Millisecond})
	defer m.Close()

	begin := time.Now()
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := await(t, m); got != Ready {
		t.Fatalf("state = %s, want ready", got)
	}
	if elapsed := time.Since(begin); elapsed < 40*time.Millisecond {
		t.Errorf("ready after %s, expected at least two backoff delays", elapsed)
	}
}

func TestManager_StaleRetryIgnoredAfterRestart(t *testing.T) {
	fl := &fakeLink{script: failures(1)}
	m := New(fl, Options{MaxRetry: 3, Backoff: 50 * time.Millisecond})
	defer m.Close()

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for m.State() != Retrying && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if m.State() != Retrying {
		t.Fatalf("state = %s, want retrying", m.State())
	}

	// Restarting bumps the generation; the pending retry timer must not connect again.
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := await(t, m); got != Ready {
		t.Fatalf("state = %s, want ready", got)
	}
	time.Sleep(100 * time.Millisecond)
	if fl.Connects() != 2 {
		t.Errorf("connects = %d, want 2", fl.Connects())
	}
}

// manualLink records connect attempts and leaves their outcomes to the test.
type manualLink struct {
	mu       sync.Mutex
	notify   link.Notify
	attempts []uint64
}

func (l *manualLink) Start(_ context.Context, notify link.Notify) error {
	l.mu.Lock()
	l.notify = notify
	l.mu.Unlock()
	go notify(link.Event{Kind: link.EventStarted})
	return nil
}

func (l *manualLink) Connect(_ context.Context, attempt uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, attempt)
}

func (l *manualLink) Close() error { return nil }

func (l *manualLink) waitAttempts(t *testing.T, n int) []uint64 {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		got := append([]uint64(nil), l.attempts...)
		l.mu.Unlock()
		if len(got) >= n {
			return got
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d connect attempts", n)
	return nil
}

func (l *manualLink) emit(e link.Event) {
	l.mu.Lock()
	notify := l.notify
	l.mu.Unlock()
	notify(e)
}

func TestManager_OutcomeOfEarlierCycleIgnored(t *testing.T) {
	ml := &manualLink{}
	m := New(ml, Options{MaxRetry: 1})
	defer m.Close()

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ml.waitAttempts(t, 1)

	// Restart while the first attempt is still in flight.
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	attempts := ml.waitAttempts(t, 2)
	if attempts[0] == attempts[1] {
		t.Fatalf("attempts share a generation: %v", attempts)
	}

	// Two late failures of the old attempt would exhaust a budget of one retry.
	ml.emit(link.Event{Kind: link.EventDisconnected, Reason: "stale", Attempt: attempts[0]})
	ml.emit(link.Event{Kind: link.EventDisconnected, Reason: "stale", Attempt: attempts[0]})
	ml.emit(link.Event{Kind: link.EventAddressAcquired, Address: "10.0.0.9", Attempt: attempts[1]})

	if got := await(t, m); got != Ready {
		t.Fatalf("state = %s, want ready", got)
	}
	if m.Address() != "10.0.0.9" {
		t.Errorf("address = %q", m.Address())
	}
	if n := len(ml.waitAttempts(t, 2)); n != 2 {
		t.Errorf("connect attempts = %d, want 2", n)
	}
}

func TestManager_AwaitReadyNotStarted(t *testing.T) {
	m := New(&fakeLink{}, Options{})
	defer m.Close()

	if _, err := m.AwaitReady(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("err = %v, want ErrNotStarted", err)
	}
}

// stalledLink starts but never completes a connect.
type stalledLink struct{}

func (stalledLink) Start(_ context.Context, notify link.Notify) error {
	go notify(link.Event{Kind: link.EventStarted})
	return nil
}
func (stalledLink) Connect(context.Context, uint64) {}
func (stalledLink) Close() error                    { return nil }

func TestManager_AwaitReadyContext(t *testing.T) {
	m := New(stalledLink{}, Options{MaxRetry: 1})
	defer m.Close()

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	s, err := m.AwaitReady(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if s != Connecting {
		t.Errorf("state = %s, want connecting", s)
	}
}

func TestManager_StartError(t *testing.T) {
	boom := errors.New("radio off")
	m := New(&fakeLink{startErr: boom}, Options{})
	defer m.Close()

	if err := m.Start(context.Background()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestManager_PublishesTransitions(t *testing.T) {
	bus := events.NewBus(64)

	var mu sync.Mutex
	var states []string
	bus.Subscribe(func(e events.Event) {
		if p, ok := events.GetLinkStatePayload(e); ok {
			mu.Lock()
			states = append(states, p.State)
			mu.Unlock()
		}
	}, events.EventLinkState)

	fl := &fakeLink{script: failures(1)}
	m := New(fl, Options{MaxRetry: 2, Bus: bus})

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := await(t, m); got != Ready {
		t.Fatalf("state = %s, want ready", got)
	}
	m.Close()
	bus.Close()

	want := []string{"idle", "connecting", "retrying", "connecting", "ready"}
	mu.Lock()
	defer mu.Unlock()
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states = %v, want %v", states, want)
		}
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		Idle:       "idle",
		Connecting: "connecting",
		Retrying:   "retrying",
		Ready:      "ready",
		Failed:     "failed",
		State(9):   "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
