package heartbeat

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dohr-michael/groqlink/internal/events"
)

func TestWriteReadCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")

	w := NewWriter(path, "llama-3.1-8b-instant", time.Hour, func() LinkReport {
		return LinkReport{State: "ready", Address: "10.0.0.2"}
	})
	w.Start(nil)
	defer w.Stop()

	status, r, err := Check(path, 2*time.Minute)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status != StatusAlive {
		t.Errorf("expected alive, got %s", status)
	}
	if r == nil {
		t.Fatal("expected report, got nil")
	}
	if r.PID != os.Getpid() {
		t.Errorf("PID: got %d, want %d", r.PID, os.Getpid())
	}
	if r.Link.State != "ready" || r.Link.Address != "10.0.0.2" {
		t.Errorf("link = %+v", r.Link)
	}
	if r.Model != "llama-3.1-8b-instant" {
		t.Errorf("model = %q", r.Model)
	}
}

func TestLinkEventTriggersWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	bus := events.NewBus(16)

	var state atomic.Value
	state.Store("connecting")
	w := NewWriter(path, "m", time.Hour, func() LinkReport {
		return LinkReport{State: state.Load().(string)}
	})
	w.Start(bus)
	defer w.Stop()

	state.Store("failed")
	bus.Publish(events.NewTypedEvent(events.SourceConnectivity, events.LinkStatePayload{State: "failed"}))
	bus.Close()

	_, r, err := Check(path, time.Minute)
	if err != nil || r == nil {
		t.Fatalf("Check: %v", err)
	}
	if r.Link.State != "failed" {
		t.Errorf("state = %q, want failed", r.Link.State)
	}
}

func TestStaleDetection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")

	old := Report{
		PID:       os.Getpid(),
		StartedAt: time.Now().Add(-2 * time.Hour),
		Timestamp: time.Now().Add(-1 * time.Hour),
		Uptime:    "1h0m0s",
	}
	data, _ := json.Marshal(old)
	os.WriteFile(path, data, 0o644)

	status, r, err := Check(path, 30*time.Minute)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status != StatusStale {
		t.Errorf("expected stale, got %s", status)
	}
	if r == nil {
		t.Fatal("expected report, got nil")
	}
}

func TestDeadDetection(t *testing.T) {
	status, r, err := Check(filepath.Join(t.TempDir(), "status.json"), 2*time.Minute)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status != StatusDead || r != nil {
		t.Errorf("got %s, %+v", status, r)
	}
}

func TestCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	os.WriteFile(path, []byte("{nope"), 0o644)

	if status, _, err := Check(path, time.Minute); err == nil || status != StatusDead {
		t.Errorf("status = %s, err = %v", status, err)
	}
}

func TestStopRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")

	w := NewWriter(path, "m", 0, nil)
	w.Start(nil)
	w.Stop()
	w.Stop()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected status file to be removed after Stop")
	}
}

func TestLateWriteAfterStopIsIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")

	w := NewWriter(path, "m", time.Hour, nil)
	w.Start(nil)
	w.Stop()

	// A link.state delivery that raced Stop lands here.
	w.write()

	status, _, err := Check(path, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusDead {
		t.Errorf("status = %s, want dead", status)
	}

	// Restarting re-enables writes.
	w.Start(nil)
	defer w.Stop()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected status file after restart: %v", err)
	}
}
