// Package heartbeat publishes the liveness and link state of a running chat
// session to a status file, and reads it back for the status command.
package heartbeat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dohr-michael/groqlink/internal/events"
)

// Status is the liveness of the process owning a status file.
type Status string

const (
	StatusAlive Status = "alive"
	StatusStale Status = "stale"
	StatusDead  Status = "dead"
)

// DefaultInterval is the rewrite period of a Writer.
const DefaultInterval = 10 * time.Second

// LinkReport is the connectivity part of a report.
type LinkReport struct {
	State   string    `json:"state"`
	Retries int       `json:"retries"`
	Address string    `json:"address,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Since   time.Time `json:"since"`
}

// Report is the content of the status file.
type Report struct {
	PID       int        `json:"pid"`
	Model     string     `json:"model,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	Timestamp time.Time  `json:"timestamp"`
	Uptime    string     `json:"uptime"`
	Link      LinkReport `json:"link"`
}

// Writer rewrites the status file periodically and whenever the link changes state.
type Writer struct {
	path     string
	model    string
	interval time.Duration
	source   func() LinkReport
	started  time.Time

	mu      sync.Mutex
	wmu     sync.Mutex
	stopped bool // guarded by wmu
	cancel  context.CancelFunc
	done    chan struct{}
	unsub   func()
}

// NewWriter creates a Writer for path. source is polled for the link state on
// every write. A non-positive interval uses DefaultInterval.
func NewWriter(path, model string, interval time.Duration, source func() LinkReport) *Writer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Writer{path: path, model: model, interval: interval, source: source}
}

// Start writes the file immediately and then every interval. When bus is non-nil
// each link.state event triggers an extra write.
func (w *Writer) Start(bus *events.Bus) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return
	}

	w.wmu.Lock()
	w.started = time.Now()
	w.stopped = false
	w.wmu.Unlock()
	w.done = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.write()
	if bus != nil {
		w.unsub = bus.Subscribe(func(events.Event) { w.write() }, events.EventLinkState)
	}

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.write()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts writing and removes the file.
func (w *Writer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel == nil {
		return
	}
	if w.unsub != nil {
		w.unsub()
		w.unsub = nil
	}
	w.cancel()
	<-w.done
	w.cancel = nil

	// A link.state delivery already in flight must not recreate the file.
	w.wmu.Lock()
	w.stopped = true
	os.Remove(w.path)
	w.wmu.Unlock()
}

func (w *Writer) write() {
	w.wmu.Lock()
	defer w.wmu.Unlock()

	if w.stopped {
		return
	}

	r := Report{
		PID:       os.Getpid(),
		Model:     w.model,
		StartedAt: w.started,
		Timestamp: time.Now(),
		Uptime:    time.Since(w.started).Truncate(time.Second).String(),
	}
	if w.source != nil {
		r.Link = w.source()
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		slog.Debug("status dir", "error", err)
		return
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Debug("status write", "error", err)
		return
	}
	os.Rename(tmp, w.path)
}

// Check reads a status file. A missing file is StatusDead; a file older than
// maxAge is StatusStale.
func Check(path string, maxAge time.Duration) (Status, *Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StatusDead, nil, nil
		}
		return StatusDead, nil, fmt.Errorf("read status: %w", err)
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return StatusDead, nil, fmt.Errorf("unmarshal status: %w", err)
	}

	if time.Since(r.Timestamp) > maxAge {
		return StatusStale, &r, nil
	}
	return StatusAlive, &r, nil
}
