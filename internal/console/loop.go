// Package console is the interactive front end: the raw byte transport, the
// output renderer and the loop that gates prompts on link readiness.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dohr-michael/groqlink/internal/connectivity"
	"github.com/dohr-michael/groqlink/internal/events"
	"github.com/dohr-michael/groqlink/internal/exchange"
	"github.com/dohr-michael/groqlink/internal/linesession"
	"github.com/dohr-michael/groqlink/internal/sessions"
)

// ErrConnectivity is returned when the link cannot be made ready. No prompt is
// accepted after it.
var ErrConnectivity = errors.New("console: link could not be established")

// Readiness is the view of the connectivity manager the loop needs.
type Readiness interface {
	Start(ctx context.Context) error
	AwaitReady(ctx context.Context) (connectivity.State, error)
	Snapshot() connectivity.Snapshot
}

// LineReader yields edited prompt lines.
type LineReader interface {
	Prompt() error
	ReadLine() (string, error)
}

// Exchanger sends one prompt and returns the outcome.
type Exchanger interface {
	Send(ctx context.Context, prompt string) exchange.Result
	Model() string
}

// Loop drives line, exchange and render once the link is ready.
type Loop struct {
	Lines    LineReader
	Exchange Exchanger
	Link     Readiness
	Renderer *Renderer

	// History, when set, receives a transcript of the run.
	History sessions.Store
	// Bus, when set, receives prompt and session events.
	Bus *events.Bus
	// Now defaults to time.Now.
	Now func() time.Time

	transcript string
}

// Run connects, then serves prompts until the input ends. It returns nil when the
// user leaves (EOF or Ctrl-C) and ErrConnectivity when the link fails.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.connect(ctx); err != nil {
		return err
	}

	ctx = l.openTranscript(ctx)
	defer l.closeTranscript()

	for {
		if err := l.Renderer.Break(); err != nil {
			return err
		}
		if err := l.Lines.Prompt(); err != nil {
			return err
		}
		line, err := l.Lines.ReadLine()
		if errors.Is(err, io.EOF) || errors.Is(err, linesession.ErrInterrupted) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read prompt: %w", err)
		}

		if err := l.Serve(ctx, line); err != nil {
			return err
		}
	}
}

// Once connects, serves a single line and returns its result. It is the
// non-interactive form of Run.
func (l *Loop) Once(ctx context.Context, line string) (exchange.Result, error) {
	if err := l.connect(ctx); err != nil {
		return exchange.Result{}, err
	}

	ctx = l.openTranscript(ctx)
	defer l.closeTranscript()

	return l.serve(ctx, line)
}

// Serve handles one submitted line: echo, readiness check, exchange and render.
// Only a connectivity failure is returned; exchange failures are rendered.
func (l *Loop) Serve(ctx context.Context, line string) error {
	_, err := l.serve(ctx, line)
	return err
}

func (l *Loop) serve(ctx context.Context, line string) (exchange.Result, error) {
	if err := l.Renderer.Question(line); err != nil {
		return exchange.Result{}, err
	}
	l.publish(ctx, events.PromptSubmittedPayload{Content: line})
	l.record(sessions.Entry{Kind: sessions.EntryPrompt, Content: line})

	if err := l.ensureReady(ctx); err != nil {
		return exchange.Result{}, err
	}

	start := l.now()
	res := l.Exchange.Send(ctx, line)
	elapsed := l.now().Sub(start)

	if err := l.Renderer.Result(res); err != nil {
		return res, err
	}
	if err := l.Renderer.Elapsed(elapsed); err != nil {
		return res, err
	}

	entry := sessions.Entry{
		Kind:       sessions.EntryAnswer,
		Content:    res.Text,
		Result:     res.Kind.String(),
		DurationMs: float64(elapsed) / float64(time.Millisecond),
		Usage: sessions.TokenUsage{
			Input:  res.Usage.PromptTokens,
			Output: res.Usage.CompletionTokens,
		},
	}
	if !res.OK() {
		entry.Kind = sessions.EntryFailure
		entry.Content = res.Describe()
	}
	l.record(entry)
	return res, nil
}

// connect starts the link and blocks until the first cycle resolves.
func (l *Loop) connect(ctx context.Context) error {
	if err := l.Link.Start(ctx); err != nil {
		return fmt.Errorf("start link: %w", err)
	}
	_ = l.Renderer.Notice("Connecting...")

	state, err := l.Link.AwaitReady(ctx)
	if err != nil {
		return fmt.Errorf("await link: %w", err)
	}
	if state != connectivity.Ready {
		return l.fail()
	}

	snap := l.Link.Snapshot()
	_ = l.Renderer.Notice("Connected (" + snap.Address + ")")
	return nil
}

// ensureReady waits for the current cycle when the link has left Ready.
func (l *Loop) ensureReady(ctx context.Context) error {
	if l.Link.Snapshot().State == connectivity.Ready {
		return nil
	}
	slog.Info("link not ready, waiting before send")

	state, err := l.Link.AwaitReady(ctx)
	if err != nil {
		return fmt.Errorf("await link: %w", err)
	}
	if state != connectivity.Ready {
		return l.fail()
	}
	return nil
}

func (l *Loop) fail() error {
	snap := l.Link.Snapshot()
	_ = l.Renderer.ConnectivityFailure(snap.Retries, snap.Reason)
	return fmt.Errorf("%w: %s", ErrConnectivity, snap.Reason)
}

func (l *Loop) openTranscript(ctx context.Context) context.Context {
	if l.History == nil {
		return ctx
	}
	t, err := l.History.Create(l.Exchange.Model(), l.Link.Snapshot().Address)
	if err != nil {
		slog.Warn("transcript disabled", "error", err)
		return ctx
	}
	l.transcript = t.ID
	ctx = events.ContextWithSessionID(ctx, t.ID)
	l.publish(ctx, events.SessionPayload{Model: l.Exchange.Model()})
	return ctx
}

func (l *Loop) closeTranscript() {
	if l.transcript == "" {
		return
	}
	if err := l.History.Close(l.transcript); err != nil {
		slog.Warn("close transcript", "id", l.transcript, "error", err)
	}
	if l.Bus != nil {
		l.Bus.Publish(events.NewSessionClosedEvent(events.SourceConsole,
			events.SessionPayload{Model: l.Exchange.Model()}, l.transcript))
	}
	l.transcript = ""
}

func (l *Loop) record(e sessions.Entry) {
	if l.transcript == "" {
		return
	}
	if err := l.History.Record(l.transcript, e); err != nil {
		slog.Warn("record transcript", "id", l.transcript, "error", err)
	}
}

func (l *Loop) publish(ctx context.Context, payload events.EventPayload) {
	if l.Bus == nil {
		return
	}
	l.Bus.Publish(events.NewTypedEventWithSession(events.SourceConsole, payload, events.SessionIDFromContext(ctx)))
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}
