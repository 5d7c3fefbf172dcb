// Package exchange performs one chat-completion round trip per prompt: it builds
// the request within a byte budget, streams the response into a fixed-capacity
// buffer and extracts the answer from the retained JSON.
package exchange

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dohr-michael/groqlink/internal/config"
	"github.com/dohr-michael/groqlink/internal/events"
)

// readChunk is the size of a single body read; each read is one buffer chunk.
const readChunk = 512

// Options configures a Client.
type Options struct {
	URL       string
	Model     string
	MaxTokens int
	// Timeout bounds the whole exchange, body read included.
	Timeout time.Duration
	APIKey  string

	RequestBudget    int
	ResponseCapacity int
	// Overflow is config.OverflowTruncate or config.OverflowReject.
	Overflow string

	Bus        *events.Bus
	HTTPClient *http.Client
}

// Client sends prompts to the chat-completion endpoint. Calls are serialized:
// only one exchange is in flight and the response buffer is never shared.
type Client struct {
	opts Options
	http *http.Client

	mu    sync.Mutex
	buf   *ResponseBuffer
	chunk []byte
}

// New creates a Client. Zero numeric options take the reference defaults.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("exchange: url is required")
	}
	if opts.Model == "" {
		return nil, errors.New("exchange: model is required")
	}
	if opts.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = config.DefaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultTimeout
	}
	if opts.RequestBudget <= 0 {
		opts.RequestBudget = config.DefaultRequestBudget
	}
	if opts.ResponseCapacity <= 0 {
		opts.ResponseCapacity = config.DefaultResponseCapacity
	}
	switch opts.Overflow {
	case "":
		opts.Overflow = config.OverflowTruncate
	case config.OverflowTruncate, config.OverflowReject:
	default:
		return nil, fmt.Errorf("exchange: unknown overflow policy %q", opts.Overflow)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	return &Client{
		opts:  opts,
		http:  hc,
		buf:   NewResponseBuffer(opts.ResponseCapacity),
		chunk: make([]byte, readChunk),
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.opts.Model }

// Send performs one exchange. It never retries; every failure is reported as a
// Result kind rather than an error.
func (c *Client) Send(ctx context.Context, prompt string) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	res := c.send(ctx, prompt)
	c.report(ctx, res, time.Since(start))
	return res
}

func (c *Client) send(ctx context.Context, prompt string) Result {
	body, truncated, err := fitBody(c.opts.Model, prompt, c.opts.MaxTokens,
		c.opts.RequestBudget, c.opts.Overflow == config.OverflowTruncate)
	if err != nil {
		if errors.Is(err, ErrInputOverflow) {
			return Result{Kind: KindInputOverflow, Err: err}
		}
		return Result{Kind: KindTransportError, Err: fmt.Errorf("%w: %w", ErrTransport, err)}
	}
	if truncated {
		slog.Warn("prompt truncated to fit request budget", "budget", c.opts.RequestBudget, "prompt_bytes", len(prompt))
	}
	c.publish(ctx, events.ExchangeRequestPayload{
		Model:     c.opts.Model,
		URL:       c.opts.URL,
		BodyBytes: len(body),
		Truncated: truncated,
	})

	c.buf.Reset()

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Kind: KindTransportError, Err: fmt.Errorf("%w: %w", ErrTransport, err), PromptTruncated: truncated}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Kind: KindTransportError, Err: classifyTransport(err), PromptTruncated: truncated}
	}
	defer resp.Body.Close()

	if err := c.drain(resp.Body); err != nil {
		return Result{
			Kind:            KindTransportError,
			Err:             classifyTransport(err),
			Status:          resp.StatusCode,
			Received:        c.buf.Len(),
			Dropped:         c.buf.Dropped(),
			PromptTruncated: truncated,
		}
	}
	if c.buf.Truncated() {
		slog.Warn("response exceeded buffer", "capacity", c.buf.Capacity(), "dropped", c.buf.Dropped())
	}

	res := parseResponse(c.buf.Bytes(), resp.StatusCode)
	res.Status = resp.StatusCode
	res.Received = c.buf.Len()
	res.Dropped = c.buf.Dropped()
	res.PromptTruncated = truncated
	return res
}

// drain streams r into the response buffer one read at a time until EOF.
func (c *Client) drain(r io.Reader) error {
	for {
		n, err := r.Read(c.chunk)
		if n > 0 {
			c.buf.Write(c.chunk[:n])
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// parseResponse extracts choices[0].message.content from data.
func parseResponse(data []byte, status int) Result {
	if !gjson.ValidBytes(data) {
		return Result{
			Kind: KindMalformedResponse,
			Err:  fmt.Errorf("%w: %d bytes are not valid JSON", ErrMalformedResponse, len(data)),
		}
	}

	root := gjson.ParseBytes(data)
	usage := Usage{
		PromptTokens:     int(root.Get("usage.prompt_tokens").Int()),
		CompletionTokens: int(root.Get("usage.completion_tokens").Int()),
	}

	choices := root.Get("choices")
	if !choices.IsArray() {
		ae := &apiError{cause: errNoChoices, message: root.Get("error.message").String()}
		if status < 200 || status > 299 {
			ae.status = status
		}
		var err error = errNoChoices
		if ae.status != 0 || ae.message != "" {
			err = ae
		}
		return Result{Kind: KindMissingField, Err: err, Usage: usage}
	}

	content := choices.Get("0.message.content")
	if content.Type != gjson.String {
		return Result{Kind: KindMissingField, Err: errNoContent, Usage: usage}
	}
	return Result{Kind: KindText, Text: content.String(), Usage: usage}
}

func (c *Client) report(ctx context.Context, res Result, elapsed time.Duration) {
	attrs := []any{
		"kind", res.Kind.String(),
		"status", res.Status,
		"received", res.Received,
		"duration", elapsed,
	}
	if res.OK() {
		slog.Debug("exchange complete", attrs...)
	} else {
		slog.Info("exchange failed", append(attrs, "error", res.Err)...)
	}

	p := events.ExchangeResponsePayload{
		Model:         c.opts.Model,
		Kind:          res.Kind.String(),
		Status:        res.Status,
		ReceivedBytes: res.Received,
		DroppedBytes:  res.Dropped,
		TokensInput:   res.Usage.PromptTokens,
		TokensOutput:  res.Usage.CompletionTokens,
		Duration:      elapsed,
	}
	if res.Err != nil {
		p.Error = res.Err.Error()
	}
	c.publish(ctx, p)
}

func (c *Client) publish(ctx context.Context, payload events.EventPayload) {
	if c.opts.Bus == nil {
		return
	}
	c.opts.Bus.Publish(events.NewTypedEventWithSession(events.SourceExchange, payload, events.SessionIDFromContext(ctx)))
}
