package exchange

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel causes, one per failure kind. Result.Err wraps exactly one of them.
var (
	ErrTransport         = errors.New("transport error")
	ErrMalformedResponse = errors.New("malformed response")
	ErrMissingField      = errors.New("missing field")
	ErrInputOverflow     = errors.New("prompt exceeds request budget")
)

// Kind classifies the outcome of an exchange.
type Kind int

const (
	KindText Kind = iota
	KindTransportError
	KindMalformedResponse
	KindMissingField
	KindInputOverflow
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindTransportError:
		return "transport_error"
	case KindMalformedResponse:
		return "malformed_response"
	case KindMissingField:
		return "missing_field"
	case KindInputOverflow:
		return "input_overflow"
	default:
		return "unknown"
	}
}

// Usage is the token accounting reported by the API, when present.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Result is the outcome of one exchange.
type Result struct {
	Kind Kind
	// Text is the answer, set only for KindText.
	Text string
	// Err is the failure cause, nil for KindText.
	Err error
	// Status is the HTTP status code, zero when no response was received.
	Status int
	Usage  Usage
	// Received and Dropped count response body bytes kept and discarded.
	Received int
	Dropped  int
	// PromptTruncated is set when the prompt was shortened to fit the request budget.
	PromptTruncated bool
}

// OK reports whether the exchange produced an answer.
func (r Result) OK() bool { return r.Kind == KindText }

// Describe returns the one-line console rendering of a failed result.
func (r Result) Describe() string {
	switch r.Kind {
	case KindText:
		return r.Text
	case KindTransportError:
		cause := "unknown error"
		if r.Err != nil {
			cause = strings.TrimPrefix(r.Err.Error(), ErrTransport.Error()+": ")
		}
		return "Request failed: " + cause
	case KindMalformedResponse:
		return "Invalid JSON response"
	case KindMissingField:
		if errors.Is(r.Err, errNoContent) {
			return "No content received"
		}
		line := "No choices found"
		if detail := apiDetail(r.Err); detail != "" {
			line += " (" + detail + ")"
		}
		return line
	case KindInputOverflow:
		return "Prompt exceeds request budget"
	default:
		return "Request failed: unknown result"
	}
}

var (
	errNoChoices = fmt.Errorf("%w: no choices found", ErrMissingField)
	errNoContent = fmt.Errorf("%w: no content received", ErrMissingField)
)

// apiError carries the HTTP status and API error message alongside a missing field.
type apiError struct {
	cause   error
	status  int
	message string
}

func (e *apiError) Error() string {
	return e.cause.Error() + " (" + e.detail() + ")"
}

func (e *apiError) Unwrap() error { return e.cause }

func (e *apiError) detail() string {
	var parts []string
	if e.status != 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.status))
	}
	if e.message != "" {
		parts = append(parts, e.message)
	}
	return strings.Join(parts, ": ")
}

func apiDetail(err error) string {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.detail()
	}
	return ""
}
