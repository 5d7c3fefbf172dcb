package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// LINK EVENTS
// =============================================================================

type LinkStatePayload struct {
	State   string `json:"state"`
	Retries int    `json:"retries"`
	Address string `json:"address,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (LinkStatePayload) EventType() EventType { return EventLinkState }

// =============================================================================
// CONSOLE EVENTS
// =============================================================================

type PromptSubmittedPayload struct {
	Content string `json:"content"`
}

func (PromptSubmittedPayload) EventType() EventType { return EventPromptSubmitted }

// =============================================================================
// EXCHANGE EVENTS
// =============================================================================

type ExchangeRequestPayload struct {
	Model     string `json:"model"`
	URL       string `json:"url"`
	BodyBytes int    `json:"body_bytes"`
	Truncated bool   `json:"truncated,omitempty"`
}

func (ExchangeRequestPayload) EventType() EventType { return EventExchangeRequest }

type ExchangeResponsePayload struct {
	Model         string        `json:"model"`
	Kind          string        `json:"kind"`
	Status        int           `json:"status,omitempty"`
	ReceivedBytes int           `json:"received_bytes"`
	DroppedBytes  int           `json:"dropped_bytes,omitempty"`
	TokensInput   int           `json:"tokens_input,omitempty"`
	TokensOutput  int           `json:"tokens_output,omitempty"`
	Duration      time.Duration `json:"duration"`
	Error         string        `json:"error,omitempty"`
}

func (ExchangeResponsePayload) EventType() EventType { return EventExchangeResponse }

// =============================================================================
// SESSION EVENTS
// =============================================================================

type SessionPayload struct {
	Model string `json:"model,omitempty"`
}

// SessionPayload is shared by created and closed events, so the type is set by the constructor.
func (SessionPayload) EventType() EventType { return EventSessionCreated }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return NewTypedEventWithSession(source, payload, "")
}

func NewTypedEventWithSession(source EventSource, payload EventPayload, sessionID string) Event {
	return Event{
		ID:        generateEventID(),
		SessionID: sessionID,
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

// NewSessionClosedEvent builds a session.closed event.
func NewSessionClosedEvent(source EventSource, payload SessionPayload, sessionID string) Event {
	e := NewTypedEventWithSession(source, payload, sessionID)
	e.Type = EventSessionClosed
	return e
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}

func GetLinkStatePayload(e Event) (LinkStatePayload, bool) {
	return ExtractPayload[LinkStatePayload](e)
}

func GetExchangeResponsePayload(e Event) (ExchangeResponsePayload, bool) {
	return ExtractPayload[ExchangeResponsePayload](e)
}
