// Package sessions stores the transcript of each interactive run: one directory per
// run with meta.json and an append-only entries.jsonl.
package sessions

import "time"

// Status is the lifecycle state of a transcript.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// EntryKind distinguishes the lines of a transcript.
type EntryKind string

const (
	EntryPrompt  EntryKind = "prompt"
	EntryAnswer  EntryKind = "answer"
	EntryFailure EntryKind = "failure"
)

// TokenUsage is cumulative token consumption.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Transcript is the metadata of one run.
type Transcript struct {
	ID         string     `json:"id"`
	Model      string     `json:"model,omitempty"`
	Address    string     `json:"address,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Status     Status     `json:"status"`
	Prompts    int        `json:"prompts"`
	Failures   int        `json:"failures"`
	TokenUsage TokenUsage `json:"token_usage"`
}

// Entry is a single transcript line.
type Entry struct {
	Kind    EntryKind `json:"kind"`
	Content string    `json:"content"`
	Ts      time.Time `json:"ts"`

	// Set on answers and failures.
	Result     string     `json:"result,omitempty"`
	DurationMs float64    `json:"duration_ms,omitempty"`
	Usage      TokenUsage `json:"usage,omitzero"`
}

// Store persists transcripts.
type Store interface {
	Create(model, address string) (*Transcript, error)
	Get(id string) (*Transcript, error)
	List() ([]*Transcript, error)
	Record(id string, e Entry) error
	Entries(id string) ([]Entry, error)
	Close(id string) error
}
