package config

import "time"

// Config is the root configuration for groqlink.
type Config struct {
	Link    LinkConfig    `json:"link"`
	API     APIConfig     `json:"api"`
	Console ConsoleConfig `json:"console"`
	Events  EventsConfig  `json:"events"`
	History HistoryConfig `json:"history"`
}

// LinkConfig configures the network link supervised before any prompt is sent.
type LinkConfig struct {
	Interface         string   `json:"interface,omitempty"` // optional NIC that must be up with an address
	ProbeAddress      string   `json:"probe_address"`       // host:port dialed to acquire an address
	MaxRetry          int      `json:"max_retry"`
	ConnectTimeout    Duration `json:"connect_timeout"`
	RetryBackoff      Duration `json:"retry_backoff"`      // negative: retry immediately
	KeepaliveInterval Duration `json:"keepalive_interval"` // negative: no keepalive probe
}

// APIConfig configures the chat-completion endpoint.
type APIConfig struct {
	URL              string     `json:"url"`
	Model            string     `json:"model"`
	MaxTokens        int        `json:"max_tokens"`
	Timeout          Duration   `json:"timeout"`
	Auth             AuthConfig `json:"auth"`
	RequestBudget    int        `json:"request_budget"`    // max request body size in bytes
	ResponseCapacity int        `json:"response_capacity"` // response buffer size in bytes
	Overflow         string     `json:"overflow"`          // "truncate" or "reject"
}

// AuthConfig configures API key resolution.
type AuthConfig struct {
	APIKey  string `json:"api_key,omitempty"`  // direct key, ${VAR}, ${{ .Env.VAR }} or ENC[age:...]
	KeyFile string `json:"key_file,omitempty"` // age identity used for ENC[age:...] keys
}

// ConsoleConfig configures the interactive console.
type ConsoleConfig struct {
	LineCapacity int    `json:"line_capacity"`
	Prompt       string `json:"prompt"`
	Color        bool   `json:"color"`
	Markdown     bool   `json:"markdown"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size"`
}

// HistoryConfig controls transcript and event log persistence.
type HistoryConfig struct {
	Enabled *bool  `json:"enabled,omitempty"` // default: true
	Dir     string `json:"dir,omitempty"`     // default: $GROQLINK_PATH/sessions
}

// IsEnabled reports whether transcripts are persisted.
func (h HistoryConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
