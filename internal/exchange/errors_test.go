package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
)

func TestClassifyTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), "timeout"},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.groq.com"}, "dns lookup failed"},
		{"refused", errors.New("dial tcp 127.0.0.1:1: connect: connection refused"), "connection error"},
		{"tls", errors.New("tls: handshake failure"), "tls error"},
		{"other", errors.New("something odd"), "something odd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyTransport(tt.err)
			if !errors.Is(err, ErrTransport) {
				t.Fatalf("err = %v does not wrap ErrTransport", err)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("cause lost: %v", err)
			}
			if !strings.HasPrefix(err.Error(), "transport error: "+tt.want) {
				t.Errorf("err = %q, want prefix %q", err, tt.want)
			}
		})
	}
	if classifyTransport(nil) != nil {
		t.Error("nil error should stay nil")
	}
}
