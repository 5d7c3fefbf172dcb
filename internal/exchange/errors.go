package exchange

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
)

// classifyTransport turns a client or body-read failure into a short cause wrapped
// in ErrTransport.
func classifyTransport(err error) error {
	if err == nil {
		return nil
	}

	var dnsErr *net.DNSError
	var certErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var recordErr tls.RecordHeaderError
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: timeout: %w", ErrTransport, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: canceled: %w", ErrTransport, err)
	case errors.As(err, &dnsErr):
		return fmt.Errorf("%w: dns lookup failed: %w", ErrTransport, err)
	case errors.As(err, &certErr), errors.As(err, &unknownAuthority), errors.As(err, &recordErr):
		return fmt.Errorf("%w: tls error: %w", ErrTransport, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: timeout: %w", ErrTransport, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "timeout", "deadline exceeded"):
		return fmt.Errorf("%w: timeout: %w", ErrTransport, err)
	case containsAny(msg, "tls", "x509", "certificate"):
		return fmt.Errorf("%w: tls error: %w", ErrTransport, err)
	case containsAny(msg, "connection", "eof", "dial", "refused", "reset", "broken pipe"):
		return fmt.Errorf("%w: connection error: %w", ErrTransport, err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
