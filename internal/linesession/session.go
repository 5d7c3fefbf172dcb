// Package linesession turns a raw byte stream into edited prompt lines with local
// echo. It is the console's line discipline: the terminal runs in raw mode, so
// erase, terminators and the length bound are handled here.
package linesession

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrInterrupted is returned by ReadLine when the user presses Ctrl-C.
var ErrInterrupted = errors.New("linesession: interrupted")

const (
	// DefaultCapacity is the line buffer size; at most Capacity-1 bytes are kept.
	DefaultCapacity = 256
	// DefaultPrompt is written by Prompt.
	DefaultPrompt = "> "
)

const (
	keyETX = 0x03 // Ctrl-C
	keyEOT = 0x04 // Ctrl-D
	keyBS  = 0x08
	keyLF  = '\n'
	keyCR  = '\r'
	keyDEL = 0x7f
)

var (
	echoNewline = []byte("\r\n")
	echoErase   = []byte("\b \b")
)

// Options configures a Session.
type Options struct {
	Capacity int
	Prompt   string
}

// Session accumulates bytes into a bounded line. It is not safe for concurrent use.
type Session struct {
	r      io.Reader
	echo   io.Writer
	prompt string

	buf []byte
	cap int
	one [1]byte
	eof bool
}

// New creates a Session reading from r and echoing to echo.
func New(r io.Reader, echo io.Writer, opts Options) *Session {
	if opts.Capacity < 2 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	return &Session{
		r:      r,
		echo:   echo,
		prompt: opts.Prompt,
		buf:    make([]byte, 0, opts.Capacity),
		cap:    opts.Capacity,
	}
}

// Prompt writes the prompt marker.
func (s *Session) Prompt() error {
	if _, err := io.WriteString(s.echo, s.prompt); err != nil {
		return fmt.Errorf("write prompt: %w", err)
	}
	return nil
}

// ReadLine blocks until a non-empty line is terminated and returns it. Empty lines
// re-prompt. When the reader ends, a pending line is returned first and io.EOF on
// the next call.
func (s *Session) ReadLine() (string, error) {
	for {
		if s.eof {
			return s.flushAtEOF()
		}

		n, err := s.r.Read(s.one[:])
		if n == 0 {
			if err == nil {
				continue
			}
			if errors.Is(err, io.EOF) {
				s.eof = true
				continue
			}
			return "", fmt.Errorf("read input: %w", err)
		}

		switch b := s.one[0]; b {
		case keyCR, keyLF:
			if err := s.write(echoNewline); err != nil {
				return "", err
			}
			if len(s.buf) == 0 {
				if err := s.Prompt(); err != nil {
					return "", err
				}
				continue
			}
			return s.take(), nil

		case keyBS, keyDEL:
			if len(s.buf) == 0 {
				continue
			}
			s.eraseRune()
			if err := s.write(echoErase); err != nil {
				return "", err
			}

		case keyETX:
			s.buf = s.buf[:0]
			if err := s.write(echoNewline); err != nil {
				return "", err
			}
			return "", ErrInterrupted

		case keyEOT:
			if len(s.buf) == 0 {
				if err := s.write(echoNewline); err != nil {
					return "", err
				}
				return "", io.EOF
			}

		default:
			if len(s.buf) >= s.cap-1 {
				continue
			}
			s.buf = append(s.buf, b)
			if err := s.write(s.one[:]); err != nil {
				return "", err
			}
		}

		if err != nil && errors.Is(err, io.EOF) {
			s.eof = true
		}
	}
}

// Len returns the number of bytes in the pending line.
func (s *Session) Len() int { return len(s.buf) }

// Capacity returns the configured line capacity.
func (s *Session) Capacity() int { return s.cap }

func (s *Session) flushAtEOF() (string, error) {
	if len(s.buf) == 0 {
		return "", io.EOF
	}
	return s.take(), nil
}

func (s *Session) take() string {
	line := string(s.buf)
	s.buf = s.buf[:0]
	return line
}

// eraseRune drops the last UTF-8 sequence, or a single byte when the tail is not
// valid UTF-8.
func (s *Session) eraseRune() {
	_, size := utf8.DecodeLastRune(s.buf)
	if size < 1 {
		size = 1
	}
	s.buf = s.buf[:len(s.buf)-size]
}

func (s *Session) write(p []byte) error {
	if _, err := s.echo.Write(p); err != nil {
		return fmt.Errorf("echo: %w", err)
	}
	return nil
}
