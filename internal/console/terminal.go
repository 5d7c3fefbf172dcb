package console

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Terminal is the console byte transport over the process TTY. When stdin is a
// terminal it is switched to raw mode, so every keystroke reaches the line session
// unprocessed and output newlines are written as CRLF.
type Terminal struct {
	in    *os.File
	tty   *os.File
	out   io.Writer
	state *term.State
}

// OpenTerminal wraps in and out. Raw mode is enabled only when in is a TTY;
// otherwise bytes pass through unchanged (pipes, tests).
func OpenTerminal(in, out *os.File) (*Terminal, error) {
	t := &Terminal{in: in, tty: out, out: out}

	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return t, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("enable raw mode: %w", err)
	}
	t.state = state
	t.out = &crlfWriter{w: out}
	return t, nil
}

// Raw reports whether the terminal is in raw mode.
func (t *Terminal) Raw() bool { return t.state != nil }

// Width returns the terminal width, or 80 when unknown.
func (t *Terminal) Width() int {
	if w, _, err := term.GetSize(int(t.tty.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

func (t *Terminal) Read(p []byte) (int, error)  { return t.in.Read(p) }
func (t *Terminal) Write(p []byte) (int, error) { return t.out.Write(p) }

// Close restores the terminal state.
func (t *Terminal) Close() error {
	if t.state == nil {
		return nil
	}
	err := term.Restore(int(t.in.Fd()), t.state)
	t.state = nil
	if err != nil {
		return fmt.Errorf("restore terminal: %w", err)
	}
	return nil
}

// crlfWriter expands bare LF to CRLF. Raw mode disables the TTY's own output
// post-processing.
type crlfWriter struct {
	w      io.Writer
	prevCR bool
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	out := make([]byte, 0, len(p)+8)
	for _, b := range p {
		if b == '\n' && !c.prevCR {
			out = append(out, '\r')
		}
		out = append(out, b)
		c.prevCR = b == '\r'
	}
	if _, err := c.w.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}
