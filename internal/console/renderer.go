package console

import (
	"fmt"
	"io"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"

	"github.com/dohr-michael/groqlink/internal/exchange"
)

const (
	bannerTitle = "AI RESPONSE"
	bannerRule  = "------------------------------"
)

var (
	colorAccent = lipgloss.Color("#7C3AED")
	colorMuted  = lipgloss.Color("#6B7280")
	colorError  = lipgloss.Color("#EF4444")
)

// RendererOptions controls optional styling. The zero value prints plain text.
type RendererOptions struct {
	Color    bool
	Markdown bool
	Width    int
}

// Renderer writes the console output contract.
type Renderer struct {
	w     io.Writer
	color bool
	md    *glamour.TermRenderer

	title   lipgloss.Style
	rule    lipgloss.Style
	failure lipgloss.Style
	timing  lipgloss.Style
}

// NewRenderer creates a Renderer writing to w.
func NewRenderer(w io.Writer, opts RendererOptions) *Renderer {
	r := &Renderer{
		w:       w,
		color:   opts.Color,
		title:   lipgloss.NewStyle().Foreground(colorAccent).Bold(true),
		rule:    lipgloss.NewStyle().Foreground(colorMuted),
		failure: lipgloss.NewStyle().Foreground(colorError).Bold(true),
		timing:  lipgloss.NewStyle().Foreground(colorMuted).Italic(true),
	}
	if opts.Markdown {
		width := opts.Width
		if width <= 0 {
			width = 80
		}
		style := "notty"
		if opts.Color {
			style = "dark"
		}
		md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			r.md = md
		}
	}
	return r
}

// Question echoes the submitted line.
func (r *Renderer) Question(line string) error {
	_, err := fmt.Fprintf(r.w, "You asked:\n%s\n", line)
	return err
}

// Result writes the response banner with the answer or a one-line failure.
func (r *Renderer) Result(res exchange.Result) error {
	var body string
	if res.OK() {
		body = r.answer(res.Text)
	} else {
		body = r.style(r.failure, res.Describe())
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(r.style(r.title, bannerTitle))
	b.WriteString("\n")
	b.WriteString(r.style(r.rule, bannerRule))
	b.WriteString("\n")
	b.WriteString(body)
	b.WriteString("\n")
	b.WriteString(r.style(r.rule, bannerRule))
	b.WriteString("\n")

	_, err := io.WriteString(r.w, b.String())
	return err
}

// Elapsed writes the execution time line in milliseconds with two decimals.
func (r *Renderer) Elapsed(d time.Duration) error {
	ms := float64(d) / float64(time.Millisecond)
	_, err := fmt.Fprintf(r.w, "\n%s\n", r.style(r.timing, fmt.Sprintf("[Execution Time] %.2f ms", ms)))
	return err
}

// ConnectivityFailure reports that the link could not be made ready.
func (r *Renderer) ConnectivityFailure(retries int, reason string) error {
	line := fmt.Sprintf("Connection failed after %d retries", retries)
	if reason != "" {
		line += ": " + reason
	}
	_, err := fmt.Fprintf(r.w, "%s\n", r.style(r.failure, line))
	return err
}

// Notice writes an informational line.
func (r *Renderer) Notice(msg string) error {
	_, err := fmt.Fprintf(r.w, "%s\n", r.style(r.rule, msg))
	return err
}

// Break writes the blank line that precedes each prompt.
func (r *Renderer) Break() error {
	_, err := io.WriteString(r.w, "\n")
	return err
}

func (r *Renderer) answer(text string) string {
	if r.md == nil {
		return text
	}
	out, err := r.md.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}
