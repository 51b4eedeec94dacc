package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

// DefaultInterval is how often the spinner reporter polls a running step.
const DefaultInterval = 100 * time.Millisecond

// maxLineWidth bounds the log excerpt shown next to the spinner.
const maxLineWidth = 60

// LineSource supplies the most recent line of command output.
type LineSource interface {
	Latest() string
}

// Spinner animates the running step with its elapsed time and the last
// line its commands printed.
type Spinner struct {
	out      io.Writer
	lines    LineSource
	interval time.Duration
	s        *spinner.Spinner

	prefix string
}

// NewSpinner returns an animated reporter. lines may be nil.
func NewSpinner(out io.Writer, lines LineSource) *Spinner {
	if out == nil {
		out = color.Output
	}
	return &Spinner{
		out:      out,
		lines:    lines,
		interval: DefaultInterval,
		s:        spinner.New(spinner.CharSets[9], DefaultInterval, spinner.WithWriter(out)),
	}
}

func (r *Spinner) Interval() time.Duration {
	return r.interval
}

func (r *Spinner) Start(index, total int, label string) {
	r.prefix = fmt.Sprintf(" %s %s", color.CyanString(counter(index, total)), label)
	r.s.Suffix = r.suffix(0)
	r.s.Start()
}

func (r *Spinner) Frame(elapsed time.Duration) {
	suffix := r.suffix(elapsed)
	r.s.Lock()
	r.s.Suffix = suffix
	r.s.Unlock()
}

// Finish stops the animation and prints the status itself; the spinner
// never draws on a non-terminal writer.
func (r *Spinner) Finish(index, total int, label string, err error) {
	r.s.Stop()
	fmt.Fprintln(r.out, status(index, total, label, err))
}

func (r *Spinner) suffix(elapsed time.Duration) string {
	text := fmt.Sprintf("%s (%s)", r.prefix, elapsed.Truncate(time.Second))
	if r.lines == nil {
		return text
	}
	if line := r.lines.Latest(); line != "" {
		text += " " + color.New(color.Faint).Sprint(truncate(line, maxLineWidth))
	}
	return text
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
