package pipeline

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Immediate prints one line when a step starts and one when it ends.
type Immediate struct {
	Out io.Writer
}

// NewImmediate returns a reporter writing to out, or to color.Output when
// out is nil.
func NewImmediate(out io.Writer) *Immediate {
	if out == nil {
		out = color.Output
	}
	return &Immediate{Out: out}
}

func (r *Immediate) Start(index, total int, label string) {
	fmt.Fprintf(r.Out, "%s %s...\n", color.CyanString(counter(index, total)), label)
}

func (r *Immediate) Finish(index, total int, label string, err error) {
	fmt.Fprintln(r.Out, status(index, total, label, err))
}

func counter(index, total int) string {
	return fmt.Sprintf("[%d/%d]", index, total)
}

// status is the terminal line shared by every reporter.
func status(index, total int, label string, err error) string {
	if err != nil {
		return fmt.Sprintf("%s %s %s: %s", color.RedString("✖"), counter(index, total), label, color.RedString("FAILED"))
	}
	return fmt.Sprintf("%s %s %s: %s", color.GreenString("✔"), counter(index, total), label, color.GreenString("OK"))
}
