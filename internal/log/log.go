// Package log writes the installer's console messages and its per-run log
// file. Console lines go to color.Output so they interleave correctly with
// the step reporters.
package log

import (
	"fmt"

	"github.com/fatih/color"
)

const (
	headingPrefix = "==> "
	itemPrefix    = "  -> "
)

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	infoColor    = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	commandColor = color.New(color.Faint)
)

func emit(c *color.Color, prefix, format string, a ...any) {
	c.Fprintln(color.Output, prefix+fmt.Sprintf(format, a...))
}

// Title prints a top-level heading.
func Title(format string, a ...any) {
	emit(headingColor, headingPrefix, format, a...)
}

// Step opens a phase of the run, separated from the previous one by a blank line.
func Step(format string, a ...any) {
	fmt.Fprintln(color.Output)
	emit(headingColor, headingPrefix, format, a...)
}

func Info(format string, a ...any) {
	emit(infoColor, itemPrefix, format, a...)
}

func Warn(format string, a ...any) {
	emit(warnColor, itemPrefix+"WARNING: ", format, a...)
}

// Error reports a fatal error. It is the last line of a failed run.
func Error(format string, a ...any) {
	emit(errorColor, "ERROR: ", format, a...)
}

// Command echoes an external command line before it runs.
func Command(line fmt.Stringer) {
	emit(commandColor, itemPrefix+"$ ", "%s", line)
}
