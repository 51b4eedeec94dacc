package runner

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"osinstall/internal/log"
)

// outputTail is how much trailing output a Failure keeps.
const outputTail = 4096

var (
	// execCommand is a variable to allow mocking of exec.Command in tests
	execCommand = exec.Command
)

// Output executes name with args and returns its trimmed stdout.
var Output = func(name string, args ...string) (string, error) {
	cmd := execCommand(name, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("%s: %w: %s", cmd.String(), err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("%s: %w", cmd.String(), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Invocation describes one external process call.
type Invocation struct {
	Name string
	Args []string
	// Stdin is written to the process. It is never logged.
	Stdin string
	// AppendTo, when set, receives the process's stdout in append mode.
	AppendTo string
}

// Cmd builds an Invocation.
func Cmd(name string, args ...string) Invocation {
	return Invocation{Name: name, Args: args}
}

// WithStdin returns a copy of i that feeds s on standard input.
func (i Invocation) WithStdin(s string) Invocation {
	i.Stdin = s
	return i
}

// AppendingTo returns a copy of i whose stdout is appended to path.
func (i Invocation) AppendingTo(path string) Invocation {
	i.AppendTo = path
	return i
}

// String renders the invocation for logs. Stdin content is not shown.
func (i Invocation) String() string {
	var b strings.Builder
	b.WriteString(i.Name)
	for _, a := range i.Args {
		b.WriteByte(' ')
		if a == "" || strings.ContainsAny(a, " \t\n'\"$") {
			b.WriteString(fmt.Sprintf("%q", a))
		} else {
			b.WriteString(a)
		}
	}
	if i.Stdin != "" {
		b.WriteString(" < (stdin)")
	}
	if i.AppendTo != "" {
		b.WriteString(" >> " + i.AppendTo)
	}
	return b.String()
}

// Failure describes the invocation that broke a chain.
type Failure struct {
	// Index is the 0-based position of the invocation in the chain.
	Index      int
	Invocation Invocation
	ExitCode   int
	Output     string
	Err        error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("command failed (%v): %s", f.Err, f.Invocation)
	if out := strings.TrimSpace(f.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Result is the outcome of a chain.
type Result struct {
	// Ran counts the invocations that were started.
	Ran     int
	Failure *Failure
}

// Err returns the failure as an error, or nil.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

// Runner executes invocations, copying their output to Output and
// recording each one on Logger.
type Runner struct {
	Output io.Writer
	Logger *logrus.Entry
	// Echo, when set, is called with each invocation just before it starts.
	Echo func(Invocation)
}

// New returns a Runner. Either argument may be nil.
func New(output io.Writer, logger *logrus.Entry) *Runner {
	if output == nil {
		output = io.Discard
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Runner{Output: output, Logger: logger}
}

// Chain runs the invocations in order and stops at the first one that
// fails to start or exits non-zero.
func (r *Runner) Chain(invs ...Invocation) Result {
	var res Result
	for i, inv := range invs {
		res.Ran++
		if f := r.run(inv); f != nil {
			f.Index = i
			res.Failure = f
			return res
		}
	}
	return res
}

func (r *Runner) run(inv Invocation) *Failure {
	entry := r.Logger.WithField("command", inv.String())
	entry.Info("running")
	if r.Echo != nil {
		r.Echo(inv)
	}

	tail := &tailBuffer{max: outputTail}
	combined := io.MultiWriter(r.Output, tail)

	cmd := execCommand(inv.Name, inv.Args...)
	cmd.Stdout = combined
	cmd.Stderr = combined
	if inv.Stdin != "" {
		cmd.Stdin = strings.NewReader(inv.Stdin)
	}

	if inv.AppendTo != "" {
		f, err := os.OpenFile(inv.AppendTo, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			entry.WithError(err).Error("cannot open output file")
			return &Failure{Invocation: inv, ExitCode: -1, Err: err}
		}
		defer f.Close()
		cmd.Stdout = f
	}

	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		entry.WithError(err).WithField("exit_code", code).Error("command failed")
		return &Failure{Invocation: inv, ExitCode: code, Output: tail.String(), Err: err}
	}

	entry.Debug("command succeeded")
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
