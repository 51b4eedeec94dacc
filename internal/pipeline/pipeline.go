// Package pipeline runs provisioning steps one after another and reports
// their progress.
package pipeline

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"osinstall/internal/errors"
	"osinstall/internal/log"
)

// Step is a labelled unit of work.
type Step struct {
	Label  string
	Action func() error
}

// StatusReporter is told when each step starts and how it ended.
// index is 1-based.
type StatusReporter interface {
	Start(index, total int, label string)
	Finish(index, total int, label string, err error)
}

// Animator is a StatusReporter that redraws while a step is in flight.
// When the pipeline's reporter implements it, actions run in a separate
// goroutine and Frame is called every Interval until the action returns.
type Animator interface {
	StatusReporter
	Interval() time.Duration
	Frame(elapsed time.Duration)
}

// StepRecord is the outcome of one executed step.
type StepRecord struct {
	Index    int
	Label    string
	Duration time.Duration
	Err      error
}

// Result summarizes a run. Index and Label name the failed step and are
// zero when every step completed.
type Result struct {
	Completed int
	Index     int
	Label     string
	Cause     error
	Steps     []StepRecord
}

// Failed reports whether the run stopped early.
func (r Result) Failed() bool {
	return r.Cause != nil
}

// Err returns a *errors.StepFailure for a failed run and nil otherwise.
func (r Result) Err() error {
	if r.Cause == nil {
		return nil
	}
	return &errors.StepFailure{Index: r.Index, Label: r.Label, Err: r.Cause}
}

// Pipeline is an ordered, immutable list of steps.
type Pipeline struct {
	steps    []Step
	reporter StatusReporter
	logger   *logrus.Entry
	now      func() time.Time
}

// New copies steps into a pipeline. A nil reporter reports nothing.
func New(reporter StatusReporter, steps ...Step) *Pipeline {
	if reporter == nil {
		reporter = Silent{}
	}
	return &Pipeline{
		steps:    append([]Step(nil), steps...),
		reporter: reporter,
		logger:   log.Discard(),
		now:      time.Now,
	}
}

// WithLogger records step boundaries on logger.
func (p *Pipeline) WithLogger(logger *logrus.Entry) *Pipeline {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// Len returns the number of steps.
func (p *Pipeline) Len() int {
	return len(p.steps)
}

// Labels returns the step labels in run order.
func (p *Pipeline) Labels() []string {
	labels := make([]string, len(p.steps))
	for i, s := range p.steps {
		labels[i] = s.Label
	}
	return labels
}

// Run executes the steps in order and stops at the first failure. Steps
// after a failure are never started. There is no retry and no rollback.
func (p *Pipeline) Run() Result {
	var res Result
	total := len(p.steps)

	for i, step := range p.steps {
		index := i + 1
		entry := p.logger.WithFields(logrus.Fields{"step": step.Label, "index": index})
		entry.Info("step started")
		p.reporter.Start(index, total, step.Label)

		started := p.now()
		err := p.execute(step)
		elapsed := p.now().Sub(started)
		res.Steps = append(res.Steps, StepRecord{
			Index:    index,
			Label:    step.Label,
			Duration: elapsed,
			Err:      err,
		})

		p.reporter.Finish(index, total, step.Label, err)
		entry = entry.WithField("duration", elapsed.Round(time.Millisecond).String())
		if err != nil {
			entry.WithError(err).Error("step failed")
			res.Index = index
			res.Label = step.Label
			res.Cause = err
			return res
		}
		entry.Info("step finished")
		res.Completed++
	}
	return res
}

func (p *Pipeline) execute(step Step) error {
	anim, ok := p.reporter.(Animator)
	if !ok {
		return invoke(step.Action)
	}

	done := make(chan error, 1)
	go func() {
		done <- invoke(step.Action)
	}()

	started := p.now()
	ticker := time.NewTicker(anim.Interval())
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			anim.Frame(p.now().Sub(started))
		}
	}
}

// invoke runs action and reports a panic as an error.
func invoke(action func() error) (err error) {
	if action == nil {
		return fmt.Errorf("step has no action")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return action()
}

// Silent discards all progress.
type Silent struct{}

func (Silent) Start(int, int, string)         {}
func (Silent) Finish(int, int, string, error) {}
