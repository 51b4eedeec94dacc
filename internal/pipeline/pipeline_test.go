package pipeline

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osinstall/internal/errors"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type event struct {
	kind  string
	index int
	label string
	err   error
}

type recorder struct {
	events []event
}

func (r *recorder) Start(index, total int, label string) {
	r.events = append(r.events, event{kind: "start", index: index, label: label})
}

func (r *recorder) Finish(index, total int, label string, err error) {
	r.events = append(r.events, event{kind: "finish", index: index, label: label, err: err})
}

type animRecorder struct {
	recorder
	mu     sync.Mutex
	frames int
}

func (a *animRecorder) Interval() time.Duration { return time.Millisecond }

func (a *animRecorder) Frame(time.Duration) {
	a.mu.Lock()
	a.frames++
	a.mu.Unlock()
}

func (a *animRecorder) frameCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames
}

func mockSteps(n, failAt int, ran *[]int) []Step {
	steps := make([]Step, n)
	for i := range steps {
		index := i + 1
		steps[i] = Step{
			Label: fmt.Sprintf("step-%d", index),
			Action: func() error {
				*ran = append(*ran, index)
				if index == failAt {
					return stderrors.New("mock failure")
				}
				return nil
			},
		}
	}
	return steps
}

func TestRun_StopsAtFailure(t *testing.T) {
	reporters := map[string]func() StatusReporter{
		"immediate": func() StatusReporter { return &recorder{} },
		"animated":  func() StatusReporter { return &animRecorder{} },
	}

	for name, newReporter := range reporters {
		t.Run(name, func(t *testing.T) {
			var ran []int
			rep := newReporter()
			res := New(rep, mockSteps(5, 3, &ran)...).Run()

			assert.Equal(t, []int{1, 2, 3}, ran, "steps after the failure must not run")
			assert.True(t, res.Failed())
			assert.Equal(t, 2, res.Completed)
			assert.Equal(t, 3, res.Index)
			assert.Equal(t, "step-3", res.Label)
			assert.EqualError(t, res.Cause, "mock failure")
			require.Len(t, res.Steps, 3)
			assert.Error(t, res.Steps[2].Err)

			err := res.Err()
			var sf *errors.StepFailure
			require.True(t, stderrors.As(err, &sf))
			assert.Equal(t, 3, sf.Index)
			assert.Equal(t, errors.ExitStepFailure, errors.ExitCode(err))
		})
	}
}

func TestRun_ReportsEachStep(t *testing.T) {
	var ran []int
	rep := &recorder{}
	New(rep, mockSteps(5, 3, &ran)...).Run()

	want := []event{
		{"start", 1, "step-1", nil},
		{"finish", 1, "step-1", nil},
		{"start", 2, "step-2", nil},
		{"finish", 2, "step-2", nil},
		{"start", 3, "step-3", nil},
	}
	require.Len(t, rep.events, 6)
	assert.Equal(t, want, rep.events[:5])
	assert.Equal(t, "finish", rep.events[5].kind)
	assert.Equal(t, 3, rep.events[5].index)
	assert.Error(t, rep.events[5].err)
}

func TestRun_AllSucceed(t *testing.T) {
	var ran []int
	res := New(nil, mockSteps(4, 0, &ran)...).Run()

	assert.False(t, res.Failed())
	assert.NoError(t, res.Err())
	assert.Equal(t, 4, res.Completed)
	assert.Zero(t, res.Index)
	assert.Equal(t, []int{1, 2, 3, 4}, ran)
	assert.Len(t, res.Steps, 4)
}

func TestRun_Empty(t *testing.T) {
	res := New(&recorder{}).Run()
	assert.NoError(t, res.Err())
	assert.Zero(t, res.Completed)
}

func TestNew_CopiesSteps(t *testing.T) {
	var ran []int
	steps := mockSteps(2, 0, &ran)
	p := New(nil, steps...)
	steps[0] = Step{Label: "replaced", Action: func() error { return stderrors.New("should not run") }}

	assert.Equal(t, []string{"step-1", "step-2"}, p.Labels())
	assert.NoError(t, p.Run().Err())
	assert.Equal(t, 2, p.Len())
}

func TestRun_AnimatorJoinsBeforeFinish(t *testing.T) {
	rep := &animRecorder{}
	finished := false
	step := Step{
		Label: "slow",
		Action: func() error {
			time.Sleep(30 * time.Millisecond)
			finished = true
			return nil
		},
	}

	res := New(rep, step).Run()
	require.NoError(t, res.Err())
	assert.True(t, finished, "action must complete before Run returns")
	assert.Greater(t, rep.frameCount(), 0, "animator should have been polled while the step ran")
	assert.Equal(t, "finish", rep.events[len(rep.events)-1].kind)
}

func TestRun_PanicBecomesFailure(t *testing.T) {
	for _, rep := range []StatusReporter{&recorder{}, &animRecorder{}} {
		res := New(rep, Step{Label: "boom", Action: func() error { panic("bad step") }}).Run()
		require.Error(t, res.Err())
		assert.Contains(t, res.Err().Error(), "bad step")
	}
}

func TestRun_NilAction(t *testing.T) {
	res := New(nil, Step{Label: "empty"}).Run()
	assert.Error(t, res.Err())
}

func TestImmediate(t *testing.T) {
	out := new(bytes.Buffer)
	rep := NewImmediate(out)

	var ran []int
	New(rep, mockSteps(3, 2, &ran)...).Run()

	got := out.String()
	assert.Contains(t, got, "[1/3] step-1...")
	assert.Contains(t, got, "✔ [1/3] step-1: OK")
	assert.Contains(t, got, "✖ [2/3] step-2: FAILED")
	assert.NotContains(t, got, "step-3")
}

type fixedLine string

func (f fixedLine) Latest() string { return string(f) }

func TestSpinner(t *testing.T) {
	out := new(bytes.Buffer)
	rep := NewSpinner(out, fixedLine("==> Retrieving packages..."))
	rep.interval = time.Millisecond

	var ran []int
	res := New(rep, mockSteps(2, 0, &ran)...).Run()
	require.NoError(t, res.Err())

	got := out.String()
	assert.Contains(t, got, "✔ [1/2] step-1: OK")
	assert.Contains(t, got, "✔ [2/2] step-2: OK")
}

func TestSpinner_Suffix(t *testing.T) {
	rep := NewSpinner(new(bytes.Buffer), fixedLine(strings.Repeat("x", 100)))
	rep.Start(4, 11, "Installing base system")
	defer rep.Finish(4, 11, "Installing base system", nil)

	suffix := rep.suffix(83 * time.Second)
	assert.Contains(t, suffix, "[4/11] Installing base system (1m23s)")
	assert.Contains(t, suffix, strings.Repeat("x", maxLineWidth-1)+"…")
	assert.NotContains(t, suffix, strings.Repeat("x", maxLineWidth))

	quiet := NewSpinner(new(bytes.Buffer), nil)
	quiet.Start(1, 1, "Partitioning disk")
	defer quiet.Finish(1, 1, "Partitioning disk", nil)
	assert.Equal(t, " [1/1] Partitioning disk (0s)", quiet.suffix(400*time.Millisecond))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "ééé…", truncate("éééééé", 4))
}

func TestRun_LogsStepBoundaries(t *testing.T) {
	logger, hook := logtest.NewNullLogger()

	var ran []int
	New(nil, mockSteps(3, 2, &ran)...).WithLogger(logrus.NewEntry(logger)).Run()

	entries := hook.AllEntries()
	require.Len(t, entries, 4)
	assert.Equal(t, "step started", entries[0].Message)
	assert.Equal(t, "step-1", entries[0].Data["step"])
	assert.Equal(t, "step finished", entries[1].Message)
	assert.Equal(t, "step failed", entries[3].Message)
	assert.Equal(t, logrus.ErrorLevel, entries[3].Level)
	assert.Equal(t, 2, entries[3].Data["index"])
}
