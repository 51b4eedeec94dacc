// Package metadata records what each installation run did.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"osinstall/internal/partition"
	"osinstall/internal/pipeline"
)

// Run outcomes.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusRejected  = "rejected"
	StatusAborted   = "aborted"
	StatusFailed    = "failed"
)

type Partition struct {
	Number     int    `json:"number"`
	Role       string `json:"role"`
	Device     string `json:"device"`
	Filesystem string `json:"filesystem"`
	StartMiB   int64  `json:"start_mib"`
	// EndMiB is -1 for the partition that fills the rest of the disk.
	EndMiB int64 `json:"end_mib"`
}

type Step struct {
	Index      int    `json:"index"`
	Label      string `json:"label"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Report is written to <log_dir>/<run_id>.json.
type Report struct {
	RunID       string      `json:"run_id"`
	Device      string      `json:"device"`
	Status      string      `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at,omitempty"`
	CapacityMiB int64       `json:"capacity_mib,omitempty"`
	Partitions  []Partition `json:"partitions,omitempty"`
	Steps       []Step      `json:"steps,omitempty"`
	FailedStep  int         `json:"failed_step,omitempty"`
	Error       string      `json:"error,omitempty"`
	LogFile     string      `json:"log_file,omitempty"`
}

// New starts a report for a run.
func New(runID, device string, started time.Time) *Report {
	return &Report{RunID: runID, Device: device, Status: StatusRunning, StartedAt: started.UTC()}
}

// RecordPlan stores the layout that was applied.
func (r *Report) RecordPlan(plan partition.Plan, capacityMiB int64) {
	r.CapacityMiB = capacityMiB
	r.Partitions = r.Partitions[:0]
	for _, s := range plan.Specs {
		r.Partitions = append(r.Partitions, Partition{
			Number:     s.Number,
			Role:       string(s.Role),
			Device:     partition.DevicePath(plan.Device, s.Number),
			Filesystem: string(s.Filesystem),
			StartMiB:   s.Start,
			EndMiB:     s.End,
		})
	}
}

// RecordResult stores per-step timings and the failed step, if any.
func (r *Report) RecordResult(res pipeline.Result) {
	r.Steps = r.Steps[:0]
	for _, s := range res.Steps {
		step := Step{Index: s.Index, Label: s.Label, DurationMS: s.Duration.Milliseconds()}
		if s.Err != nil {
			step.Error = s.Err.Error()
		}
		r.Steps = append(r.Steps, step)
	}
	r.FailedStep = res.Index
}

// Finish sets the terminal status.
func (r *Report) Finish(status string, err error, at time.Time) {
	r.Status = status
	r.FinishedAt = at.UTC()
	if err != nil {
		r.Error = err.Error()
	}
}

func path(dir, runID string) string {
	return filepath.Join(dir, runID+".json")
}

// Save writes the report to dir.
var Save = func(dir string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	return os.WriteFile(path(dir, r.RunID), data, 0644)
}

// Load reads the report of runID from dir.
var Load = func(dir, runID string) (*Report, error) {
	data, err := os.ReadFile(path(dir, runID))
	if err != nil {
		return nil, err
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run report %s: %w", runID, err)
	}
	return &r, nil
}
