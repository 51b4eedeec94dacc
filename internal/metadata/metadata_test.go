package metadata

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"osinstall/internal/config"
	"osinstall/internal/partition"
	"osinstall/internal/pipeline"
)

func TestSaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	cfg := config.InstallConfig{Device: "/dev/sda", BootMiB: 512, SwapMiB: 2048, RootMiB: 18432}
	r := New("run-1", cfg.Device, started)
	r.RecordPlan(partition.Compute(cfg), 30000)
	r.RecordResult(pipeline.Result{
		Index: 2,
		Label: "Formatting partitions",
		Cause: stderrors.New("mkfs failed"),
		Steps: []pipeline.StepRecord{
			{Index: 1, Label: "Partitioning disk", Duration: 1500 * time.Millisecond},
			{Index: 2, Label: "Formatting partitions", Duration: 250 * time.Millisecond, Err: stderrors.New("mkfs failed")},
		},
	})
	r.Finish(StatusFailed, stderrors.New("step 2 failed"), started.Add(2*time.Second))

	if err := Save(dir, r); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := Load(dir, "run-1")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if got.Status != StatusFailed || got.FailedStep != 2 || got.Error != "step 2 failed" {
		t.Errorf("Load() status fields = %q/%d/%q", got.Status, got.FailedStep, got.Error)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if len(got.Partitions) != 4 {
		t.Fatalf("got %d partitions, want 4", len(got.Partitions))
	}
	home := got.Partitions[3]
	if home.Device != "/dev/sda4" || home.StartMiB != 20992 || home.EndMiB != partition.Remainder {
		t.Errorf("home partition = %+v", home)
	}
	if len(got.Steps) != 2 || got.Steps[0].DurationMS != 1500 || got.Steps[1].Error != "mkfs failed" {
		t.Errorf("steps = %+v", got.Steps)
	}
	if got.Steps[0].Error != "" {
		t.Errorf("successful step has error %q", got.Steps[0].Error)
	}
}

func TestRecordTwice(t *testing.T) {
	cfg := config.InstallConfig{Device: "/dev/vda", BootMiB: 1, SwapMiB: 1, RootMiB: 1}
	r := New("run-2", cfg.Device, time.Now())
	r.RecordPlan(partition.Compute(cfg), 0)
	r.RecordPlan(partition.Compute(cfg), 0)
	if len(r.Partitions) != 4 {
		t.Errorf("RecordPlan twice left %d partitions, want 4", len(r.Partitions))
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("not found", func(t *testing.T) {
		if _, err := Load(dir, "missing"); !os.IsNotExist(err) {
			t.Errorf("Load() error = %v, want not-exist", err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(dir, "bad"); err == nil {
			t.Error("Load() of malformed report did not return an error")
		}
	})
}
