package cmd

import (
	stderrors "errors"
	"strings"
	"testing"

	"osinstall/internal/errors"
	"osinstall/internal/preflight"
)

func TestPlanCmd(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantContain []string
		wantAbsent  []string
	}{
		{
			name:        "with preflight",
			args:        nil,
			wantContain: []string{"capacity: 30000 MiB available", "/virtual/disk0p4", "[20992, 30000)", "9008 MiB"},
			wantAbsent:  []string{"pacstrap"},
		},
		{
			name:        "skip preflight",
			args:        []string{"--skip-preflight"},
			wantContain: []string{"[20992, end of device)", "rest of disk"},
			wantAbsent:  []string{"capacity:"},
		},
		{
			name: "commands",
			args: []string{"--skip-preflight", "--commands"},
			wantContain: []string{
				"[1/11] Partitioning disk (partition-disk)",
				"parted --script /virtual/disk0 mklabel gpt",
				"pacstrap -K /mnt base linux linux-firmware sudo",
				"genfstab -U /mnt >> /mnt/etc/fstab",
				"arch-chroot /mnt chpasswd < (stdin)",
				"[11/11] Finalizing (finalize)",
			},
			wantAbsent: []string{"s3cr3t"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupMocks(t)

			args := append([]string{"plan", "--config", env.configPath}, tt.args...)
			output, err := executeCommand(rootCmd, args...)
			if err != nil {
				t.Fatalf("plan returned an error: %v", err)
			}
			for _, want := range tt.wantContain {
				if !strings.Contains(output, want) {
					t.Errorf("output does not contain %q:\n%s", want, output)
				}
			}
			for _, absent := range tt.wantAbsent {
				if strings.Contains(output, absent) {
					t.Errorf("output contains %q:\n%s", absent, output)
				}
			}
			if len(env.executor.calls) != 0 {
				t.Errorf("plan ran %d commands, want none", len(env.executor.calls))
			}
		})
	}
}

func TestPlanCmd_PreflightFailure(t *testing.T) {
	env := setupMocks(t)
	preflight.NewSystem = func() preflight.Probes { return fakeProbes{capacityMiB: 20000} }

	_, err := executeCommand(rootCmd, "plan", "--config", env.configPath)
	var ve *errors.ValidationError
	if !stderrors.As(err, &ve) {
		t.Fatalf("plan error = %v, want a ValidationError", err)
	}
	if errors.ExitCode(err) != errors.ExitValidation {
		t.Errorf("ExitCode = %d, want %d", errors.ExitCode(err), errors.ExitValidation)
	}
}
