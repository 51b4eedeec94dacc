// Package preflight verifies the live environment before anything is
// written to disk.
package preflight

import (
	"fmt"
	"strconv"
	"time"

	"osinstall/internal/config"
	"osinstall/internal/errors"
	"osinstall/internal/netutil"
	"osinstall/internal/runner"
	"osinstall/internal/util"
)

// Check names, in the order they run.
const (
	CheckBlockDevice = "block-device"
	CheckCapacity    = "capacity"
	CheckNetwork     = "network"
	CheckUEFI        = "uefi"
	CheckClock       = "clock"
)

// DefaultEFIVarsPath exists only when the firmware booted in UEFI mode.
const DefaultEFIVarsPath = "/sys/firmware/efi/efivars"

// Probes reads the environment. Implementations must not modify it.
type Probes interface {
	IsBlockDevice(path string) (bool, error)
	CapacityBytes(path string) (int64, error)
	Reachable(address string) error
	UEFI() bool
	ClockSynchronized() (bool, error)
}

// Report is what a passing validation learned about the target.
type Report struct {
	CapacityMiB int64
	RequiredMiB int64
}

// Validator runs the checks in order and stops at the first failure.
type Validator struct {
	Probes Probes
	// Passed, when set, is called after each check succeeds.
	Passed func(check, detail string)
}

// Validate returns a *errors.ValidationError for the first unmet condition.
func (v *Validator) Validate(cfg config.InstallConfig) (Report, error) {
	var rep Report

	isBlock, err := v.Probes.IsBlockDevice(cfg.Device)
	if err != nil {
		return rep, fail(CheckBlockDevice, "cannot access %s: %v", cfg.Device, err)
	}
	if !isBlock {
		return rep, fail(CheckBlockDevice, "%s is not a block device", cfg.Device)
	}
	v.pass(CheckBlockDevice, cfg.Device)

	capBytes, err := v.Probes.CapacityBytes(cfg.Device)
	if err != nil {
		return rep, fail(CheckCapacity, "cannot read size of %s: %v", cfg.Device, err)
	}
	rep.CapacityMiB = util.BytesToMiB(capBytes)
	rep.RequiredMiB = cfg.RequiredMiB()
	if !Fits(rep.RequiredMiB, rep.CapacityMiB, cfg.AllowExactFit) {
		return rep, fail(CheckCapacity, "insufficient capacity on %s: required %d MiB (boot %d + swap %d + root %d + margin %d), available %d MiB",
			cfg.Device, rep.RequiredMiB, cfg.BootMiB, cfg.SwapMiB, cfg.RootMiB, config.SafetyMarginMiB, rep.CapacityMiB)
	}
	v.pass(CheckCapacity, fmt.Sprintf("%d MiB available, %d MiB required", rep.CapacityMiB, rep.RequiredMiB))

	if err := v.Probes.Reachable(cfg.NetworkProbe); err != nil {
		return rep, fail(CheckNetwork, "no network connectivity: %v", err)
	}
	v.pass(CheckNetwork, cfg.NetworkProbe)

	if !v.Probes.UEFI() {
		return rep, fail(CheckUEFI, "system is not booted in UEFI mode")
	}
	v.pass(CheckUEFI, "UEFI firmware detected")

	synced, err := v.Probes.ClockSynchronized()
	if err != nil {
		return rep, fail(CheckClock, "cannot query time synchronization: %v", err)
	}
	if !synced {
		return rep, fail(CheckClock, "system clock is not synchronized")
	}
	v.pass(CheckClock, "system clock synchronized")

	return rep, nil
}

// Fits reports whether a device of availableMiB can hold requiredMiB.
// Exact equality leaves no room for the home partition and only passes
// when allowExact is set.
func Fits(requiredMiB, availableMiB int64, allowExact bool) bool {
	if allowExact {
		return availableMiB >= requiredMiB
	}
	return availableMiB > requiredMiB
}

func (v *Validator) pass(check, detail string) {
	if v.Passed != nil {
		v.Passed(check, detail)
	}
}

func fail(check, format string, a ...any) error {
	return &errors.ValidationError{Check: check, Reason: fmt.Sprintf(format, a...)}
}

// System probes the running machine.
type System struct {
	EFIVarsPath string
	Timeout     time.Duration
}

// NewSystem returns probes for the local machine.
var NewSystem = func() Probes {
	return &System{EFIVarsPath: DefaultEFIVarsPath, Timeout: 5 * time.Second}
}

func (s *System) IsBlockDevice(path string) (bool, error) {
	return util.IsBlockDevice(path)
}

func (s *System) CapacityBytes(path string) (int64, error) {
	out, err := runner.Output("lsblk", "--bytes", "--nodeps", "--noheadings", "--output", "SIZE", path)
	if err != nil {
		return 0, err
	}
	size, err := strconv.ParseInt(out, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected lsblk output %q: %w", out, err)
	}
	return size, nil
}

func (s *System) Reachable(address string) error {
	return netutil.Reachable(address, s.Timeout)
}

func (s *System) UEFI() bool {
	return util.DirExists(s.EFIVarsPath)
}

func (s *System) ClockSynchronized() (bool, error) {
	out, err := runner.Output("timedatectl", "show", "--property", "NTPSynchronized", "--value")
	if err != nil {
		return false, err
	}
	return out == "yes", nil
}
