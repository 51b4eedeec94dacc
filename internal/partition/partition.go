// Package partition computes the fixed four-partition GPT layout.
package partition

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"osinstall/internal/config"
)

// Remainder as an End offset means the partition consumes the rest of the device.
const Remainder int64 = -1

// Role is the purpose of a partition.
type Role string

const (
	Boot Role = "boot"
	Swap Role = "swap"
	Root Role = "root"
	Home Role = "home"
)

// Filesystem is the kind of filesystem a partition carries.
type Filesystem string

const (
	FAT32  Filesystem = "fat32"
	SwapFS Filesystem = "linux-swap"
	Ext4   Filesystem = "ext4"
)

// Spec is one partition. Offsets are MiB; End is exclusive.
type Spec struct {
	Number     int
	Role       Role
	Start      int64
	End        int64
	Filesystem Filesystem
}

// Plan is the ordered layout boot, swap, root, home.
type Plan struct {
	Device string
	Specs  [4]Spec
}

// Compute lays the partitions out back to back from offset 0. It does not
// check the result against the device capacity; preflight already has.
func Compute(cfg config.InstallConfig) Plan {
	swapStart := cfg.BootMiB
	rootStart := swapStart + cfg.SwapMiB
	homeStart := rootStart + cfg.RootMiB

	return Plan{
		Device: cfg.Device,
		Specs: [4]Spec{
			{Number: 1, Role: Boot, Start: 0, End: swapStart, Filesystem: FAT32},
			{Number: 2, Role: Swap, Start: swapStart, End: rootStart, Filesystem: SwapFS},
			{Number: 3, Role: Root, Start: rootStart, End: homeStart, Filesystem: Ext4},
			{Number: 4, Role: Home, Start: homeStart, End: Remainder, Filesystem: Ext4},
		},
	}
}

// ByRole returns the partition with the given role.
func (p Plan) ByRole(r Role) Spec {
	for _, s := range p.Specs {
		if s.Role == r {
			return s
		}
	}
	panic(fmt.Sprintf("partition: no %s partition in plan", r))
}

// DevicePath returns the device node of the partition with role r.
func (p Plan) DevicePath(r Role) string {
	return DevicePath(p.Device, p.ByRole(r).Number)
}

// DevicePath names partition n of device. Devices whose name ends in a
// digit (nvme0n1, mmcblk0, loop0) take a "p" separator.
func DevicePath(device string, n int) string {
	if device != "" && unicode.IsDigit(rune(device[len(device)-1])) {
		return device + "p" + strconv.Itoa(n)
	}
	return device + strconv.Itoa(n)
}

// StartArg renders the start offset for parted. Offset 0 becomes 1MiB so
// the first partition is aligned, which leaves boot one MiB short of its
// configured size.
func (s Spec) StartArg() string {
	if s.Start == 0 {
		return "1MiB"
	}
	return fmt.Sprintf("%dMiB", s.Start)
}

// EndArg renders the end offset for parted.
func (s Spec) EndArg() string {
	if s.End == Remainder {
		return "100%"
	}
	return fmt.Sprintf("%dMiB", s.End)
}

// Extent renders the half-open range, resolving Remainder against the
// device capacity when it is known (capacityMiB > 0).
func (s Spec) Extent(capacityMiB int64) string {
	end := s.End
	if end == Remainder {
		if capacityMiB <= 0 {
			return fmt.Sprintf("[%d, end of device)", s.Start)
		}
		end = capacityMiB
	}
	return fmt.Sprintf("[%d, %d)", s.Start, end)
}

// Size returns the partition size in MiB, resolving Remainder against
// capacityMiB. It returns -1 when the size is unknown.
func (s Spec) Size(capacityMiB int64) int64 {
	if s.End == Remainder {
		if capacityMiB <= 0 {
			return -1
		}
		return capacityMiB - s.Start
	}
	return s.End - s.Start
}

// PartedArgs returns the parted script that writes a fresh GPT label with
// the four partitions and flags the first as the EFI system partition.
func (p Plan) PartedArgs() []string {
	args := []string{"--script", p.Device, "mklabel", "gpt"}
	for _, s := range p.Specs {
		args = append(args, "mkpart", string(s.Role), string(s.Filesystem), s.StartArg(), s.EndArg())
	}
	return append(args, "set", "1", "esp", "on")
}

func (p Plan) String() string {
	parts := make([]string, 0, len(p.Specs))
	for _, s := range p.Specs {
		parts = append(parts, fmt.Sprintf("%s%s", s.Role, s.Extent(0)))
	}
	return p.Device + ": " + strings.Join(parts, " ")
}
