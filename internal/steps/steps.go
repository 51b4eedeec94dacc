// Package steps defines the provisioning sequence that turns an empty disk
// into a bootable system.
package steps

import (
	"fmt"
	"path"

	"osinstall/internal/config"
	"osinstall/internal/partition"
	"osinstall/internal/pipeline"
	"osinstall/internal/runner"
)

// Step ids in run order.
const (
	PartitionDisk       = "partition-disk"
	FormatPartitions    = "format-partitions"
	MountPartitions     = "mount-partitions"
	InstallBaseSystem   = "install-base-system"
	GenerateFstab       = "generate-fstab"
	ConfigureSystem     = "configure-system"
	InstallBootloader   = "install-bootloader"
	InstallNetworkStack = "install-network-stack"
	SetRootCredential   = "set-root-credential"
	CreateAdminUser     = "create-admin-user"
	Finalize            = "finalize"
)

const (
	loaderConf = `default arch.conf
timeout 3
console-mode max
editor no
`
	bootEntry = `title   Arch Linux
linux   /vmlinuz-linux
initrd  /initramfs-linux.img
`
	bootEntryPath = "/boot/loader/entries/arch.conf"
)

// Definition is one step and the commands it runs.
type Definition struct {
	ID          string
	Label       string
	Invocations []runner.Invocation
}

// Executor runs a chain of invocations.
type Executor interface {
	Chain(invs ...runner.Invocation) runner.Result
}

// Definitions returns the full sequence for cfg and plan. Every value the
// commands need is fixed here, before anything runs.
func Definitions(cfg config.InstallConfig, plan partition.Plan) []Definition {
	mp := cfg.MountPoint
	boot := plan.DevicePath(partition.Boot)
	swap := plan.DevicePath(partition.Swap)
	root := plan.DevicePath(partition.Root)
	home := plan.DevicePath(partition.Home)

	chroot := func(name string, args ...string) runner.Invocation {
		return runner.Cmd("arch-chroot", append([]string{mp, name}, args...)...)
	}
	write := func(file, contents string) runner.Invocation {
		return chroot("tee", file).WithStdin(contents)
	}
	appendTo := func(file, contents string) runner.Invocation {
		return chroot("tee", "-a", file).WithStdin(contents)
	}

	return []Definition{
		{
			ID:    PartitionDisk,
			Label: "Partitioning disk",
			Invocations: []runner.Invocation{
				runner.Cmd("wipefs", "--all", "--force", plan.Device),
				runner.Cmd("parted", plan.PartedArgs()...),
				runner.Cmd("partprobe", plan.Device),
			},
		},
		{
			ID:    FormatPartitions,
			Label: "Formatting partitions",
			Invocations: []runner.Invocation{
				runner.Cmd("mkfs.fat", "-F32", boot),
				runner.Cmd("mkswap", swap),
				runner.Cmd("mkfs.ext4", "-F", root),
				runner.Cmd("mkfs.ext4", "-F", home),
			},
		},
		{
			ID:    MountPartitions,
			Label: "Mounting partitions",
			Invocations: []runner.Invocation{
				runner.Cmd("mount", root, mp),
				runner.Cmd("mkdir", "-p", path.Join(mp, "boot"), path.Join(mp, "home")),
				runner.Cmd("mount", boot, path.Join(mp, "boot")),
				runner.Cmd("mount", home, path.Join(mp, "home")),
				runner.Cmd("swapon", swap),
			},
		},
		{
			ID:          InstallBaseSystem,
			Label:       "Installing base system",
			Invocations: []runner.Invocation{runner.Cmd("pacstrap", append([]string{"-K", mp}, cfg.BasePackages...)...)},
		},
		{
			ID:          GenerateFstab,
			Label:       "Generating fstab",
			Invocations: []runner.Invocation{runner.Cmd("genfstab", "-U", mp).AppendingTo(path.Join(mp, "etc", "fstab"))},
		},
		{
			ID:    ConfigureSystem,
			Label: "Configuring system",
			Invocations: []runner.Invocation{
				chroot("ln", "-sf", path.Join("/usr/share/zoneinfo", cfg.Timezone), "/etc/localtime"),
				chroot("hwclock", "--systohc"),
				appendTo("/etc/locale.gen", cfg.LocaleGenEntry()+"\n"),
				chroot("locale-gen"),
				write("/etc/locale.conf", "LANG="+cfg.Locale+"\n"),
				write("/etc/vconsole.conf", "KEYMAP="+cfg.Keymap+"\n"),
				write("/etc/hostname", cfg.Hostname+"\n"),
				write("/etc/hosts", hostsFile(cfg.Hostname)),
			},
		},
		{
			ID:    InstallBootloader,
			Label: "Installing bootloader",
			Invocations: []runner.Invocation{
				chroot("bootctl", "install"),
				write("/boot/loader/loader.conf", loaderConf),
				write(bootEntryPath, bootEntry),
				chroot("sh", "-c", fmt.Sprintf(`echo "options root=PARTUUID=$(blkid -s PARTUUID -o value %s) rw" >> %s`, root, bootEntryPath)),
			},
		},
		{
			ID:    InstallNetworkStack,
			Label: "Installing network stack",
			Invocations: []runner.Invocation{
				chroot("pacman", "-S", "--noconfirm", "--needed", "networkmanager"),
				chroot("systemctl", "enable", "NetworkManager"),
			},
		},
		{
			ID:          SetRootCredential,
			Label:       "Setting root password",
			Invocations: []runner.Invocation{chroot("chpasswd").WithStdin("root:" + cfg.RootPassword + "\n")},
		},
		{
			ID:          CreateAdminUser,
			Label:       "Creating admin user",
			Invocations: adminUser(cfg, chroot, appendTo, write),
		},
		{
			ID:    Finalize,
			Label: "Finalizing",
			Invocations: []runner.Invocation{
				runner.Cmd("umount", "-R", mp),
				runner.Cmd("swapoff", swap),
			},
		},
	}
}

type invFunc func(name string, args ...string) runner.Invocation
type fileFunc func(file, contents string) runner.Invocation

func adminUser(cfg config.InstallConfig, chroot invFunc, appendTo, write fileFunc) []runner.Invocation {
	u := cfg.Username
	invs := []runner.Invocation{
		chroot("useradd", "-m", "-G", cfg.UserGroup, "-s", cfg.UserShell, u),
		chroot("chpasswd").WithStdin(u + ":" + cfg.UserPassword + "\n"),
		appendTo("/etc/sudoers", "%"+cfg.UserGroup+" ALL=(ALL:ALL) ALL\n"),
	}
	if cfg.AuthorizedKey == "" {
		return invs
	}

	sshDir := path.Join("/home", u, ".ssh")
	return append(invs,
		chroot("pacman", "-S", "--noconfirm", "--needed", "openssh"),
		chroot("systemctl", "enable", "sshd"),
		chroot("install", "-d", "-m", "0700", sshDir),
		write(path.Join(sshDir, "authorized_keys"), cfg.AuthorizedKey+"\n"),
		chroot("chmod", "0600", path.Join(sshDir, "authorized_keys")),
		chroot("chown", "-R", u+":", sshDir),
	)
}

func hostsFile(hostname string) string {
	return fmt.Sprintf("127.0.0.1\tlocalhost\n::1\t\tlocalhost\n127.0.1.1\t%s.localdomain\t%s\n", hostname, hostname)
}

// Build turns definitions into pipeline steps that run on ex. The
// definitions are copied so later changes to defs do not leak in.
func Build(defs []Definition, ex Executor) []pipeline.Step {
	out := make([]pipeline.Step, len(defs))
	for i, d := range defs {
		invs := append([]runner.Invocation(nil), d.Invocations...)
		out[i] = pipeline.Step{
			Label: d.Label,
			Action: func() error {
				return ex.Chain(invs...).Err()
			},
		}
	}
	return out
}
