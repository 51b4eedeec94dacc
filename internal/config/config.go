package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"

	"osinstall/internal/util"
)

const (
	// AppName is the name of the application
	AppName = "osinstall"
	// SafetyMarginMiB is the space kept free beyond boot, swap and root.
	SafetyMarginMiB = 100
	// MinBootMiB is the smallest boot partition mkfs.fat can format as FAT32
	// once the first MiB is left for alignment.
	MinBootMiB = 32
	// DefaultPIDFile records the PID of the running installer.
	DefaultPIDFile = "/run/" + AppName + ".pid"

	// Environment overrides, applied after the configuration file.
	EnvDevice       = "OSINSTALL_DEVICE"
	EnvRootPassword = "OSINSTALL_ROOT_PASSWORD"
	EnvUserPassword = "OSINSTALL_USER_PASSWORD"

	masked = "********"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var (
	usernameRe = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)
	hostnameRe = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?$`)
)

// Settings is the raw, user-facing form of the configuration. Sizes are
// strings such as "512M" or "18G".
type Settings struct {
	Device        string   `yaml:"device" toml:"device"`
	BootSize      string   `yaml:"boot_size" toml:"boot_size"`
	SwapSize      string   `yaml:"swap_size" toml:"swap_size"`
	RootSize      string   `yaml:"root_size" toml:"root_size"`
	Timezone      string   `yaml:"timezone" toml:"timezone"`
	Locale        string   `yaml:"locale" toml:"locale"`
	Keymap        string   `yaml:"keymap" toml:"keymap"`
	Hostname      string   `yaml:"hostname" toml:"hostname"`
	RootPassword  string   `yaml:"root_password" toml:"root_password"`
	Username      string   `yaml:"username" toml:"username"`
	UserPassword  string   `yaml:"user_password" toml:"user_password"`
	UserGroup     string   `yaml:"user_group" toml:"user_group"`
	UserShell     string   `yaml:"user_shell" toml:"user_shell"`
	AuthorizedKey string   `yaml:"authorized_key,omitempty" toml:"authorized_key"`
	BasePackages  []string `yaml:"base_packages" toml:"base_packages"`
	MountPoint    string   `yaml:"mount_point" toml:"mount_point"`
	NetworkProbe  string   `yaml:"network_probe" toml:"network_probe"`
	AllowExactFit bool     `yaml:"allow_exact_fit" toml:"allow_exact_fit"`
	LogDir        string   `yaml:"log_dir" toml:"log_dir"`
}

// InstallConfig is the validated configuration. It is passed by value and
// never modified after Resolve returns it.
type InstallConfig struct {
	Device        string
	BootMiB       int64
	SwapMiB       int64
	RootMiB       int64
	Timezone      string
	Locale        string
	Keymap        string
	Hostname      string
	RootPassword  string
	Username      string
	UserPassword  string
	UserGroup     string
	UserShell     string
	AuthorizedKey string
	BasePackages  []string
	MountPoint    string
	NetworkProbe  string
	AllowExactFit bool
	LogDir        string
}

// Defaults returns the settings embedded in the binary.
func Defaults() (Settings, error) {
	var s Settings
	if err := decodeYAML(defaultsYAML, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse embedded defaults: %w", err)
	}
	return s, nil
}

// LoadSettings layers the embedded defaults, the optional file at path
// (YAML or TOML, chosen by extension) and the environment overrides.
func LoadSettings(path string) (Settings, error) {
	s, err := Defaults()
	if err != nil {
		return Settings{}, err
	}

	if path != "" {
		if err := decodeFile(path, &s); err != nil {
			return Settings{}, err
		}
	}

	applyEnv(&s)
	return s, nil
}

// Load is LoadSettings followed by Resolve.
func Load(path string) (InstallConfig, error) {
	s, err := LoadSettings(path)
	if err != nil {
		return InstallConfig{}, err
	}
	return s.Resolve()
}

func decodeFile(path string, s *Settings) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.DecodeFile(path, s)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown keys in %s: %v", path, undecoded)
		}
		return nil
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := decodeYAML(data, s); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported config file extension %q (want .yaml, .yml or .toml)", ext)
	}
}

func decodeYAML(data []byte, s *Settings) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(s)
}

func applyEnv(s *Settings) {
	if v := os.Getenv(EnvDevice); v != "" {
		s.Device = v
	}
	if v := os.Getenv(EnvRootPassword); v != "" {
		s.RootPassword = v
	}
	if v := os.Getenv(EnvUserPassword); v != "" {
		s.UserPassword = v
	}
}

// Resolve validates the settings and converts sizes to MiB.
func (s Settings) Resolve() (InstallConfig, error) {
	if s.Device == "" {
		return InstallConfig{}, fmt.Errorf("device must not be empty")
	}

	boot, err := positiveMiB("boot_size", s.BootSize)
	if err != nil {
		return InstallConfig{}, err
	}
	if boot < MinBootMiB {
		return InstallConfig{}, fmt.Errorf("boot_size must be at least %d MiB, got %q", MinBootMiB, s.BootSize)
	}
	swap, err := positiveMiB("swap_size", s.SwapSize)
	if err != nil {
		return InstallConfig{}, err
	}
	root, err := positiveMiB("root_size", s.RootSize)
	if err != nil {
		return InstallConfig{}, err
	}

	required := [][2]string{
		{"timezone", s.Timezone},
		{"locale", s.Locale},
		{"keymap", s.Keymap},
		{"root_password", s.RootPassword},
		{"user_password", s.UserPassword},
		{"user_group", s.UserGroup},
		{"user_shell", s.UserShell},
		{"mount_point", s.MountPoint},
		{"network_probe", s.NetworkProbe},
		{"log_dir", s.LogDir},
	}
	for _, kv := range required {
		if strings.TrimSpace(kv[1]) == "" {
			return InstallConfig{}, fmt.Errorf("%s must not be empty", kv[0])
		}
	}

	if !hostnameRe.MatchString(s.Hostname) {
		return InstallConfig{}, fmt.Errorf("invalid hostname %q", s.Hostname)
	}
	if !usernameRe.MatchString(s.Username) || s.Username == "root" {
		return InstallConfig{}, fmt.Errorf("invalid username %q", s.Username)
	}
	if !strings.Contains(s.Locale, ".") {
		return InstallConfig{}, fmt.Errorf("locale %q must name a charset, e.g. en_US.UTF-8", s.Locale)
	}
	if !filepath.IsAbs(s.MountPoint) || filepath.Clean(s.MountPoint) == "/" {
		return InstallConfig{}, fmt.Errorf("mount_point %q must be an absolute path other than /", s.MountPoint)
	}
	if len(s.BasePackages) == 0 {
		return InstallConfig{}, fmt.Errorf("base_packages must not be empty")
	}
	if s.AuthorizedKey != "" {
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(s.AuthorizedKey)); err != nil {
			return InstallConfig{}, fmt.Errorf("invalid authorized_key: %w", err)
		}
	}

	return InstallConfig{
		Device:        s.Device,
		BootMiB:       boot,
		SwapMiB:       swap,
		RootMiB:       root,
		Timezone:      s.Timezone,
		Locale:        s.Locale,
		Keymap:        s.Keymap,
		Hostname:      s.Hostname,
		RootPassword:  s.RootPassword,
		Username:      s.Username,
		UserPassword:  s.UserPassword,
		UserGroup:     s.UserGroup,
		UserShell:     s.UserShell,
		AuthorizedKey: strings.TrimSpace(s.AuthorizedKey),
		BasePackages:  append([]string(nil), s.BasePackages...),
		MountPoint:    filepath.Clean(s.MountPoint),
		NetworkProbe:  s.NetworkProbe,
		AllowExactFit: s.AllowExactFit,
		LogDir:        s.LogDir,
	}, nil
}

func positiveMiB(key, value string) (int64, error) {
	mib, err := util.ParseMiB(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if mib <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, value)
	}
	return mib, nil
}

// Redacted returns a copy with credentials replaced, for display.
func (s Settings) Redacted() Settings {
	if s.RootPassword != "" {
		s.RootPassword = masked
	}
	if s.UserPassword != "" {
		s.UserPassword = masked
	}
	s.BasePackages = append([]string(nil), s.BasePackages...)
	return s
}

// RequiredMiB is the capacity the device must offer.
func (c InstallConfig) RequiredMiB() int64 {
	return c.BootMiB + c.SwapMiB + c.RootMiB + SafetyMarginMiB
}

// LocaleGenEntry returns the /etc/locale.gen line enabling the locale,
// e.g. "en_US.UTF-8 UTF-8".
func (c InstallConfig) LocaleGenEntry() string {
	charset := c.Locale[strings.LastIndex(c.Locale, ".")+1:]
	return c.Locale + " " + charset
}

// Fields lists every setting in display order. Credentials are masked.
func (c InstallConfig) Fields() [][2]string {
	sshKey := "none"
	if c.AuthorizedKey != "" {
		sshKey = "provided"
	}
	return [][2]string{
		{"Device", c.Device},
		{"Boot size", fmt.Sprintf("%d MiB", c.BootMiB)},
		{"Swap size", fmt.Sprintf("%d MiB", c.SwapMiB)},
		{"Root size", fmt.Sprintf("%d MiB", c.RootMiB)},
		{"Timezone", c.Timezone},
		{"Locale", c.Locale},
		{"Keymap", c.Keymap},
		{"Hostname", c.Hostname},
		{"Root password", masked},
		{"Admin user", c.Username},
		{"Admin password", masked},
		{"Admin group", c.UserGroup},
		{"Admin shell", c.UserShell},
		{"Admin SSH key", sshKey},
		{"Base packages", strings.Join(c.BasePackages, " ")},
		{"Mount point", c.MountPoint},
	}
}
