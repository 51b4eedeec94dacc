package cmd

import (
	stderrors "errors"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"osinstall/internal/config"
	"osinstall/internal/errors"
	"osinstall/internal/log"
)

var (
	configPath string
	deviceFlag string

	// exit is replaced in tests.
	exit = os.Exit
)

var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "osinstall installs a base system onto a dedicated disk without supervision",
	Long: `osinstall validates the live environment, lays out a fresh GPT disk
(boot, swap, root, home), asks for a single confirmation and then runs the
full provisioning sequence, stopping at the first failing step.`,
	// SilenceErrors is used to prevent cobra from printing the error,
	// as we handle it ourselves in the Execute function.
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Print the help message if no subcommand is provided
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML or TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&deviceFlag, "device", "", "Target block device, overriding the configuration")
}

// Execute runs the root command and exits with the code matching the error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if stderrors.Is(err, errors.ErrUserAborted) {
			color.Yellow("%v\n", err)
		} else {
			log.Error("%v", err)
		}
		exit(errors.ExitCode(err))
	}
}

// loadSettings layers the configuration sources, with --device last.
var loadSettings = func(path, device string) (config.Settings, error) {
	s, err := config.LoadSettings(path)
	if err != nil {
		return config.Settings{}, errors.E("load config", err)
	}
	if device != "" {
		s.Device = device
	}
	return s, nil
}

func loadConfig(path, device string) (config.InstallConfig, error) {
	s, err := loadSettings(path, device)
	if err != nil {
		return config.InstallConfig{}, err
	}
	cfg, err := s.Resolve()
	if err != nil {
		return config.InstallConfig{}, errors.E("validate config", err)
	}
	return cfg, nil
}
