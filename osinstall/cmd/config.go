package cmd

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"osinstall/internal/errors"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Prints the effective configuration",
	Long: `Prints the configuration that install would use, after layering the
built-in defaults, the configuration file, the environment and --device.
Passwords are masked. The command fails if the result is not valid.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(configPath, deviceFlag)
		if err != nil {
			return err
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(s.Redacted()); err != nil {
			return errors.E("encode config", err)
		}
		if err := enc.Close(); err != nil {
			return errors.E("encode config", err)
		}

		if _, err := s.Resolve(); err != nil {
			return errors.E("validate config", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
