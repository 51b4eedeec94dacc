package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"osinstall/internal/config"
	"osinstall/internal/confirm"
	"osinstall/internal/log"
	"osinstall/internal/partition"
	"osinstall/internal/preflight"
	"osinstall/internal/steps"
)

var (
	planCommands  bool
	skipPreflight bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Shows what install would do without touching the disk",
	Long: `Prints the effective settings and the partition layout. With --commands
every command of every step is listed as well. Preflight checks run unless
--skip-preflight is given, in which case the size of the last partition is
not known.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath, deviceFlag)
		if err != nil {
			return err
		}

		var capacityMiB int64
		if !skipPreflight {
			validator := &preflight.Validator{
				Probes: preflight.NewSystem(),
				Passed: func(check, detail string) { log.Info("%s: %s", check, detail) },
			}
			rep, err := validator.Validate(cfg)
			if err != nil {
				return err
			}
			capacityMiB = rep.CapacityMiB
		}

		plan := partition.Compute(cfg)
		out := cmd.OutOrStdout()
		if err := confirm.Summary(out, cfg, plan, capacityMiB); err != nil {
			return err
		}
		if planCommands {
			printCommands(out, cfg, plan)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().BoolVar(&planCommands, "commands", false, "List every command each step runs")
	planCmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Do not probe the environment")
}

func printCommands(w io.Writer, cfg config.InstallConfig, plan partition.Plan) {
	defs := steps.Definitions(cfg, plan)
	for i, d := range defs {
		fmt.Fprintf(w, "\n%s %s (%s)\n", color.CyanString("[%d/%d]", i+1, len(defs)), d.Label, d.ID)
		for _, inv := range d.Invocations {
			fmt.Fprintf(w, "    %s\n", inv)
		}
	}
}
