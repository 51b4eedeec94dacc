package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"osinstall/internal/config"
	"osinstall/internal/confirm"
	"osinstall/internal/errors"
	"osinstall/internal/log"
	"osinstall/internal/logwatcher"
	"osinstall/internal/metadata"
	"osinstall/internal/partition"
	"osinstall/internal/pidfile"
	"osinstall/internal/pipeline"
	"osinstall/internal/preflight"
	"osinstall/internal/runner"
	"osinstall/internal/steps"
)

// Progress styles accepted by --progress.
const (
	progressAuto    = "auto"
	progressPlain   = "plain"
	progressSpinner = "spinner"
)

var (
	progressMode string

	pidFilePath = config.DefaultPIDFile

	newExecutor = func(output io.Writer, logger *logrus.Entry, echo func(runner.Invocation)) steps.Executor {
		r := runner.New(output, logger)
		r.Echo = echo
		return r
	}
	isTerminal = func() bool {
		return term.IsTerminal(int(os.Stdout.Fd()))
	}
	newRunID = func() string {
		return uuid.NewString()
	}
	now = time.Now
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Erases the target device and installs the system",
	Long: `Runs the preflight checks, shows the settings and partition layout, and
after an explicit 'yes' repartitions the device and provisions the system.
Every command's output is kept in <log_dir>/<run-id>.log and a summary of
the run in <log_dir>/<run-id>.json.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkProgressMode(progressMode); err != nil {
			return err
		}
		cfg, err := loadConfig(configPath, deviceFlag)
		if err != nil {
			return err
		}
		return install(cmd.InOrStdin(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
	installCmd.Flags().StringVar(&progressMode, "progress", progressAuto, "Progress style: 'auto', 'plain' or 'spinner'")
}

func checkProgressMode(mode string) error {
	switch mode {
	case progressAuto, progressPlain, progressSpinner:
		return nil
	}
	return fmt.Errorf("invalid --progress %q: must be one of %s, %s, %s", mode, progressAuto, progressPlain, progressSpinner)
}

func install(in io.Reader, cfg config.InstallConfig) (err error) {
	release, err := pidfile.Acquire(pidFilePath)
	if err != nil {
		return errors.E("acquire run lock", err)
	}
	defer release()

	runID := newRunID()
	fileLog, logFile, err := log.OpenFile(cfg.LogDir, runID)
	if err != nil {
		return errors.E("open run log", err)
	}
	defer logFile.Close()

	report := metadata.New(runID, cfg.Device, now())
	report.LogFile = logFile.Name()
	fileLog.WithField("device", cfg.Device).Info("installation started")
	defer func() {
		status := runStatus(err)
		report.Finish(status, err, now())
		if serr := metadata.Save(cfg.LogDir, report); serr != nil {
			log.Warn("could not write run report: %v", serr)
		}
		entry := fileLog.WithField("status", status)
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Info("installation finished")
	}()

	log.Title("osinstall run %s", runID)

	log.Step("Running preflight checks")
	validator := &preflight.Validator{
		Probes: preflight.NewSystem(),
		Passed: func(check, detail string) {
			log.Info("%s: %s", check, detail)
			fileLog.WithFields(logrus.Fields{"check": check, "detail": detail}).Info("preflight check passed")
		},
	}
	pre, err := validator.Validate(cfg)
	if err != nil {
		return err
	}

	plan := partition.Compute(cfg)
	report.RecordPlan(plan, pre.CapacityMiB)
	fileLog.WithField("plan", plan.String()).Info("partition plan computed")

	log.Step("Review")
	if err := confirm.New(in, color.Output).Confirm(cfg, plan, pre.CapacityMiB); err != nil {
		return err
	}

	log.Step("Installing to %s", cfg.Device)
	plain := usePlain(progressMode)
	reporter, stop := newReporter(plain, logFile.Name())
	defer stop()

	// The spinner owns the terminal line, so commands are echoed only in plain mode.
	var echo func(runner.Invocation)
	if plain {
		echo = func(inv runner.Invocation) { log.Command(inv) }
	}
	executor := newExecutor(logFile, fileLog, echo)
	res := pipeline.New(reporter, steps.Build(steps.Definitions(cfg, plan), executor)...).
		WithLogger(fileLog).
		Run()
	report.RecordResult(res)
	if err := res.Err(); err != nil {
		log.Warn("%s was left as the last successful step produced it", cfg.Device)
		log.Info("Command log: %s", logFile.Name())
		return err
	}

	log.Title("Installation complete. Remove the installation media and reboot.")
	return nil
}

func usePlain(mode string) bool {
	return mode == progressPlain || (mode == progressAuto && !isTerminal())
}

// newReporter picks the status reporter. The returned func releases
// whatever the reporter needed.
func newReporter(plain bool, logPath string) (pipeline.StatusReporter, func()) {
	if plain {
		return pipeline.NewImmediate(color.Output), func() {}
	}

	follower, err := logwatcher.Follow(logPath, isLogRecord)
	if err != nil {
		log.Warn("could not follow %s: %v", logPath, err)
		return pipeline.NewSpinner(color.Output, nil), func() {}
	}
	return pipeline.NewSpinner(color.Output, follower), func() { follower.Stop() }
}

// isLogRecord matches the structured entries in the command log so the
// spinner only shows raw command output.
func isLogRecord(line string) bool {
	return strings.HasPrefix(line, "time=")
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return metadata.StatusSucceeded
	case stderrors.Is(err, errors.ErrUserAborted):
		return metadata.StatusAborted
	}
	var ve *errors.ValidationError
	if stderrors.As(err, &ve) {
		return metadata.StatusRejected
	}
	return metadata.StatusFailed
}
