package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jward/ipcguard"
)

var flagForce bool

var checkCmd = &cobra.Command{
	Use:   "check [paths...]",
	Short: "Check API surface files for non-serializable types",
	Long:  "Checks one directory, or a list of files, for exported functions whose parameters or return types cannot cross an IPC boundary. Unchanged files replay their stored diagnostics. With no arguments the config directory is checked.",
	Args:  usageArgs(cobra.ArbitraryArgs),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&flagForce, "force", false, "re-check every file, ignoring stored hashes")
}

func runCheck(cmd *cobra.Command, args []string) error {
	start := time.Now()

	e, err := openEngine(ipcguard.WithForce(flagForce))
	if err != nil {
		return err
	}
	defer e.Close()

	dir, files, err := checkTargets(args, e.Config().Dir)
	if err != nil {
		return err
	}

	var report *ipcguard.Report
	if dir != "" {
		report, err = e.CheckDirectory(cmd.Context(), dir)
	} else {
		report, err = e.CheckFiles(cmd.Context(), files)
	}
	if report == nil {
		return outputError("check", err)
	}
	logger.Info("check complete",
		zap.String("run_id", report.RunID),
		zap.Duration("duration", time.Since(start)))

	res := CLICheckReport{
		RunID:       report.RunID,
		Checked:     report.Checked,
		Skipped:     report.Skipped,
		Diagnostics: make([]CLIDiagnostic, 0, len(report.Diagnostics)),
	}
	for _, d := range report.Diagnostics {
		res.Diagnostics = append(res.Diagnostics, toCLIDiagnostic(d))
	}
	for _, fe := range report.Errors {
		res.Errors = append(res.Errors, fe.Error())
	}
	if err := outputResult(CLIResult{Command: "check", Results: res}); err != nil {
		return err
	}

	// The report is the output; the exit code carries the verdict.
	errorHandled = true
	if err != nil {
		return WrapExitError(ExitFailure, "check failed", err)
	}
	if len(report.Diagnostics) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d problem(s) found", len(report.Diagnostics)))
	}
	return nil
}

// checkTargets splits the arguments into a directory to discover or an
// explicit file list. A single directory may not be mixed with files.
func checkTargets(args []string, defaultDir string) (dir string, files []string, err error) {
	if len(args) == 0 {
		return defaultDir, nil, nil
	}
	for _, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			return "", nil, fmt.Errorf("resolving path %q: %w", a, err)
		}
		info, err := os.Stat(abs)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// A deleted file still has stored rows to drop.
			files = append(files, abs)
		case err != nil:
			return "", nil, fmt.Errorf("checking %s: %w", abs, err)
		case info.IsDir():
			if dir != "" {
				return "", nil, NewExitError(ExitUsage, "check accepts at most one directory")
			}
			dir = abs
		default:
			files = append(files, abs)
		}
	}
	if dir != "" && len(files) > 0 {
		return "", nil, NewExitError(ExitUsage, "cannot mix a directory with file arguments")
	}
	return dir, files, nil
}
