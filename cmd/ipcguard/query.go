package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/ipcguard"
	"github.com/jward/ipcguard/internal/scan"
)

var (
	flagKind    string
	flagSummary bool
	flagLimit   int
)

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics [file]",
	Short: "Show stored diagnostics",
	Long:  "Reads the diagnostics stored by the last check of each file, without re-checking.",
	Args:  usageArgs(cobra.MaximumNArgs(1)),
	RunE:  runDiagnostics,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent check runs",
	Args:  usageArgs(cobra.NoArgs),
	RunE:  runRuns,
}

func init() {
	diagnosticsCmd.Flags().StringVar(&flagKind, "kind", "", "filter by kind: nonSerializableParam|nonSerializableReturn")
	diagnosticsCmd.Flags().BoolVar(&flagSummary, "summary", false, "print counts instead of diagnostics")
	runsCmd.Flags().IntVar(&flagLimit, "limit", 20, "maximum number of runs (newest first)")
}

func runDiagnostics(cmd *cobra.Command, args []string) error {
	if flagKind != "" {
		if _, err := scan.ParseKind(flagKind); err != nil {
			return WrapExitError(ExitUsage, "invalid --kind", err)
		}
	}
	if flagSummary && (flagKind != "" || len(args) > 0) {
		return NewExitError(ExitUsage, "--summary cannot be combined with a file or --kind")
	}

	e, err := openExistingEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	q := e.Query()

	if flagSummary {
		s, err := q.Summary()
		if err != nil {
			return outputError("diagnostics", err)
		}
		return outputResult(CLIResult{Command: "diagnostics", Results: toCLISummary(s)})
	}

	var records []*ipcguard.Record
	switch {
	case len(args) > 0:
		var path string
		if path, err = filepath.Abs(args[0]); err != nil {
			return fmt.Errorf("resolving path %q: %w", args[0], err)
		}
		records, err = q.Diagnostics(path)
		if err == nil && flagKind != "" {
			records = filterKind(records, flagKind)
		}
	case flagKind != "":
		records, err = q.DiagnosticsByKind(flagKind)
	default:
		records, err = q.AllDiagnostics()
	}
	if err != nil {
		return outputError("diagnostics", err)
	}

	out := make([]CLIDiagnostic, 0, len(records))
	for _, r := range records {
		out = append(out, recordToCLIDiagnostic(r))
	}
	return outputResult(CLIResult{Command: "diagnostics", Results: out})
}

func filterKind(records []*ipcguard.Record, kind string) []*ipcguard.Record {
	var out []*ipcguard.Record
	for _, r := range records {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

func runRuns(cmd *cobra.Command, args []string) error {
	if flagLimit <= 0 {
		return NewExitError(ExitUsage, "--limit must be positive")
	}
	e, err := openExistingEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	runs, err := e.Query().Runs(flagLimit)
	if err != nil {
		return outputError("runs", err)
	}
	out := make([]CLIRun, 0, len(runs))
	for _, r := range runs {
		out = append(out, toCLIRun(r))
	}
	return outputResult(CLIResult{Command: "runs", Results: out})
}
