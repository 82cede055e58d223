package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	fileStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	kindStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	typeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

// formatDiagnosticsText groups diagnostics by file, eslint style.
func formatDiagnosticsText(w io.Writer, diags []CLIDiagnostic) {
	var file string
	for _, d := range diags {
		if d.File != file {
			if file != "" {
				fmt.Fprintln(w)
			}
			file = d.File
			fmt.Fprintln(w, fileStyle.Render(file))
		}
		line := fmt.Sprintf("  %d:%d  %s  %s", d.Line, d.Column, kindStyle.Render(d.Kind), d.Message)
		if d.Type != "" {
			line += "  " + typeStyle.Render(d.Type)
		}
		fmt.Fprintln(w, line)
	}
}

// formatCheckText prints the diagnostics followed by a one-line summary.
func formatCheckText(w io.Writer, r CLICheckReport) {
	formatDiagnosticsText(w, r.Diagnostics)
	if len(r.Diagnostics) > 0 {
		fmt.Fprintln(w)
	}
	for _, e := range r.Errors {
		fmt.Fprintln(w, errorStyle.Render("error: ")+e)
	}
	summary := fmt.Sprintf("%d checked, %d unchanged, %d problem(s)", r.Checked, r.Skipped, len(r.Diagnostics))
	if len(r.Diagnostics) == 0 && len(r.Errors) == 0 {
		fmt.Fprintln(w, okStyle.Render("✓ "+summary))
	} else {
		fmt.Fprintln(w, errorStyle.Render("✗ "+summary))
	}
	fmt.Fprintln(w, dimStyle.Render("run "+r.RunID))
}

// formatStubsText formats stubs as aligned columns.
func formatStubsText(w io.Writer, stubs []CLIStub) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "API\tFUNCTION\tCHANNEL")
	for _, s := range stubs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.API, s.Func, s.Channel)
	}
	tw.Flush()
}

// formatRunsText formats runs as aligned columns.
func formatRunsText(w io.Writer, runs []CLIRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tCHECKED\tSKIPPED\tDIAGNOSTICS\tERRORS")
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.RunID, r.StartedAt.Format(time.RFC3339), duration,
			r.FilesChecked, r.FilesSkipped, r.Diagnostics, r.Errors)
	}
	tw.Flush()
}

// formatSummaryText formats CLISummary as readable text.
func formatSummaryText(w io.Writer, s CLISummary) {
	fmt.Fprintln(w, "Summary")
	fmt.Fprintln(w, "=======")
	fmt.Fprintf(w, "Files: %d (%d with problems)\n", s.Files, s.FilesWithIssues)
	fmt.Fprintf(w, "Diagnostics: %d\n", s.Diagnostics)
	kinds := make([]string, 0, len(s.DiagnosticsByKind))
	for k := range s.DiagnosticsByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %s: %d\n", k, s.DiagnosticsByKind[k])
	}
	if s.LastRun != nil {
		fmt.Fprintf(w, "Last run: %s at %s\n", s.LastRun.RunID, s.LastRun.StartedAt.Format(time.RFC3339))
	}
}

// outputResultText dispatches to the appropriate text formatter based on
// the result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLICheckReport:
		formatCheckText(w, v)
	case []CLIDiagnostic:
		formatDiagnosticsText(w, v)
	case []CLIStub:
		formatStubsText(w, v)
	case CLIExpandResult:
		if v.Written {
			fmt.Fprintln(w, okStyle.Render("wrote "+v.Path))
		} else {
			fmt.Fprint(w, v.Code)
		}
	case []CLIRun:
		formatRunsText(w, v)
	case CLISummary:
		formatSummaryText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// outputResult writes a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(stdout, result)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as
// a CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
