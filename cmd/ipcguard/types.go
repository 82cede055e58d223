package main

import (
	"time"

	"github.com/jward/ipcguard"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIDiagnostic is a JSON-friendly diagnostic. Line and Column are
// 1-based; Column counts UTF-16 code units.
type CLIDiagnostic struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Kind     string `json:"kind"`
	Function string `json:"function"`
	Param    string `json:"param,omitempty"`
	Type     string `json:"type,omitempty"`
	Message  string `json:"message"`
	RunID    string `json:"run_id,omitempty"`
}

// CLICheckReport is the result of the check command.
type CLICheckReport struct {
	RunID       string          `json:"run_id"`
	Checked     int             `json:"checked"`
	Skipped     int             `json:"skipped"`
	Diagnostics []CLIDiagnostic `json:"diagnostics"`
	Errors      []string        `json:"errors,omitempty"`
}

// CLIStub is one generated stub with its dispatch channel.
type CLIStub struct {
	API     string `json:"api"`
	Func    string `json:"func"`
	Channel string `json:"channel"`
}

// CLIExpandResult is the result of the expand command.
type CLIExpandResult struct {
	Path    string `json:"path"`
	Written bool   `json:"written"`
	Code    string `json:"code,omitempty"`
}

// CLIRun is a JSON-friendly check run.
type CLIRun struct {
	RunID        string     `json:"run_id"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	FilesChecked int        `json:"files_checked"`
	FilesSkipped int        `json:"files_skipped"`
	Diagnostics  int        `json:"diagnostics"`
	Errors       int        `json:"errors"`
}

// CLISummary is a JSON-friendly summary of stored results.
type CLISummary struct {
	Files             int            `json:"files"`
	FilesWithIssues   int            `json:"files_with_issues"`
	Diagnostics       int            `json:"diagnostics"`
	DiagnosticsByKind map[string]int `json:"diagnostics_by_kind"`
	LastRun           *CLIRun        `json:"last_run,omitempty"`
}

func toCLIDiagnostic(d ipcguard.Diagnostic) CLIDiagnostic {
	return CLIDiagnostic{
		File:     d.Path,
		Line:     d.Line,
		Column:   d.Column + 1,
		Kind:     d.Kind.String(),
		Function: d.FuncName,
		Param:    d.ParamName,
		Type:     d.Type,
		Message:  d.Message(),
	}
}

func recordToCLIDiagnostic(r *ipcguard.Record) CLIDiagnostic {
	file := r.Path
	if r.DeclPath != "" {
		file = r.DeclPath
	}
	return CLIDiagnostic{
		File:     file,
		Line:     r.Line,
		Column:   r.Col + 1,
		Kind:     r.Kind,
		Function: r.FuncName,
		Param:    r.ParamName,
		Type:     r.TypeText,
		Message:  r.Message,
		RunID:    r.RunID,
	}
}

func toCLIRun(r *ipcguard.Run) CLIRun {
	return CLIRun{
		RunID:        r.RunID,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		FilesChecked: r.FilesChecked,
		FilesSkipped: r.FilesSkipped,
		Diagnostics:  r.Diagnostics,
		Errors:       r.Errors,
	}
}

func toCLISummary(s *ipcguard.Summary) CLISummary {
	out := CLISummary{
		Files:             s.Files,
		FilesWithIssues:   s.FilesWithIssues,
		Diagnostics:       s.Diagnostics,
		DiagnosticsByKind: s.DiagnosticsByKind,
	}
	if s.LastRun != nil {
		r := toCLIRun(s.LastRun)
		out.LastRun = &r
	}
	return out
}
