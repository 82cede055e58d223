package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jward/ipcguard"
	"github.com/jward/ipcguard/internal/config"
	"github.com/jward/ipcguard/internal/typegraph"
)

var (
	flagConfig  string
	flagDB      string
	flagFormat  string
	flagVerbose bool
)

// Output streams; replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// errorHandled is set by outputError so run() doesn't double-print.
var errorHandled bool

var logger = zap.NewNop()

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI and returns the process exit code.
func run(args []string) int {
	errorHandled = false
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err == nil {
		return ExitSuccess
	}
	if !errorHandled {
		fmt.Fprintf(stderr, "Error: %s\n", err)
	}
	return GetExitCode(err)
}

var rootCmd = &cobra.Command{
	Use:           "ipcguard",
	Short:         "Serializability checks and stub expansion for IPC API surfaces",
	Long:          "ipcguard checks that exported API functions only take and return structured-clone serializable types, and expands the API index into the stub object a preload bridge enumerates.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return WrapExitError(ExitUsage, "invalid flags", err)
		}
		l, err := buildLogger(flagVerbose)
		if err != nil {
			return err
		}
		logger = l
		typegraph.SetLogger(logger.Named("typegraph"))
		return nil
	},
	// No Run; prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: nearest ipcguard.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: the config's database, relative to the config directory)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "development logging to stderr")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return WrapExitError(ExitUsage, "invalid flags", err)
	})

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(expandCmd)
	rootCmd.AddCommand(diagnosticsCmd)
	rootCmd.AddCommand(runsCmd)
}

// buildLogger returns a development logger when verbose, otherwise a
// production logger that only reports warnings and errors.
func buildLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// usageArgs wraps a cobra positional-args validator so violations exit
// with ExitUsage.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return WrapExitError(ExitUsage, "invalid arguments", err)
		}
		return nil
	}
}

// loadConfig loads --config or the nearest ipcguard.yaml above the working
// directory, falling back to defaults.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	cfg, err := config.LoadOrDefault(flagConfig, cwd)
	if err != nil {
		return nil, WrapExitError(ExitUsage, "loading config", err)
	}
	return cfg, nil
}

// openEngine loads the config and opens an Engine on the resolved
// database, creating its directory.
func openEngine(opts ...ipcguard.Option) (*ipcguard.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dbPath := resolveDBPath(cfg)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}
	opts = append([]ipcguard.Option{ipcguard.WithLogger(logger)}, opts...)
	e, err := ipcguard.New(dbPath, cfg, opts...)
	if err != nil {
		if errors.Is(err, config.ErrInvalid) {
			return nil, WrapExitError(ExitUsage, "invalid config", err)
		}
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, nil
}

// openExistingEngine is openEngine for read-only commands: the database
// must already exist.
func openExistingEngine() (*ipcguard.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dbPath := resolveDBPath(cfg)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, NewExitError(ExitUsage, fmt.Sprintf("database not found: %s (run 'ipcguard check' first)", dbPath))
	}
	e, err := ipcguard.New(dbPath, cfg, ipcguard.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return e, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding .git.
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from the --db flag or the
// config. A relative --db resolves against the repository root.
func resolveDBPath(cfg *config.Config) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		cwd, err := os.Getwd()
		if err != nil {
			return flagDB
		}
		return filepath.Join(findRepoRoot(cwd), flagDB)
	}
	return cfg.Database
}
