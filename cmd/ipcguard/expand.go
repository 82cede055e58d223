package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	flagWrite bool
	flagList  bool
)

var expandCmd = &cobra.Command{
	Use:   "expand [file]",
	Short: "Expand an API index module into stub objects",
	Long:  "Rewrites the default export of an API index so every namespace import becomes an object literal of stub functions. Defaults to the configured expand target.",
	Args:  usageArgs(cobra.MaximumNArgs(1)),
	RunE:  runExpand,
}

func init() {
	expandCmd.Flags().BoolVar(&flagWrite, "write", false, "write the expanded module back to the file")
	expandCmd.Flags().BoolVar(&flagList, "list", false, "list the generated stubs and their channels instead of the code")
}

func runExpand(cmd *cobra.Command, args []string) error {
	if flagWrite && flagList {
		return NewExitError(ExitUsage, "--write and --list are mutually exclusive")
	}
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	path := e.Config().Expand.Target
	if len(args) > 0 {
		if path, err = filepath.Abs(args[0]); err != nil {
			return fmt.Errorf("resolving path %q: %w", args[0], err)
		}
	}

	if flagList {
		stubs, err := e.Stubs(cmd.Context(), path)
		if err != nil {
			return outputError("expand", err)
		}
		out := make([]CLIStub, 0, len(stubs))
		for _, s := range stubs {
			out = append(out, CLIStub{API: s.API, Func: s.Func, Channel: s.Channel()})
		}
		return outputResult(CLIResult{Command: "expand", Results: out})
	}

	code, err := e.ExpandFile(cmd.Context(), path)
	if err != nil {
		return outputError("expand", err)
	}
	res := CLIExpandResult{Path: path}
	if flagWrite {
		info, err := os.Stat(path)
		if err != nil {
			return outputError("expand", err)
		}
		if err := os.WriteFile(path, code, info.Mode().Perm()); err != nil {
			return outputError("expand", fmt.Errorf("writing %s: %w", path, err))
		}
		res.Written = true
	} else {
		res.Code = string(code)
	}
	return outputResult(CLIResult{Command: "expand", Results: res})
}
