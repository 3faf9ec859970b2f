// Package cmd wires the oompa CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/oompa/internal/log"
)

var (
	version   = "dev"
	debugFlag bool
)

var rootCmd = &cobra.Command{
	Use:     "oompa",
	Short:   "Swarm orchestrator for parallel coding agents",
	Long: `oompa drives a swarm of agent CLI subprocesses over a shared git
repository. Workers claim tasks from a filesystem queue, work in isolated
worktrees, and merge through a single serialized merge point. Every run
leaves an immutable event trail under the runs directory.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"enable debug logging (or set OOMPA_DEBUG)")
}

// initLogging turns on the global debug log when requested. The returned
// cleanup closes the log file; it is a no-op when logging stays off.
func initLogging(defaultPath string) (func(), error) {
	if !debugFlag && os.Getenv("OOMPA_DEBUG") == "" {
		return func() {}, nil
	}
	path := os.Getenv("OOMPA_LOG")
	if path == "" {
		path = defaultPath
	}
	if path == "" {
		path = "oompa-debug.log"
	}
	cleanup, err := log.Init(path)
	if err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}
	return cleanup, nil
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
