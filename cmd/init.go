package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zjrosen/oompa/internal/templates"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Scaffold a starter swarm config and prompt files",
	Long: `Write swarm.yaml and a prompts/ directory into the given directory
(default: current directory). Existing files are left alone unless
--force is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing files")
}

func runInit(_ *cobra.Command, args []string) error {
	dest := "."
	if len(args) == 1 {
		dest = args[0]
	}

	scaffold := templates.ScaffoldFS()
	return fs.WalkDir(scaffold, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		target := filepath.Join(dest, filepath.FromSlash(path))
		if !initForce {
			if _, err := os.Stat(target); err == nil {
				fmt.Printf("skip %s (exists)\n", target)
				return nil
			}
		}
		data, err := fs.ReadFile(scaffold, path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return err
		}
		if err := os.WriteFile(target, data, 0o600); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", target)
		return nil
	})
}
