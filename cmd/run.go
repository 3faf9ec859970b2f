package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/oompa/internal/config"
	"github.com/zjrosen/oompa/internal/log"
	"github.com/zjrosen/oompa/internal/swarm"
	"github.com/zjrosen/oompa/internal/tracing"
)

var runSkipProbes bool

var runCmd = &cobra.Command{
	Use:   "run <config.yaml>",
	Short: "Launch a swarm from a config file",
	Long: `Launch a swarm of workers from the given config file and block until
every worker finishes or a termination signal arrives.

On SIGINT/SIGTERM the swarm stops accepting new cycles, recycles claimed
tasks, and waits a grace window for in-flight cycles before exiting.

Example:
  oompa run swarm.yaml
  oompa run swarm.yaml --skip-probes`,
	Args: cobra.ExactArgs(1),
	RunE: runSwarm,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runSkipProbes, "skip-probes", false,
		"skip the launch-time model probes")
}

func runSwarm(cmd *cobra.Command, args []string) error {
	configPath := args[0]
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	cleanup, err := initLogging(cfg.LogFile)
	if err != nil {
		return err
	}
	defer cleanup()

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			log.ErrorErr(log.CatSwarm, "tracing shutdown failed", err)
		}
	}()

	coordinator := swarm.New(cfg, configPath, swarm.Options{
		Tracer:     provider.Tracer(),
		SkipProbes: runSkipProbes,
	})
	if err := coordinator.Run(cmd.Context()); err != nil {
		return err
	}
	fmt.Printf("swarm %s finished\n", coordinator.SwarmID())
	return nil
}
