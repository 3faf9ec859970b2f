package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/oompa/internal/harness"
)

var probeModel string

var probeCmd = &cobra.Command{
	Use:   "probe <harness>",
	Short: "Verify a harness binary and model respond",
	Long: `Run the same "say ok" round trip the swarm performs at launch,
without starting any workers.

Example:
  oompa probe claude --model sonnet
  oompa probe codex`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: kindNames(),
	RunE:      runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().StringVar(&probeModel, "model", "", "model to probe")
}

func runProbe(cmd *cobra.Command, args []string) error {
	kind := harness.Kind(args[0])
	h, err := harness.New(kind)
	if err != nil {
		return fmt.Errorf("%w (known: %s)", err, strings.Join(kindNames(), ", "))
	}
	if !h.Available() {
		return fmt.Errorf("harness %s: binary not found on PATH", kind)
	}
	if err := harness.Probe(cmd.Context(), h, probeModel, harness.DefaultProbeTimeout); err != nil {
		return err
	}
	fmt.Printf("%s ok\n", kind)
	return nil
}

func kindNames() []string {
	kinds := harness.Kinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}
	return names
}
