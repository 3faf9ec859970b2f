package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/zjrosen/oompa/internal/events"
)

var runsRoot string

var statusCmd = &cobra.Command{
	Use:   "status [swarm-id]",
	Short: "Show swarm runs and their outcomes",
	Long: `Without arguments, list every recorded run under the runs directory.
With a swarm id, show that run's per-worker cycle history.

Status is derived entirely from the run's event files; it works on live
and finished swarms alike.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&runsRoot, "runs-root", "runs", "runs directory")
}

func runStatus(_ *cobra.Command, args []string) error {
	if len(args) == 1 {
		return showRun(filepath.Join(runsRoot, args[0]))
	}
	return listRuns()
}

func listRuns() error {
	entries, err := os.ReadDir(runsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("no runs recorded")
			return nil
		}
		return err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		runDir := filepath.Join(runsRoot, id)
		started, err := events.ReadStarted(runDir)
		if err != nil {
			continue
		}
		fmt.Printf("%s  %s  workers=%d  %s\n",
			id,
			started.StartedAt.Local().Format("2006-01-02 15:04:05"),
			len(started.Workers),
			runState(runDir))
	}
	return nil
}

func showRun(runDir string) error {
	started, err := events.ReadStarted(runDir)
	if err != nil {
		return fmt.Errorf("read run: %w", err)
	}
	fmt.Printf("swarm %s  %s  config=%s\n",
		started.SwarmID, runState(runDir), started.ConfigPath)
	for _, w := range started.Workers {
		fmt.Printf("  %s: %s/%s max_cycles=%d can_plan=%v\n",
			w.ID, w.Harness, w.Model, w.MaxCycles, w.CanPlan)
	}

	cycles, err := events.ListCycles(runDir)
	if err != nil {
		return err
	}
	for _, c := range cycles {
		line := fmt.Sprintf("  %s c%d: %s", c.WorkerID, c.Cycle, c.Outcome)
		if len(c.ClaimedTasks) > 0 {
			line += fmt.Sprintf(" claimed=%v", c.ClaimedTasks)
		}
		if len(c.Recycled) > 0 {
			line += fmt.Sprintf(" recycled=%v", c.Recycled)
		}
		if c.ReviewRounds > 0 {
			line += fmt.Sprintf(" review_rounds=%d", c.ReviewRounds)
		}
		fmt.Println(line)
	}

	reviews, err := events.ListReviews(runDir)
	if err != nil {
		return err
	}
	for _, r := range reviews {
		fmt.Printf("  review %s c%d r%d: %s\n", r.WorkerID, r.Cycle, r.Round, r.Verdict)
	}
	return nil
}

// runState classifies a run directory: stopped runs report their reason,
// otherwise liveness of the recorded PID decides running vs crashed.
func runState(runDir string) string {
	if stopped, present, err := events.ReadStopped(runDir); err == nil && present {
		return string(stopped.Reason)
	}
	alive, err := events.Alive(runDir)
	if err != nil {
		return "unknown"
	}
	if alive {
		return "running"
	}
	return "crashed"
}
