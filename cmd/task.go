package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/oompa/internal/task"
)

var (
	tasksRoot string

	addSummary     string
	addDescription string
	addFiles       []string
	addAcceptance  []string
	addDifficulty  string
	addPriority    int
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage the filesystem task queue",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Add a pending task",
	Long: `Add a task to the pending queue. Workers claim pending tasks by id;
the acceptance criteria end up verbatim in the review prompt.

Example:
  oompa task add auth-01 --summary "add login endpoint" \
    --accept "POST /login returns a signed token" \
    --file internal/auth/login.go`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks by state",
	Args:  cobra.NoArgs,
	RunE:  runTaskList,
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)

	taskCmd.PersistentFlags().StringVar(&tasksRoot, "tasks-root", "tasks",
		"task queue directory")

	taskAddCmd.Flags().StringVar(&addSummary, "summary", "", "one-line summary (required)")
	taskAddCmd.Flags().StringVar(&addDescription, "description", "", "longer description")
	taskAddCmd.Flags().StringArrayVar(&addFiles, "file", nil, "file the task is expected to touch (repeatable)")
	taskAddCmd.Flags().StringArrayVar(&addAcceptance, "accept", nil, "acceptance criterion (repeatable)")
	taskAddCmd.Flags().StringVar(&addDifficulty, "difficulty", "", "difficulty hint")
	taskAddCmd.Flags().IntVar(&addPriority, "priority", 0, "priority, higher first")
	_ = taskAddCmd.MarkFlagRequired("summary")
}

func runTaskAdd(_ *cobra.Command, args []string) error {
	store := task.NewStore(tasksRoot)
	if err := store.EnsureDirs(); err != nil {
		return err
	}
	t := task.Task{
		ID:          args[0],
		Summary:     addSummary,
		Description: addDescription,
		Files:       addFiles,
		Acceptance:  addAcceptance,
		Difficulty:  addDifficulty,
		Priority:    addPriority,
	}
	if err := store.Create(t); err != nil {
		return err
	}
	fmt.Printf("added %s to pending\n", t.ID)
	return nil
}

func runTaskList(_ *cobra.Command, _ []string) error {
	store := task.NewStore(tasksRoot)
	for _, state := range task.States {
		tasks, err := store.List(state)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%d):\n", state, len(tasks))
		for _, t := range tasks {
			line := fmt.Sprintf("  %s  %s", t.ID, t.Summary)
			if t.CompletedBy != "" {
				line += fmt.Sprintf("  [merged %s by %s]", t.MergedCommit, t.CompletedBy)
			}
			fmt.Println(line)
		}
	}
	return nil
}
