package worker

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/zjrosen/oompa/internal/task"
)

// ResumePrompt is the minimal prompt for continuing an in-flight session
// when no override is queued.
const ResumePrompt = "Continue working."

// PromptContext supplies the substitution values for prompt-file tokens.
// The swarm operator builds one per worker from the config.
type PromptContext interface {
	ContextHeader() string
	Targets() string
	ModeHint() string
}

// StaticContext is a PromptContext with fixed values.
type StaticContext struct {
	Header string
	Target string
	Mode   string
}

func (s StaticContext) ContextHeader() string { return s.Header }
func (s StaticContext) Targets() string       { return s.Target }
func (s StaticContext) ModeHint() string      { return s.Mode }

// PromptBuilder assembles fresh-start prompts from the worker's prompt
// files plus a generated task header and queue status block.
type PromptBuilder struct {
	Files []string
	Ctx   PromptContext
}

// BuildFresh composes the full prompt for a fresh-start cycle.
func (b *PromptBuilder) BuildFresh(workerID string, cycle int, pending, current []task.Task) (string, error) {
	var out strings.Builder

	fmt.Fprintf(&out, "You are swarm worker %s starting cycle %d.\n\n", workerID, cycle)
	out.WriteString("Signals you can emit in your output:\n")
	out.WriteString("- CLAIM(id1, id2): claim tasks from the pending queue before working on them.\n")
	out.WriteString("- COMPLETE_AND_READY_FOR_MERGE: your committed changes are ready for review and merge.\n")
	out.WriteString("- __DONE__: there is nothing left for you to do.\n\n")

	out.WriteString(statusBlock(pending, current))

	for _, path := range b.Files {
		data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied prompt files
		if err != nil {
			return "", fmt.Errorf("read prompt file %s: %w", path, err)
		}
		out.WriteString("\n")
		out.WriteString(b.substitute(string(data)))
	}
	return out.String(), nil
}

func (b *PromptBuilder) substitute(text string) string {
	if b.Ctx == nil {
		return text
	}
	r := strings.NewReplacer(
		"{context_header}", b.Ctx.ContextHeader(),
		"{targets}", b.Ctx.Targets(),
		"{mode_hint}", b.Ctx.ModeHint(),
	)
	return r.Replace(text)
}

func statusBlock(pending, current []task.Task) string {
	var out strings.Builder
	out.WriteString("Task queue status:\n")
	if len(pending) == 0 {
		out.WriteString("- pending: (empty)\n")
	} else {
		fmt.Fprintf(&out, "- pending (%d):\n", len(pending))
		for _, t := range pending {
			fmt.Fprintf(&out, "  - %s: %s\n", t.ID, t.Summary)
		}
	}
	if len(current) > 0 {
		fmt.Fprintf(&out, "- in progress elsewhere (%d):\n", len(current))
		for _, t := range current {
			fmt.Fprintf(&out, "  - %s\n", t.ID)
		}
	}
	return out.String()
}

// ClaimResultsPrompt reports claim outcomes back to the agent so it knows
// which tasks it actually holds.
func ClaimResultsPrompt(results map[string]task.ClaimResult) string {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out strings.Builder
	out.WriteString("Claim results:\n")
	for _, id := range ids {
		fmt.Fprintf(&out, "- %s: %s\n", id, results[id])
	}
	out.WriteString("\nWork only on the tasks you claimed. ")
	out.WriteString("When your committed changes are ready, reply COMPLETE_AND_READY_FOR_MERGE.")
	return out.String()
}

// StuckNudge is sent when a session keeps running without emitting a signal.
func StuckNudge() string {
	return "You have been working for several turns without signaling. " +
		"Either finish and reply COMPLETE_AND_READY_FOR_MERGE, or reply __DONE__ if there is nothing left to do."
}

// ConflictPrompt asks the agent to resolve merge conflicts in its workspace.
func ConflictPrompt(files []string) string {
	var out strings.Builder
	out.WriteString("Merging the mainline into your branch produced conflicts in:\n")
	for _, f := range files {
		fmt.Fprintf(&out, "- %s\n", f)
	}
	out.WriteString("\nResolve every conflict, remove all conflict markers, and stage the resolved files.")
	return out.String()
}

// FixPrompt wraps reviewer feedback for the worker's fix run.
func FixPrompt(feedback string, round int) string {
	return fmt.Sprintf(
		"A reviewer examined your changes (round %d) and requests fixes:\n\n%s\n\n"+
			"Apply the fixes and commit. The review will run again automatically.",
		round, feedback)
}
