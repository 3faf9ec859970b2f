// Package review runs the bounded reviewer loop over a worker's proposed
// changes: diff the workspace, ask the reviewer agent for a verdict, and
// feed rejections back to the worker for another attempt.
package review

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/oompa/internal/events"
	"github.com/zjrosen/oompa/internal/harness"
	"github.com/zjrosen/oompa/internal/log"
	"github.com/zjrosen/oompa/internal/task"
	"github.com/zjrosen/oompa/internal/tracing"
	"github.com/zjrosen/oompa/internal/workspace"
)

const (
	// DefaultMaxRounds bounds the review loop.
	DefaultMaxRounds = 3

	// DefaultDiffLimit caps the diff text shown to the reviewer, in bytes.
	DefaultDiffLimit = 8000
)

var (
	verdictLine  = regexp.MustCompile(`(?m)^\s*VERDICT:\s*(APPROVED|NEEDS_CHANGES|REJECTED)\s*$`)
	approvedWord = regexp.MustCompile(`(?i)\bAPPROVED\b`)
	rejectedWord = regexp.MustCompile(`(?i)\bREJECTED\b`)
)

// ParseVerdict extracts a verdict from reviewer output.
// An explicit VERDICT line wins, the last one if there are several.
// Without one, the first bare APPROVED or REJECTED in the text counts,
// and when nothing matches the safe reading is needs-changes.
func ParseVerdict(text string) events.Verdict {
	matches := verdictLine.FindAllStringSubmatch(text, -1)
	if len(matches) > 0 {
		switch matches[len(matches)-1][1] {
		case "APPROVED":
			return events.VerdictApproved
		case "REJECTED":
			return events.VerdictRejected
		default:
			return events.VerdictNeedsChanges
		}
	}
	approved := approvedWord.FindStringIndex(text)
	rejected := rejectedWord.FindStringIndex(text)
	switch {
	case approved != nil && (rejected == nil || approved[0] < rejected[0]):
		return events.VerdictApproved
	case rejected != nil:
		return events.VerdictRejected
	default:
		return events.VerdictNeedsChanges
	}
}

// TruncateDiff caps diff text at limit bytes, marking the cut.
func TruncateDiff(diff string, limit int) string {
	if limit <= 0 {
		limit = DefaultDiffLimit
	}
	if len(diff) <= limit {
		return diff
	}
	return diff[:limit] + "\n... (diff truncated)"
}

// Fixer applies reviewer feedback inside the workspace, typically by
// resuming the worker's agent session with the feedback as the prompt.
type Fixer func(ctx context.Context, feedback string, round int) error

// Config tunes a review loop.
type Config struct {
	MaxRounds int
	DiffLimit int
	Model     string
	Reasoning string
}

// Loop drives reviews for one swarm. Nil-safe: a nil *Loop approves
// everything without running an agent, which is how swarms without a
// reviewer are configured.
type Loop struct {
	harness  harness.Harness
	runner   harness.Runner
	recorder *events.Recorder
	tracer   trace.Tracer
	cfg      Config
}

// NewLoop builds a review loop around the reviewer harness.
func NewLoop(h harness.Harness, runner harness.Runner, recorder *events.Recorder, cfg Config) *Loop {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.DiffLimit <= 0 {
		cfg.DiffLimit = DefaultDiffLimit
	}
	return &Loop{
		harness:  h,
		runner:   runner,
		recorder: recorder,
		tracer:   noop.NewTracerProvider().Tracer("noop"),
		cfg:      cfg,
	}
}

// WithTracer attaches a tracer for review spans.
func (l *Loop) WithTracer(tracer trace.Tracer) *Loop {
	l.tracer = tracer
	return l
}

// Run reviews the workspace's changes, at most MaxRounds times, invoking
// fix between rounds. It returns the final verdict and how many rounds ran.
// Exhausting the rounds without approval yields needs-changes.
func (l *Loop) Run(ctx context.Context, ws *workspace.Workspace, tasks []task.Task, fix Fixer) (events.Verdict, int, error) {
	if l == nil {
		return events.VerdictApproved, 0, nil
	}

	var previous []string
	for round := 1; round <= l.cfg.MaxRounds; round++ {
		verdict, output, err := l.reviewOnce(ctx, ws, tasks, previous, round)
		if err != nil {
			return events.VerdictNeedsChanges, round, err
		}

		if l.recorder != nil {
			files, _ := ws.ChangedFiles()
			if err := l.recorder.WriteReview(events.Review{
				WorkerID:  ws.WorkerID,
				Cycle:     ws.Cycle,
				Round:     round,
				Verdict:   verdict,
				At:        time.Now().UTC(),
				Output:    output,
				DiffFiles: files,
			}); err != nil {
				log.Warn(log.CatReview, "record review failed", "error", err.Error())
			}
		}

		log.Info(log.CatReview, "review round",
			"worker", ws.WorkerID, "cycle", ws.Cycle, "round", round, "verdict", string(verdict))

		switch verdict {
		case events.VerdictApproved, events.VerdictRejected:
			return verdict, round, nil
		}

		if round == l.cfg.MaxRounds {
			return events.VerdictNeedsChanges, round, nil
		}
		if fix != nil {
			if err := fix(ctx, output, round); err != nil {
				return events.VerdictNeedsChanges, round, fmt.Errorf("apply review feedback: %w", err)
			}
		}
		previous = append(previous, fmt.Sprintf("Round %d feedback:\n%s", round, output))
	}
	return events.VerdictNeedsChanges, l.cfg.MaxRounds, nil
}

func (l *Loop) reviewOnce(ctx context.Context, ws *workspace.Workspace, tasks []task.Task, previous []string, round int) (events.Verdict, string, error) {
	ctx, span := l.tracer.Start(ctx, tracing.SpanReview)
	span.SetAttributes(
		attribute.String(tracing.AttrWorkerID, ws.WorkerID),
		attribute.Int(tracing.AttrWorkerCycle, ws.Cycle),
		attribute.Int(tracing.AttrReviewRound, round),
	)
	defer span.End()

	diff, err := ws.Git().Diff(ws.Base)
	if err != nil {
		return events.VerdictNeedsChanges, "", fmt.Errorf("diff workspace: %w", err)
	}

	prompt := l.buildPrompt(tasks, TruncateDiff(diff, l.cfg.DiffLimit), previous)
	res, err := l.runner.Run(ctx, l.harness, harness.Invocation{
		WorkDir:    ws.Dir,
		Model:      l.cfg.Model,
		Reasoning:  l.cfg.Reasoning,
		Prompt:     prompt,
		Structured: true,
	})
	if err != nil {
		return events.VerdictNeedsChanges, "", fmt.Errorf("run reviewer: %w", err)
	}

	out := l.harness.ParseOutput([]byte(res.Stdout), "")
	verdict := ParseVerdict(out.Text)
	span.SetAttributes(attribute.String(tracing.AttrReviewVerdict, string(verdict)))
	return verdict, out.Text, nil
}

func (l *Loop) buildPrompt(tasks []task.Task, diff string, previous []string) string {
	var b strings.Builder
	b.WriteString("You are reviewing changes proposed by another engineer.\n\n")

	if len(tasks) > 0 {
		b.WriteString("The changes claim to complete these tasks:\n")
		for _, t := range tasks {
			fmt.Fprintf(&b, "- %s: %s\n", t.ID, t.Summary)
			for _, a := range t.Acceptance {
				fmt.Fprintf(&b, "  Acceptance: %s\n", a)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("Diff against the mainline:\n```\n")
	b.WriteString(diff)
	b.WriteString("\n```\n")

	if len(previous) > 0 {
		b.WriteString("\nEarlier rounds of this review:\n")
		for _, p := range previous {
			b.WriteString(p)
			b.WriteString("\n")
		}
		b.WriteString("\nVerify only whether the earlier feedback has been addressed.\n")
		b.WriteString("Do not raise new issues in this round.\n")
	}

	b.WriteString("\nJudge whether the changes are correct, complete, and safe to merge.\n")
	b.WriteString("End your response with exactly one line:\n")
	b.WriteString("VERDICT: APPROVED or VERDICT: NEEDS_CHANGES or VERDICT: REJECTED\n")
	return b.String()
}
