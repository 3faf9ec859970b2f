// Package merge serializes the integration of approved cycle branches
// into the mainline. Only one worker may merge at a time; everything
// else about a cycle runs in parallel.
package merge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/oompa/internal/git"
	"github.com/zjrosen/oompa/internal/log"
	"github.com/zjrosen/oompa/internal/task"
	"github.com/zjrosen/oompa/internal/tracing"
	"github.com/zjrosen/oompa/internal/workspace"
)

// Request carries everything needed to merge one approved cycle.
type Request struct {
	Workspace *workspace.Workspace

	// TaskIDs are the claimed tasks this merge completes.
	TaskIDs []string

	// ReviewRounds is recorded in the completion annotation.
	ReviewRounds int
}

// Result reports what the merge did.
type Result struct {
	Merged bool

	// Commit is the short hash of main after a successful merge.
	Commit string

	// Reason explains a failed merge.
	Reason string
}

// Coordinator owns the single merge lock for the swarm. All workers in
// the process funnel through one Coordinator, so at most one merge
// touches the mainline checkout at a time.
type Coordinator struct {
	mu      sync.Mutex
	rootGit git.Executor
	main    string
	tasks   *task.Store
	tracer  trace.Tracer
}

// NewCoordinator builds a Coordinator operating on the repo root checkout.
func NewCoordinator(rootGit git.Executor, mainBranch string, tasks *task.Store) *Coordinator {
	return &Coordinator{
		rootGit: rootGit,
		main:    mainBranch,
		tasks:   tasks,
		tracer:  noop.NewTracerProvider().Tracer("noop"),
	}
}

// WithTracer attaches a tracer for merge spans.
func (c *Coordinator) WithTracer(tracer trace.Tracer) *Coordinator {
	c.tracer = tracer
	return c
}

// Merge integrates the workspace's cycle branch into main, completing and
// annotating the claimed tasks on success. On failure the mainline is
// restored and nothing about the tasks changes.
func (c *Coordinator) Merge(ctx context.Context, req Request) (Result, error) {
	ws := req.Workspace

	// Residual edits the agent left uncommitted travel with the merge.
	if err := ws.Git().CommitAll("checkpoint before merge"); err != nil {
		return Result{Reason: "checkpoint failed"}, fmt.Errorf("checkpoint %s: %w", ws.Branch, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, span := c.tracer.Start(ctx, tracing.SpanMerge)
	span.SetAttributes(
		attribute.String(tracing.AttrWorkerID, ws.WorkerID),
		attribute.Int(tracing.AttrWorkerCycle, ws.Cycle),
		attribute.String(tracing.AttrMergeBranch, ws.Branch),
	)
	defer span.End()

	log.Info(log.CatMerge, "merging", "worker", ws.WorkerID, "branch", ws.Branch)

	if err := c.rootGit.Checkout(c.main); err != nil {
		span.SetStatus(codes.Error, "checkout failed")
		return Result{Reason: "checkout failed"}, fmt.Errorf("checkout %s: %w", c.main, err)
	}

	if err := c.rootGit.Merge(ws.Branch); err != nil {
		c.restoreMainline()
		span.SetStatus(codes.Error, "merge failed")
		log.Warn(log.CatMerge, "merge failed",
			"worker", ws.WorkerID, "branch", ws.Branch, "error", err.Error())
		return Result{Reason: err.Error()}, nil
	}

	commit, err := c.rootGit.ShortHash("HEAD")
	if err != nil {
		// Merge landed; a missing hash only degrades the annotation.
		log.Warn(log.CatMerge, "short hash failed", "error", err.Error())
	}
	span.SetAttributes(attribute.String(tracing.AttrMergeCommit, commit))

	if err := c.completeTasks(req, commit); err != nil {
		span.SetStatus(codes.Error, "task completion failed")
		return Result{Merged: true, Commit: commit}, err
	}

	span.SetStatus(codes.Ok, "")
	log.Info(log.CatMerge, "merged",
		"worker", ws.WorkerID, "branch", ws.Branch, "commit", commit, "tasks", len(req.TaskIDs))
	return Result{Merged: true, Commit: commit}, nil
}

// restoreMainline puts main back after a failed merge. A conflicted merge
// is aborted; anything else is reset to HEAD.
func (c *Coordinator) restoreMainline() {
	if conflicted, err := c.rootGit.ConflictedFiles(); err == nil && len(conflicted) > 0 {
		if err := c.rootGit.MergeAbort(); err == nil {
			return
		}
	}
	if err := c.rootGit.ResetHard("HEAD"); err != nil {
		log.Error(log.CatMerge, "mainline restore failed", "error", err.Error())
	}
}

func (c *Coordinator) completeTasks(req Request, commit string) error {
	ws := req.Workspace
	if err := c.tasks.Complete(req.TaskIDs); err != nil {
		return fmt.Errorf("complete tasks: %w", err)
	}
	ann := task.Annotation{
		CompletedBy:  ws.WorkerID,
		CompletedAt:  time.Now().UTC(),
		ReviewRounds: req.ReviewRounds,
		MergedCommit: commit,
	}
	for _, id := range req.TaskIDs {
		if err := c.tasks.Annotate(id, ann); err != nil {
			log.Warn(log.CatMerge, "annotate failed", "task", id, "error", err.Error())
		}
	}
	return nil
}
