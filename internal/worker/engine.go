package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/oompa/internal/events"
	"github.com/zjrosen/oompa/internal/harness"
	"github.com/zjrosen/oompa/internal/log"
	"github.com/zjrosen/oompa/internal/merge"
	"github.com/zjrosen/oompa/internal/pubsub"
	"github.com/zjrosen/oompa/internal/review"
	"github.com/zjrosen/oompa/internal/task"
	"github.com/zjrosen/oompa/internal/tracing"
	"github.com/zjrosen/oompa/internal/workspace"
)

const (
	// MaxConsecutiveErrors terminates a worker after this many error cycles in a row.
	MaxConsecutiveErrors = 3

	// DefaultMaxWorkingResumes bounds silent resumes before the stuck nudge.
	DefaultMaxWorkingResumes = 2

	// Backpressure polling for non-planning workers with an empty queue.
	defaultPollInterval = 5 * time.Second
	defaultPollTimeout  = 60 * time.Second

	errorSnippetLimit = 2000
)

// Config describes one worker. Immutable after swarm start.
type Config struct {
	ID          string
	Model       string
	Reasoning   string
	MaxCycles   int
	PromptFiles []string
	CanPlan     bool
	WaitBetween time.Duration

	// MaxWorkingResumes caps silent resumes per session; zero means the default.
	MaxWorkingResumes int

	// TaskPathPrefix is the repo-relative task-store prefix used for the
	// task-only diff check.
	TaskPathPrefix string
}

// Deps are the collaborators an Engine drives.
type Deps struct {
	Harness    harness.Harness
	Runner     harness.Runner
	Tasks      *task.Store
	Workspaces *workspace.Manager
	Merger     *merge.Coordinator
	Reviews    *review.Loop
	Recorder   *events.Recorder
	Prompts    *PromptBuilder
	Registry   *ClaimRegistry
	Updates    pubsub.Publisher[Update]
	Tracer     trace.Tracer

	// Shutdown reports whether the swarm wants workers to stop.
	// Checked between cycles only.
	Shutdown func() bool
}

// session is the state carried across cycles while an agent session lives.
type session struct {
	id       string
	ws       *workspace.Workspace
	claims   []string
	override string
	resumes  int
	active   bool
}

// Engine runs one worker's cycle loop.
type Engine struct {
	cfg  Config
	deps Deps

	metrics Metrics

	pollInterval time.Duration
	pollTimeout  time.Duration
	sleep        func(time.Duration)
}

// NewEngine builds a worker engine.
func NewEngine(cfg Config, deps Deps) *Engine {
	if cfg.MaxWorkingResumes <= 0 {
		cfg.MaxWorkingResumes = DefaultMaxWorkingResumes
	}
	if cfg.TaskPathPrefix == "" {
		cfg.TaskPathPrefix = "tasks/"
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if deps.Shutdown == nil {
		deps.Shutdown = func() bool { return false }
	}
	if deps.Registry == nil {
		deps.Registry = NewClaimRegistry()
	}
	return &Engine{
		cfg:          cfg,
		deps:         deps,
		pollInterval: defaultPollInterval,
		pollTimeout:  defaultPollTimeout,
		sleep:        time.Sleep,
	}
}

// Metrics returns a snapshot of the worker's counters.
func (e *Engine) Metrics() Metrics { return e.metrics }

// Run drives the worker to completion: up to MaxCycles cycles, stopping
// early on shutdown or the consecutive-error cap.
func (e *Engine) Run(ctx context.Context) error {
	var st session
	consecErrors := 0

	for cycle := 1; cycle <= e.cfg.MaxCycles; cycle++ {
		if e.checkShutdown(cycle, &st) {
			return nil
		}
		if cycle > 1 && e.cfg.WaitBetween > 0 {
			e.sleep(e.cfg.WaitBetween)
		}
		if !e.cfg.CanPlan && !st.active {
			e.waitForTasks()
		}
		if e.checkShutdown(cycle, &st) {
			return nil
		}

		outcome := e.runCycle(ctx, cycle, &st)

		if outcome == events.OutcomeError {
			consecErrors++
			if consecErrors >= MaxConsecutiveErrors {
				e.finalize(&st)
				log.Error(log.CatWorker, "worker stopping after consecutive errors",
					"worker", e.cfg.ID, "errors", consecErrors)
				return fmt.Errorf("worker %s: %d consecutive error cycles", e.cfg.ID, consecErrors)
			}
		} else {
			consecErrors = 0
		}
	}

	e.finalize(&st)
	log.Info(log.CatWorker, "worker exhausted its cycles",
		"worker", e.cfg.ID, "cycles", e.cfg.MaxCycles)
	return nil
}

// checkShutdown handles the between-cycles shutdown check. When the flag
// is set it cleans up and emits the interrupted cycle event.
func (e *Engine) checkShutdown(cycle int, st *session) bool {
	if !e.deps.Shutdown() {
		return false
	}
	claimed := snapshot(st.claims)
	sid := st.id
	recycled := e.recycleClaims(st, nil)
	e.resetSession(st)
	e.emit(events.Cycle{
		WorkerID:     e.cfg.ID,
		Cycle:        cycle,
		Outcome:      events.OutcomeInterrupted,
		At:           time.Now().UTC(),
		ClaimedTasks: claimed,
		Recycled:     recycled,
		SessionID:    sid,
	})
	log.Info(log.CatWorker, "worker interrupted", "worker", e.cfg.ID, "cycle", cycle)
	return true
}

// finalize releases whatever the session still holds without emitting a
// cycle event. Used on exhaustion and the error cap.
func (e *Engine) finalize(st *session) {
	e.recycleClaims(st, nil)
	e.resetSession(st)
}

func (e *Engine) waitForTasks() {
	deadline := time.Now().Add(e.pollTimeout)
	for {
		n, err := e.deps.Tasks.PendingCount()
		if err == nil && n > 0 {
			return
		}
		if time.Now().After(deadline) {
			log.Warn(log.CatWorker, "queue still empty past backpressure window, proceeding",
				"worker", e.cfg.ID)
			return
		}
		e.sleep(e.pollInterval)
	}
}

func (e *Engine) runCycle(ctx context.Context, cycle int, st *session) events.Outcome {
	start := time.Now().UTC()
	ctx, span := e.deps.Tracer.Start(ctx, tracing.SpanCycle)
	span.SetAttributes(
		attribute.String(tracing.AttrWorkerID, e.cfg.ID),
		attribute.Int(tracing.AttrWorkerCycle, cycle),
	)
	defer span.End()

	before, err := e.deps.Tasks.IDs(task.StateCurrent)
	if err != nil {
		before = nil
	}

	if st.ws == nil {
		ws, err := e.deps.Workspaces.Acquire(ctx, e.cfg.ID, cycle)
		if err != nil {
			e.metrics.Errors++
			e.emitOutcome(cycle, events.OutcomeError, start, st, nil,
				truncate("workspace: "+err.Error(), errorSnippetLimit), 0)
			e.resetSession(st)
			return events.OutcomeError
		}
		st.ws = ws
	}

	prompt, err := e.buildPrompt(cycle, st)
	if err != nil {
		e.metrics.Errors++
		claimed := snapshot(st.claims)
		sid := st.id
		recycled := e.abort(st, before)
		e.emitAborted(cycle, events.OutcomeError, start, claimed, recycled,
			truncate("prompt: "+err.Error(), errorSnippetLimit), 0, sid)
		return events.OutcomeError
	}

	inv := harness.Invocation{
		WorkDir:    st.ws.Dir,
		Model:      e.cfg.Model,
		Reasoning:  e.cfg.Reasoning,
		SessionID:  st.id,
		Resume:     st.active && st.id != "",
		Prompt:     prompt,
		Structured: true,
	}
	if !st.active && st.id == "" {
		if sid := e.deps.Harness.NewSessionID(); sid != "" {
			st.id = sid
			inv.SessionID = sid
		}
	}

	res, err := e.deps.Runner.Run(ctx, e.deps.Harness, inv)
	if err != nil || res.ExitCode != 0 {
		e.metrics.Errors++
		claimed := snapshot(st.claims)
		sid := st.id
		recycled := e.abort(st, before)
		e.emit(events.Cycle{
			WorkerID:     e.cfg.ID,
			Cycle:        cycle,
			Outcome:      events.OutcomeError,
			At:           start,
			DurationMS:   msSince(start),
			ClaimedTasks: claimed,
			Recycled:     recycled,
			ErrorSnippet: agentErrorSnippet(res, err),
			SessionID:    sid,
		})
		return events.OutcomeError
	}

	out := e.deps.Harness.ParseOutput([]byte(res.Stdout), st.id)
	if out.SessionID != "" {
		st.id = out.SessionID
	}

	sig := ParseSignal(out.Text)
	span.SetAttributes(attribute.String(tracing.AttrSessionID, st.id))

	switch sig.Kind {
	case SignalDone:
		return e.handleDone(cycle, start, st, before)
	case SignalComplete:
		return e.handleComplete(ctx, cycle, start, st, before)
	case SignalClaim:
		return e.handleClaim(cycle, start, st, sig.TaskIDs)
	default:
		return e.handleWorking(cycle, start, st, before)
	}
}

func (e *Engine) buildPrompt(cycle int, st *session) (string, error) {
	if st.active {
		if st.override != "" {
			p := st.override
			st.override = ""
			return p, nil
		}
		return ResumePrompt, nil
	}

	pending, err := e.deps.Tasks.List(task.StatePending)
	if err != nil {
		return "", err
	}
	current, err := e.deps.Tasks.List(task.StateCurrent)
	if err != nil {
		return "", err
	}
	return e.deps.Prompts.BuildFresh(e.cfg.ID, cycle, pending, current)
}

func (e *Engine) handleDone(cycle int, start time.Time, st *session, before []string) events.Outcome {
	outcome := events.OutcomeExecutorDone
	if e.cfg.CanPlan {
		outcome = events.OutcomeDone
	}
	claimed := snapshot(st.claims)
	sid := st.id
	recycled := e.abort(st, before)
	e.emitAborted(cycle, outcome, start, claimed, recycled, "", 0, sid)
	return outcome
}

func (e *Engine) handleClaim(cycle int, start time.Time, st *session, ids []string) events.Outcome {
	results := e.deps.Tasks.Claim(ids)
	for id, res := range results {
		if res == task.Claimed {
			e.deps.Registry.Claim(id, e.cfg.ID)
			st.claims = append(st.claims, id)
			e.metrics.Claims++
		}
	}
	st.override = ClaimResultsPrompt(results)
	st.active = true
	st.resumes = 0

	e.emitOutcome(cycle, events.OutcomeClaimed, start, st, nil, "", 0)
	return events.OutcomeClaimed
}

func (e *Engine) handleWorking(cycle int, start time.Time, st *session, before []string) events.Outcome {
	st.active = true
	st.resumes++

	if st.resumes > e.cfg.MaxWorkingResumes {
		claimed := snapshot(st.claims)
		sid := st.id
		recycled := e.abort(st, before)
		e.emitAborted(cycle, events.OutcomeStuck, start, claimed, recycled, "", 0, sid)
		return events.OutcomeStuck
	}
	if st.resumes == e.cfg.MaxWorkingResumes {
		st.override = StuckNudge()
	}
	e.emitOutcome(cycle, events.OutcomeWorking, start, st, nil, "", 0)
	return events.OutcomeWorking
}

func (e *Engine) handleComplete(ctx context.Context, cycle int, start time.Time, st *session, before []string) events.Outcome {
	claimed := snapshot(st.claims)

	changed, err := st.ws.HasChanges()
	if err != nil {
		e.metrics.Errors++
		sid := st.id
		recycled := e.abort(st, before)
		e.emitAborted(cycle, events.OutcomeError, start, claimed, recycled,
			truncate(err.Error(), errorSnippetLimit), 0, sid)
		return events.OutcomeError
	}
	if !changed {
		sid := st.id
		recycled := e.abort(st, before)
		e.emitAborted(cycle, events.OutcomeNoChanges, start, claimed, recycled, "", 0, sid)
		return events.OutcomeNoChanges
	}

	verdict := events.VerdictApproved
	rounds := 0
	if taskOnly, tErr := e.taskOnlyDiff(st.ws); tErr != nil || !taskOnly {
		verdict, rounds, err = e.deps.Reviews.Run(ctx, st.ws, e.claimedTasks(st), e.fixer(st))
		e.metrics.ReviewRoundsTotal += rounds
		if err != nil {
			e.metrics.Errors++
			sid := st.id
			recycled := e.abort(st, before)
			e.emitAborted(cycle, events.OutcomeError, start, claimed, recycled,
				truncate(err.Error(), errorSnippetLimit), rounds, sid)
			return events.OutcomeError
		}
	}

	if verdict != events.VerdictApproved {
		e.metrics.Rejections++
		sid := st.id
		recycled := e.abort(st, before)
		e.emitAborted(cycle, events.OutcomeRejected, start, claimed, recycled, "", rounds, sid)
		return events.OutcomeRejected
	}

	// Sync runs after approval, right before the merge: review rounds can
	// take minutes, and a mainline commit landing meanwhile must go through
	// the conflict resolver here, outside the merge lock, not fail the merge.
	syncRes, err := st.ws.SyncWithMain(ctx, e.conflictResolver(st))
	if err != nil || syncRes == workspace.SyncFailed {
		snippet := ""
		if err != nil {
			snippet = truncate(err.Error(), errorSnippetLimit)
		}
		sid := st.id
		recycled := e.abort(st, before)
		e.emitAborted(cycle, events.OutcomeSyncFailed, start, claimed, recycled, snippet, rounds, sid)
		return events.OutcomeSyncFailed
	}

	mres, err := e.deps.Merger.Merge(ctx, merge.Request{
		Workspace:    st.ws,
		TaskIDs:      snapshot(st.claims),
		ReviewRounds: rounds,
	})
	if err != nil || !mres.Merged {
		snippet := mres.Reason
		if err != nil {
			snippet = truncate(err.Error(), errorSnippetLimit)
		}
		sid := st.id
		recycled := e.abort(st, before)
		e.emitAborted(cycle, events.OutcomeMergeFailed, start, claimed, recycled, snippet, rounds, sid)
		return events.OutcomeMergeFailed
	}

	e.metrics.Merges++
	for _, id := range st.claims {
		e.deps.Registry.Release(id)
	}
	st.claims = nil
	sid := st.id
	e.resetSession(st)

	e.emit(events.Cycle{
		WorkerID:     e.cfg.ID,
		Cycle:        cycle,
		Outcome:      events.OutcomeMerged,
		At:           start,
		DurationMS:   msSince(start),
		ClaimedTasks: claimed,
		ReviewRounds: rounds,
		SessionID:    sid,
	})
	return events.OutcomeMerged
}

// conflictResolver resumes the worker's own session to fix merge conflicts.
func (e *Engine) conflictResolver(st *session) workspace.ConflictResolver {
	return func(ctx context.Context, ws *workspace.Workspace, conflicted []string) error {
		res, err := e.deps.Runner.Run(ctx, e.deps.Harness, harness.Invocation{
			WorkDir:    ws.Dir,
			Model:      e.cfg.Model,
			Reasoning:  e.cfg.Reasoning,
			SessionID:  st.id,
			Resume:     st.id != "",
			Prompt:     ConflictPrompt(conflicted),
			Structured: true,
		})
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("conflict resolver exited %d", res.ExitCode)
		}
		out := e.deps.Harness.ParseOutput([]byte(res.Stdout), st.id)
		if out.SessionID != "" {
			st.id = out.SessionID
		}
		return nil
	}
}

// fixer resumes the worker's session with reviewer feedback between rounds.
func (e *Engine) fixer(st *session) review.Fixer {
	return func(ctx context.Context, feedback string, round int) error {
		res, err := e.deps.Runner.Run(ctx, e.deps.Harness, harness.Invocation{
			WorkDir:    st.ws.Dir,
			Model:      e.cfg.Model,
			Reasoning:  e.cfg.Reasoning,
			SessionID:  st.id,
			Resume:     st.id != "",
			Prompt:     FixPrompt(feedback, round),
			Structured: true,
		})
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("fix run exited %d", res.ExitCode)
		}
		out := e.deps.Harness.ParseOutput([]byte(res.Stdout), st.id)
		if out.SessionID != "" {
			st.id = out.SessionID
		}
		return nil
	}
}

// taskOnlyDiff reports whether every changed path is under the task store.
// Such cycles (pure planning output) merge without review.
func (e *Engine) taskOnlyDiff(ws *workspace.Workspace) (bool, error) {
	files, err := ws.ChangedFiles()
	if err != nil {
		return false, err
	}
	if len(files) == 0 {
		return false, nil
	}
	for _, f := range files {
		if !strings.HasPrefix(f, e.cfg.TaskPathPrefix) {
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) claimedTasks(st *session) []task.Task {
	tasks := make([]task.Task, 0, len(st.claims))
	for _, id := range st.claims {
		if t, err := e.deps.Tasks.Get(task.StateCurrent, id); err == nil {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

// abort recycles the session's claims plus any orphaned ids, releases the
// workspace, and resets the session. Returns the recycled ids.
func (e *Engine) abort(st *session, before []string) []string {
	recycled := e.recycleClaims(st, before)
	e.releaseWorkspace(st)
	e.resetSession(st)
	return recycled
}

// recycleClaims returns claimed and orphaned ids to pending. Orphans are
// ids that appeared in current/ during the cycle and are not owned by
// another live worker in this process.
func (e *Engine) recycleClaims(st *session, before []string) []string {
	set := make(map[string]struct{}, len(st.claims))
	for _, id := range st.claims {
		set[id] = struct{}{}
	}

	if before != nil {
		beforeSet := make(map[string]struct{}, len(before))
		for _, id := range before {
			beforeSet[id] = struct{}{}
		}
		after, err := e.deps.Tasks.IDs(task.StateCurrent)
		if err == nil {
			for _, id := range after {
				if _, existed := beforeSet[id]; existed {
					continue
				}
				if e.deps.Registry.OwnedByOther(id, e.cfg.ID) {
					continue
				}
				set[id] = struct{}{}
			}
		}
	}

	if len(set) == 0 {
		st.claims = nil
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	if err := e.deps.Tasks.Recycle(ids); err != nil {
		log.Warn(log.CatWorker, "recycle failed", "worker", e.cfg.ID, "error", err.Error())
	}
	for _, id := range ids {
		e.deps.Registry.Release(id)
	}
	e.metrics.Recycled += len(ids)
	st.claims = nil
	return ids
}

func (e *Engine) releaseWorkspace(st *session) {
	if st.ws == nil {
		return
	}
	if err := e.deps.Workspaces.Release(st.ws); err != nil {
		log.Warn(log.CatWorker, "workspace release failed",
			"worker", e.cfg.ID, "error", err.Error())
	}
	st.ws = nil
}

func (e *Engine) resetSession(st *session) {
	e.releaseWorkspace(st)
	st.id = ""
	st.active = false
	st.resumes = 0
	st.override = ""
}

// emitOutcome writes a cycle event for a continuing session.
func (e *Engine) emitOutcome(cycle int, outcome events.Outcome, start time.Time, st *session, recycled []string, snippet string, rounds int) {
	e.emit(events.Cycle{
		WorkerID:     e.cfg.ID,
		Cycle:        cycle,
		Outcome:      outcome,
		At:           start,
		DurationMS:   msSince(start),
		ClaimedTasks: snapshot(st.claims),
		Recycled:     recycled,
		ErrorSnippet: snippet,
		ReviewRounds: rounds,
		SessionID:    st.id,
	})
}

// emitAborted writes a cycle event after abort already cleared the
// session. sessionID is the id the session held before the reset.
func (e *Engine) emitAborted(cycle int, outcome events.Outcome, start time.Time, claimed, recycled []string, snippet string, rounds int, sessionID string) {
	e.emit(events.Cycle{
		WorkerID:     e.cfg.ID,
		Cycle:        cycle,
		Outcome:      outcome,
		At:           start,
		DurationMS:   msSince(start),
		ClaimedTasks: claimed,
		Recycled:     recycled,
		ErrorSnippet: snippet,
		ReviewRounds: rounds,
		SessionID:    sessionID,
	})
}

func (e *Engine) emit(ev events.Cycle) {
	if e.deps.Recorder != nil {
		if err := e.deps.Recorder.WriteCycle(ev); err != nil {
			log.Warn(log.CatWorker, "record cycle failed",
				"worker", e.cfg.ID, "cycle", ev.Cycle, "error", err.Error())
		}
	}
	if e.deps.Updates != nil {
		e.deps.Updates.Publish(pubsub.CycleEvent, Update{
			WorkerID: e.cfg.ID,
			Cycle:    ev.Cycle,
			Outcome:  ev.Outcome,
			Metrics:  e.metrics,
		})
	}
	log.Info(log.CatWorker, "cycle finished",
		"worker", e.cfg.ID, "cycle", ev.Cycle, "outcome", string(ev.Outcome))
}

func snapshot(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	return append([]string(nil), ids...)
}

func msSince(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

func agentErrorSnippet(res harness.Result, err error) string {
	var parts []string
	if err != nil {
		parts = append(parts, err.Error())
	}
	if res.Stderr != "" {
		parts = append(parts, res.Stderr)
	}
	if res.Stdout != "" {
		parts = append(parts, res.Stdout)
	}
	return truncate(strings.Join(parts, "\n"), errorSnippetLimit)
}
