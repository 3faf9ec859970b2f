// Package swarm launches and supervises a set of worker engines over a
// shared git repository. The coordinator owns everything process-wide:
// launch validation, the run's event recorder, the shared claim registry
// and merge lock, and graceful shutdown.
package swarm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/oompa/internal/config"
	"github.com/zjrosen/oompa/internal/events"
	"github.com/zjrosen/oompa/internal/git"
	"github.com/zjrosen/oompa/internal/harness"
	"github.com/zjrosen/oompa/internal/log"
	"github.com/zjrosen/oompa/internal/merge"
	"github.com/zjrosen/oompa/internal/pubsub"
	"github.com/zjrosen/oompa/internal/review"
	"github.com/zjrosen/oompa/internal/task"
	"github.com/zjrosen/oompa/internal/worker"
	"github.com/zjrosen/oompa/internal/workspace"
)

// DefaultGrace is how long the coordinator waits for in-flight cycles
// after a shutdown signal before giving up on them.
const DefaultGrace = 10 * time.Second

const watcherDebounce = 250 * time.Millisecond

// Options are the injectable collaborators. Zero values select the real
// implementations; tests swap in fakes.
type Options struct {
	RootGit     git.Executor
	NewExecutor func(dir string) git.Executor
	NewHarness  func(kind harness.Kind) (harness.Harness, error)
	Runner      harness.Runner
	Shutdown    *Shutdown
	Tracer      trace.Tracer
	Grace       time.Duration

	// SkipProbes bypasses the launch-time model probes.
	SkipProbes bool
}

// Coordinator runs one swarm from launch to the stopped event.
type Coordinator struct {
	cfg        config.Config
	configPath string
	opts       Options

	swarmID  string
	recorder *events.Recorder
	stopOnce sync.Once
	panicked atomic.Bool
}

// New builds a coordinator for the given validated config. configPath is
// recorded in the started event so later runs can be traced back to the
// file that launched them.
func New(cfg config.Config, configPath string, opts Options) *Coordinator {
	if opts.NewExecutor == nil {
		opts.NewExecutor = func(dir string) git.Executor { return git.NewRealExecutor(dir) }
	}
	if opts.NewHarness == nil {
		opts.NewHarness = harness.New
	}
	if opts.Runner == nil {
		opts.Runner = &harness.SubprocessRunner{Timeout: cfg.Timeout()}
	}
	if opts.Shutdown == nil {
		opts.Shutdown = NewShutdown()
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	return &Coordinator{cfg: cfg, configPath: configPath, opts: opts}
}

// SwarmID returns the run identifier. Empty until Run has started.
func (c *Coordinator) SwarmID() string { return c.swarmID }

// Run launches the swarm and blocks until every worker finishes or a
// shutdown signal arrives and the grace window closes. The stopped event
// is written exactly once on every path out of this function, including
// a coordinator panic, which stops the run with reason error.
func (c *Coordinator) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			panicErr := fmt.Errorf("coordinator panic: %v", r)
			log.ErrorErr(log.CatSwarm, "coordinator panicked", panicErr)
			c.writeStopped(events.ReasonError, panicErr)
			err = panicErr
		}
	}()
	return c.run(ctx)
}

func (c *Coordinator) run(ctx context.Context) error {
	projectRoot, err := filepath.Abs(c.cfg.ProjectRoot)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	rootGit := c.opts.RootGit
	if rootGit == nil {
		rootGit = git.NewRealExecutor(projectRoot)
	}
	mainBranch, err := c.validateRepo(rootGit, projectRoot)
	if err != nil {
		return err
	}

	harnesses, err := c.resolveHarnesses(ctx)
	if err != nil {
		return err
	}

	c.swarmID = NewSwarmID()
	c.recorder = events.NewRecorder(resolvePath(projectRoot, c.cfg.RunsRoot), c.swarmID)

	store := task.NewStore(resolvePath(projectRoot, c.cfg.TasksRoot))
	if err := store.EnsureDirs(); err != nil {
		return fmt.Errorf("prepare task queue: %w", err)
	}

	if err := c.writeStarted(); err != nil {
		return err
	}
	log.Info(log.CatSwarm, "swarm started",
		"swarm_id", c.swarmID, "workers", len(c.cfg.Workers), "main", mainBranch)

	watchCancel := c.watchTasks(store)
	defer watchCancel()

	stopListen := c.opts.Shutdown.Listen()
	defer stopListen()

	broker := pubsub.NewBroker[worker.Update]()
	defer broker.Close()
	updatesCtx, cancelUpdates := context.WithCancel(context.Background())
	defer cancelUpdates()
	go logUpdates(broker.Subscribe(updatesCtx))

	workspaces := workspace.NewManagerWith(projectRoot, mainBranch, rootGit, c.opts.NewExecutor)
	merger := merge.NewCoordinator(rootGit, mainBranch, store).WithTracer(c.opts.Tracer)
	registry := worker.NewClaimRegistry()

	var reviews *review.Loop
	if r := c.cfg.Reviewer; r != nil {
		reviews = review.NewLoop(harnesses[harness.Kind(r.Harness)], c.opts.Runner, c.recorder, review.Config{
			MaxRounds: r.MaxRounds,
			Model:     r.Model,
			Reasoning: r.Reasoning,
		}).WithTracer(c.opts.Tracer)
	}

	taskPrefix := strings.TrimSuffix(filepath.ToSlash(c.cfg.TasksRoot), "/") + "/"

	var wg sync.WaitGroup
	errCh := make(chan error, len(c.cfg.Workers))
	for i, wcfg := range c.cfg.Workers {
		id := config.WorkerID(i)
		mode := "execute"
		if wcfg.Plans() {
			mode = "plan"
		}
		engine := worker.NewEngine(worker.Config{
			ID:                id,
			Model:             wcfg.Model,
			Reasoning:         wcfg.Reasoning,
			MaxCycles:         wcfg.MaxCycles,
			PromptFiles:       wcfg.PromptFiles,
			CanPlan:           wcfg.Plans(),
			WaitBetween:       wcfg.WaitBetween(),
			MaxWorkingResumes: wcfg.MaxWorkingResumes,
			TaskPathPrefix:    taskPrefix,
		}, worker.Deps{
			Harness:    harnesses[harness.Kind(wcfg.Harness)],
			Runner:     c.opts.Runner,
			Tasks:      store,
			Workspaces: workspaces,
			Merger:     merger,
			Reviews:    reviews,
			Recorder:   c.recorder,
			Prompts:    &worker.PromptBuilder{Files: wcfg.PromptFiles, Ctx: worker.StaticContext{Mode: mode}},
			Registry:   registry,
			Updates:    broker,
			Tracer:     c.opts.Tracer,
			Shutdown:   c.opts.Shutdown.Requested,
		})
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					panicErr := fmt.Errorf("worker %s panicked: %v", id, r)
					log.ErrorErr(log.CatSwarm, "worker panicked", panicErr, "worker", id)
					c.panicked.Store(true)
					errCh <- panicErr
				}
			}()
			if err := engine.Run(ctx); err != nil {
				log.ErrorErr(log.CatSwarm, "worker stopped with error", err, "worker", id)
				errCh <- err
			}
		}(id)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-c.opts.Shutdown.Done():
		select {
		case <-done:
		case <-time.After(c.opts.Grace):
			log.Warn(log.CatSwarm, "grace window expired with workers still running",
				"grace", c.opts.Grace.String())
		}
	}
	reason := events.ReasonCompleted
	if c.opts.Shutdown.Requested() {
		reason = events.ReasonInterrupted
	}
	if c.panicked.Load() {
		reason = events.ReasonError
	}

	// Workers past the grace window may still be running; drain what has
	// arrived rather than closing the channel under them.
	var workerErrs []error
drain:
	for {
		select {
		case err := <-errCh:
			workerErrs = append(workerErrs, err)
		default:
			break drain
		}
	}
	runErr := errors.Join(workerErrs...)

	c.writeStopped(reason, runErr)
	log.Info(log.CatSwarm, "swarm stopped", "swarm_id", c.swarmID, "reason", string(reason))
	return runErr
}

// Stop requests a graceful shutdown, as if SIGINT had arrived.
func (c *Coordinator) Stop() { c.opts.Shutdown.Trigger() }

func (c *Coordinator) validateRepo(rootGit git.Executor, projectRoot string) (string, error) {
	if !rootGit.IsGitRepo() {
		return "", fmt.Errorf("%s is not a git repository", projectRoot)
	}
	dirty, err := rootGit.HasUncommittedChanges()
	if err != nil {
		return "", fmt.Errorf("inspect working tree: %w", err)
	}
	if dirty {
		return "", fmt.Errorf("working tree at %s has uncommitted changes, commit or stash them first", projectRoot)
	}
	mainBranch := c.cfg.MainBranch
	if mainBranch == "" {
		mainBranch, err = rootGit.GetMainBranch()
		if err != nil {
			return "", fmt.Errorf("detect main branch: %w", err)
		}
	}
	return mainBranch, nil
}

// resolveHarnesses builds one adapter per kind in use and verifies each
// binary is on PATH. Unless probes are skipped, every unique kind/model
// pair gets a live "say ok" round trip before any worker starts.
func (c *Coordinator) resolveHarnesses(ctx context.Context) (map[harness.Kind]harness.Harness, error) {
	type pair struct {
		kind  harness.Kind
		model string
	}
	var pairs []pair
	for _, w := range c.cfg.Workers {
		pairs = append(pairs, pair{harness.Kind(w.Harness), w.Model})
	}
	if r := c.cfg.Reviewer; r != nil {
		pairs = append(pairs, pair{harness.Kind(r.Harness), r.Model})
	}

	harnesses := make(map[harness.Kind]harness.Harness)
	for _, p := range pairs {
		if _, ok := harnesses[p.kind]; ok {
			continue
		}
		h, err := c.opts.NewHarness(p.kind)
		if err != nil {
			return nil, err
		}
		if !h.Available() {
			return nil, fmt.Errorf("harness %s: binary not found on PATH", p.kind)
		}
		harnesses[p.kind] = h
	}

	if c.opts.SkipProbes {
		return harnesses, nil
	}
	probed := make(map[pair]bool)
	for _, p := range pairs {
		if probed[p] {
			continue
		}
		probed[p] = true
		if err := harness.Probe(ctx, harnesses[p.kind], p.model, harness.DefaultProbeTimeout); err != nil {
			return nil, err
		}
	}
	return harnesses, nil
}

func (c *Coordinator) writeStarted() error {
	started := events.Started{
		SwarmID:    c.swarmID,
		StartedAt:  time.Now().UTC(),
		PID:        os.Getpid(),
		ConfigPath: c.configPath,
		Workers:    make([]events.WorkerInfo, 0, len(c.cfg.Workers)),
	}
	for i, w := range c.cfg.Workers {
		info := events.WorkerInfo{
			ID:        config.WorkerID(i),
			Harness:   w.Harness,
			Model:     w.Model,
			Reasoning: w.Reasoning,
			MaxCycles: w.MaxCycles,
			CanPlan:   w.Plans(),
		}
		started.Workers = append(started.Workers, info)
		if w.Plans() && started.Planner == nil {
			planner := info
			started.Planner = &planner
		}
	}
	if r := c.cfg.Reviewer; r != nil {
		rounds := r.MaxRounds
		if rounds == 0 {
			rounds = review.DefaultMaxRounds
		}
		started.Reviewer = &events.ReviewerInfo{Harness: r.Harness, Model: r.Model, MaxRounds: rounds}
	}
	if err := c.recorder.WriteStarted(started); err != nil {
		return fmt.Errorf("record swarm start: %w", err)
	}
	return nil
}

func (c *Coordinator) writeStopped(reason events.StopReason, runErr error) {
	if c.recorder == nil {
		// Failed before the run directory existed; nothing to record.
		return
	}
	c.stopOnce.Do(func() {
		stopped := events.Stopped{StoppedAt: time.Now().UTC(), Reason: reason}
		if runErr != nil {
			stopped.Error = runErr.Error()
		}
		if err := c.recorder.WriteStopped(stopped); err != nil {
			log.ErrorErr(log.CatEvents, "failed to record swarm stop", err)
		}
	})
}

// watchTasks starts the filesystem watcher on the queue, logging queue
// depth on change. Watching is best effort; a watcher that cannot start
// only costs the log line.
func (c *Coordinator) watchTasks(store *task.Store) func() {
	w, err := task.NewWatcher(store, watcherDebounce)
	if err != nil {
		log.Warn(log.CatTask, "task watcher unavailable", "error", err.Error())
		return func() {}
	}
	changes, err := w.Start()
	if err != nil {
		log.Warn(log.CatTask, "task watcher failed to start", "error", err.Error())
		return func() {}
	}
	go func() {
		for range changes {
			pending, err := store.PendingCount()
			if err != nil {
				continue
			}
			log.Debug(log.CatTask, "task queue changed", "pending", pending)
		}
	}()
	return func() {
		if err := w.Stop(); err != nil {
			log.Debug(log.CatTask, "task watcher stop", "error", err.Error())
		}
	}
}

func logUpdates(sub <-chan pubsub.Event[worker.Update]) {
	for ev := range sub {
		u := ev.Payload
		log.Info(log.CatSwarm, "cycle finished",
			"worker", u.WorkerID,
			"cycle", u.Cycle,
			"outcome", string(u.Outcome),
			"merges", u.Metrics.Merges,
			"errors", u.Metrics.Errors)
	}
}

// NewSwarmID mints a short run identifier, eight hex characters of a
// fresh UUID.
func NewSwarmID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func resolvePath(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
