// Package events defines the immutable record files the orchestrator
// emits while a swarm runs. Everything an outside observer can know about
// a swarm - status commands, dashboards, debugging - derives from these
// files; the framework never writes summaries or aggregates.
package events

import "time"

// Outcome is the terminal classification of one worker cycle.
type Outcome string

const (
	OutcomeMerged       Outcome = "merged"
	OutcomeRejected     Outcome = "rejected"
	OutcomeError        Outcome = "error"
	OutcomeNoChanges    Outcome = "no-changes"
	OutcomeDone         Outcome = "done"
	OutcomeWorking      Outcome = "working"
	OutcomeExecutorDone Outcome = "executor-done"
	OutcomeClaimed      Outcome = "claimed"
	OutcomeSyncFailed   Outcome = "sync-failed"
	OutcomeMergeFailed  Outcome = "merge-failed"
	OutcomeInterrupted  Outcome = "interrupted"
	OutcomeStuck        Outcome = "stuck"
)

// StopReason explains why the swarm stopped.
type StopReason string

const (
	ReasonCompleted   StopReason = "completed"
	ReasonInterrupted StopReason = "interrupted"
	ReasonError       StopReason = "error"
)

// Verdict is a reviewer's judgment of a proposed change.
type Verdict string

const (
	VerdictApproved     Verdict = "approved"
	VerdictNeedsChanges Verdict = "needs-changes"
	VerdictRejected     Verdict = "rejected"
)

// WorkerInfo is the immutable worker configuration recorded at launch.
type WorkerInfo struct {
	ID        string `yaml:"id"`
	Harness   string `yaml:"harness"`
	Model     string `yaml:"model"`
	Reasoning string `yaml:"reasoning,omitempty"`
	MaxCycles int    `yaml:"max_cycles"`
	CanPlan   bool   `yaml:"can_plan"`
}

// ReviewerInfo is the reviewer binding recorded at launch.
type ReviewerInfo struct {
	Harness   string `yaml:"harness"`
	Model     string `yaml:"model"`
	MaxRounds int    `yaml:"max_rounds"`
}

// Started is written exactly once at swarm launch.
type Started struct {
	SwarmID    string        `yaml:"swarm_id"`
	StartedAt  time.Time     `yaml:"started_at"`
	PID        int           `yaml:"pid"`
	ConfigPath string        `yaml:"config_path"`
	Workers    []WorkerInfo  `yaml:"workers"`
	Planner    *WorkerInfo   `yaml:"planner,omitempty"`
	Reviewer   *ReviewerInfo `yaml:"reviewer,omitempty"`
}

// Stopped is written exactly once at swarm end.
type Stopped struct {
	StoppedAt time.Time  `yaml:"stopped_at"`
	Reason    StopReason `yaml:"reason"`
	Error     string     `yaml:"error,omitempty"`
}

// Cycle is written once per cycle per worker.
type Cycle struct {
	WorkerID     string    `yaml:"worker_id"`
	Cycle        int       `yaml:"cycle"`
	Outcome      Outcome   `yaml:"outcome"`
	At           time.Time `yaml:"at"`
	DurationMS   int64     `yaml:"duration_ms"`
	ClaimedTasks []string  `yaml:"claimed_task_ids"`
	Recycled     []string  `yaml:"recycled_tasks"`
	ErrorSnippet string    `yaml:"error_snippet,omitempty"`
	ReviewRounds int       `yaml:"review_rounds"`
	SessionID    string    `yaml:"session_id,omitempty"`
}

// Review is written once per review round.
type Review struct {
	WorkerID  string    `yaml:"worker_id"`
	Cycle     int       `yaml:"cycle"`
	Round     int       `yaml:"round"`
	Verdict   Verdict   `yaml:"verdict"`
	At        time.Time `yaml:"at"`
	Output    string    `yaml:"output"`
	DiffFiles []string  `yaml:"diff_files"`
}
