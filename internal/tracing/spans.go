package tracing

// Span attribute keys for swarm tracing.
const (
	AttrSwarmID = "swarm.id"

	AttrWorkerID    = "worker.id"
	AttrWorkerCycle = "worker.cycle"
	AttrWorkerState = "worker.state"

	AttrCycleOutcome = "cycle.outcome"
	AttrTaskIDs      = "task.ids"
	AttrSessionID    = "session.id"
	AttrHarnessKind  = "harness.kind"

	AttrMergeBranch = "merge.branch"
	AttrMergeCommit = "merge.commit"

	AttrReviewRound   = "review.round"
	AttrReviewVerdict = "review.verdict"

	AttrErrorMessage = "error.message"
)

// Span names.
const (
	SpanCycle  = "swarm.cycle"
	SpanAgent  = "swarm.agent"
	SpanSync   = "swarm.sync"
	SpanMerge  = "swarm.merge"
	SpanReview = "swarm.review"
)
