// Package worker drives a single swarm worker through its cycles:
// isolate, run the agent, parse its signal, review, merge, record.
package worker

import (
	"regexp"
	"strings"
)

// Agent signals, embedded anywhere in agent output.
const (
	SignalDoneMarker     = "__DONE__"
	SignalCompleteMarker = "COMPLETE_AND_READY_FOR_MERGE"
)

var claimPattern = regexp.MustCompile(`CLAIM\(([^)]*)\)`)

// SignalKind classifies the highest-priority signal found in agent output.
type SignalKind int

const (
	// SignalNone means the agent is still working.
	SignalNone SignalKind = iota
	// SignalClaim means the agent wants the listed tasks claimed.
	SignalClaim
	// SignalComplete means the agent believes its work is ready to merge.
	SignalComplete
	// SignalDone means the agent has nothing left to do.
	SignalDone
)

// Signal is the parsed result of one agent run.
type Signal struct {
	Kind SignalKind

	// TaskIDs holds the claim list when Kind is SignalClaim.
	TaskIDs []string
}

// ParseSignal scans agent output for control signals.
// Priority when several appear: __DONE__ beats COMPLETE beats CLAIM.
// Markers are matched case-sensitively as substrings; CLAIM ids are
// comma-separated, trimmed, and empty entries dropped.
func ParseSignal(text string) Signal {
	if strings.Contains(text, SignalDoneMarker) {
		return Signal{Kind: SignalDone}
	}
	if strings.Contains(text, SignalCompleteMarker) {
		return Signal{Kind: SignalComplete}
	}
	if m := claimPattern.FindStringSubmatch(text); m != nil {
		var ids []string
		for _, id := range strings.Split(m[1], ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				ids = append(ids, id)
			}
		}
		return Signal{Kind: SignalClaim, TaskIDs: ids}
	}
	return Signal{Kind: SignalNone}
}
