// Package types defines the domain types shared by hoist packages:
// the remote build model, archive descriptors, and deployment API payloads.
//
//nolint:revive // types is a common Go package naming convention
package types

import "strings"

// BuildStatus is the remote pipeline status of one deployment attempt.
//
// Pipeline order:
//
//	init → uploaded → queued → building → deploying → built
//
// failed is reachable from queued, building and deploying. cancelled is
// reachable only from queued and building, via an explicit cancel call.
type BuildStatus string

const (
	// StatusInit is the state right after POST init, before the archive lands.
	StatusInit BuildStatus = "init"
	// StatusUploaded means the upload was acknowledged by POST complete.
	StatusUploaded BuildStatus = "uploaded"
	// StatusQueued means the build waits for a remote worker.
	StatusQueued BuildStatus = "queued"
	// StatusBuilding means the remote worker is building the archive.
	StatusBuilding BuildStatus = "building"
	// StatusDeploying means the built artifact is being rolled out.
	StatusDeploying BuildStatus = "deploying"
	// StatusBuilt is the canonical terminal success status.
	StatusBuilt BuildStatus = "built"
	// StatusFailed is the terminal failure status.
	StatusFailed BuildStatus = "failed"
	// StatusCancelled is the terminal status after an explicit cancel.
	StatusCancelled BuildStatus = "cancelled"
)

// Legacy aliases reported by older API versions. They are accepted on input
// and normalized by Canonical; hoist never produces them.
const (
	StatusCompleted BuildStatus = "completed"
	StatusDeployed  BuildStatus = "deployed"
	StatusActive    BuildStatus = "active"
	StatusCanceled  BuildStatus = "canceled"
)

// Canonical maps legacy aliases onto their canonical status.
// Unknown values are lowercased and returned as is.
func (s BuildStatus) Canonical() BuildStatus {
	switch v := BuildStatus(strings.ToLower(strings.TrimSpace(string(s)))); v {
	case StatusBuilt, StatusCompleted, StatusDeployed, StatusActive:
		return StatusBuilt
	case StatusCancelled, StatusCanceled:
		return StatusCancelled
	default:
		return v
	}
}

// IsSuccess reports whether s is terminal success (built or an alias).
func (s BuildStatus) IsSuccess() bool {
	return s.Canonical() == StatusBuilt
}

// IsFailure reports whether s is terminal failure.
func (s BuildStatus) IsFailure() bool {
	return s.Canonical() == StatusFailed
}

// IsCancelled reports whether the build was cancelled remotely.
func (s BuildStatus) IsCancelled() bool {
	return s.Canonical() == StatusCancelled
}

// IsTerminal reports whether no further transition can happen.
func (s BuildStatus) IsTerminal() bool {
	return s.IsSuccess() || s.IsFailure() || s.IsCancelled()
}

// IsCancellable reports whether an explicit cancel call is meaningful.
func (s BuildStatus) IsCancellable() bool {
	switch s.Canonical() {
	case StatusQueued, StatusBuilding:
		return true
	default:
		return false
	}
}

// IsKnown reports whether s (after normalization) is part of the state machine.
func (s BuildStatus) IsKnown() bool {
	_, ok := pipelineRank[s.Canonical()]
	return ok || s.IsFailure() || s.IsCancelled()
}

// pipelineRank orders the non-failure statuses along the pipeline.
var pipelineRank = map[BuildStatus]int{
	StatusInit:      0,
	StatusUploaded:  1,
	StatusQueued:    2,
	StatusBuilding:  3,
	StatusDeploying: 4,
	StatusBuilt:     5,
}

// CanTransition reports whether the remote pipeline may move from one status
// to another. Forward skips along the pipeline are allowed because a poller
// can miss short-lived states. Staying in the same status is always allowed.
// Terminal statuses never transition.
func CanTransition(from, to BuildStatus) bool {
	from, to = from.Canonical(), to.Canonical()
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return false
	}

	switch to {
	case StatusFailed:
		switch from {
		case StatusQueued, StatusBuilding, StatusDeploying:
			return true
		}
		return false
	case StatusCancelled:
		return from.IsCancellable()
	}

	fromRank, okFrom := pipelineRank[from]
	toRank, okTo := pipelineRank[to]
	if !okFrom || !okTo {
		return false
	}
	return toRank > fromRank
}

// Label returns a short human label for the status.
func (s BuildStatus) Label() string {
	switch s.Canonical() {
	case StatusInit:
		return "initializing"
	case StatusUploaded:
		return "uploaded"
	case StatusQueued:
		return "queued"
	case StatusBuilding:
		return "building"
	case StatusDeploying:
		return "deploying"
	case StatusBuilt:
		return "deployed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		if s == "" {
			return "unknown"
		}
		return string(s)
	}
}
