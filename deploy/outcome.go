package deploy

import (
	"errors"

	"github.com/pithecene-io/hoist/apierr"
	"github.com/pithecene-io/hoist/track"
)

// Outcome is how a deployment attempt ended from the client's side.
type Outcome string

const (
	// OutcomeSucceeded means the remote build reached terminal success.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed covers local, transport, and remote build failures.
	OutcomeFailed Outcome = "failed"
	// OutcomeTimedOut means tracking gave up; the remote outcome is unknown.
	OutcomeTimedOut Outcome = "timed_out"
	// OutcomeStopped means tracking was interrupted locally.
	OutcomeStopped Outcome = "stopped"
	// OutcomeSubmitted means the upload completed and tracking was skipped.
	OutcomeSubmitted Outcome = "submitted"
)

// Exit codes returned by the hoist binary.
const (
	ExitCodeSuccess     = 0 // success, submitted, or stopped observing
	ExitCodeError       = 1 // precondition, local build, archive, or transport failure
	ExitCodeBuildFailed = 2 // remote build failed or was cancelled
	ExitCodeTimeout     = 3 // tracking deadline passed
)

// ExitCode maps a finished command to the process exit code.
//
// Mapping:
//   - nil error: 0
//   - *track.BuildFailedError or track.ErrBuildCancelled: 2
//   - *track.TimeoutError: 3
//   - track.ErrTrackingStopped: 0
//   - anything else: 1
func ExitCode(err error) int {
	if err == nil || errors.Is(err, track.ErrTrackingStopped) {
		return ExitCodeSuccess
	}
	var failed *track.BuildFailedError
	if errors.As(err, &failed) || errors.Is(err, track.ErrBuildCancelled) {
		return ExitCodeBuildFailed
	}
	var timeout *track.TimeoutError
	if errors.As(err, &timeout) {
		return ExitCodeTimeout
	}
	return ExitCodeError
}

// TrackingOutcome classifies the error returned by Tracker.Track.
func TrackingOutcome(err error) Outcome {
	var timeout *track.TimeoutError
	switch {
	case err == nil:
		return OutcomeSucceeded
	case errors.Is(err, track.ErrTrackingStopped):
		return OutcomeStopped
	case errors.As(err, &timeout):
		return OutcomeTimedOut
	default:
		return OutcomeFailed
	}
}

// TrackingError prepares an error returned by Tracker.Track or Follow for
// the operator. Build failures, cancellations, timeouts and interrupts keep
// their own messages; anything else is a deployment API failure.
func TrackingError(err error) error {
	var failed *track.BuildFailedError
	switch {
	case TrackingOutcome(err) != OutcomeFailed:
		return err
	case errors.As(err, &failed), errors.Is(err, track.ErrBuildCancelled):
		return err
	default:
		return apierr.Contextualize(apierr.ContextDeployment, err)
	}
}
