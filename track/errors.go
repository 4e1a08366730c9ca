package track

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/hoist/types"
)

// ErrBuildCancelled is returned when the remote build reaches cancelled.
var ErrBuildCancelled = errors.New("build was cancelled")

// ErrTrackingStopped is returned when tracking is interrupted locally.
// The remote build is left untouched and keeps running.
var ErrTrackingStopped = errors.New("tracking stopped; the remote build continues")

// BuildFailedError is returned when the remote build reaches failed.
type BuildFailedError struct {
	Record *types.BuildRecord
}

func (e *BuildFailedError) Error() string {
	if e.Record == nil {
		return "build failed"
	}
	if e.Record.ErrorContext != nil {
		return fmt.Sprintf("build %s %s", e.Record.BuildID, e.Record.FailureMessage())
	}
	return fmt.Sprintf("build %s failed: %s", e.Record.BuildID, e.Record.FailureMessage())
}

// TimeoutError is returned when the tracking deadline passes before the
// build reaches a terminal status. It says nothing about the remote build.
type TimeoutError struct {
	BuildID    string
	Timeout    time.Duration
	LastStatus types.BuildStatus
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("build %s did not finish within %s", e.BuildID, e.Timeout)
	if e.LastStatus != "" {
		msg += fmt.Sprintf(" (last status: %s)", e.LastStatus.Label())
	}
	return msg
}
