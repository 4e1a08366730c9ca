package types

import (
	"fmt"
	"strings"
	"time"
)

// ErrorContext is the diagnostic payload attached to a failed build.
// It is advisory only and never drives control flow.
type ErrorContext struct {
	Stage       StageName `json:"stage,omitempty" yaml:"stage,omitempty"`
	SubStage    string    `json:"subStage,omitempty" yaml:"sub_stage,omitempty"`
	ExitCode    *int      `json:"exitCode,omitempty" yaml:"exit_code,omitempty"`
	Causes      []string  `json:"causes,omitempty" yaml:"causes,omitempty"`
	Remediation []string  `json:"remediation,omitempty" yaml:"remediation,omitempty"`
}

// Location returns "stage" or "stage/sub-stage".
func (e *ErrorContext) Location() string {
	if e == nil || e.Stage == "" {
		return ""
	}
	if e.SubStage != "" {
		return string(e.Stage) + "/" + e.SubStage
	}
	return string(e.Stage)
}

// Summary is a one-line description of where and how the build failed.
func (e *ErrorContext) Summary() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	if loc := e.Location(); loc != "" {
		fmt.Fprintf(&b, "failed in %s", loc)
	} else {
		b.WriteString("failed")
	}
	if e.ExitCode != nil {
		fmt.Fprintf(&b, " (exit code %d)", *e.ExitCode)
	}
	if len(e.Causes) > 0 {
		fmt.Fprintf(&b, ": %s", e.Causes[0])
	}
	return b.String()
}

// Rollout is the remote-side gradual traffic shift after a deploy.
// It is observed and displayed, never acted on.
type Rollout struct {
	Phase   string `json:"phase,omitempty" yaml:"phase,omitempty"`
	Percent int    `json:"percent" yaml:"percent"`
}

// BuildRecord is a read-only snapshot of the remote pipeline state for one
// deployment attempt. Each poll produces a fresh record that supersedes the
// previous one.
type BuildRecord struct {
	BuildID      string        `json:"buildId" yaml:"build_id"`
	ProjectID    string        `json:"projectId,omitempty" yaml:"project_id,omitempty"`
	Status       BuildStatus   `json:"status" yaml:"status"`
	CreatedAt    time.Time     `json:"createdAt" yaml:"created_at"`
	UpdatedAt    time.Time     `json:"updatedAt" yaml:"updated_at"`
	Error        string        `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorContext *ErrorContext `json:"errorContext,omitempty" yaml:"error_context,omitempty"`
	Stages       *Stages       `json:"stages,omitempty" yaml:"stages,omitempty"`
	Rollout      *Rollout      `json:"rollout,omitempty" yaml:"rollout,omitempty"`
	URL          string        `json:"url,omitempty" yaml:"url,omitempty"`
}

// FailureMessage returns the most specific description of a failure:
// the error context summary when present, else the raw error message.
func (r *BuildRecord) FailureMessage() string {
	if r == nil {
		return ""
	}
	if r.ErrorContext != nil {
		msg := r.ErrorContext.Summary()
		if r.Error != "" && !strings.Contains(msg, r.Error) {
			msg += " (" + r.Error + ")"
		}
		return msg
	}
	if r.Error != "" {
		return r.Error
	}
	return "build " + r.Status.Label()
}

// LogsResponse is the payload of GET logs/<build id>: every log line
// observed so far, plus the current status.
type LogsResponse struct {
	BuildID string      `json:"buildId" yaml:"build_id"`
	Status  BuildStatus `json:"status" yaml:"status"`
	Logs    []string    `json:"logs" yaml:"logs"`
}
