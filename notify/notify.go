// Package notify defines the deployment-completed notification boundary.
//
// Notifiers publish one event per finished deployment to a downstream
// system. Delivery is best effort: the orchestrator logs failures and
// never changes the deployment outcome because of them.
package notify

import (
	"context"
	"time"

	"github.com/pithecene-io/hoist/retry"
)

// EventTypeDeploymentCompleted is the only event type published.
const EventTypeDeploymentCompleted = "deployment_completed"

// DefaultRetries is the default number of retry attempts after the first.
const DefaultRetries = 3

// DefaultBackoff is the delay before the first retry.
const DefaultBackoff = 500 * time.Millisecond

// DeploymentCompletedEvent is the payload published when a deployment
// finishes, whatever its outcome.
type DeploymentCompletedEvent struct {
	EventType  string `json:"event_type"`
	ProjectID  string `json:"project_id"`
	BuildID    string `json:"build_id"`
	Status     string `json:"status"`
	Outcome    string `json:"outcome"`
	URL        string `json:"url,omitempty"`
	Checksum   string `json:"checksum,omitempty"`
	Error      string `json:"error,omitempty"`
	Timestamp  string `json:"timestamp"` // RFC 3339
	Attempt    int    `json:"attempt"`
	DurationMs int64  `json:"duration_ms"`
}

// Notifier publishes deployment completion events.
type Notifier interface {
	// Publish sends one event. Must respect context cancellation.
	Publish(ctx context.Context, event *DeploymentCompletedEvent) error
	// Close releases notifier resources.
	Close() error
}

// Policy returns the retry policy for a notifier allowing the given number
// of retries after the first attempt. A zero backoff means DefaultBackoff.
func Policy(retries int, backoff time.Duration, retryable func(error) bool) retry.Policy {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	p := retry.Default()
	p.MaxAttempts = 1 + retries
	p.BaseDelay = backoff
	if retryable != nil {
		p.Retryable = retryable
	}
	return p
}
