package types

import (
	"errors"
	"fmt"
	"strings"
)

// DeploymentMeta identifies what is being deployed and on whose behalf.
type DeploymentMeta struct {
	// ProjectID is the remote project identifier.
	ProjectID string
	// AccountID is the owning account identifier.
	AccountID string
	// Attempt counts orchestrated attempts. Starts at 1.
	Attempt int
}

// Validate checks that the deployment identity is complete.
func (m *DeploymentMeta) Validate() error {
	if strings.TrimSpace(m.ProjectID) == "" {
		return errors.New("project id must be non-empty")
	}
	if strings.TrimSpace(m.AccountID) == "" {
		return errors.New("account id must be non-empty")
	}
	if m.Attempt < 1 {
		return fmt.Errorf("attempt must be >= 1, got %d", m.Attempt)
	}
	return nil
}

// AdvisorySeverity ranks advisory conditions for display.
type AdvisorySeverity string

const (
	// AdvisoryInfo is purely informational.
	AdvisoryInfo AdvisorySeverity = "info"
	// AdvisoryWarning deserves operator attention (overage, grace period).
	AdvisoryWarning AdvisorySeverity = "warning"
)

// Advisory is a non-fatal condition returned alongside init/complete
// responses, such as billing limits or usage overage. Advisories are
// displayed and never block the pipeline.
type Advisory struct {
	Code     string           `json:"code" yaml:"code"`
	Message  string           `json:"message" yaml:"message"`
	Severity AdvisorySeverity `json:"severity,omitempty" yaml:"severity,omitempty"`
}

// InitRequest is the body of POST init.
type InitRequest struct {
	ProjectID string `json:"projectId"`
	AccountID string `json:"accountId"`
	Checksum  string `json:"checksum"`
	SizeBytes int64  `json:"sizeBytes,omitempty"`
}

// InitResponse carries the build identifier and a single-use upload URL.
type InitResponse struct {
	BuildID    string     `json:"buildId"`
	UploadURL  string     `json:"uploadUrl"`
	ExpiresAt  string     `json:"expiresAt,omitempty"`
	Advisories []Advisory `json:"warnings,omitempty"`
}

// CompleteRequest is the body of POST complete.
type CompleteRequest struct {
	BuildID string `json:"buildId"`
}

// CompleteResponse acknowledges the upload.
type CompleteResponse struct {
	BuildID    string      `json:"buildId"`
	Status     BuildStatus `json:"status"`
	Advisories []Advisory  `json:"warnings,omitempty"`
}

// CancelResponse acknowledges a cancellation request.
type CancelResponse struct {
	BuildID string      `json:"buildId"`
	Status  BuildStatus `json:"status"`
}

// Account is the identity behind the API token.
type Account struct {
	AccountID string `json:"accountId" yaml:"account_id"`
	Email     string `json:"email,omitempty" yaml:"email,omitempty"`
}
