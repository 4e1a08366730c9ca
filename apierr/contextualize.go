package apierr

import (
	"errors"
	"fmt"
	"strings"
)

// Context names the area of the pipeline an error surfaced in. It selects
// the wording and the suggested next steps shown to the operator.
type Context string

const (
	ContextAuthentication Context = "authentication"
	ContextNetwork        Context = "network"
	ContextDeployment     Context = "deployment"
	ContextValidation     Context = "validation"
	ContextFilesystem     Context = "filesystem"
)

// Error is a final, operator-facing error. The cause is kept in the chain
// for errors.Is/errors.As.
type Error struct {
	// Context is the pipeline area the error surfaced in.
	Context Context
	// Kind is the sentinel classification (e.g. ErrAuth).
	Kind error
	// Message is the one-line description shown to the operator.
	Message string
	// NextSteps are concrete remediation hints, possibly empty.
	NextSteps []string
	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && errors.Is(e.Kind, target)
}

// Detail renders the message followed by the next steps, one per line.
func (e *Error) Detail() string {
	var b strings.Builder
	b.WriteString(e.Error())
	for _, step := range e.NextSteps {
		b.WriteString("\n  → ")
		b.WriteString(step)
	}
	return b.String()
}

// Validation returns a precondition failure raised before any remote call.
func Validation(msg string, nextSteps ...string) *Error {
	return &Error{
		Context:   ContextValidation,
		Kind:      ErrRejected,
		Message:   msg,
		NextSteps: nextSteps,
	}
}

// Filesystem wraps a local I/O failure on path.
func Filesystem(op, path string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Context: ContextFilesystem,
		Kind:    ErrUnknown,
		Message: fmt.Sprintf("%s %s", op, path),
		NextSteps: []string{
			"check that the path exists and is readable",
		},
		Err: err,
	}
}

// Contextualize rewrites a final error into an *Error keyed by ctx.
// Errors that are already contextualized pass through unchanged.
// Returns nil if err is nil.
func Contextualize(ctx Context, err error) error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return err
	}

	kind := Classify(err)
	out := &Error{Context: ctx, Kind: kind, Err: err}

	switch kind {
	case ErrAuth:
		out.Message = "authentication failed: the API token was rejected"
		out.NextSteps = []string{
			"check that HOIST_TOKEN (or api.token in hoist.yaml) is set",
			"generate a new token if the current one expired",
		}
	case ErrAccessDenied:
		out.Message = "access denied: the token cannot act on this project"
		out.NextSteps = []string{
			"check project.id and project.account_id in hoist.yaml",
		}
	case ErrNotFound:
		if ctx == ContextDeployment {
			out.Message = "deployment not found"
			out.NextSteps = []string{"check the build id (see `hoist history`)"}
		} else {
			out.Message = "resource not found"
		}
	case ErrThrottled:
		out.Message = "the deployment API is rate limiting requests"
		out.NextSteps = []string{"wait a minute and try again"}
	case ErrServer:
		out.Message = "the deployment service returned an error"
		out.NextSteps = []string{"try again shortly; the remote service may be degraded"}
	case ErrNetwork, ErrTimeout:
		out.Context = ContextNetwork
		out.Message = "could not reach the deployment API"
		out.NextSteps = []string{
			"check your network connection",
			"verify api.url (or HOIST_API_URL)",
		}
	case ErrCanceled:
		out.Message = "interrupted"
	default:
		out.Message = fmt.Sprintf("%s failed", ctx)
	}
	return out
}
