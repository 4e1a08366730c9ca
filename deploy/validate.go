package deploy

import (
	"context"
	"fmt"
	"os"

	"github.com/pithecene-io/hoist/apierr"
	"github.com/pithecene-io/hoist/types"
)

// Validator checks preconditions before anything is built or uploaded.
type Validator interface {
	Validate(ctx context.Context, dir string, meta types.DeploymentMeta) error
}

// AccountAPI resolves the identity behind the configured token.
type AccountAPI interface {
	Whoami(ctx context.Context) (*types.Account, error)
}

// PreflightValidator checks the project directory, the deployment
// identity, and the API token.
type PreflightValidator struct {
	// Accounts verifies the token. Nil skips the remote check.
	Accounts AccountAPI
}

// Validate implements Validator. Every failure is an *apierr.Error.
func (v *PreflightValidator) Validate(ctx context.Context, dir string, meta types.DeploymentMeta) error {
	info, err := os.Stat(dir)
	if err != nil {
		return apierr.Filesystem("read project directory", dir, err)
	}
	if !info.IsDir() {
		return apierr.Validation(fmt.Sprintf("%s is not a directory", dir),
			"pass the project root with --dir")
	}

	if err := meta.Validate(); err != nil {
		return apierr.Validation("invalid deployment configuration: "+err.Error(),
			"set project.id and project.account_id in hoist.yaml",
			"or pass --project and --account")
	}

	if v.Accounts == nil {
		return nil
	}
	account, err := v.Accounts.Whoami(ctx)
	if err != nil {
		return apierr.Contextualize(apierr.ContextAuthentication, err)
	}
	if account.AccountID != "" && account.AccountID != meta.AccountID {
		return apierr.Validation(
			fmt.Sprintf("the API token belongs to account %s, not %s", account.AccountID, meta.AccountID),
			"check project.account_id in hoist.yaml",
			"or use a token issued for that account")
	}
	return nil
}

var _ Validator = (*PreflightValidator)(nil)
