package types

import "context"

// SecretKindPassword is the secret kind holding an access key's secret.
const SecretKindPassword = "password"

// ConnectionProvider is the connection-profile store consulted for `@conn:` paths.
//
// GetProfileJSON and GetSecret report a missing item with an ErrCodeNotFound error.
// PromptForSecret reports a user dismissal with an ErrCodeCancelled error.
type ConnectionProvider interface {
	GetProfileJSON(ctx context.Context, name string) (string, error)
	GetSecret(ctx context.Context, name, kind string) (string, error)
	PromptForSecret(ctx context.Context, name, kind string) (string, error)
}

// ProgressCallback receives progress from long-running operations and
// answers whether the caller wants them stopped.
type ProgressCallback interface {
	ReportProgress(counts ProgressCounts, currentPath string)
	ShouldCancel() bool
}

// ProgressFuncs adapts plain functions to ProgressCallback. Nil fields are no-ops.
type ProgressFuncs struct {
	OnProgress func(counts ProgressCounts, currentPath string)
	Cancel     func() bool
}

// ReportProgress implements ProgressCallback.
func (p ProgressFuncs) ReportProgress(counts ProgressCounts, currentPath string) {
	if p.OnProgress != nil {
		p.OnProgress(counts, currentPath)
	}
}

// ShouldCancel implements ProgressCallback.
func (p ProgressFuncs) ShouldCancel() bool {
	return p.Cancel != nil && p.Cancel()
}
