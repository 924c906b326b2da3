// Package connection turns a raw virtual path into a ResolvedContext and the path
// remainder the backends operate on.
package connection

import (
	"context"
	"log/slog"
	"strings"

	"github.com/objectfs/s3vfs/pkg/errors"
	"github.com/objectfs/s3vfs/pkg/types"
	"github.com/objectfs/s3vfs/pkg/utils"
)

// Reference is a connection reference parsed out of a path.
type Reference struct {
	Name      string
	Remainder string
}

// ParseReference normalizes raw and splits off an embedded connection reference.
//
// Both `/@conn:<name>/rest` and `//@conn/<name>/rest` name connection <name>. For any
// other path ok is false and Remainder holds the normalized path with an
// informational `//authority` reduced to `/authority`.
func ParseReference(raw string) (ref Reference, ok bool, err error) {
	p := utils.NormalizePath(raw)

	var rest string
	switch {
	case strings.HasPrefix(p, "//"+utils.ConnectionAuthority+"/") || p == "//"+utils.ConnectionAuthority:
		rest = strings.TrimPrefix(p, "//"+utils.ConnectionAuthority)
		rest = strings.TrimPrefix(rest, utils.Separator)
	case strings.HasPrefix(p, utils.Separator+utils.ConnectionPrefix):
		rest = strings.TrimPrefix(p, utils.Separator+utils.ConnectionPrefix)
	default:
		return Reference{Remainder: utils.StripAuthority(p)}, false, nil
	}

	name, remainder, _ := strings.Cut(rest, utils.Separator)
	if name == "" {
		return Reference{}, true, errors.NewError(errors.ErrCodeInvalidArgument, "connection reference has no name").
			WithComponent("connection").
			WithContext("path", raw)
	}
	return Reference{Name: name, Remainder: utils.NormalizePath(remainder)}, true, nil
}

// Resolver builds ResolvedContexts for one backend mode.
type Resolver struct {
	mode     types.Mode
	defaults Defaults
	provider types.ConnectionProvider
	logger   *slog.Logger
}

// NewResolver creates a resolver. provider may be nil when no profile store is configured.
func NewResolver(mode types.Mode, defaults Defaults, provider types.ConnectionProvider, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		mode:     mode,
		defaults: defaults,
		provider: provider,
		logger:   logger.With("component", "connection"),
	}
}

// Resolve parses path, loads any referenced connection profile and returns the
// context together with the remaining canonical path.
func (r *Resolver) Resolve(ctx context.Context, path string, acquireSecrets bool) (*ResolvedContext, string, error) {
	ref, ok, err := ParseReference(path)
	if err != nil {
		return nil, "", err
	}

	rc := fromDefaults(r.defaults)
	if !ok {
		return rc, ref.Remainder, nil
	}

	if r.provider == nil {
		return nil, "", errors.NewError(errors.ErrCodeNotSupported, "no connection profile store is configured").
			WithComponent("connection").
			WithContext("connection", ref.Name)
	}

	profile, err := r.loadProfile(ctx, ref.Name)
	if err != nil {
		return nil, "", err
	}
	if !strings.EqualFold(profile.PluginID, r.mode.PluginID()) {
		return nil, "", errors.Newf(errors.ErrCodeInvalidArgument,
			"connection %q belongs to %q, not %q", ref.Name, profile.PluginID, r.mode.PluginID()).
			WithComponent("connection")
	}

	rc.ConnectionName = ref.Name
	profile.apply(rc)

	if rc.AccessKeyID != "" && acquireSecrets {
		secret, err := r.acquireSecret(ctx, ref.Name)
		if err != nil {
			return nil, "", err
		}
		rc.SecretAccessKey = secret
	}

	r.logger.Debug("resolved connection", "context", rc, "remainder", ref.Remainder)
	return rc, ref.Remainder, nil
}

func (r *Resolver) loadProfile(ctx context.Context, name string) (*Profile, error) {
	data, err := r.provider.GetProfileJSON(ctx, name)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return nil, errors.Wrap(err, errors.ErrCodeDataCorrupt, "connection profile not found").
				WithComponent("connection").
				WithContext("connection", name)
		}
		return nil, providerError(err, "failed to load connection profile", name)
	}

	profile, err := ParseProfile(data)
	if err != nil {
		if vfsErr, ok := err.(*errors.VFSError); ok {
			vfsErr.WithContext("connection", name)
		}
		return nil, err
	}
	return profile, nil
}

func (r *Resolver) acquireSecret(ctx context.Context, name string) (string, error) {
	secret, err := r.provider.GetSecret(ctx, name, types.SecretKindPassword)
	if err == nil && secret != "" {
		return secret, nil
	}
	if err != nil && !errors.HasCode(err, errors.ErrCodeNotFound) {
		return "", providerError(err, "failed to read connection secret", name)
	}

	r.logger.Debug("secret not stored, prompting", "connection", name)
	secret, err = r.provider.PromptForSecret(ctx, name, types.SecretKindPassword)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeCancelled) {
			return "", errors.Wrap(err, errors.ErrCodeCancelled, "secret prompt was cancelled").
				WithComponent("connection").
				WithContext("connection", name)
		}
		return "", providerError(err, "failed to prompt for connection secret", name)
	}
	return secret, nil
}

// providerError keeps the provider's own code when it reported one.
func providerError(err error, msg, name string) error {
	code := errors.CodeOf(err)
	if errors.Is(err, context.Canceled) {
		code = errors.ErrCodeCancelled
	}
	return errors.Wrap(err, code, msg).
		WithComponent("connection").
		WithContext("connection", name)
}

// Resolve is a one-shot form of Resolver.Resolve.
func Resolve(ctx context.Context, mode types.Mode, defaults Defaults, path string,
	provider types.ConnectionProvider, acquireSecrets bool) (*ResolvedContext, string, error) {
	return NewResolver(mode, defaults, provider, nil).Resolve(ctx, path, acquireSecrets)
}
