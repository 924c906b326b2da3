package profiles

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/objectfs/s3vfs/pkg/errors"
	"github.com/objectfs/s3vfs/pkg/types"
	"github.com/objectfs/s3vfs/pkg/utils"
)

const component = "profiles"

// PromptFunc asks the user for a secret. It returns an ErrCodeCancelled
// error when the user dismisses the prompt.
type PromptFunc func(ctx context.Context, name, kind string) (string, error)

// Store is a file-backed ConnectionProvider. A profile named "prod" lives in
// <dir>/prod.json and its secrets in <dir>/prod.<kind>.
type Store struct {
	dir    string
	prompt PromptFunc
	logger *slog.Logger
}

var _ types.ConnectionProvider = (*Store)(nil)

// Option customizes a Store.
type Option func(*Store)

// WithPrompt replaces the terminal prompt.
func WithPrompt(prompt PromptFunc) Option {
	return func(s *Store) { s.prompt = prompt }
}

// WithoutPrompt makes every prompt report a dismissal.
func WithoutPrompt() Option {
	return func(s *Store) { s.prompt = nil }
}

// NewStore opens the profile directory. An empty dir selects
// $XDG_CONFIG_HOME/s3vfs/profiles or its platform equivalent.
func NewStore(dir string, logger *slog.Logger, opts ...Option) (*Store, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidArgument, "cannot locate profile directory").
				WithComponent(component)
		}
		dir = filepath.Join(base, "s3vfs", "profiles")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		dir:    dir,
		prompt: TerminalPrompt(os.Stdin, os.Stderr),
		logger: logger.With("component", component),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the profile directory.
func (s *Store) Dir() string {
	return s.dir
}

// GetProfileJSON returns the raw profile document.
func (s *Store) GetProfileJSON(ctx context.Context, name string) (string, error) {
	return s.read(ctx, "GetProfileJSON", name, name+".json")
}

// GetSecret returns the stored secret of the given kind.
func (s *Store) GetSecret(ctx context.Context, name, kind string) (string, error) {
	if err := validName(kind); err != nil {
		return "", err.WithOperation("GetSecret")
	}
	secret, err := s.read(ctx, "GetSecret", name, name+"."+kind)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(secret, "\r\n"), nil
}

// PromptForSecret asks the user for the secret.
func (s *Store) PromptForSecret(ctx context.Context, name, kind string) (string, error) {
	if s.prompt == nil {
		return "", errors.NewError(errors.ErrCodeCancelled, "secret prompts are disabled").
			WithComponent(component).
			WithOperation("PromptForSecret").
			WithContext("profile", name)
	}
	return s.prompt(ctx, name, kind)
}

// SaveProfile writes a profile document.
func (s *Store) SaveProfile(name, document string) error {
	return s.write("SaveProfile", name, name+".json", document, 0o644)
}

// SetSecret stores a secret readable only by the owner.
func (s *Store) SetSecret(name, kind, secret string) error {
	if err := validName(kind); err != nil {
		return err.WithOperation("SetSecret")
	}
	return s.write("SetSecret", name, name+"."+kind, secret, 0o600)
}

// List returns the names of stored profiles.
func (s *Store) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnknown, "cannot list profiles").WithComponent(component)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), ".json"))
	}
	return names, nil
}

func (s *Store) read(ctx context.Context, op, name, file string) (string, error) {
	if err := validName(name); err != nil {
		return "", err.WithOperation(op)
	}
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeCancelled, "operation cancelled").
			WithComponent(component).WithOperation(op)
	}

	full, err := utils.SecureJoin(s.dir, file)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInvalidArgument, "invalid profile path").
			WithComponent(component).WithOperation(op)
	}
	data, err := os.ReadFile(full)
	switch {
	case err == nil:
		return string(data), nil
	case os.IsNotExist(err):
		return "", errors.Newf(errors.ErrCodeNotFound, "%s not found", file).
			WithComponent(component).
			WithOperation(op).
			WithContext("profile", name)
	case os.IsPermission(err):
		return "", errors.Wrap(err, errors.ErrCodeAccessDenied, "cannot read "+file).
			WithComponent(component).WithOperation(op)
	default:
		return "", errors.Wrap(err, errors.ErrCodeUnknown, "cannot read "+file).
			WithComponent(component).WithOperation(op)
	}
}

func (s *Store) write(op, name, file, content string, perm os.FileMode) error {
	if err := validName(name); err != nil {
		return err.WithOperation(op)
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return errors.Wrap(err, errors.ErrCodeUnknown, "cannot create profile directory").
			WithComponent(component).WithOperation(op)
	}
	full, err := utils.SecureJoin(s.dir, file)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidArgument, "invalid profile path").
			WithComponent(component).WithOperation(op)
	}
	if err := os.WriteFile(full, []byte(content), perm); err != nil {
		return errors.Wrap(err, errors.ErrCodeUnknown, "cannot write "+file).
			WithComponent(component).WithOperation(op)
	}
	s.logger.Debug("profile file written", "profile", name, "file", file)
	return nil
}

func validName(name string) *errors.VFSError {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return errors.Newf(errors.ErrCodeInvalidArgument, "invalid profile name %q", name).
			WithComponent(component)
	}
	return nil
}

// TerminalPrompt reads a secret from in without echo. Anything other than a
// terminal, an empty answer or end of input counts as a dismissal.
func TerminalPrompt(in *os.File, out io.Writer) PromptFunc {
	return func(ctx context.Context, name, kind string) (string, error) {
		dismissed := errors.NewError(errors.ErrCodeCancelled, "secret prompt dismissed").
			WithComponent(component).
			WithOperation("PromptForSecret").
			WithContext("profile", name)

		fd := int(in.Fd())
		if !term.IsTerminal(fd) || ctx.Err() != nil {
			return "", dismissed
		}
		fmt.Fprintf(out, "%s for connection %q: ", kind, name)
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			if err == io.EOF {
				return "", dismissed
			}
			return "", dismissed.WithCause(err)
		}
		if len(secret) == 0 {
			return "", dismissed
		}
		return string(secret), nil
	}
}
