package profiles

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/s3vfs/internal/connection"
	"github.com/objectfs/s3vfs/pkg/errors"
	"github.com/objectfs/s3vfs/pkg/types"
	"github.com/objectfs/s3vfs/pkg/utils"
)

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), utils.DiscardLogger(), opts...)
	require.NoError(t, err)
	return s
}

func TestStore_ProfilesAndSecrets(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveProfile("prod", `{"pluginId": "s3vfs.s3", "host": "eu-west-1", "userName": "AKIA"}`))
	require.NoError(t, s.SetSecret("prod", types.SecretKindPassword, "s3cr3t\n"))

	doc, err := s.GetProfileJSON(ctx, "prod")
	require.NoError(t, err)
	assert.Contains(t, doc, "eu-west-1")

	secret, err := s.GetSecret(ctx, "prod", types.SecretKindPassword)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", secret)

	info, err := os.Stat(filepath.Join(s.Dir(), "prod.password"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"prod"}, names)
}

func TestStore_Missing(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.GetProfileJSON(ctx, "nope")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))

	require.NoError(t, s.SaveProfile("dev", `{}`))
	_, err = s.GetSecret(ctx, "dev", types.SecretKindPassword)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestStore_InvalidNames(t *testing.T) {
	s := newStore(t)
	for _, name := range []string{"", ".", "..", "../etc/passwd", `a\b`} {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetProfileJSON(context.Background(), name)
			assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidArgument))
			assert.Error(t, s.SaveProfile(name, "{}"))
		})
	}
	assert.Error(t, s.SetSecret("ok", "../x", "v"))
}

func TestStore_Cancelled(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.GetProfileJSON(ctx, "prod")
	assert.True(t, errors.HasCode(err, errors.ErrCodeCancelled))
}

func TestStore_Prompt(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := newStore(t, WithoutPrompt())
		_, err := s.PromptForSecret(context.Background(), "prod", types.SecretKindPassword)
		assert.True(t, errors.HasCode(err, errors.ErrCodeCancelled))
	})

	t.Run("custom", func(t *testing.T) {
		s := newStore(t, WithPrompt(func(_ context.Context, name, kind string) (string, error) {
			return name + ":" + kind, nil
		}))
		got, err := s.PromptForSecret(context.Background(), "prod", types.SecretKindPassword)
		require.NoError(t, err)
		assert.Equal(t, "prod:password", got)
	})

	t.Run("not a terminal", func(t *testing.T) {
		f, err := os.CreateTemp(t.TempDir(), "stdin")
		require.NoError(t, err)
		defer f.Close()

		_, err = TerminalPrompt(f, os.Stderr)(context.Background(), "prod", types.SecretKindPassword)
		assert.True(t, errors.HasCode(err, errors.ErrCodeCancelled))
	})
}

func TestStore_DrivesResolver(t *testing.T) {
	s := newStore(t, WithoutPrompt())
	require.NoError(t, s.SaveProfile("minio", `{
		// local test endpoint
		"pluginId": "s3vfs.s3",
		"host": "us-east-1",
		"userName": "minioadmin",
		"extra": {"endpoint": "localhost:9000", "useHttps": false}
	}`))
	require.NoError(t, s.SetSecret("minio", types.SecretKindPassword, "minioadmin"))

	r := connection.NewResolver(types.ModeObjectStorage, connection.Defaults{
		Region:             connection.DefaultRegion,
		MaxListingPageSize: connection.MaxPageSize,
		MaxCatalogPageSize: connection.MaxPageSize,
	}, s, utils.DiscardLogger())
	rc, remainder, err := r.Resolve(context.Background(), "/@conn:minio/bucket/key", true)
	require.NoError(t, err)
	assert.Equal(t, "minioadmin", rc.SecretAccessKey)
	assert.Equal(t, "minio", rc.ConnectionName)
	assert.Equal(t, "/bucket/key", remainder)
}
