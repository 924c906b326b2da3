package connection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/s3vfs/pkg/errors"
	"github.com/objectfs/s3vfs/pkg/types"
)

type fakeProvider struct {
	profiles map[string]string
	secrets  map[string]string
	prompt   func(name string) (string, error)

	prompts int
}

func (f *fakeProvider) GetProfileJSON(_ context.Context, name string) (string, error) {
	if p, ok := f.profiles[name]; ok {
		return p, nil
	}
	return "", errors.NewError(errors.ErrCodeNotFound, "no profile")
}

func (f *fakeProvider) GetSecret(_ context.Context, name, kind string) (string, error) {
	if s, ok := f.secrets[name+"/"+kind]; ok {
		return s, nil
	}
	return "", errors.NewError(errors.ErrCodeNotFound, "no secret")
}

func (f *fakeProvider) PromptForSecret(_ context.Context, name, _ string) (string, error) {
	f.prompts++
	if f.prompt == nil {
		return "", errors.NewError(errors.ErrCodeCancelled, "dismissed")
	}
	return f.prompt(name)
}

var testDefaults = Defaults{
	Region:             "eu-central-1",
	UseHTTPS:           true,
	VerifyTLS:          true,
	MaxListingPageSize: 500,
	MaxCatalogPageSize: 5000,
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		wantOK    bool
		wantName  string
		wantRest  string
		wantError bool
	}{
		{name: "prefix form", path: "/@conn:prod/bucket/key", wantOK: true, wantName: "prod", wantRest: "/bucket/key"},
		{name: "authority form", path: "//@conn/prod/bucket/key", wantOK: true, wantName: "prod", wantRest: "/bucket/key"},
		{name: "backslash authority form", path: `\\@conn\prod\bucket\key`, wantOK: true, wantName: "prod", wantRest: "/bucket/key"},
		{name: "connection root", path: "/@conn:prod", wantOK: true, wantName: "prod", wantRest: "/"},
		{name: "trailing separator kept", path: "/@conn:prod/bucket/dir/", wantOK: true, wantName: "prod", wantRest: "/bucket/dir/"},
		{name: "plain path", path: "/bucket/key", wantRest: "/bucket/key"},
		{name: "bucket authority is not a connection", path: "//bucket/key", wantRest: "/bucket/key"},
		{name: "empty path", path: "", wantRest: "/"},
		{name: "missing name", path: "/@conn:/bucket", wantOK: true, wantError: true},
		{name: "bare authority", path: "//@conn", wantOK: true, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, ok, err := ParseReference(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantError {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidArgument))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, ref.Name)
			assert.Equal(t, tt.wantRest, ref.Remainder)
		})
	}
}

func TestResolveDefaults(t *testing.T) {
	r := NewResolver(types.ModeObjectStorage, testDefaults, nil, nil)

	rc, rest, err := r.Resolve(context.Background(), `\bucket\\key`, true)
	require.NoError(t, err)
	assert.Equal(t, "/bucket/key", rest)
	assert.Equal(t, "eu-central-1", rc.Region)
	assert.Empty(t, rc.ExplicitRegion)
	assert.Equal(t, 500, rc.MaxListingPageSize)
	assert.Equal(t, MaxPageSize, rc.MaxCatalogPageSize)
	assert.False(t, rc.HasStaticCredentials())

	rc, _, err = NewResolver(types.ModeObjectStorage, Defaults{}, nil, nil).Resolve(context.Background(), "/", false)
	require.NoError(t, err)
	assert.Equal(t, DefaultRegion, rc.Region)
}

func TestResolveConnectionWithoutStore(t *testing.T) {
	r := NewResolver(types.ModeObjectStorage, testDefaults, nil, nil)

	_, _, err := r.Resolve(context.Background(), "/@conn:prod/bucket", true)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotSupported))
}

func TestResolveConnection(t *testing.T) {
	provider := &fakeProvider{
		profiles: map[string]string{
			"prod": `{
				// production account
				"pluginId": "s3vfs.s3",
				"host": "ap-southeast-2",
				"userName": "AKIAEXAMPLE",
				"extra": {"endpoint": "minio.local:9000", "useHttps": false, "virtualAddressing": false},
			}`,
		},
		secrets: map[string]string{"prod/password": "s3cr3t"},
	}
	r := NewResolver(types.ModeObjectStorage, testDefaults, provider, nil)

	rc, rest, err := r.Resolve(context.Background(), "//@conn/prod/bucket/key", true)
	require.NoError(t, err)
	assert.Equal(t, "/bucket/key", rest)
	assert.Equal(t, "prod", rc.ConnectionName)
	assert.Equal(t, "ap-southeast-2", rc.Region)
	assert.Equal(t, "ap-southeast-2", rc.ExplicitRegion)
	assert.Equal(t, "minio.local:9000", rc.Endpoint)
	assert.False(t, rc.UseHTTPS)
	assert.True(t, rc.VerifyTLS)
	assert.Equal(t, "AKIAEXAMPLE", rc.AccessKeyID)
	assert.Equal(t, "s3cr3t", rc.SecretAccessKey)
	assert.True(t, rc.HasCustomEndpoint())
	assert.Equal(t, 0, provider.prompts)
}

func TestResolveSkipsSecretWhenNotAcquiring(t *testing.T) {
	provider := &fakeProvider{
		profiles: map[string]string{"prod": `{"pluginId":"s3vfs.s3","userName":"AKIA"}`},
	}
	r := NewResolver(types.ModeObjectStorage, testDefaults, provider, nil)

	rc, _, err := r.Resolve(context.Background(), "/@conn:prod/b", false)
	require.NoError(t, err)
	assert.Equal(t, "AKIA", rc.AccessKeyID)
	assert.Empty(t, rc.SecretAccessKey)
	assert.Equal(t, 0, provider.prompts)
	assert.Equal(t, "eu-central-1", rc.Region)
	assert.Empty(t, rc.ExplicitRegion)
}

func TestResolvePromptsForMissingSecret(t *testing.T) {
	provider := &fakeProvider{
		profiles: map[string]string{"dev": `{"pluginId":"s3vfs.s3","userName":"AKIA"}`},
		prompt:   func(string) (string, error) { return "typed", nil },
	}
	r := NewResolver(types.ModeObjectStorage, testDefaults, provider, nil)

	rc, _, err := r.Resolve(context.Background(), "/@conn:dev/b", true)
	require.NoError(t, err)
	assert.Equal(t, "typed", rc.SecretAccessKey)
	assert.Equal(t, 1, provider.prompts)
}

func TestResolveErrors(t *testing.T) {
	provider := &fakeProvider{
		profiles: map[string]string{
			"tables":  `{"pluginId":"s3vfs.s3tables"}`,
			"broken":  `{"pluginId": `,
			"blank":   `   `,
			"needkey": `{"pluginId":"s3vfs.s3","userName":"AKIA"}`,
		},
	}
	r := NewResolver(types.ModeObjectStorage, testDefaults, provider, nil)

	tests := []struct {
		name string
		path string
		want errors.ErrorCode
	}{
		{name: "plugin mismatch", path: "/@conn:tables/b", want: errors.ErrCodeInvalidArgument},
		{name: "malformed profile", path: "/@conn:broken/b", want: errors.ErrCodeDataCorrupt},
		{name: "empty profile", path: "/@conn:blank/b", want: errors.ErrCodeDataCorrupt},
		{name: "missing profile", path: "/@conn:nobody/b", want: errors.ErrCodeDataCorrupt},
		{name: "prompt cancelled", path: "/@conn:needkey/b", want: errors.ErrCodeCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := r.Resolve(context.Background(), tt.path, true)
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.CodeOf(err), err.Error())
		})
	}
}

func TestResolveCatalogMode(t *testing.T) {
	provider := &fakeProvider{
		profiles: map[string]string{"lake": `{"pluginId":"S3VFS.S3TABLES","extra":{"maxCatalogPageSize":50}}`},
	}
	rc, rest, err := Resolve(context.Background(), types.ModeCatalog, testDefaults, "/@conn:lake/tb/ns", provider, true)
	require.NoError(t, err)
	assert.Equal(t, "/tb/ns", rest)
	assert.Equal(t, 50, rc.MaxCatalogPageSize)
}

func TestClampPageSize(t *testing.T) {
	assert.Equal(t, MaxPageSize, ClampPageSize(0))
	assert.Equal(t, 1, ClampPageSize(-3))
	assert.Equal(t, 250, ClampPageSize(250))
	assert.Equal(t, MaxPageSize, ClampPageSize(100000))
}

func TestProfileMarshalRoundTrip(t *testing.T) {
	endpoint := "localhost:9000"
	off := false
	in := Profile{PluginID: "s3vfs.s3", Host: "us-east-1", UserName: "AKIA", Extra: &ProfileExtra{Endpoint: &endpoint, UseHTTPS: &off}}

	doc, err := in.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(doc), "verifyTls")

	out, err := ParseProfile(string(doc))
	require.NoError(t, err)
	assert.Equal(t, in, *out)
}
