package utils

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: "/"},
		{name: "root", in: "/", want: "/"},
		{name: "relative gets leading slash", in: "bucket/key", want: "/bucket/key"},
		{name: "backslashes", in: `\bucket\dir\file.txt`, want: "/bucket/dir/file.txt"},
		{name: "backslash authority", in: `\\bucket\key`, want: "//bucket/key"},
		{name: "collapse inner separators", in: "/bucket//a///b", want: "/bucket/a/b"},
		{name: "authority preserved", in: "//bucket/key", want: "//bucket/key"},
		{name: "triple slash is authority", in: "///bucket/key", want: "//bucket/key"},
		{name: "trailing separator kept", in: "/bucket/dir/", want: "/bucket/dir/"},
		{name: "trailing run collapsed", in: "/bucket/dir//", want: "/bucket/dir/"},
		{name: "only separators", in: "////", want: "/"},
		{name: "connection prefix", in: "/@conn:prod//bucket", want: "/@conn:prod/bucket"},
		{name: "unicode", in: "/bücket//日本", want: "/bücket/日本"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePath(tt.in)
			if got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := NormalizePath(got); again != got {
				t.Errorf("NormalizePath not idempotent: %q -> %q", got, again)
			}
			if slashed := NormalizePath(strings.ReplaceAll(tt.in, `\`, "/")); slashed != got {
				t.Errorf("backslash form %q normalized to %q, slash form to %q", tt.in, got, slashed)
			}
		})
	}
}

func TestPathHelpers(t *testing.T) {
	t.Parallel()

	if got := PathSegments("/bucket/a/b/"); len(got) != 3 || got[0] != "bucket" || got[2] != "b" {
		t.Errorf("PathSegments() = %v", got)
	}
	if len(PathSegments("/")) != 0 {
		t.Error("root should have no segments")
	}
	if !HasTrailingSeparator("/bucket/dir/") || HasTrailingSeparator("/") || HasTrailingSeparator("/bucket/file") {
		t.Error("HasTrailingSeparator mismatch")
	}
	if !IsRootPath("/") || IsRootPath("/bucket") {
		t.Error("IsRootPath mismatch")
	}
	if got := StripAuthority("//bucket/key"); got != "/bucket/key" {
		t.Errorf("StripAuthority() = %q", got)
	}
	if got := StripAuthority("/bucket/key"); got != "/bucket/key" {
		t.Errorf("StripAuthority() changed a plain path: %q", got)
	}
	if got := JoinPath("bucket", "a", "b.txt"); got != "/bucket/a/b.txt" {
		t.Errorf("JoinPath() = %q", got)
	}
	if got := BaseName("/bucket/a/b.txt"); got != "b.txt" {
		t.Errorf("BaseName() = %q", got)
	}
	if got := BaseName("/"); got != "/" {
		t.Errorf("BaseName(root) = %q", got)
	}
}

func TestSecureJoin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		base        string
		elements    []string
		wantErr     bool
		errContains string
		wantPrefix  string // What the result should start with (OS-agnostic)
	}{
		{
			name:       "valid join",
			base:       "/var/cache",
			elements:   []string{"data", "file.dat"},
			wantErr:    false,
			wantPrefix: "/var/cache",
		},
		{
			name:        "traversal attempt in elements",
			base:        "/var/cache",
			elements:    []string{"data", "..", "..", "..", "etc", "passwd"},
			wantErr:     true,
			errContains: "escapes base directory",
		},
		{
			name:        "empty base",
			base:        "",
			elements:    []string{"file.dat"},
			wantErr:     true,
			errContains: "base path cannot be empty",
		},
		{
			name:       "single element join",
			base:       "/var/cache",
			elements:   []string{"file.dat"},
			wantErr:    false,
			wantPrefix: "/var/cache",
		},
		{
			name:       "multiple nested elements",
			base:       "/var/cache",
			elements:   []string{"a", "b", "c", "d", "file.dat"},
			wantErr:    false,
			wantPrefix: "/var/cache",
		},
		{
			name:       "elements with current directory refs",
			base:       "/var/cache",
			elements:   []string{".", "data", ".", "file.dat"},
			wantErr:    false,
			wantPrefix: "/var/cache",
		},
		{
			name:        "subtle traversal with mixed elements",
			base:        "/var/cache",
			elements:    []string{"data", "subdir", "..", "..", "..", "etc"},
			wantErr:     true,
			errContains: "escapes base directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Skip tests with hardcoded Unix paths on Windows
			if runtime.GOOS == "windows" && strings.HasPrefix(tt.base, "/") {
				t.Skip("Skipping Unix path test on Windows")
			}

			result, err := SecureJoin(tt.base, tt.elements...)
			if (err != nil) != tt.wantErr {
				t.Errorf("SecureJoin() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("SecureJoin() error = %v, should contain %q", err, tt.errContains)
				}
			}
			if !tt.wantErr && tt.wantPrefix != "" {
				cleanPrefix := filepath.Clean(tt.wantPrefix)
				if !strings.HasPrefix(result, cleanPrefix) {
					t.Errorf("SecureJoin() result = %v, should start with %v", result, cleanPrefix)
				}
			}
		})
	}
}

// Benchmark tests
func BenchmarkSecureJoin(b *testing.B) {
	base := "/var/cache"
	elements := []string{"data", "subdir", "file.dat"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = SecureJoin(base, elements...)
	}
}

func TestSecureJoinTempDir(t *testing.T) {
	t.Parallel()

	tmpBase := t.TempDir()
	result, err := SecureJoin(tmpBase, "profiles", "prod.json")
	if err != nil {
		t.Errorf("SecureJoin() with temp dir failed: %v", err)
	}
	if !strings.HasPrefix(result, tmpBase) {
		t.Errorf("SecureJoin() result %v doesn't start with base %v", result, tmpBase)
	}
}
