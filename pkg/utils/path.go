package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// Separator is the virtual path separator.
	Separator = "/"

	// ConnectionPrefix marks an embedded connection reference (`/@conn:<name>/...`).
	ConnectionPrefix = "@conn:"

	// ConnectionAuthority is the authority form of a connection reference (`//@conn/<name>/...`).
	ConnectionAuthority = "@conn"
)

// NormalizePath canonicalizes a raw virtual path.
//
// Backslashes become slashes, runs of separators collapse to one, and the result
// always starts with "/". A leading "//" authority marker is preserved. Empty or
// degenerate input yields "/".
func NormalizePath(raw string) string {
	if raw == "" {
		return Separator
	}

	p := strings.ReplaceAll(raw, `\`, Separator)

	authority := strings.HasPrefix(p, "//")
	body := collapseSeparators(strings.TrimLeft(p, Separator))
	if body == "" {
		return Separator
	}
	if authority {
		return "//" + body
	}
	return Separator + body
}

func collapseSeparators(p string) string {
	var b strings.Builder
	b.Grow(len(p))
	prevSep := false
	for _, r := range p {
		if r == '/' {
			if prevSep {
				continue
			}
			prevSep = true
		} else {
			prevSep = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsAuthorityPath reports whether a normalized path uses the `//authority/...` form.
func IsAuthorityPath(p string) bool {
	return strings.HasPrefix(p, "//")
}

// StripAuthority turns `//bucket/key` into `/bucket/key`; other paths are returned unchanged.
func StripAuthority(p string) string {
	if IsAuthorityPath(p) {
		return p[1:]
	}
	return p
}

// PathSegments returns the non-empty segments of p.
func PathSegments(p string) []string {
	parts := strings.Split(p, Separator)
	segments := parts[:0]
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

// HasTrailingSeparator reports whether p names a directory explicitly.
func HasTrailingSeparator(p string) bool {
	return len(p) > 1 && strings.HasSuffix(p, Separator)
}

// IsRootPath reports whether p addresses the top of the hierarchy.
func IsRootPath(p string) bool {
	return len(PathSegments(p)) == 0
}

// JoinPath joins segments into a normalized absolute path.
func JoinPath(segments ...string) string {
	return NormalizePath(Separator + strings.Join(segments, Separator))
}

// BaseName returns the last segment of p, or "/" for the root.
func BaseName(p string) string {
	segments := PathSegments(p)
	if len(segments) == 0 {
		return Separator
	}
	return segments[len(segments)-1]
}

// SecureJoin safely joins path elements and ensures the result stays within the base directory.
// Unlike filepath.Join, this function validates that the result doesn't escape the base through
// directory traversal.
func SecureJoin(base string, elements ...string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("base path cannot be empty")
	}

	cleanBase := filepath.Clean(base)
	fullPath := filepath.Join(append([]string{cleanBase}, elements...)...)

	if !strings.HasPrefix(fullPath, cleanBase+string(filepath.Separator)) &&
		fullPath != cleanBase {
		return "", fmt.Errorf("path escapes base directory")
	}

	return fullPath, nil
}
