package types

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects the backend family an adapter instance serves.
type Mode int

const (
	// ModeObjectStorage exposes buckets and keys as a directory tree.
	ModeObjectStorage Mode = iota
	// ModeCatalog exposes table buckets, namespaces and tables.
	ModeCatalog
)

// String returns the short name used in logs, metrics and the CLI.
func (m Mode) String() string {
	switch m {
	case ModeObjectStorage:
		return "s3"
	case ModeCatalog:
		return "s3tables"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// PluginID is the owning-plugin identifier connection profiles must declare.
func (m Mode) PluginID() string {
	return "s3vfs." + m.String()
}

// ParseMode parses a mode name as produced by String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s3", "object", "objects", "":
		return ModeObjectStorage, nil
	case "s3tables", "tables", "catalog":
		return ModeCatalog, nil
	default:
		return ModeObjectStorage, fmt.Errorf("unknown mode %q", s)
	}
}

// ObjectInfo represents metadata about an object
type ObjectInfo struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	LastModified time.Time         `json:"last_modified"`
	ETag         string            `json:"etag,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	StorageClass string            `json:"storage_class,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// DirectoryEntry is one item of a directory listing.
type DirectoryEntry struct {
	Name           string
	IsDirectory    bool
	Size           uint64
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
}

// NewDirectoryEntry builds an entry whose four timestamps all equal modified.
func NewDirectoryEntry(name string, isDir bool, size uint64, modified time.Time) DirectoryEntry {
	return DirectoryEntry{
		Name:           name,
		IsDirectory:    isDir,
		Size:           size,
		CreationTime:   modified,
		LastAccessTime: modified,
		LastWriteTime:  modified,
		ChangeTime:     modified,
	}
}

// ItemAttributes is the result of a Stat call.
type ItemAttributes struct {
	Path         string    `json:"path"`
	Name         string    `json:"name"`
	IsDirectory  bool      `json:"is_directory"`
	Size         uint64    `json:"size"`
	ModTime      time.Time `json:"modified,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	StorageClass string    `json:"storage_class,omitempty"`
}

// SizeTotals aggregates a directory size walk.
type SizeTotals struct {
	TotalBytes     uint64 `json:"total_bytes"`
	FileCount      uint64 `json:"file_count"`
	DirectoryCount uint64 `json:"directory_count"`
}

// AddBytes adds n to the byte total, saturating at the maximum uint64.
func (s *SizeTotals) AddBytes(n uint64) {
	if s.TotalBytes > ^uint64(0)-n {
		s.TotalBytes = ^uint64(0)
		return
	}
	s.TotalBytes += n
}

// ProgressCounts is reported to a ProgressCallback.
type ProgressCounts struct {
	Bytes       uint64
	TotalBytes  uint64 // 0 when unknown
	Files       uint64
	Directories uint64
}
