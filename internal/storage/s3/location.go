package s3

import (
	"strings"

	"github.com/objectfs/s3vfs/pkg/utils"
)

// Location addresses a bucket, a key or the bucket list.
type Location struct {
	Bucket string
	// Key has no leading slash. It ends in "/" when the path did.
	Key    string
	IsRoot bool
}

// ParseLocation splits a canonical remainder path into bucket and key.
func ParseLocation(path string) Location {
	p := utils.NormalizePath(path)
	segments := utils.PathSegments(p)
	if len(segments) == 0 {
		return Location{IsRoot: true}
	}

	key := strings.Join(segments[1:], utils.Separator)
	if key != "" && utils.HasTrailingSeparator(p) {
		key += utils.Separator
	}
	return Location{Bucket: segments[0], Key: key}
}

// IsBucket reports whether the location is a bucket's top level.
func (l Location) IsBucket() bool {
	return !l.IsRoot && l.Key == ""
}

// ObjectKey is the key without any trailing separator.
func (l Location) ObjectKey() string {
	return strings.TrimSuffix(l.Key, utils.Separator)
}

// DirectoryPrefix is the listing prefix for the location: empty or ending in "/".
func (l Location) DirectoryPrefix() string {
	k := l.ObjectKey()
	if k == "" {
		return ""
	}
	return k + utils.Separator
}

// HasTrailingSeparator reports whether the path explicitly named a directory.
func (l Location) HasTrailingSeparator() bool {
	return strings.HasSuffix(l.Key, utils.Separator)
}

// String renders the location as a virtual path.
func (l Location) String() string {
	if l.IsRoot {
		return utils.Separator
	}
	return utils.Separator + l.Bucket + utils.Separator + l.Key
}
