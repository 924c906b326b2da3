// Package sizewalk aggregates the size of everything under a prefix.
package sizewalk

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/objectfs/s3vfs/internal/connection"
	s3backend "github.com/objectfs/s3vfs/internal/storage/s3"
	"github.com/objectfs/s3vfs/pkg/errors"
	"github.com/objectfs/s3vfs/pkg/types"
	"github.com/objectfs/s3vfs/pkg/utils"
)

const (
	DefaultProgressBatch    = 1000
	DefaultProgressInterval = 250 * time.Millisecond
)

// Lister issues one listing page.
type Lister interface {
	ListPage(ctx context.Context, rc *connection.ResolvedContext, bucket string, req s3backend.PageRequest) (*s3backend.Page, error)
}

// Options controls progress checkpoints.
type Options struct {
	// ProgressBatch is the number of scanned entries between checkpoints.
	ProgressBatch int
	// ProgressInterval is the longest time between checkpoints.
	ProgressInterval time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Walker computes directory sizes.
type Walker struct {
	lister Lister
	opts   Options
	logger *slog.Logger
}

// New creates a walker over lister.
func New(lister Lister, opts Options, logger *slog.Logger) *Walker {
	if opts.ProgressBatch <= 0 {
		opts.ProgressBatch = DefaultProgressBatch
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{lister: lister, opts: opts, logger: logger.With("component", "sizewalk")}
}

type walk struct {
	*Walker
	path     string
	progress types.ProgressCallback

	totals      types.SizeTotals
	dirs        map[string]struct{}
	scanned     int
	lastScanned int
	lastReport  time.Time
}

// Walk totals every entry under prefix in bucket. Without recursive only the
// immediate children are counted. On cancellation the partial totals are
// returned together with a CANCELLED error.
func (w *Walker) Walk(ctx context.Context, rc *connection.ResolvedContext, bucket, prefix string, recursive bool, progress types.ProgressCallback) (types.SizeTotals, error) {
	state := &walk{
		Walker:     w,
		path:       utils.Separator + bucket + utils.Separator + prefix,
		progress:   progress,
		dirs:       make(map[string]struct{}),
		lastReport: w.opts.Now(),
	}

	req := s3backend.PageRequest{Prefix: prefix, MaxKeys: rc.MaxListingPageSize}
	if !recursive {
		req.Delimiter = utils.Separator
	}

	for {
		if err := ctx.Err(); err != nil {
			return state.finish(), cancelled(state.path).WithCause(err)
		}

		page, err := w.lister.ListPage(ctx, rc, bucket, req)
		if err != nil {
			return state.finish(), err
		}

		for _, cp := range page.CommonPrefixes {
			state.addDirectory(strings.TrimPrefix(cp, prefix))
			if state.checkpoint() {
				return state.finish(), cancelled(state.path)
			}
		}
		for _, obj := range page.Objects {
			if obj.Key == prefix {
				continue
			}
			state.addObject(strings.TrimPrefix(obj.Key, prefix), obj.Size, recursive)
			if state.checkpoint() {
				return state.finish(), cancelled(state.path)
			}
		}

		if !page.Truncated {
			break
		}
		req.ContinuationToken = page.NextToken
	}

	totals := state.finish()
	state.report()
	w.logger.Debug("size walk complete",
		"bucket", bucket,
		"prefix", prefix,
		"recursive", recursive,
		"files", totals.FileCount,
		"directories", totals.DirectoryCount,
		"bytes", totals.TotalBytes)
	return totals, nil
}

func (s *walk) addDirectory(rel string) {
	s.scanned++
	if rel != "" {
		s.dirs[rel] = struct{}{}
	}
}

// addObject counts a key relative to the prefix. Recursive walks also count
// every intermediate directory once; a "dir/" marker is only a directory.
func (s *walk) addObject(rel string, size int64, recursive bool) {
	s.scanned++
	if recursive {
		for i := 0; i < len(rel); i++ {
			if rel[i] == '/' {
				s.dirs[rel[:i+1]] = struct{}{}
			}
		}
	}
	if strings.HasSuffix(rel, utils.Separator) {
		return
	}
	s.totals.FileCount++
	if size > 0 {
		s.totals.AddBytes(uint64(size))
	}
}

func (s *walk) finish() types.SizeTotals {
	s.totals.DirectoryCount = uint64(len(s.dirs))
	return s.totals
}

// checkpoint reports progress when a batch or interval elapsed and returns
// whether the caller asked to stop.
func (s *walk) checkpoint() bool {
	if s.progress == nil {
		return false
	}
	now := s.opts.Now()
	if s.scanned-s.lastScanned < s.opts.ProgressBatch && now.Sub(s.lastReport) < s.opts.ProgressInterval {
		return false
	}
	s.lastScanned = s.scanned
	s.lastReport = now
	s.report()
	return s.progress.ShouldCancel()
}

func (s *walk) report() {
	if s.progress == nil {
		return
	}
	t := s.finish()
	s.progress.ReportProgress(types.ProgressCounts{
		Bytes:       t.TotalBytes,
		Files:       t.FileCount,
		Directories: t.DirectoryCount,
	}, s.path)
}

func cancelled(path string) *errors.VFSError {
	return errors.NewError(errors.ErrCodeCancelled, "size computation cancelled").
		WithComponent("sizewalk").
		WithOperation("ComputeSize").
		WithContext("path", path)
}
