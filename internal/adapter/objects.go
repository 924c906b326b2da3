package adapter

import (
	"bytes"
	"context"
	"io"

	"github.com/objectfs/s3vfs/internal/connection"
	s3backend "github.com/objectfs/s3vfs/internal/storage/s3"
	"github.com/objectfs/s3vfs/internal/transfer"
	"github.com/objectfs/s3vfs/pkg/errors"
	"github.com/objectfs/s3vfs/pkg/types"
	"github.com/objectfs/s3vfs/pkg/utils"
)

// statObject resolves a path file-first: an exact key wins over a prefix of
// the same name. info is nil for directories.
func (a *Adapter) statObject(ctx context.Context, rc *connection.ResolvedContext, remainder string) (*types.ItemAttributes, *types.ObjectInfo, error) {
	loc := s3backend.ParseLocation(remainder)
	if loc.IsRoot || loc.IsBucket() || loc.HasTrailingSeparator() {
		return directoryAttributes(loc.String()), nil, nil
	}

	info, err := a.objects.HeadObject(ctx, rc, loc.Bucket, loc.Key)
	if err == nil {
		return &types.ItemAttributes{
			Path:         loc.String(),
			Name:         utils.BaseName(loc.Key),
			Size:         uint64(max(info.Size, 0)),
			ModTime:      info.LastModified,
			ETag:         info.ETag,
			ContentType:  info.ContentType,
			StorageClass: info.StorageClass,
		}, info, nil
	}
	if !errors.HasCode(err, errors.ErrCodeNotFound) {
		return nil, nil, err
	}

	page, err := a.objects.ListPage(ctx, rc, loc.Bucket, s3backend.PageRequest{
		Prefix:  loc.DirectoryPrefix(),
		MaxKeys: 1,
	})
	if err != nil {
		return nil, nil, err
	}
	if len(page.Objects) > 0 || len(page.CommonPrefixes) > 0 {
		return directoryAttributes(loc.String()), nil, nil
	}
	return nil, nil, errors.NewError(errors.ErrCodeNotFound, "no such file or directory").
		WithComponent(component).
		WithOperation("Stat").
		WithContext("path", loc.String())
}

// listObjects lists a directory file-first: a path naming an exact object is
// not a directory, and a prefix with neither keys nor a marker does not exist.
func (a *Adapter) listObjects(ctx context.Context, rc *connection.ResolvedContext, remainder string) ([]types.DirectoryEntry, error) {
	loc := s3backend.ParseLocation(remainder)
	if !loc.IsRoot && !loc.IsBucket() && !loc.HasTrailingSeparator() {
		exists, err := a.objects.ObjectExists(ctx, rc, loc.Bucket, loc.Key)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, errors.NewError(errors.ErrCodeInvalidArgument, "not a directory").
				WithComponent(component).
				WithOperation("List").
				WithContext("path", loc.String())
		}
	}

	entries, err := a.objects.ListDirectory(ctx, rc, loc)
	if err != nil || len(entries) > 0 || loc.IsRoot || loc.IsBucket() {
		return entries, err
	}

	marker, err := a.objects.ObjectExists(ctx, rc, loc.Bucket, loc.DirectoryPrefix())
	if err != nil {
		return nil, err
	}
	if !marker {
		return nil, errors.NewError(errors.ErrCodeNotFound, "no such directory").
			WithComponent(component).
			WithOperation("List").
			WithContext("path", loc.String())
	}
	return entries, nil
}

func (a *Adapter) readObject(ctx context.Context, rc *connection.ResolvedContext, remainder string, progress types.ProgressCallback) (*transfer.Reader, error) {
	loc := s3backend.ParseLocation(remainder)
	if loc.IsRoot || loc.IsBucket() || loc.HasTrailingSeparator() {
		return nil, errors.NewError(errors.ErrCodeAccessDenied, "only files can be read").
			WithComponent(component).
			WithOperation("Read").
			WithContext("path", remainder)
	}

	body, info, err := a.objects.GetObject(ctx, rc, loc.Bucket, loc.Key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return transfer.Download(ctx, a.opts.Transfer, body, info.Size, loc.String(), progress, a.opts.Logger)
}

// commitObject uploads a finished write handle. The context is resolved again
// because the handle may outlive the call that opened it.
func (a *Adapter) commitObject(ctx context.Context, path string, overwrite bool, body io.ReadSeeker, size int64) error {
	rc, remainder, err := a.resolve(ctx, "Commit", path)
	if err != nil {
		return err
	}
	loc := s3backend.ParseLocation(remainder)
	key := loc.ObjectKey()

	if !overwrite {
		exists, err := a.objects.ObjectExists(ctx, rc, loc.Bucket, key)
		if err != nil {
			return err
		}
		if !exists {
			exists, err = a.objects.HasChildren(ctx, rc, loc.Bucket, loc.DirectoryPrefix())
			if err != nil {
				return err
			}
		}
		if exists {
			return errors.NewError(errors.ErrCodeAlreadyExists, "file already exists").
				WithComponent(component).
				WithOperation("Commit").
				WithContext("path", loc.String())
		}
	}

	if err := a.objects.PutObject(ctx, rc, loc.Bucket, key, body, size); err != nil {
		return err
	}
	a.logger.Debug("committed upload", "bucket", loc.Bucket, "key", key, "size", size)
	return nil
}

func (a *Adapter) deleteObject(ctx context.Context, rc *connection.ResolvedContext, remainder string) error {
	loc := s3backend.ParseLocation(remainder)
	if loc.IsRoot || loc.IsBucket() {
		return notSupported("Delete", remainder)
	}

	if !loc.HasTrailingSeparator() {
		exists, err := a.objects.ObjectExists(ctx, rc, loc.Bucket, loc.Key)
		if err != nil {
			return err
		}
		if exists {
			return a.objects.DeleteObject(ctx, rc, loc.Bucket, loc.Key)
		}
	}

	// The marker sorts before every other key under the prefix, so two keys
	// are enough to tell an empty directory from a populated one.
	prefix := loc.DirectoryPrefix()
	page, err := a.objects.ListPage(ctx, rc, loc.Bucket, s3backend.PageRequest{Prefix: prefix, MaxKeys: 2})
	if err != nil {
		return err
	}
	marker := false
	for _, obj := range page.Objects {
		if obj.Key != prefix {
			return errors.NewError(errors.ErrCodeInvalidArgument, "directory not empty").
				WithComponent(component).
				WithOperation("Delete").
				WithContext("path", loc.String())
		}
		marker = true
	}
	if !marker {
		return errors.NewError(errors.ErrCodeNotFound, "no such file or directory").
			WithComponent(component).
			WithOperation("Delete").
			WithContext("path", loc.String())
	}
	return a.objects.DeleteObject(ctx, rc, loc.Bucket, prefix)
}

func (a *Adapter) createDirectory(ctx context.Context, rc *connection.ResolvedContext, remainder string) error {
	loc := s3backend.ParseLocation(remainder)
	if loc.IsRoot || loc.IsBucket() {
		return notSupported("CreateDirectory", remainder)
	}

	exists, err := a.objects.ObjectExists(ctx, rc, loc.Bucket, loc.ObjectKey())
	if err != nil {
		return err
	}
	if !exists {
		exists, err = a.objects.HasChildren(ctx, rc, loc.Bucket, loc.DirectoryPrefix())
		if err != nil {
			return err
		}
	}
	if exists {
		return errors.NewError(errors.ErrCodeAlreadyExists, "file or directory already exists").
			WithComponent(component).
			WithOperation("CreateDirectory").
			WithContext("path", loc.String())
	}
	return a.objects.PutObject(ctx, rc, loc.Bucket, loc.DirectoryPrefix(), bytes.NewReader(nil), 0)
}

func (a *Adapter) computeSize(ctx context.Context, rc *connection.ResolvedContext, remainder string, recursive bool, progress types.ProgressCallback) (types.SizeTotals, error) {
	loc := s3backend.ParseLocation(remainder)
	if loc.IsRoot {
		return types.SizeTotals{}, notSupported("ComputeSize", remainder)
	}

	if !loc.IsBucket() && !loc.HasTrailingSeparator() {
		info, err := a.objects.HeadObject(ctx, rc, loc.Bucket, loc.Key)
		switch {
		case err == nil:
			totals := types.SizeTotals{FileCount: 1}
			totals.AddBytes(uint64(max(info.Size, 0)))
			return totals, nil
		case !errors.HasCode(err, errors.ErrCodeNotFound):
			return types.SizeTotals{}, err
		}
	}

	totals, err := a.walker.Walk(ctx, rc, loc.Bucket, loc.DirectoryPrefix(), recursive, progress)
	if err != nil || loc.IsBucket() || totals.FileCount > 0 || totals.DirectoryCount > 0 {
		return totals, err
	}

	// Nothing under the prefix: only a marker keeps it from being missing.
	marker, err := a.objects.ObjectExists(ctx, rc, loc.Bucket, loc.DirectoryPrefix())
	if err != nil {
		return totals, err
	}
	if !marker {
		return totals, errors.NewError(errors.ErrCodeNotFound, "no such file or directory").
			WithComponent(component).
			WithOperation("ComputeSize").
			WithContext("path", loc.String())
	}
	return totals, nil
}

func (a *Adapter) objectBackendMetadata(ctx context.Context, rc *connection.ResolvedContext, remainder string, info *types.ObjectInfo) map[string]any {
	loc := s3backend.ParseLocation(remainder)
	if loc.IsRoot {
		return nil
	}
	backend := map[string]any{"bucket": loc.Bucket}
	if region, err := a.objects.BucketRegion(ctx, rc, loc.Bucket); err == nil {
		backend["region"] = region
	} else {
		a.logger.Debug("region unavailable for metadata", "bucket", loc.Bucket, "error", err)
	}
	if loc.Key != "" {
		backend["key"] = loc.Key
	}
	if info != nil {
		backend["etag"] = info.ETag
		backend["content_type"] = info.ContentType
		backend["storage_class"] = info.StorageClass
		if len(info.Metadata) > 0 {
			backend["user_metadata"] = info.Metadata
		}
	}
	return backend
}
