package adapter

import (
	"bytes"
	"context"

	"github.com/objectfs/s3vfs/internal/connection"
	"github.com/objectfs/s3vfs/internal/storage/tables"
	"github.com/objectfs/s3vfs/internal/transfer"
	"github.com/objectfs/s3vfs/pkg/errors"
	"github.com/objectfs/s3vfs/pkg/types"
	"github.com/objectfs/s3vfs/pkg/utils"
)

// statTable maps the fixed catalog hierarchy onto attributes. Tables are
// files whose content is their JSON description.
func (a *Adapter) statTable(ctx context.Context, rc *connection.ResolvedContext, remainder string) (*types.ItemAttributes, *tables.TableInfo, error) {
	loc, err := tables.ParseLocation(remainder)
	if err != nil {
		return nil, nil, err
	}
	path := utils.NormalizePath(remainder)

	switch loc.Depth {
	case 0, 2:
		return directoryAttributes(path), nil, nil
	case 1:
		if _, err := a.catalog.BucketARN(ctx, rc, loc.Bucket); err != nil {
			return nil, nil, err
		}
		return directoryAttributes(path), nil, nil
	}

	table, doc, err := a.tableDocument(ctx, rc, loc)
	if err != nil {
		return nil, nil, err
	}
	return &types.ItemAttributes{
		Path:        path,
		Name:        loc.Table + tables.TableExtension,
		Size:        uint64(len(doc)),
		ModTime:     table.ModifiedAt,
		ContentType: "application/json",
	}, table, nil
}

func (a *Adapter) tableDocument(ctx context.Context, rc *connection.ResolvedContext, loc tables.Location) (*tables.TableInfo, []byte, error) {
	table, err := a.catalog.GetTable(ctx, rc, loc)
	if err != nil {
		return nil, nil, err
	}
	doc, err := table.Document()
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeUnknown, "failed to encode table description").
			WithComponent(component)
	}
	return table, doc, nil
}

func (a *Adapter) readTable(ctx context.Context, rc *connection.ResolvedContext, remainder string, progress types.ProgressCallback) (*transfer.Reader, error) {
	loc, err := tables.ParseLocation(remainder)
	if err != nil {
		return nil, err
	}
	if loc.Depth != 3 {
		return nil, errors.NewError(errors.ErrCodeAccessDenied, "only tables can be read").
			WithComponent(component).
			WithOperation("Read").
			WithContext("path", remainder)
	}

	_, doc, err := a.tableDocument(ctx, rc, loc)
	if err != nil {
		return nil, err
	}
	return transfer.Download(ctx, a.opts.Transfer, bytes.NewReader(doc), int64(len(doc)), remainder, progress, a.opts.Logger)
}

func catalogBackendMetadata(remainder string, table *tables.TableInfo) map[string]any {
	if table != nil {
		return map[string]any{
			"table_bucket":      table.Bucket,
			"table_bucket_arn":  table.BucketARN,
			"namespace":         table.Namespace,
			"table":             table.Name,
			"arn":               table.ARN,
			"format":            table.Format,
			"metadata_location": table.MetadataLocation,
		}
	}
	loc, err := tables.ParseLocation(remainder)
	if err != nil || loc.Depth == 0 {
		return nil
	}
	backend := map[string]any{"table_bucket": loc.Bucket}
	if loc.Namespace != "" {
		backend["namespace"] = loc.Namespace
	}
	return backend
}
