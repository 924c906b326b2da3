package tables

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3tables"

	"github.com/objectfs/s3vfs/internal/connection"
	"github.com/objectfs/s3vfs/internal/storage/translate"
	"github.com/objectfs/s3vfs/pkg/errors"
	"github.com/objectfs/s3vfs/pkg/types"
	"github.com/objectfs/s3vfs/pkg/utils"
)

const component = "s3tables"

// TableExtension marks table entries in a namespace listing.
const TableExtension = ".s3table"

// NamespaceSeparator joins multi-part namespaces into one display name.
const NamespaceSeparator = "."

// Location addresses one level of the catalog hierarchy.
type Location struct {
	Bucket    string
	Namespace string
	// Table is the table name without TableExtension.
	Table string
	Depth int
}

// ParseLocation splits a catalog path. Deeper than bucket/namespace/table is
// INVALID_ARGUMENT, as is a depth-3 name without TableExtension.
func ParseLocation(path string) (Location, error) {
	segments := utils.PathSegments(utils.NormalizePath(path))
	loc := Location{Depth: len(segments)}
	switch len(segments) {
	case 3:
		if !strings.HasSuffix(segments[2], TableExtension) || segments[2] == TableExtension {
			return Location{}, errors.Newf(errors.ErrCodeInvalidArgument, "%q is not a table entry", segments[2]).
				WithComponent(component).
				WithOperation("ParseLocation")
		}
		loc.Table = strings.TrimSuffix(segments[2], TableExtension)
		fallthrough
	case 2:
		loc.Namespace = segments[1]
		fallthrough
	case 1:
		loc.Bucket = segments[0]
	case 0:
	default:
		return Location{}, errors.Newf(errors.ErrCodeInvalidArgument,
			"catalog paths have at most three levels, got %d", len(segments)).
			WithComponent(component).
			WithOperation("ParseLocation").
			WithContext("path", path)
	}
	return loc, nil
}

// TableInfo describes a table. It is the content served for a table entry.
type TableInfo struct {
	Name              string    `json:"name"`
	Namespace         string    `json:"namespace"`
	Bucket            string    `json:"table_bucket"`
	BucketARN         string    `json:"table_bucket_arn"`
	ARN               string    `json:"arn"`
	Type              string    `json:"type,omitempty"`
	Format            string    `json:"format,omitempty"`
	MetadataLocation  string    `json:"metadata_location,omitempty"`
	WarehouseLocation string    `json:"warehouse_location,omitempty"`
	VersionToken      string    `json:"version_token,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	ModifiedAt        time.Time `json:"modified_at"`
}

// Document renders the table description served by Read.
func (t *TableInfo) Document() ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnknown, "failed to encode table description")
	}
	return append(data, '\n'), nil
}

// Backend performs catalog calls on behalf of the adapter.
type Backend struct {
	clients    *clientCache
	identities *IdentityCache
	logger     *slog.Logger
}

// NewBackend creates a catalog backend. A nil identities cache gets a private one.
func NewBackend(factory ClientFactory, identities *IdentityCache, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if identities == nil {
		identities = NewIdentityCache()
	}
	return &Backend{
		clients:    newClientCache(factory),
		identities: identities,
		logger:     logger.With("component", "s3tables-backend"),
	}
}

// Identities exposes the shared identity cache.
func (b *Backend) Identities() *IdentityCache {
	return b.identities
}

func (b *Backend) client(ctx context.Context, rc *connection.ResolvedContext) (API, error) {
	client, err := b.clients.get(ctx, rc)
	if err != nil {
		return nil, translate.Error(err, component, "NewClient", "")
	}
	return client, nil
}

type bucketSummary struct {
	name    string
	arn     string
	created time.Time
}

func (b *Backend) listBuckets(ctx context.Context, rc *connection.ResolvedContext) ([]bucketSummary, error) {
	client, err := b.client(ctx, rc)
	if err != nil {
		return nil, err
	}

	var buckets []bucketSummary
	input := &s3tables.ListTableBucketsInput{
		MaxBuckets: aws.Int32(int32(connection.ClampPageSize(rc.MaxCatalogPageSize))),
	}
	for {
		out, err := client.ListTableBuckets(ctx, input)
		if err != nil {
			return nil, translate.Error(err, component, "ListTableBuckets", "")
		}
		for _, tb := range out.TableBuckets {
			buckets = append(buckets, bucketSummary{
				name:    aws.ToString(tb.Name),
				arn:     aws.ToString(tb.Arn),
				created: aws.ToTime(tb.CreatedAt),
			})
		}
		token := aws.ToString(out.ContinuationToken)
		if token == "" {
			break
		}
		input.ContinuationToken = aws.String(token)
	}

	arns := make(map[string]string, len(buckets))
	for _, tb := range buckets {
		arns[tb.name] = tb.arn
	}
	b.identities.StoreAll(arns)
	return buckets, nil
}

// BucketARN resolves a table bucket name through the identity cache.
func (b *Backend) BucketARN(ctx context.Context, rc *connection.ResolvedContext, bucket string) (string, error) {
	return b.identities.Ensure(ctx, bucket, func(ctx context.Context) (map[string]string, error) {
		buckets, err := b.listBuckets(ctx, rc)
		if err != nil {
			return nil, err
		}
		b.logger.Info("refreshed table bucket identities", "buckets", len(buckets))
		arns := make(map[string]string, len(buckets))
		for _, tb := range buckets {
			arns[tb.name] = tb.arn
		}
		return arns, nil
	})
}

// List returns the entries at loc: buckets, namespaces or tables.
func (b *Backend) List(ctx context.Context, rc *connection.ResolvedContext, loc Location) ([]types.DirectoryEntry, error) {
	switch loc.Depth {
	case 0:
		buckets, err := b.listBuckets(ctx, rc)
		if err != nil {
			return nil, err
		}
		entries := make([]types.DirectoryEntry, 0, len(buckets))
		for _, tb := range buckets {
			entries = append(entries, types.NewDirectoryEntry(tb.name, true, 0, tb.created))
		}
		return entries, nil
	case 1:
		return b.listNamespaces(ctx, rc, loc.Bucket)
	case 2:
		return b.listTables(ctx, rc, loc.Bucket, loc.Namespace)
	default:
		return nil, errors.NewError(errors.ErrCodeInvalidArgument, "a table is not a directory").
			WithComponent(component).
			WithOperation("List")
	}
}

func (b *Backend) listNamespaces(ctx context.Context, rc *connection.ResolvedContext, bucket string) ([]types.DirectoryEntry, error) {
	arn, err := b.BucketARN(ctx, rc, bucket)
	if err != nil {
		return nil, err
	}
	client, err := b.client(ctx, rc)
	if err != nil {
		return nil, err
	}

	var entries []types.DirectoryEntry
	input := &s3tables.ListNamespacesInput{
		TableBucketARN: aws.String(arn),
		MaxNamespaces:  aws.Int32(int32(connection.ClampPageSize(rc.MaxCatalogPageSize))),
	}
	for {
		out, err := client.ListNamespaces(ctx, input)
		if err != nil {
			return nil, translate.Error(err, component, "ListNamespaces", bucket)
		}
		for _, ns := range out.Namespaces {
			name := strings.Join(ns.Namespace, NamespaceSeparator)
			if name == "" {
				continue
			}
			entries = append(entries, types.NewDirectoryEntry(name, true, 0, aws.ToTime(ns.CreatedAt)))
		}
		token := aws.ToString(out.ContinuationToken)
		if token == "" {
			break
		}
		input.ContinuationToken = aws.String(token)
	}
	b.logger.Debug("listed namespaces", "bucket", bucket, "entries", len(entries))
	return entries, nil
}

func (b *Backend) listTables(ctx context.Context, rc *connection.ResolvedContext, bucket, namespace string) ([]types.DirectoryEntry, error) {
	arn, err := b.BucketARN(ctx, rc, bucket)
	if err != nil {
		return nil, err
	}
	client, err := b.client(ctx, rc)
	if err != nil {
		return nil, err
	}

	var entries []types.DirectoryEntry
	input := &s3tables.ListTablesInput{
		TableBucketARN: aws.String(arn),
		Namespace:      aws.String(namespace),
		MaxTables:      aws.Int32(int32(connection.ClampPageSize(rc.MaxCatalogPageSize))),
	}
	for {
		out, err := client.ListTables(ctx, input)
		if err != nil {
			return nil, translate.Error(err, component, "ListTables", bucket+"/"+namespace)
		}
		for _, t := range out.Tables {
			name := aws.ToString(t.Name)
			if name == "" {
				continue
			}
			entry := types.NewDirectoryEntry(name+TableExtension, false, 0, aws.ToTime(t.ModifiedAt))
			entry.CreationTime = aws.ToTime(t.CreatedAt)
			entries = append(entries, entry)
		}
		token := aws.ToString(out.ContinuationToken)
		if token == "" {
			break
		}
		input.ContinuationToken = aws.String(token)
	}
	b.logger.Debug("listed tables", "bucket", bucket, "namespace", namespace, "entries", len(entries))
	return entries, nil
}

// GetTable fetches a table's description.
func (b *Backend) GetTable(ctx context.Context, rc *connection.ResolvedContext, loc Location) (*TableInfo, error) {
	if loc.Depth != 3 {
		return nil, errors.NewError(errors.ErrCodeInvalidArgument, "path does not name a table").
			WithComponent(component).
			WithOperation("GetTable")
	}
	arn, err := b.BucketARN(ctx, rc, loc.Bucket)
	if err != nil {
		return nil, err
	}
	client, err := b.client(ctx, rc)
	if err != nil {
		return nil, err
	}

	out, err := client.GetTable(ctx, &s3tables.GetTableInput{
		TableBucketARN: aws.String(arn),
		Namespace:      aws.String(loc.Namespace),
		Name:           aws.String(loc.Table),
	})
	if err != nil {
		return nil, translate.Error(err, component, "GetTable", loc.Bucket+"/"+loc.Namespace+"/"+loc.Table)
	}

	return &TableInfo{
		Name:              aws.ToString(out.Name),
		Namespace:         strings.Join(out.Namespace, NamespaceSeparator),
		Bucket:            loc.Bucket,
		BucketARN:         arn,
		ARN:               aws.ToString(out.TableARN),
		Type:              string(out.Type),
		Format:            string(out.Format),
		MetadataLocation:  aws.ToString(out.MetadataLocation),
		WarehouseLocation: aws.ToString(out.WarehouseLocation),
		VersionToken:      aws.ToString(out.VersionToken),
		CreatedAt:         aws.ToTime(out.CreatedAt),
		ModifiedAt:        aws.ToTime(out.ModifiedAt),
	}, nil
}
