package s3

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/objectfs/s3vfs/internal/connection"
	"github.com/objectfs/s3vfs/internal/storage/translate"
	"github.com/objectfs/s3vfs/pkg/errors"
	"github.com/objectfs/s3vfs/pkg/types"
	"github.com/objectfs/s3vfs/pkg/utils"
)

const component = "s3"

// Backend performs object-storage calls on behalf of the adapter. It holds no
// per-call state; the region cache and client cache are shared.
type Backend struct {
	clients *ClientCache
	regions *RegionCache
	metrics *MetricsCollector
	logger  *slog.Logger
}

// NewBackend creates a backend. A nil regions cache gets a private one.
func NewBackend(factory ClientFactory, regions *RegionCache, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if regions == nil {
		regions = NewRegionCache()
	}
	return &Backend{
		clients: NewClientCache(factory),
		regions: regions,
		metrics: NewMetricsCollector(),
		logger:  logger.With("component", "s3-backend"),
	}
}

// Regions exposes the shared region cache.
func (b *Backend) Regions() *RegionCache {
	return b.regions
}

// GetMetrics returns current backend metrics
func (b *Backend) GetMetrics() BackendMetrics {
	return b.metrics.GetMetrics()
}

// ClientStats returns the client cache statistics.
func (b *Backend) ClientStats() ClientCacheStats {
	return b.clients.Stats()
}

// BucketRegion resolves bucket's region through the cache. With a custom
// endpoint the context region is used as is.
func (b *Backend) BucketRegion(ctx context.Context, rc *connection.ResolvedContext, bucket string) (string, error) {
	if rc.HasCustomEndpoint() || bucket == "" {
		return rc.Region, nil
	}

	region, err := b.regions.Ensure(ctx, bucket, func(ctx context.Context, bucket string) (string, error) {
		client, _, err := b.clients.Get(ctx, rc, rc.Region)
		if err != nil {
			return "", err
		}
		start := time.Now()
		out, err := client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: aws.String(bucket)})
		b.observe(start, err)
		if err != nil {
			return "", translate.Error(err, component, "GetBucketLocation", bucket)
		}
		return string(out.LocationConstraint), nil
	})
	if err != nil {
		return "", err
	}
	b.logger.Debug("bucket region", "bucket", bucket, "region", region)
	return region, nil
}

func (b *Backend) bucketClient(ctx context.Context, rc *connection.ResolvedContext, bucket string) (API, Uploader, error) {
	region, err := b.BucketRegion(ctx, rc, bucket)
	if err != nil {
		return nil, nil, err
	}
	api, uploader, err := b.clients.Get(ctx, rc, region)
	if err != nil {
		return nil, nil, translate.Error(err, component, "NewClient", bucket)
	}
	return api, uploader, nil
}

// ListBuckets lists all buckets as directories. When the context carries an
// explicit region and no custom endpoint, only buckets in that region are kept.
func (b *Backend) ListBuckets(ctx context.Context, rc *connection.ResolvedContext) ([]types.DirectoryEntry, error) {
	client, _, err := b.clients.Get(ctx, rc, rc.Region)
	if err != nil {
		return nil, translate.Error(err, component, "NewClient", "")
	}

	start := time.Now()
	out, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
	b.observe(start, err)
	if err != nil {
		return nil, translate.Error(err, component, "ListBuckets", "")
	}

	filter := rc.ExplicitRegion != "" && !rc.HasCustomEndpoint()
	entries := make([]types.DirectoryEntry, 0, len(out.Buckets))
	for _, bucket := range out.Buckets {
		name := aws.ToString(bucket.Name)
		if name == "" {
			continue
		}
		if filter {
			region, err := b.BucketRegion(ctx, rc, name)
			if err != nil {
				if errors.HasCode(err, errors.ErrCodeCancelled) {
					return nil, err
				}
				b.logger.Debug("skipping bucket with unknown region", "bucket", name, "error", err)
				continue
			}
			if region != rc.ExplicitRegion {
				continue
			}
		}
		entries = append(entries, types.NewDirectoryEntry(name, true, 0, aws.ToTime(bucket.CreationDate)))
	}
	return entries, nil
}

// PageRequest describes one ListObjectsV2 call.
type PageRequest struct {
	Prefix            string
	Delimiter         string
	ContinuationToken string
	MaxKeys           int
}

// Page is one page of a prefix listing.
type Page struct {
	Objects        []types.ObjectInfo
	CommonPrefixes []string
	NextToken      string
	Truncated      bool
}

// ListPage issues a single listing call.
func (b *Backend) ListPage(ctx context.Context, rc *connection.ResolvedContext, bucket string, req PageRequest) (*Page, error) {
	client, _, err := b.bucketClient(ctx, rc, bucket)
	if err != nil {
		return nil, err
	}

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(int32(connection.ClampPageSize(req.MaxKeys))),
	}
	if req.Prefix != "" {
		input.Prefix = aws.String(req.Prefix)
	}
	if req.Delimiter != "" {
		input.Delimiter = aws.String(req.Delimiter)
	}
	if req.ContinuationToken != "" {
		input.ContinuationToken = aws.String(req.ContinuationToken)
	}

	start := time.Now()
	out, err := client.ListObjectsV2(ctx, input)
	b.observe(start, err)
	if err != nil {
		return nil, translate.Error(err, component, "ListObjectsV2", bucket+"/"+req.Prefix)
	}

	page := &Page{
		Objects:        make([]types.ObjectInfo, 0, len(out.Contents)),
		CommonPrefixes: make([]string, 0, len(out.CommonPrefixes)),
		NextToken:      aws.ToString(out.NextContinuationToken),
		Truncated:      aws.ToBool(out.IsTruncated),
	}
	for _, obj := range out.Contents {
		page.Objects = append(page.Objects, types.ObjectInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
			ETag:         aws.ToString(obj.ETag),
			StorageClass: string(obj.StorageClass),
		})
	}
	for _, cp := range out.CommonPrefixes {
		page.CommonPrefixes = append(page.CommonPrefixes, aws.ToString(cp.Prefix))
	}
	if page.Truncated && page.NextToken == "" {
		return nil, errors.NewError(errors.ErrCodeDataCorrupt, "truncated listing without continuation token").
			WithComponent(component).
			WithOperation("ListObjectsV2").
			WithContext("resource", bucket+"/"+req.Prefix)
	}
	return page, nil
}

// ListDirectory lists the immediate children of loc, following continuation
// tokens until the listing is exhausted.
func (b *Backend) ListDirectory(ctx context.Context, rc *connection.ResolvedContext, loc Location) ([]types.DirectoryEntry, error) {
	if loc.IsRoot {
		return b.ListBuckets(ctx, rc)
	}

	prefix := loc.DirectoryPrefix()
	req := PageRequest{
		Prefix:    prefix,
		Delimiter: utils.Separator,
		MaxKeys:   rc.MaxListingPageSize,
	}

	var entries []types.DirectoryEntry
	for {
		page, err := b.ListPage(ctx, rc, loc.Bucket, req)
		if err != nil {
			return nil, err
		}

		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(cp, prefix), utils.Separator)
			if name == "" {
				continue
			}
			entries = append(entries, types.NewDirectoryEntry(name, true, 0, time.Time{}))
		}
		for _, obj := range page.Objects {
			if obj.Key == prefix {
				continue
			}
			name := strings.TrimPrefix(obj.Key, prefix)
			if i := strings.Index(name, utils.Separator); i >= 0 {
				name = name[:i]
			}
			if name == "" {
				continue
			}
			entries = append(entries, types.NewDirectoryEntry(name, false, uint64(max(obj.Size, 0)), obj.LastModified))
		}

		if !page.Truncated {
			break
		}
		req.ContinuationToken = page.NextToken
	}

	b.logger.Debug("listed directory", "bucket", loc.Bucket, "prefix", prefix, "entries", len(entries))
	return entries, nil
}

// HeadObject returns the object's metadata or an ErrCodeNotFound error.
func (b *Backend) HeadObject(ctx context.Context, rc *connection.ResolvedContext, bucket, key string) (*types.ObjectInfo, error) {
	client, _, err := b.bucketClient(ctx, rc, bucket)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	b.observe(start, err)
	if err != nil {
		return nil, translate.Error(err, component, "HeadObject", bucket+"/"+key)
	}

	info := &types.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ETag:         aws.ToString(out.ETag),
		ContentType:  aws.ToString(out.ContentType),
		StorageClass: string(out.StorageClass),
		Metadata:     make(map[string]string, len(out.Metadata)),
	}
	for k, v := range out.Metadata {
		info.Metadata[k] = v
	}
	return info, nil
}

// ObjectExists reports whether an object exists at exactly key.
func (b *Backend) ObjectExists(ctx context.Context, rc *connection.ResolvedContext, bucket, key string) (bool, error) {
	_, err := b.HeadObject(ctx, rc, bucket, key)
	switch {
	case err == nil:
		return true, nil
	case errors.HasCode(err, errors.ErrCodeNotFound):
		return false, nil
	default:
		return false, err
	}
}

// HasChildren reports whether any object lives under prefix.
func (b *Backend) HasChildren(ctx context.Context, rc *connection.ResolvedContext, bucket, prefix string) (bool, error) {
	page, err := b.ListPage(ctx, rc, bucket, PageRequest{Prefix: prefix, MaxKeys: 1})
	if err != nil {
		return false, err
	}
	return len(page.Objects) > 0 || len(page.CommonPrefixes) > 0, nil
}

// GetObject opens the object's body. The caller must close it.
func (b *Backend) GetObject(ctx context.Context, rc *connection.ResolvedContext, bucket, key string) (io.ReadCloser, *types.ObjectInfo, error) {
	client, _, err := b.bucketClient(ctx, rc, bucket)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	b.observe(start, err)
	if err != nil {
		return nil, nil, translate.Error(err, component, "GetObject", bucket+"/"+key)
	}

	info := &types.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ETag:         aws.ToString(out.ETag),
		ContentType:  aws.ToString(out.ContentType),
	}
	return &countingBody{ReadCloser: out.Body, metrics: b.metrics}, info, nil
}

// PutObject uploads size bytes from body to key. The CargoShip path is tried
// first when enabled; body is rewound before falling back to PutObject.
func (b *Backend) PutObject(ctx context.Context, rc *connection.ResolvedContext, bucket, key string, body io.ReadSeeker, size int64) error {
	client, uploader, err := b.bucketClient(ctx, rc, bucket)
	if err != nil {
		return err
	}
	contentType := detectContentType(key)

	if uploader != nil {
		uploadErr := uploader.Upload(ctx, bucket, key, body, size, contentType)
		if uploadErr == nil {
			b.metrics.RecordCargoShip(false)
			b.metrics.RecordBytesUploaded(size)
			return nil
		}
		if ctx.Err() != nil {
			return translate.Error(ctx.Err(), component, "Upload", bucket+"/"+key)
		}
		b.metrics.RecordCargoShip(true)
		b.logger.Warn("CargoShip optimization failed, falling back to standard S3",
			"bucket", bucket, "key", key, "error", uploadErr)
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return errors.Wrap(err, errors.ErrCodeUnknown, "failed to rewind upload body").
				WithComponent(component).
				WithOperation("PutObject")
		}
	}

	start := time.Now()
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	b.observe(start, err)
	if err != nil {
		return translate.Error(err, component, "PutObject", bucket+"/"+key)
	}

	b.metrics.RecordBytesUploaded(size)
	b.logger.Debug("uploaded object", "bucket", bucket, "key", key, "size", size)
	return nil
}

// DeleteObject removes key.
func (b *Backend) DeleteObject(ctx context.Context, rc *connection.ResolvedContext, bucket, key string) error {
	client, _, err := b.bucketClient(ctx, rc, bucket)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	b.observe(start, err)
	if err != nil {
		return translate.Error(err, component, "DeleteObject", bucket+"/"+key)
	}
	return nil
}

func (b *Backend) observe(start time.Time, err error) {
	b.metrics.RecordMetrics(time.Since(start), err != nil)
	if err != nil {
		b.metrics.RecordError(err)
	}
}

type countingBody struct {
	io.ReadCloser
	metrics *MetricsCollector
}

func (c *countingBody) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	if n > 0 {
		c.metrics.RecordBytesDownloaded(int64(n))
	}
	return n, err
}

func detectContentType(key string) string {
	switch {
	case strings.HasSuffix(key, utils.Separator):
		return "application/x-directory"
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".xml"):
		return "application/xml"
	case strings.HasSuffix(key, ".html"):
		return "text/html"
	case strings.HasSuffix(key, ".txt"), strings.HasSuffix(key, ".log"):
		return "text/plain"
	case strings.HasSuffix(key, ".csv"):
		return "text/csv"
	case strings.HasSuffix(key, ".jpg"), strings.HasSuffix(key, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(key, ".png"):
		return "image/png"
	case strings.HasSuffix(key, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(key, ".parquet"):
		return "application/vnd.apache.parquet"
	default:
		return "application/octet-stream"
	}
}
