package tables

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/s3vfs/internal/connection"
	"github.com/objectfs/s3vfs/internal/storage/tables/tablesmem"
	"github.com/objectfs/s3vfs/pkg/errors"
	"github.com/objectfs/s3vfs/pkg/utils"
)

func newTestBackend(server *tablesmem.Server) *Backend {
	factory := func(context.Context, *connection.ResolvedContext) (API, error) {
		return server, nil
	}
	return NewBackend(factory, nil, utils.DiscardLogger())
}

func testContext() *connection.ResolvedContext {
	return &connection.ResolvedContext{
		Region:             connection.DefaultRegion,
		MaxListingPageSize: connection.MaxPageSize,
		MaxCatalogPageSize: connection.MaxPageSize,
	}
}

func seed() *tablesmem.Server {
	server := tablesmem.New()
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	server.AddTable("analytics", "sales", tablesmem.Table{Name: "orders", MetadataLocation: "s3://meta/orders.json", Created: created, Modified: created})
	server.AddTable("analytics", "sales", tablesmem.Table{Name: "refunds", Created: created, Modified: created})
	server.AddNamespace("analytics", "empty")
	server.AddBucket("archive")
	return server
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		path    string
		want    Location
		wantErr bool
	}{
		{"/", Location{}, false},
		{"/analytics", Location{Bucket: "analytics", Depth: 1}, false},
		{"/analytics/sales/", Location{Bucket: "analytics", Namespace: "sales", Depth: 2}, false},
		{"/analytics/sales/orders.s3table", Location{Bucket: "analytics", Namespace: "sales", Table: "orders", Depth: 3}, false},
		{"/analytics/sales/orders", Location{}, true},
		{"/analytics/sales/.s3table", Location{}, true},
		{"/analytics/sales/orders.s3table/x", Location{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := ParseLocation(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidArgument, errors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestList_Levels(t *testing.T) {
	backend := newTestBackend(seed())
	ctx := context.Background()

	buckets, err := backend.List(ctx, testContext(), Location{})
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, "analytics", buckets[0].Name)
	assert.True(t, buckets[0].IsDirectory)

	namespaces, err := backend.List(ctx, testContext(), Location{Bucket: "analytics", Depth: 1})
	require.NoError(t, err)
	var nsNames []string
	for _, e := range namespaces {
		assert.True(t, e.IsDirectory)
		nsNames = append(nsNames, e.Name)
	}
	assert.Equal(t, []string{"empty", "sales"}, nsNames)

	tables, err := backend.List(ctx, testContext(), Location{Bucket: "analytics", Namespace: "sales", Depth: 2})
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "orders.s3table", tables[0].Name)
	assert.False(t, tables[0].IsDirectory)

	_, err = backend.List(ctx, testContext(), Location{Bucket: "analytics", Namespace: "sales", Table: "orders", Depth: 3})
	assert.Equal(t, errors.ErrCodeInvalidArgument, errors.CodeOf(err))
}

func TestList_Pagination(t *testing.T) {
	server := tablesmem.New()
	for i := 0; i < 25; i++ {
		server.AddNamespace("big", fmt.Sprintf("ns%02d", i))
	}
	backend := newTestBackend(server)
	rc := testContext()
	rc.MaxCatalogPageSize = 10

	entries, err := backend.List(context.Background(), rc, Location{Bucket: "big", Depth: 1})
	require.NoError(t, err)
	assert.Len(t, entries, 25)
	assert.Equal(t, 3, server.Calls("ListNamespaces"))
}

func TestBucketARN_Memoized(t *testing.T) {
	server := seed()
	backend := newTestBackend(server)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		arn, err := backend.BucketARN(ctx, testContext(), "analytics")
		require.NoError(t, err)
		assert.Equal(t, tablesmem.ARN("analytics"), arn)
	}
	assert.Equal(t, 1, server.Calls("ListTableBuckets"))

	// the refresh populated every bucket at once
	_, err := backend.BucketARN(ctx, testContext(), "archive")
	require.NoError(t, err)
	assert.Equal(t, 1, server.Calls("ListTableBuckets"))
	assert.Equal(t, 2, backend.Identities().Len())
}

func TestIdentityCache_ConcurrentMissesShareOneRefresh(t *testing.T) {
	const callers = 8
	cache := NewIdentityCache()
	var misses, refreshes atomic.Int32
	cache.OnLookup = func(hit bool) {
		if !hit {
			misses.Add(1)
		}
	}
	release := make(chan struct{})
	refresh := func(context.Context) (map[string]string, error) {
		refreshes.Add(1)
		<-release
		return map[string]string{"analytics": "arn:a", "archive": "arn:b"}, nil
	}

	var wg sync.WaitGroup
	arns := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		bucket := "analytics"
		if i%2 == 1 {
			bucket = "archive"
		}
		wg.Add(1)
		go func(i int, bucket string) {
			defer wg.Done()
			arns[i], errs[i] = cache.Ensure(context.Background(), bucket, refresh)
		}(i, bucket)
	}
	require.Eventually(t, func() bool { return misses.Load() == callers }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		want := "arn:a"
		if i%2 == 1 {
			want = "arn:b"
		}
		assert.Equal(t, want, arns[i])
	}
	assert.Equal(t, int32(1), refreshes.Load())
	assert.Equal(t, 2, cache.Len())
}

func TestBucketARN_NotFound(t *testing.T) {
	server := seed()
	backend := newTestBackend(server)

	_, err := backend.BucketARN(context.Background(), testContext(), "missing")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
	assert.Equal(t, 1, server.Calls("ListTableBuckets"))
}

func TestGetTable_Document(t *testing.T) {
	backend := newTestBackend(seed())
	loc, err := ParseLocation("/analytics/sales/orders.s3table")
	require.NoError(t, err)

	info, err := backend.GetTable(context.Background(), testContext(), loc)
	require.NoError(t, err)
	assert.Equal(t, "orders", info.Name)
	assert.Equal(t, "sales", info.Namespace)
	assert.Equal(t, "s3://meta/orders.json", info.MetadataLocation)
	assert.Equal(t, "ICEBERG", info.Format)

	doc, err := info.Document()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(doc, &decoded))
	assert.Equal(t, tablesmem.ARN("analytics"), decoded["table_bucket_arn"])
}

func TestGetTable_Missing(t *testing.T) {
	backend := newTestBackend(seed())
	loc, err := ParseLocation("/analytics/sales/nope.s3table")
	require.NoError(t, err)

	_, err = backend.GetTable(context.Background(), testContext(), loc)
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
}
