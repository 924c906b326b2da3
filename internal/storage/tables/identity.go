package tables

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/objectfs/s3vfs/pkg/errors"
)

// IdentityCache maps table bucket names to their ARNs.
//
// A miss refreshes the whole cache from a single bucket enumeration, shared by
// every caller missing at the same time. Entries are never invalidated.
type IdentityCache struct {
	mu    sync.Mutex
	arns  map[string]string
	group singleflight.Group

	// OnLookup, if set, is told whether each Ensure was served from the cache.
	OnLookup func(hit bool)
}

// NewIdentityCache creates an empty cache.
func NewIdentityCache() *IdentityCache {
	return &IdentityCache{arns: make(map[string]string)}
}

// Lookup returns the cached ARN for bucket.
func (c *IdentityCache) Lookup(bucket string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	arn, ok := c.arns[bucket]
	return arn, ok
}

// StoreAll merges arns into the cache.
func (c *IdentityCache) StoreAll(arns map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, arn := range arns {
		c.arns[name] = arn
	}
}

// Len returns the number of cached buckets.
func (c *IdentityCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.arns)
}

// Ensure returns bucket's ARN. On a miss, refresh lists every table bucket
// without the lock held; a bucket still missing afterwards is NOT_FOUND.
func (c *IdentityCache) Ensure(ctx context.Context, bucket string, refresh func(context.Context) (map[string]string, error)) (string, error) {
	if arn, ok := c.Lookup(bucket); ok {
		c.observe(true)
		return arn, nil
	}
	c.observe(false)

	_, err, _ := c.group.Do("buckets", func() (any, error) {
		if _, ok := c.Lookup(bucket); ok {
			return nil, nil
		}
		arns, err := refresh(ctx)
		if err != nil {
			return nil, err
		}
		c.StoreAll(arns)
		return nil, nil
	})
	if err != nil {
		return "", err
	}

	if arn, ok := c.Lookup(bucket); ok {
		return arn, nil
	}
	return "", errors.Newf(errors.ErrCodeNotFound, "table bucket %q not found", bucket).
		WithComponent(component).
		WithOperation("ResolveTableBucket")
}

func (c *IdentityCache) observe(hit bool) {
	if c.OnLookup != nil {
		c.OnLookup(hit)
	}
}
