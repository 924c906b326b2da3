package s3

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// RegionCache memoizes bucket regions for the life of the process.
//
// Entries are never invalidated. A single mutex guards the map and is held only
// for lookups and stores, never across the location query. Concurrent misses
// for one bucket share a single query.
type RegionCache struct {
	mu      sync.Mutex
	regions map[string]string
	group   singleflight.Group

	// OnLookup, if set, is told whether each Ensure was served from the cache.
	OnLookup func(hit bool)
}

// NewRegionCache creates an empty cache.
func NewRegionCache() *RegionCache {
	return &RegionCache{regions: make(map[string]string)}
}

// Lookup returns the cached region for bucket.
func (c *RegionCache) Lookup(bucket string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	region, ok := c.regions[bucket]
	return region, ok
}

// Store records region for bucket.
func (c *RegionCache) Store(bucket, region string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regions[bucket] = region
}

// Len returns the number of cached buckets.
func (c *RegionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.regions)
}

// Ensure returns bucket's region, calling fetch on a miss. fetch's raw result is
// normalized with NormalizeLocation before it is stored.
func (c *RegionCache) Ensure(ctx context.Context, bucket string, fetch func(context.Context, string) (string, error)) (string, error) {
	if region, ok := c.Lookup(bucket); ok {
		c.observe(true)
		return region, nil
	}
	c.observe(false)

	v, err, _ := c.group.Do(bucket, func() (any, error) {
		if region, ok := c.Lookup(bucket); ok {
			return region, nil
		}
		location, err := fetch(ctx, bucket)
		if err != nil {
			return "", err
		}
		region := NormalizeLocation(location)
		c.Store(bucket, region)
		return region, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *RegionCache) observe(hit bool) {
	if c.OnLookup != nil {
		c.OnLookup(hit)
	}
}

// NormalizeLocation maps a bucket location constraint to a region name.
// The empty constraint means us-east-1 and "EU" is the legacy name of eu-west-1.
func NormalizeLocation(location string) string {
	switch strings.TrimSpace(location) {
	case "", "US", "us-standard":
		return "us-east-1"
	case "EU":
		return "eu-west-1"
	default:
		return strings.TrimSpace(location)
	}
}
