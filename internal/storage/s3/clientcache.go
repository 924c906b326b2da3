package s3

import (
	"context"
	"sync"
	"time"

	"github.com/objectfs/s3vfs/internal/connection"
)

type cachedClient struct {
	api      API
	uploader Uploader
}

// ClientCache reuses clients across calls that resolve to the same settings.
// The factory runs without the lock held.
type ClientCache struct {
	mu      sync.Mutex
	factory ClientFactory
	clients map[connection.ClientKey]cachedClient
	stats   ClientCacheStats
}

// ClientCacheStats tracks client cache statistics
type ClientCacheStats struct {
	Hits        int64     `json:"hits"`
	Created     int64     `json:"created"`
	Errors      int64     `json:"errors"`
	LastCreated time.Time `json:"last_created"`
	LastError   string    `json:"last_error"`
}

// NewClientCache creates a cache over factory.
func NewClientCache(factory ClientFactory) *ClientCache {
	return &ClientCache{
		factory: factory,
		clients: make(map[connection.ClientKey]cachedClient),
	}
}

// Get returns the client for rc in region, building it on first use.
func (c *ClientCache) Get(ctx context.Context, rc *connection.ResolvedContext, region string) (API, Uploader, error) {
	if region == "" {
		region = rc.Region
	}
	key := rc.ClientKey(region)

	c.mu.Lock()
	if cc, ok := c.clients[key]; ok {
		c.stats.Hits++
		c.mu.Unlock()
		return cc.api, cc.uploader, nil
	}
	c.mu.Unlock()

	api, uploader, err := c.factory(ctx, rc, region)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.stats.Errors++
		c.stats.LastError = err.Error()
		return nil, nil, err
	}
	if cc, ok := c.clients[key]; ok {
		return cc.api, cc.uploader, nil
	}
	c.clients[key] = cachedClient{api: api, uploader: uploader}
	c.stats.Created++
	c.stats.LastCreated = time.Now()
	return api, uploader, nil
}

// Stats returns a snapshot of cache statistics.
func (c *ClientCache) Stats() ClientCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
