package adapter

import (
	"github.com/objectfs/s3vfs/internal/buffer"
	s3backend "github.com/objectfs/s3vfs/internal/storage/s3"
)

// Stats is a point-in-time snapshot of the adapter's backend state.
type Stats struct {
	Mode string `json:"mode"`

	// Objects and Clients are nil without an object-storage backend.
	Objects       *s3backend.BackendMetrics   `json:"objects,omitempty"`
	Clients       *s3backend.ClientCacheStats `json:"clients,omitempty"`
	CachedRegions int                         `json:"cached_regions"`

	CachedCatalogBuckets int `json:"cached_catalog_buckets"`

	Buffers buffer.PoolStats `json:"buffers"`
}

// Stats returns a snapshot of backend request counters, client and lookup
// caches, and the shared transfer buffer pool.
func (a *Adapter) Stats() Stats {
	stats := Stats{
		Mode:    a.opts.Mode.String(),
		Buffers: buffer.GetPoolStats(),
	}
	if a.objects != nil {
		objects := a.objects.GetMetrics()
		clients := a.objects.ClientStats()
		stats.Objects = &objects
		stats.Clients = &clients
		stats.CachedRegions = a.objects.Regions().Len()
	}
	if a.catalog != nil {
		stats.CachedCatalogBuckets = a.catalog.Identities().Len()
	}
	return stats
}
