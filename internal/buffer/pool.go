// Package buffer pools the chunk buffers used to stream object content
// between the network and scratch files.
package buffer

import (
	"sync"
	"sync/atomic"
)

// Chunk size buckets, smallest first. Requests above the largest bucket are
// allocated directly and never pooled.
var defaultSizes = []int{
	4 << 10,  // 4KB
	64 << 10, // 64KB
	256 << 10,
	1 << 20, // 1MB
	4 << 20,
	16 << 20,
	64 << 20, // 64MB
}

// BytePool provides pooled byte slices in fixed size buckets.
type BytePool struct {
	pools map[int]*sync.Pool
	sizes []int

	gets   atomic.Int64
	puts   atomic.Int64
	direct atomic.Int64
}

// NewBytePool creates a pool with the default chunk buckets.
func NewBytePool() *BytePool {
	pools := make(map[int]*sync.Pool, len(defaultSizes))
	for _, size := range defaultSizes {
		size := size
		pools[size] = &sync.Pool{
			New: func() any {
				b := make([]byte, size)
				return &b
			},
		}
	}
	return &BytePool{pools: pools, sizes: defaultSizes}
}

// BucketSize returns the bucket a request of size bytes is served from,
// or size itself when it is larger than every bucket.
func (p *BytePool) BucketSize(size int) int {
	for _, bucket := range p.sizes {
		if bucket >= size {
			return bucket
		}
	}
	return size
}

// Get returns a slice of length size. Its capacity is the bucket size.
func (p *BytePool) Get(size int) []byte {
	p.gets.Add(1)
	if pool, ok := p.pools[p.BucketSize(size)]; ok {
		buf := pool.Get().(*[]byte)
		return (*buf)[:size]
	}
	p.direct.Add(1)
	return make([]byte, size)
}

// Put returns buf to its bucket. Slices that did not come from the pool are dropped.
func (p *BytePool) Put(buf []byte) {
	if buf == nil {
		return
	}
	pool, ok := p.pools[cap(buf)]
	if !ok {
		return
	}
	buf = buf[:cap(buf)]
	// clear so pooled chunks never leak object content between transfers
	clear(buf)
	p.puts.Add(1)
	pool.Put(&buf)
}

// PoolStats reports pool usage.
type PoolStats struct {
	PoolSizes     []int `json:"pool_sizes"`
	Gets          int64 `json:"gets"`
	Puts          int64 `json:"puts"`
	Direct        int64 `json:"direct_allocations"`
	MaxBufferSize int   `json:"max_buffer_size"`
	MinBufferSize int   `json:"min_buffer_size"`
}

// GetStats returns current pool statistics
func (p *BytePool) GetStats() PoolStats {
	stats := PoolStats{
		PoolSizes: append([]int(nil), p.sizes...),
		Gets:      p.gets.Load(),
		Puts:      p.puts.Load(),
		Direct:    p.direct.Load(),
	}
	if len(p.sizes) > 0 {
		stats.MinBufferSize = p.sizes[0]
		stats.MaxBufferSize = p.sizes[len(p.sizes)-1]
	}
	return stats
}

var defaultBytePool = NewBytePool()

// GetBuffer gets a buffer from the default global pool
func GetBuffer(size int) []byte {
	return defaultBytePool.Get(size)
}

// PutBuffer returns a buffer to the default global pool
func PutBuffer(buf []byte) {
	defaultBytePool.Put(buf)
}

// GetPoolStats returns statistics for the default global pool
func GetPoolStats() PoolStats {
	return defaultBytePool.GetStats()
}
