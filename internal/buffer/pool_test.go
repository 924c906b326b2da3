package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytePool_GetPut(t *testing.T) {
	pool := NewBytePool()

	tests := []struct {
		size   int
		bucket int
	}{
		{1, 4 << 10},
		{4 << 10, 4 << 10},
		{5000, 64 << 10},
		{1 << 20, 1 << 20},
		{(64 << 20) + 1, (64 << 20) + 1},
	}

	for _, tt := range tests {
		buf := pool.Get(tt.size)
		assert.Len(t, buf, tt.size)
		assert.Equal(t, tt.bucket, cap(buf))
		pool.Put(buf)
	}

	stats := pool.GetStats()
	assert.Equal(t, int64(5), stats.Gets)
	assert.Equal(t, int64(4), stats.Puts)
	assert.Equal(t, int64(1), stats.Direct)
	assert.Equal(t, 4<<10, stats.MinBufferSize)
	assert.Equal(t, 64<<20, stats.MaxBufferSize)
}

func TestBytePool_ClearsOnPut(t *testing.T) {
	pool := NewBytePool()
	buf := pool.Get(16)
	copy(buf, "secret object data")
	pool.Put(buf)

	again := pool.Get(16)
	for _, b := range again[:cap(again)] {
		if b != 0 {
			t.Fatalf("pooled buffer was not cleared")
		}
	}
}

func TestBytePool_ForeignSlice(t *testing.T) {
	pool := NewBytePool()
	pool.Put(make([]byte, 100))
	pool.Put(nil)
	assert.Zero(t, pool.GetStats().Puts)
}
