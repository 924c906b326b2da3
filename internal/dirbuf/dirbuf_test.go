package dirbuf

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/s3vfs/pkg/errors"
	"github.com/objectfs/s3vfs/pkg/types"
)

func sampleEntries() []types.DirectoryEntry {
	mod := time.Date(2025, 3, 14, 15, 9, 26, 535000000, time.UTC)
	return []types.DirectoryEntry{
		types.NewDirectoryEntry("zeta.txt", false, 10, mod),
		types.NewDirectoryEntry("Alpha", true, 0, time.Time{}),
		types.NewDirectoryEntry("beta.bin", false, 300, mod),
		types.NewDirectoryEntry("alpha.txt", false, 5, mod),
		types.NewDirectoryEntry("BETA.bin", false, 20, mod),
		types.NewDirectoryEntry("logs", true, 0, mod),
		types.NewDirectoryEntry("ünïcode-名前", false, 1, mod),
	}
}

func TestBuildFromEntries_RoundTrip(t *testing.T) {
	input := sampleEntries()
	buf := BuildFromEntries(input)
	require.Equal(t, len(input), buf.GetCount())

	want := []string{"Alpha", "logs", "alpha.txt", "BETA.bin", "beta.bin", "zeta.txt", "ünïcode-名前"}
	for i, name := range want {
		entry, err := buf.Get(i)
		require.NoError(t, err)
		assert.Equal(t, name, entry.Name, "index %d", i)
	}

	entries, err := buf.Entries()
	require.NoError(t, err)
	expected := append([]types.DirectoryEntry(nil), input...)
	Sort(expected)
	assert.Equal(t, expected, entries)
}

func TestBuildFromEntries_OrderIndependent(t *testing.T) {
	input := sampleEntries()
	reference := BuildFromEntries(input)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := append([]types.DirectoryEntry(nil), input...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, reference.Bytes(), BuildFromEntries(shuffled).Bytes())
	}
}

func TestBuildFromEntries_DoesNotMutateInput(t *testing.T) {
	input := sampleEntries()
	first := input[0].Name
	BuildFromEntries(input)
	assert.Equal(t, first, input[0].Name)
}

func TestBuildFromEntries_Empty(t *testing.T) {
	buf := BuildFromEntries(nil)
	assert.Zero(t, buf.GetCount())
	assert.Zero(t, buf.GetBufferSize())

	_, err := buf.Get(0)
	assert.Equal(t, errors.ErrCodeInvalidArgument, errors.CodeOf(err))

	entries, err := buf.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBuffer_Layout(t *testing.T) {
	buf := BuildFromEntries([]types.DirectoryEntry{
		types.NewDirectoryEntry("a", false, 1, time.Time{}),
		types.NewDirectoryEntry("bcdefghij", false, 2, time.Time{}),
	})

	// 52 + 1 + 1 rounds to 56; 52 + 9 + 1 rounds to 64
	assert.Equal(t, 120, buf.GetBufferSize())
	assert.GreaterOrEqual(t, buf.GetAllocatedSize(), buf.GetBufferSize())
	data := buf.Bytes()
	assert.Equal(t, uint32(56), le.Uint32(data[0:]))
	assert.Equal(t, uint32(0), le.Uint32(data[56:]))
	assert.Equal(t, AttrNormal, le.Uint32(data[4:]))
}

func TestBuffer_SizeTiebreak(t *testing.T) {
	buf := BuildFromEntries([]types.DirectoryEntry{
		types.NewDirectoryEntry("same", false, 9, time.Time{}),
		types.NewDirectoryEntry("SAME", false, 3, time.Time{}),
	})
	first, err := buf.Get(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), first.Size)
}

func TestParse(t *testing.T) {
	good := BuildFromEntries(sampleEntries()).Bytes()

	parsed, err := Parse(good)
	require.NoError(t, err)
	assert.Equal(t, len(sampleEntries()), parsed.GetCount())

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"truncated header", func(b []byte) []byte { return b[:20] }},
		{"truncated chain", func(b []byte) []byte { return b[:len(b)-8] }},
		{"next offset too small", func(b []byte) []byte { le.PutUint32(b[0:], 8); return b }},
		{"unaligned next offset", func(b []byte) []byte { le.PutUint32(b[0:], 61); return b }},
		{"name too long", func(b []byte) []byte { le.PutUint32(b[48:], 1<<20); return b }},
		{"missing terminator", func(b []byte) []byte {
			n := int(le.Uint32(b[48:]))
			b[headerSize+n] = 'x'
			return b
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(append([]byte(nil), good...))
			_, err := Parse(data)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeDataCorrupt, errors.CodeOf(err))
		})
	}
}

func BenchmarkBuildFromEntries(b *testing.B) {
	entries := make([]types.DirectoryEntry, 1000)
	for i := range entries {
		entries[i] = types.NewDirectoryEntry(fmt.Sprintf("file-%04d.dat", i), i%10 == 0, uint64(i), time.Now())
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		BuildFromEntries(entries)
	}
}
