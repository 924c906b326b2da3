// Package dirbuf packs a directory listing into one contiguous buffer of
// variable-length records chained by next-offsets.
//
// Record layout, little endian, each record 8-byte aligned:
//
//	0  next        uint32  bytes from this record to the next, 0 on the last
//	4  attributes  uint32
//	8  size        uint64
//	16 created     int64   unix nanoseconds, 0 when unknown
//	24 accessed    int64
//	32 written     int64
//	40 changed     int64
//	48 nameLen     uint32  name bytes, excluding the terminator
//	52 name        nameLen bytes followed by NUL
//
// An empty listing is an empty buffer, never a zero-length record.
package dirbuf

import (
	"encoding/binary"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/objectfs/s3vfs/pkg/errors"
	"github.com/objectfs/s3vfs/pkg/types"
)

const (
	// AttrDirectory marks a directory record.
	AttrDirectory uint32 = 0x10
	// AttrNormal marks a regular file record.
	AttrNormal uint32 = 0x80

	headerSize = 52
	alignment  = 8
)

var le = binary.LittleEndian

// Buffer is an immutable packed listing.
type Buffer struct {
	data  []byte
	count int
}

// Sort orders entries directories first, then by case-insensitive name, then by size.
func Sort(entries []types.DirectoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return less(entries[i], entries[j])
	})
}

func less(a, b types.DirectoryEntry) bool {
	if a.IsDirectory != b.IsDirectory {
		return a.IsDirectory
	}
	an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
	if an != bn {
		return an < bn
	}
	return a.Size < b.Size
}

func recordSize(name string) int {
	n := headerSize + len(name) + 1
	return (n + alignment - 1) &^ (alignment - 1)
}

// BuildFromEntries sorts a copy of entries and packs it. The input slice is not modified.
func BuildFromEntries(entries []types.DirectoryEntry) *Buffer {
	if len(entries) == 0 {
		return &Buffer{}
	}

	sorted := make([]types.DirectoryEntry, len(entries))
	copy(sorted, entries)
	Sort(sorted)

	total := 0
	for _, e := range sorted {
		total += recordSize(e.Name)
	}

	data := make([]byte, total)
	offset := 0
	for i, e := range sorted {
		size := recordSize(e.Name)
		rec := data[offset : offset+size]

		if i < len(sorted)-1 {
			le.PutUint32(rec[0:], uint32(size))
		}
		attrs := AttrNormal
		if e.IsDirectory {
			attrs = AttrDirectory
		}
		le.PutUint32(rec[4:], attrs)
		le.PutUint64(rec[8:], e.Size)
		le.PutUint64(rec[16:], uint64(encodeTime(e.CreationTime)))
		le.PutUint64(rec[24:], uint64(encodeTime(e.LastAccessTime)))
		le.PutUint64(rec[32:], uint64(encodeTime(e.LastWriteTime)))
		le.PutUint64(rec[40:], uint64(encodeTime(e.ChangeTime)))
		le.PutUint32(rec[48:], uint32(len(e.Name)))
		copy(rec[headerSize:], e.Name)
		// the NUL and padding are already zero

		offset += size
	}

	return &Buffer{data: data, count: len(sorted)}
}

// Parse validates data as a packed listing and wraps it without copying.
// A broken chain is DATA_CORRUPT.
func Parse(data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return &Buffer{}, nil
	}
	count := 0
	for offset := 0; ; {
		_, next, err := decode(data, offset)
		if err != nil {
			return nil, err
		}
		count++
		if next == 0 {
			break
		}
		offset += next
	}
	return &Buffer{data: data, count: count}, nil
}

// GetCount returns the number of records.
func (b *Buffer) GetCount() int {
	return b.count
}

// GetBufferSize returns the number of bytes used by the records.
func (b *Buffer) GetBufferSize() int {
	return len(b.data)
}

// GetAllocatedSize returns the capacity backing the buffer.
func (b *Buffer) GetAllocatedSize() int {
	return cap(b.data)
}

// Bytes returns the packed records. The slice must not be modified.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Get returns the record at index by walking the chain from the start.
func (b *Buffer) Get(index int) (types.DirectoryEntry, error) {
	if index < 0 || index >= b.count {
		return types.DirectoryEntry{}, errors.Newf(errors.ErrCodeInvalidArgument,
			"index %d out of range [0,%d)", index, b.count).WithComponent("dirbuf")
	}

	offset := 0
	for i := 0; ; i++ {
		entry, next, err := decode(b.data, offset)
		if err != nil {
			return types.DirectoryEntry{}, err
		}
		if i == index {
			return entry, nil
		}
		if next == 0 {
			return types.DirectoryEntry{}, corrupt(offset, "chain ended after %d records, expected %d", i+1, b.count)
		}
		offset += next
	}
}

// Entries decodes every record in chain order.
func (b *Buffer) Entries() ([]types.DirectoryEntry, error) {
	entries := make([]types.DirectoryEntry, 0, b.count)
	if b.count == 0 {
		return entries, nil
	}
	offset := 0
	for {
		entry, next, err := decode(b.data, offset)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
		if next == 0 {
			return entries, nil
		}
		offset += next
	}
}

func decode(data []byte, offset int) (types.DirectoryEntry, int, error) {
	if offset < 0 || offset+headerSize > len(data) {
		return types.DirectoryEntry{}, 0, corrupt(offset, "record header past end of buffer (%d bytes)", len(data))
	}
	rec := data[offset:]

	next := int(le.Uint32(rec[0:]))
	nameLen := int(le.Uint32(rec[48:]))
	end := headerSize + nameLen + 1
	if end > len(rec) {
		return types.DirectoryEntry{}, 0, corrupt(offset, "name of %d bytes past end of buffer", nameLen)
	}
	if rec[headerSize+nameLen] != 0 {
		return types.DirectoryEntry{}, 0, corrupt(offset, "name is not terminated")
	}
	if next != 0 && (next < end || next%alignment != 0) {
		return types.DirectoryEntry{}, 0, corrupt(offset, "invalid next offset %d", next)
	}

	entry := types.DirectoryEntry{
		Name:           string(rec[headerSize : headerSize+nameLen]),
		IsDirectory:    le.Uint32(rec[4:])&AttrDirectory != 0,
		Size:           le.Uint64(rec[8:]),
		CreationTime:   decodeTime(int64(le.Uint64(rec[16:]))),
		LastAccessTime: decodeTime(int64(le.Uint64(rec[24:]))),
		LastWriteTime:  decodeTime(int64(le.Uint64(rec[32:]))),
		ChangeTime:     decodeTime(int64(le.Uint64(rec[40:]))),
	}
	return entry, next, nil
}

func corrupt(offset int, format string, args ...any) *errors.VFSError {
	return errors.Newf(errors.ErrCodeDataCorrupt, format, args...).
		WithComponent("dirbuf").
		WithContext("offset", strconv.Itoa(offset))
}

func encodeTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func decodeTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
