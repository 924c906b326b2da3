package transfer

import (
	"context"
	"io"

	"github.com/objectfs/s3vfs/internal/buffer"
	"github.com/objectfs/s3vfs/pkg/errors"
	"github.com/objectfs/s3vfs/pkg/types"
)

const component = "transfer"

// DefaultChunkSize is used when Options.ChunkSize is not set.
const DefaultChunkSize = 1 << 20

// Options configures scratch staging.
type Options struct {
	// ScratchDir holds scratch files; empty means the system temp dir.
	ScratchDir string
	ChunkSize  int
}

func (o Options) chunkSize() int {
	if o.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return o.ChunkSize
}

// Cancelled builds the error returned when a transfer is stopped by the caller.
func Cancelled(operation, path string) *errors.VFSError {
	return errors.NewError(errors.ErrCodeCancelled, "transfer cancelled").
		WithComponent(component).
		WithOperation(operation).
		WithContext("path", path)
}

// CopyChunks copies src to dst in chunkSize pieces. After each chunk it
// verifies the write, reports progress and checks for cancellation.
// total is only used for progress reports; 0 means unknown.
func CopyChunks(ctx context.Context, dst io.Writer, src io.Reader, chunkSize int, total uint64, path string, progress types.ProgressCallback) (int64, error) {
	buf := buffer.GetBuffer(chunkSize)
	defer buffer.PutBuffer(buf)

	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, Cancelled("Copy", path).WithCause(err)
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			w, err := dst.Write(buf[:n])
			if err == nil && w != n {
				err = io.ErrShortWrite
			}
			if err != nil {
				return written, errors.Wrap(err, errors.ErrCodeUnknown, "failed to write chunk").
					WithComponent(component).
					WithOperation("Copy").
					WithContext("path", path)
			}
			written += int64(n)

			if progress != nil {
				progress.ReportProgress(types.ProgressCounts{Bytes: uint64(written), TotalBytes: total}, path)
				if progress.ShouldCancel() {
					return written, Cancelled("Copy", path)
				}
			}
		}

		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

// progressReader reports bytes as an upload consumes them and fails the read
// once the caller asks to cancel.
type progressReader struct {
	r        io.ReadSeeker
	path     string
	total    uint64
	read     uint64
	progress types.ProgressCallback
}

func (p *progressReader) Read(b []byte) (int, error) {
	if p.progress != nil && p.progress.ShouldCancel() {
		return 0, Cancelled("Upload", p.path)
	}
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += uint64(n)
		if p.progress != nil {
			p.progress.ReportProgress(types.ProgressCounts{Bytes: p.read, TotalBytes: p.total}, p.path)
		}
	}
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.r.Seek(offset, whence)
	if err == nil {
		p.read = uint64(pos)
	}
	return pos, err
}
