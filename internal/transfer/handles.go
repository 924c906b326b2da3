package transfer

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/objectfs/s3vfs/internal/storage/translate"
	"github.com/objectfs/s3vfs/pkg/errors"
	"github.com/objectfs/s3vfs/pkg/types"
)

// Reader is a sized, seekable view of downloaded content. Closing it deletes
// the scratch file.
type Reader struct {
	*ScratchFile
	size int64
}

// Size returns the content length.
func (r *Reader) Size() int64 {
	return r.size
}

// Download streams body into a new scratch file and returns a reader
// positioned at its start. The scratch file is removed on any failure.
func Download(ctx context.Context, opts Options, body io.Reader, size int64, path string, progress types.ProgressCallback, logger *slog.Logger) (*Reader, error) {
	scratch, err := NewScratchFile(opts.ScratchDir, logger)
	if err != nil {
		return nil, err
	}

	total := uint64(0)
	if size > 0 {
		total = uint64(size)
	}
	written, err := CopyChunks(ctx, scratch, body, opts.chunkSize(), total, path, progress)
	if err != nil {
		scratch.Close()
		return nil, translate.Error(err, component, "Download", path)
	}
	if size >= 0 && written != size {
		scratch.Close()
		return nil, errors.Newf(errors.ErrCodeDataCorrupt, "received %d bytes, expected %d", written, size).
			WithComponent(component).
			WithOperation("Download").
			WithContext("path", path)
	}
	if err := scratch.Rewind(); err != nil {
		scratch.Close()
		return nil, errors.Wrap(err, errors.ErrCodeUnknown, "failed to rewind scratch file").
			WithComponent(component).
			WithOperation("Download")
	}
	return &Reader{ScratchFile: scratch, size: written}, nil
}

// CommitFunc uploads size bytes from body. body is positioned at its start.
type CommitFunc func(ctx context.Context, body io.ReadSeeker, size int64) error

// WriteHandle buffers written content in a scratch file until Commit.
// A handle that is discarded never touches the backend.
type WriteHandle struct {
	path     string
	scratch  *ScratchFile
	commit   CommitFunc
	progress types.ProgressCallback

	mu   sync.Mutex
	done bool
}

// NewWriteHandle creates the scratch file up front so callers can stream
// content before any network call is made.
func NewWriteHandle(opts Options, path string, commit CommitFunc, progress types.ProgressCallback, logger *slog.Logger) (*WriteHandle, error) {
	scratch, err := NewScratchFile(opts.ScratchDir, logger)
	if err != nil {
		return nil, err
	}
	return &WriteHandle{path: path, scratch: scratch, commit: commit, progress: progress}, nil
}

// Path returns the virtual path the handle will commit to.
func (h *WriteHandle) Path() string {
	return h.path
}

func (h *WriteHandle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return 0, h.closedError("Write")
	}
	return h.scratch.Write(p)
}

// WriteAt writes p at off, growing the content as needed.
func (h *WriteHandle) WriteAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return 0, h.closedError("Write")
	}
	return h.scratch.WriteAt(p, off)
}

// Truncate changes the buffered content's length.
func (h *WriteHandle) Truncate(size int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return h.closedError("Truncate")
	}
	return h.scratch.file.Truncate(size)
}

// ReadFrom copies r into the handle.
func (h *WriteHandle) ReadFrom(r io.Reader) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return 0, h.closedError("Write")
	}
	return io.Copy(h.scratch.file, r)
}

// Commit uploads the buffered content and releases the scratch file whether
// or not the upload succeeds.
func (h *WriteHandle) Commit(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return h.closedError("Commit")
	}
	h.done = true
	defer h.scratch.Close()

	size, err := h.scratch.Size()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeUnknown, "failed to measure scratch file").
			WithComponent(component).
			WithOperation("Commit")
	}
	if err := h.scratch.Rewind(); err != nil {
		return errors.Wrap(err, errors.ErrCodeUnknown, "failed to rewind scratch file").
			WithComponent(component).
			WithOperation("Commit")
	}

	body := &progressReader{r: h.scratch, path: h.path, total: uint64(size), progress: h.progress}
	return h.commit(ctx, body, size)
}

// Discard drops the buffered content without uploading it.
func (h *WriteHandle) Discard() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return nil
	}
	h.done = true
	return h.scratch.Close()
}

// Close is Discard; a committed handle is already closed.
func (h *WriteHandle) Close() error {
	return h.Discard()
}

func (h *WriteHandle) closedError(op string) *errors.VFSError {
	return errors.NewError(errors.ErrCodeInvalidArgument, "write handle already committed or discarded").
		WithComponent(component).
		WithOperation(op).
		WithContext("path", h.path)
}
