package fuse

import (
	"context"
	"io"
	"sync"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/objectfs/s3vfs/internal/transfer"
	"github.com/objectfs/s3vfs/pkg/errors"
)

// readHandle serves reads from a downloaded scratch file.
type readHandle struct {
	fs     *FileSystem
	reader *transfer.Reader
}

var (
	_ fs.FileReader   = (*readHandle)(nil)
	_ fs.FileReleaser = (*readHandle)(nil)
)

func (h *readHandle) Read(_ context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h.fs.stats.Reads.Add(1)
	if off >= h.reader.Size() {
		return fuse.ReadResultData(nil), 0
	}
	n, err := h.reader.ReadAt(dest, off)
	if err != nil && err != io.EOF {
		return nil, h.fs.fail("Read", h.reader.Name(), err)
	}
	h.fs.stats.BytesRead.Add(int64(n))
	return fuse.ReadResultData(dest[:n]), 0
}

func (h *readHandle) Release(context.Context) syscall.Errno {
	h.reader.Close()
	return 0
}

// writeHandle stages writes and commits them on the first flush.
type writeHandle struct {
	node   *FileNode
	handle *transfer.WriteHandle

	mu        sync.Mutex
	size      int64
	committed bool
}

var (
	_ fs.FileWriter   = (*writeHandle)(nil)
	_ fs.FileReader   = (*writeHandle)(nil)
	_ fs.FileFlusher  = (*writeHandle)(nil)
	_ fs.FileReleaser = (*writeHandle)(nil)
)

// preload copies the current content so partial writes keep the rest of the file.
func (h *writeHandle) preload(ctx context.Context) syscall.Errno {
	fsys := h.node.fs
	r, err := fsys.ops.Read(ctx, h.node.path, nil)
	if err != nil {
		return fsys.fail("Open", h.node.path, err)
	}
	defer r.Close()

	n, err := h.handle.ReadFrom(r)
	if err != nil {
		return fsys.fail("Open", h.node.path, err)
	}
	h.size = n
	return 0
}

func (h *writeHandle) Write(_ context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fsys := h.node.fs
	if h.committed {
		return 0, syscall.EBADF
	}
	n, err := h.handle.WriteAt(data, off)
	if err != nil {
		return 0, fsys.fail("Write", h.node.path, err)
	}
	fsys.stats.Writes.Add(1)
	fsys.stats.BytesWritten.Add(int64(n))
	h.size = max(h.size, off+int64(n))
	return uint32(n), 0
}

// Read is not supported on write handles; reopen the file to read it.
func (h *writeHandle) Read(context.Context, []byte, int64) (fuse.ReadResult, syscall.Errno) {
	return nil, syscall.EBADF
}

func (h *writeHandle) truncate(size int64) syscall.Errno {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.committed {
		return syscall.EBADF
	}
	if err := h.handle.Truncate(size); err != nil {
		return h.node.fs.fail("Truncate", h.node.path, err)
	}
	h.size = size
	return 0
}

// Flush uploads the staged content. Later flushes of a dup'd descriptor are no-ops.
func (h *writeHandle) Flush(ctx context.Context) syscall.Errno {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.committed {
		return 0
	}
	h.committed = true

	if err := h.handle.Commit(ctx); err != nil {
		return h.node.fs.fail("Flush", h.node.path, err)
	}
	h.node.setSize(uint64(h.size))
	return 0
}

func (h *writeHandle) Release(context.Context) syscall.Errno {
	h.handle.Close()
	return 0
}

// ToErrno maps an adapter error to the errno reported to the kernel.
func ToErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		return syscall.ENOENT
	case errors.ErrCodeAccessDenied:
		return syscall.EACCES
	case errors.ErrCodeAuthenticationFailed:
		return syscall.EPERM
	case errors.ErrCodeTimeout:
		return syscall.ETIMEDOUT
	case errors.ErrCodeNetworkUnreachable:
		return syscall.ENETUNREACH
	case errors.ErrCodeCancelled:
		return syscall.EINTR
	case errors.ErrCodeAlreadyExists:
		return syscall.EEXIST
	case errors.ErrCodeInvalidArgument:
		return syscall.EINVAL
	case errors.ErrCodeNotSupported:
		return syscall.ENOTSUP
	default:
		return syscall.EIO
	}
}
