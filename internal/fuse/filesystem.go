package fuse

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/objectfs/s3vfs/internal/dirbuf"
	"github.com/objectfs/s3vfs/internal/transfer"
	"github.com/objectfs/s3vfs/pkg/types"
	"github.com/objectfs/s3vfs/pkg/utils"
)

// Operations is the part of the adapter the mount drives.
type Operations interface {
	List(ctx context.Context, path string) (*dirbuf.Buffer, error)
	Stat(ctx context.Context, path string) (*types.ItemAttributes, error)
	Read(ctx context.Context, path string, progress types.ProgressCallback) (*transfer.Reader, error)
	Write(ctx context.Context, path string, overwrite bool, progress types.ProgressCallback) (*transfer.WriteHandle, error)
	Delete(ctx context.Context, path string) error
	CreateDirectory(ctx context.Context, path string) error
}

// FileSystem serves an adapter tree through FUSE.
type FileSystem struct {
	ops    Operations
	config *Config
	logger *slog.Logger
	stats  Stats
}

// Config represents FUSE filesystem configuration
type Config struct {
	// Root is the virtual path shown at the mount point, e.g. "/bucket" or
	// "/@conn:prod/bucket/prefix".
	Root     string `yaml:"root"`
	ReadOnly bool   `yaml:"read_only"`

	UID      uint32 `yaml:"uid"`
	GID      uint32 `yaml:"gid"`
	FileMode uint32 `yaml:"file_mode"`
	DirMode  uint32 `yaml:"dir_mode"`
}

// Stats tracks filesystem operation counts.
type Stats struct {
	Lookups      atomic.Int64
	Opens        atomic.Int64
	Reads        atomic.Int64
	Writes       atomic.Int64
	Creates      atomic.Int64
	Deletes      atomic.Int64
	BytesRead    atomic.Int64
	BytesWritten atomic.Int64
	Errors       atomic.Int64
}

// FilesystemStats is a point-in-time copy of Stats.
type FilesystemStats struct {
	Lookups      int64 `json:"lookups"`
	Opens        int64 `json:"opens"`
	Reads        int64 `json:"reads"`
	Writes       int64 `json:"writes"`
	Creates      int64 `json:"creates"`
	Deletes      int64 `json:"deletes"`
	BytesRead    int64 `json:"bytes_read"`
	BytesWritten int64 `json:"bytes_written"`
	Errors       int64 `json:"errors"`
}

// NewFileSystem creates a filesystem over ops.
func NewFileSystem(ops Operations, config *Config, logger *slog.Logger) *FileSystem {
	if config == nil {
		config = &Config{}
	}
	if config.Root == "" {
		config.Root = utils.Separator
	}
	if config.FileMode == 0 {
		config.FileMode = 0o644
	}
	if config.DirMode == 0 {
		config.DirMode = 0o755
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSystem{
		ops:    ops,
		config: config,
		logger: logger.With("component", "fuse"),
	}
}

// Root returns the root inode
func (fsys *FileSystem) Root() fs.InodeEmbedder {
	return &DirectoryNode{fs: fsys, path: utils.NormalizePath(fsys.config.Root)}
}

// GetStats returns current filesystem statistics
func (fsys *FileSystem) GetStats() *FilesystemStats {
	s := &fsys.stats
	return &FilesystemStats{
		Lookups:      s.Lookups.Load(),
		Opens:        s.Opens.Load(),
		Reads:        s.Reads.Load(),
		Writes:       s.Writes.Load(),
		Creates:      s.Creates.Load(),
		Deletes:      s.Deletes.Load(),
		BytesRead:    s.BytesRead.Load(),
		BytesWritten: s.BytesWritten.Load(),
		Errors:       s.Errors.Load(),
	}
}

// fail logs err and converts it to an errno.
func (fsys *FileSystem) fail(op, path string, err error) syscall.Errno {
	fsys.stats.Errors.Add(1)
	errno := ToErrno(err)
	if errno == syscall.ENOENT {
		fsys.logger.Debug("not found", "op", op, "path", path)
	} else {
		fsys.logger.Warn("operation failed", "op", op, "path", path, "error", err)
	}
	return errno
}

func (fsys *FileSystem) fillAttr(attrs *types.ItemAttributes, out *fuse.Attr) {
	out.Uid = fsys.config.UID
	out.Gid = fsys.config.GID
	if attrs.IsDirectory {
		out.Mode = fuse.S_IFDIR | fsys.config.DirMode
		out.Nlink = 2
	} else {
		out.Mode = fuse.S_IFREG | fsys.config.FileMode
		out.Nlink = 1
		out.Size = attrs.Size
		out.Blocks = (attrs.Size + 511) / 512
	}
	if fsys.config.ReadOnly {
		out.Mode &^= 0o222
	}
	if !attrs.ModTime.IsZero() {
		mtime := attrs.ModTime
		out.SetTimes(&mtime, &mtime, &mtime)
	}
}

func childPath(parent, name string) string {
	return strings.TrimSuffix(parent, utils.Separator) + utils.Separator + name
}

// DirectoryNode represents a directory in the filesystem
type DirectoryNode struct {
	fs.Inode
	fs   *FileSystem
	path string
}

var (
	_ fs.NodeLookuper  = (*DirectoryNode)(nil)
	_ fs.NodeReaddirer = (*DirectoryNode)(nil)
	_ fs.NodeGetattrer = (*DirectoryNode)(nil)
	_ fs.NodeMkdirer   = (*DirectoryNode)(nil)
	_ fs.NodeCreater   = (*DirectoryNode)(nil)
	_ fs.NodeUnlinker  = (*DirectoryNode)(nil)
	_ fs.NodeRmdirer   = (*DirectoryNode)(nil)
)

// Lookup looks up a child node by name
func (n *DirectoryNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n.fs.stats.Lookups.Add(1)

	path := childPath(n.path, name)
	attrs, err := n.fs.ops.Stat(ctx, path)
	if err != nil {
		return nil, n.fs.fail("Lookup", path, err)
	}
	n.fs.fillAttr(attrs, &out.Attr)
	return n.newChild(ctx, path, attrs), 0
}

func (n *DirectoryNode) newChild(ctx context.Context, path string, attrs *types.ItemAttributes) *fs.Inode {
	if attrs.IsDirectory {
		return n.NewInode(ctx, &DirectoryNode{fs: n.fs, path: path}, fs.StableAttr{Mode: fuse.S_IFDIR})
	}
	return n.NewInode(ctx, &FileNode{fs: n.fs, path: path, attrs: *attrs}, fs.StableAttr{Mode: fuse.S_IFREG})
}

// Readdir reads directory contents
func (n *DirectoryNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	buf, err := n.fs.ops.List(ctx, n.path)
	if err != nil {
		return nil, n.fs.fail("Readdir", n.path, err)
	}
	entries, err := buf.Entries()
	if err != nil {
		return nil, n.fs.fail("Readdir", n.path, err)
	}

	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		mode := uint32(fuse.S_IFREG)
		if e.IsDirectory {
			mode = fuse.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: e.Name, Mode: mode})
	}
	return fs.NewListDirStream(out), 0
}

// Getattr reports directory attributes.
func (n *DirectoryNode) Getattr(_ context.Context, _ fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.fs.fillAttr(&types.ItemAttributes{Path: n.path, IsDirectory: true}, &out.Attr)
	return 0
}

// Mkdir creates a new directory
func (n *DirectoryNode) Mkdir(ctx context.Context, name string, _ uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if n.fs.config.ReadOnly {
		return nil, syscall.EROFS
	}
	path := childPath(n.path, name)
	if err := n.fs.ops.CreateDirectory(ctx, path); err != nil {
		return nil, n.fs.fail("Mkdir", path, err)
	}
	attrs := &types.ItemAttributes{Path: path, Name: name, IsDirectory: true}
	n.fs.fillAttr(attrs, &out.Attr)
	return n.newChild(ctx, path, attrs), 0
}

// Create creates a new file. Nothing reaches the backend until the handle is flushed.
func (n *DirectoryNode) Create(ctx context.Context, name string, _ uint32, _ uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	if n.fs.config.ReadOnly {
		return nil, nil, 0, syscall.EROFS
	}
	path := childPath(n.path, name)
	wh, err := n.fs.ops.Write(ctx, path, true, nil)
	if err != nil {
		return nil, nil, 0, n.fs.fail("Create", path, err)
	}
	n.fs.stats.Creates.Add(1)

	file := &FileNode{fs: n.fs, path: path, attrs: types.ItemAttributes{Path: path, Name: name, ModTime: time.Now()}}
	n.fs.fillAttr(&file.attrs, &out.Attr)
	node := n.NewInode(ctx, file, fs.StableAttr{Mode: fuse.S_IFREG})
	return node, &writeHandle{node: file, handle: wh}, fuse.FOPEN_DIRECT_IO, 0
}

// Unlink removes a file.
func (n *DirectoryNode) Unlink(ctx context.Context, name string) syscall.Errno {
	if n.fs.config.ReadOnly {
		return syscall.EROFS
	}
	path := childPath(n.path, name)
	if err := n.fs.ops.Delete(ctx, path); err != nil {
		return n.fs.fail("Unlink", path, err)
	}
	n.fs.stats.Deletes.Add(1)
	return 0
}

// Rmdir removes an empty directory.
func (n *DirectoryNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	if n.fs.config.ReadOnly {
		return syscall.EROFS
	}
	path := childPath(n.path, name) + utils.Separator
	if err := n.fs.ops.Delete(ctx, path); err != nil {
		errno := n.fs.fail("Rmdir", path, err)
		if errno == syscall.EINVAL {
			return syscall.ENOTEMPTY
		}
		return errno
	}
	n.fs.stats.Deletes.Add(1)
	return 0
}

// FileNode represents a file in the filesystem
type FileNode struct {
	fs.Inode
	fs   *FileSystem
	path string

	mu    sync.Mutex
	attrs types.ItemAttributes
}

var (
	_ fs.NodeOpener    = (*FileNode)(nil)
	_ fs.NodeGetattrer = (*FileNode)(nil)
	_ fs.NodeSetattrer = (*FileNode)(nil)
)

// Open opens a file. Writable opens stage the whole file locally and upload
// it on flush.
func (f *FileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	f.fs.stats.Opens.Add(1)

	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC) == 0 {
		r, err := f.fs.ops.Read(ctx, f.path, nil)
		if err != nil {
			return nil, 0, f.fs.fail("Open", f.path, err)
		}
		return &readHandle{fs: f.fs, reader: r}, fuse.FOPEN_KEEP_CACHE, 0
	}

	if f.fs.config.ReadOnly {
		return nil, 0, syscall.EROFS
	}
	wh, err := f.fs.ops.Write(ctx, f.path, true, nil)
	if err != nil {
		return nil, 0, f.fs.fail("Open", f.path, err)
	}
	h := &writeHandle{node: f, handle: wh}
	if flags&syscall.O_TRUNC == 0 && f.size() > 0 {
		if errno := h.preload(ctx); errno != 0 {
			wh.Discard()
			return nil, 0, errno
		}
	}
	return h, fuse.FOPEN_DIRECT_IO, 0
}

// Getattr gets file attributes
func (f *FileNode) Getattr(_ context.Context, _ fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	f.mu.Lock()
	attrs := f.attrs
	f.mu.Unlock()
	f.fs.fillAttr(&attrs, &out.Attr)
	return 0
}

// Setattr supports truncation through an open write handle; other changes
// are accepted and ignored since objects carry no POSIX metadata.
func (f *FileNode) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		h, isWrite := fh.(*writeHandle)
		if !isWrite {
			return syscall.ENOTSUP
		}
		if errno := h.truncate(int64(size)); errno != 0 {
			return errno
		}
	}
	return f.Getattr(ctx, fh, out)
}

func (f *FileNode) size() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attrs.Size
}

func (f *FileNode) setSize(size uint64) {
	f.mu.Lock()
	f.attrs.Size = size
	f.attrs.ModTime = time.Now()
	f.mu.Unlock()
}
