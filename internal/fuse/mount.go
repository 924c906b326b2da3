package fuse

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// MNT_DETACH on Linux.
const lazyUnmount = 0x2

// MountManager manages FUSE mount operations
type MountManager struct {
	filesystem *FileSystem
	config     *MountConfig
	logger     *slog.Logger

	mu      sync.Mutex
	server  *fuse.Server
	mounted bool
}

// MountConfig contains mount-specific configuration
type MountConfig struct {
	MountPoint   string        `yaml:"mount_point"`
	AllowOther   bool          `yaml:"allow_other"`
	Debug        bool          `yaml:"debug"`
	FSName       string        `yaml:"fsname"`
	MaxWrite     int           `yaml:"max_write"`
	AttrTimeout  time.Duration `yaml:"attr_timeout"`
	EntryTimeout time.Duration `yaml:"entry_timeout"`
}

// NewMountManager creates a new mount manager
func NewMountManager(filesystem *FileSystem, config *MountConfig, logger *slog.Logger) *MountManager {
	if config == nil {
		config = &MountConfig{}
	}
	if config.FSName == "" {
		config.FSName = "s3vfs"
	}
	if config.MaxWrite == 0 {
		config.MaxWrite = 128 * 1024
	}
	if config.AttrTimeout == 0 {
		config.AttrTimeout = time.Second
	}
	if config.EntryTimeout == 0 {
		config.EntryTimeout = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MountManager{
		filesystem: filesystem,
		config:     config,
		logger:     logger.With("component", "mount"),
	}
}

// Mount mounts the filesystem and serves it until ctx is done or Unmount is called.
func (m *MountManager) Mount(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mounted {
		return fmt.Errorf("filesystem is already mounted")
	}
	if err := m.validateMountPoint(); err != nil {
		return fmt.Errorf("invalid mount point: %w", err)
	}

	server, err := fs.Mount(m.config.MountPoint, m.filesystem.Root(), m.buildFUSEOptions())
	if err != nil {
		return fmt.Errorf("failed to mount filesystem: %w", err)
	}
	m.server = server
	m.mounted = true
	m.logger.Info("mounted", "mount_point", m.config.MountPoint, "root", m.filesystem.config.Root)

	go func() {
		server.Wait()
		m.mu.Lock()
		m.mounted = false
		m.mu.Unlock()
		m.logger.Info("fuse server stopped", "mount_point", m.config.MountPoint)
	}()
	go func() {
		<-ctx.Done()
		if err := m.Unmount(); err != nil {
			m.logger.Warn("unmount on shutdown failed", "error", err)
		}
	}()
	return nil
}

// Unmount unmounts the filesystem
func (m *MountManager) Unmount() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.mounted || m.server == nil {
		return nil
	}

	if err := m.server.Unmount(); err != nil {
		m.logger.Warn("normal unmount failed, trying lazy unmount", "error", err)
		if forceErr := syscall.Unmount(m.config.MountPoint, lazyUnmount); forceErr != nil {
			return fmt.Errorf("unmount failed: %w (lazy unmount also failed: %v)", err, forceErr)
		}
	}
	m.mounted = false
	m.server = nil
	m.logger.Info("unmounted", "mount_point", m.config.MountPoint)
	return nil
}

// IsMounted checks if the filesystem is currently mounted
func (m *MountManager) IsMounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

// Wait blocks until the FUSE server exits.
func (m *MountManager) Wait() {
	m.mu.Lock()
	server := m.server
	m.mu.Unlock()
	if server != nil {
		server.Wait()
	}
}

// GetStats returns filesystem statistics
func (m *MountManager) GetStats() *FilesystemStats {
	return m.filesystem.GetStats()
}

func (m *MountManager) validateMountPoint() error {
	if m.config.MountPoint == "" {
		return fmt.Errorf("mount point cannot be empty")
	}

	info, err := os.Stat(m.config.MountPoint)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("mount point does not exist: %s", m.config.MountPoint)
		}
		return fmt.Errorf("cannot access mount point: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mount point is not a directory: %s", m.config.MountPoint)
	}

	entries, err := os.ReadDir(m.config.MountPoint)
	if err != nil {
		return fmt.Errorf("cannot read mount point directory: %w", err)
	}
	if len(entries) > 0 {
		m.logger.Warn("mount point is not empty", "mount_point", m.config.MountPoint)
	}

	if isMounted(m.config.MountPoint) {
		return fmt.Errorf("mount point %s is already mounted", m.config.MountPoint)
	}
	return nil
}

func (m *MountManager) buildFUSEOptions() *fs.Options {
	attrTimeout := m.config.AttrTimeout
	entryTimeout := m.config.EntryTimeout
	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			Name:       m.config.FSName,
			FsName:     m.config.FSName,
			Debug:      m.config.Debug,
			AllowOther: m.config.AllowOther,
			MaxWrite:   m.config.MaxWrite,
		},
		AttrTimeout:  &attrTimeout,
		EntryTimeout: &entryTimeout,
	}
	if m.filesystem.config.ReadOnly {
		opts.MountOptions.Options = append(opts.MountOptions.Options, "ro")
	}
	return opts
}

// isMounted reports whether /proc/mounts lists dir as a mount point.
func isMounted(dir string) bool {
	data, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return false
	}
	return mountsContain(string(data), filepath.Clean(dir))
}

func mountsContain(mounts, dir string) bool {
	for _, line := range strings.Split(mounts, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == dir {
			return true
		}
	}
	return false
}
