package transfer

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/objectfs/s3vfs/pkg/errors"
)

// ScratchFile is a local temporary file that is removed when closed.
type ScratchFile struct {
	file   *os.File
	logger *slog.Logger

	once     sync.Once
	closeErr error
}

// NewScratchFile creates an empty scratch file in dir, or the system temp dir when dir is empty.
func NewScratchFile(dir string, logger *slog.Logger) (*ScratchFile, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.CreateTemp(dir, "s3vfs-*.tmp")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnknown, "failed to create scratch file").
			WithComponent(component).
			WithOperation("NewScratchFile")
	}
	return &ScratchFile{file: f, logger: logger}, nil
}

// Name returns the file's path.
func (s *ScratchFile) Name() string {
	return s.file.Name()
}

func (s *ScratchFile) Read(p []byte) (int, error) {
	return s.file.Read(p)
}

func (s *ScratchFile) Write(p []byte) (int, error) {
	return s.file.Write(p)
}

func (s *ScratchFile) ReadAt(p []byte, off int64) (int, error) {
	return s.file.ReadAt(p, off)
}

func (s *ScratchFile) WriteAt(p []byte, off int64) (int, error) {
	return s.file.WriteAt(p, off)
}

func (s *ScratchFile) Seek(offset int64, whence int) (int64, error) {
	return s.file.Seek(offset, whence)
}

// Size returns the current file length.
func (s *ScratchFile) Size() (int64, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Rewind seeks to the start of the file.
func (s *ScratchFile) Rewind() error {
	_, err := s.file.Seek(0, io.SeekStart)
	return err
}

// Close closes and deletes the file. It is safe to call more than once.
func (s *ScratchFile) Close() error {
	s.once.Do(func() {
		name := s.file.Name()
		s.closeErr = s.file.Close()
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove scratch file", "path", name, "error", err)
			if s.closeErr == nil {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}
