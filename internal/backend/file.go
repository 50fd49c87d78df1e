package backend

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/desertwitch/posixrt/internal/errno"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// File is a regular file opened on an [afero.Fs].
type File struct {
	fs          afero.Fs
	file        afero.File
	handle      uuid.UUID
	nonBlocking atomic.Bool
}

// NewFile wraps an already opened file. The file system is kept for
// operations afero only offers by name (chmod).
func NewFile(fsys afero.Fs, f afero.File) *File {
	return &File{
		fs:     fsys,
		file:   f,
		handle: uuid.New(),
	}
}

func (*File) Kind() Kind {
	return KindFile
}

func (f *File) Handle() uuid.UUID {
	return f.handle
}

func (f *File) Name() string {
	return f.file.Name()
}

func (f *File) Read(p []byte) (int, error) {
	n, err := f.file.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("(backend-file-read) %w", errno.Translate(err))
	}

	return n, err //nolint:wrapcheck
}

func (f *File) Write(p []byte) (int, error) {
	n, err := f.file.Write(p)
	if err != nil {
		return n, fmt.Errorf("(backend-file-write) %w", errno.Translate(err))
	}

	return n, nil
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	pos, err := f.file.Seek(offset, whence)
	if err != nil {
		return -1, fmt.Errorf("(backend-file-seek) %w", errno.Translate(err))
	}

	return pos, nil
}

// SetBlocking only records the mode, regular files never block.
func (f *File) SetBlocking(blocking bool) error {
	f.nonBlocking.Store(!blocking)

	return nil
}

// SetAsync rejects enabling signal-driven I/O, which files do not have.
func (*File) SetAsync(async bool) error {
	if async {
		return fmt.Errorf("(backend-file-async) %w", ErrUnsupported)
	}

	return nil
}

func (f *File) Stat() (os.FileInfo, error) {
	fi, err := f.file.Stat()
	if err != nil {
		return nil, fmt.Errorf("(backend-file-stat) %w", errno.Translate(err))
	}

	return fi, nil
}

func (f *File) Chmod(mode os.FileMode) error {
	if err := f.fs.Chmod(f.file.Name(), mode); err != nil {
		return fmt.Errorf("(backend-file-chmod) %w", errno.Translate(err))
	}

	return nil
}

func (f *File) Close() error {
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("(backend-file-close) %w", errno.Translate(err))
	}

	return nil
}
