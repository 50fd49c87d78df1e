package backend

import (
	"fmt"
	"io"
	"os"

	"github.com/desertwitch/posixrt/internal/errno"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// Directory is a directory opened as a descriptor (O_PATH-like). Its
// contents are read through a directory stream, not through the descriptor.
type Directory struct {
	fs     afero.Fs
	file   afero.File
	handle uuid.UUID
}

func NewDirectory(fsys afero.Fs, f afero.File) *Directory {
	return &Directory{
		fs:     fsys,
		file:   f,
		handle: uuid.New(),
	}
}

func (*Directory) Kind() Kind {
	return KindDirectory
}

func (d *Directory) Handle() uuid.UUID {
	return d.handle
}

func (d *Directory) Name() string {
	return d.file.Name()
}

func (*Directory) Read([]byte) (int, error) {
	return 0, fmt.Errorf("(backend-dir-read) %w", ErrIsDirectory)
}

func (*Directory) Write([]byte) (int, error) {
	return 0, fmt.Errorf("(backend-dir-write) %w", ErrIsDirectory)
}

// Seek only supports rewinding and querying the position.
func (d *Directory) Seek(offset int64, whence int) (int64, error) {
	if offset != 0 || (whence != io.SeekStart && whence != io.SeekCurrent) {
		return -1, fmt.Errorf("(backend-dir-seek) %w", unix.EINVAL)
	}

	if whence == io.SeekCurrent {
		return 0, nil
	}

	pos, err := d.file.Seek(0, io.SeekStart)
	if err != nil {
		return -1, fmt.Errorf("(backend-dir-seek) %w", errno.Translate(err))
	}

	return pos, nil
}

func (*Directory) SetBlocking(bool) error {
	return nil
}

func (*Directory) SetAsync(async bool) error {
	if async {
		return fmt.Errorf("(backend-dir-async) %w", ErrUnsupported)
	}

	return nil
}

func (d *Directory) Stat() (os.FileInfo, error) {
	fi, err := d.file.Stat()
	if err != nil {
		return nil, fmt.Errorf("(backend-dir-stat) %w", errno.Translate(err))
	}

	return fi, nil
}

func (d *Directory) Chmod(mode os.FileMode) error {
	if err := d.fs.Chmod(d.file.Name(), mode); err != nil {
		return fmt.Errorf("(backend-dir-chmod) %w", errno.Translate(err))
	}

	return nil
}

func (d *Directory) Close() error {
	if err := d.file.Close(); err != nil {
		return fmt.Errorf("(backend-dir-close) %w", errno.Translate(err))
	}

	return nil
}
