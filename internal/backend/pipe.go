package backend

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/desertwitch/posixrt/internal/errno"
	"github.com/google/uuid"
)

// Pipe is one end of a native pipe.
type Pipe struct {
	file        *os.File
	handle      uuid.UUID
	nonBlocking atomic.Bool
	async       atomic.Bool
}

func NewPipe(f *os.File) *Pipe {
	return &Pipe{
		file:   f,
		handle: uuid.New(),
	}
}

// NewPipePair opens a native pipe and returns its read and write ends.
func NewPipePair() (*Pipe, *Pipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("(backend-pipe) %w", errno.Translate(err))
	}

	return NewPipe(r), NewPipe(w), nil
}

func (*Pipe) Kind() Kind {
	return KindPipe
}

func (p *Pipe) Handle() uuid.UUID {
	return p.handle
}

func (*Pipe) Name() string {
	return ""
}

func (p *Pipe) Read(b []byte) (int, error) {
	if p.nonBlocking.Load() {
		return rawRead(p.file, b)
	}

	n, err := p.file.Read(b)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("(backend-pipe-read) %w", errno.Translate(err))
	}

	return n, err //nolint:wrapcheck
}

func (p *Pipe) Write(b []byte) (int, error) {
	if p.nonBlocking.Load() {
		return rawWrite(p.file, b)
	}

	n, err := p.file.Write(b)
	if err != nil {
		return n, fmt.Errorf("(backend-pipe-write) %w", errno.Translate(err))
	}

	return n, nil
}

func (*Pipe) Seek(int64, int) (int64, error) {
	return -1, fmt.Errorf("(backend-pipe-seek) %w", ErrNotSeekable)
}

func (p *Pipe) SetBlocking(blocking bool) error {
	p.nonBlocking.Store(!blocking)

	return nil
}

func (p *Pipe) SetAsync(async bool) error {
	p.async.Store(async)

	return nil
}

func (p *Pipe) Stat() (os.FileInfo, error) {
	fi, err := p.file.Stat()
	if err != nil {
		return nil, fmt.Errorf("(backend-pipe-stat) %w", errno.Translate(err))
	}

	return fi, nil
}

func (*Pipe) Chmod(os.FileMode) error {
	return fmt.Errorf("(backend-pipe-chmod) %w", ErrUnsupported)
}

func (p *Pipe) Close() error {
	if err := p.file.Close(); err != nil {
		return fmt.Errorf("(backend-pipe-close) %w", errno.Translate(err))
	}

	return nil
}
