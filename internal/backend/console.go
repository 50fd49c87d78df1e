package backend

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/desertwitch/posixrt/internal/errno"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

type statter interface {
	Stat() (os.FileInfo, error)
}

// Console is a standard stream of the process. Either side may be nil for a
// one-directional console (stdin, stdout, stderr).
type Console struct {
	r           io.Reader
	w           io.Writer
	handle      uuid.UUID
	nonBlocking atomic.Bool
	async       atomic.Bool
}

func NewConsole(r io.Reader, w io.Writer) *Console {
	return &Console{
		r:      r,
		w:      w,
		handle: uuid.New(),
	}
}

func (*Console) Kind() Kind {
	return KindConsole
}

func (c *Console) Handle() uuid.UUID {
	return c.handle
}

func (*Console) Name() string {
	return ""
}

func (c *Console) Read(p []byte) (int, error) {
	if c.r == nil {
		return 0, fmt.Errorf("(backend-console-read) %w", unix.EBADF)
	}

	n, err := c.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("(backend-console-read) %w", errno.Translate(err))
	}

	return n, err //nolint:wrapcheck
}

func (c *Console) Write(p []byte) (int, error) {
	if c.w == nil {
		return 0, fmt.Errorf("(backend-console-write) %w", unix.EBADF)
	}

	n, err := c.w.Write(p)
	if err != nil {
		return n, fmt.Errorf("(backend-console-write) %w", errno.Translate(err))
	}

	return n, nil
}

func (c *Console) Seek(offset int64, whence int) (int64, error) {
	var side any = c.r
	if side == nil {
		side = c.w
	}

	s, ok := side.(io.Seeker)
	if !ok {
		return -1, fmt.Errorf("(backend-console-seek) %w", ErrNotSeekable)
	}

	pos, err := s.Seek(offset, whence)
	if err != nil {
		return -1, fmt.Errorf("(backend-console-seek) %w", errno.Translate(err))
	}

	return pos, nil
}

func (c *Console) SetBlocking(blocking bool) error {
	c.nonBlocking.Store(!blocking)

	return nil
}

func (c *Console) SetAsync(async bool) error {
	c.async.Store(async)

	return nil
}

func (c *Console) Stat() (os.FileInfo, error) {
	var side any = c.r
	if side == nil {
		side = c.w
	}

	s, ok := side.(statter)
	if !ok {
		return nil, fmt.Errorf("(backend-console-stat) %w", ErrUnsupported)
	}

	fi, err := s.Stat()
	if err != nil {
		return nil, fmt.Errorf("(backend-console-stat) %w", errno.Translate(err))
	}

	return fi, nil
}

func (*Console) Chmod(os.FileMode) error {
	return fmt.Errorf("(backend-console-chmod) %w", ErrUnsupported)
}

func (c *Console) Close() error {
	var errs []error

	if cl, ok := c.r.(io.Closer); ok {
		errs = append(errs, cl.Close())
	}

	if cl, ok := c.w.(io.Closer); ok && any(c.w) != any(c.r) {
		errs = append(errs, cl.Close())
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("(backend-console-close) %w", errno.Translate(err))
	}

	return nil
}
