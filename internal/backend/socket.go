package backend

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/desertwitch/posixrt/internal/errno"
	"github.com/google/uuid"
)

// pollGrace is how long a non-blocking operation may wait on connections
// that do not expose their native descriptor.
const pollGrace = time.Millisecond

// Socket is a connected network endpoint.
type Socket struct {
	conn        net.Conn
	handle      uuid.UUID
	nonBlocking atomic.Bool
	async       atomic.Bool
}

func NewSocket(conn net.Conn) *Socket {
	return &Socket{
		conn:   conn,
		handle: uuid.New(),
	}
}

func (*Socket) Kind() Kind {
	return KindSocket
}

func (s *Socket) Handle() uuid.UUID {
	return s.handle
}

func (*Socket) Name() string {
	return ""
}

func (s *Socket) Read(p []byte) (int, error) {
	if s.nonBlocking.Load() {
		if sc, ok := s.conn.(syscall.Conn); ok {
			return rawRead(sc, p)
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(pollGrace))
		defer s.conn.SetReadDeadline(time.Time{}) //nolint:errcheck
	}

	n, err := s.conn.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("(backend-socket-read) %w", errno.Translate(err))
	}

	return n, err //nolint:wrapcheck
}

func (s *Socket) Write(p []byte) (int, error) {
	if s.nonBlocking.Load() {
		if sc, ok := s.conn.(syscall.Conn); ok {
			return rawWrite(sc, p)
		}

		_ = s.conn.SetWriteDeadline(time.Now().Add(pollGrace))
		defer s.conn.SetWriteDeadline(time.Time{}) //nolint:errcheck
	}

	n, err := s.conn.Write(p)
	if err != nil {
		return n, fmt.Errorf("(backend-socket-write) %w", errno.Translate(err))
	}

	return n, nil
}

func (*Socket) Seek(int64, int) (int64, error) {
	return -1, fmt.Errorf("(backend-socket-seek) %w", ErrNotSeekable)
}

func (s *Socket) SetBlocking(blocking bool) error {
	s.nonBlocking.Store(!blocking)

	return nil
}

func (s *Socket) SetAsync(async bool) error {
	s.async.Store(async)

	return nil
}

func (*Socket) Stat() (os.FileInfo, error) {
	return nil, fmt.Errorf("(backend-socket-stat) %w", ErrUnsupported)
}

func (*Socket) Chmod(os.FileMode) error {
	return fmt.Errorf("(backend-socket-chmod) %w", ErrUnsupported)
}

func (s *Socket) Close() error {
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("(backend-socket-close) %w", errno.Translate(err))
	}

	return nil
}
