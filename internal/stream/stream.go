// Package stream implements buffered I/O streams layered on descriptors.
//
// A stream buffers in one direction at a time: it either holds bytes read
// ahead of the caller or bytes written but not yet handed to the
// descriptor, never both. [Stream.Tell] reconciles the descriptor offset
// with whichever of the two is present.
//
// Each stream has its own lock. It does not nest with the descriptor table
// except through the table's own operations, and it is not reentrant.
package stream

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/desertwitch/posixrt/internal/fdtable"
	"github.com/desertwitch/posixrt/internal/vfs"
	"golang.org/x/sys/unix"
)

// DefaultBufferSize is the buffer size of streams opened without
// [WithBufferSize].
const DefaultBufferSize = 8192

// Option configures a [Stream].
type Option func(*Stream)

// WithBufferSize sets the buffer size. Zero or less makes the stream
// unbuffered.
func WithBufferSize(n int) Option {
	return func(s *Stream) {
		if n <= 0 {
			s.buf = nil

			return
		}
		s.buf = make([]byte, n)
	}
}

// Stream is a buffered I/O object on a descriptor.
type Stream struct {
	mu    sync.Mutex
	table *fdtable.Table
	fd    int
	mode  Mode

	buf  []byte
	rpos int // next unread byte in buf
	rend int // end of read-ahead bytes in buf
	wlen int // unwritten bytes at the start of buf

	err    bool
	eof    bool
	closed bool

	registry *Registry
}

func newStream(table *fdtable.Table, fd int, mode Mode, opts ...Option) *Stream {
	s := &Stream{
		table: table,
		fd:    fd,
		mode:  mode,
		buf:   make([]byte, DefaultBufferSize),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Open opens the file name in the given fopen mode on a new descriptor and
// returns a stream on it.
func Open(table *fdtable.Table, sys *vfs.System, name string, mode string, opts ...Option) (*Stream, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return nil, fmt.Errorf("(stream-open) %w", err)
	}

	b, err := sys.Open(name, m.Flag, 0o666)
	if err != nil {
		return nil, fmt.Errorf("(stream-open) %w", err)
	}

	var flags fdtable.Flags
	if m.CloseOnExec {
		flags |= fdtable.FlagCloseOnExec
	}

	fd, err := table.Install(b, flags)
	if err != nil {
		if cerr := b.Close(); cerr != nil {
			slog.Warn("Failed to close backend of unopened stream", "name", name, "err", cerr)
		}

		return nil, fmt.Errorf("(stream-open) %w", err)
	}

	return newStream(table, fd, m, opts...), nil
}

// FromDescriptor returns a stream on the already open descriptor fd
// (fdopen). Creation and truncation flags of the mode have no effect.
func FromDescriptor(table *fdtable.Table, fd int, mode string, opts ...Option) (*Stream, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return nil, fmt.Errorf("(stream-fdopen) %w", err)
	}

	if _, err := table.GetFlags(fd); err != nil {
		return nil, fmt.Errorf("(stream-fdopen) %w", err)
	}

	if m.CloseOnExec {
		if err := table.SetFD(fd, unix.FD_CLOEXEC); err != nil {
			return nil, fmt.Errorf("(stream-fdopen) %w", err)
		}
	}

	return newStream(table, fd, m, opts...), nil
}

// Fileno returns the descriptor of the stream.
func (s *Stream) Fileno() int {
	return s.fd
}

// Err reports whether an error occurred on the stream.
func (s *Stream) Err() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// EOF reports whether the end of file was reached.
func (s *Stream) EOF() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.eof
}

// ClearErr resets the error and end-of-file indicators.
func (s *Stream) ClearErr() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.err = false
	s.eof = false
}

func (s *Stream) unread() int {
	return s.rend - s.rpos
}

// Read reads up to len(p) bytes. At end of file it returns io.EOF, as
// [io.Reader] does.
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.mode.Read {
		return 0, fmt.Errorf("(stream-read) %w", ErrBadStream)
	}

	if s.wlen > 0 {
		if err := s.flushLocked(); err != nil {
			return 0, fmt.Errorf("(stream-read) %w", err)
		}
	}

	if len(p) == 0 {
		return 0, nil
	}

	if s.unread() > 0 {
		n := copy(p, s.buf[s.rpos:s.rend])
		s.rpos += n

		return n, nil
	}

	if len(p) >= len(s.buf) {
		return s.fill(p)
	}

	n, err := s.fill(s.buf)
	s.rpos, s.rend = 0, n

	if n == 0 {
		return 0, err
	}

	n = copy(p, s.buf[:n])
	s.rpos = n

	return n, nil
}

// fill reads once from the descriptor into p, maintaining the indicators.
func (s *Stream) fill(p []byte) (int, error) {
	n, err := s.table.Read(s.fd, p)
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.eof = true

			return n, io.EOF
		}
		s.err = true

		return n, fmt.Errorf("(stream-read) %w", err)
	}

	if n == 0 {
		s.eof = true

		return 0, io.EOF
	}

	return n, nil
}

// Write buffers p, handing full buffers to the descriptor.
func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.mode.Write {
		return 0, fmt.Errorf("(stream-write) %w", ErrBadStream)
	}

	if s.unread() > 0 {
		if err := s.dropReadAhead(); err != nil {
			return 0, fmt.Errorf("(stream-write) %w", err)
		}
	}
	s.rpos, s.rend = 0, 0

	if s.wlen+len(p) > len(s.buf) {
		if err := s.flushLocked(); err != nil {
			return 0, fmt.Errorf("(stream-write) %w", err)
		}

		if len(p) >= len(s.buf) {
			if err := s.writeAll(p); err != nil {
				return 0, fmt.Errorf("(stream-write) %w", err)
			}

			return len(p), nil
		}
	}

	s.wlen += copy(s.buf[s.wlen:], p)

	return len(p), nil
}

// dropReadAhead discards the read-ahead bytes, moving the descriptor back
// to the logical position when it is seekable.
func (s *Stream) dropReadAhead() error {
	back := int64(s.unread())
	s.rpos, s.rend = 0, 0

	if _, err := s.table.Seek(s.fd, -back, io.SeekCurrent); err != nil && !errors.Is(err, unix.ESPIPE) {
		s.err = true

		return err
	}

	return nil
}

func (s *Stream) writeAll(p []byte) error {
	for len(p) > 0 {
		n, err := s.table.Write(s.fd, p)
		if err != nil {
			s.err = true

			return err
		}
		if n == 0 {
			s.err = true

			return fmt.Errorf("%w: short write", unix.EIO)
		}
		p = p[n:]
	}

	return nil
}

// Flush hands the unwritten bytes to the descriptor.
func (s *Stream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("(stream-flush) %w", ErrBadStream)
	}

	if err := s.flushLocked(); err != nil {
		return fmt.Errorf("(stream-flush) %w", err)
	}

	return nil
}

// flushLocked keeps the bytes that could not be written buffered.
func (s *Stream) flushLocked() error {
	written := 0

	for written < s.wlen {
		n, err := s.table.Write(s.fd, s.buf[written:s.wlen])
		written += n

		if err != nil || n == 0 {
			copy(s.buf, s.buf[written:s.wlen])
			s.wlen -= written
			s.err = true

			if err == nil {
				err = fmt.Errorf("%w: short write", unix.EIO)
			}

			return err
		}
	}

	s.wlen = 0

	return nil
}

// Seek moves the stream position, discarding buffered input and flushing
// buffered output first.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return -1, fmt.Errorf("(stream-seek) %w", ErrBadStream)
	}

	if err := s.flushLocked(); err != nil {
		return -1, fmt.Errorf("(stream-seek) %w", err)
	}

	if whence == io.SeekCurrent {
		offset -= int64(s.unread())
	}

	pos, err := s.table.Seek(s.fd, offset, whence)
	if err != nil {
		return -1, fmt.Errorf("(stream-seek) %w", err)
	}

	s.rpos, s.rend = 0, 0
	s.eof = false

	return pos, nil
}

// Tell returns the logical stream position: the descriptor offset less the
// bytes read ahead, or plus the bytes not yet written.
func (s *Stream) Tell() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return -1, fmt.Errorf("(stream-tell) %w", ErrBadStream)
	}

	pos, err := s.table.Seek(s.fd, 0, io.SeekCurrent)
	if err != nil {
		s.err = true

		return -1, fmt.Errorf("(stream-tell) %w", err)
	}

	switch {
	case s.unread() > 0:
		pos -= int64(s.unread())
	case s.wlen > 0:
		pos += int64(s.wlen)
	}

	return pos, nil
}

// Close flushes the stream and closes its descriptor. The stream is closed
// even when flushing fails.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("(stream-close) %w", ErrBadStream)
	}

	ferr := s.flushLocked()
	cerr := s.table.Close(s.fd)

	s.closed = true
	s.rpos, s.rend, s.wlen = 0, 0, 0

	if s.registry != nil {
		s.registry.forget(s)
	}

	if err := errors.Join(ferr, cerr); err != nil {
		return fmt.Errorf("(stream-close) %w", err)
	}

	return nil
}
