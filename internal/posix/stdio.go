package posix

import (
	"errors"
	"io"

	"github.com/desertwitch/posixrt/internal/stream"
	"github.com/desertwitch/posixrt/internal/vfs"
	"golang.org/x/sys/unix"
)

func (p *Process) Fopen(name string, mode string) *stream.Stream {
	s, err := p.Streams.Open(p.Table, p.Sys, name, mode, stream.WithBufferSize(p.bufSize))
	if err != nil {
		p.fail(err)

		return nil
	}

	return s
}

func (p *Process) Fdopen(fd int, mode string) *stream.Stream {
	s, err := p.Streams.FromDescriptor(p.Table, fd, mode, stream.WithBufferSize(p.bufSize))
	if err != nil {
		p.fail(err)

		return nil
	}

	return s
}

func (p *Process) Fclose(s *stream.Stream) int {
	if s == nil {
		return p.fail(unix.EBADF)
	}

	if err := s.Close(); err != nil {
		return p.fail(err)
	}

	return 0
}

// Fflush flushes s, or every open stream when s is nil.
func (p *Process) Fflush(s *stream.Stream) int {
	var err error

	if s == nil {
		err = p.Streams.FlushAll()
	} else {
		err = s.Flush()
	}

	if err != nil {
		return p.fail(err)
	}

	return 0
}

func (p *Process) Ftell(s *stream.Stream) int64 {
	if s == nil {
		return int64(p.fail(unix.EBADF))
	}

	pos, err := s.Tell()
	if err != nil {
		return int64(p.fail(err))
	}

	return pos
}

// Fread reads until buf is full or the stream ends and returns the number
// of bytes read. A short count without error means end of file; the
// stream's indicators tell the two apart.
func (p *Process) Fread(buf []byte, s *stream.Stream) int {
	if s == nil {
		return p.fail(unix.EBADF)
	}

	n, err := io.ReadFull(s, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		p.fail(err)
	}

	return n
}

// Fwrite returns the number of bytes written, short on error.
func (p *Process) Fwrite(buf []byte, s *stream.Stream) int {
	if s == nil {
		return p.fail(unix.EBADF)
	}

	n, err := s.Write(buf)
	if err != nil {
		p.fail(err)
	}

	return n
}

func (p *Process) Fdopendir(fd int) *vfs.Dir {
	d, err := p.Sys.Fdopendir(p.Table, fd)
	if err != nil {
		p.fail(err)

		return nil
	}

	return d
}
