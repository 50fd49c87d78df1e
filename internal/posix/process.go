// Package posix is the C-shaped boundary of the runtime. Its functions
// return -1 (or nil) on failure and record the error number in the
// process's errno cell, which is the only place such a cell exists; all
// other packages return errors.
package posix

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/desertwitch/posixrt/internal/backend"
	"github.com/desertwitch/posixrt/internal/errno"
	"github.com/desertwitch/posixrt/internal/fdtable"
	"github.com/desertwitch/posixrt/internal/reclock"
	"github.com/desertwitch/posixrt/internal/stream"
	"github.com/desertwitch/posixrt/internal/vfs"
	"github.com/desertwitch/posixrt/internal/walker"
	"golang.org/x/sys/unix"
)

// Options configure a [Process].
type Options struct {
	// Initial, Chunk and Max size the descriptor table.
	Initial int
	Chunk   int
	Max     int

	// BufferSize is the buffer size of streams.
	BufferSize int

	// NameMax bounds directory entry names during walks.
	NameMax int

	// Stdin, Stdout and Stderr back descriptors 0, 1 and 2. A nil Stdin
	// leaves descriptor 0 open without a native handle.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Context ends blocking operations (F_DUPFD, F_SETLKW, nftw) when
	// cancelled.
	Context context.Context //nolint:containedctx
}

// Process is the runtime state of one process.
type Process struct {
	Table   *fdtable.Table
	Locks   *reclock.Manager
	Sys     *vfs.System
	Streams *stream.Registry

	walker  *walker.Walker
	bufSize int
	ctx     context.Context //nolint:containedctx
	errno   atomic.Uintptr
}

// New returns a pointer to a new [Process] on sys, with the standard
// descriptors installed.
func New(sys *vfs.System, opts Options) (*Process, error) {
	tbl, err := fdtable.New(opts.Initial, fdtable.WithChunk(opts.Chunk), fdtable.WithMax(opts.Max))
	if err != nil {
		return nil, fmt.Errorf("(posix-new) %w", err)
	}

	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	bufSize := opts.BufferSize
	if bufSize == 0 {
		bufSize = stream.DefaultBufferSize
	}

	p := &Process{
		Table:   tbl,
		Locks:   reclock.NewManager(tbl, reclock.NewLockTable()),
		Sys:     sys,
		Streams: stream.NewRegistry(),
		walker:  walker.New(sys, opts.NameMax),
		bufSize: bufSize,
		ctx:     ctx,
	}

	var stdin backend.Backend
	if opts.Stdin != nil {
		stdin = backend.NewConsole(opts.Stdin, nil)
	}

	if err := tbl.InstallAt(fdtable.Stdin, stdin, fdtable.FlagStdio); err != nil {
		return nil, fmt.Errorf("(posix-new) %w", err)
	}

	for fd, w := range map[int]io.Writer{fdtable.Stdout: opts.Stdout, fdtable.Stderr: opts.Stderr} {
		if w == nil {
			w = io.Discard
		}

		if err := tbl.InstallAt(fd, backend.NewConsole(nil, w), fdtable.FlagStdio); err != nil {
			return nil, fmt.Errorf("(posix-new) %w", err)
		}
	}

	return p, nil
}

// Errno returns the error number of the last failed call.
func (p *Process) Errno() unix.Errno {
	return unix.Errno(p.errno.Load())
}

// SetErrno sets the errno cell.
func (p *Process) SetErrno(e unix.Errno) {
	p.errno.Store(uintptr(e))
}

// fail records err and returns the failure sentinel.
func (p *Process) fail(err error) int {
	p.SetErrno(errno.Of(err))

	return -1
}

// Exit flushes and closes all streams, as the runtime does at process
// exit.
func (p *Process) Exit() error {
	if err := p.Streams.CloseAll(); err != nil {
		p.fail(err)

		return err
	}

	return nil
}
