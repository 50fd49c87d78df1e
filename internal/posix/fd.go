package posix

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/desertwitch/posixrt/internal/fdtable"
	"github.com/desertwitch/posixrt/internal/reclock"
	"golang.org/x/sys/unix"
)

// Open opens name and returns the lowest vacant descriptor for it.
func (p *Process) Open(name string, flag int, perm os.FileMode) int {
	b, err := p.Sys.Open(name, flag, perm)
	if err != nil {
		return p.fail(err)
	}

	var flags fdtable.Flags
	if flag&unix.O_CLOEXEC != 0 {
		flags |= fdtable.FlagCloseOnExec
	}

	fd, err := p.Table.Install(b, flags)
	if err != nil {
		if cerr := b.Close(); cerr != nil {
			slog.Warn("Failed to close backend of unopened descriptor", "name", name, "err", cerr)
		}

		return p.fail(err)
	}

	if flag&unix.O_NONBLOCK != 0 {
		if err := p.Table.SetFlags(fd, unix.O_NONBLOCK); err != nil {
			if cerr := p.Table.Close(fd); cerr != nil {
				slog.Warn("Failed to close descriptor after flag failure", "fd", fd, "err", cerr)
			}

			return p.fail(err)
		}
	}

	return fd
}

func (p *Process) Close(fd int) int {
	if err := p.Table.Close(fd); err != nil {
		return p.fail(err)
	}

	return 0
}

// Read returns the number of bytes read, 0 at end of file.
func (p *Process) Read(fd int, buf []byte) int {
	n, err := p.Table.Read(fd, buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return p.fail(err)
	}

	return n
}

func (p *Process) Write(fd int, buf []byte) int {
	n, err := p.Table.Write(fd, buf)
	if err != nil {
		return p.fail(err)
	}

	return n
}

func (p *Process) Lseek(fd int, offset int64, whence int) int64 {
	pos, err := p.Table.Seek(fd, offset, whence)
	if err != nil {
		return int64(p.fail(err))
	}

	return pos
}

func (p *Process) Dup(fd int) int {
	nfd, err := p.Table.Dup(fd)
	if err != nil {
		return p.fail(err)
	}

	return nfd
}

func (p *Process) Dup2(fd, fd2 int) int {
	if fd2 < 0 {
		return p.fail(fdtable.ErrBadDescriptor)
	}

	nfd, err := p.Table.Dup2(fd, fd2)
	if err != nil {
		return p.fail(err)
	}

	return nfd
}

func (p *Process) Fchmod(fd int, mode os.FileMode) int {
	if err := p.Table.Fchmod(fd, mode); err != nil {
		return p.fail(err)
	}

	return 0
}

// Fcntl performs cmd on fd. arg is an int for F_DUPFD, F_DUPFD_CLOEXEC,
// F_SETFL and F_SETFD, and a *unix.Flock_t for the record locking commands.
// Unsupported commands fail with ENOSYS.
func (p *Process) Fcntl(fd int, cmd int, arg any) int {
	switch cmd {
	case unix.F_DUPFD, unix.F_DUPFD_CLOEXEC:
		minFD, ok := arg.(int)
		if !ok {
			return p.fail(unix.EINVAL)
		}

		nfd, err := p.Table.DupMin(p.ctx, fd, minFD)
		if err != nil {
			return p.fail(err)
		}

		if cmd == unix.F_DUPFD_CLOEXEC {
			if err := p.Table.SetFD(nfd, unix.FD_CLOEXEC); err != nil {
				return p.fail(err)
			}
		}

		return nfd

	case unix.F_GETFL:
		flags, err := p.Table.GetFlags(fd)
		if err != nil {
			return p.fail(err)
		}

		return flags

	case unix.F_SETFL:
		flags, ok := arg.(int)
		if !ok {
			return p.fail(unix.EINVAL)
		}

		if err := p.Table.SetFlags(fd, flags); err != nil {
			return p.fail(err)
		}

		return 0

	case unix.F_GETFD:
		flags, err := p.Table.GetFD(fd)
		if err != nil {
			return p.fail(err)
		}

		return flags

	case unix.F_SETFD:
		flags, ok := arg.(int)
		if !ok {
			return p.fail(unix.EINVAL)
		}

		if err := p.Table.SetFD(fd, flags); err != nil {
			return p.fail(err)
		}

		return 0

	case unix.F_GETLK, unix.F_SETLK, unix.F_SETLKW:
		lk, _ := arg.(*unix.Flock_t)

		if err := p.Locks.Request(p.ctx, fd, reclock.Command(cmd), lk); err != nil {
			return p.fail(err)
		}

		return 0
	}

	return p.fail(unix.ENOSYS)
}
