package fdtable

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/desertwitch/posixrt/internal/backend"
	"golang.org/x/sys/unix"
)

// Do runs fn with the locked slot of an open descriptor. Collaborators such
// as record locking and directory streams use it to act on a slot under its
// lock.
func (t *Table) Do(fd int, fn func(s *Slot) error) error {
	s, err := t.lockSlot(fd)
	if err != nil {
		return fmt.Errorf("(fdtable-do) %w", err)
	}
	defer s.Unlock()

	return fn(s)
}

// withSlot is [Table.Do] without the error prefix, for the wrappers below.
func (t *Table) withSlot(fd int, fn func(s *Slot) error) error {
	s, err := t.lockSlot(fd)
	if err != nil {
		return err
	}
	defer s.Unlock()

	return fn(s)
}

// handle returns the backend of fd. The slot lock is released before the
// caller performs the (possibly blocking) I/O on it; the backend itself is
// safe for concurrent use.
func (t *Table) handle(fd int) (backend.Backend, error) { //nolint:ireturn
	s, err := t.lockSlot(fd)
	if err != nil {
		return nil, err
	}
	defer s.Unlock()

	b := s.Backend()
	if b == nil {
		return nil, fmt.Errorf("%w: %d has no native handle", ErrBadDescriptor, fd)
	}

	return b, nil
}

// Read reads from fd. End of file is reported as (0, io.EOF).
func (t *Table) Read(fd int, p []byte) (int, error) {
	b, err := t.handle(fd)
	if err != nil {
		return 0, fmt.Errorf("(fdtable-read) %w", err)
	}

	n, err := b.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("(fdtable-read) %w", err)
	}

	return n, err //nolint:wrapcheck
}

// Write writes to fd.
func (t *Table) Write(fd int, p []byte) (int, error) {
	b, err := t.handle(fd)
	if err != nil {
		return 0, fmt.Errorf("(fdtable-write) %w", err)
	}

	n, err := b.Write(p)
	if err != nil {
		return n, fmt.Errorf("(fdtable-write) %w", err)
	}

	return n, nil
}

// Seek performs the seek action of fd's backend under the slot lock.
func (t *Table) Seek(fd int, offset int64, whence int) (int64, error) {
	if whence != io.SeekStart && whence != io.SeekCurrent && whence != io.SeekEnd {
		return -1, fmt.Errorf("(fdtable-seek) %w: whence %d", ErrInvalidArgument, whence)
	}

	var pos int64

	err := t.withSlot(fd, func(s *Slot) error {
		b := s.Backend()
		if b == nil {
			return fmt.Errorf("%w: %d has no native handle", ErrBadDescriptor, fd)
		}

		var err error
		pos, err = b.Seek(offset, whence)

		return err //nolint:wrapcheck
	})
	if err != nil {
		return -1, fmt.Errorf("(fdtable-seek) %w", err)
	}

	return pos, nil
}

// Stat returns the file information of fd's backend.
func (t *Table) Stat(fd int) (os.FileInfo, error) {
	var fi os.FileInfo

	err := t.withSlot(fd, func(s *Slot) error {
		b := s.Backend()
		if b == nil {
			return fmt.Errorf("%w: %d has no native handle", ErrBadDescriptor, fd)
		}

		var err error
		fi, err = b.Stat()

		return err //nolint:wrapcheck
	})
	if err != nil {
		return nil, fmt.Errorf("(fdtable-fstat) %w", err)
	}

	return fi, nil
}

// Fchmod changes the permissions of the file behind fd. Sockets are
// rejected with EINVAL and the standard descriptors with EBADF.
func (t *Table) Fchmod(fd int, mode os.FileMode) error {
	err := t.withSlot(fd, func(s *Slot) error {
		if s.flags.Has(FlagSocket) {
			return fmt.Errorf("%w: %d is a socket", unix.EINVAL, fd)
		}

		if s.flags.Has(FlagStdio) {
			return fmt.Errorf("%w: %d is a standard descriptor", ErrBadDescriptor, fd)
		}

		b := s.Backend()
		if b == nil {
			return fmt.Errorf("%w: %d has no native handle", ErrBadDescriptor, fd)
		}

		return b.Chmod(mode) //nolint:wrapcheck
	})
	if err != nil {
		return fmt.Errorf("(fdtable-fchmod) %w", err)
	}

	return nil
}
