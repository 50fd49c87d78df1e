// Package reclock implements advisory record locking (F_GETLK, F_SETLK and
// F_SETLKW) on top of the descriptor table. The manager validates requests
// and resolves them to absolute byte ranges; granting, refusing or blocking
// is delegated to an [Arbiter] keyed by file identity.
package reclock

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/desertwitch/posixrt/internal/backend"
	"github.com/desertwitch/posixrt/internal/errno"
	"github.com/desertwitch/posixrt/internal/fdtable"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// Command selects the record locking operation.
type Command int

const (
	GetLock     Command = unix.F_GETLK
	SetLock     Command = unix.F_SETLK
	SetLockWait Command = unix.F_SETLKW
)

// EOF is the end offset of ranges extending to the end of the file and
// beyond.
const EOF = math.MaxInt64

// Range is the byte range [Start, End).
type Range struct {
	Start int64
	End   int64
}

func (r Range) overlaps(o Range) bool {
	return r.Start < o.End && o.Start < r.End
}

// Lock is a granted or requested record lock. Owners are open file
// descriptions, so duplicated descriptors share their locks.
type Lock struct {
	Owner uuid.UUID
	Type  int16
	Range
}

func (l Lock) conflicts(o Lock) bool {
	if l.Owner == o.Owner || !l.overlaps(o.Range) {
		return false
	}

	return l.Type == unix.F_WRLCK || o.Type == unix.F_WRLCK
}

// Arbiter decides on lock requests for files identified by a key.
type Arbiter interface {
	// Test returns a lock of another owner conflicting with l, if any.
	Test(key string, l Lock) (Lock, bool)
	// Acquire grants l, waiting for conflicting locks to go away when wait
	// is set. Without wait a conflict fails with EAGAIN.
	Acquire(ctx context.Context, key string, l Lock, wait bool) error
	// Release unlocks the range of l held by l.Owner.
	Release(key string, l Lock)
	// ReleaseOwner drops every lock of owner on the file.
	ReleaseOwner(key string, owner uuid.UUID)
}

// Manager validates and dispatches lock requests for descriptors.
type Manager struct {
	table   *fdtable.Table
	arbiter Arbiter
}

// NewManager returns a pointer to a new [Manager]. It registers with the
// table so that closing the last descriptor of a file releases its locks.
func NewManager(table *fdtable.Table, arbiter Arbiter) *Manager {
	m := &Manager{
		table:   table,
		arbiter: arbiter,
	}

	table.AddReleaseHook(func(b backend.Backend) {
		m.arbiter.ReleaseOwner(fileKey(b), b.Handle())
	})

	return m
}

// fileKey is the identity record locks are kept under.
func fileKey(b backend.Backend) string {
	if name := b.Name(); name != "" {
		return name
	}

	return b.Handle().String()
}

// Request performs cmd for descriptor fd. For [GetLock] the request is
// rewritten to describe the first conflicting lock, or its type is set to
// F_UNLCK when the lock could be placed.
func (m *Manager) Request(ctx context.Context, fd int, cmd Command, lk *unix.Flock_t) error {
	if cmd != GetLock && cmd != SetLock && cmd != SetLockWait {
		return fmt.Errorf("(reclock-request) %w: command %d", ErrInvalidRequest, cmd)
	}

	var key string
	var l Lock

	err := m.table.Do(fd, func(s *fdtable.Slot) error {
		if s.Flags().Has(fdtable.FlagSocket) {
			return fmt.Errorf("%w: descriptor %d is a socket", ErrInvalidRequest, fd)
		}

		b := s.Backend()
		if b == nil {
			return fmt.Errorf("%w: descriptor %d has no native handle", ErrNoFile, fd)
		}

		if lk == nil {
			return fmt.Errorf("%w: nil request", ErrNoFile)
		}

		if err := validate(cmd, lk); err != nil {
			return err
		}

		r, err := resolve(b, lk)
		if err != nil {
			return err
		}

		key = fileKey(b)
		l = Lock{Owner: b.Handle(), Type: lk.Type, Range: r}

		return nil
	})
	if err != nil {
		return fmt.Errorf("(reclock-request) %w", err)
	}

	switch {
	case cmd == GetLock:
		if held, found := m.arbiter.Test(key, l); found {
			describe(lk, held)
		} else {
			lk.Type = unix.F_UNLCK
		}

	case lk.Type == unix.F_UNLCK:
		m.arbiter.Release(key, l)

	default:
		if err := m.arbiter.Acquire(ctx, key, l, cmd == SetLockWait); err != nil {
			return fmt.Errorf("(reclock-request) %w", err)
		}
	}

	return nil
}

func validate(cmd Command, lk *unix.Flock_t) error {
	switch lk.Type {
	case unix.F_RDLCK, unix.F_WRLCK:
	case unix.F_UNLCK:
		if cmd == GetLock {
			return fmt.Errorf("%w: F_GETLK with F_UNLCK", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: lock type %d", ErrInvalidRequest, lk.Type)
	}

	switch lk.Whence {
	case io.SeekStart, io.SeekCurrent, io.SeekEnd:
	default:
		return fmt.Errorf("%w: whence %d", ErrInvalidRequest, lk.Whence)
	}

	return nil
}

// resolve turns whence/start/len into an absolute range. A zero length
// extends to EOF; a negative length covers the bytes before start.
func resolve(b backend.Backend, lk *unix.Flock_t) (Range, error) {
	var base int64

	switch lk.Whence {
	case io.SeekCurrent:
		pos, err := b.Seek(0, io.SeekCurrent)
		if err != nil {
			return Range{}, errno.Translate(err)
		}
		base = pos

	case io.SeekEnd:
		fi, err := b.Stat()
		if err != nil {
			return Range{}, errno.Translate(err)
		}
		base = fi.Size()
	}

	start := base + lk.Start

	var r Range

	switch {
	case lk.Len > 0:
		r = Range{Start: start, End: start + lk.Len}
	case lk.Len == 0:
		r = Range{Start: start, End: EOF}
	default:
		r = Range{Start: start + lk.Len, End: start}
	}

	if r.Start < 0 {
		return Range{}, fmt.Errorf("%w: range starts at %d", ErrInvalidRequest, r.Start)
	}

	return r, nil
}

func describe(lk *unix.Flock_t, held Lock) {
	lk.Type = held.Type
	lk.Whence = io.SeekStart
	lk.Start = held.Start
	lk.Pid = -1

	if held.End == EOF {
		lk.Len = 0
	} else {
		lk.Len = held.End - held.Start
	}
}
