// Package fdtable implements the process-wide descriptor table: integer
// descriptors mapped onto slots that wrap native handles, together with the
// descriptor operations built on it (dup, dup2, F_DUPFD, F_GETFL/F_SETFL,
// F_GETFD/F_SETFD, close).
//
// Locking follows a strict two-level order. The table lock protects
// structural changes (growth, claiming a vacant slot, releasing a slot) and
// is always acquired before any slot lock. A slot lock protects one
// descriptor's attributes and is held for the duration of one operation.
// Operations touching several slots hold the table lock and never hold two
// slot locks at the same time.
package fdtable

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/desertwitch/posixrt/internal/backend"
	"github.com/desertwitch/posixrt/internal/errno"
	"github.com/google/uuid"
)

const (
	// DefaultInitial is the number of slots a new table starts with.
	DefaultInitial = 20

	// DefaultChunk is the growth step used when no minimum size is given.
	DefaultChunk = 20

	// DefaultMax is the ceiling above which growth fails with ENOMEM.
	DefaultMax = 1 << 16

	// Standard descriptor numbers.
	Stdin  = 0
	Stdout = 1
	Stderr = 2
)

// ReleaseFunc is called, with the table lock held, when the last
// descriptor referring to an open file description is closed and before its
// backend is closed.
type ReleaseFunc func(b backend.Backend)

// Table is the descriptor table of one process. It is a service object:
// construct it once with [New] and hand it to every consumer.
type Table struct {
	mu        sync.Mutex
	slots     []*Slot
	chunk     int
	max       int
	onRelease []ReleaseFunc
}

// Option configures a [Table].
type Option func(*Table)

// WithChunk sets the growth step used when no minimum size is given.
func WithChunk(n int) Option {
	return func(t *Table) {
		if n > 0 {
			t.chunk = n
		}
	}
}

// WithMax sets the maximum number of slots.
func WithMax(n int) Option {
	return func(t *Table) {
		if n > 0 {
			t.max = n
		}
	}
}

// WithReleaseHook registers a function called when an open file description
// is released. Record lock managers use it to drop the locks of a closed
// file.
func WithReleaseHook(fn ReleaseFunc) Option {
	return func(t *Table) {
		t.onRelease = append(t.onRelease, fn)
	}
}

// New returns a pointer to a new [Table] with initial slots, none in use.
func New(initial int, opts ...Option) (*Table, error) {
	t := &Table{
		chunk: DefaultChunk,
		max:   DefaultMax,
	}

	for _, opt := range opts {
		opt(t)
	}

	if initial <= 0 {
		initial = DefaultInitial
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.grow(min(initial, t.max)); err != nil {
		return nil, fmt.Errorf("(fdtable-new) %w", err)
	}

	return t, nil
}

// AddReleaseHook registers fn like [WithReleaseHook] on an existing table.
func (t *Table) AddReleaseHook(fn ReleaseFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.onRelease = append(t.onRelease, fn)
}

// Len returns the current number of slots.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.slots)
}

// Grow ensures that at least n slots exist. A zero n grows the table by
// one chunk. Growth never moves or replaces existing slots.
func (t *Table) Grow(n int) error {
	if n < 0 {
		return fmt.Errorf("(fdtable-grow) %w: negative size %d", ErrInvalidArgument, n)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.grow(n)
}

// grow must be called with the table lock held.
func (t *Table) grow(n int) error {
	have := len(t.slots)

	target := n
	if n == 0 {
		target = have + t.chunk
		if target > t.max && have < t.max {
			target = t.max
		}
	}

	if target <= have {
		return nil
	}

	if target > t.max {
		return fmt.Errorf("(fdtable-grow) %w: %d slots requested, limit is %d", ErrNoMemory, target, t.max)
	}

	slots := make([]*Slot, target)
	copy(slots, t.slots)

	for i := have; i < target; i++ {
		slots[i] = &Slot{index: i}
	}

	t.slots = slots

	slog.Debug("Grew descriptor table", "from", have, "to", target)

	return nil
}

// Resolve returns the slot of an open descriptor.
func (t *Table) Resolve(fd int) (*Slot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.slotInUse(fd)
	if err != nil {
		return nil, fmt.Errorf("(fdtable-resolve) %w", err)
	}

	return s, nil
}

// slotInUse must be called with the table lock held.
func (t *Table) slotInUse(fd int) (*Slot, error) {
	if fd < 0 || fd >= len(t.slots) {
		return nil, fmt.Errorf("%w: %d out of range", ErrBadDescriptor, fd)
	}

	s := t.slots[fd]
	if !s.inUse {
		return nil, fmt.Errorf("%w: %d not open", ErrBadDescriptor, fd)
	}

	return s, nil
}

// lockSlot returns the locked slot of an open descriptor. The table lock is
// only held for the lookup, so the caller owns just the slot lock.
func (t *Table) lockSlot(fd int) (*Slot, error) {
	t.mu.Lock()

	if fd < 0 || fd >= len(t.slots) {
		t.mu.Unlock()

		return nil, fmt.Errorf("%w: %d out of range", ErrBadDescriptor, fd)
	}

	s := t.slots[fd]
	t.mu.Unlock()

	s.Lock()

	if !s.inUse {
		s.Unlock()

		return nil, fmt.Errorf("%w: %d not open", ErrBadDescriptor, fd)
	}

	return s, nil
}

// FindVacant returns the lowest descriptor number not in use.
func (t *Table) FindVacant() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd := t.findVacant(0)

	return fd, fd >= 0
}

// findVacant must be called with the table lock held.
func (t *Table) findVacant(from int) int {
	for i := from; i < len(t.slots); i++ {
		if !t.slots[i].inUse {
			return i
		}
	}

	return -1
}

// vacant returns the lowest vacant descriptor, growing the table by one
// chunk when it is full. It must be called with the table lock held.
func (t *Table) vacant() (int, error) {
	if fd := t.findVacant(0); fd >= 0 {
		return fd, nil
	}

	if err := t.grow(0); err != nil {
		return -1, err
	}

	return t.findVacant(0), nil
}

// claim marks a vacant slot in use. It must be called with the table lock
// held.
func (t *Table) claim(s *Slot, file *openFile, flags Flags) {
	s.Lock()
	defer s.Unlock()

	s.inUse = true
	s.flags = flags &^ FlagInUse
	s.file = file
}

func kindFlags(b backend.Backend) Flags {
	if b == nil {
		return 0
	}

	switch b.Kind() { //nolint:exhaustive
	case backend.KindSocket:
		return FlagSocket
	case backend.KindDirectory:
		return FlagDirectory
	}

	return 0
}

// Install opens a new descriptor for b on the lowest vacant slot.
func (t *Table) Install(b backend.Backend, flags Flags) (int, error) {
	if b == nil {
		return -1, fmt.Errorf("(fdtable-install) %w: nil backend", ErrInvalidArgument)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fd, err := t.vacant()
	if err != nil {
		return -1, fmt.Errorf("(fdtable-install) %w", err)
	}

	t.claim(t.slots[fd], &openFile{backend: b, refs: 1}, flags|kindFlags(b))

	return fd, nil
}

// InstallAt opens descriptor fd for b, closing whatever fd referred to. A
// nil b installs a descriptor without native handle, which is how a
// detached standard input is represented.
func (t *Table) InstallAt(fd int, b backend.Backend, flags Flags) error {
	if fd < 0 || fd >= t.max {
		return fmt.Errorf("(fdtable-installat) %w: descriptor %d out of range", ErrBadDescriptor, fd)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.grow(fd + 1); err != nil {
		return fmt.Errorf("(fdtable-installat) %w", err)
	}

	if t.slots[fd].inUse {
		if err := t.closeLocked(fd); err != nil {
			return fmt.Errorf("(fdtable-installat) %w", err)
		}
	}

	var file *openFile
	if b != nil {
		file = &openFile{backend: b, refs: 1}
	}

	t.claim(t.slots[fd], file, flags|kindFlags(b))

	return nil
}

// Close releases a descriptor. The slot is freed even when closing the
// native handle fails; the failure is still reported.
func (t *Table) Close(fd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.closeLocked(fd); err != nil {
		return fmt.Errorf("(fdtable-close) %w", err)
	}

	return nil
}

// closeLocked must be called with the table lock held.
func (t *Table) closeLocked(fd int) error {
	s, err := t.slotInUse(fd)
	if err != nil {
		return err
	}

	s.Lock()
	file := s.file
	s.reset()
	s.Unlock()

	if file == nil {
		return nil
	}

	file.refs--
	if file.refs > 0 {
		return nil
	}

	for _, fn := range t.onRelease {
		fn(file.backend)
	}

	if err := file.backend.Close(); err != nil {
		return errno.Translate(err)
	}

	return nil
}

// SlotInfo describes an open descriptor.
type SlotInfo struct {
	FD     int
	Flags  Flags
	Kind   backend.Kind
	Name   string
	Handle uuid.UUID
	Refs   int
}

// Snapshot lists all open descriptors in ascending order.
func (t *Table) Snapshot() []SlotInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	var infos []SlotInfo

	for _, s := range t.slots {
		if !s.inUse {
			continue
		}

		s.Lock()

		info := SlotInfo{
			FD:     s.index,
			Flags:  s.Flags(),
			Handle: backend.NoHandle,
		}

		if s.file != nil {
			info.Kind = s.file.backend.Kind()
			info.Name = s.file.backend.Name()
			info.Handle = s.file.backend.Handle()
			info.Refs = s.file.refs
		}

		s.Unlock()

		infos = append(infos, info)
	}

	return infos
}
