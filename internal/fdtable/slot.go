package fdtable

import (
	"sync"

	"github.com/desertwitch/posixrt/internal/backend"
	"github.com/google/uuid"
)

// Flags are the attributes of a descriptor slot.
type Flags uint32

const (
	FlagInUse Flags = 1 << iota
	FlagSocket
	FlagDirectory
	FlagNonBlocking
	FlagAsync
	FlagStdio
	FlagCloseOnExec
)

// Has reports whether all bits of x are set.
func (f Flags) Has(x Flags) bool {
	return f&x == x
}

// openFile is an open file description. Duplicated descriptors share one,
// and its backend is closed when the last of them is closed. refs is
// guarded by the table lock.
type openFile struct {
	backend backend.Backend
	refs    int
}

// Slot backs one descriptor number. Slots are created by table growth and
// reused after close, but never freed, so a *Slot obtained for an index stays
// valid for the lifetime of the table.
//
// The embedded mutex guards flags and file. inUse is written only while
// holding both the table lock and the slot lock, so it may be read under
// either of them.
type Slot struct {
	sync.Mutex

	index int
	inUse bool
	flags Flags
	file  *openFile
}

// Index returns the descriptor number of the slot.
func (s *Slot) Index() int {
	return s.index
}

// Flags returns the slot attributes. The slot lock must be held.
func (s *Slot) Flags() Flags {
	if s.inUse {
		return s.flags | FlagInUse
	}

	return s.flags
}

// Backend returns the native handle of the slot, or nil when the slot has
// none. The slot lock must be held.
func (s *Slot) Backend() backend.Backend { //nolint:ireturn
	if s.file == nil {
		return nil
	}

	return s.file.backend
}

// Owner returns the identity of the open file description, which is shared
// by all duplicates of a descriptor. The slot lock must be held.
func (s *Slot) Owner() uuid.UUID {
	if b := s.Backend(); b != nil {
		return b.Handle()
	}

	return backend.NoHandle
}

func (s *Slot) reset() {
	s.inUse = false
	s.flags = 0
	s.file = nil
}
