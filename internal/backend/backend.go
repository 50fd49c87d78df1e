// Package backend contains the native handle variants that descriptor slots
// wrap. Each variant implements the same small capability set ([Backend]),
// so the descriptor layer dispatches seek, blocking, async and close
// actions by interface call instead of by a per-kind hook.
package backend

import (
	"os"

	"github.com/google/uuid"
)

// Kind is the tag of a native handle variant.
type Kind int

const (
	KindFile Kind = iota + 1
	KindDirectory
	KindPipe
	KindSocket
	KindConsole
)

// NoHandle is the handle identity reported for slots without a native
// handle, such as a detached standard input.
var NoHandle = uuid.Nil

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindPipe:
		return "pipe"
	case KindSocket:
		return "socket"
	case KindConsole:
		return "console"
	default:
		return "unknown"
	}
}

// Backend is the capability set of a native handle.
//
// Implementations must be safe for use by several descriptors at once, as
// duplicated descriptors share one backend.
type Backend interface {
	Kind() Kind
	Handle() uuid.UUID
	// Name returns the identity of the underlying file, or "" for handles
	// without one (pipes, sockets, consoles).
	Name() string

	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
	SetBlocking(blocking bool) error
	SetAsync(async bool) error
	Stat() (os.FileInfo, error)
	Chmod(mode os.FileMode) error
	Close() error
}
