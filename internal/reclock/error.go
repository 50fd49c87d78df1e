package reclock

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	// ErrInvalidRequest is returned for malformed lock requests and for
	// lock requests on sockets.
	ErrInvalidRequest = fmt.Errorf("invalid lock request: %w", unix.EINVAL)

	// ErrNoFile is returned when the descriptor has no native file to lock,
	// or when no request was given at all.
	ErrNoFile = fmt.Errorf("no lockable file: %w", unix.EBADF)

	// ErrConflict is returned by non-waiting requests that conflict with a
	// lock held by another owner.
	ErrConflict = fmt.Errorf("conflicting lock held: %w", unix.EAGAIN)

	// ErrInterrupted is returned when a waiting request is cancelled.
	ErrInterrupted = fmt.Errorf("lock wait interrupted: %w", unix.EINTR)
)
