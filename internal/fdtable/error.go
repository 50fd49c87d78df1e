package fdtable

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	// ErrBadDescriptor is returned for descriptors that are out of range,
	// not open, or of the wrong kind for the requested operation.
	ErrBadDescriptor = fmt.Errorf("descriptor not usable: %w", unix.EBADF)

	// ErrInvalidArgument is returned for malformed requests, such as a
	// negative minimum descriptor or unknown descriptor flags.
	ErrInvalidArgument = fmt.Errorf("invalid argument: %w", unix.EINVAL)

	// ErrNoMemory is returned when the table cannot grow any further. The
	// slots issued before the failed growth remain untouched.
	ErrNoMemory = fmt.Errorf("descriptor table exhausted: %w", unix.ENOMEM)

	// ErrInterrupted is returned when a context is cancelled while an
	// operation waits for a vacant slot.
	ErrInterrupted = fmt.Errorf("interrupted: %w", unix.EINTR)
)
