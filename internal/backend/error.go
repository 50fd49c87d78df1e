package backend

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	// ErrIsDirectory is returned when byte I/O is attempted on a directory.
	ErrIsDirectory = fmt.Errorf("handle is a directory: %w", unix.EISDIR)

	// ErrNotSeekable is returned when seeking a pipe, socket or console that
	// does not support positioning.
	ErrNotSeekable = fmt.Errorf("handle is not seekable: %w", unix.ESPIPE)

	// ErrUnsupported is returned for actions a variant cannot perform.
	ErrUnsupported = fmt.Errorf("action not supported by handle: %w", unix.EINVAL)
)
