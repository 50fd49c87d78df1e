package stream

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	// ErrInvalidMode is returned for malformed fopen mode strings.
	ErrInvalidMode = fmt.Errorf("invalid stream mode: %w", unix.EINVAL)

	// ErrBadStream is returned when operating on a closed stream, or when
	// reading (writing) a stream not opened for reading (writing).
	ErrBadStream = fmt.Errorf("bad stream: %w", unix.EBADF)
)
