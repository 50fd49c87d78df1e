package vfs

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	// ErrNotDirectory is returned when a directory operation is given a
	// path or descriptor that is not a directory.
	ErrNotDirectory = fmt.Errorf("not a directory: %w", unix.ENOTDIR)

	// ErrIsDirectory is returned when a directory is opened for writing.
	ErrIsDirectory = fmt.Errorf("is a directory: %w", unix.EISDIR)

	// ErrNoEntry is returned when a directory stream cannot be opened for
	// a descriptor.
	ErrNoEntry = fmt.Errorf("no such directory: %w", unix.ENOENT)

	// ErrPathOnly is returned when a descriptor cannot be used for a
	// directory stream.
	ErrPathOnly = fmt.Errorf("descriptor not usable for reading: %w", unix.EBADF)
)
