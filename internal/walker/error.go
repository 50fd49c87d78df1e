package walker

import (
	"fmt"
	"io/fs"

	"golang.org/x/sys/unix"
)

var (
	// SkipDir is returned by a [VisitFunc] to prune the walk. Returned
	// from the pre-order visit of a directory it skips that directory's
	// contents; returned from any other visit it skips the remaining
	// entries of the parent directory.
	SkipDir = fs.SkipDir

	// ErrFault is returned for a missing path or callback.
	ErrFault = fmt.Errorf("bad address: %w", unix.EFAULT)

	// ErrInvalidArgument is returned for a negative depth or unknown flags.
	ErrInvalidArgument = fmt.Errorf("invalid argument: %w", unix.EINVAL)

	// ErrNameTooLong is returned for directory entries longer than the
	// file name bound.
	ErrNameTooLong = fmt.Errorf("file name too long: %w", unix.ENAMETOOLONG)

	// ErrInterrupted is returned when the walk is cancelled.
	ErrInterrupted = fmt.Errorf("walk interrupted: %w", unix.EINTR)
)
