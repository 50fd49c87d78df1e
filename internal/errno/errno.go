// Package errno translates native and library errors into POSIX error
// numbers. Every failing operation of the runtime returns an error which
// either wraps a [unix.Errno] directly or is passed through [Translate], so
// the compatibility layer can always recover a number for its errno cell.
package errno

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// Of returns the errno carried by err, or a best-effort translation when err
// is a plain native error. It returns 0 for a nil error.
func Of(err error) unix.Errno {
	if err == nil {
		return 0
	}

	var e unix.Errno
	if errors.As(err, &e) {
		return e
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return unix.EINTR
	case errors.Is(err, os.ErrDeadlineExceeded):
		return unix.EAGAIN
	case errors.Is(err, fs.ErrNotExist):
		return unix.ENOENT
	case errors.Is(err, fs.ErrExist):
		return unix.EEXIST
	case errors.Is(err, fs.ErrPermission):
		return unix.EACCES
	case errors.Is(err, fs.ErrClosed), errors.Is(err, afero.ErrFileClosed):
		return unix.EBADF
	case errors.Is(err, io.ErrClosedPipe):
		return unix.EPIPE
	case errors.Is(err, afero.ErrOutOfRange):
		return unix.EINVAL
	case errors.Is(err, afero.ErrTooLarge):
		return unix.EFBIG
	}

	return unix.EIO
}

// Translate makes sure err carries an errno. Errors already wrapping one are
// returned unchanged; nil stays nil.
func Translate(err error) error {
	if err == nil {
		return nil
	}

	var e unix.Errno
	if errors.As(err, &e) {
		return err
	}

	return fmt.Errorf("%w: %w", Of(err), err)
}
