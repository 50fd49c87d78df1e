package backend

import (
	"fmt"
	"io"
	"syscall"

	"github.com/desertwitch/posixrt/internal/errno"
	"golang.org/x/sys/unix"
)

// rawRead performs exactly one read on the native descriptor behind c, so an
// empty pipe or socket reports EAGAIN instead of parking the caller.
func rawRead(c syscall.Conn, p []byte) (int, error) {
	rc, err := c.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("(backend-rawread) %w", errno.Translate(err))
	}

	var n int
	var opErr error

	err = rc.Read(func(fd uintptr) bool {
		n, opErr = unix.Read(int(fd), p)

		return true
	})
	if err != nil {
		return 0, fmt.Errorf("(backend-rawread) %w", errno.Translate(err))
	}

	if opErr != nil {
		return 0, fmt.Errorf("(backend-rawread) %w", opErr)
	}

	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}

	return n, nil
}

// rawWrite is the write counterpart of [rawRead].
func rawWrite(c syscall.Conn, p []byte) (int, error) {
	rc, err := c.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("(backend-rawwrite) %w", errno.Translate(err))
	}

	var n int
	var opErr error

	err = rc.Write(func(fd uintptr) bool {
		n, opErr = unix.Write(int(fd), p)

		return true
	})
	if err != nil {
		return 0, fmt.Errorf("(backend-rawwrite) %w", errno.Translate(err))
	}

	if opErr != nil {
		return 0, fmt.Errorf("(backend-rawwrite) %w", opErr)
	}

	return n, nil
}
