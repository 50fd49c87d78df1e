package fdtable

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/desertwitch/posixrt/internal/errno"
	"golang.org/x/sys/unix"
)

// duplicate makes dst refer to the open file description of src. Attributes
// are copied, the close-on-exec flag is not, and the locks stay with their
// slots. It must be called with the table lock held.
func (t *Table) duplicate(dst, src *Slot) {
	src.Lock()
	flags := src.flags &^ FlagCloseOnExec
	file := src.file
	src.Unlock()

	if file != nil {
		file.refs++
	}

	t.claim(dst, file, flags)
}

// Dup duplicates fd onto the lowest vacant descriptor.
func (t *Table) Dup(fd int) (int, error) {
	return t.Dup2(fd, -1)
}

// Dup2 duplicates src onto dst. A negative dst selects the lowest vacant
// descriptor. When dst is already open it is closed first, and a failing
// close aborts the duplication. Duplicating a descriptor onto itself
// returns it unchanged.
func (t *Table) Dup2(src, dst int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	srcSlot, err := t.slotInUse(src)
	if err != nil {
		return -1, fmt.Errorf("(fdtable-dup2) %w", err)
	}

	if dst < 0 {
		if dst, err = t.vacant(); err != nil {
			return -1, fmt.Errorf("(fdtable-dup2) %w", err)
		}
	} else if src != dst {
		if dst >= t.max {
			return -1, fmt.Errorf("(fdtable-dup2) %w: %d beyond limit %d", ErrBadDescriptor, dst, t.max)
		}

		if err := t.grow(dst + 1); err != nil {
			return -1, fmt.Errorf("(fdtable-dup2) %w", err)
		}
	}

	if src == dst {
		return dst, nil
	}

	if t.slots[dst].inUse {
		slog.Debug("Closing duplicate target", "fd", dst)

		if err := t.closeLocked(dst); err != nil {
			return -1, fmt.Errorf("(fdtable-dup2) %w", err)
		}
	}

	t.duplicate(t.slots[dst], srcSlot)

	return dst, nil
}

// DupMin duplicates src onto the lowest vacant descriptor not below
// minFD (F_DUPFD). The table is grown to hold minFD first; when no slot at
// or above minFD is vacant the table grows by another chunk and the scan is
// repeated. Between attempts the table lock is released and ctx is
// consulted, so a cancelled context ends the loop with EINTR.
func (t *Table) DupMin(ctx context.Context, src, minFD int) (int, error) {
	if minFD < 0 {
		return -1, fmt.Errorf("(fdtable-dupmin) %w: negative minimum %d", ErrInvalidArgument, minFD)
	}

	if minFD >= t.max {
		return -1, fmt.Errorf("(fdtable-dupmin) %w: minimum %d beyond limit %d", ErrInvalidArgument, minFD, t.max)
	}

	t.mu.Lock()

	if _, err := t.slotInUse(src); err != nil {
		t.mu.Unlock()

		return -1, fmt.Errorf("(fdtable-dupmin) %w", err)
	}

	if err := t.grow(minFD + 1); err != nil {
		t.mu.Unlock()

		return -1, fmt.Errorf("(fdtable-dupmin) %w", err)
	}

	t.mu.Unlock()

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			runtime.Gosched()
		}

		if err := ctx.Err(); err != nil {
			return -1, fmt.Errorf("(fdtable-dupmin) %w: %w", ErrInterrupted, err)
		}

		t.mu.Lock()

		srcSlot, err := t.slotInUse(src)
		if err != nil {
			t.mu.Unlock()

			return -1, fmt.Errorf("(fdtable-dupmin) %w", err)
		}

		if fd := t.findVacant(minFD); fd >= 0 {
			t.duplicate(t.slots[fd], srcSlot)
			t.mu.Unlock()

			return fd, nil
		}

		slog.Debug("No vacant descriptor, growing table", "min", minFD, "attempt", attempt)

		if err := t.grow(0); err != nil {
			t.mu.Unlock()

			return -1, fmt.Errorf("(fdtable-dupmin) %w", err)
		}

		t.mu.Unlock()
	}
}

// GetFlags returns the status flags of fd (F_GETFL) as O_NONBLOCK, O_ASYNC
// and O_PATH (for directories).
func (t *Table) GetFlags(fd int) (int, error) {
	s, err := t.lockSlot(fd)
	if err != nil {
		return -1, fmt.Errorf("(fdtable-getfl) %w", err)
	}
	defer s.Unlock()

	result := 0

	if s.flags.Has(FlagNonBlocking) {
		result |= unix.O_NONBLOCK
	}

	if s.flags.Has(FlagAsync) {
		result |= unix.O_ASYNC
	}

	if s.flags.Has(FlagDirectory) {
		result |= unix.O_PATH
	}

	return result, nil
}

// SetFlags changes the O_NONBLOCK and O_ASYNC status flags of fd
// (F_SETFL). Each flag whose requested state differs is handed to the
// backend on its own. A backend failure leaves that flag unchanged and fails
// the call, while a flag changed earlier in the same call keeps its new
// state, so callers should re-query after an error.
//
// Setting flags on standard input without a native handle succeeds without
// effect.
func (t *Table) SetFlags(fd int, flags int) error {
	s, err := t.lockSlot(fd)
	if err != nil {
		return fmt.Errorf("(fdtable-setfl) %w", err)
	}
	defer s.Unlock()

	b := s.Backend()
	if b == nil {
		if !s.flags.Has(FlagSocket) && fd == Stdin {
			slog.Debug("Ignoring status flags for detached stdin", "flags", flags)

			return nil
		}

		return fmt.Errorf("(fdtable-setfl) %w: %d has no native handle", ErrBadDescriptor, fd)
	}

	wantNonBlocking := flags&unix.O_NONBLOCK != 0
	if wantNonBlocking != s.flags.Has(FlagNonBlocking) {
		if err := b.SetBlocking(!wantNonBlocking); err != nil {
			return fmt.Errorf("(fdtable-setfl) %w", errno.Translate(err))
		}

		s.flags = setFlag(s.flags, FlagNonBlocking, wantNonBlocking)
	}

	wantAsync := flags&unix.O_ASYNC != 0
	if wantAsync != s.flags.Has(FlagAsync) {
		if err := b.SetAsync(wantAsync); err != nil {
			return fmt.Errorf("(fdtable-setfl) %w", errno.Translate(err))
		}

		s.flags = setFlag(s.flags, FlagAsync, wantAsync)
	}

	return nil
}

func setFlag(flags Flags, flag Flags, on bool) Flags {
	if on {
		return flags | flag
	}

	return flags &^ flag
}

// GetFD returns the descriptor flags of fd (F_GETFD).
func (t *Table) GetFD(fd int) (int, error) {
	s, err := t.lockSlot(fd)
	if err != nil {
		return -1, fmt.Errorf("(fdtable-getfd) %w", err)
	}
	defer s.Unlock()

	if s.flags.Has(FlagCloseOnExec) {
		return unix.FD_CLOEXEC, nil
	}

	return 0, nil
}

// SetFD sets the descriptor flags of fd (F_SETFD). Only FD_CLOEXEC exists;
// it is recorded but has no further effect as nothing is ever exec'd.
func (t *Table) SetFD(fd int, flags int) error {
	if flags&^unix.FD_CLOEXEC != 0 {
		return fmt.Errorf("(fdtable-setfd) %w: flags %#x", ErrInvalidArgument, flags)
	}

	s, err := t.lockSlot(fd)
	if err != nil {
		return fmt.Errorf("(fdtable-setfd) %w", err)
	}
	defer s.Unlock()

	s.flags = setFlag(s.flags, FlagCloseOnExec, flags == unix.FD_CLOEXEC)

	return nil
}
