package stream

import (
	"fmt"
	"os"
)

// Mode is a parsed fopen mode string.
type Mode struct {
	Flag        int
	Read        bool
	Write       bool
	Append      bool
	CloseOnExec bool
}

// ParseMode parses an fopen mode string: "r", "w" or "a", optionally
// followed by "+" (update), "b" (ignored), "x" (exclusive create) and "e"
// (close on exec).
func ParseMode(mode string) (Mode, error) {
	if mode == "" {
		return Mode{}, fmt.Errorf("%w: empty mode", ErrInvalidMode)
	}

	var m Mode

	switch mode[0] {
	case 'r':
		m.Read = true
	case 'w':
		m.Write = true
		m.Flag = os.O_CREATE | os.O_TRUNC
	case 'a':
		m.Write = true
		m.Append = true
		m.Flag = os.O_CREATE | os.O_APPEND
	default:
		return Mode{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	for _, c := range mode[1:] {
		switch c {
		case '+':
			m.Read = true
			m.Write = true
		case 'b':
		case 'x':
			if mode[0] == 'r' {
				return Mode{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
			}
			m.Flag |= os.O_EXCL
		case 'e':
			m.CloseOnExec = true
		default:
			return Mode{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
		}
	}

	switch {
	case m.Read && m.Write:
		m.Flag |= os.O_RDWR
	case m.Write:
		m.Flag |= os.O_WRONLY
	default:
		m.Flag |= os.O_RDONLY
	}

	return m, nil
}
