package vfs

import (
	"fmt"

	"github.com/desertwitch/posixrt/internal/fdtable"
)

// Fdopendir opens a directory stream on the directory behind descriptor fd.
// The descriptor belongs to the stream from then on and is closed with it.
func (s *System) Fdopendir(table *fdtable.Table, fd int) (*Dir, error) {
	fi, err := table.Stat(fd)
	if err != nil {
		return nil, fmt.Errorf("(vfs-fdopendir) %w", err)
	}

	if !fi.IsDir() {
		return nil, fmt.Errorf("(vfs-fdopendir) %w: descriptor %d", ErrNotDirectory, fd)
	}

	var name string

	err = table.Do(fd, func(slot *fdtable.Slot) error {
		b := slot.Backend()
		if b == nil || !slot.Flags().Has(fdtable.FlagDirectory) {
			return fmt.Errorf("%w: descriptor %d", ErrPathOnly, fd)
		}

		name = b.Name()

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("(vfs-fdopendir) %w", err)
	}

	d, err := s.OpenDir(name)
	if err != nil {
		return nil, fmt.Errorf("(vfs-fdopendir) %w: %w", ErrNoEntry, err)
	}

	d.onClose = func() error {
		return table.Close(fd)
	}

	return d, nil
}
