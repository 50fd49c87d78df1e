package vfs

import (
	"errors"
	"fmt"
	"io"

	"github.com/desertwitch/posixrt/internal/errno"
	"github.com/spf13/afero"
)

const dirBatch = 64

// Dir is an open directory stream. It is not safe for concurrent use.
type Dir struct {
	file    afero.File
	path    string
	names   []string
	done    bool
	onClose func() error
}

// Path returns the absolute path of the directory.
func (d *Dir) Path() string {
	return d.path
}

// Read returns the name of the next entry, or io.EOF once all entries were
// returned. The "." and ".." entries are never returned.
func (d *Dir) Read() (string, error) {
	for len(d.names) == 0 {
		if d.done {
			return "", io.EOF
		}

		names, err := d.file.Readdirnames(dirBatch)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("(vfs-readdir) %w", errno.Translate(err))
			}

			d.done = true
		}

		if len(names) < dirBatch {
			d.done = true
		}

		for _, name := range names {
			if name != "." && name != ".." {
				d.names = append(d.names, name)
			}
		}
	}

	name := d.names[0]
	d.names = d.names[1:]

	return name, nil
}

// Close closes the stream and, for streams opened on a descriptor, the
// descriptor.
func (d *Dir) Close() error {
	err := d.file.Close()
	if err != nil {
		err = fmt.Errorf("(vfs-closedir) %w", errno.Translate(err))
	}

	if d.onClose != nil {
		if cerr := d.onClose(); cerr != nil && err == nil {
			err = fmt.Errorf("(vfs-closedir) %w", cerr)
		}
	}

	return err
}
