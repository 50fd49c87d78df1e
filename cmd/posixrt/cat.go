package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/desertwitch/posixrt/internal/posix"
	"github.com/desertwitch/posixrt/internal/stream"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

func newCatCommand(a *app) *cobra.Command {
	var lock bool

	cmd := &cobra.Command{
		Use:   "cat FILE...",
		Short: "Copy files to standard output through buffered streams",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := a.process()
			if err != nil {
				return err
			}

			out := p.Fdopen(1, "w")
			if out == nil {
				return fmt.Errorf("failed to open stdout stream: %w", p.Errno())
			}

			for _, name := range args {
				if err := catFile(p, out, name, lock); err != nil {
					_ = p.Exit()

					return err
				}
			}

			if err := p.Exit(); err != nil {
				return fmt.Errorf("failed to flush output: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&lock, "lock", false, "hold a shared record lock on each file while copying")

	return cmd
}

func catFile(p *posix.Process, out *stream.Stream, name string, lock bool) error {
	in := p.Fopen(name, "r")
	if in == nil {
		return fmt.Errorf("%s: %w", name, p.Errno())
	}
	defer p.Fclose(in)

	if lock {
		lk := &unix.Flock_t{Type: unix.F_RDLCK, Whence: io.SeekStart}

		if p.Fcntl(in.Fileno(), unix.F_SETLKW, lk) < 0 {
			return fmt.Errorf("%s: failed to lock: %w", name, p.Errno())
		}
	}

	buf := make([]byte, 32*1024)

	for {
		n := p.Fread(buf, in)
		if n > 0 && p.Fwrite(buf[:n], out) < n {
			return fmt.Errorf("%s: failed to write: %w", name, p.Errno())
		}

		if n < len(buf) {
			if in.Err() {
				return fmt.Errorf("%s: failed to read: %w", name, p.Errno())
			}

			break
		}
	}

	slog.Debug("Copied file", "name", name, "fd", in.Fileno(), "offset", p.Ftell(in))

	return nil
}
