package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertwitch/posixrt/internal/fdtable"
	"github.com/desertwitch/posixrt/internal/posix"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

type fdsOptions struct {
	dup   bool
	above int
	yaml  bool
}

type fdEntry struct {
	FD      int      `yaml:"fd"`
	Kind    string   `yaml:"kind"`
	Name    string   `yaml:"name,omitempty"`
	Flags   []string `yaml:"flags"`
	Status  string   `yaml:"status"`
	Handle  string   `yaml:"handle"`
	Sharing int      `yaml:"sharing"`
}

func newFdsCommand(a *app) *cobra.Command {
	opts := &fdsOptions{}

	cmd := &cobra.Command{
		Use:   "fds [FILE...]",
		Short: "Open files and print the descriptor table",
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := a.process()
			if err != nil {
				return err
			}

			defer p.Exit() //nolint:errcheck

			if err := openAll(p, args, opts); err != nil {
				return err
			}

			entries := describeTable(p)

			out := p.Fdopen(1, "w")
			if out == nil {
				return fmt.Errorf("failed to open stdout stream: %w", p.Errno())
			}

			if opts.yaml {
				return writeYAML(out, entries)
			}

			fmt.Fprintln(out, renderTable(entries))

			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.dup, "dup", false, "duplicate each opened descriptor")
	cmd.Flags().IntVar(&opts.above, "above", 0, "also duplicate each descriptor to the lowest free number at or above this (0 = off)")
	cmd.Flags().BoolVar(&opts.yaml, "yaml", false, "print the table as YAML")

	return cmd
}

func openAll(p *posix.Process, names []string, opts *fdsOptions) error {
	for _, name := range names {
		fd := p.Open(name, unix.O_RDONLY|unix.O_CLOEXEC, 0)
		if fd < 0 {
			return fmt.Errorf("%s: %w", name, p.Errno())
		}

		if opts.dup && p.Dup(fd) < 0 {
			return fmt.Errorf("%s: failed to dup: %w", name, p.Errno())
		}

		if opts.above > 0 && p.Fcntl(fd, unix.F_DUPFD, opts.above) < 0 {
			return fmt.Errorf("%s: failed to dup above %d: %w", name, opts.above, p.Errno())
		}
	}

	return nil
}

func describeTable(p *posix.Process) []fdEntry {
	snapshot := p.Table.Snapshot()
	entries := make([]fdEntry, 0, len(snapshot))

	for _, info := range snapshot {
		entries = append(entries, fdEntry{
			FD:      info.FD,
			Kind:    info.Kind.String(),
			Name:    info.Name,
			Flags:   flagNames(info.Flags),
			Status:  statusFlags(p.Fcntl(info.FD, unix.F_GETFL, nil)),
			Handle:  info.Handle.String(),
			Sharing: info.Refs,
		})
	}

	return entries
}

func flagNames(f fdtable.Flags) []string {
	names := []struct {
		flag fdtable.Flags
		name string
	}{
		{fdtable.FlagSocket, "socket"},
		{fdtable.FlagDirectory, "directory"},
		{fdtable.FlagNonBlocking, "nonblock"},
		{fdtable.FlagAsync, "async"},
		{fdtable.FlagStdio, "stdio"},
		{fdtable.FlagCloseOnExec, "cloexec"},
	}

	out := []string{}

	for _, n := range names {
		if f.Has(n.flag) {
			out = append(out, n.name)
		}
	}

	return out
}

func statusFlags(fl int) string {
	if fl < 0 {
		return "-"
	}

	var parts []string

	if fl&unix.O_PATH != 0 {
		parts = append(parts, "O_PATH")
	}

	if fl&unix.O_NONBLOCK != 0 {
		parts = append(parts, "O_NONBLOCK")
	}

	if fl&unix.O_ASYNC != 0 {
		parts = append(parts, "O_ASYNC")
	}

	if len(parts) == 0 {
		return "0"
	}

	return strings.Join(parts, "|")
}

func renderTable(entries []fdEntry) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}

			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("FD", "KIND", "NAME", "FLAGS", "STATUS", "SHARING")

	for _, e := range entries {
		t.Row(strconv.Itoa(e.FD), e.Kind, e.Name, strings.Join(e.Flags, ","), e.Status, strconv.Itoa(e.Sharing))
	}

	return t.String()
}

