package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/desertwitch/posixrt/internal/checksum"
	"github.com/desertwitch/posixrt/internal/posix"
	"github.com/desertwitch/posixrt/internal/queue"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type walkOptions struct {
	maxDepth int
	phys     bool
	post     bool
	chdir    bool
	mount    bool
	prune    []string
	checksum bool
	jobs     int
	yaml     bool
}

type walkSummary struct {
	Root      string            `yaml:"root"`
	Entries   map[string]int    `yaml:"entries"`
	Bytes     uint64            `yaml:"bytes"`
	Size      string            `yaml:"size"`
	Pruned    []string          `yaml:"pruned,omitempty"`
	Checksums []checksum.Result `yaml:"checksums,omitempty"`
	Hashing   *queue.Stats      `yaml:"hashing,omitempty"`
}

func newWalkCommand(a *app) *cobra.Command {
	opts := &walkOptions{}

	cmd := &cobra.Command{
		Use:   "walk PATH",
		Short: "Walk a file tree with nftw",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.process()
			if err != nil {
				return err
			}

			defer func() {
				if err := p.Exit(); err != nil {
					slog.Error("Failed to flush streams", "err", err)
				}
			}()

			out := p.Fdopen(1, "w")
			if out == nil {
				return fmt.Errorf("failed to open stdout stream: %w", p.Errno())
			}

			return runWalk(cmd.Context(), a, p, out, args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.maxDepth, "max-depth", "d", -1, "descend at most this many levels (-1 = unlimited)")
	cmd.Flags().BoolVarP(&opts.phys, "phys", "P", false, "do not follow symbolic links")
	cmd.Flags().BoolVar(&opts.post, "post", false, "report directories after their contents")
	cmd.Flags().BoolVar(&opts.chdir, "chdir", false, "change into each directory while walking it")
	cmd.Flags().BoolVar(&opts.mount, "mount", false, "stay on the file system of PATH")
	cmd.Flags().StringArrayVar(&opts.prune, "prune", nil, "skip directories with this name (repeatable)")
	cmd.Flags().BoolVar(&opts.checksum, "checksum", false, "compute BLAKE3 checksums of regular files")
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", 4, "concurrent checksum workers")
	cmd.Flags().BoolVar(&opts.yaml, "yaml", false, "print a YAML summary instead of entries")

	return cmd
}

func walkFlags(opts *walkOptions) int {
	flags := 0

	if opts.phys {
		flags |= posix.FTW_PHYS
	}

	if opts.post {
		flags |= posix.FTW_DEPTH
	}

	if opts.chdir {
		flags |= posix.FTW_CHDIR
	}

	if opts.mount {
		flags |= posix.FTW_MOUNT
	}

	return flags
}

func runWalk(ctx context.Context, a *app, p *posix.Process, out io.Writer, root string, opts *walkOptions) error {
	depth := opts.maxDepth
	if depth < 0 {
		depth = math.MaxInt32
	}

	prune := mapset.NewThreadUnsafeSet(opts.prune...)
	files := queue.New[string]()

	summary := &walkSummary{
		Root:    root,
		Entries: make(map[string]int),
	}

	rootLen := len(strings.TrimSuffix(root, "/"))

	visit := func(path string, info os.FileInfo, typ int, ftw *posix.FTW) int {
		// Post-order walks report a directory after its contents, so
		// entries below a pruned directory are dropped here instead.
		if opts.post && ftw.Level > 0 && len(path) >= rootLen && underPruned(path[rootLen:], prune) {
			return 0
		}

		summary.Entries[kindName(typ)]++

		if (typ == posix.FTW_D || typ == posix.FTW_DP) && ftw.Level > 0 && prune.Contains(path[ftw.Base:]) {
			if typ == posix.FTW_D {
				ftw.Quit = posix.FTW_PRUNE
			}

			summary.Pruned = append(summary.Pruned, path)
		}

		if typ == posix.FTW_F {
			summary.Bytes += uint64(info.Size()) //nolint:gosec

			if opts.checksum {
				files.Enqueue(path)
			}
		}

		if !opts.yaml && !opts.checksum {
			fmt.Fprintln(out, formatEntry(path, info, typ, ftw.Level))
		}

		return 0
	}

	start := time.Now()

	if rc := p.Nftw(root, visit, depth, walkFlags(opts)); rc != 0 {
		return fmt.Errorf("walk %s: %w", root, p.Errno())
	}

	slog.Debug("Walk finished", "root", root, "elapsed", time.Since(start), "entries", summary.Entries)

	summary.Size = humanize.IBytes(summary.Bytes)

	if opts.checksum {
		results, err := hashFiles(ctx, a, p, files, opts.jobs)
		if err != nil {
			return err
		}

		stats := files.Stats()
		summary.Checksums = results
		summary.Hashing = &stats

		if !opts.yaml {
			for _, res := range results {
				fmt.Fprintf(out, "%s  %s\n", res.Sum, res.Path)
			}
		}
	}

	if opts.yaml {
		return writeYAML(out, summary)
	}

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d entries, %s", totalEntries(summary.Entries), summary.Size)))

	return nil
}

// underPruned reports whether a directory component of rel, not counting
// its last element, is a pruned name.
func underPruned(rel string, prune mapset.Set[string]) bool {
	parts := strings.Split(strings.Trim(rel, "/"), "/")

	for _, part := range parts[:len(parts)-1] {
		if prune.Contains(part) {
			return true
		}
	}

	return false
}

func hashFiles(ctx context.Context, a *app, p *posix.Process, files *queue.Queue[string], jobs int) ([]checksum.Result, error) {
	hasher := checksum.NewHasher(p.Table, p.Sys, a.cfg.StreamBuffer)

	var mu sync.Mutex
	var results []checksum.Result

	err := files.Process(ctx, jobs, func(ctx context.Context, path string) queue.Decision {
		res, err := hasher.Sum(ctx, path)
		if err != nil {
			slog.Warn("Failed to hash file", "path", path, "err", err)

			return queue.Skipped
		}

		mu.Lock()
		results = append(results, res)
		mu.Unlock()

		return queue.Success
	})
	if err != nil {
		return nil, fmt.Errorf("failed to hash files: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	return results, nil
}

func totalEntries(entries map[string]int) int {
	total := 0
	for _, n := range entries {
		total += n
	}

	return total
}
