package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/desertwitch/posixrt/internal/configuration"
	"github.com/desertwitch/posixrt/internal/posix"
	"github.com/desertwitch/posixrt/internal/vfs"
	"github.com/lmittmann/tint"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const (
	stackTraceBufMax = 1 << 24
)

//nolint:gochecknoglobals
var (
	Version string

	configFiles []string
	verbose     bool
	logFile     string
)

func setupLogging(level slog.Level) (func(), error) {
	manager := NewSlogManager()

	manager.AddHandler("terminal", tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))

	cleanup := func() {}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		manager.AddHandler("file", slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))

		cleanup = func() {
			manager.RemoveHandler("file")
			f.Close()
		}
	}

	slog.SetDefault(slog.New(manager))

	return cleanup, nil
}

func setupSignalHandlers(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigChan
		slog.Warn("Received signal, cancelling")
		cancel()
	}()

	sigChan2 := make(chan os.Signal, 1)
	signal.Notify(sigChan2, syscall.SIGUSR1)
	go func() {
		for range sigChan2 {
			buf := make([]byte, stackTraceBufMax)
			stacklen := runtime.Stack(buf, true)
			os.Stderr.Write(buf[:stacklen])
		}
	}()
}

// newProcess builds the runtime process the subcommands operate on.
func newProcess(ctx context.Context, cfg *configuration.Config) (*posix.Process, error) {
	sys, err := vfs.NewOS()
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	p, err := posix.New(sys, posix.Options{
		Initial:    cfg.FDInitial,
		Chunk:      cfg.FDChunk,
		Max:        cfg.FDMax,
		BufferSize: cfg.StreamBuffer,
		NameMax:    cfg.NameMax,
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Context:    ctx,
	})
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return p, nil
}

type app struct {
	cfg *configuration.Config
	ctx context.Context //nolint:containedctx
}

func (a *app) process() (*posix.Process, error) {
	return newProcess(a.ctx, a.cfg)
}

func newRootCommand(a *app) *cobra.Command {
	var cleanup func()

	rootCmd := &cobra.Command{
		Use:   "posixrt",
		Short: "Exercise the POSIX descriptor and stream runtime",
		Long: `posixrt runs file tree walks, stream copies and descriptor operations
through the runtime's descriptor table, stream layer and nftw walker.

Examples:
  posixrt walk /etc --max-depth 2          # pre-order walk
  posixrt walk . --post --prune .git       # post-order, skipping .git
  posixrt walk src --checksum --yaml       # BLAKE3 of every file, YAML summary
  posixrt cat --lock notes.txt             # copy under a shared record lock
  posixrt fds a.txt b.txt                  # show the descriptor table`,
		SilenceUsage: true,
		Version:      Version,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			provider := configuration.NewConfigProvider(afero.NewOsFs())

			cfg, err := provider.Load(configFiles...)
			if err != nil {
				return err //nolint:wrapcheck
			}

			if verbose {
				cfg.LogLevel = slog.LevelDebug
			}

			if cleanup, err = setupLogging(cfg.LogLevel); err != nil {
				return err
			}

			slog.Debug("Loaded configuration", "initial", cfg.FDInitial, "chunk", cfg.FDChunk,
				"max", cfg.FDMax, "buffer", cfg.StreamBuffer, "nameMax", cfg.NameMax)

			a.cfg = cfg

			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if cleanup != nil {
				cleanup()
			}
		},
	}

	rootCmd.PersistentFlags().StringSliceVarP(&configFiles, "config", "c", nil, "env-style configuration file(s)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file")

	rootCmd.AddCommand(newWalkCommand(a), newCatCommand(a), newFdsCommand(a))

	return rootCmd
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setupSignalHandlers(cancel)

	a := &app{ctx: ctx}

	if err := newRootCommand(a).ExecuteContext(ctx); err != nil {
		slog.Error("Command failed", "err", err)
		cancel()
		os.Exit(1)
	}
}
