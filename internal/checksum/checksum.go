// Package checksum computes BLAKE3 digests of files read through runtime
// streams.
package checksum

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/desertwitch/posixrt/internal/fdtable"
	"github.com/desertwitch/posixrt/internal/stream"
	"github.com/desertwitch/posixrt/internal/vfs"
	"github.com/zeebo/blake3"
)

// ErrCanceled is returned when hashing was cancelled.
var ErrCanceled = errors.New("checksum canceled")

//nolint:containedctx
type contextReader struct {
	ctx    context.Context
	reader io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	select {
	case <-cr.ctx.Done():
		return 0, context.Canceled
	default:
		return cr.reader.Read(p)
	}
}

// Result is the digest of one file.
type Result struct {
	Path string `yaml:"path"`
	Size int64  `yaml:"size"`
	Sum  string `yaml:"blake3"`
}

// Hasher hashes files of one process. Every file is read on its own
// descriptor and stream, so a Hasher is safe for concurrent use.
type Hasher struct {
	table   *fdtable.Table
	sys     *vfs.System
	bufSize int
}

// NewHasher returns a pointer to a new [Hasher].
func NewHasher(table *fdtable.Table, sys *vfs.System, bufSize int) *Hasher {
	return &Hasher{
		table:   table,
		sys:     sys,
		bufSize: bufSize,
	}
}

// Sum hashes the file at path. The size is the stream position after the
// last byte was read.
func (h *Hasher) Sum(ctx context.Context, path string) (Result, error) {
	s, err := stream.Open(h.table, h.sys, path, "r", stream.WithBufferSize(h.bufSize))
	if err != nil {
		return Result{}, fmt.Errorf("(checksum-sum) %w", err)
	}

	defer func() {
		if err := s.Close(); err != nil {
			slog.Warn("Failed to close hashed file", "path", path, "err", err)
		}
	}()

	hasher := blake3.New()

	if _, err := io.Copy(hasher, &contextReader{ctx: ctx, reader: s}); err != nil {
		if errors.Is(err, context.Canceled) {
			return Result{}, fmt.Errorf("(checksum-sum) %w: %w", ErrCanceled, err)
		}

		return Result{}, fmt.Errorf("(checksum-sum) %w", err)
	}

	size, err := s.Tell()
	if err != nil {
		return Result{}, fmt.Errorf("(checksum-sum) %w", err)
	}

	return Result{
		Path: path,
		Size: size,
		Sum:  hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}
