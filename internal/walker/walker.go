// Package walker implements a recursive file tree walk in the manner of
// nftw: every path below a root is classified and handed to a callback,
// directories either before or after their contents, with optional pruning,
// a depth limit, and descending by changing the working directory.
package walker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/desertwitch/posixrt/internal/vfs"
)

// DefaultNameMax is the longest directory entry name accepted by default.
const DefaultNameMax = 255

// Flag modifies a walk.
type Flag int

const (
	// Phys does not follow symbolic links; they are reported as [SL].
	Phys Flag = 1 << iota
	// Mount stays on the file system of the root path.
	Mount
	// Chdir changes the working directory into each directory before
	// walking its contents.
	Chdir
	// Depth reports directories after their contents, as [DP].
	Depth

	allFlags = Phys | Mount | Chdir | Depth
)

// Kind classifies a visited path.
type Kind int

const (
	F   Kind = iota // regular file
	D               // directory, visited before its contents
	DNR             // directory that cannot be read
	NS              // stat failed
	SL              // symbolic link (with Phys)
	DP              // directory, visited after its contents (with Depth)
	SLN             // symbolic link to a missing file
)

func (k Kind) String() string {
	switch k {
	case F:
		return "F"
	case D:
		return "D"
	case DNR:
		return "DNR"
	case NS:
		return "NS"
	case SL:
		return "SL"
	case DP:
		return "DP"
	case SLN:
		return "SLN"
	default:
		return "?"
	}
}

// Frame locates a visited path within the walk.
type Frame struct {
	// Base is the offset of the base name within the path.
	Base int
	// Level is the depth below the root, which is at level 0.
	Level int
}

// VisitFunc is called for every path of the walk. info is nil for [NS].
// A non-nil error other than [SkipDir] ends the walk and is returned by
// [Walker.Walk].
type VisitFunc func(path string, info os.FileInfo, kind Kind, frame Frame) error

// FileSystem is what a walk needs from the native system.
type FileSystem interface {
	Abs(name string) string
	Getwd() string
	Chdir(name string) error
	Stat(name string) (os.FileInfo, error)
	Lstat(name string) (os.FileInfo, error)
	OpenDir(name string) (*vfs.Dir, error)
}

// Walker walks file trees of one native system.
type Walker struct {
	sys     FileSystem
	nameMax int
}

// New returns a pointer to a new [Walker]. A nameMax of zero or less
// selects [DefaultNameMax].
func New(sys FileSystem, nameMax int) *Walker {
	if nameMax <= 0 {
		nameMax = DefaultNameMax
	}

	return &Walker{
		sys:     sys,
		nameMax: nameMax,
	}
}

type walk struct {
	*Walker
	ctx    context.Context //nolint:containedctx
	fn     VisitFunc
	depth  int
	flags  Flag
	device uint64
}

// Walk walks the tree rooted at path, descending at most depth levels.
func (w *Walker) Walk(ctx context.Context, path string, fn VisitFunc, depth int, flags Flag) error {
	if path == "" || fn == nil {
		return fmt.Errorf("(walker-walk) %w", ErrFault)
	}

	if depth < 0 {
		return fmt.Errorf("(walker-walk) %w: depth %d", ErrInvalidArgument, depth)
	}

	if flags&^allFlags != 0 {
		return fmt.Errorf("(walker-walk) %w: flags %#x", ErrInvalidArgument, int(flags))
	}

	if n := len(path); n > 1 && path[n-1] == '/' && path[n-2] != '/' {
		path = path[:n-1]
	}

	wk := &walk{
		Walker: w,
		ctx:    ctx,
		fn:     fn,
		depth:  depth,
		flags:  flags,
	}

	if flags&Mount != 0 {
		if fi, err := w.sys.Stat(path); err == nil {
			wk.device = vfs.Device(fi)
		}
	}

	err := wk.visit(path, w.sys.Abs(path), baseIndex(path), 0)
	if err != nil && !errors.Is(err, SkipDir) {
		return fmt.Errorf("(walker-walk) %w", err)
	}

	return nil
}

// baseIndex returns the offset of the last path element, ignoring a final
// character.
func baseIndex(path string) int {
	if len(path) < 2 {
		return 0
	}

	return strings.LastIndexByte(path[:len(path)-1], '/') + 1
}

func (wk *walk) classify(abs string) (os.FileInfo, Kind, bool) {
	if wk.flags&Phys != 0 {
		fi, err := wk.sys.Lstat(abs)
		if err != nil {
			return nil, NS, true
		}

		return classifyMode(fi)
	}

	fi, err := wk.sys.Stat(abs)
	if err != nil {
		if lfi, lerr := wk.sys.Lstat(abs); lerr == nil && lfi.Mode()&os.ModeSymlink != 0 {
			return lfi, SLN, true
		}

		return nil, NS, true
	}

	return classifyMode(fi)
}

func classifyMode(fi os.FileInfo) (os.FileInfo, Kind, bool) {
	mode := fi.Mode()

	switch {
	case mode&os.ModeSymlink != 0:
		return fi, SL, true
	case mode.IsDir():
		if mode.Perm()&0o400 == 0 {
			return fi, DNR, true
		}

		return fi, D, true
	case mode.IsRegular():
		return fi, F, true
	default:
		return fi, 0, false
	}
}

// visit walks one path. path is in the caller's form, abs is the same path
// resolved against the working directory at the start of the walk.
func (wk *walk) visit(path string, abs string, base int, level int) error {
	if err := wk.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}

	if level > wk.depth {
		return nil
	}

	info, kind, ok := wk.classify(abs)
	if !ok {
		slog.Debug("Skipping unsupported file type", "path", path, "mode", info.Mode())

		return nil
	}

	if wk.flags&Mount != 0 && info != nil && vfs.Device(info) != wk.device {
		return nil
	}

	frame := Frame{Base: base, Level: level}

	switch kind {
	case D:
		return wk.directory(path, abs, info, frame)

	case DNR:
		if err := wk.fn(path, info, kind, frame); err != nil && !errors.Is(err, SkipDir) {
			return err
		}

		return nil

	default:
		return wk.fn(path, info, kind, frame)
	}
}

func (wk *walk) directory(path string, abs string, info os.FileInfo, frame Frame) error {
	if wk.flags&Depth == 0 {
		if err := wk.fn(path, info, D, frame); err != nil {
			if errors.Is(err, SkipDir) {
				return nil
			}

			return err
		}
	}

	if frame.Level < wk.depth {
		if err := wk.contents(path, abs, frame.Level); err != nil {
			return err
		}
	}

	if wk.flags&Depth != 0 {
		return wk.fn(path, info, DP, frame)
	}

	return nil
}

// contents walks the entries of a directory, optionally from inside it.
func (wk *walk) contents(path string, abs string, level int) (err error) {
	dir, err := wk.sys.OpenDir(abs)
	if err != nil {
		return err //nolint:wrapcheck
	}

	defer func() {
		if cerr := dir.Close(); cerr != nil {
			slog.Warn("Failed to close directory stream", "path", path, "err", cerr)
		}
	}()

	if wk.flags&Chdir != 0 {
		prev := wk.sys.Getwd()

		if err := wk.sys.Chdir(abs); err != nil {
			return err //nolint:wrapcheck
		}

		defer func() {
			if cerr := wk.sys.Chdir(prev); cerr != nil {
				slog.Warn("Failed to restore working directory", "path", prev, "err", cerr)

				if err == nil {
					err = cerr
				}
			}
		}()
	}

	next := make([]byte, 0, len(path)+wk.nameMax+2)
	next = append(next, path...)
	if !strings.HasSuffix(path, "/") {
		next = append(next, '/')
	}
	dirLen := len(next)

	nextAbs := abs
	if !strings.HasSuffix(nextAbs, "/") {
		nextAbs += "/"
	}

	for {
		name, err := dir.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err //nolint:wrapcheck
		}

		if len(name) > wk.nameMax {
			return fmt.Errorf("%w: %s%s", ErrNameTooLong, next[:dirLen], name)
		}

		next = append(next[:dirLen], name...)

		if err := wk.visit(string(next), nextAbs+name, dirLen, level+1); err != nil {
			if errors.Is(err, SkipDir) {
				return nil
			}

			return err
		}
	}
}
