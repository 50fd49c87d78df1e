// Package vfs provides the native system primitives the runtime is layered
// on: path resolution against a process working directory, metadata
// queries, opening files as descriptor backends and directory streams.
// The native file system is an [afero.Fs], so the same code runs against
// the operating system and against in-memory trees.
package vfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/desertwitch/posixrt/internal/backend"
	"github.com/desertwitch/posixrt/internal/errno"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// System is the native system of one process. The working directory is
// process-wide state and guarded accordingly.
type System struct {
	fs  afero.Fs
	mu  sync.RWMutex
	cwd string
}

// New returns a pointer to a new [System] on fsys, starting in cwd. An
// empty or relative cwd is resolved against the root.
func New(fsys afero.Fs, cwd string) *System {
	return &System{
		fs:  fsys,
		cwd: filepath.Join(string(filepath.Separator), cwd),
	}
}

// NewOS returns a pointer to a new [System] on the operating system's file
// system, starting in the current working directory.
func NewOS() (*System, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("(vfs-new) %w", errno.Translate(err))
	}

	return New(afero.NewOsFs(), wd), nil
}

// Fs returns the underlying file system.
func (s *System) Fs() afero.Fs { //nolint:ireturn
	return s.fs
}

// Abs resolves name against the working directory.
func (s *System) Abs(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return filepath.Join(s.cwd, name)
}

// Getwd returns the working directory.
func (s *System) Getwd() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cwd
}

// Chdir changes the working directory.
func (s *System) Chdir(name string) error {
	if name == "" {
		return fmt.Errorf("(vfs-chdir) %w", unix.ENOENT)
	}

	target := s.Abs(name)

	fi, err := s.fs.Stat(target)
	if err != nil {
		return fmt.Errorf("(vfs-chdir) %w", errno.Translate(err))
	}

	if !fi.IsDir() {
		return fmt.Errorf("(vfs-chdir) %w: %s", ErrNotDirectory, target)
	}

	s.mu.Lock()
	s.cwd = target
	s.mu.Unlock()

	return nil
}

// Stat returns the file information of name, following symbolic links.
func (s *System) Stat(name string) (os.FileInfo, error) {
	fi, err := s.fs.Stat(s.Abs(name))
	if err != nil {
		return nil, fmt.Errorf("(vfs-stat) %w", errno.Translate(err))
	}

	return fi, nil
}

// Lstat returns the file information of name without following a final
// symbolic link. File systems without symbolic links answer like [Stat].
func (s *System) Lstat(name string) (os.FileInfo, error) {
	target := s.Abs(name)

	var fi os.FileInfo
	var err error

	if lst, ok := s.fs.(afero.Lstater); ok {
		fi, _, err = lst.LstatIfPossible(target)
	} else {
		fi, err = s.fs.Stat(target)
	}

	if err != nil {
		return nil, fmt.Errorf("(vfs-lstat) %w", errno.Translate(err))
	}

	return fi, nil
}

// Chmod changes the permissions of name.
func (s *System) Chmod(name string, mode os.FileMode) error {
	if err := s.fs.Chmod(s.Abs(name), mode); err != nil {
		return fmt.Errorf("(vfs-chmod) %w", errno.Translate(err))
	}

	return nil
}

// OpenFile opens name on the native file system.
func (s *System) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) { //nolint:ireturn
	f, err := s.fs.OpenFile(s.Abs(name), flag, perm)
	if err != nil {
		return nil, fmt.Errorf("(vfs-openfile) %w", errno.Translate(err))
	}

	return f, nil
}

// Open opens name as a descriptor backend. Directories become
// [backend.Directory] handles and may only be opened read-only; O_DIRECTORY
// demands one.
func (s *System) Open(name string, flag int, perm os.FileMode) (backend.Backend, error) { //nolint:ireturn
	if name == "" {
		return nil, fmt.Errorf("(vfs-open) %w", unix.ENOENT)
	}

	target := s.Abs(name)

	fi, err := s.fs.Stat(target)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("(vfs-open) %w", errno.Translate(err))
	}

	isDir := err == nil && fi.IsDir()

	if flag&unix.O_DIRECTORY != 0 && !isDir {
		if err != nil {
			return nil, fmt.Errorf("(vfs-open) %w", errno.Translate(err))
		}

		return nil, fmt.Errorf("(vfs-open) %w: %s", ErrNotDirectory, target)
	}

	if isDir && flag&(unix.O_WRONLY|unix.O_RDWR) != 0 {
		return nil, fmt.Errorf("(vfs-open) %w: %s", ErrIsDirectory, target)
	}

	f, err := s.fs.OpenFile(target, flag&^(unix.O_DIRECTORY|unix.O_NONBLOCK|unix.O_CLOEXEC), perm)
	if err != nil {
		return nil, fmt.Errorf("(vfs-open) %w", errno.Translate(err))
	}

	if isDir {
		return backend.NewDirectory(s.fs, f), nil
	}

	return backend.NewFile(s.fs, f), nil
}

// OpenDir opens a directory stream on name.
func (s *System) OpenDir(name string) (*Dir, error) {
	target := s.Abs(name)

	fi, err := s.fs.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("(vfs-opendir) %w", errno.Translate(err))
	}

	if !fi.IsDir() {
		return nil, fmt.Errorf("(vfs-opendir) %w: %s", ErrNotDirectory, target)
	}

	f, err := s.fs.Open(target)
	if err != nil {
		return nil, fmt.Errorf("(vfs-opendir) %w", errno.Translate(err))
	}

	return &Dir{file: f, path: target}, nil
}

// Device returns the device a file resides on. File systems that do not
// report devices place every file on device 0.
func Device(fi os.FileInfo) uint64 {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return uint64(st.Dev) //nolint:unconvert
	}

	return 0
}
