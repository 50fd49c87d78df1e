package stream

import (
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/desertwitch/posixrt/internal/fdtable"
	"github.com/desertwitch/posixrt/internal/vfs"
)

// Registry tracks the open streams of a process so they can be flushed
// together at exit.
type Registry struct {
	streams mapset.Set[*Stream]
}

// NewRegistry returns a pointer to a new, empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		streams: mapset.NewSet[*Stream](),
	}
}

func (r *Registry) track(s *Stream) *Stream {
	s.registry = r
	r.streams.Add(s)

	return s
}

func (r *Registry) forget(s *Stream) {
	r.streams.Remove(s)
}

// Open is [Open] for a tracked stream.
func (r *Registry) Open(table *fdtable.Table, sys *vfs.System, name string, mode string, opts ...Option) (*Stream, error) {
	s, err := Open(table, sys, name, mode, opts...)
	if err != nil {
		return nil, err
	}

	return r.track(s), nil
}

// FromDescriptor is [FromDescriptor] for a tracked stream.
func (r *Registry) FromDescriptor(table *fdtable.Table, fd int, mode string, opts ...Option) (*Stream, error) {
	s, err := FromDescriptor(table, fd, mode, opts...)
	if err != nil {
		return nil, err
	}

	return r.track(s), nil
}

// Len returns the number of open tracked streams.
func (r *Registry) Len() int {
	return r.streams.Cardinality()
}

// FlushAll flushes every open tracked stream.
func (r *Registry) FlushAll() error {
	var errs []error

	for _, s := range r.streams.ToSlice() {
		if err := s.Flush(); err != nil && !errors.Is(err, ErrBadStream) {
			errs = append(errs, fmt.Errorf("descriptor %d: %w", s.Fileno(), err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("(stream-flushall) %w", err)
	}

	return nil
}

// CloseAll closes every open tracked stream.
func (r *Registry) CloseAll() error {
	var errs []error

	for _, s := range r.streams.ToSlice() {
		if err := s.Close(); err != nil && !errors.Is(err, ErrBadStream) {
			errs = append(errs, fmt.Errorf("descriptor %d: %w", s.Fileno(), err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("(stream-closeall) %w", err)
	}

	return nil
}
