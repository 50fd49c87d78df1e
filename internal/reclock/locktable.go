package reclock

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/moby/locker"
)

// fileLocks are the locks granted on one file. changed is closed and
// replaced whenever locks are released or replaced, waking blocked requests.
type fileLocks struct {
	locks   []Lock
	changed chan struct{}
}

func (f *fileLocks) conflict(l Lock) (Lock, bool) {
	for _, held := range f.locks {
		if held.conflicts(l) {
			return held, true
		}
	}

	return Lock{}, false
}

// remove cuts r out of owner's locks, splitting locks that straddle it.
func (f *fileLocks) remove(owner uuid.UUID, r Range) bool {
	kept := f.locks[:0:0]
	removed := false

	for _, held := range f.locks {
		if held.Owner != owner || !held.overlaps(r) {
			kept = append(kept, held)

			continue
		}

		removed = true

		if held.Start < r.Start {
			left := held
			left.End = r.Start
			kept = append(kept, left)
		}

		if held.End > r.End {
			right := held
			right.Start = r.End
			kept = append(kept, right)
		}
	}

	f.locks = kept

	return removed
}

// insert places l, replacing what its owner held in the range and merging
// it with adjoining locks of the same owner and type. It reports whether
// the owner held anything in the range before.
func (f *fileLocks) insert(l Lock) bool {
	replaced := f.remove(l.Owner, l.Range)

	merged := l
	kept := f.locks[:0:0]

	for _, held := range f.locks {
		if held.Owner == l.Owner && held.Type == l.Type &&
			held.Start <= merged.End && merged.Start <= held.End {
			merged.Start = min(merged.Start, held.Start)
			merged.End = max(merged.End, held.End)

			continue
		}

		kept = append(kept, held)
	}

	kept = append(kept, merged)

	slices.SortFunc(kept, func(a, b Lock) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})

	f.locks = kept

	return replaced
}

func (f *fileLocks) notify() {
	close(f.changed)
	f.changed = make(chan struct{})
}

// LockTable is an in-memory [Arbiter]. Requests on the same file are
// serialized by a per-file lock, different files do not contend.
type LockTable struct {
	keys  *locker.Locker
	mu    sync.Mutex
	files map[string]*fileLocks
}

// NewLockTable returns a pointer to a new, empty [LockTable].
func NewLockTable() *LockTable {
	return &LockTable{
		keys:  locker.New(),
		files: make(map[string]*fileLocks),
	}
}

// entry returns the locks of key, creating them when missing. The per-file
// lock of key must be held.
func (t *LockTable) entry(key string) *fileLocks {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.files[key]
	if !ok {
		f = &fileLocks{changed: make(chan struct{})}
		t.files[key] = f
	}

	return f
}

// prune forgets key once no locks remain on it. The per-file lock of key
// must be held.
func (t *LockTable) prune(key string, f *fileLocks) {
	if len(f.locks) > 0 {
		return
	}

	t.mu.Lock()
	delete(t.files, key)
	t.mu.Unlock()
}

func (t *LockTable) Test(key string, l Lock) (Lock, bool) {
	t.keys.Lock(key)
	defer t.keys.Unlock(key) //nolint:errcheck

	f := t.entry(key)
	defer t.prune(key, f)

	return f.conflict(l)
}

func (t *LockTable) Acquire(ctx context.Context, key string, l Lock, wait bool) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("(locktable-acquire) %w: %w", ErrInterrupted, err)
		}

		t.keys.Lock(key)

		f := t.entry(key)

		held, conflict := f.conflict(l)
		if !conflict {
			// A downgrade or a narrower range may unblock waiters.
			if f.insert(l) {
				f.notify()
			}
			t.keys.Unlock(key) //nolint:errcheck

			return nil
		}

		changed := f.changed
		t.prune(key, f)
		t.keys.Unlock(key) //nolint:errcheck

		if !wait {
			return fmt.Errorf("(locktable-acquire) %w: %s holds [%d,%d)", ErrConflict, held.Owner, held.Start, held.End)
		}

		slog.Debug("Waiting for record lock", "file", key, "owner", l.Owner, "holder", held.Owner)

		select {
		case <-changed:
		case <-ctx.Done():
			return fmt.Errorf("(locktable-acquire) %w: %w", ErrInterrupted, ctx.Err())
		}
	}
}

func (t *LockTable) Release(key string, l Lock) {
	t.keys.Lock(key)
	defer t.keys.Unlock(key) //nolint:errcheck

	f := t.entry(key)
	if f.remove(l.Owner, l.Range) {
		f.notify()
	}

	t.prune(key, f)
}

func (t *LockTable) ReleaseOwner(key string, owner uuid.UUID) {
	t.keys.Lock(key)
	defer t.keys.Unlock(key) //nolint:errcheck

	f := t.entry(key)
	if f.remove(owner, Range{Start: 0, End: EOF}) {
		f.notify()
	}

	t.prune(key, f)
}

// Locks returns a copy of the locks held on key, ordered by start offset.
func (t *LockTable) Locks(key string) []Lock {
	t.keys.Lock(key)
	defer t.keys.Unlock(key) //nolint:errcheck

	f := t.entry(key)
	defer t.prune(key, f)

	return slices.Clone(f.locks)
}

// Holders returns the owners holding at least one lock on key.
func (t *LockTable) Holders(key string) mapset.Set[uuid.UUID] {
	holders := mapset.NewThreadUnsafeSet[uuid.UUID]()

	for _, l := range t.Locks(key) {
		holders.Add(l.Owner)
	}

	return holders
}
