package reclock

import (
	"context"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/desertwitch/posixrt/internal/backend"
	"github.com/desertwitch/posixrt/internal/fdtable"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type fixture struct {
	fs      afero.Fs
	table   *fdtable.Table
	locks   *LockTable
	manager *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/db", make([]byte, 100), 0o644))

	tbl, err := fdtable.New(8)
	require.NoError(t, err)

	locks := NewLockTable()

	return &fixture{
		fs:      fsys,
		table:   tbl,
		locks:   locks,
		manager: NewManager(tbl, locks),
	}
}

func (f *fixture) open(t *testing.T) int {
	t.Helper()

	file, err := f.fs.OpenFile("/db", os.O_RDWR, 0)
	require.NoError(t, err)

	fd, err := f.table.Install(backend.NewFile(f.fs, file), 0)
	require.NoError(t, err)

	return fd
}

func flock(typ int16, whence int16, start, length int64) *unix.Flock_t {
	return &unix.Flock_t{Type: typ, Whence: whence, Start: start, Len: length}
}

func TestRequest_Success_SharedReadLocks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a, b := f.open(t), f.open(t)
	ctx := context.Background()

	require.NoError(t, f.manager.Request(ctx, a, SetLock, flock(unix.F_RDLCK, io.SeekStart, 0, 10)))
	require.NoError(t, f.manager.Request(ctx, b, SetLock, flock(unix.F_RDLCK, io.SeekStart, 5, 10)))

	assert.Equal(t, 2, f.locks.Holders("/db").Cardinality())
}

func TestRequest_Fail_WriteConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a, b := f.open(t), f.open(t)
	ctx := context.Background()

	require.NoError(t, f.manager.Request(ctx, a, SetLock, flock(unix.F_WRLCK, io.SeekStart, 0, 10)))

	err := f.manager.Request(ctx, b, SetLock, flock(unix.F_RDLCK, io.SeekStart, 9, 1))
	require.ErrorIs(t, err, unix.EAGAIN)

	require.NoError(t, f.manager.Request(ctx, b, SetLock, flock(unix.F_WRLCK, io.SeekStart, 10, 5)))
}

func TestRequest_Success_GetLock(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a, b := f.open(t), f.open(t)
	ctx := context.Background()

	require.NoError(t, f.manager.Request(ctx, a, SetLock, flock(unix.F_WRLCK, io.SeekEnd, -20, 0)))

	query := flock(unix.F_RDLCK, io.SeekStart, 0, 0)
	require.NoError(t, f.manager.Request(ctx, b, GetLock, query))
	assert.Equal(t, int16(unix.F_WRLCK), query.Type)
	assert.Equal(t, int64(80), query.Start)
	assert.Equal(t, int64(0), query.Len)
	assert.Equal(t, int16(io.SeekStart), query.Whence)

	free := flock(unix.F_WRLCK, io.SeekStart, 0, 80)
	require.NoError(t, f.manager.Request(ctx, b, GetLock, free))
	assert.Equal(t, int16(unix.F_UNLCK), free.Type)
}

func TestRequest_Success_DuplicatesShareOwnership(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := f.open(t)
	ctx := context.Background()

	dup, err := f.table.Dup(a)
	require.NoError(t, err)

	require.NoError(t, f.manager.Request(ctx, a, SetLock, flock(unix.F_WRLCK, io.SeekStart, 0, 10)))
	require.NoError(t, f.manager.Request(ctx, dup, SetLock, flock(unix.F_WRLCK, io.SeekStart, 0, 10)))

	require.NoError(t, f.table.Close(a))
	assert.Len(t, f.locks.Locks("/db"), 1)

	require.NoError(t, f.table.Close(dup))
	assert.Empty(t, f.locks.Locks("/db"))
}

func TestRequest_Success_UnlockSplits(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a, b := f.open(t), f.open(t)
	ctx := context.Background()

	require.NoError(t, f.manager.Request(ctx, a, SetLock, flock(unix.F_WRLCK, io.SeekStart, 0, 30)))
	require.NoError(t, f.manager.Request(ctx, a, SetLock, flock(unix.F_UNLCK, io.SeekStart, 10, 10)))

	locks := f.locks.Locks("/db")
	require.Len(t, locks, 2)
	assert.Equal(t, Range{Start: 0, End: 10}, locks[0].Range)
	assert.Equal(t, Range{Start: 20, End: 30}, locks[1].Range)

	require.NoError(t, f.manager.Request(ctx, b, SetLock, flock(unix.F_WRLCK, io.SeekStart, 10, 10)))
}

func TestRequest_Success_CurrentWhence(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := f.open(t)
	ctx := context.Background()

	_, err := f.table.Seek(a, 40, io.SeekStart)
	require.NoError(t, err)

	require.NoError(t, f.manager.Request(ctx, a, SetLock, flock(unix.F_RDLCK, io.SeekCurrent, -10, 5)))

	locks := f.locks.Locks("/db")
	require.Len(t, locks, 1)
	assert.Equal(t, Range{Start: 30, End: 35}, locks[0].Range)

	require.NoError(t, f.manager.Request(ctx, a, SetLock, flock(unix.F_RDLCK, io.SeekStart, 35, 5)))

	locks = f.locks.Locks("/db")
	require.Len(t, locks, 1, "adjoining locks of one owner merge")
	assert.Equal(t, Range{Start: 30, End: 40}, locks[0].Range)
}

func TestRequest_Success_WaitForRelease(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a, b := f.open(t), f.open(t)
	ctx := context.Background()

	require.NoError(t, f.manager.Request(ctx, a, SetLock, flock(unix.F_WRLCK, io.SeekStart, 0, 0)))

	done := make(chan error, 1)
	go func() {
		done <- f.manager.Request(ctx, b, SetLockWait, flock(unix.F_WRLCK, io.SeekStart, 0, 0))
	}()

	select {
	case err := <-done:
		t.Fatalf("request returned before release: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, f.manager.Request(ctx, a, SetLock, flock(unix.F_UNLCK, io.SeekStart, 0, 0)))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("waiting request was never granted")
	}
}

func TestRequest_Success_WaitForDowngrade(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a, b, c := f.open(t), f.open(t), f.open(t)
	ctx := context.Background()

	require.NoError(t, f.manager.Request(ctx, a, SetLock, flock(unix.F_WRLCK, io.SeekStart, 0, 10)))

	done := make(chan error, 1)
	go func() {
		done <- f.manager.Request(ctx, b, SetLockWait, flock(unix.F_RDLCK, io.SeekStart, 0, 10))
	}()

	select {
	case err := <-done:
		t.Fatalf("request returned before downgrade: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, f.manager.Request(ctx, a, SetLock, flock(unix.F_RDLCK, io.SeekStart, 0, 10)))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("waiting request was not granted after downgrade")
	}

	require.NoError(t, f.manager.Request(ctx, c, SetLock, flock(unix.F_RDLCK, io.SeekStart, 0, 10)))
	assert.Equal(t, 3, f.locks.Holders("/db").Cardinality())
}

func TestRequest_Fail_WaitCancelled(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a, b := f.open(t), f.open(t)

	require.NoError(t, f.manager.Request(context.Background(), a, SetLock, flock(unix.F_WRLCK, io.SeekStart, 0, 0)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := f.manager.Request(ctx, b, SetLockWait, flock(unix.F_RDLCK, io.SeekStart, 0, 1))
	require.ErrorIs(t, err, unix.EINTR)
}

func TestRequest_Fail_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := f.open(t)
	ctx := context.Background()

	require.ErrorIs(t, f.manager.Request(ctx, a, SetLock, flock(7, io.SeekStart, 0, 0)), unix.EINVAL)
	require.ErrorIs(t, f.manager.Request(ctx, a, SetLock, flock(unix.F_RDLCK, 9, 0, 0)), unix.EINVAL)
	require.ErrorIs(t, f.manager.Request(ctx, a, GetLock, flock(unix.F_UNLCK, io.SeekStart, 0, 0)), unix.EINVAL)
	require.ErrorIs(t, f.manager.Request(ctx, a, SetLock, flock(unix.F_RDLCK, io.SeekStart, -5, 0)), unix.EINVAL)
	require.ErrorIs(t, f.manager.Request(ctx, a, Command(99), flock(unix.F_RDLCK, io.SeekStart, 0, 0)), unix.EINVAL)
	require.ErrorIs(t, f.manager.Request(ctx, a, SetLock, nil), unix.EBADF)
	require.ErrorIs(t, f.manager.Request(ctx, 7, SetLock, flock(unix.F_RDLCK, io.SeekStart, 0, 0)), unix.EBADF)
}

func TestRequest_Fail_SocketAndDetached(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	c1, c2 := net.Pipe()
	defer c2.Close()

	sock, err := f.table.Install(backend.NewSocket(c1), 0)
	require.NoError(t, err)
	require.ErrorIs(t, f.manager.Request(ctx, sock, SetLock, flock(unix.F_RDLCK, io.SeekStart, 0, 0)), unix.EINVAL)

	require.NoError(t, f.table.InstallAt(5, nil, 0))
	require.ErrorIs(t, f.manager.Request(ctx, 5, SetLock, flock(unix.F_RDLCK, io.SeekStart, 0, 0)), unix.EBADF)
}
