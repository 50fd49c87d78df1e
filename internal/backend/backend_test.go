package backend

import (
	"bytes"
	"io"
	"net"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newMemFile(t *testing.T, content string) (afero.Fs, *File) {
	t.Helper()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/data.txt", []byte(content), 0o644))

	f, err := fsys.OpenFile("/data.txt", os.O_RDWR, 0)
	require.NoError(t, err)

	return fsys, NewFile(fsys, f)
}

func TestFile_Success_ReadSeek(t *testing.T) {
	t.Parallel()

	_, f := newMemFile(t, "hello world")

	buf := make([]byte, 5)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	pos, err := f.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pos)

	assert.Equal(t, KindFile, f.Kind())
	assert.NotEqual(t, NoHandle, f.Handle())
	assert.Equal(t, "/data.txt", f.Name())
	require.NoError(t, f.Close())
}

func TestFile_Success_ReadEOF(t *testing.T) {
	t.Parallel()

	_, f := newMemFile(t, "")

	n, err := f.Read(make([]byte, 4))
	assert.Equal(t, 0, n)
	require.ErrorIs(t, err, io.EOF)
}

func TestFile_Fail_Async(t *testing.T) {
	t.Parallel()

	_, f := newMemFile(t, "x")

	require.NoError(t, f.SetBlocking(false))
	require.ErrorIs(t, f.SetAsync(true), unix.EINVAL)
	require.NoError(t, f.SetAsync(false))
}

func TestFile_Success_Chmod(t *testing.T) {
	t.Parallel()

	fsys, f := newMemFile(t, "x")

	require.NoError(t, f.Chmod(0o600))

	fi, err := fsys.Stat("/data.txt")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestDirectory_Fail_ByteIO(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/d", 0o755))

	f, err := fsys.Open("/d")
	require.NoError(t, err)

	d := NewDirectory(fsys, f)

	_, err = d.Read(make([]byte, 1))
	require.ErrorIs(t, err, unix.EISDIR)

	_, err = d.Write([]byte("x"))
	require.ErrorIs(t, err, unix.EISDIR)

	_, err = d.Seek(10, io.SeekStart)
	require.ErrorIs(t, err, unix.EINVAL)

	pos, err := d.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)
}

func TestPipe_Success_NonBlockingRead(t *testing.T) {
	t.Parallel()

	r, w, err := NewPipePair()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	require.NoError(t, r.SetBlocking(false))

	_, err = r.Read(make([]byte, 8))
	require.ErrorIs(t, err, unix.EAGAIN)

	_, err = w.Write([]byte("hi"))
	require.NoError(t, err)

	buf := make([]byte, 8)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf[:n]))

	_, err = r.Seek(0, io.SeekCurrent)
	require.ErrorIs(t, err, unix.ESPIPE)
}

func TestSocket_Success_NonBlockingRead(t *testing.T) {
	t.Parallel()

	c1, c2 := net.Pipe()
	s := NewSocket(c1)
	defer s.Close()
	defer c2.Close()

	require.NoError(t, s.SetBlocking(false))

	_, err := s.Read(make([]byte, 4))
	require.ErrorIs(t, err, unix.EAGAIN)

	_, err = s.Stat()
	require.ErrorIs(t, err, unix.EINVAL)

	assert.Equal(t, KindSocket, s.Kind())
	assert.Empty(t, s.Name())
}

func TestConsole_Success_ReadWrite(t *testing.T) {
	t.Parallel()

	in := bytes.NewBufferString("input")
	out := &bytes.Buffer{}

	c := NewConsole(in, out)

	buf := make([]byte, 5)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "input", string(buf[:n]))

	_, err = c.Write([]byte("output"))
	require.NoError(t, err)
	assert.Equal(t, "output", out.String())

	_, err = c.Seek(0, io.SeekCurrent)
	require.ErrorIs(t, err, unix.ESPIPE)
}

func TestConsole_Fail_NoReader(t *testing.T) {
	t.Parallel()

	c := NewConsole(nil, &bytes.Buffer{})

	_, err := c.Read(make([]byte, 1))
	require.ErrorIs(t, err, unix.EBADF)
}
