package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"strings"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/desertwitch/posixrt/internal/configuration"
	"github.com/desertwitch/posixrt/internal/fdtable"
	"github.com/desertwitch/posixrt/internal/posix"
	"github.com/desertwitch/posixrt/internal/vfs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"
)

func newTestProcess(t *testing.T) (*app, *posix.Process, *bytes.Buffer) {
	t.Helper()

	fsys := afero.NewMemMapFs()
	for _, dir := range []string{"/w", "/w/a", "/w/a/skip", "/w/b"} {
		require.NoError(t, fsys.MkdirAll(dir, 0o755))
	}
	require.NoError(t, afero.WriteFile(fsys, "/w/a/x", []byte("hello"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/w/a/skip/y", []byte("hidden"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/w/b/z", []byte("world!"), 0o644))

	a := &app{cfg: configuration.Defaults(), ctx: context.Background()}
	out := &bytes.Buffer{}

	p, err := posix.New(vfs.New(fsys, "/"), posix.Options{
		Initial:    a.cfg.FDInitial,
		BufferSize: a.cfg.StreamBuffer,
		NameMax:    a.cfg.NameMax,
		Stdout:     out,
	})
	require.NoError(t, err)

	return a, p, out
}

func TestRunWalk_Success_YAMLSummary(t *testing.T) {
	t.Parallel()

	a, p, out := newTestProcess(t)

	stdout := p.Fdopen(1, "w")
	require.NotNil(t, stdout)

	opts := &walkOptions{maxDepth: -1, prune: []string{"skip"}, checksum: true, jobs: 2, yaml: true}
	require.NoError(t, runWalk(context.Background(), a, p, stdout, "/w", opts))
	assert.Len(t, p.Table.Snapshot(), 3)
	require.NoError(t, p.Exit())

	var summary walkSummary
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &summary))

	assert.Equal(t, "/w", summary.Root)
	assert.Equal(t, 4, summary.Entries["D"])
	assert.Equal(t, 2, summary.Entries["F"])
	assert.Equal(t, uint64(11), summary.Bytes)
	assert.Equal(t, []string{"/w/a/skip"}, summary.Pruned)

	require.Len(t, summary.Checksums, 2)
	assert.Equal(t, "/w/a/x", summary.Checksums[0].Path)
	assert.Equal(t, int64(5), summary.Checksums[0].Size)

	want := blake3.Sum256([]byte("hello"))
	assert.Equal(t, hex.EncodeToString(want[:]), summary.Checksums[0].Sum)

	require.NotNil(t, summary.Hashing)
	assert.Equal(t, 2, summary.Hashing.Success)
}

func TestRunWalk_Success_PostOrderPrune(t *testing.T) {
	t.Parallel()

	a, p, out := newTestProcess(t)

	stdout := p.Fdopen(1, "w")
	require.NotNil(t, stdout)

	opts := &walkOptions{maxDepth: -1, post: true, prune: []string{"skip"}, checksum: true, jobs: 2, yaml: true}
	require.NoError(t, runWalk(context.Background(), a, p, stdout, "/w", opts))
	require.NoError(t, p.Exit())

	var summary walkSummary
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &summary))

	assert.Equal(t, 4, summary.Entries["DP"])
	assert.Equal(t, 2, summary.Entries["F"])
	assert.Zero(t, summary.Entries["D"])
	assert.Equal(t, uint64(11), summary.Bytes)
	assert.Equal(t, []string{"/w/a/skip"}, summary.Pruned)

	require.Len(t, summary.Checksums, 2)
	assert.Equal(t, "/w/a/x", summary.Checksums[0].Path)
	assert.Equal(t, "/w/b/z", summary.Checksums[1].Path)
}

func TestUnderPruned_Success(t *testing.T) {
	t.Parallel()

	prune := mapset.NewThreadUnsafeSet("skip", ".git")

	assert.True(t, underPruned("/a/skip/y", prune))
	assert.True(t, underPruned("/.git/objects", prune))
	assert.False(t, underPruned("/a/skip", prune))
	assert.False(t, underPruned("/a/x", prune))
	assert.False(t, underPruned("", prune))
}

func TestRunWalk_Success_Listing(t *testing.T) {
	t.Parallel()

	a, p, out := newTestProcess(t)

	stdout := p.Fdopen(1, "w")
	require.NotNil(t, stdout)

	opts := &walkOptions{maxDepth: 1, post: true}
	require.NoError(t, runWalk(context.Background(), a, p, stdout, "/w", opts))
	require.NoError(t, p.Exit())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[3], "3 entries")
	assert.Contains(t, lines[2], "/w")
}

func TestRunWalk_Fail(t *testing.T) {
	t.Parallel()

	a, p, _ := newTestProcess(t)

	err := runWalk(context.Background(), a, p, io.Discard, "", &walkOptions{maxDepth: -1})
	require.ErrorIs(t, err, unix.EFAULT)

	err = runWalk(context.Background(), a, p, io.Discard, "/w", &walkOptions{maxDepth: -1, mount: true, phys: true, chdir: true, post: true})
	require.NoError(t, err)
}

func TestCatFile_Success(t *testing.T) {
	t.Parallel()

	_, p, out := newTestProcess(t)

	stdout := p.Fdopen(1, "w")
	require.NotNil(t, stdout)

	require.NoError(t, catFile(p, stdout, "/w/a/x", true))
	require.NoError(t, catFile(p, stdout, "/w/b/z", false))
	assert.Len(t, p.Table.Snapshot(), 3)
	require.NoError(t, p.Exit())

	assert.Equal(t, "helloworld!", out.String())
}

func TestCatFile_Fail(t *testing.T) {
	t.Parallel()

	_, p, _ := newTestProcess(t)

	stdout := p.Fdopen(1, "w")
	require.NotNil(t, stdout)

	require.ErrorIs(t, catFile(p, stdout, "/w/nope", false), unix.ENOENT)
	require.ErrorIs(t, catFile(p, stdout, "/w/a", false), unix.EISDIR)
}

func TestDescribeTable_Success(t *testing.T) {
	t.Parallel()

	_, p, _ := newTestProcess(t)

	require.NoError(t, openAll(p, []string{"/w/a/x"}, &fdsOptions{dup: true, above: 10}))

	entries := describeTable(p)
	require.Len(t, entries, 6)

	fds := make([]int, 0, len(entries))
	for _, e := range entries {
		fds = append(fds, e.FD)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 10}, fds)

	assert.Equal(t, "file", entries[3].Kind)
	assert.Equal(t, []string{"cloexec"}, entries[3].Flags)
	assert.Empty(t, entries[4].Flags)
	assert.Equal(t, 3, entries[3].Sharing)
	assert.Equal(t, "0", entries[3].Status)
	assert.Equal(t, entries[3].Handle, entries[5].Handle)

	rendered := renderTable(entries)
	assert.Contains(t, rendered, "KIND")
	assert.Contains(t, rendered, "/w/a/x")
}

func TestDescribeTable_Fail(t *testing.T) {
	t.Parallel()

	_, p, _ := newTestProcess(t)

	require.ErrorIs(t, openAll(p, []string{"/w/none"}, &fdsOptions{}), unix.ENOENT)
}

func TestFlagNames_Success(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"directory", "stdio"}, flagNames(fdtable.FlagDirectory|fdtable.FlagStdio))
	assert.Empty(t, flagNames(fdtable.FlagInUse))
	assert.Equal(t, "O_NONBLOCK|O_ASYNC", statusFlags(unix.O_NONBLOCK|unix.O_ASYNC))
	assert.Equal(t, "O_PATH", statusFlags(unix.O_PATH))
	assert.Equal(t, "0", statusFlags(0))
	assert.Equal(t, "-", statusFlags(-1))
}

func TestSlogManager_Success(t *testing.T) {
	t.Parallel()

	m := NewSlogManager()

	var debug, info bytes.Buffer
	m.AddHandler("debug", slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m.AddHandler("info", slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger := slog.New(m).With("fd", 3)
	logger.Debug("only debug")
	logger.Info("both")

	assert.Contains(t, debug.String(), "only debug")
	assert.Contains(t, debug.String(), "fd=3")
	assert.NotContains(t, info.String(), "only debug")
	assert.Contains(t, info.String(), "both")

	m.RemoveHandler("debug")
	assert.False(t, m.Enabled(context.Background(), slog.LevelDebug))
}
