package internal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsArchive(t *testing.T) {
	exts := []string{".zip", ".tar", ".gz", ".tgz", ".bz2", ".xz", ".rar", ".7z", ".zst", ".ZIP"}
	for _, e := range exts {
		assert.True(t, IsArchive("x"+e), e)
	}
	assert.False(t, IsArchive("file.txt"))
	assert.False(t, IsArchive("noext"))
}

func TestDepthCount(t *testing.T) {
	assert.Equal(t, 0, depthCount(""))
	assert.Equal(t, 0, depthCount("."))
	assert.Equal(t, 1, depthCount("a"))
	assert.Equal(t, 2, depthCount(filepath.Join("a", "b")))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a_b_c_d_e_f_g_h_i_j", Sanitize(`a/b\c:d*e?f"g<h>i|j`))
	assert.Equal(t, "plain", Sanitize("plain"))
}

func TestDetectRoots(t *testing.T) {
	roots := DetectRoots(runtime.GOOS)
	if runtime.GOOS == "windows" {
		assert.NotEmpty(t, roots)
		return
	}
	require.NotEmpty(t, roots)
	assert.Equal(t, "/", roots[0])
}

func enumerate(t *testing.T, root string, f EnumerationFilter) []string {
	t.Helper()
	seq, err := EnumerateFiles(context.Background(), root, f)
	require.NoError(t, err)
	var out []string
	for p := range seq {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

func TestEnumerateFiles_AllFiles(t *testing.T) {
	dir := tempDir(t)
	a := writeFile(t, dir, "a.log", "x")
	b := writeFile(t, dir, filepath.Join("sub", "b.txt"), "y")
	c := writeFile(t, dir, filepath.Join("sub", "deep", "c.log"), "z")

	got := enumerate(t, dir, nil)
	want := []string{a, b, c}
	slices.Sort(want)
	assert.Equal(t, want, got)
}

func TestEnumerateFiles_MissingRoot(t *testing.T) {
	_, err := EnumerateFiles(context.Background(), filepath.Join(tempDir(t), "nope"), nil)
	assert.True(t, errors.Is(err, ErrPathNotFound), "got %v", err)
}

func TestEnumerateFiles_RootIsFile(t *testing.T) {
	f := writeFile(t, tempDir(t), "a.log", "x")
	_, err := EnumerateFiles(context.Background(), f, nil)
	assert.ErrorIs(t, err, ErrPathNotFound)
}

func TestEnumerateFiles_Filters(t *testing.T) {
	dir := tempDir(t)
	keep := writeFile(t, dir, "app.log", "x")
	writeFile(t, dir, "notes.txt", "x")
	writeFile(t, dir, filepath.Join("node_modules", "dep.log"), "x")
	writeFile(t, dir, filepath.Join(".git", "HEAD.log"), "x")
	writeFile(t, dir, ".hidden.log", "x")
	deep := writeFile(t, dir, filepath.Join("a", "b.log"), "x")
	writeFile(t, dir, filepath.Join("a", "b", "c.log"), "x")
	writeFile(t, dir, "bundle.zip", "x")

	f := NewFileFilter(FileFilterOptions{
		Whitelist:   []string{"log"},
		ExcludeDirs: []string{"node_modules"},
		SkipHidden:  true,
		MaxDepth:    2,
	})
	got := enumerate(t, dir, f)
	want := []string{keep, deep}
	slices.Sort(want)
	assert.Equal(t, want, got)
}

func TestEnumerateFiles_SymlinksNotFollowed(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := tempDir(t)
	f := writeFile(t, dir, filepath.Join("sub", "a.log"), "x")
	// loop back to the root
	require.NoError(t, os.Symlink(dir, filepath.Join(dir, "sub", "loop")))
	require.NoError(t, os.Symlink(f, filepath.Join(dir, "link.log")))

	assert.Equal(t, []string{f}, enumerate(t, dir, nil))
}

func TestEnumerateFiles_CancelledContext(t *testing.T) {
	dir := tempDir(t)
	writeFile(t, dir, "a.log", "x")
	writeFile(t, dir, "b.log", "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	seq, err := EnumerateFiles(ctx, dir, nil)
	require.NoError(t, err)
	n := 0
	for range seq {
		n++
	}
	assert.Zero(t, n)
}

func TestEnumerateFiles_Break(t *testing.T) {
	dir := tempDir(t)
	for i := range 10 {
		writeFile(t, dir, filepath.Join("d", string(rune('a'+i))+".log"), "x")
	}
	seq, err := EnumerateFiles(context.Background(), dir, nil)
	require.NoError(t, err)
	n := 0
	for range seq {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestEnumerateFiles_UnreadableDirSkipped(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	dir := tempDir(t)
	ok := writeFile(t, dir, "ok.log", "x")
	locked := filepath.Join(dir, "locked")
	writeFile(t, locked, "secret.log", "x")
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { _ = os.Chmod(locked, 0755) })

	assert.Equal(t, []string{ok}, enumerate(t, dir, nil))
}
