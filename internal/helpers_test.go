package internal

import (
	"archive/zip"
	"cmp"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// tempDir returns a symlink-free temp dir so walker paths compare equal.
func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

type zipEntry struct {
	name, body string
	mod        time.Time
}

func writeZip(t *testing.T, path string, entries ...zipEntry) string {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	zw := zip.NewWriter(f)
	for _, e := range entries {
		mod := e.mod
		if mod.IsZero() {
			mod = time.Now()
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Deflate, Modified: mod})
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

// collect drains a result sequence, stopping at the first error.
func collect(seq iter.Seq2[SearchResult, error]) ([]SearchResult, error) {
	var out []SearchResult
	for res, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

func sortResults(rs []SearchResult) []SearchResult {
	slices.SortFunc(rs, func(a, b SearchResult) int {
		if c := cmp.Compare(a.FilePath, b.FilePath); c != 0 {
			return c
		}
		return cmp.Compare(a.LineNumber, b.LineNumber)
	})
	return rs
}

func plain(s string) PlainMatcher { return NewPlainMatcher(s, false) }
