package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchFile_AllMatches(t *testing.T) {
	dir := tempDir(t)
	var b strings.Builder
	for i := 1; i <= 50; i++ {
		if i%10 == 0 {
			fmt.Fprintf(&b, "line %d ERROR\n", i)
		} else {
			fmt.Fprintf(&b, "line %d ok\n", i)
		}
	}
	path := writeFile(t, dir, "app.log", b.String())

	got, err := collect(SearchFile(context.Background(), path, plain("ERROR"), SearchOptions{}))
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i, r := range got {
		assert.Equal(t, path, r.FilePath)
		assert.Equal(t, (i+1)*10, r.LineNumber)
	}
}

func TestSearchFile_StopWhenFound(t *testing.T) {
	path := writeFile(t, tempDir(t), "a.log", "ERROR one\nERROR two\n")
	got, err := collect(SearchFile(context.Background(), path, plain("ERROR"), DefaultSearchOptions()))
	require.NoError(t, err)
	assert.Equal(t, []SearchResult{{FilePath: path, LineNumber: 1, LineContent: "ERROR one"}}, got)
}

func TestSearchFile_Missing(t *testing.T) {
	_, err := collect(SearchFile(context.Background(), filepath.Join(tempDir(t), "gone.log"), plain("x"), SearchOptions{}))
	assert.ErrorIs(t, err, ErrPathNotFound)
}

// A result's line number points at the matching line of the file.
func TestSearchFile_ResultRelocates(t *testing.T) {
	path := writeFile(t, tempDir(t), "a.log", "alpha\nbeta token\r\ngamma\ntoken end")
	got, err := collect(SearchFile(context.Background(), path, plain("token"), SearchOptions{}))
	require.NoError(t, err)
	require.Len(t, got, 2)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	for _, r := range got {
		assert.Equal(t, lines[r.LineNumber-1], r.LineContent)
	}
}

func TestSearchFile_Cancelled(t *testing.T) {
	path := writeFile(t, tempDir(t), "a.log", "hit\nhit\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, err := collect(SearchFile(ctx, path, plain("hit"), SearchOptions{}))
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchResult_String(t *testing.T) {
	r := SearchResult{FilePath: "/a.log", LineNumber: 7, LineContent: "boom"}
	assert.Equal(t, "/a.log:7: boom", r.String())
	assert.Equal(t, "archive", StopArchive.String())
	assert.Equal(t, "entry", StopEntry.String())
}
