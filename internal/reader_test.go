package internal

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalSavePath(t *testing.T) {
	p := filepath.ToSlash(finalSavePath("/out", "/var/log/sys.log", ""))
	assert.True(t, strings.HasSuffix(p, "out/_var_log_sys.log"), p)

	p = filepath.ToSlash(finalSavePath("/out", "/x/archive.zip", "inside/dir/file.txt"))
	assert.True(t, strings.HasSuffix(p, "out/_x_archive.zip/inside_dir_file.txt"), p)
}

func scanAll(t *testing.T, input string, m LineMatcher, stop bool) ([]SearchResult, lineScan, error) {
	t.Helper()
	var got []SearchResult
	res, err := scanLines(context.Background(), strings.NewReader(input), "f.txt", m, stop,
		func(r SearchResult, _ error) bool {
			got = append(got, r)
			return true
		})
	return got, res, err
}

func TestScanLines_NumberingAndTerminators(t *testing.T) {
	got, res, err := scanAll(t, "hello\r\nworld\n\nxhelloy", plain("hello"), false)
	require.NoError(t, err)
	assert.True(t, res.matched)
	assert.Equal(t, []SearchResult{
		{FilePath: "f.txt", LineNumber: 1, LineContent: "hello"},
		{FilePath: "f.txt", LineNumber: 4, LineContent: "xhelloy"},
	}, got)
}

func TestScanLines_StopWhenFound(t *testing.T) {
	got, _, err := scanAll(t, "a\nhit1\nhit2\n", plain("hit"), true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].LineNumber)
}

func TestScanLines_Empty(t *testing.T) {
	got, res, err := scanAll(t, "", plain("x"), false)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.False(t, res.matched)
}

func TestScanLines_LongLine(t *testing.T) {
	long := strings.Repeat("z", 3*readBufSize) + "needle"
	got, _, err := scanAll(t, "first\n"+long+"\nlast\n", plain("needle"), false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].LineNumber)
	assert.Equal(t, long, got[0].LineContent)
}

func TestScanLines_ConsumerStops(t *testing.T) {
	n := 0
	res, err := scanLines(context.Background(), strings.NewReader("x\nx\nx\n"), "f", plain("x"), false,
		func(SearchResult, error) bool {
			n++
			return false
		})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, res.halted)
}

type failingReader struct{ data io.Reader }

var errBoom = errors.New("boom")

func (f *failingReader) Read(p []byte) (int, error) {
	n, err := f.data.Read(p)
	if err == io.EOF {
		return n, errBoom
	}
	return n, err
}

func TestScanLines_ReadError(t *testing.T) {
	var got []SearchResult
	_, err := scanLines(context.Background(), &failingReader{strings.NewReader("hit\nmore")}, "f", plain("hit"), false,
		func(r SearchResult, _ error) bool {
			got = append(got, r)
			return true
		})
	assert.ErrorIs(t, err, errBoom)
	assert.Len(t, got, 1)
}

func TestScanLines_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := scanLines(ctx, strings.NewReader("hit\n"), "f", plain("hit"), false,
		func(SearchResult, error) bool { return true })
	assert.ErrorIs(t, err, context.Canceled)
}
