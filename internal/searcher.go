package internal

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"iter"
	"os"
	"strconv"
)

// SearchResult is one matching line. For archive entries FilePath is the
// archive path joined with the entry name.
type SearchResult struct {
	FilePath    string
	LineNumber  int // 1-based
	LineContent string
}

func (r SearchResult) String() string {
	return r.FilePath + ":" + strconv.Itoa(r.LineNumber) + ": " + r.LineContent
}

// StopScope says how far StopWhenFound reaches inside an archive.
type StopScope int

const (
	// StopEntry ends the current entry and goes on with the next one.
	StopEntry StopScope = iota
	// StopArchive ends the whole archive on its first match.
	StopArchive
)

func (s StopScope) String() string {
	if s == StopArchive {
		return "archive"
	}
	return "entry"
}

// SearchOptions tune a single file or archive scan.
type SearchOptions struct {
	StopWhenFound bool
	// ExtractPath, when set, receives a copy of every matched archive entry.
	ExtractPath string
	ArchiveStop StopScope
	// OnExtract is called after each extraction attempt; err is nil on success.
	OnExtract func(dst string, err error)
}

// DefaultSearchOptions stops each unit on its first match.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{StopWhenFound: true}
}

// SearchFile streams the matching lines of a plain file.
//
// Open and read failures are yielded once as the final element; a missing
// file wraps ErrPathNotFound. Cancellation ends the sequence quietly.
func SearchFile(ctx context.Context, path string, m LineMatcher, opts SearchOptions) iter.Seq2[SearchResult, error] {
	return func(yield func(SearchResult, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, iofs.ErrNotExist) {
				err = fmt.Errorf("%w: %w", ErrPathNotFound, err)
			}
			yield(SearchResult{}, err)
			return
		}
		defer f.Close()

		_, err = scanLines(ctx, f, path, m, opts.StopWhenFound, yield)
		if err != nil && ctx.Err() == nil {
			yield(SearchResult{}, fmt.Errorf("read %s: %w", path, err))
		}
	}
}
