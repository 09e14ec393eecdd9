package internal

import (
	"context"
	"fmt"
	iofs "io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// IsArchive by extension. O(1) map lookup
var archiveExt = map[string]struct{}{
	".zip": {}, ".tar": {}, ".gz": {}, ".tgz": {}, ".bz2": {}, ".xz": {},
	".rar": {}, ".br": {}, ".lz4": {}, ".lz": {}, ".mz": {},
	".sz": {}, ".s2": {}, ".zz": {}, ".zst": {}, ".7z": {},
}

// DetectRoots returns default roots for OS if user didn't provide any.
func DetectRoots(goos string) []string {
	if goos == "windows" {
		var drives []string
		for c := 'C'; c <= 'Z'; c++ {
			p := string(c) + ":\\"
			if st, err := os.Stat(p); err == nil && st.IsDir() {
				drives = append(drives, p)
			}
		}
		return drives
	}
	roots := []string{"/"}
	mounts := []string{"/mnt", "/media", "/run/media", "/Volumes"} // macOS at the end
	for _, m := range mounts {
		if st, err := os.Stat(m); err == nil && st.IsDir() {
			ents, _ := os.ReadDir(m)
			for _, e := range ents {
				roots = append(roots, filepath.Join(m, e.Name()))
			}
		}
	}
	return roots
}

// EnumerateFiles lazily lists regular files under root accepted by filter.
//
// The root must exist and be a directory, otherwise ErrPathNotFound is
// returned before anything is walked. Symlinks are neither followed nor
// yielded, unreadable entries are skipped. Cancelling ctx or breaking out
// of the loop ends the sequence without an error. Order is unspecified.
func EnumerateFiles(ctx context.Context, root string, filter EnumerationFilter) (iter.Seq[string], error) {
	abs, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		filter = AllFiles{}
	}

	return func(yield func(string) bool) {
		_ = filepath.WalkDir(abs, func(path string, d iofs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return filepath.SkipAll
			}
			if err != nil || path == abs {
				return nil
			}
			if d.Type()&iofs.ModeSymlink != 0 {
				return nil
			}
			rel, _ := filepath.Rel(abs, path)
			e := Entry{Path: path, Depth: depthCount(rel), d: d}
			if d.IsDir() {
				if filter.ExcludeDirectory(e) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || !filter.IncludeFile(e) {
				return nil
			}
			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
	}, nil
}

func resolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrPathNotFound, root, err)
	}
	// a symlinked root is walked, nested symlinks are not
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	st, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPathNotFound, err)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrPathNotFound, root)
	}
	return abs, nil
}

func depthCount(rel string) int {
	if rel == "" || rel == "." {
		return 0
	}
	return strings.Count(rel, string(os.PathSeparator)) + 1
}

func Sanitize(s string) string {
	r := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_",
	)
	return r.Replace(s)
}

func IsArchive(path string) bool {
	_, ok := archiveExt[strings.ToLower(filepath.Ext(path))]
	return ok
}
