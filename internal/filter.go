package internal

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/djherbis/times"
)

// Entry is a filesystem entry seen by the walker.
type Entry struct {
	Path  string // absolute
	Depth int    // 1 for direct children of the root
	d     fs.DirEntry
}

func (e Entry) Name() string               { return e.d.Name() }
func (e Entry) IsDir() bool                { return e.d.IsDir() }
func (e Entry) Info() (fs.FileInfo, error) { return e.d.Info() }

// EnumerationFilter decides which files the walker yields and which
// directories it descends into. Implementations must be safe for concurrent use.
type EnumerationFilter interface {
	IncludeFile(e Entry) bool
	ExcludeDirectory(e Entry) bool
}

// ArchiveEntry describes a file stored inside an archive.
type ArchiveEntry struct {
	Name    string // path inside the archive
	Size    int64
	ModTime time.Time
}

// ArchiveEntryFilter decides whether an archive entry is scanned.
type ArchiveEntryFilter interface {
	Include(e ArchiveEntry) bool
}

// AllFiles accepts every file and descends into every directory.
type AllFiles struct{}

func (AllFiles) IncludeFile(Entry) bool      { return true }
func (AllFiles) ExcludeDirectory(Entry) bool { return false }

// extSet holds lower-case extensions with a leading dot.
type extSet map[string]struct{}

func newExtSet(list []string) extSet {
	if len(list) == 0 {
		return nil
	}
	m := make(extSet, len(list))
	for _, x := range list {
		x = strings.ToLower(strings.TrimSpace(x))
		if x == "" {
			continue
		}
		if !strings.HasPrefix(x, ".") {
			x = "." + x
		}
		m[x] = struct{}{}
	}
	return m
}

func (s extSet) has(ext string) bool {
	_, ok := s[ext]
	return ok
}

// FileFilterOptions configures NewFileFilter.
type FileFilterOptions struct {
	Whitelist []string // if set, Blacklist is ignored
	Blacklist []string
	// Archives lets archive files through even when they are not whitelisted.
	// When false archives are never yielded.
	Archives       bool
	ExcludeDirs    []string // directory base names
	CreatedAfter   time.Time
	ModifiedBefore time.Time
	SkipHidden     bool
	MaxDepth       int // 0 - unlimited
}

// FileFilter is the EnumerationFilter used by the CLI. It is immutable once built.
type FileFilter struct {
	allow, deny    extSet
	archives       bool
	excludeDirs    map[string]struct{}
	createdAfter   time.Time
	modifiedBefore time.Time
	skipHidden     bool
	maxDepth       int
}

func NewFileFilter(o FileFilterOptions) FileFilter {
	f := FileFilter{
		allow:          newExtSet(o.Whitelist),
		deny:           newExtSet(o.Blacklist),
		archives:       o.Archives,
		createdAfter:   o.CreatedAfter,
		modifiedBefore: o.ModifiedBefore,
		skipHidden:     o.SkipHidden,
		maxDepth:       o.MaxDepth,
	}
	if len(o.ExcludeDirs) > 0 {
		f.excludeDirs = make(map[string]struct{}, len(o.ExcludeDirs))
		for _, d := range o.ExcludeDirs {
			f.excludeDirs[d] = struct{}{}
		}
	}
	return f
}

func (f FileFilter) IncludeFile(e Entry) bool {
	name := e.Name()
	if f.skipHidden && isHidden(name) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	if IsArchive(name) {
		if !f.archives || f.deny.has(ext) {
			return false
		}
	} else if len(f.allow) > 0 {
		if !f.allow.has(ext) {
			return false
		}
	} else if f.deny.has(ext) {
		return false
	}
	if f.createdAfter.IsZero() && f.modifiedBefore.IsZero() {
		return true
	}
	info, err := e.Info()
	if err != nil {
		return false
	}
	return inWindow(info, f.createdAfter, f.modifiedBefore)
}

func (f FileFilter) ExcludeDirectory(e Entry) bool {
	if f.maxDepth > 0 && e.Depth >= f.maxDepth {
		return true
	}
	name := e.Name()
	if f.skipHidden && isHidden(name) {
		return true
	}
	_, ok := f.excludeDirs[name]
	return ok
}

// inWindow reports whether a file was created at or after `after` and last
// modified at or before `before`. Zero bounds are open. Where the OS has no
// birth time the modification time stands in for it.
func inWindow(info fs.FileInfo, after, before time.Time) bool {
	if !before.IsZero() && info.ModTime().After(before) {
		return false
	}
	if !after.IsZero() {
		created := info.ModTime()
		if ts := times.Get(info); ts.HasBirthTime() {
			created = ts.BirthTime()
		}
		if created.Before(after) {
			return false
		}
	}
	return true
}

func isHidden(name string) bool {
	return len(name) > 1 && name[0] == '.' && name != ".."
}

// LogFileFilter selects .log files created at or after start and modified at or before end.
func LogFileFilter(start, end time.Time) FileFilter {
	return NewFileFilter(FileFilterOptions{Whitelist: []string{".log"}, CreatedAfter: start, ModifiedBefore: end})
}

// TextFileFilter selects .txt files.
func TextFileFilter() FileFilter {
	return NewFileFilter(FileFilterOptions{Whitelist: []string{".txt"}})
}

// ZipFileFilter selects .zip archives only.
func ZipFileFilter() FileFilter {
	return NewFileFilter(FileFilterOptions{Whitelist: []string{".zip"}, Blacklist: nonZipArchives(), Archives: true})
}

func nonZipArchives() []string {
	out := make([]string, 0, len(archiveExt))
	for ext := range archiveExt {
		if ext != ".zip" {
			out = append(out, ext)
		}
	}
	return out
}

// EntryFilter is the ArchiveEntryFilter used by the CLI.
type EntryFilter struct {
	allow, deny    extSet
	modifiedBefore time.Time
}

// NewEntryFilter accepts entries whose extension is in allow (any when
// empty, then deny applies) and, if modifiedBefore is set, that were
// modified strictly before it.
func NewEntryFilter(allow, deny []string, modifiedBefore time.Time) EntryFilter {
	return EntryFilter{allow: newExtSet(allow), deny: newExtSet(deny), modifiedBefore: modifiedBefore}
}

func (f EntryFilter) Include(e ArchiveEntry) bool {
	ext := strings.ToLower(filepath.Ext(e.Name))
	if len(f.allow) > 0 {
		if !f.allow.has(ext) {
			return false
		}
	} else if f.deny.has(ext) {
		return false
	}
	return f.modifiedBefore.IsZero() || e.ModTime.Before(f.modifiedBefore)
}

// LogEntryFilter selects .log entries modified before the given time.
func LogEntryFilter(before time.Time) EntryFilter {
	return NewEntryFilter([]string{".log"}, nil, before)
}
