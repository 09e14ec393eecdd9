package internal

import (
	"errors"
	"strings"
	"time"
)

// ScanOptions - public options from CLI.
type ScanOptions struct {
	Roots                      []string
	PatternFile                string
	Threads                    int
	Whitelist                  []string
	Blacklist                  []string
	ExcludeDirs                []string
	Depth                      int
	Archives                   bool
	SkipHidden                 bool
	CreatedAfter               time.Time
	ModifiedBefore             time.Time
	EntryModifiedBefore        time.Time
	StopWhenFound              bool
	StopArchive                bool
	FirstMatch                 bool
	ExtractPath                string
	RegexTimeout               time.Duration
	FailFast                   bool
	SaveMatchesFile            string
	SaveMatchesByPatternFolder string
	StatsInterval              time.Duration
}

// Validate checks invariants.
func (o *ScanOptions) Validate() error {
	if o.PatternFile == "" {
		return errors.New("pattern-file is required")
	}
	if len(o.Roots) == 0 {
		return errors.New("at least one search root is required")
	}
	if o.Depth < 0 {
		return errors.New("depth must not be negative")
	}
	if o.ExtractPath != "" && !o.Archives {
		return errors.New("extract-path requires --archives")
	}
	if !o.CreatedAfter.IsZero() && !o.ModifiedBefore.IsZero() && o.ModifiedBefore.Before(o.CreatedAfter) {
		return errors.New("modified-before is earlier than created-after")
	}
	return nil
}

// Prepare normalizes extensions and sets sensible defaults.
func (o *ScanOptions) Prepare() {
	o.Whitelist = normExts(o.Whitelist)
	o.Blacklist = normExts(o.Blacklist)
	if o.Threads <= 0 {
		o.Threads = DefaultConcurrency()
	}
	if o.RegexTimeout <= 0 {
		o.RegexTimeout = DefaultRegexTimeout
	}
}

// normExts accepts "txt", ".TXT" and comma separated lists and returns ".txt" forms.
func normExts(s []string) []string {
	out := make([]string, 0, len(s))
	for _, ext := range s {
		for _, v := range strings.Split(ext, ",") {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			out = append(out, "."+strings.ToLower(strings.TrimPrefix(v, ".")))
		}
	}
	return out
}

// FileFilter builds the walker filter.
func (o *ScanOptions) FileFilter() FileFilter {
	return NewFileFilter(FileFilterOptions{
		Whitelist:      o.Whitelist,
		Blacklist:      o.Blacklist,
		Archives:       o.Archives,
		ExcludeDirs:    o.ExcludeDirs,
		CreatedAfter:   o.CreatedAfter,
		ModifiedBefore: o.ModifiedBefore,
		SkipHidden:     o.SkipHidden,
		MaxDepth:       o.Depth,
	})
}

// EntryFilter applies the same extension lists to archive entries.
func (o *ScanOptions) EntryFilter() EntryFilter {
	return NewEntryFilter(o.Whitelist, o.Blacklist, o.EntryModifiedBefore)
}

func (o *ScanOptions) SearchOptions() SearchOptions {
	opts := SearchOptions{StopWhenFound: o.StopWhenFound, ExtractPath: o.ExtractPath}
	if o.StopArchive {
		opts.ArchiveStop = StopArchive
	}
	return opts
}
