package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// FileScanner runs the search pipeline over every root of a ScanOptions.
type FileScanner struct {
	Stats *AppStats
}

func NewFileScanner(stats *AppStats) *FileScanner {
	if stats == nil {
		stats = &AppStats{}
	}
	return &FileScanner{Stats: stats}
}

// Scan searches opts.Roots one after another and hands every result to
// onResult. Roots that fail are collected into a multierror; with FailFast
// the first failure stops the scan. Cancellation is not an error.
func (fs *FileScanner) Scan(ctx context.Context, opts ScanOptions, onResult func(SearchResult)) error {
	patterns, err := LoadPatterns(opts.PatternFile, opts.RegexTimeout)
	if err != nil {
		return err
	}
	if len(patterns) == 0 {
		return errors.New("pattern file has no patterns")
	}
	return fs.ScanWith(ctx, opts, AnyOf(patterns), onResult)
}

// ScanWith is Scan with an already built matcher; opts.PatternFile is ignored.
func (fs *FileScanner) ScanWith(ctx context.Context, opts ScanOptions, m LineMatcher, onResult func(SearchResult)) error {
	d := NewDispatcher(m, opts.EntryFilter(), opts.SearchOptions(), !opts.FailFast, fs.Stats)
	p := &Pipeline{
		Filter:              opts.FileFilter(),
		Search:              d.Search,
		Concurrency:         opts.Threads,
		StopAfterFirstMatch: opts.FirstMatch,
		Stats:               fs.Stats,
		StatsInterval:       opts.StatsInterval,
	}

	var errs *multierror.Error
	for _, root := range opts.Roots {
		if ctx.Err() != nil {
			break
		}
		found, err := fs.scanRoot(ctx, p, root, onResult)
		if err != nil {
			fs.Stats.Errors.Add(1)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", root, err))
			if opts.FailFast {
				break
			}
		}
		if found && opts.FirstMatch {
			break
		}
	}
	return errs.ErrorOrNil()
}

func (fs *FileScanner) scanRoot(ctx context.Context, p *Pipeline, root string, onResult func(SearchResult)) (bool, error) {
	run, err := p.Run(ctx, root)
	if err != nil {
		return false, err
	}
	log := logrus.WithFields(logrus.Fields{"run": run.ID, "root": root})
	log.Info("Scanning")

	found := false
	for res, err := range run.All() {
		if err != nil {
			return found, err
		}
		found = true
		onResult(res)
	}
	if run.State() == StateCancelled {
		log.Warn("Scan cancelled")
	}
	return found, nil
}
