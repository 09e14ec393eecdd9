package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
	"github.com/sirupsen/logrus"
)

const maxArchiveEntries = 10000 // zip-bomb protection

// SearchArchive streams the matching lines of every qualifying entry of an
// archive, in the archive's native entry order.
//
// Any format known to mholt/archives is accepted; a compressed single file
// (app.log.gz) is searched as one entry. A corrupt, unreadable or unknown
// archive yields nothing and no error: it is logged and skipped. Only a
// missing archive path is yielded as an error (ErrPathNotFound).
//
// A nil entry filter accepts every entry.
func SearchArchive(
	ctx context.Context,
	path string,
	m LineMatcher,
	filter ArchiveEntryFilter,
	opts SearchOptions,
) iter.Seq2[SearchResult, error] {
	return func(yield func(SearchResult, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, iofs.ErrNotExist) {
				yield(SearchResult{}, fmt.Errorf("%w: %w", ErrPathNotFound, err))
				return
			}
			logrus.WithFields(logrus.Fields{"archive": path, "err": err}).Warn("open archive")
			return
		}
		defer f.Close()

		s := &archiveScan{ctx: ctx, path: path, matcher: m, filter: filter, opts: opts, yield: yield}
		if err := s.run(f); err != nil && ctx.Err() == nil {
			logrus.WithFields(logrus.Fields{"archive": path, "err": err}).Warn("skip malformed archive")
		}
	}
}

type archiveScan struct {
	ctx     context.Context
	path    string
	matcher LineMatcher
	filter  ArchiveEntryFilter
	opts    SearchOptions
	yield   func(SearchResult, error) bool
	entries int
}

func (s *archiveScan) run(f *os.File) error {
	format, stream, err := archives.Identify(s.ctx, filepath.Base(s.path), f)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedArchive, err)
	}

	switch fm := format.(type) {
	case archives.Extractor:
		err = fm.Extract(s.ctx, stream, s.handle)
	case archives.Decompressor:
		err = s.decompress(f, fm, stream)
	default:
		return fmt.Errorf("%w: %T cannot be read", ErrMalformedArchive, format)
	}
	if errors.Is(err, iofs.SkipAll) || errors.Is(err, errStopArchive) {
		return nil
	}
	if err != nil && s.ctx.Err() == nil {
		return fmt.Errorf("%w: %w", ErrMalformedArchive, err)
	}
	return err
}

// decompress searches a single compressed file as one entry named after
// the archive without its compression extension.
func (s *archiveScan) decompress(f *os.File, d archives.Decompressor, stream io.Reader) error {
	st, err := f.Stat()
	if err != nil {
		return err
	}
	base := filepath.Base(s.path)
	entry := ArchiveEntry{
		Name:    strings.TrimSuffix(base, filepath.Ext(base)),
		Size:    -1,
		ModTime: st.ModTime(),
	}
	if s.filter != nil && !s.filter.Include(entry) {
		return nil
	}
	rc, err := d.OpenReader(stream)
	if err != nil {
		return err
	}
	defer rc.Close()
	return s.scanEntry(entry, rc)
}

func (s *archiveScan) handle(ctx context.Context, fi archives.FileInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !fi.Mode().IsRegular() {
		return nil
	}
	s.entries++
	if s.entries > maxArchiveEntries {
		logrus.Warnf("Archive %s truncated: too many files (> %d)", s.path, maxArchiveEntries)
		return iofs.SkipAll
	}

	entry := ArchiveEntry{Name: fi.NameInArchive, Size: fi.Size(), ModTime: fi.ModTime()}
	if s.filter != nil && !s.filter.Include(entry) {
		return nil
	}

	rc, err := fi.Open()
	if err != nil {
		logrus.WithFields(logrus.Fields{"archive": s.path, "inner": entry.Name, "err": err}).Warn("open entry")
		return nil
	}
	defer rc.Close()
	return s.scanEntry(entry, rc)
}

// scanEntry runs the line scanner over one entry. A nil return moves on to
// the next entry; errStopArchive or iofs.SkipAll end the archive.
func (s *archiveScan) scanEntry(e ArchiveEntry, r io.Reader) error {
	var x *entryExtract
	src := r
	if s.opts.ExtractPath != "" {
		var err error
		if x, err = newEntryExtract(s.opts.ExtractPath, s.path, e.Name); err != nil {
			s.extracted("", err)
		} else {
			src = x.tee(r)
		}
	}

	name := filepath.Join(s.path, e.Name)
	res, err := scanLines(s.ctx, src, name, s.matcher, s.opts.StopWhenFound, s.yield)

	if x != nil {
		if res.matched && !res.halted && err == nil {
			s.extracted(x.commit(r))
		} else {
			x.discard()
		}
	}

	switch {
	case s.ctx.Err() != nil:
		return s.ctx.Err()
	case res.halted:
		return errStopArchive
	case err != nil:
		logrus.WithFields(logrus.Fields{"archive": s.path, "inner": e.Name, "err": err}).Warn("read entry")
		return nil
	case res.matched && s.opts.StopWhenFound && s.opts.ArchiveStop == StopArchive:
		return iofs.SkipAll
	}
	return nil
}

func (s *archiveScan) extracted(dst string, err error) {
	if err != nil {
		logrus.WithFields(logrus.Fields{"archive": s.path, "err": err}).Warn("extract entry")
	} else {
		logrus.WithFields(logrus.Fields{"archive": s.path, "dst": dst}).Debug("entry extracted")
	}
	if s.opts.OnExtract != nil {
		s.opts.OnExtract(dst, err)
	}
}
