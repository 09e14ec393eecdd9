package internal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
	"github.com/gofrs/flock"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// patternFilesOpen bounds the per-pattern files kept open at once.
const patternFilesOpen = 64

var (
	pathColor = color.New(color.FgMagenta)
	lineColor = color.New(color.FgGreen)
)

// ResultSink prints matches and optionally appends matched lines to a
// single file and to per-pattern files.
type ResultSink struct {
	out      io.Writer
	patterns []Pattern

	mu          sync.Mutex
	matchesFile *os.File
	matchesLock *flock.Flock

	folder  string
	byPatMu sync.Mutex
	byPat   *lru.Cache[string, *os.File]
}

// NewResultSink opens the sinks configured in opts. out may be nil.
// The single matches file is locked for the lifetime of the sink so that
// two runs never interleave their output.
func NewResultSink(opts ScanOptions, patterns []Pattern, out io.Writer) (*ResultSink, error) {
	s := &ResultSink{out: out, patterns: patterns, folder: opts.SaveMatchesByPatternFolder}

	if opts.SaveMatchesFile != "" {
		lock := flock.New(opts.SaveMatchesFile + ".lock")
		ok, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", opts.SaveMatchesFile, err)
		}
		if !ok {
			return nil, fmt.Errorf("matches file %s is in use by another run", opts.SaveMatchesFile)
		}
		f, err := os.OpenFile(opts.SaveMatchesFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			_ = lock.Unlock()
			return nil, err
		}
		s.matchesFile, s.matchesLock = f, lock
	}

	if s.folder != "" {
		if err := os.MkdirAll(s.folder, 0755); err != nil {
			s.Close()
			return nil, err
		}
		cache, err := lru.NewWithEvict[string, *os.File](patternFilesOpen, func(_ string, f *os.File) {
			_ = f.Close()
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		s.byPat = cache
	}
	return s, nil
}

// Write handles one result. Safe for concurrent use.
func (s *ResultSink) Write(res SearchResult) {
	logrus.WithFields(logrus.Fields{"file": res.FilePath, "line": res.LineNumber}).Debug("Match found")

	if s.out != nil {
		s.mu.Lock()
		fmt.Fprintf(s.out, "%s:%s: %s\n", pathColor.Sprint(res.FilePath), lineColor.Sprint(res.LineNumber), res.LineContent)
		s.mu.Unlock()
	}

	if s.matchesFile != nil {
		s.mu.Lock()
		if _, err := io.WriteString(s.matchesFile, res.LineContent+"\n"); err != nil {
			logrus.WithError(err).Error("write matches file")
		}
		s.mu.Unlock()
	}

	if s.byPat != nil {
		for _, p := range s.patterns {
			if p.IsMatch(res.LineContent) {
				s.writePattern(p.Desc(), res.LineContent)
			}
		}
	}
}

func (s *ResultSink) writePattern(desc, line string) {
	path := filepath.Join(s.folder, Sanitize(desc)+".txt")

	s.byPatMu.Lock()
	defer s.byPatMu.Unlock()
	f, ok := s.byPat.Get(path)
	if !ok {
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logrus.WithError(err).WithField("file", path).Error("open pattern file")
			return
		}
		s.byPat.Add(path, f)
	}
	if _, err := io.WriteString(f, line+"\n"); err != nil {
		logrus.WithError(err).WithField("file", path).Error("write pattern file")
	}
}

// Close flushes and releases every file and lock held by the sink.
func (s *ResultSink) Close() error {
	var err error
	if s.byPat != nil {
		s.byPatMu.Lock()
		s.byPat.Purge() // evict callback closes the files
		s.byPatMu.Unlock()
	}
	if s.matchesFile != nil {
		err = s.matchesFile.Close()
	}
	if s.matchesLock != nil {
		if uerr := s.matchesLock.Unlock(); err == nil {
			err = uerr
		}
		_ = os.Remove(s.matchesLock.Path())
	}
	return err
}
