package internal

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/sirupsen/logrus"
)

// DefaultRegexTimeout bounds a single regex evaluation on one line.
const DefaultRegexTimeout = 100 * time.Millisecond

// LineMatcher reports whether a line matches. Implementations must be
// safe for concurrent use and keep no per-call state.
type LineMatcher interface {
	IsMatch(line string) bool
}

// Pattern is a LineMatcher loaded from a pattern file.
type Pattern interface {
	LineMatcher
	Desc() string // for logs/files
}

type PlainMatcher struct {
	s           string
	insensitive bool
}

func NewPlainMatcher(s string, insensitive bool) PlainMatcher {
	if insensitive {
		s = strings.ToLower(s)
	}
	return PlainMatcher{s: s, insensitive: insensitive}
}

func (p PlainMatcher) IsMatch(line string) bool {
	if p.insensitive {
		return strings.Contains(strings.ToLower(line), p.s)
	}
	return strings.Contains(line, p.s)
}

func (p PlainMatcher) Desc() string {
	if p.insensitive {
		return "plain:i:" + p.s
	}
	return p.s
}

// RegexMatcher uses a backtracking engine with a per-match timeout.
// A line whose evaluation times out does not match.
type RegexMatcher struct{ re *regexp2.Regexp }

func NewRegexMatcher(expr string, timeout time.Duration) (RegexMatcher, error) {
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return RegexMatcher{}, err
	}
	if timeout <= 0 {
		timeout = DefaultRegexTimeout
	}
	re.MatchTimeout = timeout
	return RegexMatcher{re: re}, nil
}

func (p RegexMatcher) IsMatch(line string) bool {
	ok, err := p.re.MatchString(line)
	if err != nil {
		logrus.WithFields(logrus.Fields{"pattern": p.re.String(), "err": err}).Debug("regex timeout, line skipped")
		return false
	}
	return ok
}

func (p RegexMatcher) Desc() string { return "re:" + p.re.String() }

// AnyMatcher matches when any of its matchers does.
type AnyMatcher []LineMatcher

func (a AnyMatcher) IsMatch(line string) bool {
	for _, m := range a {
		if m.IsMatch(line) {
			return true
		}
	}
	return false
}

// AnyOf builds an AnyMatcher from loaded patterns.
func AnyOf(ps []Pattern) AnyMatcher {
	out := make(AnyMatcher, len(ps))
	for i, p := range ps {
		out[i] = p
	}
	return out
}

// LoadPatterns reads patterns file.
// Lines:
//
//	foo
//	plain:bar
//	plain:i:bar
//	re:^user=\w+$
//
// Blank lines and lines starting with # are ignored.
func LoadPatterns(path string, regexTimeout time.Duration) ([]Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ps []Pattern
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "re:"):
			m, err := NewRegexMatcher(line[3:], regexTimeout)
			if err != nil {
				return nil, fmt.Errorf("invalid regex %q: %w", line, err)
			}
			ps = append(ps, m)
		case strings.HasPrefix(line, "plain:i:"):
			ps = append(ps, NewPlainMatcher(line[8:], true))
		case strings.HasPrefix(line, "plain:"):
			ps = append(ps, NewPlainMatcher(line[6:], false))
		default:
			ps = append(ps, NewPlainMatcher(line, false))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}
	logrus.Debugf("Loaded %d patterns", len(ps))
	return ps, nil
}
