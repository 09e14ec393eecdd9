package internal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const readBufSize = 64 * 1024

// lineScan summarizes one scanLines call.
type lineScan struct {
	matched bool // at least one line matched
	halted  bool // the consumer stopped the iteration
}

// scanLines streams r line by line and yields every matching line tagged
// with name. Numbering starts at 1 and counts every line. With
// stopWhenFound it returns right after the first match. Line terminators
// (\n, \r\n) are stripped and lines have no length limit.
//
// Cancellation is checked before each line; a cancelled scan returns ctx.Err().
func scanLines(
	ctx context.Context,
	r io.Reader,
	name string,
	m LineMatcher,
	stopWhenFound bool,
	yield func(SearchResult, error) bool,
) (lineScan, error) {
	var res lineScan
	br := bufio.NewReaderSize(r, readBufSize)
	lineNum := 0
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			lineNum++
			line = trimEOL(line)
			if m.IsMatch(line) {
				res.matched = true
				if !yield(SearchResult{FilePath: name, LineNumber: lineNum, LineContent: line}, nil) {
					res.halted = true
					return res, nil
				}
				if stopWhenFound {
					return res, nil
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return res, nil
			}
			return res, err
		}
	}
}

func trimEOL(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

// entryExtract tees an archive entry into a temp file under dir.
// On commit the rest of the entry is drained into it and the temp file is
// moved to its final place; otherwise it is removed.
// This keeps memory low and avoids reading the entry twice.
type entryExtract struct {
	dir, archivePath, entryName string
	tmp                         *os.File
}

func newEntryExtract(dir, archivePath, entryName string) (*entryExtract, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(dir, "ls-*")
	if err != nil {
		return nil, err
	}
	return &entryExtract{dir: dir, archivePath: archivePath, entryName: entryName, tmp: tmp}, nil
}

func (x *entryExtract) tee(r io.Reader) io.Reader { return io.TeeReader(r, x.tmp) }

// commit drains src, the raw reader behind tee, and renames the temp file.
// It returns the final path.
func (x *entryExtract) commit(src io.Reader) (string, error) {
	if _, err := io.Copy(x.tmp, src); err != nil {
		x.discard()
		return "", fmt.Errorf("drain entry: %w", err)
	}
	if err := x.tmp.Close(); err != nil {
		_ = os.Remove(x.tmp.Name())
		return "", err
	}
	dst := finalSavePath(x.dir, x.archivePath, x.entryName)
	// ensure parent dir exists: <dir>/<archive>/
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		_ = os.Remove(x.tmp.Name())
		return "", err
	}
	if err := os.Rename(x.tmp.Name(), dst); err != nil {
		_ = os.Remove(x.tmp.Name())
		return "", err
	}
	return dst, nil
}

func (x *entryExtract) discard() {
	_ = x.tmp.Close()
	_ = os.Remove(x.tmp.Name())
}

func finalSavePath(folder, filePath, innerPath string) string {
	base := Sanitize(filePath)
	if innerPath != "" {
		return filepath.Join(folder, base, Sanitize(innerPath))
	}
	return filepath.Join(folder, base)
}
