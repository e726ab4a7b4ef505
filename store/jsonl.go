// Package store persists result records as JSON lines: one object per line,
// appended and never rewritten.
package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/use-agent/harvest/models"
)

// Log is an append-only JSON-lines file. Appends from concurrent goroutines
// are serialized, and each line goes out in a single write.
type Log struct {
	path string
	mu   sync.Mutex

	// tailChecked is set once the file is known to end on a line boundary.
	tailChecked bool
}

// NewLog returns a Log for path. The file is created on first append.
func NewLog(path string) *Log {
	return &Log{path: path}
}

// Path returns the file path.
func (l *Log) Path() string { return l.path }

// Exists reports whether the log file exists.
func (l *Log) Exists() bool { return PathExists(l.path) }

// Append marshals v and appends it as one line.
func (l *Log) Append(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeStorage, "marshal record", err)
	}
	return l.AppendRaw(b)
}

// AppendRaw appends line verbatim followed by a newline.
func (l *Log) AppendRaw(line []byte) error {
	line = bytes.TrimRight(line, "\r\n")
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return models.NewScrapeError(models.ErrCodeStorage, "create log directory", err)
		}
	}
	if !l.tailChecked {
		if err := repairTail(l.path); err != nil {
			return models.NewScrapeError(models.ErrCodeStorage, "repair log "+l.path, err)
		}
		l.tailChecked = true
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeStorage, "open log "+l.path, err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return models.NewScrapeError(models.ErrCodeStorage, "append to log "+l.path, err)
	}
	if err := f.Close(); err != nil {
		return models.NewScrapeError(models.ErrCodeStorage, "close log "+l.path, err)
	}
	return nil
}

// repairTail makes the file at path end on a line boundary before anything
// is appended to it. A last line without a newline is either a whole record
// (it gets its newline) or an interrupted write (it is cut off, matching
// what ReadAll skips). A missing or empty file needs nothing.
func repairTail(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size == 0 {
		return nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}

	start, err := lastLineStart(f, size)
	if err != nil {
		return err
	}
	tail := make([]byte, size-start)
	if _, err := f.ReadAt(tail, start); err != nil {
		return err
	}

	if trimmed := bytes.TrimSpace(tail); len(trimmed) == 0 || json.Valid(trimmed) {
		_, err = f.WriteAt([]byte{'\n'}, size)
		return err
	}
	slog.Warn("store: truncating interrupted last line", "path", path, "bytes", len(tail))
	return f.Truncate(start)
}

// lastLineStart returns the offset just after the last newline before size,
// or 0 when the file holds a single line.
func lastLineStart(f *os.File, size int64) (int64, error) {
	const chunk = 4096
	buf := make([]byte, chunk)
	for end := size; end > 0; {
		begin := max(end-chunk, 0)
		n, err := f.ReadAt(buf[:end-begin], begin)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			return begin + int64(i) + 1, nil
		}
		end = begin
	}
	return 0, nil
}

// Entry is one decoded line together with its original bytes (without the
// trailing newline).
type Entry[T any] struct {
	Record T
	Raw    []byte
}

// ReadAll decodes every line of the log at path. Blank lines are skipped.
// A final line without a newline that does not decode is treated as an
// interrupted write and dropped. Any other undecodable line stops the read;
// the entries before it are returned along with the error.
func ReadAll[T any](path string) ([]Entry[T], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeStorage, "open log "+path, err)
	}
	defer f.Close()

	var entries []Entry[T]
	r := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		line, readErr := r.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return entries, models.NewScrapeError(models.ErrCodeStorage, "read log "+path, readErr)
		}
		complete := readErr == nil
		trimmed := bytes.TrimRight(line, "\r\n")

		if len(bytes.TrimSpace(trimmed)) > 0 {
			var rec T
			if err := json.Unmarshal(trimmed, &rec); err != nil {
				if !complete {
					slog.Warn("store: dropping truncated last line", "path", path, "line", lineNo)
					return entries, nil
				}
				return entries, models.NewScrapeError(models.ErrCodeStorage,
					fmt.Sprintf("decode %s line %d", path, lineNo), err)
			}
			raw := make([]byte, len(trimmed))
			copy(raw, trimmed)
			entries = append(entries, Entry[T]{Record: rec, Raw: raw})
		}

		if !complete {
			return entries, nil
		}
	}
}

// Records decodes the log at path and drops the raw bytes.
func Records[T any](path string) ([]T, error) {
	entries, err := ReadAll[T](path)
	out := make([]T, len(entries))
	for i, e := range entries {
		out[i] = e.Record
	}
	return out, err
}

// PathExists reports whether path exists.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
