// Package mirror reads and writes the local JSON files that shadow in-memory
// state and the durable store.
//
// Whole-file mirrors are rewritten atomically through a temp file and rename.
// Append-only mirrors are JSON Lines.
package mirror

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrCorrupt is returned when a mirror file exists but cannot be decoded
var ErrCorrupt = errors.New("mirror file is corrupt")

// File names used inside the data directory
const (
	LimitsFile    = "limits.json"
	VectorsFile   = "vectors.json"
	TopicsFile    = "topics.json"
	AnswersFile   = "qa.jsonl"
	FeedbackFile  = "feedback.jsonl"
	SummariesFile = "learning_summaries.jsonl"
)

// ReadJSON decodes path into dest.
// A missing file leaves dest untouched and reports found=false with no error.
// Undecodable content returns an error wrapping ErrCorrupt.
func ReadJSON(path string, dest interface{}) (found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return true, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return true, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return true, nil
}

// WriteJSON atomically replaces path with the indented JSON encoding of v
func WriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Log is an append-only JSON Lines file.
// Appends from one process are serialized.
type Log[T any] struct {
	path string
	mu   sync.Mutex
}

// NewLog returns a Log for path. The file is created on first append.
func NewLog[T any](path string) *Log[T] {
	return &Log[T]{path: path}
}

// Path returns the file path
func (l *Log[T]) Path() string {
	return l.path
}

// Append writes v as a single line
func (l *Log[T]) Append(v T) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(l.path), err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append to %s: %w", filepath.Base(l.path), err)
	}
	return nil
}

// ReadAll returns every decodable entry in file order.
// A missing file is an empty log. Lines that fail to decode are skipped and
// counted in skipped.
func (l *Log[T]) ReadAll() (entries []T, skipped int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to open %s: %w", filepath.Base(l.path), err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			skipped++
			continue
		}
		entries = append(entries, v)
	}
	if err := scanner.Err(); err != nil {
		return entries, skipped, fmt.Errorf("failed to read %s: %w", filepath.Base(l.path), err)
	}
	return entries, skipped, nil
}

// Tail returns the last n entries, newest first
func (l *Log[T]) Tail(n int) ([]T, error) {
	all, _, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	out := make([]T, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
