package runlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

const previewLimit = 1000

// JSONLFile appends one JSON object per line to a file.
type JSONLFile struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

func NewJSONLFile(path string, logger *zap.Logger) *JSONLFile {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONLFile{path: path, logger: logger.Named("runlog")}
}

func (f *JSONLFile) Path() string { return f.path }

// Record logs a preview of the entry and appends it to the file.
func (f *JSONLFile) Record(ctx context.Context, e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	f.logger.Info("run logged", zap.String("run_id", e.RunID), zap.String("preview", preview(string(line))))

	f.mu.Lock()
	defer f.mu.Unlock()
	fh, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.path, err)
	}
	if _, err := fh.Write(append(line, '\n')); err != nil {
		fh.Close()
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return fh.Close()
}

// Entries reads every well-formed line of the file in order. A missing file
// yields no entries.
func (f *JSONLFile) Entries() ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fh, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var out []Entry
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// Get returns the most recent entry for runID.
func (f *JSONLFile) Get(ctx context.Context, runID string) (Entry, error) {
	entries, err := f.Entries()
	if err != nil {
		return Entry{}, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].RunID == runID {
			return entries[i], nil
		}
	}
	return Entry{}, ErrNotFound
}

// Recent returns up to limit entries, newest first.
func (f *JSONLFile) Recent(ctx context.Context, limit int) ([]Entry, error) {
	entries, err := f.Entries()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, min(limit, len(entries)))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLimit {
		return s
	}
	return string(r[:previewLimit]) + "..."
}
