package runlog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestJSONLFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run_log.jsonl")
	f := NewJSONLFile(path, zaptest.NewLogger(t))
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, f.Record(ctx, NewEntry("r1", "first", "report one", `{"persona":"VC"}`, at)))
	require.NoError(t, f.Record(ctx, NewEntry("r2", "second", "", "", at.Add(time.Minute))))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "first", first["user_request"])
	assert.Equal(t, "report one", first["final_summary"])
	assert.Equal(t, `{"persona":"VC"}`, first["plan_generated"])
	assert.Equal(t, "2025-06-01T12:00:00Z", first["timestamp"])
	assert.Equal(t, "r1", first["run_id"])

	e, err := f.Get(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, NotAvailable, e.FinalSummary)

	_, err = f.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	recent, err := f.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "r2", recent[0].RunID)
}

func TestJSONLFileSkipsBadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("not json\n{\"run_id\":\"ok\"}\n"), 0o644))
	entries, err := NewJSONLFile(path, nil).Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ok", entries[0].RunID)
}

func TestJSONLFileMissing(t *testing.T) {
	entries, err := NewJSONLFile(filepath.Join(t.TempDir(), "none.jsonl"), nil).Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJSONLFileUnwritable(t *testing.T) {
	f := NewJSONLFile(t.TempDir(), nil)
	err := f.Record(context.Background(), NewEntry("r", "q", "s", "p", time.Now()))
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))
	long := strings.Repeat("é", previewLimit+5)
	p := preview(long)
	assert.True(t, strings.HasSuffix(p, "..."))
	assert.Equal(t, previewLimit+3, len([]rune(p)))
}
