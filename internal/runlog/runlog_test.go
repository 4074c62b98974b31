package runlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/scout/internal/telemetry"
)

func TestNewEntryDefaults(t *testing.T) {
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))
	e := NewEntry("r1", "agents", "", "", at)
	assert.Equal(t, NotAvailable, e.FinalSummary)
	assert.Equal(t, NotAvailable, e.PlanGenerated)
	assert.Equal(t, time.UTC, e.Timestamp.Location())

	e = NewEntry("r1", "agents", "report", `{"a":1}`, at)
	assert.Equal(t, "report", e.FinalSummary)
	assert.Equal(t, `{"a":1}`, e.PlanGenerated)
}

type memRecorder struct {
	entries []Entry
	err     error
}

func (m *memRecorder) Record(ctx context.Context, e Entry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func TestMultiKeepsGoingPastFailures(t *testing.T) {
	metrics := telemetry.NewMetrics()
	good := &memRecorder{}
	bad := &memRecorder{err: errors.New("disk full")}
	m := NewMulti(metrics, Sink{"jsonl", bad}, Sink{"postgres", nil}, Sink{"index", good})
	assert.Equal(t, 2, m.Len())

	err := m.Record(context.Background(), NewEntry("r1", "q", "s", "p", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jsonl: disk full")
	assert.Len(t, good.entries, 1)

	reg := metrics.Registry()
	count, err := testutil.GatherAndCount(reg, "scout_run_log_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
