// Package runlog persists one record per completed research run: an
// append-only JSONL file, an optional Postgres table and a full-text index
// over past reports.
package runlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/scout/internal/telemetry"
)

// NotAvailable stands in for a run value that was never produced.
const NotAvailable = "N/A"

var ErrNotFound = errors.New("runlog: run not found")

// Entry is one run log record.
type Entry struct {
	RunID         string    `json:"run_id"`
	Timestamp     time.Time `json:"timestamp"`
	UserRequest   string    `json:"user_request"`
	FinalSummary  string    `json:"final_summary"`
	PlanGenerated string    `json:"plan_generated"`
}

// NewEntry fills missing summary and plan with NotAvailable.
func NewEntry(runID, request, summary, planJSON string, at time.Time) Entry {
	if summary == "" {
		summary = NotAvailable
	}
	if planJSON == "" {
		planJSON = NotAvailable
	}
	return Entry{
		RunID:         runID,
		Timestamp:     at.UTC(),
		UserRequest:   request,
		FinalSummary:  summary,
		PlanGenerated: planJSON,
	}
}

// Recorder stores entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Reader looks up stored entries.
type Reader interface {
	Get(ctx context.Context, runID string) (Entry, error)
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Sink is a named Recorder inside a Multi.
type Sink struct {
	Name     string
	Recorder Recorder
}

// Multi records to every sink. A failing sink does not stop the others.
type Multi struct {
	sinks   []Sink
	metrics *telemetry.Metrics
}

func NewMulti(metrics *telemetry.Metrics, sinks ...Sink) *Multi {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s.Recorder != nil {
			kept = append(kept, s)
		}
	}
	return &Multi{sinks: kept, metrics: metrics}
}

func (m *Multi) Record(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Recorder.Record(ctx, e); err != nil {
			m.metrics.RunLogError(s.Name)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Len reports the number of sinks.
func (m *Multi) Len() int { return len(m.sinks) }
