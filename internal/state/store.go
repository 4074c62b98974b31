// Package state holds the per-run key/value store the pipeline stages share.
// Each key is written once by the stage that owns it.
package state

import (
	"context"
	"errors"
)

// Keys written during a run.
const (
	KeyPlan         = "plan_json"
	KeyPapers       = "papers_result"
	KeyRepos        = "repos_result"
	KeyBlogs        = "blogs_result"
	KeyFinalSummary = "final_summary"
)

// ErrKeyWritten is returned when a key is written a second time.
var ErrKeyWritten = errors.New("state: key already written")

// Store is safe for concurrent use on disjoint keys.
type Store interface {
	// Get returns the value and whether the key has been written.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes key once; later writes fail with ErrKeyWritten.
	Set(ctx context.Context, key, value string) error
	// Snapshot copies every written key.
	Snapshot(ctx context.Context) (map[string]string, error)
}

// Opener creates the store for one run.
type Opener func(ctx context.Context, runID string) (Store, error)

// MemoryOpener opens a fresh MemoryStore for every run.
func MemoryOpener() Opener {
	return func(ctx context.Context, runID string) (Store, error) {
		return NewMemoryStore(), nil
	}
}
