package runlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/blevesearch/bleve"
)

// Index is a full-text index over past runs.
type Index struct {
	idx bleve.Index
}

type indexedRun struct {
	UserRequest   string    `json:"user_request"`
	FinalSummary  string    `json:"final_summary"`
	PlanGenerated string    `json:"plan_generated"`
	Timestamp     time.Time `json:"timestamp"`
}

// Hit is one search result.
type Hit struct {
	RunID       string    `json:"run_id"`
	Score       float64   `json:"score"`
	UserRequest string    `json:"user_request"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
	Fragments   []string  `json:"fragments,omitempty"`
}

// OpenIndex opens or creates an index at path. An empty path keeps the
// index in memory.
func OpenIndex(path string) (*Index, error) {
	if strings.TrimSpace(path) == "" {
		idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
		if err != nil {
			return nil, err
		}
		return &Index{idx: idx}, nil
	}
	if _, err := os.Stat(path); err == nil {
		idx, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open index %s: %w", path, err)
		}
		return &Index{idx: idx}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	idx, err := bleve.New(path, bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index %s: %w", path, err)
	}
	return &Index{idx: idx}, nil
}

func (x *Index) Close() error { return x.idx.Close() }

func (x *Index) Record(ctx context.Context, e Entry) error {
	return x.idx.Index(e.RunID, indexedRun{
		UserRequest:   e.UserRequest,
		FinalSummary:  e.FinalSummary,
		PlanGenerated: e.PlanGenerated,
		Timestamp:     e.Timestamp,
	})
}

// Search runs a query-string query and returns at most k hits.
func (x *Index) Search(ctx context.Context, q string, k int) ([]Hit, error) {
	if strings.TrimSpace(q) == "" {
		return nil, nil
	}
	if k <= 0 {
		k = 10
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(q), k, 0, false)
	req.Fields = []string{"user_request", "timestamp"}
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField("final_summary")
	res, err := x.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", q, err)
	}
	out := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{RunID: h.ID, Score: h.Score}
		if s, ok := h.Fields["user_request"].(string); ok {
			hit.UserRequest = s
		}
		if s, ok := h.Fields["timestamp"].(string); ok {
			if ts, err := time.Parse(time.RFC3339, s); err == nil {
				hit.Timestamp = ts
			}
		}
		hit.Fragments = h.Fragments["final_summary"]
		out = append(out, hit)
	}
	return out, nil
}

// Count reports the number of indexed runs.
func (x *Index) Count() (uint64, error) { return x.idx.DocCount() }
