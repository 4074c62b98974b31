package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/scout/internal/plan"
	"github.com/mohammad-safakhou/scout/internal/sources"
)

type paperCall struct {
	query      string
	daysBack   int
	maxResults int
}

type stubPapers struct {
	calls []paperCall
	err   error
}

func (s *stubPapers) SearchPapers(ctx context.Context, query string, daysBack, maxResults int) (sources.PaperResults, error) {
	s.calls = append(s.calls, paperCall{query, daysBack, maxResults})
	if s.err != nil {
		return sources.PaperResults{}, s.err
	}
	return sources.PaperResults{Papers: []sources.Paper{{Title: "Attention", Authors: []string{"A. Author"}, Year: 2025, Venue: "arXiv", URL: "https://arxiv.org/abs/1"}}}, nil
}

type stubBlogs struct {
	query string
	max   int
}

func (s *stubBlogs) SearchBlogs(ctx context.Context, query string, maxResults int) (sources.BlogResults, error) {
	s.query, s.max = query, maxResults
	return sources.BlogResults{Blogs: []sources.Blog{}}, nil
}

func TestPaperToolArguments(t *testing.T) {
	stub := &stubPapers{}
	tool := NewPaperTool(stub)

	payload, err := tool.Call(context.Background(), map[string]any{
		"query":       "diffusion",
		"days_back":   float64(7),
		"max_results": "4",
	})
	require.NoError(t, err)
	require.Len(t, stub.calls, 1)
	assert.Equal(t, paperCall{"diffusion", 7, 4}, stub.calls[0])

	papers, ok := payload["papers"].([]any)
	require.True(t, ok)
	require.Len(t, papers, 1)
	assert.Equal(t, "https://arxiv.org/abs/1", papers[0].(map[string]any)["url"])
}

func TestPaperToolDefaults(t *testing.T) {
	stub := &stubPapers{}
	_, err := NewPaperTool(stub).Call(context.Background(), map[string]any{"query": "x"})
	require.NoError(t, err)
	assert.Equal(t, paperCall{"x", 30, 5}, stub.calls[0])

	_, err = NewPaperTool(stub).Call(context.Background(), map[string]any{})
	assert.ErrorIs(t, err, errMissingQuery)
}

func TestPaperToolWithPlan(t *testing.T) {
	stub := &stubPapers{}
	p := plan.Default("ignored")
	p.PaperQuery = "mixture of experts"
	p.DaysBack = 14
	p.MaxPapers = 2

	tool := NewPaperTool(stub).WithPlan(p)
	_, err := tool.Call(context.Background(), map[string]any{"query": "  "})
	require.NoError(t, err)
	assert.Equal(t, paperCall{"mixture of experts", 14, 2}, stub.calls[0])

	// Explicit arguments still win over the plan.
	_, err = tool.Call(context.Background(), map[string]any{"query": "moe", "max_results": json.Number("6")})
	require.NoError(t, err)
	assert.Equal(t, paperCall{"moe", 14, 6}, stub.calls[1])
}

func TestPaperToolError(t *testing.T) {
	boom := &sources.RequestError{Provider: "arxiv", StatusCode: 503, Err: errors.New("unavailable")}
	_, err := NewPaperTool(&stubPapers{err: boom}).Call(context.Background(), map[string]any{"query": "x"})
	var reqErr *sources.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 503, reqErr.StatusCode)
}

func TestWebToolWithPlan(t *testing.T) {
	stub := &stubBlogs{}
	p := plan.Default("q")
	p.BlogQuery = "llm eval blog"
	p.MaxBlogs = 0

	payload, err := NewWebTool(stub).WithPlan(p).Call(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "llm eval blog", stub.query)
	assert.Equal(t, 5, stub.max)
	assert.Contains(t, payload, "blogs")
}

func TestIntArg(t *testing.T) {
	tests := []struct {
		in   any
		want int
	}{
		{float64(2.6), 3},
		{7, 7},
		{int64(8), 8},
		{json.Number("9"), 9},
		{" 10 ", 10},
		{"ten", 1},
		{nil, 1},
		{true, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, intArg(map[string]any{"n": tt.in}, "n", 1), "%v", tt.in)
	}
}

func TestToolSpecs(t *testing.T) {
	assert.Equal(t, ToolSearchPapers, NewPaperTool(nil).Spec().Name)
	assert.Equal(t, ToolSearchRepos, NewRepoTool(nil).Spec().Name)
	assert.Equal(t, ToolSearchWeb, NewWebTool(nil).Spec().Name)
	for _, p := range NewPaperTool(nil).Spec().Params {
		if p.Name == "query" {
			assert.True(t, p.Required)
		}
	}
}
