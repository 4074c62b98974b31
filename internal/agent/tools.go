package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/scout/internal/llm"
	"github.com/mohammad-safakhou/scout/internal/plan"
	"github.com/mohammad-safakhou/scout/internal/sources"
)

// Tool names as the model sees them.
const (
	ToolSearchPapers = "search_papers"
	ToolSearchRepos  = "search_repos"
	ToolSearchWeb    = "search_web"
)

// Argument defaults used when neither the model nor a plan supplies one.
const (
	defaultToolDaysBack   = 30
	defaultToolMaxResults = 5
)

var errMissingQuery = errors.New("query argument is required")

// PaperTool exposes a PaperSearcher as search_papers.
type PaperTool struct {
	Searcher   sources.PaperSearcher
	query      string
	daysBack   int
	maxResults int
}

func NewPaperTool(s sources.PaperSearcher) *PaperTool {
	return &PaperTool{Searcher: s, daysBack: defaultToolDaysBack, maxResults: defaultToolMaxResults}
}

func (t *PaperTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ToolSearchPapers,
		Description: "Search arXiv for recent papers. Returns {\"papers\": [...]} with title, authors, year, venue, url and summary.",
		Params: []llm.Param{
			{Name: "query", Type: llm.ParamString, Description: "Keyword query.", Required: true},
			{Name: "days_back", Type: llm.ParamInteger, Description: "Only papers published within this many days."},
			{Name: "max_results", Type: llm.ParamInteger, Description: "Number of papers, 1 to 20."},
		},
	}
}

func (t *PaperTool) WithPlan(p plan.Plan) llm.Tool {
	bound := *t
	bound.query = p.PaperQuery
	bound.daysBack = p.DaysBack
	if p.MaxPapers > 0 {
		bound.maxResults = p.MaxPapers
	}
	return &bound
}

func (t *PaperTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	query := stringArg(args, "query", t.query)
	if query == "" {
		return nil, errMissingQuery
	}
	res, err := t.Searcher.SearchPapers(ctx, query, intArg(args, "days_back", t.daysBack), intArg(args, "max_results", t.maxResults))
	if err != nil {
		return nil, err
	}
	return toPayload(res)
}

// RepoTool exposes a RepoSearcher as search_repos.
type RepoTool struct {
	Searcher   sources.RepoSearcher
	query      string
	maxResults int
}

func NewRepoTool(s sources.RepoSearcher) *RepoTool {
	return &RepoTool{Searcher: s, maxResults: defaultToolMaxResults}
}

func (t *RepoTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ToolSearchRepos,
		Description: "Search GitHub repositories sorted by stars. Returns {\"repos\": [...]} with name, url, description, stars and last_updated.",
		Params: []llm.Param{
			{Name: "query", Type: llm.ParamString, Description: "Keyword query.", Required: true},
			{Name: "max_results", Type: llm.ParamInteger, Description: "Number of repositories, 1 to 10."},
		},
	}
}

func (t *RepoTool) WithPlan(p plan.Plan) llm.Tool {
	bound := *t
	bound.query = p.RepoQuery
	if p.MaxRepos > 0 {
		bound.maxResults = p.MaxRepos
	}
	return &bound
}

func (t *RepoTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	query := stringArg(args, "query", t.query)
	if query == "" {
		return nil, errMissingQuery
	}
	res, err := t.Searcher.SearchRepos(ctx, query, intArg(args, "max_results", t.maxResults))
	if err != nil {
		return nil, err
	}
	return toPayload(res)
}

// WebTool exposes a BlogSearcher as search_web.
type WebTool struct {
	Searcher   sources.BlogSearcher
	query      string
	maxResults int
}

func NewWebTool(s sources.BlogSearcher) *WebTool {
	return &WebTool{Searcher: s, maxResults: defaultToolMaxResults}
}

func (t *WebTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ToolSearchWeb,
		Description: "Search the web for blog posts and articles. Returns {\"blogs\": [...]} with title, url, snippet and source.",
		Params: []llm.Param{
			{Name: "query", Type: llm.ParamString, Description: "Keyword query.", Required: true},
			{Name: "max_results", Type: llm.ParamInteger, Description: "Number of results, 1 to 10."},
		},
	}
}

func (t *WebTool) WithPlan(p plan.Plan) llm.Tool {
	bound := *t
	bound.query = p.BlogQuery
	if p.MaxBlogs > 0 {
		bound.maxResults = p.MaxBlogs
	}
	return &bound
}

func (t *WebTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	query := stringArg(args, "query", t.query)
	if query == "" {
		return nil, errMissingQuery
	}
	res, err := t.Searcher.SearchBlogs(ctx, query, intArg(args, "max_results", t.maxResults))
	if err != nil {
		return nil, err
	}
	return toPayload(res)
}

func stringArg(args map[string]any, key, def string) string {
	if s, ok := args[key].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return def
}

// intArg accepts the float64 that JSON decoding yields, plain ints and
// numeric strings.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(math.Round(v))
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func toPayload(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode tool result: %w", err)
	}
	return out, nil
}
