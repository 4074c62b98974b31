package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/mohammad-safakhou/scout/internal/agent"
	"github.com/mohammad-safakhou/scout/internal/llm"
	"github.com/mohammad-safakhou/scout/internal/report"
	"github.com/mohammad-safakhou/scout/internal/runlog"
	"github.com/mohammad-safakhou/scout/internal/state"
	"github.com/mohammad-safakhou/scout/internal/telemetry"
)

func TestMain(m *testing.M) {
	// bleve starts its analysis workers at package init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/blevesearch/bleve/index.AnalysisWorker"))
}

const validReport = `# Executive Summary
Short.

# Technical Landscape

## Theme 1: Retrieval
- Paper (P0): A: first.

## Theme 2: Tooling
- Repo (R0): a/b: second.

# Signals & Recommendations
- Act.`

func reply(text string) llm.Generator {
	return llm.GeneratorFunc(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		return llm.Response{Text: text, Usage: llm.Usage{InputTokens: 5, OutputTokens: 7}}, nil
	})
}

func fail(err error) llm.Generator {
	return llm.GeneratorFunc(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		return llm.Response{}, err
	})
}

// capture records the analyst's input.
type capture struct {
	mu    sync.Mutex
	input string
	calls int
}

func (c *capture) generator(text string) llm.Generator {
	return llm.GeneratorFunc(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.input = req.Input
		c.calls++
		return llm.Response{Text: text}, nil
	})
}

type recorder struct {
	mu      sync.Mutex
	entries []runlog.Entry
	err     error
}

func (r *recorder) Record(ctx context.Context, e runlog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return r.err
}

func testRoster(analyst llm.Generator) agent.Roster {
	r := agent.NewRoster(agent.RosterConfig{Generator: reply("{}"), FastModel: "fast", AnalystModel: "deep"})
	r.Planner.Generator = reply("```json\n{\"primary_topic\":\"rag\",\"persona\":\"CTO\",\"paper_query\":\"rag\",\"repo_query\":\"rag\",\"blog_query\":\"rag\",\"days_back\":14}\n```")
	r.Papers.Generator = reply(`{"papers":[{"title":"A","url":"https://arxiv.org/abs/1)."}]}`)
	r.Repos.Generator = reply(`{"repos":[{"name":"a/b","url":"https://github.com/a/b"}]}`)
	r.Blogs.Generator = reply(`{"blogs":[]}`)
	r.Analyst.Generator = analyst
	return r
}

func TestRunHappyPath(t *testing.T) {
	an := &capture{}
	rec := &recorder{}
	metrics := telemetry.NewMetrics()
	p := New(Options{
		Roster:   testRoster(an.generator("\n" + validReport + "\n")),
		Recorder: rec,
		Metrics:  metrics,
		Logger:   zaptest.NewLogger(t),
	})

	res, err := p.Run(context.Background(), "retrieval augmented generation")
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "rag", res.Plan.PrimaryTopic)
	assert.Equal(t, 14, res.Plan.DaysBack)
	assert.Equal(t, 3, res.Plan.MaxPapers)
	assert.Empty(t, res.PlanWarnings)
	assert.Empty(t, res.BranchErrors)
	assert.Equal(t, `{"papers":[{"title":"A","url":"https://arxiv.org/abs/1"}]}`, res.Branches[state.KeyPapers])
	assert.Equal(t, validReport, res.Report)
	assert.Empty(t, res.ReportIssues)
	assert.Contains(t, res.TimingsMS, "analyst")
	assert.Contains(t, res.TimingsMS, "blogs")

	assert.Contains(t, an.input, "papers_result:\n{\"papers\"")
	assert.NotContains(t, an.input, "UNAVAILABLE")

	require.Len(t, rec.entries, 1)
	assert.Equal(t, res.RunID, rec.entries[0].RunID)
	assert.Equal(t, validReport, rec.entries[0].FinalSummary)
	assert.Equal(t, res.PlanJSON, rec.entries[0].PlanGenerated)
}

func TestRunBranchFailureIsIsolated(t *testing.T) {
	an := &capture{}
	r := testRoster(an.generator(validReport))
	r.Blogs.Generator = fail(errors.New("search backend down"))
	metrics := telemetry.NewMetrics()
	p := New(Options{Roster: r, Metrics: metrics, Logger: zaptest.NewLogger(t)})

	res, err := p.Run(context.Background(), "rag")
	require.NoError(t, err)

	require.Contains(t, res.BranchErrors, "blogs")
	assert.Contains(t, res.BranchErrors["blogs"], "search backend down")
	assert.Contains(t, res.Branches, state.KeyPapers)
	assert.Contains(t, res.Branches, state.KeyRepos)
	assert.NotContains(t, res.Branches, state.KeyBlogs)

	assert.Equal(t, 1, an.calls)
	assert.Contains(t, an.input, "blogs_result:\n"+agent.UnavailableMarker(state.KeyBlogs))
	assert.Empty(t, res.ReportIssues)
}

func TestRunPlannerFailureStopsRun(t *testing.T) {
	an := &capture{}
	r := testRoster(an.generator(validReport))
	r.Planner.Generator = fail(errors.New("quota"))
	var branchCalls atomic.Int32
	counting := llm.GeneratorFunc(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		branchCalls.Add(1)
		return llm.Response{Text: "{}"}, nil
	})
	r.Papers.Generator, r.Repos.Generator, r.Blogs.Generator = counting, counting, counting
	rec := &recorder{}

	res, err := New(Options{Roster: r, Recorder: rec}).Run(context.Background(), "rag")
	require.Error(t, err)
	var bf *BranchFailure
	require.ErrorAs(t, err, &bf)
	assert.Equal(t, "planner", bf.Stage)
	assert.Zero(t, branchCalls.Load())
	assert.Zero(t, an.calls)
	assert.Empty(t, rec.entries)
	assert.NotEmpty(t, res.RunID)
}

func TestRunAnalystFailure(t *testing.T) {
	rec := &recorder{}
	r := testRoster(reply("  "))
	res, err := New(Options{Roster: r, Recorder: rec}).Run(context.Background(), "rag")
	require.ErrorIs(t, err, agent.ErrNoOutput)
	assert.Len(t, res.Branches, 3)
	assert.Empty(t, res.Report)
	assert.Empty(t, rec.entries)
}

func TestRunEmptyPlanFallsBack(t *testing.T) {
	var seenPlan atomic.Value
	r := testRoster(reply(validReport))
	r.Planner.Generator = reply(" \n\t")
	r.Papers.Generator = llm.GeneratorFunc(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		seenPlan.Store(req.Input)
		return llm.Response{Text: `{"papers":[]}`}, nil
	})
	res, err := New(Options{Roster: r}).Run(context.Background(), "edge inference")
	require.NoError(t, err)
	require.Len(t, res.PlanWarnings, 1)
	assert.Contains(t, res.PlanWarnings[0], "no output")
	assert.Equal(t, "edge inference", res.Plan.BlogQuery)
	assert.Equal(t, res.Plan.JSON(), res.PlanJSON)
	assert.Contains(t, seenPlan.Load(), `"paper_query":"edge inference"`)
	assert.Empty(t, res.BranchErrors)
}

func TestRunUnusablePlanFallsBack(t *testing.T) {
	r := testRoster(reply(validReport))
	r.Planner.Generator = reply("I could not plan this.")
	res, err := New(Options{Roster: r}).Run(context.Background(), "edge inference")
	require.NoError(t, err)
	require.Len(t, res.PlanWarnings, 1)
	assert.Equal(t, "edge inference", res.Plan.PaperQuery)
	assert.Equal(t, 28, res.Plan.DaysBack)
}

func TestRunSchemaWarning(t *testing.T) {
	r := testRoster(reply(validReport))
	r.Planner.Generator = reply(`{"primary_topic":"x"}`)
	res, err := New(Options{Roster: r}).Run(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, res.PlanWarnings, 1)
}

func TestRunReportIssues(t *testing.T) {
	bad := strings.Replace(validReport, "(P0)", "(P4)", 1)

	res, err := New(Options{Roster: testRoster(reply(bad))}).Run(context.Background(), "rag")
	require.NoError(t, err)
	require.Len(t, res.ReportIssues, 1)

	rec := &recorder{}
	_, err = New(Options{Roster: testRoster(reply(bad)), Recorder: rec, StrictReport: true}).Run(context.Background(), "rag")
	var ce *report.ContractError
	require.ErrorAs(t, err, &ce)
	assert.Len(t, ce.Issues, 1)
	assert.Empty(t, rec.entries)
}

func TestRunRecorderErrorIsNotFatal(t *testing.T) {
	rec := &recorder{err: errors.New("disk full")}
	_, err := New(Options{Roster: testRoster(reply(validReport)), Recorder: rec}).Run(context.Background(), "rag")
	require.NoError(t, err)
	assert.Len(t, rec.entries, 1)
}

func TestRunEmptyQuery(t *testing.T) {
	_, err := New(Options{Roster: testRoster(reply(validReport))}).Run(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestRunStateOpenError(t *testing.T) {
	opener := func(ctx context.Context, runID string) (state.Store, error) {
		return nil, errors.New("redis down")
	}
	_, err := New(Options{Roster: testRoster(reply(validReport)), Opener: opener}).Run(context.Background(), "rag")
	assert.ErrorContains(t, err, "redis down")
}

func TestRunIDsAreUnique(t *testing.T) {
	p := New(Options{Roster: testRoster(reply(validReport)), Now: func() time.Time { return time.Unix(0, 0) }})
	a, err := p.Run(context.Background(), "rag")
	require.NoError(t, err)
	b, err := p.Run(context.Background(), "rag")
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, b.RunID)
}
