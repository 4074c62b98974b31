// Package pipeline runs a research query end to end: plan, retrieve on three
// branches, synthesise a report and log the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/scout/internal/agent"
	"github.com/mohammad-safakhou/scout/internal/plan"
	"github.com/mohammad-safakhou/scout/internal/report"
	"github.com/mohammad-safakhou/scout/internal/runlog"
	"github.com/mohammad-safakhou/scout/internal/state"
	"github.com/mohammad-safakhou/scout/internal/telemetry"
)

var tracer = otel.Tracer("scout/internal/pipeline")

// ErrEmptyQuery rejects a blank research query.
var ErrEmptyQuery = errors.New("query is empty")

// Options configures a Pipeline. Opener defaults to in-memory state.
type Options struct {
	Roster       agent.Roster
	Opener       state.Opener
	Recorder     runlog.Recorder
	Metrics      *telemetry.Metrics
	Logger       *zap.Logger
	StrictReport bool
	Now          func() time.Time
}

type Pipeline struct {
	roster   agent.Roster
	open     state.Opener
	recorder runlog.Recorder
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	strict   bool
	now      func() time.Time
}

func New(opts Options) *Pipeline {
	p := &Pipeline{
		roster:   opts.Roster,
		open:     opts.Opener,
		recorder: opts.Recorder,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		strict:   opts.StrictReport,
		now:      opts.Now,
	}
	if p.open == nil {
		p.open = state.MemoryOpener()
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	p.logger = p.logger.Named("pipeline")
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Result describes a run. On failure it holds whatever was produced before
// the failing step.
type Result struct {
	RunID        string            `json:"run_id"`
	Query        string            `json:"query"`
	Plan         plan.Plan         `json:"plan"`
	PlanJSON     string            `json:"plan_json"`
	PlanWarnings []string          `json:"plan_warnings,omitempty"`
	Branches     map[string]string `json:"branches"`
	BranchErrors map[string]string `json:"branch_errors,omitempty"`
	Report       string            `json:"report"`
	ReportIssues []report.Issue    `json:"report_issues,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	TimingsMS    map[string]int64  `json:"timings_ms"`
}

// Run executes one research run for query.
func (p *Pipeline) Run(ctx context.Context, query string) (*Result, error) {
	res := &Result{
		RunID:     uuid.NewString(),
		Query:     query,
		Branches:  make(map[string]string),
		StartedAt: p.now().UTC(),
		TimingsMS: make(map[string]int64),
	}
	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", res.RunID))
	logger := p.logger.With(zap.String("run_id", res.RunID))

	err := p.run(ctx, res, logger)
	res.FinishedAt = p.now().UTC()
	elapsed := res.FinishedAt.Sub(res.StartedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
		p.metrics.RunFinished("failed", elapsed)
		logger.Error("run failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return res, err
	}
	span.SetStatus(codes.Ok, "")
	p.metrics.RunFinished("ok", elapsed)
	logger.Info("run finished",
		zap.Duration("elapsed", elapsed),
		zap.Int("branch_failures", len(res.BranchErrors)),
		zap.Int("report_issues", len(res.ReportIssues)))
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, res *Result, logger *zap.Logger) error {
	if strings.TrimSpace(res.Query) == "" {
		return ErrEmptyQuery
	}
	store, err := p.open(ctx, res.RunID)
	if err != nil {
		return fmt.Errorf("open run state: %w", err)
	}

	// Plan.
	out, err := p.stage(ctx, p.roster.Planner, store, res)
	switch {
	case errors.Is(err, agent.ErrNoOutput):
		// Blank planner output is handled like unparseable output.
		res.Plan = plan.Default(res.Query)
		res.PlanJSON = res.Plan.JSON()
		if serr := store.Set(ctx, state.KeyPlan, res.PlanJSON); serr != nil {
			return fmt.Errorf("planner: %w", serr)
		}
		res.PlanWarnings = append(res.PlanWarnings, "planner returned no output, defaults applied")
	case err != nil:
		return fmt.Errorf("planner: %w", err)
	default:
		res.PlanJSON = out.Output
		parsed, perr := plan.Parse(out.Output, res.Query)
		res.Plan = parsed
		if perr != nil {
			res.PlanWarnings = append(res.PlanWarnings, fmt.Sprintf("plan is not usable JSON, defaults applied: %v", perr))
		} else if verr := plan.ValidateDocument([]byte(out.Output)); verr != nil {
			res.PlanWarnings = append(res.PlanWarnings, verr.Error())
		}
	}
	for _, w := range res.PlanWarnings {
		logger.Warn("plan warning", zap.String("warning", w))
	}

	// Retrieve.
	results := FanOut(ctx, store, res.Query, p.roster.Branches())
	for _, r := range results {
		res.TimingsMS[r.Stage] = r.Outcome.Duration.Milliseconds()
		p.metrics.StageFinished(r.Stage, r.Err == nil, r.Outcome.Duration, r.Outcome.Usage.InputTokens, r.Outcome.Usage.OutputTokens, r.Outcome.ToolCalls)
		if r.Err != nil {
			if res.BranchErrors == nil {
				res.BranchErrors = make(map[string]string)
			}
			res.BranchErrors[r.Stage] = r.Err.Error()
			p.metrics.BranchFailed(r.Stage)
			logger.Warn("branch failed", zap.String("stage", r.Stage), zap.Error(r.Err))
		}
	}

	branchKeys := map[string]string{
		state.KeyPapers: "papers",
		state.KeyRepos:  "repos",
		state.KeyBlogs:  "blogs",
	}
	var counts report.Counts
	for key, field := range branchKeys {
		v, ok, err := store.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
		if ok {
			res.Branches[key] = v
		}
		n := report.CountItems(v, ok, field)
		switch key {
		case state.KeyPapers:
			counts.Papers = n
		case state.KeyRepos:
			counts.Repos = n
		case state.KeyBlogs:
			counts.Blogs = n
		}
	}

	// Synthesise.
	out, err = p.stage(ctx, p.roster.Analyst, store, res)
	if err != nil {
		return fmt.Errorf("analyst: %w", err)
	}
	res.Report = out.Output

	res.ReportIssues = report.Validate(res.Report, counts)
	if len(res.ReportIssues) > 0 {
		p.metrics.ReportIssues(len(res.ReportIssues))
		logger.Warn("report layout issues", zap.Stringers("issues", res.ReportIssues))
		if p.strict {
			return &report.ContractError{Issues: res.ReportIssues}
		}
	}

	if p.recorder != nil {
		entry := runlog.NewEntry(res.RunID, res.Query, res.Report, res.PlanJSON, p.now())
		if err := p.recorder.Record(ctx, entry); err != nil {
			logger.Warn("run log write failed", zap.Error(err))
		}
	}
	return nil
}

func (p *Pipeline) stage(ctx context.Context, s *agent.Stage, store state.Store, res *Result) (agent.Outcome, error) {
	if s == nil {
		return agent.Outcome{}, errors.New("stage not configured")
	}
	out, err := s.Run(ctx, store, res.Query)
	res.TimingsMS[s.Name] = out.Duration.Milliseconds()
	p.metrics.StageFinished(s.Name, err == nil, out.Duration, out.Usage.InputTokens, out.Usage.OutputTokens, out.ToolCalls)
	return out, err
}
