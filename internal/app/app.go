// Package app wires configuration into a ready pipeline and its sinks.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/agent"
	"github.com/mohammad-safakhou/scout/internal/llm"
	"github.com/mohammad-safakhou/scout/internal/pipeline"
	"github.com/mohammad-safakhou/scout/internal/runlog"
	"github.com/mohammad-safakhou/scout/internal/sources"
	"github.com/mohammad-safakhou/scout/internal/state"
	"github.com/mohammad-safakhou/scout/internal/telemetry"
)

// Version is stamped into traces.
var Version = "dev"

// App owns everything a command needs for the lifetime of the process.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *telemetry.Metrics
	Telemetry *telemetry.Telemetry
	Pipeline  *pipeline.Pipeline
	Redis     *redis.Client
	JSONL     *runlog.JSONLFile
	Postgres  *runlog.Postgres
	Index     *runlog.Index

	closers []func() error
}

// Deps lets callers replace the network-facing pieces, mostly in tests.
type Deps struct {
	Generator llm.Generator
	Papers    sources.PaperSearcher
	Repos     sources.RepoSearcher
	Blogs     sources.BlogSearcher
}

// New builds the App. Optional sinks (Redis, Postgres) are connected only
// when configured; the JSONL log and the index are always present.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, deps Deps) (a *App, err error) {
	a = &App{Config: cfg, Logger: logger, Metrics: telemetry.NewMetrics()}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
			a = nil
		}
	}()

	if a.Telemetry, err = telemetry.Setup(ctx, cfg.Telemetry, Version, logger); err != nil {
		return a, err
	}
	a.closers = append(a.closers, func() error { return a.Telemetry.Shutdown(context.Background()) })

	if deps.Generator == nil {
		if deps.Generator, err = llm.NewGenerator(ctx, cfg.LLM, logger); err != nil {
			return a, fmt.Errorf("llm: %w", err)
		}
	}
	httpClient := sources.NewHTTPClient(cfg.Sources.Timeout)
	if deps.Papers == nil {
		deps.Papers = sources.NewArxivClient(cfg.Sources.Arxiv.Endpoint, httpClient)
	}
	if deps.Repos == nil {
		gh := cfg.Sources.GitHub
		deps.Repos = sources.NewGitHubClient(gh.Endpoint, gh.Token, gh.UserAgent, httpClient)
	}
	if deps.Blogs == nil {
		if ws := sources.NewWebSearcherFromConfig(cfg.Sources.WebSearch, httpClient, logger); ws != nil {
			deps.Blogs = ws
		} else {
			logger.Info("no web search keys configured, blog branch uses model grounding")
		}
	}

	opener := state.MemoryOpener()
	if cfg.Storage.State == "redis" {
		if a.Redis, err = state.Conn(ctx, cfg.Storage.Redis, logger); err != nil {
			return a, err
		}
		a.closers = append(a.closers, a.Redis.Close)
		opener = state.RedisOpener(a.Redis, cfg.Storage.Redis.StateTTL, logger.Named("state"))
	}

	a.JSONL = runlog.NewJSONLFile(cfg.Pipeline.RunLogFile, logger)
	if a.Index, err = runlog.OpenIndex(cfg.Pipeline.IndexPath); err != nil {
		return a, err
	}
	a.closers = append(a.closers, a.Index.Close)
	sinks := []runlog.Sink{{Name: "jsonl", Recorder: a.JSONL}, {Name: "index", Recorder: a.Index}}
	if cfg.Storage.Postgres.Configured() {
		if a.Postgres, err = runlog.OpenPostgres(ctx, cfg.Storage.Postgres.DSN()); err != nil {
			return a, err
		}
		a.closers = append(a.closers, a.Postgres.Close)
		sinks = append(sinks, runlog.Sink{Name: "postgres", Recorder: a.Postgres})
	}

	a.Pipeline = pipeline.New(pipeline.Options{
		Roster: agent.NewRoster(agent.RosterConfig{
			Generator:    deps.Generator,
			FastModel:    cfg.LLM.FastModel,
			AnalystModel: cfg.LLM.AnalystModel,
			Papers:       deps.Papers,
			Repos:        deps.Repos,
			Blogs:        deps.Blogs,
		}),
		Opener:       opener,
		Recorder:     runlog.NewMulti(a.Metrics, sinks...),
		Metrics:      a.Metrics,
		Logger:       logger,
		StrictReport: cfg.Pipeline.StrictReport,
	})
	return a, nil
}

// History is the durable run log: Postgres when configured, else the JSONL
// file.
func (a *App) History() runlog.Reader {
	if a.Postgres != nil {
		return a.Postgres
	}
	return a.JSONL
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}
