// Package server exposes research runs over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/scout/internal/pipeline"
	"github.com/mohammad-safakhou/scout/internal/report"
	"github.com/mohammad-safakhou/scout/internal/runlog"
	"github.com/mohammad-safakhou/scout/internal/telemetry"
)

// Runner executes a research query.
type Runner interface {
	Run(ctx context.Context, query string) (*pipeline.Result, error)
}

// Searcher finds past runs by report text.
type Searcher interface {
	Search(ctx context.Context, q string, k int) ([]runlog.Hit, error)
}

type Options struct {
	Runner    Runner
	History   runlog.Reader // optional
	Index     Searcher      // optional
	Metrics   *telemetry.Metrics
	JWTSecret string
	Logger    *zap.Logger
	// RecentRuns bounds the in-process cache of run results.
	RecentRuns int
}

type Server struct {
	e       *echo.Echo
	runner  Runner
	history runlog.Reader
	index   Searcher
	logger  *zap.Logger
	recent  *resultCache
}

const defaultRecentRuns = 100

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")
	size := opts.RecentRuns
	if size <= 0 {
		size = defaultRecentRuns
	}
	s := &Server{
		e:       echo.New(),
		runner:  opts.Runner,
		history: opts.History,
		index:   opts.Index,
		logger:  logger,
		recent:  newResultCache(size),
	}

	e := s.e
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.HTTPErrorHandler = s.handleError

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(opts.Metrics.Handler()))

	api := e.Group("/api")
	if opts.JWTSecret != "" {
		api.Use(AuthMiddleware([]byte(opts.JWTSecret)))
	}
	api.POST("/runs", s.createRun)
	api.GET("/runs", s.listRuns)
	api.GET("/runs/:id", s.getRun)
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("listening", zap.String("addr", addr))
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

// handleError renders every error as {"error": msg}.
func (s *Server) handleError(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}
	req := c.Request()
	s.logger.Warn("request failed",
		zap.Int("status", code),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.String("remote", c.RealIP()),
		zap.Error(err))
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]any{"error": msg})
	}
}

type createRunRequest struct {
	Query string `json:"query"`
}

type runFailure struct {
	Error  string           `json:"error"`
	Result *pipeline.Result `json:"result,omitempty"`
}

func (s *Server) createRun(c echo.Context) error {
	var body createRunRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(body.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	res, err := s.runner.Run(c.Request().Context(), strings.TrimSpace(body.Query))
	if res != nil {
		s.recent.put(res)
	}
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyQuery) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		var bf *pipeline.BranchFailure
		var ce *report.ContractError
		if errors.As(err, &bf) || errors.As(err, &ce) {
			s.logger.Warn("run failed", zap.Error(err))
			return c.JSON(http.StatusBadGateway, runFailure{Error: err.Error(), Result: res})
		}
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

func (s *Server) getRun(c echo.Context) error {
	id := c.Param("id")
	if res, ok := s.recent.get(id); ok {
		return c.JSON(http.StatusOK, res)
	}
	if s.history == nil {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	entry, err := s.history.Get(c.Request().Context(), id)
	if errors.Is(err, runlog.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entry)
}

// listRuns searches past reports when q is set and lists recent runs
// otherwise.
func (s *Server) listRuns(c echo.Context) error {
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 200")
		}
		limit = n
	}
	ctx := c.Request().Context()

	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		if s.index == nil {
			return echo.NewHTTPError(http.StatusNotImplemented, "search index not configured")
		}
		hits, err := s.index.Search(ctx, q, limit)
		if err != nil {
			return err
		}
		if hits == nil {
			hits = []runlog.Hit{}
		}
		return c.JSON(http.StatusOK, map[string]any{"query": q, "hits": hits})
	}

	if s.history == nil {
		return c.JSON(http.StatusOK, map[string]any{"runs": s.recent.list(limit)})
	}
	entries, err := s.history.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []runlog.Entry{}
	}
	return c.JSON(http.StatusOK, map[string]any{"runs": entries})
}

// resultCache keeps the most recent results, including failed runs that
// never reach the run log.
type resultCache struct {
	mu    sync.Mutex
	size  int
	order []string
	byID  map[string]*pipeline.Result
}

func newResultCache(size int) *resultCache {
	return &resultCache{size: size, byID: make(map[string]*pipeline.Result)}
}

func (r *resultCache) put(res *pipeline.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[res.RunID]; !ok {
		r.order = append(r.order, res.RunID)
	}
	r.byID[res.RunID] = res
	for len(r.order) > r.size {
		delete(r.byID, r.order[0])
		r.order = r.order[1:]
	}
}

func (r *resultCache) get(id string) (*pipeline.Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.byID[id]
	return res, ok
}

type runSummary struct {
	RunID      string    `json:"run_id"`
	Query      string    `json:"query"`
	FinishedAt time.Time `json:"finished_at"`
	Failed     bool      `json:"failed"`
}

// list returns up to limit summaries, newest first.
func (r *resultCache) list(limit int) []runSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]runSummary, 0, min(limit, len(r.order)))
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		res := r.byID[r.order[i]]
		out = append(out, runSummary{
			RunID:      res.RunID,
			Query:      res.Query,
			FinishedAt: res.FinishedAt,
			Failed:     res.Report == "",
		})
	}
	return out
}
