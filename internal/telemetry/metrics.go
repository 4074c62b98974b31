package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records pipeline activity. A nil *Metrics discards everything so
// callers never have to check.
type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	stageDuration *prometheus.HistogramVec
	branchFailed  *prometheus.CounterVec
	tokens        *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	reportIssues  prometheus.Counter
	runLogErrors  *prometheus.CounterVec
}

// NewMetrics registers the scout collectors on a fresh registry together
// with the Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scout",
			Name:      "runs_total",
			Help:      "Research runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scout",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a research run.",
			Buckets:   []float64{1, 5, 10, 20, 40, 60, 120, 300},
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scout",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of one generation stage.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"stage", "outcome"}),
		branchFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scout",
			Name:      "branch_failures_total",
			Help:      "Retrieval branches that wrote no output.",
		}, []string{"stage"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scout",
			Name:      "llm_tokens_total",
			Help:      "Tokens reported by the generator.",
		}, []string{"stage", "direction"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scout",
			Name:      "tool_calls_total",
			Help:      "Tool invocations made by the generator.",
		}, []string{"stage"}),
		reportIssues: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scout",
			Name:      "report_issues_total",
			Help:      "Layout issues found in analyst reports.",
		}),
		runLogErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scout",
			Name:      "run_log_errors_total",
			Help:      "Failed run log writes by sink.",
		}, []string{"sink"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runs, m.runDuration, m.stageDuration, m.branchFailed,
		m.tokens, m.toolCalls, m.reportIssues, m.runLogErrors,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RunFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) StageFinished(stage string, ok bool, d time.Duration, inTokens, outTokens, toolCalls int) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.stageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
	m.tokens.WithLabelValues(stage, "input").Add(float64(inTokens))
	m.tokens.WithLabelValues(stage, "output").Add(float64(outTokens))
	if toolCalls > 0 {
		m.toolCalls.WithLabelValues(stage).Add(float64(toolCalls))
	}
}

func (m *Metrics) BranchFailed(stage string) {
	if m == nil {
		return
	}
	m.branchFailed.WithLabelValues(stage).Inc()
}

func (m *Metrics) ReportIssues(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reportIssues.Add(float64(n))
}

func (m *Metrics) RunLogError(sink string) {
	if m == nil {
		return
	}
	m.runLogErrors.WithLabelValues(sink).Inc()
}
