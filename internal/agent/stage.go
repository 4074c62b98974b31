// Package agent defines the generation stages of a research run: the
// planner, the three retrieval branches and the analyst.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/scout/internal/helpers"
	"github.com/mohammad-safakhou/scout/internal/llm"
	"github.com/mohammad-safakhou/scout/internal/plan"
	"github.com/mohammad-safakhou/scout/internal/state"
)

var tracer = otel.Tracer("scout/internal/agent")

// ErrNoOutput reports a stage whose generator returned no text.
var ErrNoOutput = errors.New("stage produced no output")

// BranchFailure is a stage that did not write its output key.
type BranchFailure struct {
	Stage string
	Err   error
}

func (e *BranchFailure) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *BranchFailure) Unwrap() error { return e.Err }

// Hook post-processes a stage's text before it is stored.
type Hook func(string) string

// SanitizeJSONOutput reduces almost-JSON output to compact JSON with clean
// links, leaving unparseable text untouched.
func SanitizeJSONOutput(s string) string { return helpers.SanitizeJSONText(s) }

// TrimOutput strips surrounding whitespace.
func TrimOutput(s string) string { return strings.TrimSpace(s) }

// PlanAware tools take their argument defaults from the run's plan.
type PlanAware interface {
	WithPlan(p plan.Plan) llm.Tool
}

// Stage wraps one generation call: it reads InputKeys from the run state,
// asks the generator, applies Hook and writes OutputKey exactly once.
type Stage struct {
	Name            string
	Role            Role
	Model           string
	Instruction     string
	InputKeys       []string
	OutputKey       string
	Tools           []llm.Tool
	Grounding       bool
	MaxOutputTokens int
	Format          llm.Format
	Hook            Hook
	Generator       llm.Generator
}

// Outcome reports what a stage did.
type Outcome struct {
	Output    string
	Usage     llm.Usage
	ToolCalls int
	Duration  time.Duration
}

// Run executes the stage for request. Any failure is a *BranchFailure and
// leaves OutputKey unwritten.
func (s *Stage) Run(ctx context.Context, store state.Store, request string) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "stage."+s.Name, trace.WithAttributes(
		attribute.String("role", string(s.Role)),
		attribute.String("model", s.Model),
	))
	defer span.End()
	start := time.Now()

	out, err := s.run(ctx, store, request)
	out.Duration = time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stage failed")
		return out, &BranchFailure{Stage: s.Name, Err: err}
	}
	span.SetAttributes(attribute.Int("tool_calls", out.ToolCalls), attribute.Int("output_bytes", len(out.Output)))
	span.SetStatus(codes.Ok, "")
	return out, nil
}

func (s *Stage) run(ctx context.Context, store state.Store, request string) (Outcome, error) {
	var out Outcome
	if s.Generator == nil {
		return out, errors.New("no generator configured")
	}
	input, planJSON, err := s.buildInput(ctx, store, request)
	if err != nil {
		return out, err
	}

	resp, err := s.Generator.Generate(ctx, llm.Request{
		Model:           s.Model,
		Instruction:     s.Instruction,
		Input:           input,
		Tools:           s.bindTools(planJSON, request),
		Grounding:       s.Grounding,
		MaxOutputTokens: s.MaxOutputTokens,
		Format:          s.Format,
	})
	out.Usage = resp.Usage
	out.ToolCalls = resp.ToolCalls
	if err != nil {
		return out, err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return out, ErrNoOutput
	}

	text := resp.Text
	if s.Hook != nil {
		text = s.Hook(text)
	}
	if err := store.Set(ctx, s.OutputKey, text); err != nil {
		return out, fmt.Errorf("write %s: %w", s.OutputKey, err)
	}
	out.Output = text
	return out, nil
}

// buildInput lays out the request followed by each input key. Keys that were
// never written are marked unavailable so the model does not fill the gap.
func (s *Stage) buildInput(ctx context.Context, store state.Store, request string) (string, string, error) {
	var b strings.Builder
	b.WriteString("User request:\n")
	b.WriteString(strings.TrimSpace(request))
	b.WriteString("\n")

	var planJSON string
	for _, key := range s.InputKeys {
		v, ok, err := store.Get(ctx, key)
		if err != nil {
			return "", "", fmt.Errorf("read %s: %w", key, err)
		}
		if key == state.KeyPlan && ok {
			planJSON = v
		}
		b.WriteString("\n")
		b.WriteString(key)
		b.WriteString(":\n")
		if !ok || strings.TrimSpace(v) == "" {
			b.WriteString(UnavailableMarker(key))
		} else {
			b.WriteString(v)
		}
		b.WriteString("\n")
	}
	return b.String(), planJSON, nil
}

// UnavailableMarker is the text a stage sees in place of a missing key.
func UnavailableMarker(key string) string {
	return fmt.Sprintf("UNAVAILABLE: %s was not produced in this run. Treat it as no results and do not invent entries for it.", key)
}

func (s *Stage) bindTools(planJSON, request string) []llm.Tool {
	if len(s.Tools) == 0 {
		return nil
	}
	var p plan.Plan
	if planJSON != "" {
		// Unusable fields fall back to defaults inside Parse.
		p, _ = plan.Parse(planJSON, request)
	} else {
		p = plan.Default(request)
	}
	tools := make([]llm.Tool, 0, len(s.Tools))
	for _, t := range s.Tools {
		if pa, ok := t.(PlanAware); ok {
			tools = append(tools, pa.WithPlan(p))
			continue
		}
		tools = append(tools, t)
	}
	return tools
}
