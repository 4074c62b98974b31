// Package llm adapts text-generation backends to the single Generate call
// the pipeline stages use.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/scout/config"
)

// Format is the encoding a stage expects back.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "text"
}

// ParamType is the JSON type of a tool argument.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
)

type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// ToolSpec describes a callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Params      []Param
}

// Tool is a function the model may call while generating.
type Tool interface {
	Spec() ToolSpec
	Call(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Request is one generation call.
type Request struct {
	Model           string
	Instruction     string
	Input           string
	Tools           []Tool
	Grounding       bool // let the backend search the web itself
	MaxOutputTokens int
	Format          Format
}

type Usage struct {
	InputTokens  int
	OutputTokens int
}

type Response struct {
	Text      string
	Usage     Usage
	ToolCalls int
}

// Generator produces text for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (Response, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// MaxToolRounds bounds the call/respond loop. After the last round the model
// is asked once more with tools withheld so it has to answer in text.
const MaxToolRounds = 4

// ErrEmptyResponse reports that the backend returned no text.
var ErrEmptyResponse = errors.New("llm: empty response")

// NewGenerator builds the backend named by cfg.Provider.
func NewGenerator(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case "gemini":
		return NewGeminiGenerator(ctx, cfg, logger)
	case "openai":
		return NewOpenAIGenerator(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

// callTool runs the named tool. Failures are handed back to the model as an
// {"error": ...} payload instead of aborting generation.
func callTool(ctx context.Context, tools []Tool, name string, args map[string]any, logger *zap.Logger) map[string]any {
	for _, t := range tools {
		if t.Spec().Name != name {
			continue
		}
		out, err := t.Call(ctx, args)
		if err != nil {
			logger.Warn("tool call failed", zap.String("tool", name), zap.Error(err))
			return map[string]any{"error": err.Error()}
		}
		return out
	}
	return map[string]any{"error": fmt.Sprintf("unknown tool %q", name)}
}

// jsonSchema renders a ToolSpec's parameters as a JSON Schema object.
func jsonSchema(spec ToolSpec) map[string]any {
	props := make(map[string]any, len(spec.Params))
	required := make([]string, 0, len(spec.Params))
	for _, p := range spec.Params {
		props[p.Name] = map[string]any{"type": string(p.Type), "description": p.Description}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	sort.Strings(required)
	return map[string]any{"type": "object", "properties": props, "required": required}
}
