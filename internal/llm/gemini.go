package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/mohammad-safakhou/scout/config"
)

// GeminiGenerator calls the Gemini API through the genai SDK. Tool calls are
// answered in a loop; Grounding attaches the GoogleSearch tool instead.
type GeminiGenerator struct {
	client *genai.Client
	logger *zap.Logger
}

func NewGeminiGenerator(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		timeout := cfg.Timeout
		cc.HTTPOptions.Timeout = &timeout
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiGenerator{client: client, logger: logger.Named("gemini")}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	contents := []*genai.Content{genai.NewContentFromText(req.Input, genai.RoleUser)}
	var out Response

	for round := 0; ; round++ {
		withTools := round < MaxToolRounds
		resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, g.config(req, withTools))
		if err != nil {
			return out, fmt.Errorf("gemini generate: %w", err)
		}
		if resp.UsageMetadata != nil {
			out.Usage.InputTokens += int(resp.UsageMetadata.PromptTokenCount)
			out.Usage.OutputTokens += int(resp.UsageMetadata.CandidatesTokenCount)
		}

		calls := resp.FunctionCalls()
		if len(calls) == 0 || !withTools {
			out.Text = resp.Text()
			if strings.TrimSpace(out.Text) == "" {
				return out, ErrEmptyResponse
			}
			return out, nil
		}

		if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
			contents = append(contents, resp.Candidates[0].Content)
		}
		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			out.ToolCalls++
			g.logger.Debug("tool call", zap.String("tool", call.Name), zap.Int("round", round))
			part := genai.NewPartFromFunctionResponse(call.Name, callTool(ctx, req.Tools, call.Name, call.Args, g.logger))
			part.FunctionResponse.ID = call.ID
			parts = append(parts, part)
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
	}
}

func (g *GeminiGenerator) config(req Request, withTools bool) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxOutputTokens),
	}
	if req.Instruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.Instruction, genai.RoleUser)
	}

	hasTools := false
	if withTools && len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, functionDeclaration(t.Spec()))
		}
		cfg.Tools = append(cfg.Tools, &genai.Tool{FunctionDeclarations: decls})
		hasTools = true
	}
	if withTools && req.Grounding {
		cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
		hasTools = true
	}

	// The API rejects a JSON response MIME type when tools are attached.
	switch {
	case req.Format == FormatJSON && !hasTools:
		cfg.ResponseMIMEType = "application/json"
	case req.Format == FormatText && !hasTools:
		cfg.ResponseMIMEType = "text/plain"
	}
	return cfg
}

func functionDeclaration(spec ToolSpec) *genai.FunctionDeclaration {
	props := make(map[string]*genai.Schema, len(spec.Params))
	var required []string
	for _, p := range spec.Params {
		typ := genai.TypeString
		if p.Type == ParamInteger {
			typ = genai.TypeInteger
		}
		props[p.Name] = &genai.Schema{Type: typ, Description: p.Description}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return &genai.FunctionDeclaration{
		Name:        spec.Name,
		Description: spec.Description,
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: props,
			Required:   required,
		},
	}
}
