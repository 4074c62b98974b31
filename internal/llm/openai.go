package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/scout/config"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIGenerator talks to an OpenAI-compatible chat completions endpoint.
// Grounding is not available there; blog searches need the search_web tool.
type OpenAIGenerator struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewOpenAIGenerator(cfg config.LLMConfig, logger *zap.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not configured")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIGenerator{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.Named("openai"),
	}, nil
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatMsg struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type chatReq struct {
	Model          string            `json:"model"`
	Messages       []chatMsg         `json:"messages"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Tools          []chatTool        `json:"tools,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResp struct {
	Choices []struct {
		Message chatMsg `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *OpenAIGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	if req.Grounding && len(req.Tools) == 0 {
		p.logger.Warn("grounding requested but not supported; generating without web access")
	}
	messages := []chatMsg{{Role: "user", Content: req.Input}}
	if req.Instruction != "" {
		messages = append([]chatMsg{{Role: "system", Content: req.Instruction}}, messages...)
	}
	var out Response

	for round := 0; ; round++ {
		withTools := round < MaxToolRounds && len(req.Tools) > 0
		body := chatReq{Model: req.Model, Messages: messages, MaxTokens: req.MaxOutputTokens}
		if withTools {
			body.Tools = openAITools(req.Tools)
		}
		if req.Format == FormatJSON {
			body.ResponseFormat = map[string]string{"type": "json_object"}
		}

		resp, err := p.complete(ctx, body)
		if err != nil {
			return out, err
		}
		out.Usage.InputTokens += resp.Usage.PromptTokens
		out.Usage.OutputTokens += resp.Usage.CompletionTokens
		if len(resp.Choices) == 0 {
			return out, fmt.Errorf("no choices")
		}
		msg := resp.Choices[0].Message

		if len(msg.ToolCalls) == 0 || !withTools {
			out.Text = msg.Content
			if strings.TrimSpace(out.Text) == "" {
				return out, ErrEmptyResponse
			}
			return out, nil
		}

		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			out.ToolCalls++
			args := map[string]any{}
			if call.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
					p.logger.Warn("tool arguments not JSON", zap.String("tool", call.Function.Name), zap.Error(err))
				}
			}
			result := callTool(ctx, req.Tools, call.Function.Name, args, p.logger)
			encoded, err := json.Marshal(result)
			if err != nil {
				encoded = []byte(`{"error":"unencodable tool result"}`)
			}
			messages = append(messages, chatMsg{Role: "tool", ToolCallID: call.ID, Content: string(encoded)})
		}
	}
}

func (p *OpenAIGenerator) complete(ctx context.Context, body chatReq) (chatResp, error) {
	var out chatResp
	b, err := json.Marshal(body)
	if err != nil {
		return out, fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return out, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return out, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return out, fmt.Errorf("OpenAI status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode: %w", err)
	}
	return out, nil
}

func openAITools(tools []Tool) []chatTool {
	out := make([]chatTool, 0, len(tools))
	for _, t := range tools {
		spec := t.Spec()
		var ct chatTool
		ct.Type = "function"
		ct.Function.Name = spec.Name
		ct.Function.Description = spec.Description
		ct.Function.Parameters = jsonSchema(spec)
		out = append(out, ct)
	}
	return out
}
