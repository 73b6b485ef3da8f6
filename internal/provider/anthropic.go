package provider

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 4096
)

// AnthropicProvider talks to the Claude Messages API.
type AnthropicProvider struct {
	config ProviderConfig
	client *http.Client
	logger *zap.Logger
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(cfg ProviderConfig, logger *zap.Logger) *AnthropicProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.anthropic.com/v1"
	}
	return &AnthropicProvider{config: cfg, client: newClient(cfg.Timeout), logger: logger}
}

func (p *AnthropicProvider) ID() string   { return p.config.ID }
func (p *AnthropicProvider) Name() string { return p.config.Name }

type anthropicRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	ID         string           `json:"id"`
	Model      string           `json:"model"`
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Chat sends one message request. System messages are lifted into the
// top-level system field, joined by blank lines when there are several.
func (p *AnthropicProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	in := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if in.MaxTokens == 0 {
		in.MaxTokens = anthropicMaxTokens
	}
	var system []string
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		in.Messages = append(in.Messages, m)
	}
	in.System = strings.Join(system, "\n\n")

	headers := map[string]string{
		"x-api-key":         p.config.APIKey,
		"anthropic-version": anthropicVersion,
	}
	var out anthropicResponse
	if err := postJSON(ctx, p.client, p.config.ID, p.config.Endpoint+"/messages", headers, in, &out); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, b := range out.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}
	usage := Usage{PromptTokens: out.Usage.InputTokens, CompletionTokens: out.Usage.OutputTokens}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	p.logger.Debug("completion",
		zap.String("provider", p.config.ID),
		zap.String("model", out.Model),
		zap.Int("total_tokens", usage.TotalTokens))
	return &ChatResponse{
		ID:           out.ID,
		Model:        out.Model,
		Content:      text.String(),
		FinishReason: out.StopReason,
		Usage:        usage,
	}, nil
}
