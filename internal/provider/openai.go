package provider

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions API.
type OpenAIProvider struct {
	config ProviderConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
func NewOpenAIProvider(cfg ProviderConfig, logger *zap.Logger) *OpenAIProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{config: cfg, client: newClient(cfg.Timeout), logger: logger}
}

func (p *OpenAIProvider) ID() string   { return p.config.ID }
func (p *OpenAIProvider) Name() string { return p.config.Name }

// chatURL puts the model into the path for gateways that route by it
// (Extra["path_model"] = "true").
func (p *OpenAIProvider) chatURL(model string) string {
	if p.config.Extra["path_model"] == "true" && model != "" {
		return p.config.Endpoint + "/" + model + "/chat/completions"
	}
	return p.config.Endpoint + "/chat/completions"
}

type openAIChatResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   Usage          `json:"usage"`
}

type openAIChoice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Chat sends one completion request. ChatRequest already has the wire shape.
func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	headers := map[string]string{}
	if p.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + p.config.APIKey
	}

	var out openAIChatResponse
	if err := postJSON(ctx, p.client, p.config.ID, p.chatURL(req.Model), headers, req, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("no choices in response")
	}

	p.logger.Debug("completion",
		zap.String("provider", p.config.ID),
		zap.String("model", out.Model),
		zap.Int("total_tokens", out.Usage.TotalTokens))
	first := out.Choices[0]
	return &ChatResponse{
		ID:           out.ID,
		Model:        out.Model,
		Content:      first.Message.Content,
		FinishReason: first.FinishReason,
		Usage:        out.Usage,
	}, nil
}
