package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"corridorbots/pkg/config"
	providertypes "corridorbots/pkg/provider/types"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type Client struct {
	client         osdk.Client
	requestTimeout time.Duration
	model          string
	maxTokens      int64
	temperature    float64
}

func New(cfg config.LLMConfig, extra ...option.RequestOption) (*Client, error) {
	apiKey := cfg.ResolveAPIKey()
	if apiKey == "" {
		return nil, errors.New("llm.api_key, llm.api_key_env or OPENAI_API_KEY must be set")
	}

	model, err := normalizeModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(cfg.Organization); organization != "" {
		opts = append(opts, option.WithOrganization(organization))
	}
	if project := strings.TrimSpace(cfg.Project); project != "" {
		opts = append(opts, option.WithProject(project))
	}

	requestTimeout := cfg.Timeout()
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}
	opts = append(opts, extra...)

	return &Client{
		client:         osdk.NewClient(opts...),
		requestTimeout: requestTimeout,
		model:          model,
		maxTokens:      int64(cfg.MaxTokens),
		temperature:    cfg.Temperature,
	}, nil
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "health")
	startedAt := time.Now()
	log.Debug("provider request started")

	if _, err := c.client.Models.List(ctx); err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds())

	return nil
}

// Complete sends prompt as one user message and returns the first choice.
func (c *Client) Complete(ctx context.Context, prompt string) (providertypes.Completion, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "complete")
	startedAt := time.Now()

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return providertypes.Completion{}, errors.New("prompt is required")
	}

	log.Debug("provider request started", "model", c.model, "prompt_length", len(prompt))

	params := osdk.ChatCompletionNewParams{
		Model: osdk.ChatModel(c.model),
		Messages: []osdk.ChatCompletionMessageParamUnion{
			osdk.UserMessage(prompt),
		},
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = osdk.Int(c.maxTokens)
	}
	if c.temperature > 0 {
		params.Temperature = osdk.Float(c.temperature)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return providertypes.Completion{}, fmt.Errorf("completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no choices")
		return providertypes.Completion{}, errors.New("completion returned no choices")
	}

	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no output text")
		return providertypes.Completion{}, errors.New("completion succeeded but returned no text")
	}

	usage := providertypes.TokenUsage{
		InputTokens:     completion.Usage.PromptTokens,
		OutputTokens:    completion.Usage.CompletionTokens,
		TotalTokens:     completion.Usage.TotalTokens,
		ReasoningTokens: completion.Usage.CompletionTokensDetails.ReasoningTokens,
		CacheReadTokens: completion.Usage.PromptTokensDetails.CachedTokens,
	}
	metadata := providertypes.CompletionMetadata{Provider: "openai", Model: c.model}
	if !usage.IsZero() {
		metadata.Usage = &usage
	}

	log.Debug("provider request completed",
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"response_length", len(text),
		"total_tokens", usage.TotalTokens,
	)

	return providertypes.Completion{Text: text, Metadata: metadata}, nil
}

func providerLogger() *slog.Logger {
	return slog.Default().With("component", "provider.openai")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func normalizeModel(model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", errors.New("model is required")
	}

	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 {
		return model, nil
	}

	providerID := strings.TrimSpace(parts[0])
	modelID := strings.TrimSpace(parts[1])
	if providerID == "" || modelID == "" {
		return "", errors.New("model is invalid")
	}
	if providerID != "openai" {
		return "", fmt.Errorf("model provider %q is not supported by openai provider", providerID)
	}

	return modelID, nil
}
