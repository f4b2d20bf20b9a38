package fantasy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	core "charm.land/fantasy"
	provideropenai "charm.land/fantasy/providers/openai"

	"corridorbots/pkg/config"
	providertypes "corridorbots/pkg/provider/types"
)

type languageModelProvider interface {
	LanguageModel(ctx context.Context, modelID string) (core.LanguageModel, error)
}

// Client generates completions through a fantasy agent backed by the
// OpenAI-compatible provider. Every call is stateless.
type Client struct {
	provider        languageModelProvider
	requestTimeout  time.Duration
	modelID         string
	maxOutputTokens *int64
	temperature     *float64
	generate        func(context.Context, core.LanguageModel, core.AgentCall) (*core.AgentResult, error)
}

func New(cfg config.LLMConfig) (*Client, error) {
	apiKey := cfg.ResolveAPIKey()
	if apiKey == "" {
		return nil, errors.New("llm.api_key, llm.api_key_env or OPENAI_API_KEY must be set")
	}

	modelID, err := normalizeOpenAIModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	providerOptions := []provideropenai.Option{provideropenai.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		providerOptions = append(providerOptions, provideropenai.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(cfg.Organization); organization != "" {
		providerOptions = append(providerOptions, provideropenai.WithOrganization(organization))
	}
	if project := strings.TrimSpace(cfg.Project); project != "" {
		providerOptions = append(providerOptions, provideropenai.WithProject(project))
	}

	fantasyProvider, err := provideropenai.New(providerOptions...)
	if err != nil {
		return nil, fmt.Errorf("initialize fantasy openai provider: %w", err)
	}

	client := &Client{
		provider:       fantasyProvider,
		requestTimeout: cfg.Timeout(),
		modelID:        modelID,
		generate:       generateWithFantasyAgent,
	}

	if cfg.MaxTokens > 0 {
		maxTokens := int64(cfg.MaxTokens)
		client.maxOutputTokens = &maxTokens
	}
	if cfg.Temperature > 0 {
		temp := cfg.Temperature
		client.temperature = &temp
	}

	return client, nil
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if _, err := c.provider.LanguageModel(ctx, c.modelID); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	return nil
}

func (c *Client) Complete(ctx context.Context, prompt string) (providertypes.Completion, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := slog.Default().With("component", "provider.fantasy", "operation", "complete")
	startedAt := time.Now()

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return providertypes.Completion{}, errors.New("prompt is required")
	}

	languageModel, err := c.provider.LanguageModel(ctx, c.modelID)
	if err != nil {
		return providertypes.Completion{}, fmt.Errorf("resolve language model: %w", err)
	}

	call := core.AgentCall{Prompt: prompt}
	if c.maxOutputTokens != nil {
		call.MaxOutputTokens = c.maxOutputTokens
	}
	if c.temperature != nil {
		call.Temperature = c.temperature
	}

	generate := c.generate
	if generate == nil {
		generate = generateWithFantasyAgent
	}

	log.Debug("provider request started", "model", c.modelID, "prompt_length", len(prompt))
	result, err := generate(ctx, languageModel, call)
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return providertypes.Completion{}, fmt.Errorf("completion failed: %w", err)
	}

	response := extractText(result.Response.Content)
	if response == "" {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no output text")
		return providertypes.Completion{}, errors.New("completion succeeded but returned no text")
	}

	usage := providertypes.TokenUsage{
		InputTokens:     result.TotalUsage.InputTokens,
		OutputTokens:    result.TotalUsage.OutputTokens,
		TotalTokens:     result.TotalUsage.TotalTokens,
		ReasoningTokens: result.TotalUsage.ReasoningTokens,
		CacheReadTokens: result.TotalUsage.CacheReadTokens,
	}

	metadata := providertypes.CompletionMetadata{
		Provider: "fantasy",
		Model:    c.modelID,
	}
	if !usage.IsZero() {
		metadata.Usage = &usage
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(response))

	return providertypes.Completion{
		Text:     response,
		Metadata: metadata,
	}, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func normalizeOpenAIModel(model string) (string, error) {
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
		return "", fmt.Errorf("model provider %q is not supported by fantasy openai provider", providerID)
	}

	return modelID, nil
}

func extractText(content core.ResponseContent) string {
	lines := make([]string, 0)
	for _, part := range content {
		if part.GetType() != core.ContentTypeText {
			continue
		}

		textPart, ok := core.AsContentType[core.TextContent](part)
		if !ok {
			continue
		}

		line := strings.TrimSpace(textPart.Text)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func generateWithFantasyAgent(ctx context.Context, model core.LanguageModel, call core.AgentCall) (*core.AgentResult, error) {
	runtime := core.NewAgent(model)
	return runtime.Generate(ctx, call)
}
