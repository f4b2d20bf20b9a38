package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"corridorbots/pkg/config"
	providerfantasy "corridorbots/pkg/provider/fantasy"
	provideropenai "corridorbots/pkg/provider/openai"
	providertypes "corridorbots/pkg/provider/types"
)

// Client is a single-shot text generation backend.
type Client interface {
	Health(ctx context.Context) error
	Complete(ctx context.Context, prompt string) (providertypes.Completion, error)
}

// New builds the generation client selected by llm.provider. OpenAI chat
// completions are the default.
func New(cfg config.LLMConfig) (Client, error) {
	providerID := strings.TrimSpace(cfg.Provider)
	if providerID == "" {
		providerID = "openai"
	}

	slog.Default().With("component", "provider.factory").Debug("Resolving provider client", "provider", providerID, "model", cfg.Model)

	switch providerID {
	case "openai":
		client, err := provideropenai.New(cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "fantasy":
		client, err := providerfantasy.New(cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerID)
	}
}
