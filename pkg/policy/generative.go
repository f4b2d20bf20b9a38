package policy

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"corridorbots/pkg/corridor"
)

const (
	DefaultMinInterval = 8 * time.Second
	DefaultTimeout     = 15 * time.Second

	responsePreviewLimit = 240
)

// GenerativeConfig controls when and how long the generative policy may ask the model.
type GenerativeConfig struct {
	Enabled     bool
	MinInterval time.Duration
	Timeout     time.Duration
}

// Generative asks a language model for the next action.
//
// Decisions are rate limited: a new one is only attempted once MinInterval has
// passed since the last successfully parsed decision. Failed calls and
// unparseable responses do not consume the interval.
type Generative struct {
	generator Generator
	cfg       GenerativeConfig
	log       *slog.Logger
	now       func() time.Time

	evalMu sync.Mutex

	mu             sync.Mutex
	lastDecisionAt time.Time
}

// NewGenerative builds the model-driven policy. The generator may be nil only
// when the policy is disabled. A nil log uses slog.Default.
func NewGenerative(generator Generator, cfg GenerativeConfig, log *slog.Logger) (*Generative, error) {
	if generator == nil && cfg.Enabled {
		return nil, errors.New("generator is required")
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	return &Generative{
		generator: generator,
		cfg:       cfg,
		log:       log.With("component", "policy.generative"),
		now:       time.Now,
	}, nil
}

func (p *Generative) Name() string {
	return NameGenerative
}

// LastDecisionAt returns the start time of the last successfully parsed decision.
func (p *Generative) LastDecisionAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastDecisionAt
}

func (p *Generative) Decide(ctx context.Context, snap corridor.Snapshot) (Decision, error) {
	if !p.cfg.Enabled {
		return Decision{}, NewError(ErrorDisabled, "generative decisions are disabled")
	}
	if !p.evalMu.TryLock() {
		return Decision{}, NewError(ErrorBusy, "decision already in flight")
	}
	defer p.evalMu.Unlock()

	startedAt := p.now()
	if last := p.LastDecisionAt(); !last.IsZero() && startedAt.Sub(last) < p.cfg.MinInterval {
		return Decision{}, NewError(ErrorCooldown, "minimum interval not elapsed")
	}

	prompt := RenderPrompt(snap)

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	p.log.Debug("Requesting decision", "prompt_length", len(prompt))
	completion, err := p.generator.Complete(callCtx, prompt)
	if err != nil {
		return Decision{}, wrapError(ErrorGeneration, err)
	}

	response := strings.TrimSpace(completion.Text)
	if response == "" {
		return Decision{}, NewError(ErrorGeneration, "empty response")
	}
	p.log.Debug("Decision response received", "response", previewText(response), "duration_ms", p.now().Sub(startedAt).Milliseconds())

	action, err := ParseAction(response)
	if err != nil {
		return Decision{}, wrapError(ErrorParse, err)
	}

	p.mu.Lock()
	p.lastDecisionAt = startedAt
	p.mu.Unlock()

	return Decision{Action: action, Usage: completion.Metadata.Usage}, nil
}

func previewText(text string) string {
	runes := []rune(text)
	if len(runes) <= responsePreviewLimit {
		return text
	}

	return string(runes[:responsePreviewLimit]) + "..."
}
