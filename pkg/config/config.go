package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	envConfigPath = "CORRIDOR_CONFIG"
	envBaseURL    = "CORRIDOR_BASE_URL"
	envWSEndpoint = "CORRIDOR_WS_ENDPOINT"
	envLLMEnabled = "CORRIDOR_LLM_ENABLED"
	envLLMModel   = "CORRIDOR_LLM_MODEL"
	envOpenAIKey  = "OPENAI_API_KEY"
	defaultModel  = "gpt-4o-mini"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Corridor CorridorConfig  `json:"corridor"`
	Bots     []BotCredential `json:"bots"`
	LLM      LLMConfig       `json:"llm"`
	Fleet    FleetConfig     `json:"fleet"`
	Behavior BehaviorConfig  `json:"behavior"`
	Typing   TypingConfig    `json:"typing"`
	Gateway  GatewayConfig   `json:"gateway"`
	Logging  LoggingConfig   `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// CorridorConfig locates the corridor backend.
type CorridorConfig struct {
	BaseURL               string `json:"base_url"`
	WSEndpoint            string `json:"ws_endpoint"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
	LeaveOnShutdown       bool   `json:"leave_on_shutdown"`
}

// BotCredential is the static configuration of one bot.
type BotCredential struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	UseLLM    bool   `json:"use_llm"`
	FixedText string `json:"fixed_text,omitempty"`
}

// LLMConfig configures the generation service used by generative bots.
type LLMConfig struct {
	Enabled       bool    `json:"enabled"`
	Provider      string  `json:"provider"`
	BaseURL       string  `json:"base_url"`
	APIKey        string  `json:"api_key,omitempty"`
	APIKeyEnv     string  `json:"api_key_env,omitempty"`
	Organization  string  `json:"organization,omitempty"`
	Project       string  `json:"project,omitempty"`
	Model         string  `json:"model"`
	MaxTokens     int     `json:"max_tokens"`
	Temperature   float64 `json:"temperature"`
	TimeoutMs     int     `json:"timeout_ms"`
	MinIntervalMs int     `json:"min_interval_ms"`
}

// FleetConfig configures the tick driver.
type FleetConfig struct {
	TickIntervalMs int `json:"tick_interval_ms"`
}

// BehaviorConfig holds the probabilities of the rule-based policy and the friend responder.
type BehaviorConfig struct {
	MoveChance         float64 `json:"move_chance"`
	UnlockChance       float64 `json:"unlock_chance"`
	LockChance         float64 `json:"lock_chance"`
	AutoUnlockMs       int     `json:"auto_unlock_ms"`
	FriendAcceptChance float64 `json:"friend_accept_chance"`
}

// TypingConfig controls the text reveal cadence and text cap.
type TypingConfig struct {
	ChunkSize     int `json:"chunk_size"`
	EraseStepMs   int `json:"erase_step_ms"`
	RevealStepMs  int `json:"reveal_step_ms"`
	FinalDelayMs  int `json:"final_delay_ms"`
	MaxTextLength int `json:"max_text_length"`
}

// GatewayConfig configures the optional HTTP status server.
type GatewayConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// Default returns a configuration with every tunable set to its standard value.
// File contents are decoded on top of it, so omitted fields keep these values.
func Default() Config {
	return Config{
		Corridor: CorridorConfig{RequestTimeoutSeconds: 10},
		LLM: LLMConfig{
			Enabled:       true,
			Provider:      "openai",
			Model:         defaultModel,
			MaxTokens:     200,
			Temperature:   0.9,
			TimeoutMs:     15000,
			MinIntervalMs: 8000,
		},
		Fleet: FleetConfig{TickIntervalMs: 8000},
		Behavior: BehaviorConfig{
			MoveChance:         0.5,
			UnlockChance:       0.8,
			LockChance:         0.2,
			AutoUnlockMs:       1200,
			FriendAcceptChance: 0.5,
		},
		Typing: TypingConfig{
			ChunkSize:     4,
			EraseStepMs:   25,
			RevealStepMs:  100,
			FinalDelayMs:  50,
			MaxTextLength: 1000,
		},
		Gateway: GatewayConfig{Host: "127.0.0.1", Port: 18790},
	}
}

// LoadConfig resolves config.json, decodes it over the defaults, applies
// environment overrides and validates the result.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadFile(configPath)
}

// LoadFile loads and validates one configuration file.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if value := strings.TrimSpace(os.Getenv(envBaseURL)); value != "" {
		cfg.Corridor.BaseURL = value
	}
	if value := strings.TrimSpace(os.Getenv(envWSEndpoint)); value != "" {
		cfg.Corridor.WSEndpoint = value
	}
	if value := strings.TrimSpace(os.Getenv(envLLMEnabled)); value != "" {
		cfg.LLM.Enabled = parseBool(value)
	}
	if value := strings.TrimSpace(os.Getenv(envLLMModel)); value != "" {
		cfg.LLM.Model = value
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Corridor.BaseURL) == "" {
		errs = append(errs, errors.New("corridor.base_url is required"))
	}
	if strings.TrimSpace(c.Corridor.WSEndpoint) == "" {
		errs = append(errs, errors.New("corridor.ws_endpoint is required"))
	}
	if len(c.Bots) == 0 {
		errs = append(errs, errors.New("at least one bot is required"))
	}

	seen := make(map[string]struct{}, len(c.Bots))
	for i, bot := range c.Bots {
		username := strings.TrimSpace(bot.Username)
		if username == "" {
			errs = append(errs, fmt.Errorf("bots[%d].username is required", i))
			continue
		}
		if bot.Password == "" {
			errs = append(errs, fmt.Errorf("bots[%d].password is required", i))
		}
		if _, dup := seen[username]; dup {
			errs = append(errs, fmt.Errorf("bots[%d].username %q is duplicated", i, username))
		}
		seen[username] = struct{}{}
	}

	if c.Fleet.TickIntervalMs <= 0 {
		errs = append(errs, errors.New("fleet.tick_interval_ms must be greater than zero"))
	}

	for name, value := range map[string]float64{
		"behavior.move_chance":          c.Behavior.MoveChance,
		"behavior.unlock_chance":        c.Behavior.UnlockChance,
		"behavior.lock_chance":          c.Behavior.LockChance,
		"behavior.friend_accept_chance": c.Behavior.FriendAcceptChance,
	} {
		if value < 0 || value > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %v", name, value))
		}
	}

	if c.Typing.ChunkSize <= 0 {
		errs = append(errs, errors.New("typing.chunk_size must be greater than zero"))
	}
	if c.Typing.MaxTextLength <= 0 {
		errs = append(errs, errors.New("typing.max_text_length must be greater than zero"))
	}
	if c.Typing.EraseStepMs < 0 || c.Typing.RevealStepMs < 0 || c.Typing.FinalDelayMs < 0 {
		errs = append(errs, errors.New("typing delays must not be negative"))
	}

	if c.UsesLLM() && c.LLM.Enabled && strings.TrimSpace(c.LLM.Model) == "" {
		errs = append(errs, errors.New("llm.model is required when a bot uses the llm"))
	}
	if c.LLM.MinIntervalMs < 0 {
		errs = append(errs, errors.New("llm.min_interval_ms must not be negative"))
	}

	return errors.Join(errs...)
}

// UsesLLM reports whether any configured bot opted into generative decisions.
func (c *Config) UsesLLM() bool {
	for _, bot := range c.Bots {
		if bot.UseLLM {
			return true
		}
	}
	return false
}

// RequestTimeout is the per-call timeout for corridor HTTP requests.
func (c CorridorConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// TickInterval is the fleet tick period.
func (f FleetConfig) TickInterval() time.Duration {
	return time.Duration(f.TickIntervalMs) * time.Millisecond
}

// Timeout bounds one generation call.
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutMs) * time.Millisecond
}

// MinInterval is the cooldown between two generative decisions of one bot.
func (l LLMConfig) MinInterval() time.Duration {
	return time.Duration(l.MinIntervalMs) * time.Millisecond
}

// ResolveAPIKey returns the inline key, then the key from api_key_env, then OPENAI_API_KEY.
func (l LLMConfig) ResolveAPIKey() string {
	if key := strings.TrimSpace(l.APIKey); key != "" {
		return key
	}
	if apiKeyEnv := strings.TrimSpace(l.APIKeyEnv); apiKeyEnv != "" {
		if key := strings.TrimSpace(os.Getenv(apiKeyEnv)); key != "" {
			return key
		}
	}

	return strings.TrimSpace(os.Getenv(envOpenAIKey))
}

// AutoUnlock is the delay before the rule-based policy unlocks after locking.
func (b BehaviorConfig) AutoUnlock() time.Duration {
	return time.Duration(b.AutoUnlockMs) * time.Millisecond
}

func parseBool(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// findConfigPath resolves the active config file location.
//
// Precedence is CORRIDOR_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
