package policy

import (
	"log/slog"
	"math/rand/v2"

	"corridorbots/pkg/config"
)

// ForBot picks the policy a bot runs: generative when the credential opts
// into the model, rule-based otherwise. gen may be nil when the model is
// disabled. Each bot gets its own policy instance so cooldowns stay per bot.
func ForBot(cred config.BotCredential, cfg *config.Config, gen Generator, src rand.Source, log *slog.Logger) (Policy, error) {
	if log == nil {
		log = slog.Default()
	}

	if cred.UseLLM {
		generative, err := NewGenerative(gen, GenerativeConfig{
			Enabled:     cfg.LLM.Enabled && gen != nil,
			MinInterval: cfg.LLM.MinInterval(),
			Timeout:     cfg.LLM.Timeout(),
		}, log.With("bot", cred.Username))
		if err != nil {
			return nil, err
		}
		return generative, nil
	}

	return NewFixedRule(FixedRuleConfig{
		MoveChance:   cfg.Behavior.MoveChance,
		UnlockChance: cfg.Behavior.UnlockChance,
		LockChance:   cfg.Behavior.LockChance,
		AutoUnlock:   cfg.Behavior.AutoUnlock(),
		FixedText:    cred.FixedText,
	}, src), nil
}
