package policy

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"corridorbots/pkg/corridor"
)

const (
	DefaultMoveChance   = 0.5
	DefaultUnlockChance = 0.8
	DefaultLockChance   = 0.2
	DefaultAutoUnlock   = 1200 * time.Millisecond
)

// FixedRuleConfig holds the probabilities of the rule-based policy.
type FixedRuleConfig struct {
	MoveChance   float64
	UnlockChance float64
	LockChance   float64
	AutoUnlock   time.Duration
	FixedText    string
}

// FixedRule wanders, toggles the lock at random and repeats a static line.
type FixedRule struct {
	cfg FixedRuleConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewFixedRule builds the rule-based policy. A nil src seeds a fresh PCG source.
func NewFixedRule(cfg FixedRuleConfig, src rand.Source) *FixedRule {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	if cfg.AutoUnlock <= 0 {
		cfg.AutoUnlock = DefaultAutoUnlock
	}

	return &FixedRule{cfg: cfg, rng: rand.New(src)}
}

func (p *FixedRule) Name() string {
	return NameFixedRule
}

func (p *FixedRule) Decide(_ context.Context, snap corridor.Snapshot) (Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	decision := Decision{Action: corridor.NoAction()}

	if p.rng.Float64() < p.cfg.MoveChance {
		switch {
		case snap.Left != nil && snap.Right != nil:
			if p.rng.IntN(2) == 0 {
				decision.Action.Move = corridor.MoveLeft
			} else {
				decision.Action.Move = corridor.MoveRight
			}
		case snap.Left != nil:
			decision.Action.Move = corridor.MoveLeft
		case snap.Right != nil:
			decision.Action.Move = corridor.MoveRight
		}
	}

	// Lock state is unknown without a self view.
	if snap.HasSelf {
		if snap.Self.Locked {
			if p.rng.Float64() < p.cfg.UnlockChance {
				decision.Action.Lock = corridor.LockUnlock
			}
		} else if p.rng.Float64() < p.cfg.LockChance {
			decision.Action.Lock = corridor.LockLock
			decision.UnlockAfter = p.cfg.AutoUnlock
		}
	}

	if text := strings.TrimSpace(p.cfg.FixedText); text != "" {
		decision.Action.Text = text
	}

	return decision, nil
}
