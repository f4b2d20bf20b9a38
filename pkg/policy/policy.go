// Package policy turns a corridor snapshot into an action, either with local
// probabilistic rules or by asking a language model.
package policy

import (
	"context"
	"time"

	"corridorbots/pkg/corridor"
	providertypes "corridorbots/pkg/provider/types"
)

const (
	NameFixedRule  = "fixed_rule"
	NameGenerative = "generative"
)

// Decision is one policy output. UnlockAfter, when positive, asks the
// session to unlock the bot again after that delay.
type Decision struct {
	Action      corridor.Action
	UnlockAfter time.Duration
	Usage       *providertypes.TokenUsage
}

// Policy decides what a bot does on one tick. A non-nil error means the tick
// produces no action at all.
type Policy interface {
	Name() string
	Decide(ctx context.Context, snap corridor.Snapshot) (Decision, error)
}

// Generator is the completion service used by the generative policy.
type Generator interface {
	Complete(ctx context.Context, prompt string) (providertypes.Completion, error)
}
