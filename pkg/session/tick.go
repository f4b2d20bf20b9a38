package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"corridorbots/pkg/bus"
	"corridorbots/pkg/corridor"
	"corridorbots/pkg/policy"
	"corridorbots/pkg/transport/api"
	"corridorbots/pkg/typing"
)

const (
	skipNotActive  = "not_active"
	skipTyping     = "typing"
	skipNoSnapshot = "no_snapshot"
)

// Tick runs one decision for the bot: it asks the policy about the latest
// snapshot, validates the answer and dispatches it. A tick on a session that
// is not active, mid-reveal or has no snapshot yet does nothing. The returned
// error joins the dispatch failures; each one was already logged.
func (s *Session) Tick(ctx context.Context) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.mu.Lock()
	if s.closed || s.state != StateActive {
		s.mu.Unlock()
		return nil
	}
	s.ticks++
	sessionCtx := s.ctx
	token := s.token
	animator := s.animator
	s.mu.Unlock()

	tickID := uuid.NewString()
	log := s.log.With("tick_id", tickID)

	if animator.Busy() {
		log.Debug("Tick skipped, reveal in flight")
		s.recordSkip(tickID, skipTyping, nil)
		return nil
	}

	snap, ok := s.store.Latest()
	if !ok {
		log.Debug("Tick skipped, no snapshot yet")
		s.recordSkip(tickID, skipNoSnapshot, nil)
		return nil
	}

	callCtx, cancel := context.WithCancel(sessionCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	decision, err := s.policy.Decide(callCtx, snap)
	if err != nil {
		category := policy.CategoryFromError(err)
		if policy.IsQuiet(err) {
			log.Debug("Decision skipped", "reason", category)
		} else {
			log.Warn("Decision failed", "reason", category, "error", err)
		}
		s.recordSkip(tickID, category, err)
		return nil
	}

	if decision.Usage != nil {
		s.mu.Lock()
		s.usage.Add(*decision.Usage)
		s.mu.Unlock()
	}

	validated := corridor.Validate(snap, decision.Action, s.opts.MaxTextLength)
	outcome := OutcomeActed
	if validated.IsEmpty() {
		outcome = OutcomeEmpty
	}
	s.history.Append(DecisionRecord{
		TickID:  tickID,
		Policy:  s.policy.Name(),
		Outcome: outcome,
		Summary: validated.String(),
	})
	log.Debug("Decision made", "policy", s.policy.Name(), "action", validated.String())
	s.publish(bus.EventDecisionMade, tickID, usagePayload(map[string]string{
		"policy": s.policy.Name(),
		"action": validated.String(),
	}, decision.Usage), nil)

	return s.dispatch(callCtx, tickID, token, animator, validated, decision.UnlockAfter)
}

func (s *Session) recordSkip(tickID, reason string, err error) {
	record := DecisionRecord{
		TickID:  tickID,
		Policy:  s.policy.Name(),
		Outcome: OutcomeSkipped,
		Reason:  reason,
	}
	s.history.Append(record)
	s.publish(bus.EventDecisionSkipped, tickID, map[string]string{"reason": reason}, err)
}

// dispatch applies non-text effects immediately in move, lock, request order
// and hands text to the animator. A failed call does not stop the others.
func (s *Session) dispatch(ctx context.Context, tickID, token string, animator *typing.Animator, action corridor.ValidatedAction, unlockAfter time.Duration) error {
	var errs []error
	run := func(name string, call func() error) bool {
		if err := call(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			s.reportFailure(tickID, name, err)
			return false
		}
		s.publish(bus.EventActionDispatched, tickID, map[string]string{"action": name}, nil)
		return true
	}

	switch action.Move {
	case corridor.DirectionLeft:
		run("move_left", func() error { return s.api.MoveLeft(ctx, token) })
	case corridor.DirectionRight:
		run("move_right", func() error { return s.api.MoveRight(ctx, token) })
	}

	switch action.Lock {
	case corridor.LockLock:
		if run("lock", func() error { return s.api.Lock(ctx, token) }) && unlockAfter > 0 {
			s.scheduleUnlock(token, unlockAfter)
		}
	case corridor.LockUnlock:
		run("unlock", func() error { return s.api.Unlock(ctx, token) })
	}

	if dir := action.SendRequest; dir != corridor.DirectionNone {
		run("send_request_"+string(dir), func() error { return s.api.SendRequest(ctx, token, dir) })
	}
	for _, dir := range action.Accept {
		run("accept_"+string(dir), func() error { return s.api.Accept(ctx, token, dir) })
	}
	for _, dir := range action.Reject {
		run("reject_"+string(dir), func() error { return s.api.Reject(ctx, token, dir) })
	}

	if action.Text != "" {
		if animator.Reveal(action.Text) {
			s.publish(bus.EventActionDispatched, tickID, map[string]string{"action": "text", "text": action.Text}, nil)
		} else {
			s.log.Debug("Text dropped, reveal in flight", "tick_id", tickID)
		}
	}

	return errors.Join(errs...)
}

func (s *Session) scheduleUnlock(token string, after time.Duration) {
	scheduled := s.timers.AfterFunc(after, func() {
		s.mu.RLock()
		ctx := s.ctx
		s.mu.RUnlock()

		if err := s.api.Unlock(ctx, token); err != nil {
			s.reportFailure("", "auto_unlock", err)
			return
		}
		s.publish(bus.EventActionDispatched, "", map[string]string{"action": "auto_unlock"}, nil)
	})
	if !scheduled {
		s.log.Debug("Auto-unlock not scheduled, session closing")
	}
}

func (s *Session) reportFailure(tickID, name string, err error) {
	category := api.CategoryFromError(err)
	s.log.Warn("Action failed", "tick_id", tickID, "action", name, "category", category, "error", err)
	s.publish(bus.EventActionFailed, tickID, map[string]string{"action": name, "category": category}, err)
}
