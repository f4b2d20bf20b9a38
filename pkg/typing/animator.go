// Package typing turns a target text into a timed sequence of partial-text
// pushes that look like a human erasing and typing, with at most one sequence
// running per bot.
package typing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"corridorbots/pkg/timerset"
)

// TextSender publishes the bot's current text.
type TextSender interface {
	SendText(ctx context.Context, text string) error
}

// EmitFunc observes every emission after it was handed to the sender.
type EmitFunc func(text string, final bool, err error)

// Animator runs reveal sequences for one bot.
type Animator struct {
	ctx    context.Context
	sender TextSender
	timers *timerset.Set
	opts   Options
	log    *slog.Logger
	onEmit EmitFunc

	inProgress atomic.Bool

	mu        sync.Mutex
	cond      *sync.Cond
	last      string
	scheduled uint64
	sent      uint64
	closed    bool
}

// New builds an animator that schedules its emissions on timers and sends
// them with ctx. A nil log uses slog.Default.
func New(ctx context.Context, sender TextSender, timers *timerset.Set, opts Options, log *slog.Logger) (*Animator, error) {
	if sender == nil {
		return nil, errors.New("text sender is required")
	}
	if timers == nil {
		return nil, errors.New("timer set is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = slog.Default()
	}

	a := &Animator{
		ctx:    ctx,
		sender: sender,
		timers: timers,
		opts:   opts.withDefaults(),
		log:    log.With("component", "typing.animator"),
	}
	a.cond = sync.NewCond(&a.mu)

	return a, nil
}

// OnEmit registers an observer for emissions. Call it before the first Reveal.
func (a *Animator) OnEmit(fn EmitFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onEmit = fn
}

// Reveal starts a sequence that replaces the last revealed text with target.
// It reports false when the request was dropped: blank target, a sequence
// already in flight, or the animator is stopped.
func (a *Animator) Reveal(target string) bool {
	if strings.TrimSpace(target) == "" {
		return false
	}
	if !a.inProgress.CompareAndSwap(false, true) {
		return false
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return false
	}
	plan := Plan(a.last, target, a.opts)
	base := a.scheduled
	a.scheduled += uint64(len(plan))
	a.mu.Unlock()

	for i, emission := range plan {
		seq := base + uint64(i)
		text := emission.Text
		final := emission.Final
		if !a.timers.AfterFunc(emission.At, func() { a.emit(seq, text, final) }) {
			a.log.Debug("Reveal aborted, timers stopped", "scheduled", i, "planned", len(plan))
			a.Stop()
			return false
		}
	}

	a.log.Debug("Reveal scheduled", "emissions", len(plan), "target_length", len([]rune(target)))
	return true
}

// emit sends one emission once every earlier emission has been sent.
func (a *Animator) emit(seq uint64, text string, final bool) {
	a.mu.Lock()
	for a.sent != seq && !a.closed {
		a.cond.Wait()
	}
	if a.closed {
		a.mu.Unlock()
		return
	}
	onEmit := a.onEmit
	a.mu.Unlock()

	err := a.sender.SendText(a.ctx, text)
	if err != nil && a.ctx.Err() == nil {
		a.log.Warn("Failed to send text", "error", err, "final", final)
	}

	a.mu.Lock()
	a.sent++
	if final {
		a.last = text
		a.inProgress.Store(false)
	}
	a.cond.Broadcast()
	a.mu.Unlock()

	if onEmit != nil {
		onEmit(text, final, err)
	}
}

// Busy reports whether a reveal sequence is in flight.
func (a *Animator) Busy() bool {
	return a.inProgress.Load()
}

// LastText returns the last fully revealed text.
func (a *Animator) LastText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Stop abandons any sequence in flight. Pending emissions that fire later
// are discarded; the final text of an interrupted sequence is never sent.
func (a *Animator) Stop() {
	a.mu.Lock()
	a.closed = true
	a.cond.Broadcast()
	a.mu.Unlock()
}
