// Package fleet drives every bot session on a shared interval.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"corridorbots/pkg/bus"
	"corridorbots/pkg/session"
)

var ErrNoSessions = errors.New("no bot session started")

// Bot is the part of a session the scheduler drives.
type Bot interface {
	Name() string
	Start(ctx context.Context) error
	Tick(ctx context.Context) error
	Close() error
	Status() session.Status
}

type Fleet struct {
	interval time.Duration
	bots     []Bot
	events   bus.Publisher
	log      *slog.Logger

	round atomic.Uint64

	mu      sync.RWMutex
	running []Bot
}

type worker struct {
	bot     Bot
	mailbox chan struct{}
	log     *slog.Logger
}

func New(interval time.Duration, bots []Bot, events bus.Publisher, log *slog.Logger) (*Fleet, error) {
	if interval <= 0 {
		return nil, errors.New("tick interval must be greater than zero")
	}
	if len(bots) == 0 {
		return nil, errors.New("at least one bot is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Fleet{
		interval: interval,
		bots:     bots,
		events:   events,
		log:      log.With("component", "fleet"),
	}, nil
}

// Run starts every bot, ticks the ones that came up until ctx is done and
// then closes them. A bot that fails to start is dropped; Run fails only when
// none started.
func (f *Fleet) Run(ctx context.Context) error {
	started := f.startAll(ctx)
	if len(started) == 0 {
		return ErrNoSessions
	}

	f.mu.Lock()
	f.running = started
	f.mu.Unlock()

	f.log.Info("Fleet running", "bots", len(started), "interval", f.interval.String())

	workers := make([]*worker, 0, len(started))
	g, gctx := errgroup.WithContext(ctx)
	for _, bot := range started {
		w := &worker{
			bot:     bot,
			mailbox: make(chan struct{}, 1),
			log:     f.log.With("bot", bot.Name()),
		}
		workers = append(workers, w)
		g.Go(func() error {
			f.work(gctx, w)
			return nil
		})
	}

	g.Go(func() error {
		f.drive(gctx, workers)
		return nil
	})

	err := g.Wait()
	f.closeAll(started)
	f.log.Info("Fleet stopped")

	return err
}

// Sessions returns the status of every bot that started.
func (f *Fleet) Sessions() []session.Status {
	f.mu.RLock()
	running := f.running
	f.mu.RUnlock()

	statuses := make([]session.Status, 0, len(running))
	for _, bot := range running {
		statuses = append(statuses, bot.Status())
	}

	return statuses
}

func (f *Fleet) startAll(ctx context.Context) []Bot {
	ok := make([]bool, len(f.bots))

	var g errgroup.Group
	for i, bot := range f.bots {
		g.Go(func() error {
			if err := bot.Start(ctx); err != nil {
				f.log.Error("Bot failed to start", "bot", bot.Name(), "error", err)
				return nil
			}
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	started := make([]Bot, 0, len(f.bots))
	for i, bot := range f.bots {
		if ok[i] {
			started = append(started, bot)
		}
	}

	return started
}

func (f *Fleet) drive(ctx context.Context, workers []*worker) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.round.Add(1)
			for _, w := range workers {
				select {
				case w.mailbox <- struct{}{}:
				default:
					w.log.Debug("Tick coalesced, previous tick still running")
				}
			}
		}
	}
}

func (f *Fleet) work(ctx context.Context, w *worker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.mailbox:
			f.tick(ctx, w)
		}
	}
}

func (f *Fleet) tick(ctx context.Context, w *worker) {
	round := strconv.FormatUint(f.round.Load(), 10)
	payload := map[string]string{"round": round}
	f.publish(ctx, w.bot.Name(), bus.EventTickStarted, payload, nil)

	started := time.Now()
	err := safeTick(ctx, w.bot)
	if err != nil && !errors.Is(err, context.Canceled) {
		w.log.Warn("Tick failed", "round", round, "error", err)
	}

	f.publish(ctx, w.bot.Name(), bus.EventTickFinished, map[string]string{
		"round":       round,
		"duration_ms": strconv.FormatInt(time.Since(started).Milliseconds(), 10),
	}, err)
}

func safeTick(ctx context.Context, bot Bot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v\n%s", r, debug.Stack())
		}
	}()

	return bot.Tick(ctx)
}

func (f *Fleet) closeAll(bots []Bot) {
	var wg sync.WaitGroup
	for _, bot := range bots {
		wg.Go(func() {
			if err := bot.Close(); err != nil {
				f.log.Warn("Bot close failed", "bot", bot.Name(), "error", err)
			}
		})
	}
	wg.Wait()
}

func (f *Fleet) publish(ctx context.Context, bot string, eventType bus.EventType, payload map[string]string, err error) {
	if f.events == nil {
		return
	}

	event := bus.Event{
		Type:    eventType,
		At:      time.Now().UTC(),
		Bot:     bot,
		Payload: payload,
	}
	if err != nil {
		event.Error = err.Error()
	}
	f.events.PublishEvent(context.WithoutCancel(ctx), event)
}
