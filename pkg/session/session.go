// Package session runs one bot: it authenticates, keeps the latest pushed
// snapshot, answers friend requests as they arrive and turns each tick into
// one validated decision.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"corridorbots/pkg/bus"
	"corridorbots/pkg/config"
	"corridorbots/pkg/corridor"
	"corridorbots/pkg/policy"
	providertypes "corridorbots/pkg/provider/types"
	"corridorbots/pkg/timerset"
	"corridorbots/pkg/transport/api"
	"corridorbots/pkg/transport/push"
	"corridorbots/pkg/typing"
)

type State string

const (
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateClosed     State = "closed"
)

const leaveTimeout = 3 * time.Second

var ErrClosed = errors.New("session closed")

// API is the subset of the corridor HTTP API a session drives.
type API interface {
	Login(ctx context.Context, username, password string) (string, error)
	Register(ctx context.Context, username, password string) (string, error)
	MoveLeft(ctx context.Context, token string) error
	MoveRight(ctx context.Context, token string) error
	Lock(ctx context.Context, token string) error
	Unlock(ctx context.Context, token string) error
	Leave(ctx context.Context, token string) error
	SendRequest(ctx context.Context, token string, dir corridor.Direction) error
	Accept(ctx context.Context, token string, dir corridor.Direction) error
	Reject(ctx context.Context, token string, dir corridor.Direction) error
}

// Conn is an open push subscription.
type Conn interface {
	SendText(ctx context.Context, text string) error
	Done() <-chan struct{}
	Err() error
	Close() error
}

// ConnectFunc opens the push subscription for token and delivers snapshots to handler.
type ConnectFunc func(ctx context.Context, token string, handler func(corridor.Snapshot)) (Conn, error)

// PushConnector adapts a push dialer to ConnectFunc.
func PushConnector(d *push.Dialer) ConnectFunc {
	return func(ctx context.Context, token string, handler func(corridor.Snapshot)) (Conn, error) {
		conn, err := d.Connect(ctx, token, handler)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

type Options struct {
	Credential      config.BotCredential
	Behavior        config.BehaviorConfig
	Typing          typing.Options
	MaxTextLength   int
	LeaveOnShutdown bool
	HistoryLimit    int
}

type Deps struct {
	API     API
	Connect ConnectFunc
	Policy  policy.Policy
	Events  bus.Publisher
	Rand    rand.Source
	Log     *slog.Logger
}

// Session is one bot's lifecycle: Connecting, then Active, then Closed.
type Session struct {
	opts    Options
	api     API
	connect ConnectFunc
	policy  policy.Policy
	events  bus.Publisher
	log     *slog.Logger

	store   *corridor.Store
	timers  *timerset.Set
	history *History

	rngMu sync.Mutex
	rng   *rand.Rand

	// tickMu serializes ticks and lets Close wait for the one in flight.
	tickMu sync.Mutex

	mu             sync.RWMutex
	state          State
	ctx            context.Context
	cancel         context.CancelFunc
	token          string
	conn           Conn
	animator       *typing.Animator
	closed         bool
	lastErr        string
	lastSnapshotAt time.Time
	usage          providertypes.TokenUsage
	ticks          uint64

	wg sync.WaitGroup
}

func New(opts Options, deps Deps) (*Session, error) {
	if strings.TrimSpace(opts.Credential.Username) == "" {
		return nil, errors.New("bot username is required")
	}
	if deps.API == nil {
		return nil, errors.New("corridor api is required")
	}
	if deps.Connect == nil {
		return nil, errors.New("push connector is required")
	}
	if deps.Policy == nil {
		return nil, errors.New("decision policy is required")
	}
	if deps.Rand == nil {
		deps.Rand = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = corridor.DefaultMaxTextLength
	}

	return &Session{
		opts:    opts,
		api:     deps.API,
		connect: deps.Connect,
		policy:  deps.Policy,
		events:  deps.Events,
		log:     deps.Log.With("component", "session", "bot", opts.Credential.Username),
		store:   corridor.NewStore(),
		timers:  timerset.New(),
		history: NewHistory(opts.HistoryLimit),
		rng:     rand.New(deps.Rand),
		state:   StateConnecting,
	}, nil
}

func (s *Session) Name() string {
	return s.opts.Credential.Username
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// History returns the recent decisions, oldest first.
func (s *Session) History() []DecisionRecord {
	return s.history.List()
}

// Start authenticates and opens the push subscription. A bot that can neither
// log in nor register fails with api.ErrRegistrationFailed and is closed.
// ctx bounds the whole session lifetime.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.ctx != nil {
		s.mu.Unlock()
		return errors.New("session already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	sessionCtx := s.ctx
	s.mu.Unlock()

	s.publishState(StateConnecting, nil)

	token, err := s.loginOrRegister(sessionCtx)
	if err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	conn, err := s.connect(sessionCtx, token, s.onSnapshot)
	if err != nil {
		return s.fail(fmt.Errorf("open push subscription: %w", err))
	}

	animator, err := typing.New(sessionCtx, conn, s.timers, s.opts.Typing, s.log)
	if err != nil {
		_ = conn.Close()
		return s.fail(err)
	}
	animator.OnEmit(s.onEmit)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		animator.Stop()
		_ = conn.Close()
		return ErrClosed
	}
	s.conn = conn
	s.animator = animator
	s.state = StateActive
	s.wg.Add(1)
	s.mu.Unlock()

	go s.watch(conn)

	s.log.Info("Session active", "policy", s.policy.Name())
	s.publishState(StateActive, nil)
	return nil
}

func (s *Session) loginOrRegister(ctx context.Context) (string, error) {
	username := s.opts.Credential.Username
	password := s.opts.Credential.Password

	token, err := s.api.Login(ctx, username, password)
	if err == nil {
		return token, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	s.log.Info("Login failed, registering account", "category", api.CategoryFromError(err), "error", err)
	if _, regErr := s.api.Register(ctx, username, password); regErr != nil {
		return "", fmt.Errorf("%w for %s: %w", api.ErrRegistrationFailed, username, regErr)
	}

	token, err = s.api.Login(ctx, username, password)
	if err != nil {
		return "", fmt.Errorf("login after registration: %w", err)
	}

	return token, nil
}

func (s *Session) fail(err error) error {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()

	s.log.Error("Session failed", "error", err)
	_ = s.Close()
	return err
}

// watch records an unexpected end of the push subscription.
func (s *Session) watch(conn Conn) {
	defer s.wg.Done()

	<-conn.Done()
	err := conn.Err()
	if err == nil {
		return
	}

	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()

	if !closed {
		s.log.Warn("Push subscription ended", "error", err)
		s.publishState(StateActive, err)
	}
}

// Close cancels pending text emissions, scheduled unlocks and any generation
// in flight, waits for a running tick, then closes the push subscription. No
// action is emitted once Close returns. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	conn := s.conn
	animator := s.animator
	token := s.token
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if animator != nil {
		animator.Stop()
	}
	s.timers.Stop()

	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if s.opts.LeaveOnShutdown && conn != nil && token != "" {
		leaveCtx, cancelLeave := context.WithTimeout(context.Background(), leaveTimeout)
		if err := s.api.Leave(leaveCtx, token); err != nil {
			s.log.Warn("Failed to leave corridor", "error", err)
		}
		cancelLeave()
	}

	var err error
	if conn != nil {
		err = conn.Close()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	s.log.Info("Session closed")
	s.publishState(StateClosed, nil)
	return err
}

func (s *Session) onSnapshot(snap corridor.Snapshot) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.lastSnapshotAt = time.Now().UTC()
	ctx := s.ctx
	token := s.token
	s.mu.Unlock()

	s.store.Set(snap)
	s.publish(bus.EventSnapshotReceived, "", snapshotPayload(snap), nil)

	s.respondToFriendRequests(ctx, token, snap)
}

func (s *Session) onEmit(text string, final bool, err error) {
	payload := map[string]string{"text": text, "final": strconv.FormatBool(final)}
	s.publish(bus.EventTextEmitted, "", payload, err)
}

func (s *Session) roll() float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64()
}

func (s *Session) publishState(state State, err error) {
	s.publish(bus.EventSessionState, "", map[string]string{"state": string(state)}, err)
}

func (s *Session) publish(eventType bus.EventType, tickID string, payload map[string]string, err error) {
	if s.events == nil {
		return
	}

	event := bus.Event{
		Type:    eventType,
		Bot:     s.Name(),
		TickID:  tickID,
		Payload: payload,
	}
	if err != nil {
		event.Error = err.Error()
	}
	s.events.PublishEvent(context.Background(), event)
}
