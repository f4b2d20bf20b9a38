package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"corridorbots/pkg/corridor"
	"corridorbots/pkg/policy"
)

type fakeAPI struct {
	mu          sync.Mutex
	calls       []string
	loginErrs   []error
	registerErr error
	failOn      map[string]error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{failOn: map[string]error{}}
}

func (f *fakeAPI) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.failOn[call]
}

func (f *fakeAPI) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) count(call string) int {
	n := 0
	for _, c := range f.recorded() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeAPI) Login(_ context.Context, username, _ string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "login")
	var err error
	if len(f.loginErrs) > 0 {
		err = f.loginErrs[0]
		f.loginErrs = f.loginErrs[1:]
	}
	f.mu.Unlock()

	if err != nil {
		return "", err
	}
	return "jwt-" + username, nil
}

func (f *fakeAPI) Register(context.Context, string, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "register")
	return "", f.registerErr
}

func (f *fakeAPI) MoveLeft(context.Context, string) error  { return f.record("move_left") }
func (f *fakeAPI) MoveRight(context.Context, string) error { return f.record("move_right") }
func (f *fakeAPI) Lock(context.Context, string) error      { return f.record("lock") }
func (f *fakeAPI) Unlock(context.Context, string) error    { return f.record("unlock") }
func (f *fakeAPI) Leave(context.Context, string) error     { return f.record("leave") }

func (f *fakeAPI) SendRequest(_ context.Context, _ string, dir corridor.Direction) error {
	return f.record("send_request_" + string(dir))
}

func (f *fakeAPI) Accept(_ context.Context, _ string, dir corridor.Direction) error {
	return f.record("accept_" + string(dir))
}

func (f *fakeAPI) Reject(_ context.Context, _ string, dir corridor.Direction) error {
	return f.record("reject_" + string(dir))
}

type fakeConn struct {
	mu        sync.Mutex
	texts     []string
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{done: make(chan struct{})}
}

func (c *fakeConn) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *fakeConn) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }
func (c *fakeConn) Err() error            { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// fakePush hands out one fakeConn and keeps the snapshot handler so tests can push.
type fakePush struct {
	mu      sync.Mutex
	conn    *fakeConn
	handler func(corridor.Snapshot)
	token   string
	err     error
}

func (p *fakePush) connect(_ context.Context, token string, handler func(corridor.Snapshot)) (Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.conn = newFakeConn()
	p.handler = handler
	p.token = token
	return p.conn, nil
}

func (p *fakePush) push(snap corridor.Snapshot) {
	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	handler(snap)
}

func (p *fakePush) connection() *fakeConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

type scriptedPolicy struct {
	mu        sync.Mutex
	decisions []policy.Decision
	err       error
	calls     int
}

func (p *scriptedPolicy) Name() string { return "scripted" }

func (p *scriptedPolicy) Decide(context.Context, corridor.Snapshot) (policy.Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return policy.Decision{}, p.err
	}
	if len(p.decisions) == 0 {
		return policy.Decision{Action: corridor.NoAction()}, nil
	}
	decision := p.decisions[0]
	if len(p.decisions) > 1 {
		p.decisions = p.decisions[1:]
	}
	return decision, nil
}

func (p *scriptedPolicy) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// blockingPolicy holds Decide until ctx is cancelled.
type blockingPolicy struct {
	started chan struct{}
	once    sync.Once
}

func (p *blockingPolicy) Name() string { return "blocking" }

func (p *blockingPolicy) Decide(ctx context.Context, _ corridor.Snapshot) (policy.Decision, error) {
	p.once.Do(func() { close(p.started) })
	<-ctx.Done()
	return policy.Decision{}, errors.Join(policy.NewError(policy.ErrorGeneration, "cancelled"), ctx.Err())
}

var errBoom = errors.New("boom")

const waitFor = 2 * time.Second
