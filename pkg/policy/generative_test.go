package policy

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corridorbots/pkg/corridor"
	providertypes "corridorbots/pkg/provider/types"
)

type fakeGenerator struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	prompts  []string
	block    chan struct{}
}

func (f *fakeGenerator) Complete(ctx context.Context, prompt string) (providertypes.Completion, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	response, err, block := f.response, f.err, f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return providertypes.Completion{}, ctx.Err()
		}
	}
	if err != nil {
		return providertypes.Completion{}, err
	}
	return providertypes.Completion{Text: response}, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestGenerative(t *testing.T, gen *fakeGenerator, cfg GenerativeConfig) (*Generative, *fakeClock) {
	t.Helper()

	policy, err := NewGenerative(gen, cfg, nil)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	policy.now = clock.Now
	return policy, clock
}

var sampleSnapshot = corridor.Snapshot{
	Self:    corridor.Self{ID: 9},
	HasSelf: true,
	Left:    &corridor.Neighbor{ID: 4, Text: "hello there"},
	Right:   nil,
}

func TestGenerativeDecides(t *testing.T) {
	gen := &fakeGenerator{response: `{"move":"left","lock":"none","text":"hi!","request":"none"}`}
	policy, clock := newTestGenerative(t, gen, GenerativeConfig{Enabled: true, MinInterval: 8 * time.Second})

	decision, err := policy.Decide(context.Background(), sampleSnapshot)
	require.NoError(t, err)

	assert.Equal(t, corridor.MoveLeft, decision.Action.Move)
	assert.Equal(t, "hi!", decision.Action.Text)
	assert.Equal(t, clock.Now(), policy.LastDecisionAt())
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], `left neighbor: id=4`)
}

func TestGenerativeCooldownSkipsSecondDecision(t *testing.T) {
	gen := &fakeGenerator{response: `{"move":"none","lock":"none","text":"","request":"none"}`}
	policy, clock := newTestGenerative(t, gen, GenerativeConfig{Enabled: true, MinInterval: 8 * time.Second})

	_, err := policy.Decide(context.Background(), sampleSnapshot)
	require.NoError(t, err)
	first := policy.LastDecisionAt()

	clock.Advance(3 * time.Second)
	_, err = policy.Decide(context.Background(), sampleSnapshot)
	require.Error(t, err)
	assert.Equal(t, ErrorCooldown, CategoryFromError(err))
	assert.Equal(t, first, policy.LastDecisionAt())
	assert.Equal(t, 1, gen.callCount())

	clock.Advance(5 * time.Second)
	_, err = policy.Decide(context.Background(), sampleSnapshot)
	require.NoError(t, err)
	assert.Equal(t, 2, gen.callCount())
}

func TestGenerativeMalformedResponseLeavesCooldown(t *testing.T) {
	gen := &fakeGenerator{response: "not json"}
	policy, _ := newTestGenerative(t, gen, GenerativeConfig{Enabled: true, MinInterval: time.Minute})

	_, err := policy.Decide(context.Background(), sampleSnapshot)
	require.Error(t, err)
	assert.Equal(t, ErrorParse, CategoryFromError(err))
	assert.True(t, policy.LastDecisionAt().IsZero())

	gen.mu.Lock()
	gen.response = `{"move":"none","lock":"lock","text":"","request":"none"}`
	gen.mu.Unlock()

	decision, err := policy.Decide(context.Background(), sampleSnapshot)
	require.NoError(t, err, "retry must not be blocked by the failed attempt")
	assert.Equal(t, corridor.LockLock, decision.Action.Lock)
}

func TestGenerativeGenerationFailure(t *testing.T) {
	wantErr := errors.New("upstream 502")
	gen := &fakeGenerator{err: wantErr}
	policy, _ := newTestGenerative(t, gen, GenerativeConfig{Enabled: true})

	_, err := policy.Decide(context.Background(), sampleSnapshot)
	require.Error(t, err)
	assert.Equal(t, ErrorGeneration, CategoryFromError(err))
	assert.ErrorIs(t, err, wantErr)
	assert.True(t, policy.LastDecisionAt().IsZero())
}

func TestGenerativeEmptyResponse(t *testing.T) {
	gen := &fakeGenerator{response: "   "}
	policy, _ := newTestGenerative(t, gen, GenerativeConfig{Enabled: true})

	_, err := policy.Decide(context.Background(), sampleSnapshot)
	assert.Equal(t, ErrorGeneration, CategoryFromError(err))
}

func TestGenerativeAllNoneStillAdvancesCooldown(t *testing.T) {
	gen := &fakeGenerator{response: `{"move":"UP","lock":"maybe","text":"","request":"Accept"}`}
	policy, clock := newTestGenerative(t, gen, GenerativeConfig{Enabled: true, MinInterval: time.Second})

	decision, err := policy.Decide(context.Background(), sampleSnapshot)
	require.NoError(t, err)
	assert.True(t, decision.Action.IsEmpty())
	assert.Equal(t, clock.Now(), policy.LastDecisionAt())
}

func TestGenerativeDisabled(t *testing.T) {
	gen := &fakeGenerator{response: `{"move":"left"}`}
	policy, _ := newTestGenerative(t, gen, GenerativeConfig{Enabled: false})

	_, err := policy.Decide(context.Background(), sampleSnapshot)
	assert.Equal(t, ErrorDisabled, CategoryFromError(err))
	assert.True(t, IsQuiet(err))
	assert.Zero(t, gen.callCount())
}

func TestGenerativeTimeoutCancelsCall(t *testing.T) {
	gen := &fakeGenerator{block: make(chan struct{})}
	policy, _ := newTestGenerative(t, gen, GenerativeConfig{Enabled: true, Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := policy.Decide(context.Background(), sampleSnapshot)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGenerativeRejectsConcurrentEvaluation(t *testing.T) {
	gen := &fakeGenerator{response: `{"move":"none"}`, block: make(chan struct{})}
	policy, _ := newTestGenerative(t, gen, GenerativeConfig{Enabled: true})

	done := make(chan error, 1)
	go func() {
		_, err := policy.Decide(context.Background(), sampleSnapshot)
		done <- err
	}()

	require.Eventually(t, func() bool { return gen.callCount() == 1 }, time.Second, time.Millisecond)

	_, err := policy.Decide(context.Background(), sampleSnapshot)
	assert.Equal(t, ErrorBusy, CategoryFromError(err))

	close(gen.block)
	require.NoError(t, <-done)
}

func TestNewGenerativeRequiresGenerator(t *testing.T) {
	_, err := NewGenerative(nil, GenerativeConfig{Enabled: true}, nil)
	assert.Error(t, err)
}

func TestDisabledGenerativeNeedsNoGenerator(t *testing.T) {
	policy, err := NewGenerative(nil, GenerativeConfig{}, nil)
	require.NoError(t, err)

	_, err = policy.Decide(context.Background(), sampleSnapshot)
	assert.Equal(t, ErrorDisabled, CategoryFromError(err))
}

func TestRenderPromptIsDeterministic(t *testing.T) {
	size := 6
	index := 2
	snap := corridor.Snapshot{
		Self:         corridor.Self{ID: 1, Locked: true, CorridorIndex: &index},
		HasSelf:      true,
		Left:         &corridor.Neighbor{ID: 2, IsFriend: true, HasIncomingRequest: true, Text: "hey bot"},
		CorridorSize: &size,
	}

	first := RenderPrompt(snap)
	second := RenderPrompt(snap)
	require.Equal(t, first, second)

	for _, want := range []string{
		"me: id=1, locked=true, index=2",
		"corridor size: 6",
		`left neighbor: id=2, locked=false, friend=true, requestToMe=true, requestFromMe=false, text="hey bot"`,
		"right neighbor: none",
		promptSchema,
	} {
		assert.True(t, strings.Contains(first, want), "prompt missing %q", want)
	}
}

func TestRenderPromptUnknownSizes(t *testing.T) {
	prompt := RenderPrompt(corridor.Snapshot{HasSelf: true})

	assert.Contains(t, prompt, "index=unknown")
	assert.Contains(t, prompt, "corridor size: unknown")

	prompt = RenderPrompt(corridor.Snapshot{})
	assert.Contains(t, prompt, "me: unknown")
	assert.NotContains(t, prompt, "me: id=")
}
