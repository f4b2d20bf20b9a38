package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"corridorbots/pkg/bus"
	"corridorbots/pkg/config"
	"corridorbots/pkg/corridor"
	"corridorbots/pkg/policy"
	providertypes "corridorbots/pkg/provider/types"
	"corridorbots/pkg/transport/api"
	"corridorbots/pkg/typing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fastTyping() typing.Options {
	return typing.Options{ChunkSize: 4, EraseStep: time.Millisecond, RevealStep: time.Millisecond, FinalDelay: time.Millisecond}
}

func slowTyping() typing.Options {
	return typing.Options{ChunkSize: 1, EraseStep: 20 * time.Millisecond, RevealStep: 20 * time.Millisecond, FinalDelay: 20 * time.Millisecond}
}

type harness struct {
	session *Session
	api     *fakeAPI
	push    *fakePush
	events  *bus.MessageBus
}

func newHarness(t *testing.T, p policy.Policy, mutate func(*Options)) *harness {
	t.Helper()

	opts := Options{
		Credential: config.BotCredential{Username: "bot1", Password: "secret"},
		Behavior:   config.Default().Behavior,
		Typing:     fastTyping(),
	}
	if mutate != nil {
		mutate(&opts)
	}

	h := &harness{api: newFakeAPI(), push: &fakePush{}, events: bus.NewMessageBus()}
	s, err := New(opts, Deps{
		API:     h.api,
		Connect: h.push.connect,
		Policy:  p,
		Events:  h.events,
		Rand:    rand.NewPCG(1, 2),
	})
	require.NoError(t, err)
	h.session = s

	t.Cleanup(func() {
		_ = s.Close()
		h.events.Close()
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.session.Start(context.Background()))
	require.Equal(t, StateActive, h.session.State())
}

var neighborWithRequest = corridor.Snapshot{
	Self:  corridor.Self{ID: 1},
	Right: &corridor.Neighbor{ID: 2, HasIncomingRequest: true},
}

func TestStartLogsInAndSubscribes(t *testing.T) {
	h := newHarness(t, &scriptedPolicy{}, nil)
	h.start(t)

	assert.Equal(t, []string{"login"}, h.api.recorded())
	assert.Equal(t, "jwt-bot1", h.push.token)
}

func TestStartRegistersWhenLoginFails(t *testing.T) {
	h := newHarness(t, &scriptedPolicy{}, nil)
	h.api.loginErrs = []error{&api.StatusError{Op: "login", StatusCode: 401, Category: api.ErrorUnauthorized}}
	h.start(t)

	assert.Equal(t, []string{"login", "register", "login"}, h.api.recorded())
}

func TestRegistrationFailureIsFatalForBot(t *testing.T) {
	h := newHarness(t, &scriptedPolicy{}, nil)
	h.api.loginErrs = []error{errBoom}
	h.api.registerErr = errBoom

	err := h.session.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrRegistrationFailed))
	assert.Equal(t, StateClosed, h.session.State())
	assert.Nil(t, h.push.connection())
	assert.NotEmpty(t, h.session.Status().LastError)

	require.NoError(t, h.session.Tick(context.Background()))
}

func TestPushFailureClosesSession(t *testing.T) {
	h := newHarness(t, &scriptedPolicy{}, nil)
	h.push.err = errBoom

	err := h.session.Start(context.Background())
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateClosed, h.session.State())
}

func TestFriendResponderAcceptsOrRejectsEveryIncomingRequest(t *testing.T) {
	snap := corridor.Snapshot{
		Left:  &corridor.Neighbor{ID: 2, HasIncomingRequest: true},
		Right: &corridor.Neighbor{ID: 3, HasIncomingRequest: true},
	}

	accepting := newHarness(t, &scriptedPolicy{}, func(o *Options) { o.Behavior.FriendAcceptChance = 1 })
	accepting.start(t)
	accepting.push.push(snap)
	assert.Equal(t, []string{"login", "accept_left", "accept_right"}, accepting.api.recorded())

	rejecting := newHarness(t, &scriptedPolicy{}, func(o *Options) { o.Behavior.FriendAcceptChance = 0 })
	rejecting.start(t)
	rejecting.push.push(snap)
	assert.Equal(t, []string{"login", "reject_left", "reject_right"}, rejecting.api.recorded())
}

func TestFriendResponderSplitsRoughlyByChance(t *testing.T) {
	h := newHarness(t, &scriptedPolicy{}, func(o *Options) { o.Behavior.FriendAcceptChance = 0.5 })
	h.start(t)

	snap := corridor.Snapshot{Left: &corridor.Neighbor{ID: 2, HasIncomingRequest: true}}
	for range 400 {
		h.push.push(snap)
	}

	accepted := h.api.count("accept_left")
	rejected := h.api.count("reject_left")
	assert.Equal(t, 400, accepted+rejected)
	assert.InDelta(t, 200, accepted, 60)
}

func TestSnapshotWithoutRequestsIssuesNoCalls(t *testing.T) {
	h := newHarness(t, &scriptedPolicy{}, nil)
	h.start(t)

	h.push.push(corridor.Snapshot{Left: &corridor.Neighbor{ID: 2, IsFriend: true}})
	assert.Equal(t, []string{"login"}, h.api.recorded())
}

func TestTickWithoutSnapshotSkips(t *testing.T) {
	p := &scriptedPolicy{}
	h := newHarness(t, p, nil)
	h.start(t)

	require.NoError(t, h.session.Tick(context.Background()))
	assert.Zero(t, p.callCount())

	last := h.session.Status().LastDecision
	require.NotNil(t, last)
	assert.Equal(t, OutcomeSkipped, last.Outcome)
	assert.Equal(t, "no_snapshot", last.Reason)
}

func TestTickDispatchesValidatedAction(t *testing.T) {
	p := &scriptedPolicy{decisions: []policy.Decision{{
		Action: corridor.Action{
			Move:    corridor.MoveLeft,
			Lock:    corridor.LockUnlock,
			Request: corridor.RequestAccept,
			Text:    "  hello corridor  ",
		},
		Usage: &providertypes.TokenUsage{InputTokens: 10, OutputTokens: 2, TotalTokens: 12},
	}}}
	h := newHarness(t, p, func(o *Options) { o.Behavior.FriendAcceptChance = 1 })
	h.start(t)

	h.push.push(neighborWithRequest)
	require.NoError(t, h.session.Tick(context.Background()))

	// The push path accepted once; the tick accepted again and never moved left.
	assert.Equal(t, []string{"login", "accept_right", "unlock", "accept_right"}, h.api.recorded())

	conn := h.push.connection()
	require.Eventually(t, func() bool {
		sent := conn.sent()
		return len(sent) > 0 && sent[len(sent)-1] == "hello corridor"
	}, waitFor, 5*time.Millisecond)

	status := h.session.Status()
	assert.Equal(t, int64(12), status.Usage.TotalTokens)
	require.NotNil(t, status.LastDecision)
	assert.Equal(t, OutcomeActed, status.LastDecision.Outcome)
	assert.Equal(t, uint64(1), status.Ticks)
}

func TestTickClipsText(t *testing.T) {
	p := &scriptedPolicy{decisions: []policy.Decision{{
		Action: corridor.Action{Move: corridor.MoveNone, Lock: corridor.LockNone, Request: corridor.RequestNone, Text: "abcdefghij"},
	}}}
	h := newHarness(t, p, func(o *Options) { o.MaxTextLength = 6 })
	h.start(t)

	h.push.push(corridor.Snapshot{})
	require.NoError(t, h.session.Tick(context.Background()))

	conn := h.push.connection()
	require.Eventually(t, func() bool { return h.session.Status().LastText == "abcdef" }, waitFor, 5*time.Millisecond)
	for _, text := range conn.sent() {
		assert.LessOrEqual(t, len([]rune(text)), 6)
	}
}

func TestTickSkippedWhileTyping(t *testing.T) {
	p := &scriptedPolicy{decisions: []policy.Decision{{
		Action: corridor.Action{Move: corridor.MoveNone, Lock: corridor.LockNone, Request: corridor.RequestNone, Text: "a long line of text"},
	}}}
	h := newHarness(t, p, func(o *Options) { o.Typing = slowTyping() })
	h.start(t)

	h.push.push(corridor.Snapshot{})
	require.NoError(t, h.session.Tick(context.Background()))
	require.True(t, h.session.Status().Typing)

	require.NoError(t, h.session.Tick(context.Background()))
	assert.Equal(t, 1, p.callCount())

	last := h.session.Status().LastDecision
	require.NotNil(t, last)
	assert.Equal(t, "typing", last.Reason)
}

func TestDispatchFailureDoesNotStopOtherFields(t *testing.T) {
	p := &scriptedPolicy{decisions: []policy.Decision{{
		Action: corridor.Action{Move: corridor.MoveRight, Lock: corridor.LockLock, Request: corridor.RequestRight},
	}}}
	h := newHarness(t, p, nil)
	h.api.failOn["move_right"] = &api.StatusError{Op: "move_right", StatusCode: 500, Category: api.ErrorServer}
	h.start(t)

	h.push.push(corridor.Snapshot{Right: &corridor.Neighbor{ID: 2}})
	err := h.session.Tick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "move_right")

	assert.Equal(t, []string{"login", "move_right", "lock", "send_request_right"}, h.api.recorded())
}

func TestLockSchedulesAutoUnlock(t *testing.T) {
	p := &scriptedPolicy{decisions: []policy.Decision{
		{Action: corridor.Action{Move: corridor.MoveNone, Lock: corridor.LockLock, Request: corridor.RequestNone}, UnlockAfter: 10 * time.Millisecond},
		{Action: corridor.NoAction()},
	}}
	h := newHarness(t, p, nil)
	h.start(t)

	h.push.push(corridor.Snapshot{})
	require.NoError(t, h.session.Tick(context.Background()))

	require.Eventually(t, func() bool { return h.api.count("unlock") == 1 }, waitFor, 5*time.Millisecond)
}

func TestPolicyErrorSkipsTick(t *testing.T) {
	p := &scriptedPolicy{err: policy.NewError(policy.ErrorCooldown, "wait")}
	h := newHarness(t, p, nil)
	h.start(t)

	events, unsubscribe := h.events.SubscribeEvents(context.Background(), 16)
	defer unsubscribe()

	h.push.push(corridor.Snapshot{})
	require.NoError(t, h.session.Tick(context.Background()))
	assert.Equal(t, []string{"login"}, h.api.recorded())

	var skipped *bus.Event
	for skipped == nil {
		select {
		case event := <-events:
			if event.Type == bus.EventDecisionSkipped {
				skipped = &event
			}
		case <-time.After(waitFor):
			t.Fatal("no decision_skipped event")
		}
	}
	assert.Equal(t, "cooldown", skipped.Payload["reason"])
	assert.NotEmpty(t, skipped.TickID)
}

func TestCloseCancelsPendingWork(t *testing.T) {
	p := &scriptedPolicy{decisions: []policy.Decision{{
		Action:      corridor.Action{Move: corridor.MoveNone, Lock: corridor.LockLock, Request: corridor.RequestNone, Text: "this will never finish"},
		UnlockAfter: 50 * time.Millisecond,
	}}}
	h := newHarness(t, p, func(o *Options) { o.Typing = slowTyping() })
	h.start(t)

	h.push.push(corridor.Snapshot{})
	require.NoError(t, h.session.Tick(context.Background()))
	require.NoError(t, h.session.Close())

	conn := h.push.connection()
	sentAtClose := len(conn.sent())
	callsAtClose := len(h.api.recorded())

	time.Sleep(150 * time.Millisecond)
	assert.Len(t, conn.sent(), sentAtClose)
	assert.Len(t, h.api.recorded(), callsAtClose)
	assert.NotContains(t, conn.sent(), "this will never finish")
	assert.Equal(t, StateClosed, h.session.State())

	require.NoError(t, h.session.Tick(context.Background()))
	assert.Equal(t, 1, p.callCount())
}

func TestCloseCancelsInFlightDecision(t *testing.T) {
	p := &blockingPolicy{started: make(chan struct{})}
	h := newHarness(t, p, nil)
	h.start(t)
	h.push.push(corridor.Snapshot{})

	done := make(chan error, 1)
	go func() { done <- h.session.Tick(context.Background()) }()

	<-p.started
	require.NoError(t, h.session.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("tick did not return after Close")
	}
}

func TestLeaveOnShutdown(t *testing.T) {
	h := newHarness(t, &scriptedPolicy{}, func(o *Options) { o.LeaveOnShutdown = true })
	h.start(t)

	require.NoError(t, h.session.Close())
	require.NoError(t, h.session.Close())
	assert.Equal(t, 1, h.api.count("leave"))
}

func TestSnapshotsAfterCloseAreIgnored(t *testing.T) {
	h := newHarness(t, &scriptedPolicy{}, func(o *Options) { o.Behavior.FriendAcceptChance = 1 })
	h.start(t)
	require.NoError(t, h.session.Close())

	h.push.push(neighborWithRequest)
	assert.Equal(t, []string{"login"}, h.api.recorded())
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New(Options{}, Deps{})
	require.Error(t, err)

	_, err = New(Options{Credential: config.BotCredential{Username: "bot1"}}, Deps{API: newFakeAPI()})
	require.Error(t, err)
}
