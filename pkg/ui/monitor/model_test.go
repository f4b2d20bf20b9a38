package monitor

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corridorbots/pkg/bus"
)

func event(eventType bus.EventType, bot string, payload map[string]string) bus.Event {
	return bus.Event{Type: eventType, At: time.Now(), Bot: bot, Payload: payload}
}

func TestApplyTracksBotRows(t *testing.T) {
	t.Parallel()

	m := newModel(nil, RuntimeInfo{})
	m.apply(event(bus.EventSessionState, "alice", map[string]string{"state": "active"}))
	m.apply(event(bus.EventSnapshotReceived, "alice", map[string]string{"index": "2", "size": "5", "locked": "true"}))
	m.apply(event(bus.EventTickStarted, "alice", nil))
	m.apply(event(bus.EventDecisionMade, "alice", map[string]string{
		"action":             "move=left",
		"usage_total_tokens": "12",
		"usage_input_tokens": "8",
	}))
	m.apply(event(bus.EventTextEmitted, "alice", map[string]string{"text": "hi"}))

	row := m.rows["alice"]
	require.NotNil(t, row)
	assert.Equal(t, "active", row.state)
	assert.Equal(t, "2/5", row.position)
	assert.True(t, row.locked)
	assert.True(t, row.ticking)
	assert.Equal(t, "move=left", row.lastAction)
	assert.Equal(t, "hi", row.text)

	finished := event(bus.EventTickFinished, "alice", nil)
	finished.Error = "lock failed"
	m.apply(finished)
	assert.False(t, row.ticking)
	assert.Equal(t, "lock failed", row.lastErr)
}

func TestApplyIgnoresEventsWithoutBot(t *testing.T) {
	t.Parallel()

	m := newModel(nil, RuntimeInfo{})
	m.apply(event(bus.EventSessionState, "", map[string]string{"state": "active"}))
	assert.Empty(t, m.rows)
}

func TestUpdateConsumesEventsUntilClosed(t *testing.T) {
	t.Parallel()

	events := make(chan bus.Event, 1)
	m := newModel(events, RuntimeInfo{})

	events <- event(bus.EventDecisionSkipped, "bob", map[string]string{"reason": "typing"})
	msg := waitForEvent(events)()
	_, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	assert.Equal(t, "skip: typing", m.rows["bob"].lastAction)

	close(events)
	_, cmd = m.Update(waitForEvent(events)())
	assert.Nil(t, cmd)
	assert.True(t, m.closed)
	assert.Contains(t, m.View(), "event stream closed")
}

func TestQuitKeys(t *testing.T) {
	t.Parallel()

	m := newModel(nil, RuntimeInfo{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestViewRendersTable(t *testing.T) {
	t.Parallel()

	m := newModel(nil, RuntimeInfo{Provider: "openai", Model: "gpt-4o-mini", Interval: 8 * time.Second})
	m.apply(event(bus.EventSessionState, "carol", map[string]string{"state": "active"}))

	view := m.View()
	assert.Contains(t, view, "carol")
	assert.Contains(t, view, "gpt-4o-mini")
	assert.Contains(t, view, "LAST ACTION")
}

func TestFit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ab   ", fit("ab", 5))
	got := fit("abcdefgh", 5)
	assert.Equal(t, 5, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
