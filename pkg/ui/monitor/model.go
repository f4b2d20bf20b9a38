package monitor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"corridorbots/pkg/bus"
	"corridorbots/pkg/session"
)

const maxLogLines = 200

// RuntimeInfo is shown in the monitor header.
type RuntimeInfo struct {
	Provider string
	Model    string
	Interval time.Duration
}

type eventMsg bus.Event

type eventsClosedMsg struct{}

type botRow struct {
	name       string
	state      string
	position   string
	locked     bool
	lastAction string
	text       string
	lastErr    string
	ticking    bool
	tokens     int64
}

type model struct {
	events <-chan bus.Event

	theme    theme
	spinner  spinner.Model
	viewport viewport.Model
	rows     map[string]*botRow
	logLines []string
	width    int
	height   int
	closed   bool
	runtime  RuntimeInfo
}

func newModel(events <-chan bus.Event, info RuntimeInfo) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	return &model{
		events:   events,
		theme:    defaultTheme(),
		spinner:  spin,
		viewport: viewport.New(80, 8),
		rows:     make(map[string]*botRow),
		width:    100,
		height:   28,
		runtime:  info,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc", "q":
			return m, tea.Quit
		case "pgup":
			m.viewport.PageUp()
		case "pgdown":
			m.viewport.PageDown()
		}
		return m, nil
	case eventMsg:
		m.apply(bus.Event(typed))
		return m, waitForEvent(m.events)
	case eventsClosedMsg:
		m.closed = true
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	}

	return m, nil
}

func (m *model) row(name string) *botRow {
	row, ok := m.rows[name]
	if !ok {
		row = &botRow{name: name, state: string(session.StateConnecting)}
		m.rows[name] = row
	}
	return row
}

func (m *model) apply(event bus.Event) {
	if event.Bot == "" {
		return
	}
	row := m.row(event.Bot)

	switch event.Type {
	case bus.EventSessionState:
		row.state = event.Payload["state"]
		if event.Error != "" {
			row.lastErr = event.Error
		}
	case bus.EventSnapshotReceived:
		row.position = formatPosition(event.Payload["index"], event.Payload["size"])
		row.locked = event.Payload["locked"] == "true"
	case bus.EventTickStarted:
		row.ticking = true
	case bus.EventTickFinished:
		row.ticking = false
		if event.Error != "" {
			row.lastErr = event.Error
		}
	case bus.EventDecisionMade:
		row.lastAction = event.Payload["action"]
		if usage, ok := session.UsageFromPayload(event.Payload); ok {
			row.tokens += usage.TotalTokens
		}
	case bus.EventDecisionSkipped:
		row.lastAction = "skip: " + event.Payload["reason"]
	case bus.EventTextEmitted:
		row.text = event.Payload["text"]
	case bus.EventActionFailed:
		row.lastErr = event.Payload["action"] + ": " + event.Error
	}

	m.appendLog(event)
}

func (m *model) appendLog(event bus.Event) {
	switch event.Type {
	case bus.EventTickStarted, bus.EventTickFinished, bus.EventTextEmitted:
		return
	}

	line := fmt.Sprintf("%s %-10s %s", event.At.Local().Format("15:04:05"), event.Bot, describe(event))
	m.logLines = append(m.logLines, line)
	if len(m.logLines) > maxLogLines {
		m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
	}

	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(m.logLines, "\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func describe(event bus.Event) string {
	var parts []string
	parts = append(parts, string(event.Type))
	keys := make([]string, 0, len(event.Payload))
	for key := range event.Payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		parts = append(parts, key+"="+event.Payload[key])
	}
	if event.Error != "" {
		parts = append(parts, "error="+event.Error)
	}
	return strings.Join(parts, " ")
}

func (m *model) View() string {
	header := m.theme.header.Width(m.width - 2).Render("Corridor Bots Monitor")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"bots:%d · provider:%s · model:%s · tick:%s",
		len(m.rows),
		displayOrNA(m.runtime.Provider),
		displayOrNA(m.runtime.Model),
		m.runtime.Interval,
	))
	line := m.theme.divider.Render(strings.Repeat("═", max(8, m.width-2)))

	parts := []string{header, meta, line, m.renderTable(), line, m.theme.log.Width(m.width - 4).Render(m.viewport.View())}

	status := m.theme.status.Render("PgUp/PgDn scroll log  ·  q/Ctrl+C/Esc quit")
	if m.closed {
		status = m.theme.hint.Render("event stream closed")
	} else if m.anyTicking() {
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s deciding...", m.spinner.View())) + "  " + status
	}
	parts = append(parts, status)

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

var columns = []struct {
	title string
	width int
}{
	{"BOT", 14},
	{"STATE", 11},
	{"POS", 7},
	{"LOCK", 5},
	{"LAST ACTION", 26},
	{"TEXT", 24},
	{"TOKENS", 7},
	{"ERROR", 24},
}

func (m *model) renderTable() string {
	titles := make([]string, len(columns))
	for i, col := range columns {
		titles[i] = m.theme.column.Render(fit(col.title, col.width))
	}
	lines := []string{strings.Join(titles, " ")}

	for _, name := range m.sortedNames() {
		row := m.rows[name]
		label := row.name
		if row.ticking {
			label = m.spinner.View() + label
		}
		lock := ""
		if row.locked {
			lock = "yes"
		}
		tokens := ""
		if row.tokens > 0 {
			tokens = fmt.Sprintf("%d", row.tokens)
		}

		cells := []string{
			m.theme.cell.Render(fit(label, columns[0].width)),
			m.stateStyle(row.state).Render(fit(row.state, columns[1].width)),
			m.theme.cell.Render(fit(row.position, columns[2].width)),
			m.theme.cell.Render(fit(lock, columns[3].width)),
			m.theme.cell.Render(fit(row.lastAction, columns[4].width)),
			m.theme.speech.Render(fit(row.text, columns[5].width)),
			m.theme.cell.Render(fit(tokens, columns[6].width)),
			m.theme.errText.Render(fit(row.lastErr, columns[7].width)),
		}
		lines = append(lines, strings.Join(cells, " "))
	}

	return strings.Join(lines, "\n")
}

func (m *model) stateStyle(state string) lipgloss.Style {
	switch session.State(state) {
	case session.StateActive:
		return m.theme.active
	case session.StateClosed:
		return m.theme.closed
	default:
		return m.theme.connecting
	}
}

func (m *model) sortedNames() []string {
	names := make([]string, 0, len(m.rows))
	for name := range m.rows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *model) anyTicking() bool {
	for _, row := range m.rows {
		if row.ticking {
			return true
		}
	}
	return false
}

func (m *model) resizeComponents() {
	w := max(50, m.width-6)
	h := max(4, m.height-len(m.rows)-10)
	m.viewport.Width = w
	m.viewport.Height = h
}

func waitForEvent(events <-chan bus.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(event)
	}
}

// fit pads or truncates s to exactly width cells.
func fit(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if lipgloss.Width(s) > width {
		runes := []rune(s)
		for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
			runes = runes[:len(runes)-1]
		}
		s = string(runes) + "…"
	}
	return s + strings.Repeat(" ", max(0, width-lipgloss.Width(s)))
}

func formatPosition(index, size string) string {
	if index == "" {
		return ""
	}
	if size == "" {
		return index
	}
	return index + "/" + size
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}
