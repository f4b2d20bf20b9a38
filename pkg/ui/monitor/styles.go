package monitor

import "github.com/charmbracelet/lipgloss"

// theme groups reusable styles for monitor regions.
type theme struct {
	header     lipgloss.Style
	headerMeta lipgloss.Style
	divider    lipgloss.Style
	column     lipgloss.Style
	cell       lipgloss.Style
	active     lipgloss.Style
	connecting lipgloss.Style
	closed     lipgloss.Style
	errText    lipgloss.Style
	speech     lipgloss.Style
	status     lipgloss.Style
	statusBusy lipgloss.Style
	hint       lipgloss.Style
	log        lipgloss.Style
}

func defaultTheme() theme {
	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("24")),
		headerMeta: lipgloss.NewStyle().
			Foreground(lipgloss.Color("223")),
		divider: lipgloss.NewStyle().
			Foreground(lipgloss.Color("130")),
		column: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("180")),
		cell: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		active: lipgloss.NewStyle().
			Foreground(lipgloss.Color("114")).
			Bold(true),
		connecting: lipgloss.NewStyle().
			Foreground(lipgloss.Color("222")),
		closed: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		errText: lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")),
		speech: lipgloss.NewStyle().
			Foreground(lipgloss.Color("44")),
		status: lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Bold(true),
		statusBusy: lipgloss.NewStyle().
			Foreground(lipgloss.Color("222")).
			Bold(true),
		hint: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		log: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("130")).
			Padding(0, 1),
	}
}
