// Package monitor renders a live terminal view of the fleet from bus events.
package monitor

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"corridorbots/pkg/bus"
)

// Run shows the monitor until the user quits or ctx is done.
func Run(ctx context.Context, events <-chan bus.Event, info RuntimeInfo) error {
	program := tea.NewProgram(newModel(events, info), tea.WithContext(ctx), tea.WithAltScreen())
	_, err := program.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}

	return err
}
