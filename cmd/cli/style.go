package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/hamed0406/monitorcore/internal/domain"
)

var (
	green  = lipgloss.Color("#10B981")
	red    = lipgloss.Color("#EF4444")
	yellow = lipgloss.Color("#F59E0B")
	dim    = lipgloss.Color("#6B7280")

	styleUp      = lipgloss.NewStyle().Foreground(green).Bold(true)
	styleDown    = lipgloss.NewStyle().Foreground(red).Bold(true)
	styleWarn    = lipgloss.NewStyle().Foreground(yellow)
	styleDimText = lipgloss.NewStyle().Foreground(dim)
)

// paint colours a monitor or result status for terminal output.
func paint(status string) string {
	switch status {
	case string(domain.StatusUp):
		return styleUp.Render(status)
	case string(domain.StatusDown), string(domain.ResultTimeout):
		return styleDown.Render(status)
	case string(domain.StatusError), string(domain.StatusMaintenance):
		return styleWarn.Render(status)
	default:
		return styleDimText.Render(status)
	}
}
