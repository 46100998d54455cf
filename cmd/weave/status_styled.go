package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"weave/pkg/types"
)

// Style definitions
var (
	primaryColor = lipgloss.Color("#8BE9FD") // Cyan
	accentColor  = lipgloss.Color("#50FA7B") // Green
	warningColor = lipgloss.Color("#FFB86C") // Orange
	mutedColor   = lipgloss.Color("#6272A4") // Comment
	fgColor      = lipgloss.Color("#F8F8F2") // Foreground

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(18)

	valueStyle = lipgloss.NewStyle().
			Foreground(fgColor).
			Bold(true)

	runningStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	stoppedStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)
)

func renderStats(stats types.FederationStats) string {
	state := stoppedStyle.Render("stopped")
	if stats.Running {
		state = runningStyle.Render("running")
	}

	rows := []string{
		titleStyle.Render("Federation Node"),
		row("Node ID", string(stats.NodeID)),
		fmt.Sprintf("%s %s", labelStyle.Render("State"), state),
		row("Fragments", strconv.Itoa(stats.FragmentCount)),
		row("Peers", strconv.Itoa(stats.PeerCount)),
		row("Shared concepts", strconv.Itoa(stats.TotalSharedConcepts)),
		row("Privacy level", stats.PrivacyLevel),
	}

	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func row(label, value string) string {
	return fmt.Sprintf("%s %s", labelStyle.Render(label), valueStyle.Render(value))
}
