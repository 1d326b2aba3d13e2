package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWarning = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleError   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	styleMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleTitle   = lipgloss.NewStyle().Bold(true)
)

func colorEnabled() bool {
	if IsJSONOutput() || IsJSONLOutput() {
		return false
	}
	if noColor {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return stdoutIsTerminal()
}

func colorize(text string, style lipgloss.Style) string {
	if !colorEnabled() {
		return text
	}
	return style.Render(text)
}

// statusStyle picks the style for a client status or event severity.
func statusStyle(value string) lipgloss.Style {
	switch value {
	case "active", "info", "online", "completed", "applied":
		return styleOK
	case "warning", "offline":
		return styleWarning
	case "blocked", "error", "failed":
		return styleError
	default:
		return styleMuted
	}
}
