package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	MutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	OKStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	WarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// Success prints a ✓ line.
func Success(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, OKStyle.Render("✓")+" "+fmt.Sprintf(format, args...))
}

// Warning prints a ⚠️ line.
func Warning(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, WarnStyle.Render("⚠️ ")+" "+fmt.Sprintf(format, args...))
}
