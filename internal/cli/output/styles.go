package output

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Styles are the text styles used in text mode.
type Styles struct {
	Header  lipgloss.Style
	Key     lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Muted   lipgloss.Style
}

// NewStyles returns styles bound to w. Without a terminal every style
// renders plain text.
func NewStyles(w io.Writer, isTTY bool) *Styles {
	re := lipgloss.NewRenderer(w)
	if !isTTY {
		re.SetColorProfile(termenv.Ascii)
	}
	return &Styles{
		Header:  re.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Key:     re.NewStyle().Bold(true),
		Success: re.NewStyle().Foreground(lipgloss.Color("10")),
		Error:   re.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Warning: re.NewStyle().Foreground(lipgloss.Color("11")),
		Info:    re.NewStyle().Foreground(lipgloss.Color("14")),
		Muted:   re.NewStyle().Foreground(lipgloss.Color("8")),
	}
}
