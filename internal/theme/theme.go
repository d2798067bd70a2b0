// Package theme provides the light and dark terminal palettes.
package theme

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Name identifies a palette.
type Name string

const (
	Dark  Name = "dark"
	Light Name = "light"
)

// Default is used when no preference has been stored.
const Default = Dark

// Parse maps a stored preference to a Name. "light-theme" and "dark-theme"
// are accepted as aliases; anything unknown yields Default.
func Parse(s string) Name {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "-theme") {
	case "light":
		return Light
	case "dark":
		return Dark
	default:
		return Default
	}
}

// Toggle returns the other palette.
func (n Name) Toggle() Name {
	if n == Light {
		return Dark
	}
	return Light
}

// Icon is the status-bar glyph for the palette.
func (n Name) Icon() string {
	if n == Light {
		return "☀"
	}
	return "☾"
}

// Theme holds the styles used by the chat UI.
type Theme struct {
	Name Name

	Header    lipgloss.Style
	Status    lipgloss.Style
	Connected lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style

	UserLabel lipgloss.Style
	BotLabel  lipgloss.Style
	Text      lipgloss.Style
	Mention   lipgloss.Style
	Timestamp lipgloss.Style

	Composer    lipgloss.Style
	Cursor      lipgloss.Style
	Placeholder lipgloss.Style
}

// For returns the palette called name.
func For(name Name) Theme {
	if name == Light {
		return build(Light, palette{
			fg:      "#1f2328",
			muted:   "#6e7781",
			accent:  "#0969da",
			user:    "#8250df",
			bot:     "#1a7f37",
			mention: "#0550ae",
			mentBg:  "#ddf4ff",
			warn:    "#9a6700",
			err:     "#cf222e",
			border:  "#d0d7de",
		})
	}
	return build(Dark, palette{
		fg:      "#e6edf3",
		muted:   "#7d8590",
		accent:  "#2f81f7",
		user:    "#d2a8ff",
		bot:     "#3fb950",
		mention: "#79c0ff",
		mentBg:  "#1f3352",
		warn:    "#d29922",
		err:     "#f85149",
		border:  "#30363d",
	})
}

type palette struct {
	fg, muted, accent, user, bot, mention, mentBg, warn, err, border string
}

func build(name Name, p palette) Theme {
	return Theme{
		Name:      name,
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.accent)),
		Status:    lipgloss.NewStyle().Foreground(lipgloss.Color(p.muted)),
		Connected: lipgloss.NewStyle().Foreground(lipgloss.Color(p.bot)),
		Warning:   lipgloss.NewStyle().Foreground(lipgloss.Color(p.warn)),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color(p.err)),

		UserLabel: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.user)),
		BotLabel:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.bot)),
		Text:      lipgloss.NewStyle().Foreground(lipgloss.Color(p.fg)),
		Mention: lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color(p.mention)).
			Background(lipgloss.Color(p.mentBg)),
		Timestamp: lipgloss.NewStyle().Foreground(lipgloss.Color(p.muted)),

		Composer: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(p.border)).
			Padding(0, 1),
		Cursor:      lipgloss.NewStyle().Reverse(true),
		Placeholder: lipgloss.NewStyle().Foreground(lipgloss.Color(p.muted)).Italic(true),
	}
}
