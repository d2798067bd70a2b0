package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/Tyrowin/mentionchat/internal/chat"
	"github.com/Tyrowin/mentionchat/internal/connection"
	"github.com/Tyrowin/mentionchat/internal/mention"
)

const placeholder = "Type a message, @name to mention"

// View renders the UI.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderComposer(),
		m.renderStatus(),
	)
}

func (m Model) renderHeader() string {
	title := "mentionchat"
	if m.conn != nil {
		title += "  " + m.conn.Endpoint()
	}
	icon := m.theme.Name.Icon()
	gap := m.width - runewidth.StringWidth(title) - runewidth.StringWidth(icon)
	if gap < 1 {
		gap = 1
	}
	return m.theme.Header.Render(title + strings.Repeat(" ", gap) + icon)
}

// refreshTranscript rebuilds the viewport content and scrolls to the newest
// message.
func (m *Model) refreshTranscript() {
	msgs := m.transcript.Messages()
	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		lines = append(lines, m.renderMessage(msg))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

func (m Model) renderMessage(msg chat.Message) string {
	t := m.theme

	label := t.BotLabel.Render("bot")
	if msg.Sender == chat.SenderUser {
		name := "you"
		if m.nickname != "" {
			name = m.nickname
		}
		label = t.UserLabel.Render(name)
	}

	body := mention.Render(msg.Text,
		func(s string) string { return t.Mention.Render(s) },
		func(s string) string { return t.Text.Render(s) },
	)

	line := t.Timestamp.Render(msg.At.Format("15:04")) + " " + label + ": " + body
	if m.width > 0 {
		line = lipgloss.NewStyle().Width(m.width).Render(line)
	}
	return line
}

// renderComposer draws the input line with mentions styled and the caret
// shown. Text wider than the box is scrolled so the caret stays visible.
func (m Model) renderComposer() string {
	t := m.theme
	inner := max(m.width-4, 10)

	view := m.composer.ViewText()
	if view == "" {
		return t.Composer.Width(inner + 2).Render(t.Cursor.Render(" ") + t.Placeholder.Render(placeholder))
	}

	runes := []rune(view)
	inMention := mentionMask(view, len(runes))
	caret := min(m.composer.Caret(), len(runes))

	start := 0
	for start < caret && runesWidth(runes[start:caret])+1 > inner {
		start++
	}

	var b strings.Builder
	width := 0
	for i := start; i <= len(runes); i++ {
		if i == len(runes) {
			if i == caret {
				b.WriteString(t.Cursor.Render(" "))
			}
			break
		}
		w := runewidth.RuneWidth(runes[i])
		if width+w > inner {
			break
		}
		width += w

		s := string(runes[i])
		switch {
		case i == caret:
			b.WriteString(t.Cursor.Render(s))
		case inMention[i]:
			b.WriteString(t.Mention.Render(s))
		default:
			b.WriteString(t.Text.Render(s))
		}
	}
	return t.Composer.Width(inner + 2).Render(b.String())
}

func (m Model) renderStatus() string {
	t := m.theme

	var state string
	switch {
	case m.exhausted:
		state = t.Error.Render(fmt.Sprintf("disconnected, gave up after %d attempts (ctrl+r to retry)", m.attempt))
	case m.state == connection.StateConnected:
		state = t.Connected.Render("● connected")
	case m.state == connection.StateConnecting && m.attempt > 0:
		state = t.Warning.Render(fmt.Sprintf("reconnecting (%d/%d)", m.attempt, m.maxRetries))
	case m.state == connection.StateConnecting:
		state = t.Warning.Render("connecting")
	case m.attempt > 0:
		state = t.Warning.Render(fmt.Sprintf("disconnected, retry %d/%d pending", m.attempt, m.maxRetries))
	default:
		state = t.Warning.Render("disconnected")
	}

	parts := []string{state}
	if m.notice != "" {
		parts = append(parts, t.Error.Render(m.notice))
	} else if m.lastErr != nil && m.state != connection.StateConnected {
		parts = append(parts, t.Status.Render(m.lastErr.Error()))
	}
	parts = append(parts, t.Status.Render("ctrl+t theme  esc quit"))

	line := strings.Join(parts, t.Status.Render("  │  "))
	if m.width > 0 {
		line = lipgloss.NewStyle().MaxWidth(m.width).Render(line)
	}
	return line
}

// mentionMask marks the runes of text that belong to a mention.
func mentionMask(text string, n int) []bool {
	mask := make([]bool, n)
	spans := mention.Spans(text)
	if len(spans) == 0 {
		return mask
	}
	runeIdx := 0
	for byteIdx := range text {
		for _, s := range spans {
			if byteIdx >= s.Start && byteIdx < s.End {
				mask[runeIdx] = true
				break
			}
		}
		runeIdx++
	}
	return mask
}

func runesWidth(rs []rune) int {
	w := 0
	for _, r := range rs {
		w += runewidth.RuneWidth(r)
	}
	return w
}
