package tui

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Tyrowin/mentionchat/internal/composer"
	"github.com/Tyrowin/mentionchat/internal/connection"
	"github.com/Tyrowin/mentionchat/internal/theme"
)

const (
	headerHeight   = 1
	composerHeight = 3
	statusHeight   = 1
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerHeight-composerHeight-statusHeight, 1)
		m.ready = true
		m.refreshTranscript()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case IncomingMsg:
		m.transcript.Append(msg.Msg)
		m.refreshTranscript()
		if m.notifier == nil {
			return m, listenForConnection(m.conn)
		}
		return m, tea.Batch(listenForConnection(m.conn), notify(m.notifier, msg.Msg))

	case StateMsg:
		m.applyState(msg.Event)
		return m, listenForConnection(m.conn)

	case ConnectionClosedMsg:
		m.state = connection.StateDisconnected
		return m, nil
	}
	return m, nil
}

func (m *Model) applyState(ev connection.StateEvent) {
	m.state = ev.New
	m.attempt = ev.Attempt
	m.exhausted = ev.Exhausted
	if ev.Err != nil {
		m.lastErr = ev.Err
	}
	if ev.New == connection.StateConnected {
		m.lastErr = nil
		m.notice = ""
	}
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit

	case tea.KeyCtrlT:
		m.toggleTheme()
		return m, nil

	case tea.KeyCtrlR:
		m.retry()
		return m, nil

	case tea.KeyPgUp:
		m.viewport.HalfViewUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.HalfViewDown()
		return m, nil
	}

	ev, ok := inputEvent(msg)
	if !ok {
		return m, nil
	}

	m.notice = ""
	before := m.transcript.Len()
	if err := m.composer.HandleInput(ev); err != nil {
		if errors.Is(err, connection.ErrNotConnected) {
			m.notice = "not connected, message kept"
		} else {
			m.notice = err.Error()
		}
		m.log.Warn("submit failed", "error", err)
	}
	if m.transcript.Len() != before {
		m.refreshTranscript()
	}
	return m, nil
}

func (m *Model) toggleTheme() {
	next := m.theme.Name.Toggle()
	m.theme = theme.For(next)
	if m.prefs != nil {
		if err := m.prefs.SetTheme(next); err != nil {
			m.log.Warn("failed to save theme", "error", err)
		}
	}
	m.refreshTranscript()
}

func (m *Model) retry() {
	if m.conn == nil {
		return
	}
	if err := m.conn.Retry(); err != nil {
		m.notice = err.Error()
		return
	}
	m.notice = ""
	m.exhausted = false
	m.attempt = 0
}

// inputEvent maps a key press to a composer edit.
func inputEvent(msg tea.KeyMsg) (composer.InputEvent, bool) {
	switch msg.Type {
	case tea.KeyRunes:
		return composer.InputEvent{Key: composer.KeyRunes, Runes: msg.Runes}, true
	case tea.KeySpace:
		return composer.InputEvent{Key: composer.KeyRunes, Runes: []rune{' '}}, true
	case tea.KeyEnter:
		return composer.InputEvent{Key: composer.KeyEnter}, true
	case tea.KeyBackspace:
		return composer.InputEvent{Key: composer.KeyBackspace}, true
	case tea.KeyDelete:
		return composer.InputEvent{Key: composer.KeyDelete}, true
	case tea.KeyLeft:
		return composer.InputEvent{Key: composer.KeyLeft}, true
	case tea.KeyRight:
		return composer.InputEvent{Key: composer.KeyRight}, true
	case tea.KeyHome, tea.KeyCtrlA:
		return composer.InputEvent{Key: composer.KeyHome}, true
	case tea.KeyEnd, tea.KeyCtrlE:
		return composer.InputEvent{Key: composer.KeyEnd}, true
	case tea.KeyCtrlU:
		return composer.InputEvent{Key: composer.KeyClear}, true
	}
	return composer.InputEvent{}, false
}
