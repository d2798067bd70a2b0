// Package tui is the terminal front end: a scrolling transcript, the
// composer line, and a status bar showing the connection state.
package tui

import (
	"log/slog"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Tyrowin/mentionchat/internal/chat"
	"github.com/Tyrowin/mentionchat/internal/composer"
	"github.com/Tyrowin/mentionchat/internal/connection"
	"github.com/Tyrowin/mentionchat/internal/theme"
)

// Connection is the part of *connection.Manager the UI uses.
type Connection interface {
	composer.Sender
	Incoming() <-chan chat.Message
	StateChanges() <-chan connection.StateEvent
	State() connection.State
	Retries() int
	Exhausted() bool
	Endpoint() string
	Retry() error
}

// Preferences stores the theme choice. *state.State satisfies it.
type Preferences interface {
	SetTheme(theme.Name) error
}

// Notifier is told about every inbound message. *notify.Notifier satisfies it.
type Notifier interface {
	Message(chat.Message) bool
}

// Options configures a Model.
type Options struct {
	Conn        Connection
	Prefs       Preferences
	Notifier    Notifier
	Theme       theme.Name
	Nickname    string
	CaretPolicy composer.CaretPolicy
	MaxRetries  int
	Logger      *slog.Logger
}

// Model is the bubbletea model for the chat client.
type Model struct {
	conn     Connection
	prefs    Preferences
	notifier Notifier
	log      *slog.Logger

	transcript *chat.Transcript
	composer   *composer.Composer
	viewport   viewport.Model

	theme      theme.Theme
	nickname   string
	maxRetries int

	state     connection.State
	attempt   int
	exhausted bool
	lastErr   error
	notice    string

	width  int
	height int
	ready  bool
}

// IncomingMsg carries a bot message from the connection.
type IncomingMsg struct {
	Msg chat.Message
}

// StateMsg carries a connection state transition.
type StateMsg struct {
	Event connection.StateEvent
}

// ConnectionClosedMsg is sent once the connection manager has stopped.
type ConnectionClosedMsg struct{}

// NewModel creates the UI model.
func NewModel(opts Options) Model {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	transcript := chat.NewTranscript(nil)

	m := Model{
		conn:       opts.Conn,
		prefs:      opts.Prefs,
		notifier:   opts.Notifier,
		log:        log.With("component", "tui"),
		transcript: transcript,
		composer:   composer.New(opts.Conn, transcript, opts.CaretPolicy),
		viewport:   viewport.New(80, 20),
		theme:      theme.For(opts.Theme),
		nickname:   opts.Nickname,
		maxRetries: opts.MaxRetries,
	}
	if opts.Conn != nil {
		m.state = opts.Conn.State()
		m.attempt = opts.Conn.Retries()
		m.exhausted = opts.Conn.Exhausted()
	}
	return m
}

// Init starts listening to the connection.
func (m Model) Init() tea.Cmd {
	if m.conn == nil {
		return nil
	}
	return listenForConnection(m.conn)
}

// Transcript exposes the displayed messages.
func (m Model) Transcript() *chat.Transcript {
	return m.transcript
}

// Composer exposes the input line.
func (m Model) Composer() *composer.Composer {
	return m.composer
}

// ThemeName returns the active palette.
func (m Model) ThemeName() theme.Name {
	return m.theme.Name
}

// notify raises the desktop notification off the update loop.
func notify(n Notifier, msg chat.Message) tea.Cmd {
	return func() tea.Msg {
		n.Message(msg)
		return nil
	}
}

// listenForConnection waits for the next inbound message or state change.
// It is re-issued after every message it produces.
func listenForConnection(conn Connection) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg, ok := <-conn.Incoming():
			if !ok {
				return ConnectionClosedMsg{}
			}
			return IncomingMsg{Msg: msg}
		case ev, ok := <-conn.StateChanges():
			if !ok {
				return ConnectionClosedMsg{}
			}
			return StateMsg{Event: ev}
		}
	}
}
