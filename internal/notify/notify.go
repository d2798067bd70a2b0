// Package notify raises desktop notifications for inbound messages that
// mention the local user.
package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"

	"github.com/Tyrowin/mentionchat/internal/chat"
	"github.com/Tyrowin/mentionchat/internal/mention"
)

const title = "mentionchat"

// Notifier decides whether a message deserves a notification and sends it.
type Notifier struct {
	nick    string
	enabled bool
	send    func(title, body string) error
	log     *slog.Logger
}

// New returns a Notifier for nick. A disabled Notifier or an empty nick never
// notifies.
func New(nick string, enabled bool, log *slog.Logger) *Notifier {
	return &Notifier{
		nick:    nick,
		enabled: enabled,
		send: func(title, body string) error {
			return beeep.Notify(title, body, "")
		},
		log: log,
	}
}

// Message notifies about msg if it is a bot message that mentions the nick.
// It reports whether a notification was sent.
func (n *Notifier) Message(msg chat.Message) bool {
	if n == nil || !n.enabled || n.nick == "" {
		return false
	}
	if msg.Sender != chat.SenderBot || !mention.Mentions(msg.Text, n.nick) {
		return false
	}
	if err := n.send(title, msg.Text); err != nil {
		n.log.Warn("desktop notification failed", "error", err)
		return false
	}
	return true
}
