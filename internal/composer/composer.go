// Package composer implements the message input line: a plain-text buffer
// with a caret, live mention highlighting, and submission to the connection.
package composer

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"

	"github.com/Tyrowin/mentionchat/internal/chat"
	"github.com/Tyrowin/mentionchat/internal/connection"
	"github.com/Tyrowin/mentionchat/internal/mention"
)

const nbsp = '\u00a0'

// Key identifies an editing action.
type Key int

const (
	KeyRunes Key = iota
	KeyEnter
	KeyBackspace
	KeyDelete
	KeyLeft
	KeyRight
	KeyHome
	KeyEnd
	KeyClear
)

// InputEvent is one keystroke or input mutation. Runes is used by KeyRunes.
type InputEvent struct {
	Key   Key
	Runes []rune
}

// CaretPolicy decides where the caret goes after the highlighted view is
// rebuilt.
type CaretPolicy int

const (
	// CaretEnd moves the caret to the end of the text whenever the view
	// contains a mention.
	CaretEnd CaretPolicy = iota
	// CaretPreserve keeps the caret at its offset in the plain text.
	CaretPreserve
)

// ParseCaretPolicy maps "end" or "preserve" to a CaretPolicy.
func ParseCaretPolicy(s string) (CaretPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "end":
		return CaretEnd, nil
	case "preserve":
		return CaretPreserve, nil
	default:
		return CaretEnd, fmt.Errorf("unknown caret policy %q", s)
	}
}

// Sender transmits finalized text. *connection.Manager satisfies it.
type Sender interface {
	Connected() bool
	Send(text string) error
}

// Display receives messages rendered locally. *chat.Transcript satisfies it.
type Display interface {
	Append(chat.Message)
}

// Composer owns the input buffer. It is not safe for concurrent use; the UI
// event loop is its only caller.
type Composer struct {
	buf      []rune
	caret    int
	rendered string
	policy   CaretPolicy

	sender  Sender
	display Display
	now     func() time.Time
}

// New returns an empty Composer.
func New(sender Sender, display Display, policy CaretPolicy) *Composer {
	return &Composer{
		policy:  policy,
		sender:  sender,
		display: display,
		now:     time.Now,
	}
}

// Text returns the plain buffer contents.
func (c *Composer) Text() string {
	return string(c.buf)
}

// Caret returns the caret position as a rune offset into Text.
func (c *Composer) Caret() int {
	return c.caret
}

// ViewText returns the text as displayed: a trailing space is shown as a
// non-breaking space so it is not collapsed.
func (c *Composer) ViewText() string {
	text := string(c.buf)
	if strings.HasSuffix(text, " ") {
		return text[:len(text)-1] + string(nbsp)
	}
	return text
}

// SetText replaces the buffer and puts the caret at the end.
func (c *Composer) SetText(text string) {
	c.buf = []rune(sanitize(text))
	c.caret = len(c.buf)
	c.refresh()
}

// Reset clears the buffer.
func (c *Composer) Reset() {
	c.buf = c.buf[:0]
	c.caret = 0
	c.rendered = ""
}

// HandleInput applies one input event. Enter submits and clears the buffer
// without re-rendering; every other event edits the buffer and rebuilds the
// highlighted view.
func (c *Composer) HandleInput(ev InputEvent) error {
	if ev.Key == KeyEnter {
		if err := c.Submit(); err != nil {
			return err
		}
		c.Reset()
		return nil
	}

	switch ev.Key {
	case KeyRunes:
		c.insert(ev.Runes)
	case KeyBackspace:
		c.backspace()
	case KeyDelete:
		c.deleteForward()
	case KeyLeft:
		c.caret -= c.clusterBefore()
	case KeyRight:
		c.caret += c.clusterAfter()
	case KeyHome:
		c.caret = 0
	case KeyEnd:
		c.caret = len(c.buf)
	case KeyClear:
		c.Reset()
	}

	c.refresh()
	return nil
}

// Submit sends the trimmed buffer and shows it locally as a user message.
// Blank input is ignored. The buffer is kept if the message could not be
// sent.
func (c *Composer) Submit() error {
	text := strings.TrimSpace(string(c.buf))
	if text == "" {
		return nil
	}
	if c.sender == nil || !c.sender.Connected() {
		return connection.ErrNotConnected
	}
	if err := c.sender.Send(text); err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	if c.display != nil {
		c.display.Append(chat.Message{Text: text, Sender: chat.SenderUser, At: c.now()})
	}
	c.Reset()
	return nil
}

// refresh rebuilds the highlighted view and applies the caret policy when
// the view differs from the raw text.
func (c *Composer) refresh() {
	view := c.ViewText()
	formatted := mention.Highlight(view)
	c.rendered = formatted

	if formatted != view && c.policy == CaretEnd {
		c.caret = len(c.buf)
	}
}

func (c *Composer) insert(rs []rune) {
	clean := []rune(sanitize(string(rs)))
	if len(clean) == 0 {
		return
	}
	buf := make([]rune, 0, len(c.buf)+len(clean))
	buf = append(buf, c.buf[:c.caret]...)
	buf = append(buf, clean...)
	buf = append(buf, c.buf[c.caret:]...)
	c.buf = buf
	c.caret += len(clean)
}

func (c *Composer) backspace() {
	n := c.clusterBefore()
	if n == 0 {
		return
	}
	c.buf = append(c.buf[:c.caret-n], c.buf[c.caret:]...)
	c.caret -= n
}

func (c *Composer) deleteForward() {
	n := c.clusterAfter()
	if n == 0 {
		return
	}
	c.buf = append(c.buf[:c.caret], c.buf[c.caret+n:]...)
}

// clusterBefore returns the rune length of the grapheme cluster that ends at
// the caret.
func (c *Composer) clusterBefore() int {
	if c.caret == 0 {
		return 0
	}
	last := 0
	g := uniseg.NewGraphemes(string(c.buf[:c.caret]))
	for g.Next() {
		last = len(g.Runes())
	}
	return last
}

// clusterAfter returns the rune length of the grapheme cluster that starts
// at the caret.
func (c *Composer) clusterAfter() int {
	if c.caret >= len(c.buf) {
		return 0
	}
	cluster, _, _, _ := uniseg.FirstGraphemeClusterInString(string(c.buf[c.caret:]), -1)
	return utf8.RuneCountInString(cluster)
}

// sanitize flattens line breaks and tabs to spaces and drops other control
// characters; the composer is a single line.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, s)
}
