package composer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/mentionchat/internal/chat"
	"github.com/Tyrowin/mentionchat/internal/connection"
)

type fakeSender struct {
	connected bool
	err       error
	sent      []string
}

func (f *fakeSender) Connected() bool { return f.connected }

func (f *fakeSender) Send(text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func newTestComposer(policy CaretPolicy) (*Composer, *fakeSender, *chat.Transcript) {
	sender := &fakeSender{connected: true}
	transcript := chat.NewTranscript(nil)
	c := New(sender, transcript, policy)
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return c, sender, transcript
}

func typeText(t *testing.T, c *Composer, s string) {
	t.Helper()
	for _, r := range s {
		require.NoError(t, c.HandleInput(InputEvent{Key: KeyRunes, Runes: []rune{r}}))
	}
}

func press(t *testing.T, c *Composer, k Key) {
	t.Helper()
	require.NoError(t, c.HandleInput(InputEvent{Key: k}))
}

func TestTypingHighlightsMentions(t *testing.T) {
	c, _, _ := newTestComposer(CaretEnd)

	typeText(t, c, "hi @bob")
	assert.Equal(t, "hi @bob", c.Text())
	assert.Equal(t, `hi <span class="mention">@bob</span>`, c.rendered)
	assert.Equal(t, 7, c.Caret())
}

func TestTrailingSpaceIsShownAsNonBreaking(t *testing.T) {
	c, _, _ := newTestComposer(CaretEnd)

	typeText(t, c, "hi @bob ")
	assert.Equal(t, "hi @bob ", c.Text(), "buffer keeps the typed space")
	assert.Equal(t, "hi @bob\u00a0", c.ViewText())
	assert.Equal(t, `hi <span class="mention">@bob</span>`+"\u00a0", c.rendered)
}

func TestCaretEndPolicyJumpsToEnd(t *testing.T) {
	c, _, _ := newTestComposer(CaretEnd)

	typeText(t, c, "@bob hi")
	press(t, c, KeyHome)
	assert.Equal(t, len([]rune("@bob hi")), c.Caret(), "caret moves to the end after re-rendering a mention")
}

func TestCaretEndPolicyWithoutMentions(t *testing.T) {
	c, _, _ := newTestComposer(CaretEnd)

	typeText(t, c, "hello")
	press(t, c, KeyHome)
	typeText(t, c, ">")
	assert.Equal(t, ">hello", c.Text())
	assert.Equal(t, 1, c.Caret())
}

func TestCaretPreservePolicyKeepsOffset(t *testing.T) {
	c, _, _ := newTestComposer(CaretPreserve)

	typeText(t, c, "@bob hi")
	press(t, c, KeyHome)
	press(t, c, KeyRight)
	typeText(t, c, "x")

	assert.Equal(t, "@xbob hi", c.Text())
	assert.Equal(t, 2, c.Caret())
	assert.Equal(t, `<span class="mention">@xbob</span> hi`, c.rendered)
}

func TestEditingKeys(t *testing.T) {
	c, _, _ := newTestComposer(CaretPreserve)

	typeText(t, c, "abcd")
	press(t, c, KeyLeft)
	press(t, c, KeyLeft)
	press(t, c, KeyBackspace)
	assert.Equal(t, "acd", c.Text())
	assert.Equal(t, 1, c.Caret())

	press(t, c, KeyDelete)
	assert.Equal(t, "ad", c.Text())

	press(t, c, KeyEnd)
	press(t, c, KeyDelete)
	assert.Equal(t, "ad", c.Text())
	assert.Equal(t, 2, c.Caret())

	press(t, c, KeyHome)
	press(t, c, KeyBackspace)
	press(t, c, KeyLeft)
	assert.Equal(t, 0, c.Caret())

	press(t, c, KeyClear)
	assert.Equal(t, "", c.Text())
	assert.Equal(t, "", c.rendered)
}

func TestBackspaceRemovesWholeGraphemeCluster(t *testing.T) {
	c, _, _ := newTestComposer(CaretPreserve)

	// "e" followed by a combining acute accent is one cluster of two runes.
	typeText(t, c, "cafe\u0301")
	require.Equal(t, 5, c.Caret())

	press(t, c, KeyLeft)
	assert.Equal(t, 3, c.Caret())
	press(t, c, KeyEnd)
	press(t, c, KeyBackspace)
	assert.Equal(t, "caf", c.Text())
}

func TestInsertFlattensControlCharacters(t *testing.T) {
	c, _, _ := newTestComposer(CaretPreserve)

	require.NoError(t, c.HandleInput(InputEvent{Key: KeyRunes, Runes: []rune("a\nb\x07c\td")}))
	assert.Equal(t, "a bc d", c.Text())
}

func TestEnterSubmitsPlainText(t *testing.T) {
	c, sender, transcript := newTestComposer(CaretEnd)

	typeText(t, c, "  hello @bob how are @alice  ")
	press(t, c, KeyEnter)

	assert.Equal(t, []string{"hello @bob how are @alice"}, sender.sent, "no markup on the wire")
	require.Equal(t, 1, transcript.Len())
	msg := transcript.Messages()[0]
	assert.Equal(t, "hello @bob how are @alice", msg.Text)
	assert.Equal(t, chat.SenderUser, msg.Sender)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), msg.At)

	assert.Equal(t, "", c.Text())
	assert.Equal(t, 0, c.Caret())
}

func TestBlankSubmitDoesNothing(t *testing.T) {
	for _, input := range []string{"", "   ", "\u00a0 "} {
		c, sender, transcript := newTestComposer(CaretEnd)
		c.SetText(input)

		require.NoError(t, c.Submit())
		assert.Empty(t, sender.sent)
		assert.Equal(t, 0, transcript.Len())
	}
}

func TestEnterOnBlankInputClearsBuffer(t *testing.T) {
	c, sender, transcript := newTestComposer(CaretEnd)

	typeText(t, c, "   ")
	press(t, c, KeyEnter)
	assert.Equal(t, "", c.Text())
	assert.Empty(t, sender.sent)
	assert.Equal(t, 0, transcript.Len())
}

func TestSubmitWhileDisconnectedKeepsBuffer(t *testing.T) {
	c, sender, transcript := newTestComposer(CaretEnd)
	sender.connected = false

	typeText(t, c, "hello")
	err := c.HandleInput(InputEvent{Key: KeyEnter})

	require.ErrorIs(t, err, connection.ErrNotConnected)
	assert.Equal(t, "hello", c.Text())
	assert.Equal(t, 0, transcript.Len())
}

func TestSubmitSendFailure(t *testing.T) {
	c, sender, transcript := newTestComposer(CaretEnd)
	sender.err = errors.New("broken pipe")

	c.SetText("hello")
	err := c.Submit()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
	assert.Equal(t, "hello", c.Text())
	assert.Equal(t, 0, transcript.Len())
}

func TestSubmitWithoutSender(t *testing.T) {
	c := New(nil, nil, CaretEnd)
	c.SetText("hi")
	assert.ErrorIs(t, c.Submit(), connection.ErrNotConnected)
}

func TestParseCaretPolicy(t *testing.T) {
	p, err := ParseCaretPolicy("Preserve")
	require.NoError(t, err)
	assert.Equal(t, CaretPreserve, p)

	p, err = ParseCaretPolicy("")
	require.NoError(t, err)
	assert.Equal(t, CaretEnd, p)

	_, err = ParseCaretPolicy("middle")
	assert.Error(t, err)
}
