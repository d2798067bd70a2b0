package chat

import "sync"

// Transcript is the append-only list of displayed messages, in arrival order.
// It has no length limit.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
	onAppend func(Message)
}

// NewTranscript returns an empty transcript. onAppend, if not nil, is called
// after every append so a view can scroll to the newest entry.
func NewTranscript(onAppend func(Message)) *Transcript {
	return &Transcript{onAppend: onAppend}
}

// Append adds m to the end of the transcript.
func (t *Transcript) Append(m Message) {
	t.mu.Lock()
	t.messages = append(t.messages, m)
	hook := t.onAppend
	t.mu.Unlock()

	if hook != nil {
		hook(m)
	}
}

// Messages returns a copy of the transcript.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Message(nil), t.messages...)
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}
