// Package chat defines the messages exchanged by the client and the wire
// format they travel in.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sender tags who produced a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// ErrMalformedPayload is returned for inbound frames that are not a JSON
// record with a string "msg" field.
var ErrMalformedPayload = errors.New("malformed payload")

// Message is a displayed chat line. Text is always plain text; mention markup
// is added only when the message is rendered.
type Message struct {
	Text   string
	Sender Sender
	At     time.Time
}

// Envelope is the JSON record carried by inbound frames.
type Envelope struct {
	Msg    string `json:"msg"`
	Sender string `json:"sender,omitempty"`
}

// DecodeInbound parses an inbound frame into a bot message.
func DecodeInbound(payload []byte) (Message, error) {
	var raw struct {
		Msg *string `json:"msg"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if raw.Msg == nil {
		return Message{}, fmt.Errorf("%w: missing msg field", ErrMalformedPayload)
	}
	return Message{Text: *raw.Msg, Sender: SenderBot, At: time.Now()}, nil
}

// EncodeInbound builds the frame a bot sends to a client.
func EncodeInbound(text string) ([]byte, error) {
	return json.Marshal(Envelope{Msg: text, Sender: string(SenderBot)})
}

// EncodeOutbound builds the frame a client sends: the plain text, verbatim.
func EncodeOutbound(text string) []byte {
	return []byte(text)
}
