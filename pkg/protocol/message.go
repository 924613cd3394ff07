// Package protocol defines the JSON frames exchanged between chat clients and the gateway.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedFrame is returned when an inbound payload is neither a history
// snapshot nor a single message.
var ErrMalformedFrame = errors.New("malformed frame")

// historyKey marks a snapshot frame.
const historyKey = "history"

// Message represents a chat message
type Message struct {
	SenderID   int64
	ReceiverID int64
	Content    string
}

// wireMessage is the on-the-wire shape of a Message.
// Pointers distinguish a missing field from a zero value.
type wireMessage struct {
	SenderID   *int64  `json:"sender_id,omitempty"`
	ReceiverID *int64  `json:"receiver_id,omitempty"`
	Content    *string `json:"content,omitempty"`

	// camelCase aliases, accepted on decode only
	SenderIDAlt   *int64 `json:"senderId,omitempty"`
	ReceiverIDAlt *int64 `json:"receiverId,omitempty"`
}

// Encode encodes the message into the outbound wire shape:
// {"sender_id": ..., "receiver_id": ..., "content": ...}.
func (m *Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m.toWire())
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// Decode decodes a single wire message into m.
func (m *Message) Decode(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("failed to decode message: %w: %w", ErrMalformedFrame, err)
	}
	return m.fromWire(&w)
}

// MarshalJSON implements json.Marshaler using the wire field names.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.toWire())
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	return m.Decode(data)
}

func (m *Message) toWire() *wireMessage {
	sender, receiver, content := m.SenderID, m.ReceiverID, m.Content
	return &wireMessage{
		SenderID:   &sender,
		ReceiverID: &receiver,
		Content:    &content,
	}
}

func (m *Message) fromWire(w *wireMessage) error {
	sender := w.SenderID
	if sender == nil {
		sender = w.SenderIDAlt
	}
	receiver := w.ReceiverID
	if receiver == nil {
		receiver = w.ReceiverIDAlt
	}
	if sender == nil || receiver == nil || w.Content == nil {
		return fmt.Errorf("%w: message requires sender_id, receiver_id and content", ErrMalformedFrame)
	}
	m.SenderID = *sender
	m.ReceiverID = *receiver
	m.Content = *w.Content
	return nil
}

// Frame is one decoded inbound payload.
// When Snapshot is true, History holds the full message history;
// otherwise Message holds a single incremental message.
type Frame struct {
	Snapshot bool
	History  []Message
	Message  Message
}

// DecodeFrame classifies an inbound payload as a snapshot or an incremental
// message. Anything else yields an error wrapping ErrMalformedFrame.
func DecodeFrame(data []byte) (Frame, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return Frame{}, fmt.Errorf("%w: payload is not a JSON object", ErrMalformedFrame)
	}

	raw, ok := fields[historyKey]
	if !ok {
		var msg Message
		if err := msg.Decode(data); err != nil {
			return Frame{}, err
		}
		return Frame{Message: msg}, nil
	}

	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return Frame{}, fmt.Errorf("%w: history is null", ErrMalformedFrame)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return Frame{}, fmt.Errorf("%w: history is not an array", ErrMalformedFrame)
	}

	history := make([]Message, 0, len(items))
	for i, item := range items {
		var msg Message
		if err := msg.Decode(item); err != nil {
			return Frame{}, fmt.Errorf("history[%d]: %w", i, err)
		}
		history = append(history, msg)
	}
	return Frame{Snapshot: true, History: history}, nil
}

// EncodeHistory encodes a snapshot frame: {"history": [...]}.
func EncodeHistory(history []Message) ([]byte, error) {
	if history == nil {
		history = []Message{}
	}
	data, err := json.Marshal(map[string][]Message{historyKey: history})
	if err != nil {
		return nil, fmt.Errorf("failed to encode history: %w", err)
	}
	return data, nil
}
