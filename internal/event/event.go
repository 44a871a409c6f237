package event

import (
	"NiralaChat/internal/model"
	"encoding/json"
)

// Control frames - client to server
const (
	FrameSubscribe = "subscribe"
)

// Shared between both directions
const (
	FrameTypingStart     = "typing_start"
	FrameTypingStop      = "typing_stop"
	FrameReactionAdded   = "reaction_added"
	FrameReactionRemoved = "reaction_removed"
)

// Server events - server to client
const (
	FrameNewMessage         = "new_message"
	FrameMessageReadReceipt = "message_read_receipt"
)

// ControlFrame is sent by the client over a conversation's connection.
type ControlFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId,omitempty"`
	Emoji          string `json:"emoji,omitempty"`
}

// ServerEvent is any frame received from the server. Fields are populated
// according to Type.
type ServerEvent struct {
	Type       string          `json:"type"`
	Message    json.RawMessage `json:"message,omitempty"`
	MessageIDs []string        `json:"messageIds,omitempty"`
	MessageID  string          `json:"messageId,omitempty"`
	Emoji      string          `json:"emoji,omitempty"`
	UserID     string          `json:"userId,omitempty"`
}

// DecodeMessage decodes the message payload of a new_message event.
func (e ServerEvent) DecodeMessage() (model.Message, error) {
	var msg model.Message
	if err := json.Unmarshal(e.Message, &msg); err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

func Subscribe(conversationID string) ControlFrame {
	return ControlFrame{Type: FrameSubscribe, ConversationID: conversationID}
}

func Typing(conversationID string, typing bool) ControlFrame {
	t := FrameTypingStop
	if typing {
		t = FrameTypingStart
	}
	return ControlFrame{Type: t, ConversationID: conversationID}
}

func Reaction(conversationID, messageID, emoji string, add bool) ControlFrame {
	t := FrameReactionRemoved
	if add {
		t = FrameReactionAdded
	}
	return ControlFrame{Type: t, ConversationID: conversationID, MessageID: messageID, Emoji: emoji}
}
