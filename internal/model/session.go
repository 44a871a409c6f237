package model

import "time"

// WindowState is the visual state of an open chat popup.
type WindowState string

const (
	WindowMinimized WindowState = "minimized"
	WindowMaximized WindowState = "maximized"
)

// Counterpart is the other participant of a conversation. It is fixed for
// the lifetime of a session.
type Counterpart struct {
	ID          string            `json:"id" bson:"id"`
	Name        string            `json:"name" bson:"name"`
	Avatar      string            `json:"avatar" bson:"avatar"`
	Affiliation map[string]string `json:"affiliation,omitempty" bson:"affiliation,omitempty"`
}

// Session is one open conversation window and its state.
type Session struct {
	ConversationID        string      `json:"conversationId"`
	Counterpart           Counterpart `json:"counterpart"`
	WindowState           WindowState `json:"windowState"`
	UnreadCount           int         `json:"unreadCount"`
	Messages              []Message   `json:"messages"`
	Loading               bool        `json:"loading"`
	TypingFromCounterpart bool        `json:"typingFromCounterpart"`
	OpenedAt              time.Time   `json:"openedAt"`
}

// NewSession creates the loading, maximized session inserted by OpenChat.
func NewSession(conversationID string, counterpart Counterpart, now time.Time) Session {
	return Session{
		ConversationID: conversationID,
		Counterpart:    counterpart,
		WindowState:    WindowMaximized,
		Messages:       []Message{},
		Loading:        true,
		OpenedAt:       now,
	}
}

func (s Session) Minimized() bool {
	return s.WindowState == WindowMinimized
}

// HasMessage reports whether a message with id is already in the session.
func (s Session) HasMessage(id string) bool {
	for _, m := range s.Messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Clone deep-copies the session, including its messages.
func (s Session) Clone() Session {
	out := s
	if s.Counterpart.Affiliation != nil {
		out.Counterpart.Affiliation = make(map[string]string, len(s.Counterpart.Affiliation))
		for k, v := range s.Counterpart.Affiliation {
			out.Counterpart.Affiliation[k] = v
		}
	}
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m.Clone()
	}
	return out
}
