package model

import (
	"time"
)

// FileRef points at an attachment stored by the remote message store.
type FileRef struct {
	URL      string `json:"url" bson:"url"`
	Name     string `json:"name" bson:"name"`
	MimeType string `json:"mimeType" bson:"mime_type"`
}

// Message is one chat message as confirmed by the remote message store.
// ID, ConversationID, SenderID and CreatedAt never change once created.
type Message struct {
	ID             string              `json:"id"`
	ConversationID string              `json:"conversationId"`
	SenderID       string              `json:"senderId"`
	CreatedAt      time.Time           `json:"createdAt"`
	Content        string              `json:"content,omitempty"`
	File           *FileRef            `json:"fileRef,omitempty"`
	ReadBy         []string            `json:"readBy"`
	Reactions      map[string][]string `json:"reactions"`
}

// HasPayload reports whether the message carries text or an attachment.
func (m Message) HasPayload() bool {
	return m.Content != "" || m.File != nil
}

// IsReadBy reports whether userID acknowledged the message.
func (m Message) IsReadBy(userID string) bool {
	return containsString(m.ReadBy, userID)
}

// HasReacted reports whether userID applied emoji to the message.
func (m Message) HasReacted(emoji, userID string) bool {
	return containsString(m.Reactions[emoji], userID)
}

// Clone returns a deep copy so callers never share slices or maps with the store.
func (m Message) Clone() Message {
	out := m
	if m.File != nil {
		f := *m.File
		out.File = &f
	}
	out.ReadBy = append([]string(nil), m.ReadBy...)
	if m.Reactions != nil {
		out.Reactions = make(map[string][]string, len(m.Reactions))
		for emoji, users := range m.Reactions {
			out.Reactions[emoji] = append([]string(nil), users...)
		}
	}
	return out
}

// MarkReadBy returns the message with userID unioned into ReadBy.
func (m Message) MarkReadBy(userID string) Message {
	if userID == "" || m.IsReadBy(userID) {
		return m
	}
	m.ReadBy = append(append([]string(nil), m.ReadBy...), userID)
	return m
}

// WithReaction returns the message with userID added to emoji's user set.
// Adding a user that already reacted leaves the set unchanged.
func (m Message) WithReaction(emoji, userID string) Message {
	if emoji == "" || userID == "" || m.HasReacted(emoji, userID) {
		return m
	}
	m = m.Clone()
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	m.Reactions[emoji] = append(m.Reactions[emoji], userID)
	return m
}

// WithoutReaction returns the message with userID removed from emoji's user
// set. The emoji entry is dropped once its set is empty.
func (m Message) WithoutReaction(emoji, userID string) Message {
	if !m.HasReacted(emoji, userID) {
		return m
	}
	m = m.Clone()
	users := make([]string, 0, len(m.Reactions[emoji]))
	for _, u := range m.Reactions[emoji] {
		if u != userID {
			users = append(users, u)
		}
	}
	if len(users) == 0 {
		delete(m.Reactions, emoji)
	} else {
		m.Reactions[emoji] = users
	}
	return m
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
