package session

import (
	"NiralaChat/internal/model"
)

// TotalUnread sums the unread counts of all sessions.
func TotalUnread(list []model.Session) int {
	total := 0
	for _, s := range list {
		total += s.UnreadCount
	}
	return total
}

// patch returns a copy of list with fn applied to the session matching id.
// Other entries are carried over untouched.
func patch(list []model.Session, conversationID string, fn func(model.Session) model.Session) []model.Session {
	out := make([]model.Session, len(list))
	for i, s := range list {
		if s.ConversationID == conversationID {
			s = fn(s)
		}
		out[i] = s
	}
	return out
}

// patchMessages applies fn to every message of the matching session.
func patchMessages(conversationID string, fn func(model.Message) model.Message) Mutation {
	return func(prev []model.Session) []model.Session {
		return patch(prev, conversationID, func(s model.Session) model.Session {
			msgs := make([]model.Message, len(s.Messages))
			for i, m := range s.Messages {
				msgs[i] = fn(m)
			}
			s.Messages = msgs
			return s
		})
	}
}

// Insert appends sess at the end of the open order unless a session with the
// same conversation id is already open.
func Insert(sess model.Session) Mutation {
	return func(prev []model.Session) []model.Session {
		if indexOf(prev, sess.ConversationID) >= 0 {
			return prev
		}
		out := make([]model.Session, 0, len(prev)+1)
		out = append(out, prev...)
		return append(out, sess)
	}
}

// Remove drops the listed sessions.
func Remove(conversationIDs ...string) Mutation {
	drop := make(map[string]struct{}, len(conversationIDs))
	for _, id := range conversationIDs {
		drop[id] = struct{}{}
	}
	return func(prev []model.Session) []model.Session {
		out := make([]model.Session, 0, len(prev))
		for _, s := range prev {
			if _, ok := drop[s.ConversationID]; !ok {
				out = append(out, s)
			}
		}
		return out
	}
}

// Clear drops every session.
func Clear() Mutation {
	return func([]model.Session) []model.Session {
		return []model.Session{}
	}
}

func SetWindowState(conversationID string, state model.WindowState) Mutation {
	return func(prev []model.Session) []model.Session {
		return patch(prev, conversationID, func(s model.Session) model.Session {
			s.WindowState = state
			if state == model.WindowMaximized {
				s.UnreadCount = 0
			}
			return s
		})
	}
}

func ResetUnread(conversationID string) Mutation {
	return func(prev []model.Session) []model.Session {
		return patch(prev, conversationID, func(s model.Session) model.Session {
			s.UnreadCount = 0
			return s
		})
	}
}

func SetLoading(conversationID string, loading bool) Mutation {
	return func(prev []model.Session) []model.Session {
		return patch(prev, conversationID, func(s model.Session) model.Session {
			s.Loading = loading
			return s
		})
	}
}

// MergeHistory puts the fetched history first, keeps any message that
// arrived live while the fetch was in flight, and clears the loading flag.
func MergeHistory(conversationID string, history []model.Message) Mutation {
	return func(prev []model.Session) []model.Session {
		return patch(prev, conversationID, func(s model.Session) model.Session {
			seen := make(map[string]struct{}, len(history)+len(s.Messages))
			merged := make([]model.Message, 0, len(history)+len(s.Messages))
			for _, m := range append(append([]model.Message(nil), history...), s.Messages...) {
				if _, dup := seen[m.ID]; dup {
					continue
				}
				seen[m.ID] = struct{}{}
				merged = append(merged, m.Clone())
			}
			s.Messages = merged
			s.Loading = false
			return s
		})
	}
}

// AppendMessage adds msg to the end of its session. A message whose id is
// already present is ignored. Messages from anyone but selfID increment the
// unread count while the session is minimized.
func AppendMessage(msg model.Message, selfID string) Mutation {
	return func(prev []model.Session) []model.Session {
		return patch(prev, msg.ConversationID, func(s model.Session) model.Session {
			if s.HasMessage(msg.ID) {
				return s
			}
			msgs := make([]model.Message, 0, len(s.Messages)+1)
			msgs = append(msgs, s.Messages...)
			s.Messages = append(msgs, msg.Clone())
			if s.Minimized() && msg.SenderID != selfID {
				s.UnreadCount++
			}
			return s
		})
	}
}

func SetTyping(conversationID string, typing bool) Mutation {
	return func(prev []model.Session) []model.Session {
		return patch(prev, conversationID, func(s model.Session) model.Session {
			s.TypingFromCounterpart = typing
			return s
		})
	}
}

// ApplyReadReceipt unions userID into ReadBy of every named message.
func ApplyReadReceipt(conversationID string, messageIDs []string, userID string) Mutation {
	named := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		named[id] = struct{}{}
	}
	return patchMessages(conversationID, func(m model.Message) model.Message {
		if _, ok := named[m.ID]; !ok {
			return m
		}
		return m.MarkReadBy(userID)
	})
}

func ApplyReactionAdded(conversationID, messageID, emoji, userID string) Mutation {
	return patchMessages(conversationID, func(m model.Message) model.Message {
		if m.ID != messageID {
			return m
		}
		return m.WithReaction(emoji, userID)
	})
}

func ApplyReactionRemoved(conversationID, messageID, emoji, userID string) Mutation {
	return patchMessages(conversationID, func(m model.Message) model.Message {
		if m.ID != messageID {
			return m
		}
		return m.WithoutReaction(emoji, userID)
	})
}
