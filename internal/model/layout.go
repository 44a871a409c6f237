package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Layout is the persisted set of open chat windows for one user, used to
// restore the popups after the agent restarts. Messages are never stored here.
type Layout struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID    string             `json:"userId" bson:"user_id"`
	Sessions  []LayoutSession    `json:"sessions" bson:"sessions"`
	UpdatedAt time.Time          `json:"updatedAt" bson:"updated_at"`
}

// LayoutSession is the restorable part of a Session.
type LayoutSession struct {
	ConversationID string      `json:"conversationId" bson:"conversation_id"`
	Counterpart    Counterpart `json:"counterpart" bson:"counterpart"`
	WindowState    WindowState `json:"windowState" bson:"window_state"`
}

// LayoutFromSessions captures the open-order window list.
func LayoutFromSessions(userID string, sessions []Session, now time.Time) Layout {
	out := Layout{
		UserID:    userID,
		Sessions:  make([]LayoutSession, 0, len(sessions)),
		UpdatedAt: now,
	}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, LayoutSession{
			ConversationID: s.ConversationID,
			Counterpart:    s.Counterpart,
			WindowState:    s.WindowState,
		})
	}
	return out
}
