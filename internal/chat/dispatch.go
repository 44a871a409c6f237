package chat

import (
	"NiralaChat/internal/event"
	"NiralaChat/internal/model"
	"NiralaChat/internal/notify"
	"NiralaChat/internal/session"

	"go.uber.org/zap"
)

const previewLength = 80

// HandleEvent applies a server event that arrived on conversationID's
// binding. The binding decides which session the event belongs to.
func (o *Orchestrator) HandleEvent(conversationID string, ev event.ServerEvent) {
	switch ev.Type {
	case event.FrameNewMessage:
		o.handleNewMessage(conversationID, ev)
	case event.FrameTypingStart, event.FrameTypingStop:
		if ev.UserID != "" && ev.UserID == o.selfID() {
			return
		}
		o.store.Update(session.SetTyping(conversationID, ev.Type == event.FrameTypingStart))
	case event.FrameMessageReadReceipt:
		if ev.UserID == "" || len(ev.MessageIDs) == 0 {
			o.logger.Warn("malformed read receipt", zap.String("conversation_id", conversationID))
			return
		}
		o.store.Update(session.ApplyReadReceipt(conversationID, ev.MessageIDs, ev.UserID))
	case event.FrameReactionAdded, event.FrameReactionRemoved:
		if ev.MessageID == "" || ev.Emoji == "" || ev.UserID == "" {
			o.logger.Warn("malformed reaction event",
				zap.String("conversation_id", conversationID),
				zap.String("type", ev.Type),
			)
			return
		}
		if ev.Type == event.FrameReactionAdded {
			o.store.Update(session.ApplyReactionAdded(conversationID, ev.MessageID, ev.Emoji, ev.UserID))
		} else {
			o.store.Update(session.ApplyReactionRemoved(conversationID, ev.MessageID, ev.Emoji, ev.UserID))
		}
	default:
		o.logger.Debug("ignoring unknown event",
			zap.String("conversation_id", conversationID),
			zap.String("type", ev.Type),
		)
	}
}

func (o *Orchestrator) handleNewMessage(conversationID string, ev event.ServerEvent) {
	msg, err := ev.DecodeMessage()
	if err != nil || msg.ID == "" {
		o.logger.Warn("malformed new_message event",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return
	}
	msg.ConversationID = conversationID
	selfID := o.selfID()

	var (
		appended    bool
		minimized   bool
		counterpart model.Counterpart
	)
	o.store.Update(func(prev []model.Session) []model.Session {
		for _, s := range prev {
			if s.ConversationID == conversationID {
				appended = !s.HasMessage(msg.ID)
				minimized = s.Minimized()
				counterpart = s.Counterpart
			}
		}
		return session.AppendMessage(msg, selfID)(prev)
	})
	if !appended || msg.SenderID == selfID {
		return
	}

	hidden := o.PageHidden()
	o.gate.Notify(o.ctx, notify.Notification{
		ConversationID: conversationID,
		Title:          counterpart.Name,
		Body:           preview(msg),
	}, hidden, minimized)
	o.gate.AudioCue(hidden)
}

// BindingClosed leaves the session open with its last known state. A later
// OpenChat for the session binds it again.
func (o *Orchestrator) BindingClosed(conversationID string) {
	o.logger.Warn("session lost its transport",
		zap.String("conversation_id", conversationID),
	)
}

func preview(m model.Message) string {
	if m.Content == "" && m.File != nil {
		return "Sent a file: " + m.File.Name
	}
	r := []rune(m.Content)
	if len(r) > previewLength {
		return string(r[:previewLength-1]) + "…"
	}
	return m.Content
}
