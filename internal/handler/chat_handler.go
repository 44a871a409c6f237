package handler

import (
	"NiralaChat/internal/model"
	"NiralaChat/internal/popup"
	"NiralaChat/internal/remote"
	"NiralaChat/internal/session"
	"NiralaChat/internal/window"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ChatService is the chat orchestrator as seen by the control API.
type ChatService interface {
	popup.Controller
	OpenChat(ctx context.Context, conversationID string, counterpart model.Counterpart) error
	Sessions() []model.Session
	TotalUnreadCount() int
	SetViewport(widthPx int) window.Viewport
	Viewport() window.Viewport
	SetPageHidden(hidden bool)
	SignOut()
}

// ChatHandler is the call-in surface portal pages use to drive the chat
// popups of the local agent.
type ChatHandler interface {
	GetSessions(c *gin.Context)
	OpenChat(c *gin.Context)
	CloseChat(c *gin.Context)
	MinimizeChat(c *gin.Context)
	MaximizeChat(c *gin.Context)
	MarkAsRead(c *gin.Context)
	SendMessage(c *gin.Context)
	SendFile(c *gin.Context)
	StartTyping(c *gin.Context)
	StopTyping(c *gin.Context)
	AddReaction(c *gin.Context)
	RemoveReaction(c *gin.Context)
	SetViewport(c *gin.Context)
	SetVisibility(c *gin.Context)
	SignOut(c *gin.Context)
}

type chatHandler struct {
	chat   ChatService
	popups *popup.Manager
	logger *zap.Logger
}

func NewChatHandler(chat ChatService, popups *popup.Manager, logger *zap.Logger) ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &chatHandler{
		chat:   chat,
		popups: popups,
		logger: logger.Named("handler"),
	}
}

type openChatRequest struct {
	Counterpart model.Counterpart `json:"counterpart"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type viewportRequest struct {
	Width int `json:"width" binding:"required,gt=0"`
}

type visibilityRequest struct {
	Hidden *bool `json:"hidden" binding:"required"`
}

type sessionsResponse struct {
	Viewport    window.Viewport `json:"viewport"`
	TotalUnread int             `json:"totalUnread"`
	Slots       []popup.Slot    `json:"slots"`
}

func (h *chatHandler) GetSessions(c *gin.Context) {
	vp := h.chat.Viewport()
	respond(c, http.StatusOK, sessionsResponse{
		Viewport:    vp,
		TotalUnread: h.chat.TotalUnreadCount(),
		Slots:       h.popups.Visible(h.chat.Sessions(), vp),
	}, "Sessions retrieved successfully")
}

func (h *chatHandler) OpenChat(c *gin.Context) {
	conversationID := c.Param("conversationId")

	var req openChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, nil, "Invalid request body")
		return
	}

	if err := h.chat.OpenChat(c.Request.Context(), conversationID, req.Counterpart); err != nil {
		h.logger.Warn("open chat failed", zap.String("conversation_id", conversationID), zap.Error(err))
		respondError(c, err)
		return
	}

	s, _ := h.chat.Session(conversationID)
	respond(c, http.StatusOK, s, "Chat opened")
}

func (h *chatHandler) CloseChat(c *gin.Context) {
	p, ok := h.popup(c)
	if !ok {
		return
	}
	p.Close()
	respond(c, http.StatusOK, nil, "Chat closed")
}

func (h *chatHandler) MinimizeChat(c *gin.Context) {
	p, ok := h.popup(c)
	if !ok {
		return
	}
	p.Minimize()
	respond(c, http.StatusOK, nil, "Chat minimized")
}

func (h *chatHandler) MaximizeChat(c *gin.Context) {
	p, ok := h.popup(c)
	if !ok {
		return
	}
	p.Maximize()
	respond(c, http.StatusOK, nil, "Chat maximized")
}

func (h *chatHandler) MarkAsRead(c *gin.Context) {
	p, ok := h.popup(c)
	if !ok {
		return
	}
	h.chat.MarkAsRead(p.ConversationID())
	respond(c, http.StatusOK, nil, "Conversation marked as read")
}

func (h *chatHandler) SendMessage(c *gin.Context) {
	p, ok := h.popup(c)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, nil, "Invalid request body")
		return
	}

	p.Input(req.Text)
	if err := p.Submit(c.Request.Context()); err != nil {
		h.logger.Warn("send message failed", zap.String("conversation_id", p.ConversationID()), zap.Error(err))
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, p.View(), "Message sent")
}

func (h *chatHandler) SendFile(c *gin.Context) {
	p, ok := h.popup(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		respond(c, http.StatusBadRequest, nil, "A file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		respond(c, http.StatusBadRequest, nil, "Unable to read the uploaded file")
		return
	}
	defer f.Close()

	upload := remote.FileUpload{
		Name:     fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Size:     fh.Size,
		Body:     f,
	}
	// The body is closed when this request returns, so the file is never
	// left staged on the popup.
	if err := p.SendFile(c.Request.Context(), upload); err != nil {
		h.logger.Warn("send file failed",
			zap.String("conversation_id", p.ConversationID()),
			zap.String("file", fh.Filename),
			zap.Error(err),
		)
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, p.View(), "File sent")
}

func (h *chatHandler) StartTyping(c *gin.Context) {
	p, ok := h.popup(c)
	if !ok {
		return
	}
	h.chat.StartTyping(p.ConversationID())
	respond(c, http.StatusOK, nil, "Typing started")
}

func (h *chatHandler) StopTyping(c *gin.Context) {
	p, ok := h.popup(c)
	if !ok {
		return
	}
	h.chat.StopTyping(p.ConversationID())
	respond(c, http.StatusOK, nil, "Typing stopped")
}

func (h *chatHandler) AddReaction(c *gin.Context) {
	h.react(c, true)
}

func (h *chatHandler) RemoveReaction(c *gin.Context) {
	h.react(c, false)
}

func (h *chatHandler) react(c *gin.Context, add bool) {
	conversationID := c.Param("conversationId")
	messageID := c.Param("messageId")
	emoji := c.Param("emoji")

	var err error
	if add {
		err = h.chat.AddReaction(c.Request.Context(), conversationID, messageID, emoji)
	} else {
		err = h.chat.RemoveReaction(c.Request.Context(), conversationID, messageID, emoji)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, nil, "Reaction sent")
}

func (h *chatHandler) SetViewport(c *gin.Context) {
	var req viewportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, nil, "width must be a positive number of pixels")
		return
	}
	vp := h.chat.SetViewport(req.Width)
	respond(c, http.StatusOK, gin.H{"viewport": vp}, "Viewport updated")
}

func (h *chatHandler) SetVisibility(c *gin.Context) {
	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, nil, "hidden is required")
		return
	}
	h.chat.SetPageHidden(*req.Hidden)
	respond(c, http.StatusOK, gin.H{"hidden": *req.Hidden}, "Visibility updated")
}

func (h *chatHandler) SignOut(c *gin.Context) {
	h.chat.SignOut()
	respond(c, http.StatusOK, nil, "Signed out")
}

// popup resolves the conversation in the path to its popup, answering 404
// when no such session is open.
func (h *chatHandler) popup(c *gin.Context) (*popup.Popup, bool) {
	p, ok := h.popups.Popup(c.Param("conversationId"))
	if !ok {
		respondError(c, session.ErrNotFound)
		return nil, false
	}
	return p, true
}
