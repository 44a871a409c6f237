package approuters

import (
	"NiralaChat/internal/configuration"

	"github.com/gin-gonic/gin"
)

// ChatRouters exposes the chat call-in surface to portal pages.
func ChatRouters(router *gin.Engine, container *configuration.Container) {
	h := container.ChatHandler

	chatRoute := router.Group("/chat/api")
	{
		chatRoute.GET("/sessions", h.GetSessions)
		chatRoute.PUT("/viewport", h.SetViewport)
		chatRoute.PUT("/visibility", h.SetVisibility)
		chatRoute.POST("/sign-out", h.SignOut)
	}

	conversation := chatRoute.Group("/conversations/:conversationId")
	{
		conversation.POST("/open", h.OpenChat)
		conversation.DELETE("", h.CloseChat)
		conversation.POST("/minimize", h.MinimizeChat)
		conversation.POST("/maximize", h.MaximizeChat)
		conversation.POST("/read", h.MarkAsRead)
		conversation.POST("/messages", h.SendMessage)
		conversation.POST("/files", h.SendFile)
		conversation.POST("/typing", h.StartTyping)
		conversation.DELETE("/typing", h.StopTyping)
		conversation.POST("/messages/:messageId/reactions/:emoji", h.AddReaction)
		conversation.DELETE("/messages/:messageId/reactions/:emoji", h.RemoveReaction)
	}
}
