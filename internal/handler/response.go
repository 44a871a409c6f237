package handler

import (
	"NiralaChat/internal/chat"
	"NiralaChat/internal/chaterr"
	"NiralaChat/internal/popup"
	"NiralaChat/internal/session"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

func respond(c *gin.Context, status int, body any, message string) {
	c.JSON(status, gin.H{
		"HttpStatusCode": status,
		"ResponseBody":   body,
		"IsSuccess":      status < http.StatusBadRequest,
		"Message":        message,
	})
}

func respondError(c *gin.Context, err error) {
	respond(c, statusOf(err), nil, err.Error())
}

// statusOf maps chat errors onto HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, chat.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, popup.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, popup.ErrNothingStaged):
		return http.StatusBadRequest
	}

	code, ok := chaterr.CodeOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch code {
	case chaterr.CodeValidation:
		return http.StatusBadRequest
	case chaterr.CodeAuthRequired:
		return http.StatusUnauthorized
	case chaterr.CodeRemoteCall, chaterr.CodeTransfer:
		return http.StatusBadGateway
	case chaterr.CodeTransport:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
