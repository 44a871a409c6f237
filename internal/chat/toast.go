package chat

import "go.uber.org/zap"

type ToastLevel string

const (
	ToastInfo  ToastLevel = "info"
	ToastError ToastLevel = "error"
)

// Toaster shows short user-facing messages.
type Toaster interface {
	Toast(level ToastLevel, message string)
}

// LogToaster writes toasts to the log.
type LogToaster struct {
	Logger *zap.Logger
}

func (t LogToaster) Toast(level ToastLevel, message string) {
	if t.Logger == nil {
		return
	}
	t.Logger.Info("toast", zap.String("level", string(level)), zap.String("message", message))
}
