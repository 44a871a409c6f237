package notify

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"
)

// AutoPrompter answers the explanatory dialog with a fixed choice. It stands
// in for the dialog when the process runs without a user in front of it.
type AutoPrompter struct {
	Accept bool
}

func (p AutoPrompter) Explain(context.Context) (bool, error) {
	return p.Accept, nil
}

// LogNotifier is a Native that writes notifications to the log. Its
// permission starts as default and becomes Grant after the first request.
type LogNotifier struct {
	Grant  bool
	Logger *zap.Logger

	mu         sync.Mutex
	permission Permission
}

func (l *LogNotifier) Permission() Permission {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.permission == "" {
		return PermissionDefault
	}
	return l.permission
}

func (l *LogNotifier) RequestPermission(context.Context) (Permission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.permission = PermissionDenied
	if l.Grant {
		l.permission = PermissionGranted
	}
	return l.permission, nil
}

func (l *LogNotifier) Show(_ context.Context, n Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("notification",
		zap.String("conversation_id", n.ConversationID),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
	)
	return nil
}

// TerminalBell plays the cue by writing BEL to W.
type TerminalBell struct {
	W io.Writer
}

func (b TerminalBell) Play() error {
	_, err := b.W.Write([]byte{'\a'})
	return err
}
