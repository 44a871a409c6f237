// Package notify gates desktop notifications behind a one-time permission
// flow.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type State string

const (
	StateUnrequested State = "unrequested"
	StatePrompting   State = "prompting"
	StateGranted     State = "granted"
	StateDenied      State = "denied"
)

// Permission is the host's native notification permission.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

type Notification struct {
	ConversationID string `json:"conversationId"`
	Title          string `json:"title"`
	Body           string `json:"body"`
}

// Prompter shows the explanatory dialog that precedes the native prompt.
type Prompter interface {
	Explain(ctx context.Context) (accepted bool, err error)
}

// Native is the host notification capability.
type Native interface {
	Permission() Permission
	RequestPermission(ctx context.Context) (Permission, error)
	Show(ctx context.Context, n Notification) error
}

// Cue plays the incoming-message sound.
type Cue interface {
	Play() error
}

var transitions = map[State][]State{
	StateUnrequested: {StatePrompting, StateGranted, StateDenied},
	StatePrompting:   {StateGranted, StateDenied},
}

type Gate struct {
	prompter Prompter
	native   Native
	cue      Cue
	logger   *zap.Logger

	mu    sync.Mutex
	state State
}

// NewGate seeds the state from the native permission, so a page that was
// already granted or denied never prompts. cue may be nil.
func NewGate(prompter Prompter, native Native, cue Cue, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gate{
		prompter: prompter,
		native:   native,
		cue:      cue,
		logger:   logger,
		state:    StateUnrequested,
	}
	switch native.Permission() {
	case PermissionGranted:
		g.state = StateGranted
	case PermissionDenied:
		g.state = StateDenied
	}
	return g
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) transition(from, to State) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != from {
		return false
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			g.state = to
			g.logger.Info("notification permission state changed",
				zap.String("from", string(from)),
				zap.String("to", string(to)),
			)
			return true
		}
	}
	return false
}

// RequestOnce runs the permission flow if it has never run. Later calls,
// including concurrent ones, return the current state without prompting.
func (g *Gate) RequestOnce(ctx context.Context) State {
	if !g.transition(StateUnrequested, StatePrompting) {
		return g.State()
	}

	accepted, err := g.prompter.Explain(ctx)
	if err != nil {
		g.logger.Warn("explanatory dialog failed", zap.Error(err))
	}
	if err != nil || !accepted {
		g.transition(StatePrompting, StateDenied)
		return g.State()
	}

	perm, err := g.native.RequestPermission(ctx)
	if err != nil {
		g.logger.Warn("native permission request failed", zap.Error(err))
	}
	if err == nil && perm == PermissionGranted {
		g.transition(StatePrompting, StateGranted)
	} else {
		g.transition(StatePrompting, StateDenied)
	}
	return g.State()
}

// Notify shows n when permission is granted and the user is not looking at
// the session. It reports whether a notification was dispatched.
func (g *Gate) Notify(ctx context.Context, n Notification, pageHidden, minimized bool) bool {
	if g.State() != StateGranted {
		return false
	}
	if !pageHidden && !minimized {
		return false
	}
	if err := g.native.Show(ctx, n); err != nil {
		g.logger.Warn("failed to show notification",
			zap.String("conversation_id", n.ConversationID),
			zap.Error(err),
		)
		return false
	}
	return true
}

// AudioCue plays the cue while the page is hidden.
func (g *Gate) AudioCue(pageHidden bool) bool {
	if g.cue == nil || !pageHidden {
		return false
	}
	if err := g.cue.Play(); err != nil {
		g.logger.Warn("failed to play audio cue", zap.Error(err))
		return false
	}
	return true
}
