package chat

import (
	"NiralaChat/internal/identity"
	"NiralaChat/internal/model"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const layoutWriteTimeout = 5 * time.Second

// LayoutStore persists the open window layout per user.
type LayoutStore interface {
	SaveLayout(ctx context.Context, layout *model.Layout) error
	LoadLayout(ctx context.Context, userID string) (*model.Layout, error)
	DeleteLayout(ctx context.Context, userID string) error
}

// LayoutRecorder writes the latest session layout in the background. Bursts
// of store updates collapse into one write.
type LayoutRecorder struct {
	layouts LayoutStore
	tokens  identity.TokenSource
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	latest []model.Session
	dirty  bool

	kick   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewLayoutRecorder(layouts LayoutStore, tokens identity.TokenSource, logger *zap.Logger) *LayoutRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &LayoutRecorder{
		layouts: layouts,
		tokens:  tokens,
		logger:  logger.Named("layout"),
		now:     time.Now,
		kick:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Observe is a session store listener.
func (r *LayoutRecorder) Observe(sessions []model.Session) {
	r.mu.Lock()
	r.latest = sessions
	r.dirty = true
	r.mu.Unlock()

	select {
	case r.kick <- struct{}{}:
	default:
	}
}

func (r *LayoutRecorder) run() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.kick:
			r.flush(r.ctx)
		}
	}
}

func (r *LayoutRecorder) flush(ctx context.Context) {
	r.mu.Lock()
	if !r.dirty {
		r.mu.Unlock()
		return
	}
	sessions := r.latest
	r.dirty = false
	r.mu.Unlock()

	_, claims, err := identity.Resolve(ctx, r.tokens)
	if err != nil {
		r.logger.Debug("not saving layout without identity", zap.Error(err))
		return
	}
	userID := claims.Subject()

	ctx, cancel := context.WithTimeout(ctx, layoutWriteTimeout)
	defer cancel()

	if len(sessions) == 0 {
		err = r.layouts.DeleteLayout(ctx, userID)
	} else {
		layout := model.LayoutFromSessions(userID, sessions, r.now())
		err = r.layouts.SaveLayout(ctx, &layout)
	}
	if err != nil {
		r.logger.Warn("failed to record layout", zap.String("user_id", userID), zap.Error(err))
	}
}

// Load returns the current user's saved layout, or nil if there is none.
func (r *LayoutRecorder) Load(ctx context.Context) (*model.Layout, error) {
	_, claims, err := identity.Resolve(ctx, r.tokens)
	if err != nil {
		return nil, err
	}
	return r.layouts.LoadLayout(ctx, claims.Subject())
}

// Forget drops any pending write and deletes userID's layout. It is meant
// for sign-out.
func (r *LayoutRecorder) Forget(ctx context.Context, userID string) {
	r.mu.Lock()
	r.latest = nil
	r.dirty = false
	r.mu.Unlock()

	if userID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, layoutWriteTimeout)
	defer cancel()
	if err := r.layouts.DeleteLayout(ctx, userID); err != nil {
		r.logger.Warn("failed to delete layout", zap.String("user_id", userID), zap.Error(err))
	}
}

// Close stops the background writer and writes whatever is still pending.
func (r *LayoutRecorder) Close() {
	r.cancel()
	<-r.done
	r.flush(context.Background())
}
