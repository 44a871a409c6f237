// Package chat coordinates open chat sessions: the session store, one
// transport binding per session, the windowing policy, typing signals and
// notifications.
package chat

import (
	"NiralaChat/internal/chaterr"
	"NiralaChat/internal/event"
	"NiralaChat/internal/hub"
	"NiralaChat/internal/identity"
	"NiralaChat/internal/model"
	"NiralaChat/internal/notify"
	"NiralaChat/internal/remote"
	"NiralaChat/internal/session"
	"NiralaChat/internal/typing"
	"NiralaChat/internal/window"
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrMessageNotFound = errors.New("message not found")

// Remote is the request/response side of the message store.
type Remote interface {
	FetchHistory(ctx context.Context, conversationID string) ([]model.Message, error)
	SendText(ctx context.Context, conversationID, text string) (model.Message, error)
	SendFile(ctx context.Context, conversationID string, f remote.FileUpload, onProgress remote.ProgressFunc) (model.Message, error)
	MarkRead(ctx context.Context, conversationID string) error
}

// Transport is the per-conversation real-time connection registry.
type Transport interface {
	Connect(ctx context.Context, conversationID string) error
	Disconnect(conversationID string)
	DisconnectAll()
	Send(conversationID string, frame event.ControlFrame) error
	Bound(conversationID string) bool
	SetDispatcher(d hub.Dispatcher)
}

// Notifier is the notification gate.
type Notifier interface {
	RequestOnce(ctx context.Context) notify.State
	Notify(ctx context.Context, n notify.Notification, pageHidden, minimized bool) bool
	AudioCue(pageHidden bool) bool
}

type Deps struct {
	Store     *session.Store
	Transport Transport
	Remote    Remote
	Gate      Notifier
	Tokens    identity.TokenSource
	Toaster   Toaster
	Logger    *zap.Logger
}

type Config struct {
	DesktopMaxSessions   int
	MobileBreakpointPx   int
	TypingQuietPeriod    time.Duration
	InitialViewportWidth int
}

type Option func(*Orchestrator)

// WithTypingOptions passes options to the typing debouncer.
func WithTypingOptions(opts ...typing.Option) Option {
	return func(o *Orchestrator) {
		o.typingOpts = append(o.typingOpts, opts...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator is the only writer of the session store.
type Orchestrator struct {
	store     *session.Store
	transport Transport
	remote    Remote
	gate      Notifier
	tokens    identity.TokenSource
	toaster   Toaster
	logger    *zap.Logger
	policy    window.Policy
	typing    *typing.Debouncer

	breakpoint int
	now        func() time.Time
	typingOpts []typing.Option

	mu         sync.RWMutex
	viewport   window.Viewport
	pageHidden bool
	signOut    []func(ctx context.Context, userID string)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(deps Deps, cfg Config, opts ...Option) *Orchestrator {
	if deps.Store == nil {
		deps.Store = session.NewStore()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Toaster == nil {
		deps.Toaster = LogToaster{Logger: deps.Logger}
	}
	if cfg.MobileBreakpointPx <= 0 {
		cfg.MobileBreakpointPx = 768
	}
	if cfg.InitialViewportWidth <= 0 {
		cfg.InitialViewportWidth = 1280
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:      deps.Store,
		transport:  deps.Transport,
		remote:     deps.Remote,
		gate:       deps.Gate,
		tokens:     deps.Tokens,
		toaster:    deps.Toaster,
		logger:     deps.Logger.Named("chat"),
		policy:     window.NewPolicy(cfg.DesktopMaxSessions),
		breakpoint: cfg.MobileBreakpointPx,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.viewport = window.Classify(cfg.InitialViewportWidth, o.breakpoint)
	o.typing = typing.NewDebouncer(cfg.TypingQuietPeriod, typing.EmitterFunc(o.emitTyping), o.typingOpts...)
	o.transport.SetDispatcher(o)
	return o
}

// OnSignOut registers fn to run after SignOut tore everything down. userID
// is the user that was signed in, or empty if unknown.
func (o *Orchestrator) OnSignOut(fn func(ctx context.Context, userID string)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.signOut = append(o.signOut, fn)
}

// OpenChat opens the conversation or, if it is already open, maximizes it
// and rebinds it if its transport was lost. A new session is admitted
// through the windowing policy, bound to its own transport connection and
// filled with history before OpenChat returns.
func (o *Orchestrator) OpenChat(ctx context.Context, conversationID string, counterpart model.Counterpart) error {
	if strings.TrimSpace(conversationID) == "" {
		return chaterr.Validation("missing_conversation_id")
	}

	if existing, ok := o.store.Get(conversationID); ok {
		if existing.Minimized() {
			o.MaximizeChat(conversationID)
		}
		if !o.transport.Bound(conversationID) {
			o.connect(ctx, conversationID)
		}
		return nil
	}

	if _, err := o.requireAuth(ctx, "open_chat"); err != nil {
		return err
	}

	vp := o.Viewport()
	fresh := model.NewSession(conversationID, counterpart, o.now())
	var evicted []string
	inserted := false
	o.store.Update(func(prev []model.Session) []model.Session {
		ids := sessionIDs(prev)
		for _, id := range ids {
			if id == conversationID {
				return prev
			}
		}
		inserted = true
		evicted = o.policy.Admit(ids, conversationID, vp)
		return session.Insert(fresh)(session.Remove(evicted...)(prev))
	})
	if !inserted {
		return nil
	}
	for _, id := range evicted {
		o.teardown(id)
		o.logger.Info("session evicted",
			zap.String("conversation_id", id),
			zap.String("admitted", conversationID),
			zap.String("viewport", string(vp)),
		)
	}
	o.logger.Info("session opened", zap.String("conversation_id", conversationID))

	o.goBackground(func(ctx context.Context) {
		o.gate.RequestOnce(ctx)
	})

	o.connect(ctx, conversationID)

	history, err := o.remote.FetchHistory(ctx, conversationID)
	if err != nil {
		o.store.Update(session.SetLoading(conversationID, false))
		o.logger.Error("failed to fetch history",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return chaterr.RemoteCall("fetch_history", err)
	}
	o.store.Update(session.MergeHistory(conversationID, history))
	return nil
}

// connect binds the session. A failure leaves the session open without a
// live transport.
func (o *Orchestrator) connect(ctx context.Context, conversationID string) {
	if err := o.transport.Connect(ctx, conversationID); err != nil {
		o.logger.Warn("session has no live transport",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return
	}
	if !o.store.Has(conversationID) {
		// closed while connecting
		o.transport.Disconnect(conversationID)
	}
}

// CloseChat removes the session and tears down its binding.
func (o *Orchestrator) CloseChat(conversationID string) {
	o.store.Update(session.Remove(conversationID))
	o.teardown(conversationID)
	o.logger.Info("session closed", zap.String("conversation_id", conversationID))
}

func (o *Orchestrator) MinimizeChat(conversationID string) {
	o.store.Update(session.SetWindowState(conversationID, model.WindowMinimized))
}

// MaximizeChat maximizes the session, clears its unread count and issues one
// mark-read call.
func (o *Orchestrator) MaximizeChat(conversationID string) {
	if !o.store.UpdateIf(hasSession(conversationID), session.SetWindowState(conversationID, model.WindowMaximized)) {
		return
	}
	o.markReadRemote(conversationID)
}

// MarkAsRead zeroes the unread count locally and tells the message store in
// the background. A failed call does not restore the count.
func (o *Orchestrator) MarkAsRead(conversationID string) {
	if !o.store.UpdateIf(hasSession(conversationID), session.ResetUnread(conversationID)) {
		return
	}
	o.markReadRemote(conversationID)
}

func (o *Orchestrator) markReadRemote(conversationID string) {
	o.goBackground(func(ctx context.Context) {
		if _, _, err := identity.Resolve(ctx, o.tokens); err != nil {
			o.logger.Warn("skipping mark-read without identity",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
			return
		}
		if err := o.remote.MarkRead(ctx, conversationID); err != nil {
			o.logger.Warn("mark-read failed",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
		}
	})
}

// SendMessage sends text and appends the message the store confirmed. Nothing
// is shown before the confirmation arrives.
func (o *Orchestrator) SendMessage(ctx context.Context, conversationID, text string) (model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Message{}, chaterr.Validation("empty_message")
	}
	if !o.store.Has(conversationID) {
		return model.Message{}, session.ErrNotFound
	}
	claims, err := o.requireAuth(ctx, "send_message")
	if err != nil {
		return model.Message{}, err
	}

	o.typing.Stop(conversationID)

	msg, err := o.remote.SendText(ctx, conversationID, text)
	if err != nil {
		o.logger.Error("failed to send message",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return model.Message{}, chaterr.RemoteCall("send_message", err)
	}
	o.appendConfirmed(conversationID, msg, claims.Subject())
	return msg, nil
}

// SendFile streams f, reporting progress through onProgress, and appends the
// resulting message. A failed upload leaves no message behind.
func (o *Orchestrator) SendFile(ctx context.Context, conversationID string, f remote.FileUpload, onProgress remote.ProgressFunc) (model.Message, error) {
	if f.Body == nil || strings.TrimSpace(f.Name) == "" {
		return model.Message{}, chaterr.Validation("invalid_file")
	}
	if !o.store.Has(conversationID) {
		return model.Message{}, session.ErrNotFound
	}
	claims, err := o.requireAuth(ctx, "send_file")
	if err != nil {
		return model.Message{}, err
	}

	msg, err := o.remote.SendFile(ctx, conversationID, f, onProgress)
	if err != nil {
		o.logger.Error("file transfer failed",
			zap.String("conversation_id", conversationID),
			zap.String("file", f.Name),
			zap.Error(err),
		)
		return model.Message{}, chaterr.Transfer("upload_failed", err)
	}
	o.appendConfirmed(conversationID, msg, claims.Subject())
	return msg, nil
}

// appendConfirmed adds a message the store acknowledged. If the session was
// closed in the meantime the message is dropped.
func (o *Orchestrator) appendConfirmed(conversationID string, msg model.Message, selfID string) {
	if msg.ConversationID == "" {
		msg.ConversationID = conversationID
	}
	if !o.store.UpdateIf(hasSession(conversationID), session.AppendMessage(msg, selfID)) {
		o.logger.Debug("discarding result for closed session",
			zap.String("conversation_id", conversationID),
			zap.String("message_id", msg.ID),
		)
	}
}

// StartTyping records a keystroke in the composer.
func (o *Orchestrator) StartTyping(conversationID string) {
	if !o.store.Has(conversationID) {
		return
	}
	o.typing.Keystroke(conversationID)
}

func (o *Orchestrator) StopTyping(conversationID string) {
	o.typing.Stop(conversationID)
}

func (o *Orchestrator) emitTyping(conversationID string, typing bool) {
	if err := o.transport.Send(conversationID, event.Typing(conversationID, typing)); err != nil {
		o.logger.Warn("failed to send typing signal",
			zap.String("conversation_id", conversationID),
			zap.Bool("typing", typing),
			zap.Error(err),
		)
	}
}

// AddReaction asks the server to add emoji. The session only changes when
// the reaction_added event comes back.
func (o *Orchestrator) AddReaction(ctx context.Context, conversationID, messageID, emoji string) error {
	return o.sendReaction(ctx, conversationID, messageID, emoji, true)
}

// RemoveReaction asks the server to remove emoji. The session only changes
// when the reaction_removed event comes back.
func (o *Orchestrator) RemoveReaction(ctx context.Context, conversationID, messageID, emoji string) error {
	return o.sendReaction(ctx, conversationID, messageID, emoji, false)
}

func (o *Orchestrator) sendReaction(ctx context.Context, conversationID, messageID, emoji string, add bool) error {
	if messageID == "" || strings.TrimSpace(emoji) == "" {
		return chaterr.Validation("invalid_reaction")
	}
	sess, ok := o.store.Get(conversationID)
	if !ok {
		return session.ErrNotFound
	}
	msg, ok := findMessage(sess, messageID)
	if !ok {
		return ErrMessageNotFound
	}
	claims, err := o.requireAuth(ctx, "reaction")
	if err != nil {
		return err
	}

	// already in the requested state as far as the server told us
	if msg.HasReacted(emoji, claims.Subject()) == add {
		return nil
	}

	if err := o.transport.Send(conversationID, event.Reaction(conversationID, messageID, emoji, add)); err != nil {
		o.logger.Warn("failed to send reaction",
			zap.String("conversation_id", conversationID),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return chaterr.Transport("reaction_not_sent", err)
	}
	return nil
}

func (o *Orchestrator) TotalUnreadCount() int {
	return o.store.TotalUnread()
}

func (o *Orchestrator) Sessions() []model.Session {
	return o.store.Snapshot()
}

func (o *Orchestrator) Session(conversationID string) (model.Session, bool) {
	return o.store.Get(conversationID)
}

// SignOut closes every session and binding at once.
func (o *Orchestrator) SignOut() {
	userID := o.selfID()

	var closed []string
	o.store.Update(func(prev []model.Session) []model.Session {
		closed = sessionIDs(prev)
		return session.Clear()(prev)
	})
	o.transport.DisconnectAll()
	o.typing.CancelAll()
	o.logger.Info("signed out", zap.Int("closed_sessions", len(closed)))

	o.mu.RLock()
	hooks := append([]func(context.Context, string){}, o.signOut...)
	o.mu.RUnlock()
	for _, hook := range hooks {
		hook(o.ctx, userID)
	}
}

// SetViewport reclassifies the viewport and closes whatever the policy no
// longer allows.
func (o *Orchestrator) SetViewport(widthPx int) window.Viewport {
	vp := window.Classify(widthPx, o.breakpoint)
	o.mu.Lock()
	o.viewport = vp
	o.mu.Unlock()

	var evicted []string
	o.store.Update(func(prev []model.Session) []model.Session {
		evicted = o.policy.Enforce(sessionIDs(prev), vp)
		return session.Remove(evicted...)(prev)
	})
	for _, id := range evicted {
		o.teardown(id)
		o.logger.Info("session closed by viewport change",
			zap.String("conversation_id", id),
			zap.String("viewport", string(vp)),
		)
	}
	return vp
}

func (o *Orchestrator) Viewport() window.Viewport {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.viewport
}

func (o *Orchestrator) Policy() window.Policy {
	return o.policy
}

func (o *Orchestrator) SetPageHidden(hidden bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pageHidden = hidden
}

func (o *Orchestrator) PageHidden() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.pageHidden
}

// SelfID is the local user's id, or empty when signed out.
func (o *Orchestrator) SelfID() string {
	return o.selfID()
}

// Restore reopens a saved layout in its saved order and window state.
func (o *Orchestrator) Restore(ctx context.Context, layout model.Layout) error {
	var errs []error
	for _, s := range layout.Sessions {
		if err := o.OpenChat(ctx, s.ConversationID, s.Counterpart); err != nil {
			errs = append(errs, err)
			continue
		}
		if s.WindowState == model.WindowMinimized {
			o.MinimizeChat(s.ConversationID)
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until background work started so far has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels background work and typing timers. Sessions stay in the
// store; the transport is shut down by its owner.
func (o *Orchestrator) Close() {
	o.cancel()
	o.typing.CancelAll()
	o.wg.Wait()
}

// teardown releases everything a session holds outside the store. Every path
// that removes a session goes through here.
func (o *Orchestrator) teardown(conversationID string) {
	o.transport.Disconnect(conversationID)
	o.typing.Cancel(conversationID)
}

func (o *Orchestrator) goBackground(fn func(ctx context.Context)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn(o.ctx)
	}()
}

// requireAuth resolves the identity token. Without one the action is
// refused with a toast and no remote call is made.
func (o *Orchestrator) requireAuth(ctx context.Context, action string) (*identity.Claims, error) {
	_, claims, err := identity.Resolve(ctx, o.tokens)
	if err != nil {
		o.toaster.Toast(ToastError, "Please sign in to use chat.")
		o.logger.Warn("action requires sign-in", zap.String("action", action), zap.Error(err))
		return nil, err
	}
	return claims, nil
}

func (o *Orchestrator) selfID() string {
	_, claims, err := identity.Resolve(o.ctx, o.tokens)
	if err != nil {
		return ""
	}
	return claims.Subject()
}

func sessionIDs(list []model.Session) []string {
	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.ConversationID
	}
	return ids
}

func hasSession(conversationID string) func([]model.Session) bool {
	return func(list []model.Session) bool {
		for _, s := range list {
			if s.ConversationID == conversationID {
				return true
			}
		}
		return false
	}
}

func findMessage(s model.Session, messageID string) (model.Message, bool) {
	for _, m := range s.Messages {
		if m.ID == messageID {
			return m, true
		}
	}
	return model.Message{}, false
}
