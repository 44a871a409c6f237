package chat

import (
	"NiralaChat/internal/event"
	"NiralaChat/internal/hub"
	"NiralaChat/internal/identity"
	"NiralaChat/internal/model"
	"NiralaChat/internal/notify"
	"NiralaChat/internal/remote"
	"NiralaChat/internal/typing"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
)

const me = "me"

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	claims := identity.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

type fakeTransport struct {
	mu            sync.Mutex
	bound         map[string]bool
	connects      []string
	disconnects   []string
	frames        []event.ControlFrame
	disconnectAll int
	connectErr    error
	dispatcher    hub.Dispatcher
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{bound: make(map[string]bool)}
}

func (f *fakeTransport) Connect(_ context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, conversationID)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.bound[conversationID] = true
	return nil
}

func (f *fakeTransport) Disconnect(conversationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, conversationID)
	delete(f.bound, conversationID)
}

func (f *fakeTransport) DisconnectAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectAll++
	f.bound = make(map[string]bool)
}

func (f *fakeTransport) Send(conversationID string, frame event.ControlFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.bound[conversationID] {
		return hub.ErrNotConnected
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeTransport) Bound(conversationID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bound[conversationID]
}

func (f *fakeTransport) SetDispatcher(d hub.Dispatcher) {
	f.dispatcher = d
}

// drop simulates a binding that gave up reconnecting.
func (f *fakeTransport) drop(conversationID string) {
	f.mu.Lock()
	delete(f.bound, conversationID)
	f.mu.Unlock()
	f.dispatcher.BindingClosed(conversationID)
}

func (f *fakeTransport) sentFrames() []event.ControlFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event.ControlFrame(nil), f.frames...)
}

func (f *fakeTransport) connectCount(conversationID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.connects {
		if id == conversationID {
			n++
		}
	}
	return n
}

type fakeRemote struct {
	mu           sync.Mutex
	history      map[string][]model.Message
	historyErr   error
	historyCalls map[string]int
	sendErr      error
	sendGate     chan struct{}
	sendEntered  chan struct{}
	fileErr      error
	nextID       int
	markReads    map[string]int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		history:      make(map[string][]model.Message),
		historyCalls: make(map[string]int),
		markReads:    make(map[string]int),
	}
}

func (f *fakeRemote) FetchHistory(_ context.Context, conversationID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls[conversationID]++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history[conversationID], nil
}

func (f *fakeRemote) SendText(ctx context.Context, conversationID, text string) (model.Message, error) {
	if f.sendGate != nil {
		if f.sendEntered != nil {
			f.sendEntered <- struct{}{}
		}
		select {
		case <-f.sendGate:
		case <-ctx.Done():
			return model.Message{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return model.Message{}, f.sendErr
	}
	f.nextID++
	return model.Message{
		ID:             fmt.Sprintf("srv-%d", f.nextID),
		ConversationID: conversationID,
		SenderID:       me,
		Content:        text,
		CreatedAt:      time.Now(),
	}, nil
}

func (f *fakeRemote) SendFile(_ context.Context, conversationID string, file remote.FileUpload, onProgress remote.ProgressFunc) (model.Message, error) {
	if onProgress != nil {
		onProgress(0)
	}
	if _, err := io.Copy(io.Discard, file.Body); err != nil {
		return model.Message{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fileErr != nil {
		return model.Message{}, f.fileErr
	}
	if onProgress != nil {
		onProgress(100)
	}
	f.nextID++
	return model.Message{
		ID:             fmt.Sprintf("srv-%d", f.nextID),
		ConversationID: conversationID,
		SenderID:       me,
		File:           &model.FileRef{URL: "https://files/" + file.Name, Name: file.Name, MimeType: file.MimeType},
	}, nil
}

func (f *fakeRemote) MarkRead(_ context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReads[conversationID]++
	return nil
}

func (f *fakeRemote) markReadCount(conversationID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markReads[conversationID]
}

func (f *fakeRemote) historyCount(conversationID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCalls[conversationID]
}

type notified struct {
	n          notify.Notification
	pageHidden bool
	minimized  bool
}

type fakeGate struct {
	mu       sync.Mutex
	requests int
	notified []notified
	cues     int
}

func (g *fakeGate) RequestOnce(context.Context) notify.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests++
	return notify.StateGranted
}

func (g *fakeGate) Notify(_ context.Context, n notify.Notification, pageHidden, minimized bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !pageHidden && !minimized {
		return false
	}
	g.notified = append(g.notified, notified{n, pageHidden, minimized})
	return true
}

func (g *fakeGate) AudioCue(pageHidden bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pageHidden {
		g.cues++
	}
	return pageHidden
}

type toast struct {
	level   ToastLevel
	message string
}

type fakeToaster struct {
	mu     sync.Mutex
	toasts []toast
}

func (f *fakeToaster) Toast(level ToastLevel, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toasts = append(f.toasts, toast{level, message})
}

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeTimers) AfterFunc(_ time.Duration, f func()) typing.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeTimers) fireAll() {
	c.mu.Lock()
	timers := append([]*fakeTimer(nil), c.timers...)
	c.mu.Unlock()
	for _, t := range timers {
		t.fn()
	}
}

type harness struct {
	o         *Orchestrator
	transport *fakeTransport
	remote    *fakeRemote
	gate      *fakeGate
	toaster   *fakeToaster
	tokens    *identity.StaticTokenSource
	timers    *fakeTimers
}

func newHarness(t *testing.T, cfg Config) *harness {
	h := &harness{
		transport: newFakeTransport(),
		remote:    newFakeRemote(),
		gate:      &fakeGate{},
		toaster:   &fakeToaster{},
		tokens:    identity.NewStaticTokenSource(tokenFor(t, me)),
		timers:    &fakeTimers{},
	}
	h.o = New(Deps{
		Transport: h.transport,
		Remote:    h.remote,
		Gate:      h.gate,
		Tokens:    h.tokens,
		Toaster:   h.toaster,
	}, cfg, WithTypingOptions(typing.WithAfterFunc(h.timers.AfterFunc)))
	t.Cleanup(h.o.Close)
	return h
}

func counterpart(id string) model.Counterpart {
	return model.Counterpart{ID: id, Name: "User " + id}
}

func (h *harness) open(t *testing.T, conversationID string) {
	t.Helper()
	require.NoError(t, h.o.OpenChat(context.Background(), conversationID, counterpart("U")))
}

func inbound(t *testing.T, msg model.Message) event.ServerEvent {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	return event.ServerEvent{Type: event.FrameNewMessage, Message: raw}
}

func ids(sessions []model.Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ConversationID
	}
	return out
}

var errBoom = errors.New("boom")
