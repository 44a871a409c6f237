package hub

import (
	"NiralaChat/internal/chaterr"
	"NiralaChat/internal/event"
	"NiralaChat/internal/identity"
	"NiralaChat/internal/model"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type handshake struct {
	conversationID string
	authorization  string
}

type wsServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader
	reject   atomic.Bool
	rejected atomic.Int32

	handshakes chan handshake
	conns      chan *websocket.Conn
	frames     chan event.ControlFrame
	readErrs   chan error
}

func newWSServer(t *testing.T) *wsServer {
	s := &wsServer{
		t:          t,
		handshakes: make(chan handshake, 16),
		conns:      make(chan *websocket.Conn, 16),
		frames:     make(chan event.ControlFrame, 64),
		readErrs:   make(chan error, 16),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serveWS))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
}

func (s *wsServer) serveWS(w http.ResponseWriter, r *http.Request) {
	if s.reject.Load() {
		s.rejected.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.handshakes <- handshake{
		conversationID: r.URL.Query().Get("conversationId"),
		authorization:  r.Header.Get("Authorization"),
	}
	s.conns <- conn

	for {
		var frame event.ControlFrame
		if err := conn.ReadJSON(&frame); err != nil {
			s.readErrs <- err
			return
		}
		s.frames <- frame
	}
}

func (s *wsServer) nextConn() *websocket.Conn {
	select {
	case c := <-s.conns:
		return c
	case <-time.After(2 * time.Second):
		s.t.Fatal("no connection")
		return nil
	}
}

func (s *wsServer) nextFrame() event.ControlFrame {
	select {
	case f := <-s.frames:
		return f
	case <-time.After(2 * time.Second):
		s.t.Fatal("no frame")
		return event.ControlFrame{}
	}
}

type received struct {
	conversationID string
	ev             event.ServerEvent
}

type fakeDispatcher struct {
	events chan received
	closed chan string
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{
		events: make(chan received, 16),
		closed: make(chan string, 4),
	}
}

func (d *fakeDispatcher) HandleEvent(conversationID string, ev event.ServerEvent) {
	d.events <- received{conversationID, ev}
}

func (d *fakeDispatcher) BindingClosed(conversationID string) {
	d.closed <- conversationID
}

func newTestHub(t *testing.T, s *wsServer, maxRetries int) (*Hub, *fakeDispatcher) {
	h := NewHub(Config{
		SocketURL:       s.url(),
		MaxRetries:      maxRetries,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
	}, identity.NewStaticTokenSource("tok"), nil)
	d := newFakeDispatcher()
	h.SetDispatcher(d)
	t.Cleanup(h.Stop)
	return h, d
}

func TestConnect_SubscribesWithBearerAndDispatchesEvents(t *testing.T) {
	s := newWSServer(t)
	h, d := newTestHub(t, s, 0)

	require.NoError(t, h.Connect(context.Background(), "c1"))
	require.True(t, h.Bound("c1"))

	hs := <-s.handshakes
	require.Equal(t, "c1", hs.conversationID)
	require.Equal(t, "Bearer tok", hs.authorization)
	require.Equal(t, event.Subscribe("c1"), s.nextFrame())

	conn := s.nextConn()
	raw, _ := json.Marshal(model.Message{ID: "m1", ConversationID: "c1", SenderID: "u"})
	require.NoError(t, conn.WriteJSON(event.ServerEvent{Type: event.FrameNewMessage, Message: raw}))

	select {
	case got := <-d.events:
		require.Equal(t, "c1", got.conversationID)
		require.Equal(t, event.FrameNewMessage, got.ev.Type)
		msg, err := got.ev.DecodeMessage()
		require.NoError(t, err)
		require.Equal(t, "m1", msg.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not dispatched")
	}
}

func TestConnect_AlreadyBoundIsNoop(t *testing.T) {
	s := newWSServer(t)
	h, _ := newTestHub(t, s, 0)

	require.NoError(t, h.Connect(context.Background(), "c1"))
	require.NoError(t, h.Connect(context.Background(), "c1"))

	<-s.handshakes
	select {
	case <-s.handshakes:
		t.Fatal("second connection opened")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSend(t *testing.T) {
	s := newWSServer(t)
	h, _ := newTestHub(t, s, 0)

	require.ErrorIs(t, h.Send("c1", event.Typing("c1", true)), ErrNotConnected)

	require.NoError(t, h.Connect(context.Background(), "c1"))
	require.Equal(t, event.FrameSubscribe, s.nextFrame().Type)

	require.NoError(t, h.Send("c1", event.Reaction("c1", "m1", "👍", true)))
	require.Equal(t, event.Reaction("c1", "m1", "👍", true), s.nextFrame())
}

func TestDisconnect_ClosesConnectionWithoutNotifying(t *testing.T) {
	s := newWSServer(t)
	h, d := newTestHub(t, s, 3)

	require.NoError(t, h.Connect(context.Background(), "c1"))
	s.nextConn()

	h.Disconnect("c1")
	require.False(t, h.Bound("c1"))
	require.ErrorIs(t, h.Send("c1", event.Typing("c1", false)), ErrNotConnected)

	select {
	case err := <-s.readErrs:
		require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not see the close")
	}

	select {
	case id := <-d.closed:
		t.Fatalf("BindingClosed called for %s", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDrop_WithoutRetriesReleasesBinding(t *testing.T) {
	s := newWSServer(t)
	h, d := newTestHub(t, s, 0)

	require.NoError(t, h.Connect(context.Background(), "c1"))
	_ = s.nextConn().Close()

	select {
	case id := <-d.closed:
		require.Equal(t, "c1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("binding not released")
	}
	require.False(t, h.Bound("c1"))
}

func TestDrop_ReconnectsAndResubscribes(t *testing.T) {
	s := newWSServer(t)
	h, _ := newTestHub(t, s, 5)
	monitor := NewMonitorService(h, nil)

	require.NoError(t, h.Connect(context.Background(), "c1"))
	require.Equal(t, event.FrameSubscribe, s.nextFrame().Type)
	_ = s.nextConn().Close()

	s.nextConn()
	require.Equal(t, event.Subscribe("c1"), s.nextFrame())
	require.True(t, h.Bound("c1"))

	require.Eventually(t, func() bool {
		stats := monitor.GetStats()
		return len(stats.Bindings) == 1 && stats.Bindings[0].Reconnects == 1 && stats.Bindings[0].State == StateConnected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDrop_GivesUpAfterMaxRetries(t *testing.T) {
	s := newWSServer(t)
	h, d := newTestHub(t, s, 2)

	require.NoError(t, h.Connect(context.Background(), "c1"))
	s.reject.Store(true)
	_ = s.nextConn().Close()

	select {
	case id := <-d.closed:
		require.Equal(t, "c1", id)
	case <-time.After(3 * time.Second):
		t.Fatal("binding not released")
	}
	require.False(t, h.Bound("c1"))
	require.Equal(t, int32(2), s.rejected.Load(), "max_retries counts reconnect dials")
}

func TestDrop_SingleRetryDialsOnce(t *testing.T) {
	s := newWSServer(t)
	h, d := newTestHub(t, s, 1)

	require.NoError(t, h.Connect(context.Background(), "c1"))
	s.reject.Store(true)
	_ = s.nextConn().Close()

	select {
	case <-d.closed:
	case <-time.After(3 * time.Second):
		t.Fatal("binding not released")
	}
	require.Equal(t, int32(1), s.rejected.Load())
}

func TestConnect_FailedDialLeavesNoGoroutines(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	h := NewHub(Config{SocketURL: "ws://" + addr + "/ws"}, identity.NewStaticTokenSource("tok"), nil)
	t.Cleanup(h.Stop)

	before := runtime.NumGoroutine()
	for i := 0; i < 5; i++ {
		require.Error(t, h.Connect(context.Background(), "c1"))
	}

	// well under closeTimeout, so a lingering close watchdog would show up
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, time.Second, 10*time.Millisecond)
	require.False(t, h.Bound("c1"))
}

func TestConnect_DialFailureIsTransportError(t *testing.T) {
	s := newWSServer(t)
	s.reject.Store(true)
	h, _ := newTestHub(t, s, 0)

	err := h.Connect(context.Background(), "c1")
	require.True(t, chaterr.Is(err, chaterr.CodeTransport))
	require.False(t, h.Bound("c1"))
}

func TestStop_RejectsNewBindings(t *testing.T) {
	s := newWSServer(t)
	h, _ := newTestHub(t, s, 0)

	require.NoError(t, h.Connect(context.Background(), "c1"))
	require.NoError(t, h.Connect(context.Background(), "c2"))
	h.Stop()

	require.False(t, h.Bound("c1"))
	require.False(t, h.Bound("c2"))
	require.ErrorIs(t, h.Connect(context.Background(), "c3"), ErrHubStopped)
}

type sessionList []model.Session

func (l sessionList) Sessions() []model.Session { return l }

func TestMonitor_GetStats(t *testing.T) {
	s := newWSServer(t)
	h, _ := newTestHub(t, s, 0)

	require.Equal(t, "idle", NewMonitorService(h, nil).GetStats().Status)

	require.NoError(t, h.Connect(context.Background(), "c1"))
	sessions := sessionList{
		{ConversationID: "c1", WindowState: model.WindowMaximized},
		{ConversationID: "c2", WindowState: model.WindowMinimized, UnreadCount: 2, Loading: true},
	}

	var stats model.MonitorResponse
	require.Eventually(t, func() bool {
		stats = NewMonitorService(h, sessions).GetStats()
		return stats.Connections.TotalConnected == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, "degraded", stats.Status)
	require.Equal(t, model.SessionStats{TotalOpen: 2, TotalLoading: 1, TotalUnread: 2, Unbound: 1}, stats.Sessions)
	require.Equal(t, map[string]int{"maximized": 1, "minimized": 1}, stats.WindowCount)
	require.Equal(t, "c1", stats.Bindings[0].ConversationID)
	require.NotEmpty(t, stats.Bindings[0].ConnectedAt)
}
