package hub

import (
	"NiralaChat/internal/chaterr"
	"NiralaChat/internal/event"
	"NiralaChat/internal/identity"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrNotConnected = errors.New("conversation has no transport binding")
	ErrHubStopped   = errors.New("hub stopped")
	ErrEgressFull   = errors.New("egress queue full")
)

// Dispatcher receives everything that arrives on a binding, tagged with the
// conversation the binding belongs to.
type Dispatcher interface {
	HandleEvent(conversationID string, ev event.ServerEvent)
	// BindingClosed is called when a binding dropped and gave up
	// reconnecting. It is not called for Disconnect.
	BindingClosed(conversationID string)
}

type Config struct {
	SocketURL       string
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Hub owns the conversation id -> binding registry. Nothing else holds a
// reference to a binding.
type Hub struct {
	cfg    Config
	tokens identity.TokenSource
	dialer *websocket.Dialer
	logger *zap.Logger

	dispatcherMu sync.RWMutex
	dispatcher   Dispatcher

	mu       sync.RWMutex
	bindings map[string]*Client
	stopped  bool
	wg       sync.WaitGroup
}

func NewHub(cfg Config, tokens identity.TokenSource, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 10 * time.Second
	}
	return &Hub{
		cfg:    cfg,
		tokens: tokens,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		logger:   logger.Named("hub"),
		bindings: make(map[string]*Client),
	}
}

func (h *Hub) SetDispatcher(d Dispatcher) {
	h.dispatcherMu.Lock()
	defer h.dispatcherMu.Unlock()
	h.dispatcher = d
}

func (h *Hub) getDispatcher() Dispatcher {
	h.dispatcherMu.RLock()
	defer h.dispatcherMu.RUnlock()
	return h.dispatcher
}

// Connect binds conversationID to a new connection and subscribes to it.
// Connecting a conversation that is already bound does nothing.
func (h *Hub) Connect(ctx context.Context, conversationID string) error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return ErrHubStopped
	}
	if _, ok := h.bindings[conversationID]; ok {
		h.mu.Unlock()
		return nil
	}
	c := newClient(h, conversationID)
	h.bindings[conversationID] = c
	h.wg.Add(1)
	h.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		h.forget(c)
		c.abandon()
		h.wg.Done()
		h.logger.Warn("failed to connect",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return err
	}

	if c.ctx.Err() != nil {
		// disconnected while dialing
		_ = conn.Close()
		c.abandon()
		h.wg.Done()
		return nil
	}

	h.logger.Info("binding connected",
		zap.String("binding_id", c.ID),
		zap.String("conversation_id", conversationID),
	)
	go c.run(conn)
	return nil
}

// Disconnect closes and discards the conversation's binding.
func (h *Hub) Disconnect(conversationID string) {
	h.mu.Lock()
	c, ok := h.bindings[conversationID]
	delete(h.bindings, conversationID)
	h.mu.Unlock()

	if ok {
		c.Close()
		h.logger.Info("binding disconnected", zap.String("conversation_id", conversationID))
	}
}

func (h *Hub) DisconnectAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.bindings))
	for id, c := range h.bindings {
		clients = append(clients, c)
		delete(h.bindings, id)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	if len(clients) > 0 {
		h.logger.Info("all bindings disconnected", zap.Int("count", len(clients)))
	}
}

// Send queues a control frame on the conversation's binding. Frames queued
// while the binding is reconnecting are written once it is back.
func (h *Hub) Send(conversationID string, frame event.ControlFrame) error {
	h.mu.RLock()
	c, ok := h.bindings[conversationID]
	h.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}
	return c.Send(frame)
}

func (h *Hub) Bound(conversationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.bindings[conversationID]
	return ok
}

// Stop disconnects everything and waits for the binding goroutines.
func (h *Hub) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()

	h.DisconnectAll()
	h.wg.Wait()
}

func (h *Hub) clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.bindings))
	for _, c := range h.bindings {
		out = append(out, c)
	}
	return out
}

// forget removes c if it is still the registered binding for its
// conversation.
func (h *Hub) forget(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.bindings[c.ConversationID]; ok && cur == c {
		delete(h.bindings, c.ConversationID)
		return true
	}
	return false
}

// release is called by a binding that gave up reconnecting.
func (h *Hub) release(c *Client) {
	if !h.forget(c) {
		return
	}
	c.Close()
	h.logger.Warn("binding closed",
		zap.String("binding_id", c.ID),
		zap.String("conversation_id", c.ConversationID),
	)
	if d := h.getDispatcher(); d != nil {
		d.BindingClosed(c.ConversationID)
	}
}

func (h *Hub) dispatch(conversationID string, ev event.ServerEvent) {
	d := h.getDispatcher()
	if d == nil {
		h.logger.Debug("no dispatcher, dropping event",
			zap.String("conversation_id", conversationID),
			zap.String("type", ev.Type),
		)
		return
	}
	d.HandleEvent(conversationID, ev)
}

func transportError(reason string, err error) error {
	var ce *chaterr.Error
	if errors.As(err, &ce) {
		return err
	}
	return chaterr.Transport(reason, err)
}
