package hub

import (
	"NiralaChat/internal/event"
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Binding states
const (
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateReconnecting = "reconnecting"
	StateClosed       = "closed"
)

var (
	// tuning parameters
	writeWait        = 10 * time.Second    // time allowed to write a frame to the server
	pongWait         = 60 * time.Second    // time allowed to read the next pong from the server
	pingInterval     = (pongWait * 9) / 10 // send pings with this period
	maxMessageSize   = 512 * 1024          // max inbound frame size (new_message carries the full message)
	sendBufSize      = 64                  // per-binding outbound buffer size
	sendTimeout      = 2 * time.Second     // timeout for enqueuing outbound frames
	handshakeTimeout = 10 * time.Second
	closeTimeout     = 5 * time.Second // force close if the pumps do not wind down
)

// Client is the transport binding of one conversation. It owns exactly one
// live connection at a time and redials it after an unexpected drop.
type Client struct {
	ID             string
	ConversationID string
	hub            *Hub
	egress         chan event.ControlFrame

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}

	mu          sync.RWMutex
	conn        *websocket.Conn
	state       string
	connectedAt time.Time
	reconnects  int
}

func newClient(h *Hub, conversationID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		hub:            h,
		egress:         make(chan event.ControlFrame, sendBufSize),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		state:          StateConnecting,
	}
}

// dial opens a connection for the conversation and subscribes to it. The
// attempt is abandoned when either ctx or the binding is cancelled.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	u, err := url.Parse(c.hub.cfg.SocketURL)
	if err != nil {
		return nil, transportError("invalid_socket_url", err)
	}
	q := u.Query()
	q.Set("conversationId", c.ConversationID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if c.hub.tokens != nil {
		token, err := c.hub.tokens.Token(ctx)
		if err != nil {
			return nil, transportError("token_unavailable", err)
		}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, resp, err := c.hub.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			c.hub.logger.Debug("handshake rejected",
				zap.String("conversation_id", c.ConversationID),
				zap.Int("status", resp.StatusCode),
			)
		}
		return nil, transportError("dial_failed", err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(event.Subscribe(c.ConversationID)); err != nil {
		_ = conn.Close()
		return nil, transportError("subscribe_failed", err)
	}
	return conn, nil
}

// run serves conn and every reconnected successor until the binding is
// closed or gives up.
func (c *Client) run(conn *websocket.Conn) {
	defer func() {
		c.setState(StateClosed, nil)
		close(c.done)
		c.hub.wg.Done()
	}()

	for conn != nil {
		c.serve(conn)
		if c.ctx.Err() != nil {
			return
		}
		conn = c.redial()
	}
	c.hub.release(c)
}

// serve runs the pumps for one connection and returns once it is gone.
func (c *Client) serve(conn *websocket.Conn) {
	c.setState(StateConnected, conn)

	connDone := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump(conn, connDone)
	}()

	c.readPump(conn)
	close(connDone)
	_ = conn.Close()
	wg.Wait()
}

// redial dials up to MaxRetries times with exponential backoff. It returns
// nil when retries are disabled, exhausted or the binding was closed.
func (c *Client) redial() *websocket.Conn {
	cfg := c.hub.cfg
	if cfg.MaxRetries <= 0 {
		return nil
	}
	c.setState(StateReconnecting, nil)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0
	// MaxRetries counts dials; WithMaxRetries counts retries after the first.
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(cfg.MaxRetries-1)), c.ctx)

	var conn *websocket.Conn
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		cn, err := c.dial(c.ctx)
		if err != nil {
			return err
		}
		conn = cn
		return nil
	}, policy, func(err error, wait time.Duration) {
		c.hub.logger.Warn("reconnect attempt failed",
			zap.String("conversation_id", c.ConversationID),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		if c.ctx.Err() == nil {
			c.hub.logger.Error("giving up reconnecting",
				zap.String("conversation_id", c.ConversationID),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
		}
		return nil
	}

	c.mu.Lock()
	c.reconnects++
	c.mu.Unlock()
	c.hub.logger.Info("binding reconnected",
		zap.String("conversation_id", c.ConversationID),
		zap.Int("attempts", attempt),
	)
	return conn
}

func (c *Client) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(int64(maxMessageSize))
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var ev event.ServerEvent
		if err := conn.ReadJSON(&ev); err != nil {
			c.logReadError(err)
			return
		}
		c.hub.logger.Debug("event received",
			zap.String("conversation_id", c.ConversationID),
			zap.String("type", ev.Type),
		)
		c.hub.dispatch(c.ConversationID, ev)
	}
}

func (c *Client) logReadError(err error) {
	log := c.hub.logger.With(zap.String("conversation_id", c.ConversationID))

	if c.ctx.Err() != nil {
		log.Debug("binding closed locally")
		return
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Info("server closed connection", zap.Error(err))
		return
	}

	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Warn("unexpected close", zap.Error(err))
		return
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		log.Warn("connection timed out", zap.Error(err))
		return
	}

	log.Warn("error reading from connection", zap.Error(err))
}

func (c *Client) writePump(conn *websocket.Conn, connDone <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-connDone:
			return
		case <-c.ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		case frame := <-c.egress:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				c.hub.logger.Warn("failed to write frame",
					zap.String("conversation_id", c.ConversationID),
					zap.String("type", frame.Type),
					zap.Error(err),
				)
				return
			}
			c.hub.logger.Debug("frame sent",
				zap.String("conversation_id", c.ConversationID),
				zap.String("type", frame.Type),
			)
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.hub.logger.Warn("ping failed",
					zap.String("conversation_id", c.ConversationID),
					zap.Error(err),
				)
				return
			}
		}
	}
}

// Send queues frame for the write pump.
func (c *Client) Send(frame event.ControlFrame) error {
	if c.ctx.Err() != nil {
		return ErrNotConnected
	}
	select {
	case c.egress <- frame:
		return nil
	case <-c.ctx.Done():
		return ErrNotConnected
	case <-time.After(sendTimeout):
		c.hub.logger.Warn("egress full, dropping frame",
			zap.String("conversation_id", c.ConversationID),
			zap.String("type", frame.Type),
		)
		return ErrEgressFull
	}
}

// Close stops the binding. The write pump sends a close frame and closes the
// connection; if it does not get there in time the connection is closed
// here.
func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()

		go func() {
			select {
			case <-c.done:
			case <-time.After(closeTimeout):
				c.mu.RLock()
				conn := c.conn
				c.mu.RUnlock()
				if conn != nil {
					_ = conn.Close()
					c.hub.logger.Warn("safety timeout: force closed connection",
						zap.String("conversation_id", c.ConversationID),
					)
				}
			}
		}()
	})
}

// abandon releases a client whose run loop never started.
func (c *Client) abandon() {
	c.once.Do(c.cancel)
	close(c.done)
}

func (c *Client) IsClosed() bool {
	return c.ctx.Err() != nil
}

func (c *Client) setState(state string, conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	if state == StateConnected {
		c.conn = conn
		c.connectedAt = time.Now()
	}
}

func (c *Client) info() (state string, connectedAt time.Time, reconnects int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state, c.connectedAt, c.reconnects
}
