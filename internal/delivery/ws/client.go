package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mmuslimabdulj/goat-whisper/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second // Relaxed to 60s for mobile stability

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Upper bound for handling one inbound event
	eventTimeout = 15 * time.Second
)

// State is the lifecycle state of a connection
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	default:
		return "closed"
	}
}

// Client represents a single websocket connection
type Client struct {
	id        string
	createdAt time.Time
	manager   *Manager
	conn      *websocket.Conn
	send      chan []byte
	limiter   *rate.Limiter
	log       *zap.Logger

	mu       sync.RWMutex
	state    State
	identity domain.Identity
}

// NewClient creates a client in the connecting state
func NewClient(m *Manager, conn *websocket.Conn) *Client {
	id := uuid.New().String()
	return &Client{
		id:        id,
		createdAt: time.Now(),
		manager:   m,
		conn:      conn,
		send:      make(chan []byte, m.opts.SendBufferSize),
		limiter:   rate.NewLimiter(rate.Limit(m.opts.EventsPerSecond), m.opts.EventsPerSecond*2),
		log:       m.log.With(zap.String("conn_id", id)),
		state:     StateConnecting,
	}
}

// ID is the connection handle
func (c *Client) ID() string { return c.id }

// UserID is the owning identity's id, empty before authentication
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity.ID
}

// Identity returns the owning identity
func (c *Client) Identity() domain.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// State returns the lifecycle state
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Send queues a frame without blocking. A closed connection or a full
// buffer is a routing failure for this connection only.
func (c *Client) Send(msg []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state == StateClosed {
		return domain.ErrConnectionClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return domain.ErrSendBufferFull
	}
}

// transition moves from one of the allowed states to next
func (c *Client) transition(next State, from ...State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range from {
		if c.state == s {
			c.state = next
			return true
		}
	}
	return false
}

// bind attaches the identity once authentication succeeded
func (c *Client) bind(id domain.Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting {
		return false
	}
	c.identity = id
	c.state = StateAuthenticated
	return true
}

// shutdown marks the client closed and releases the write pump. It reports
// the state the client was in, StateClosed if it was already closed.
func (c *Client) shutdown() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.state
	if prev == StateClosed {
		return prev
	}
	c.state = StateClosed
	close(c.send)
	return prev
}

func (c *Client) sendEvent(eventType domain.EventType, payload any) {
	data, err := domain.Encode(eventType, payload)
	if err != nil {
		c.log.Error("encode event failed", zap.String("event", string(eventType)), zap.Error(err))
		return
	}
	if err := c.Send(data); err != nil && !errors.Is(err, domain.ErrConnectionClosed) {
		c.manager.metrics.DeliveryFailed(string(eventType))
		c.log.Warn("send failed", zap.String("event", string(eventType)), zap.Error(err))
	}
}

func (c *Client) sendError(err error, fallback string) {
	c.sendEvent(domain.EventError, domain.ErrorPayload{Message: domain.PublicMessage(err, fallback)})
}

// closeWith sends a close frame. Safe to call concurrently with the write pump.
func (c *Client) closeWith(code int, reason string) {
	if c.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// ReadPump pumps messages from the websocket connection to the router
func (c *Client) ReadPump() {
	defer c.manager.Deactivate(c)

	c.conn.SetReadLimit(c.manager.opts.MaxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if c.State() == StateConnecting && !c.handshake() {
		return
	}

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Debug("connection closed unexpectedly", zap.Error(err))
			}
			return
		}

		if !c.handle(message) {
			return
		}
	}
}

// handshake waits for an authenticate frame within the handshake timeout
func (c *Client) handshake() bool {
	c.conn.SetReadDeadline(time.Now().Add(c.manager.opts.HandshakeTimeout))

	_, message, err := c.conn.ReadMessage()
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			c.manager.metrics.AuthFailed("timeout")
			c.closeWith(websocket.ClosePolicyViolation, "authentication timeout")
		}
		return false
	}

	env, err := domain.Decode(message)
	if err != nil || env.Type != domain.EventAuthenticate {
		c.manager.metrics.AuthFailed("handshake")
		c.closeWith(websocket.ClosePolicyViolation, "authentication required")
		return false
	}

	var p domain.AuthenticatePayload
	if err := domain.DecodePayload(env, &p); err != nil {
		c.manager.metrics.AuthFailed("handshake")
		c.closeWith(websocket.ClosePolicyViolation, "token missing")
		return false
	}

	id, err := c.manager.auth.Authenticate(p.Token)
	if err != nil {
		c.manager.metrics.AuthFailed("handshake")
		c.log.Info("handshake rejected", zap.Error(err))
		c.closeWith(websocket.ClosePolicyViolation, err.Error())
		return false
	}

	if !c.manager.Activate(c, id) {
		return false
	}
	c.sendEvent(domain.EventAuthenticated, domain.AuthenticatedPayload{UserID: id.ID})
	return true
}

// handle dispatches one inbound frame. It returns false when the client
// asked to end the session.
func (c *Client) handle(message []byte) bool {
	// every frame costs a token, malformed ones included
	if !c.limiter.Allow() {
		c.manager.metrics.EventRejected(eventRateLimited)
		c.sendError(domain.ErrRateLimited, "")
		return true
	}

	env, err := domain.Decode(message)
	if err != nil {
		c.manager.metrics.EventRejected(eventUnknown)
		c.sendError(err, "")
		return true
	}

	label := eventLabel(env.Type)
	c.manager.metrics.EventReceived(label)

	// detached so an in-flight event completes even if the peer goes away
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	if err := c.dispatch(ctx, env); err != nil {
		if errors.Is(err, errLogout) {
			return false
		}
		c.manager.metrics.EventRejected(label)
		c.sendError(err, failureText(env.Type))
	}
	return true
}

const (
	eventUnknown     = "unknown"
	eventRateLimited = "rate_limited"
)

// eventLabel keeps metric labels to the known inbound event types
func eventLabel(t domain.EventType) string {
	if t.IsInbound() {
		return string(t)
	}
	return eventUnknown
}

var errLogout = errors.New("logout")

func (c *Client) dispatch(ctx context.Context, env domain.Envelope) error {
	router := c.manager.router
	identity := c.Identity()

	switch env.Type {
	case domain.EventSendMessage:
		var p domain.SendMessagePayload
		if err := domain.DecodePayload(env, &p); err != nil {
			return err
		}
		_, err := router.SendMessage(ctx, c, identity, p)
		return err

	case domain.EventTyping, domain.EventStopTyping:
		var p domain.TypingPayload
		if err := domain.DecodePayload(env, &p); err != nil {
			return err
		}
		return router.Typing(identity, p.ToUserID, env.Type == domain.EventTyping)

	case domain.EventMarkAsRead:
		var p domain.MarkAsReadPayload
		if err := domain.DecodePayload(env, &p); err != nil {
			return err
		}
		_, err := router.MarkAsRead(ctx, identity, p)
		return err

	case domain.EventGetOnlineUsers:
		c.sendEvent(domain.EventOnlineUsersList, domain.OnlineUsersPayload{UserIDs: router.OnlineUsers()})
		return nil

	case domain.EventLogout:
		return errLogout

	case domain.EventAuthenticate:
		return fmt.Errorf("%w: already authenticated", domain.ErrValidation)

	default:
		return domain.ErrUnknownEvent
	}
}

func failureText(t domain.EventType) string {
	switch t {
	case domain.EventMarkAsRead:
		return "failed to mark messages as read"
	default:
		return "failed to send message"
	}
}

// WritePump pumps messages from the send queue to the websocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Manager closed the channel
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
