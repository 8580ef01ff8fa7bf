package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mmuslimabdulj/goat-whisper/internal/domain"
	"github.com/mmuslimabdulj/goat-whisper/internal/metrics"
	"github.com/mmuslimabdulj/goat-whisper/internal/presence"
	"github.com/mmuslimabdulj/goat-whisper/internal/usecase"
	"go.uber.org/zap"
)

// Authenticator verifies a bearer credential
type Authenticator interface {
	Authenticate(token string) (domain.Identity, error)
}

// Options tunes every connection served by a Manager
type Options struct {
	HandshakeTimeout time.Duration
	EventsPerSecond  int
	SendBufferSize   int
	MaxMessageSize   int64
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = domain.HandshakeTimeout
	}
	if o.EventsPerSecond <= 0 {
		o.EventsPerSecond = domain.DefaultRateLimitEvents
	}
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = domain.SendBufferSize
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = domain.MaxMessageSize
	}
	return o
}

// Manager owns the lifecycle of every connection: it binds identities,
// keeps the presence registry in sync and announces presence changes.
type Manager struct {
	opts     Options
	auth     Authenticator
	registry *presence.Registry
	router   *usecase.Router
	metrics  *metrics.Metrics
	log      *zap.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
	locks   map[string]*identityLock
}

// identityLock serializes presence transitions of one identity
type identityLock struct {
	sync.Mutex
	refs int
}

// NewManager creates a connection manager
func NewManager(opts Options, auth Authenticator, registry *presence.Registry, router *usecase.Router, m *metrics.Metrics, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		opts:     opts.withDefaults(),
		auth:     auth,
		registry: registry,
		router:   router,
		metrics:  m,
		log:      log.Named("ws"),
		clients:  make(map[*Client]struct{}),
		locks:    make(map[string]*identityLock),
	}
}

// lockIdentity holds the identity's transition lock until the returned
// func is called. Entries are dropped once nobody waits on them.
func (m *Manager) lockIdentity(userID string) func() {
	m.mu.Lock()
	l := m.locks[userID]
	if l == nil {
		l = &identityLock{}
		m.locks[userID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, userID)
		}
		m.mu.Unlock()
	}
}

// Serve takes ownership of an upgraded connection. When identity is nil the
// client must authenticate in-band with its first frame.
func (m *Manager) Serve(conn *websocket.Conn, identity *domain.Identity) *Client {
	c := NewClient(m, conn)

	m.mu.Lock()
	m.clients[c] = struct{}{}
	m.mu.Unlock()
	m.metrics.ConnectionOpened()

	if identity != nil && m.Activate(c, *identity) {
		c.sendEvent(domain.EventAuthenticated, domain.AuthenticatedPayload{UserID: identity.ID})
	}

	go c.WritePump()
	go c.ReadPump()
	return c
}

// Activate binds the identity and registers the connection. Every
// activation persists the online flag and announces user_online to the
// connections of every other identity.
func (m *Manager) Activate(c *Client, id domain.Identity) bool {
	if !c.bind(id) {
		return false
	}

	unlock := m.lockIdentity(id.ID)
	defer unlock()

	first := m.registry.Register(id, c)
	if !c.transition(StateActive, StateAuthenticated) {
		// closed while registering
		m.registry.Deregister(id, c)
		return false
	}
	m.metrics.SetOnlineUsers(m.registry.Count())

	m.log.Info("connection active",
		zap.String("user_id", id.ID),
		zap.String("conn_id", c.ID()),
		zap.Int("connections", m.registry.Connections(id.ID)),
		zap.Bool("first", first))

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	m.router.RecordPresence(ctx, id.ID, true)
	m.router.BroadcastPresence(id.ID, true)
	return true
}

// Deactivate closes the client and, if it was the identity's last
// connection, records and announces the identity as offline. Safe to call
// more than once. The offline transition holds the identity's lock, so an
// activation racing it is announced after it.
func (m *Manager) Deactivate(c *Client) {
	prev := c.shutdown()
	if prev == StateClosed {
		return
	}

	m.mu.Lock()
	delete(m.clients, c)
	m.mu.Unlock()
	m.metrics.ConnectionClosed()

	if prev != StateActive {
		return
	}

	id := c.Identity()
	unlock := m.lockIdentity(id.ID)
	defer unlock()

	since, _ := m.registry.OnlineSince(id.ID)
	last := m.registry.Deregister(id, c)
	m.metrics.SetOnlineUsers(m.registry.Count())

	m.log.Info("connection closed",
		zap.String("user_id", id.ID),
		zap.String("conn_id", c.ID()),
		zap.Duration("age", time.Since(c.createdAt)),
		zap.Int("remaining", m.registry.Connections(id.ID)))

	if !last {
		return
	}
	m.log.Debug("identity offline", zap.String("user_id", id.ID), zap.Duration("online_for", time.Since(since)))

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	m.router.RecordPresence(ctx, id.ID, false)
	m.router.BroadcastPresence(id.ID, false)
}

// ConnectionCount returns the number of open connections
func (m *Manager) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// Shutdown sends a going-away close frame to every connection. The read
// pumps then observe the close and deactivate their clients.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	clients := make([]*Client, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()

	for _, c := range clients {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
		if c.conn != nil {
			c.conn.Close()
		}
	}
	m.log.Info("closed websocket connections", zap.Int("count", len(clients)))
}

// Wait blocks until every connection has been deactivated or ctx is done
func (m *Manager) Wait(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for m.ConnectionCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
