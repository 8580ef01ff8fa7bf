// Package presence tracks which identities own live connections.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/mmuslimabdulj/goat-whisper/internal/domain"
	"github.com/samber/lo"
)

// Conn is a live connection as seen by the registry and the router
type Conn interface {
	ID() string
	UserID() string
	Send(msg []byte) error
}

type entry struct {
	identity domain.Identity
	conns    map[string]Conn
	since    time.Time
}

// Registry maps identities to their live connections.
// An identity is present iff it owns at least one connection.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Register adds conn to the identity's set. It reports whether the identity
// was offline before the call.
func (r *Registry) Register(id domain.Identity, conn Conn) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id.ID]
	if !ok {
		e = &entry{identity: id, conns: make(map[string]Conn), since: r.now()}
		r.entries[id.ID] = e
	}
	e.conns[conn.ID()] = conn
	return !ok
}

// Deregister removes exactly conn. It reports whether the identity has no
// connection left. Removing an unknown connection is a no-op.
func (r *Registry) Deregister(id domain.Identity, conn Conn) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id.ID]
	if !ok {
		return false
	}
	if _, ok := e.conns[conn.ID()]; !ok {
		return false
	}
	delete(e.conns, conn.ID())
	if len(e.conns) == 0 {
		delete(r.entries, id.ID)
		return true
	}
	return false
}

// IsOnline reports whether the user owns at least one live connection
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[userID]
	return ok
}

// Route returns every live connection of the user, nil when offline
func (r *Registry) Route(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[userID]
	if !ok {
		return nil
	}
	return lo.Values(e.conns)
}

// Others returns every connection owned by an identity other than userID
func (r *Registry) Others(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.entries))
	for uid, e := range r.entries {
		if uid == userID {
			continue
		}
		for _, c := range e.conns {
			conns = append(conns, c)
		}
	}
	return conns
}

// ListOnline returns the ids of every online identity, sorted
func (r *Registry) ListOnline() []string {
	r.mu.RLock()
	ids := lo.Keys(r.entries)
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Connections returns how many live connections the user owns
func (r *Registry) Connections(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[userID]; ok {
		return len(e.conns)
	}
	return 0
}

// OnlineSince returns when the user's current online period started
func (r *Registry) OnlineSince(userID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[userID]; ok {
		return e.since, true
	}
	return time.Time{}, false
}

// Count returns the number of online identities
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
