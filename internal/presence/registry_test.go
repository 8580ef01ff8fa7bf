package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/mmuslimabdulj/goat-whisper/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     string
	userID string
}

func newFakeConn(userID string) *fakeConn {
	return &fakeConn{id: uuid.New().String(), userID: userID}
}

func (c *fakeConn) ID() string          { return c.id }
func (c *fakeConn) UserID() string      { return c.userID }
func (c *fakeConn) Send(_ []byte) error { return nil }

func TestRegistry_RegisterDeregister(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	alice := domain.Identity{ID: "alice"}
	conn := newFakeConn("alice")

	req.False(r.IsOnline("alice"))
	req.True(r.Register(alice, conn), "first connection brings identity online")
	req.True(r.IsOnline("alice"))
	req.Len(r.Route("alice"), 1)
	req.Equal([]string{"alice"}, r.ListOnline())

	_, ok := r.OnlineSince("alice")
	req.True(ok)

	req.True(r.Deregister(alice, conn), "last connection takes identity offline")
	req.False(r.IsOnline("alice"))
	req.Nil(r.Route("alice"))
	req.Empty(r.ListOnline())
	req.Equal(0, r.Count())
}

func TestRegistry_MultipleConnections(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	alice := domain.Identity{ID: "alice"}
	tab1 := newFakeConn("alice")
	tab2 := newFakeConn("alice")

	req.True(r.Register(alice, tab1))
	req.False(r.Register(alice, tab2), "second connection is added, not a new online transition")
	req.Equal(2, r.Connections("alice"))
	req.Len(r.Route("alice"), 2)
	req.Equal(1, r.Count())

	req.False(r.Deregister(alice, tab1), "identity still owns tab2")
	req.True(r.IsOnline("alice"))
	req.Equal([]Conn{tab2}, r.Route("alice"))

	req.True(r.Deregister(alice, tab2))
	req.False(r.IsOnline("alice"))
}

func TestRegistry_DeregisterUnknown(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	alice := domain.Identity{ID: "alice"}
	known := newFakeConn("alice")

	req.False(r.Deregister(alice, known), "unknown identity")

	r.Register(alice, known)
	req.False(r.Deregister(alice, newFakeConn("alice")), "unknown connection")
	req.True(r.IsOnline("alice"))

	req.True(r.Deregister(alice, known))
	req.False(r.Deregister(alice, known), "double deregister is a no-op")
}

func TestRegistry_Others(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	a1, a2 := newFakeConn("alice"), newFakeConn("alice")
	b1 := newFakeConn("bob")
	c1 := newFakeConn("carol")

	r.Register(domain.Identity{ID: "alice"}, a1)
	r.Register(domain.Identity{ID: "alice"}, a2)
	r.Register(domain.Identity{ID: "bob"}, b1)
	r.Register(domain.Identity{ID: "carol"}, c1)

	others := r.Others("alice")
	req.ElementsMatch([]Conn{b1, c1}, others)
	req.Equal([]string{"alice", "bob", "carol"}, r.ListOnline())
}

// Presence must agree with the connection set at every observable point.
func TestRegistry_ConcurrentInvariant(t *testing.T) {
	r := NewRegistry()
	const users = 20
	const connsPerUser = 10

	var wg sync.WaitGroup
	stop := make(chan struct{})

	observerErr := make(chan error, 1)
	observerDone := make(chan struct{})
	go func() {
		defer close(observerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			for u := 0; u < users; u++ {
				uid := fmt.Sprintf("user-%d", u)
				// an online identity always routes to at least one connection
				if conns := r.Route(uid); conns != nil && len(conns) == 0 {
					observerErr <- fmt.Errorf("%s online with no connections", uid)
					return
				}
			}
		}
	}()

	for u := 0; u < users; u++ {
		id := domain.Identity{ID: fmt.Sprintf("user-%d", u)}
		for c := 0; c < connsPerUser; c++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				conn := newFakeConn(id.ID)
				for i := 0; i < 50; i++ {
					r.Register(id, conn)
					r.Deregister(id, conn)
				}
			}()
		}
	}
	wg.Wait()
	close(stop)
	<-observerDone

	select {
	case err := <-observerErr:
		t.Fatal(err)
	default:
	}

	require.Equal(t, 0, r.Count(), "every connection was deregistered")
	for u := 0; u < users; u++ {
		uid := fmt.Sprintf("user-%d", u)
		require.False(t, r.IsOnline(uid))
		require.Empty(t, r.Route(uid))
	}
}

// Exactly one Register reports first and exactly one Deregister reports last
// per online period, even under contention.
func TestRegistry_TransitionsAreBalanced(t *testing.T) {
	r := NewRegistry()
	id := domain.Identity{ID: "alice"}

	var mu sync.Mutex
	firsts, lasts := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := newFakeConn("alice")
			f := r.Register(id, conn)
			l := r.Deregister(id, conn)
			mu.Lock()
			if f {
				firsts++
			}
			if l {
				lasts++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, firsts, lasts)
	require.GreaterOrEqual(t, firsts, 1)
	require.False(t, r.IsOnline("alice"))
}
