package realtime

import (
	"context"
	"crypto/rand"
	"log"
	"math/big"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Conn is one live transport connection known to the registry.
type Conn struct {
	ID       string
	Identity Identity
	sender   Sender
}

// Send pushes a message to the connection's transport handle.
func (c *Conn) Send(message interface{}) error {
	return c.sender.Send(message)
}

// DisconnectEvent is the signal emitted when a connection is unregistered.
// LastOfUser is true when the connection was the user's final live one;
// room and queue cleanup key off it so multi-device users are not evicted
// while another device is still connected.
type DisconnectEvent struct {
	ConnID     string
	UserID     string
	LastOfUser bool
}

// Registry is the source of truth for who is online. It owns Connection
// lifetime and emits a disconnect signal instead of calling into the room
// or matchmaking components directly.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	byUser map[string]map[string]*Conn
	subs   []func(DisconnectEvent)

	rdb *redis.Client // optional presence mirror
}

// NewRegistry creates an empty connection registry. rdb may be nil; when
// set, online counts are mirrored to Redis for other services to read.
func NewRegistry(rdb *redis.Client) *Registry {
	return &Registry{
		conns:  make(map[string]*Conn),
		byUser: make(map[string]map[string]*Conn),
		rdb:    rdb,
	}
}

// OnDisconnect subscribes fn to disconnect signals. Subscriptions are made
// once at startup, before any connection registers.
func (r *Registry) OnDisconnect(fn func(DisconnectEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

// Register adds a live connection. Registration never fails; an anonymous
// identity is permitted. A user may hold several concurrent connections.
func (r *Registry) Register(identity Identity, sender Sender) *Conn {
	conn := &Conn{
		ID:       "CONN_" + randomID(12),
		Identity: identity,
		sender:   sender,
	}

	r.mu.Lock()
	r.conns[conn.ID] = conn
	if !identity.Anonymous() {
		if r.byUser[identity.UserID] == nil {
			r.byUser[identity.UserID] = make(map[string]*Conn)
		}
		r.byUser[identity.UserID][conn.ID] = conn
	}
	r.mu.Unlock()

	if r.rdb != nil && !identity.Anonymous() {
		if err := r.rdb.Incr(context.Background(), "online:"+identity.UserID).Err(); err != nil {
			log.Printf("[REGISTRY] presence incr failed for user %s: %v", identity.UserID, err)
		}
	}

	return conn
}

// Unregister removes a connection and emits the disconnect signal. Unknown
// IDs are a no-op, so transport teardown paths can call it unconditionally.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connID)

	event := DisconnectEvent{ConnID: connID, UserID: conn.Identity.UserID}
	if !conn.Identity.Anonymous() {
		set := r.byUser[conn.Identity.UserID]
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byUser, conn.Identity.UserID)
			event.LastOfUser = true
		}
	}
	subs := r.subs
	r.mu.Unlock()

	if r.rdb != nil && !conn.Identity.Anonymous() {
		ctx := context.Background()
		key := "online:" + conn.Identity.UserID
		if n, err := r.rdb.Decr(ctx, key).Result(); err == nil && n <= 0 {
			r.rdb.Del(ctx, key)
		}
	}

	for _, fn := range subs {
		fn(event)
	}
}

// Handles returns every live transport handle for a user. The slice is a
// copy; callers may push to it without holding registry state.
func (r *Registry) Handles(userID string) []Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	if len(set) == 0 {
		return nil
	}
	handles := make([]Sender, 0, len(set))
	for _, conn := range set {
		handles = append(handles, conn)
	}
	return handles
}

// IsOnline reports whether a user has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Lookup returns the connection for an ID, if still registered.
func (r *Registry) Lookup(connID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	return conn, ok
}

const idCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomID(length int) string {
	result := make([]byte, length)
	for i := range result {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(idCharset))))
		result[i] = idCharset[n.Int64()]
	}
	return string(result)
}
