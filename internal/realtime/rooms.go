package realtime

import (
	"log"
	"sync"
	"time"
)

// Message is the client-supplied part of a chat broadcast. Any timestamp a
// client sends is discarded; the room stamps its own on the outgoing copy.
type Message struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Kind string `json:"kind"`
}

// Rooms tracks chat-room rosters and fans messages out to members' live
// connections. Each room carries its own lock, so traffic in unrelated
// rooms never contends; the lock is the single sequencing point that gives
// every member the same broadcast order.
type Rooms struct {
	mu       sync.RWMutex
	rooms    map[string]*room
	registry *Registry
}

type room struct {
	mu      sync.Mutex
	members map[string]bool
	deleted bool
}

// NewRooms creates the room membership component. The registry is consulted
// only through its Handles accessor to route outgoing messages.
func NewRooms(registry *Registry) *Rooms {
	r := &Rooms{
		rooms:    make(map[string]*room),
		registry: registry,
	}
	registry.OnDisconnect(r.handleDisconnect)
	return r
}

// Join adds a user to a room, creating the room on first join. Idempotent.
func (r *Rooms) Join(roomID, userID string) error {
	if userID == "" {
		return ErrIdentityRequired
	}

	for {
		r.mu.Lock()
		rm, ok := r.rooms[roomID]
		if !ok {
			rm = &room{members: make(map[string]bool)}
			r.rooms[roomID] = rm
		}
		r.mu.Unlock()

		rm.mu.Lock()
		if rm.deleted {
			// Lost a race with the last leave; the map entry is gone.
			rm.mu.Unlock()
			continue
		}
		rm.members[userID] = true
		rm.mu.Unlock()
		return nil
	}
}

// Leave removes a user from a room. Removing the last member deletes the
// room. Idempotent: leaving a room you are not in (or that does not exist)
// is a no-op.
func (r *Rooms) Leave(roomID, userID string) {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return
	}

	rm.mu.Lock()
	delete(rm.members, userID)
	if len(rm.members) == 0 {
		rm.deleted = true
		delete(r.rooms, roomID)
	}
	rm.mu.Unlock()
	r.mu.Unlock()
}

// IsMember reports whether a user is currently in the room's roster.
func (r *Rooms) IsMember(roomID, userID string) bool {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.members[userID]
}

// Members returns a snapshot of a room's roster.
func (r *Rooms) Members(roomID string) []string {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	members := make([]string, 0, len(rm.members))
	for id := range rm.members {
		members = append(members, id)
	}
	return members
}

// HasRoom reports whether the room currently exists (has members).
func (r *Rooms) HasRoom(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}

// Broadcast fans a message out to every member of the room. The sender must
// be in the roster; otherwise ErrNotAuthorized and nothing is delivered.
// The outgoing copy is stamped with a server-assigned timestamp.
func (r *Rooms) Broadcast(roomID string, sender Identity, msg Message) error {
	if sender.Anonymous() {
		return ErrIdentityRequired
	}

	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return ErrNotAuthorized
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if !rm.members[sender.UserID] {
		return ErrNotAuthorized
	}

	out := map[string]interface{}{
		"type":         "new_message",
		"id":           msg.ID,
		"room_id":      roomID,
		"user_id":      sender.UserID,
		"display_name": sender.DisplayName,
		"text":         msg.Text,
		"kind":         msg.Kind,
		"created_at":   time.Now().UTC().Format(time.RFC3339Nano),
	}
	r.fanOut(rm, out, "")
	return nil
}

// SetTyping notifies the other members of a room that a user started or
// stopped typing. Ephemeral: nothing is retained, a missed event is not
// replayed, and a non-member's typing event is silently dropped.
func (r *Rooms) SetTyping(roomID string, user Identity, isTyping bool) {
	if user.Anonymous() {
		return
	}

	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if !rm.members[user.UserID] {
		return
	}

	eventType := "user_typing"
	if !isTyping {
		eventType = "user_stopped_typing"
	}
	out := map[string]interface{}{
		"type":         eventType,
		"room_id":      roomID,
		"user_id":      user.UserID,
		"display_name": user.DisplayName,
	}
	r.fanOut(rm, out, user.UserID)
}

// fanOut delivers a message to every member's live handles, skipping the
// excluded user. Callers hold rm.mu.
func (r *Rooms) fanOut(rm *room, message map[string]interface{}, exclude string) {
	for userID := range rm.members {
		if userID == exclude {
			continue
		}
		for _, handle := range r.registry.Handles(userID) {
			if err := handle.Send(message); err != nil {
				log.Printf("[ROOMS] send to user %s failed: %v", userID, err)
			}
		}
	}
}

// handleDisconnect removes a user from every room once their last
// connection is gone. Same effect as an explicit leave per room.
func (r *Rooms) handleDisconnect(ev DisconnectEvent) {
	if !ev.LastOfUser || ev.UserID == "" {
		return
	}

	r.mu.RLock()
	ids := make([]string, 0, len(r.rooms))
	for id, rm := range r.rooms {
		rm.mu.Lock()
		member := rm.members[ev.UserID]
		rm.mu.Unlock()
		if member {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Leave(id, ev.UserID)
	}
}
