package ws

import "sync"

// room is the live membership set for one chat room. It guards
// concurrent join/leave/fan-out; message history lives in the store,
// not here.
type room struct {
	mu      sync.RWMutex
	clients map[*Conn]struct{}
}

func newRoom() *room { return &room{clients: map[*Conn]struct{}{}} }

// join adds a connection to the room
func (r *room) join(c *Conn) {
	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()
}

// leave removes a connection; removing twice or a never-joined
// connection is a no-op. Reports whether c was a member.
func (r *room) leave(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; !ok {
		return false
	}
	delete(r.clients, c)
	return true
}

// members returns a point-in-time snapshot of the membership set
func (r *room) members() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// broadcast fans one frame out to the current membership snapshot.
// Delivery is per-member best-effort; one member's full buffer never
// blocks the rest.
func (r *room) broadcast(b []byte) {
	for _, c := range r.members() {
		c.send(b)
	}
}
