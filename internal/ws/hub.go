package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"nhooyr.io/websocket"

	"log/slog"
	"github.com/urosperisic/chatapp/internal/store"
	"github.com/urosperisic/chatapp/pkg/metrics"
)

// ChatStore is the slice of the message store the hub needs: room
// get-or-create and the durable append that precedes every broadcast.
type ChatStore interface {
	EnsureRoom(ctx context.Context, name string) (store.Room, error)
	AppendMessage(ctx context.Context, roomID, userID, content string) (store.Message, error)
}

// Hub is the process-wide room registry plus broadcast bus. It maps
// room names to live membership sets, created lazily on first join,
// and fans events out to them. Built once at startup and handed to the
// router; Shutdown drops all members.
type Hub struct {
	log      *slog.Logger
	verifier TokenVerifier
	db       ChatStore
	presence Presence // may be nil

	mu    sync.RWMutex
	rooms map[string]*room // live membership sets by room name
}

// NewHub sets up the hub with the verifier, store and presence tracker
func NewHub(logger *slog.Logger, verifier TokenVerifier, db ChatStore, presence Presence) *Hub {
	return &Hub{log: logger, verifier: verifier, db: db, presence: presence, rooms: map[string]*room{}}
}

// join adds c to the room's membership set, creating the set if
// needed. The insert happens under the registry lock so it cannot
// interleave with the empty-set pruning in leave: either the insert
// lands before the prune's size check (and the set survives), or the
// prune already ran and a fresh set is created here. Either way the
// joined conn stays reachable through the registry.
func (h *Hub) join(name string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rm := h.rooms[name]
	if rm == nil {
		rm = newRoom()
		h.rooms[name] = rm
	}
	rm.join(c)
}

// lookup returns the membership set without creating it
func (h *Hub) lookup(name string) *room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[name]
}

// Publish delivers an event to every current member of the room,
// best-effort per member. Events published in sequence reach every
// member in that sequence (per-member FIFO buffers).
func (h *Hub) Publish(roomName string, ev Event) {
	rm := h.lookup(roomName)
	if rm == nil {
		return
	}
	rm.broadcast(ev.wire())
}

// leave removes c from the room's membership set, idempotently, and
// prunes the in-memory set once empty. The persisted room is never
// deleted. Reports whether c was still a member.
func (h *Hub) leave(roomName string, c *Conn) bool {
	rm := h.lookup(roomName)
	if rm == nil {
		return false
	}
	left := rm.leave(c)
	if rm.size() == 0 {
		h.mu.Lock()
		if cur := h.rooms[roomName]; cur == rm && cur.size() == 0 {
			delete(h.rooms, roomName)
		}
		h.mu.Unlock()
	}
	return left
}

// Shutdown closes every live connection and drops all membership sets.
// No persistence impact.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = map[string]*room{}
	h.mu.Unlock()

	for _, rm := range rooms {
		for _, c := range rm.members() {
			rm.leave(c)
			c.close(websocket.StatusGoingAway, "server shutdown")
		}
	}
}

// ServeWS handles a new /ws/chat/{room} connection: accept the
// transport, authenticate, join, then pump inbound messages until the
// peer goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roomName := strings.TrimSpace(r.PathValue("room"))
	if roomName == "" {
		http.Error(w, "room required", http.StatusBadRequest)
		return
	}

	// Credential travels in the negotiated subprotocol, not the body.
	token := bearerFromSubprotocol(r.Header.Get("Sec-WebSocket-Protocol"))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:    []string{"authorization"},
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.log.Error("ws.accept", "err", err)
		return
	}

	// Authenticating: bad or missing token closes the transport with
	// no explanation payload and no room side effects.
	ident := Identity{}
	if token != "" {
		ident, err = h.verifier.Verify(ctx, token)
	}
	if token == "" || err != nil {
		metrics.AuthRejected.Inc()
		h.log.Debug("ws.rejected", "room", roomName)
		_ = conn.Close(websocket.StatusPolicyViolation, "")
		return
	}

	// Room row must exist before any message can reference it.
	roomRec, err := h.db.EnsureRoom(ctx, roomName)
	if err != nil {
		h.log.Error("ws.ensure_room", "room", roomName, "err", err)
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}

	c := newConn(conn, roomName, ident)
	metrics.ConnectionsActive.Inc()
	h.log.Info("ws.joined", "room", roomName, "user", ident.Username, "conn", c.id)

	// Announce to the members present before us, then join; the joiner
	// does not receive its own join event.
	h.Publish(roomName, PresenceEvent{Username: ident.Username, Joined: true})
	h.join(roomName, c)
	if h.presence != nil {
		h.presence.Add(ctx, roomName, ident.Username)
	}

	go c.writeLoop(ctx)

	defer func() {
		// Reached only after a successful join, so the departure
		// event fires exactly once and never for rejected conns.
		h.leave(roomName, c)
		if h.presence != nil {
			h.presence.Remove(context.WithoutCancel(ctx), roomName, ident.Username)
		}
		h.Publish(roomName, PresenceEvent{Username: ident.Username, Joined: false})
		c.close(websocket.StatusNormalClosure, "bye")
		metrics.ConnectionsActive.Dec()
		h.log.Info("ws.left", "room", roomName, "user", ident.Username, "conn", c.id)
	}()

	for {
		text, ok := c.readText(ctx)
		if !ok {
			return
		}
		if strings.TrimSpace(text) == "" {
			continue // not an error, not broadcast
		}

		// Persist first: a concurrent history read must never miss a
		// message that was already fanned out.
		msg, err := h.db.AppendMessage(ctx, roomRec.ID, ident.ID, text)
		if err != nil {
			if errors.Is(err, store.ErrEmptyMessage) {
				continue
			}
			// Closing beats broadcasting unpersisted content.
			h.log.Error("ws.append", "room", roomName, "err", err)
			c.close(websocket.StatusInternalError, "")
			return
		}

		h.Publish(roomName, MessageEvent{
			Content:   msg.Content,
			Username:  ident.Username,
			Timestamp: msg.Timestamp,
		})
		metrics.MessagesBroadcast.WithLabelValues(roomName).Inc()
	}
}
