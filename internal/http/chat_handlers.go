package httpx

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/urosperisic/chatapp/internal/store"
	"github.com/urosperisic/chatapp/internal/ws"
)

// ChatStore is the read side of the message store the REST surface
// queries; the same storage the hub writes to.
type ChatStore interface {
	ListActiveRooms(ctx context.Context) ([]store.RoomWithCount, error)
	RecentMessages(ctx context.Context, roomName string, limit int) ([]store.Message, error)
	Ping(ctx context.Context) error
	Version(ctx context.Context) (string, error)
}

type ChatAPI struct {
	DB           ChatStore
	Presence     ws.Presence // may be nil
	HistoryLimit int
}

type roomDTO struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int64     `json:"message_count"`
}

type messageDTO struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// ListRooms returns all active rooms with message counts
func (a *ChatAPI) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.DB.ListActiveRooms(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rooms")
		return
	}

	out := make([]roomDTO, 0, len(rooms))
	for _, rm := range rooms {
		out = append(out, roomDTO{
			ID: rm.ID, Name: rm.Name, IsActive: rm.IsActive,
			CreatedAt: rm.CreatedAt, MessageCount: rm.MessageCount,
		})
	}
	writeSuccess(w, http.StatusOK, "Active chat rooms", out)
}

// RoomMessages returns the last messages of a room in chronological
// order. A room with no history yields an empty list, not an error.
func (a *ChatAPI) RoomMessages(w http.ResponseWriter, r *http.Request) {
	roomName := r.PathValue("room")
	if roomName == "" {
		writeError(w, http.StatusBadRequest, "Room name required")
		return
	}

	limit := a.HistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	msgs, err := a.DB.RecentMessages(r.Context(), roomName, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}

	out := make([]messageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageDTO{
			ID: m.ID, Username: m.Username, Content: m.Content,
			Timestamp: m.Timestamp.Format(time.RFC3339Nano),
		})
	}
	writeSuccess(w, http.StatusOK, fmt.Sprintf("Messages for room %s", roomName), out)
}

// OnlineUsers lists usernames currently connected to a room
func (a *ChatAPI) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	roomName := r.PathValue("room")
	if roomName == "" {
		writeError(w, http.StatusBadRequest, "Room name required")
		return
	}
	if a.Presence == nil {
		writeSuccess(w, http.StatusOK, fmt.Sprintf("Online users in %s", roomName), []string{})
		return
	}

	users, err := a.Presence.Online(r.Context(), roomName)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Presence unavailable")
		return
	}
	if users == nil {
		users = []string{}
	}
	writeSuccess(w, http.StatusOK, fmt.Sprintf("Online users in %s", roomName), users)
}

// Health reports server + database status
func (a *ChatAPI) Health(w http.ResponseWriter, r *http.Request) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "unknown"
	}

	if err := a.DB.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Health check failed")
		return
	}
	version, _ := a.DB.Version(r.Context())

	writeSuccess(w, http.StatusOK, "Server is healthy", map[string]any{
		"environment": env,
		"database": map[string]string{
			"status":  "connected",
			"type":    "PostgreSQL",
			"version": version,
		},
	})
}
