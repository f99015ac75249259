package httpx

import (
	"net/http"
	"time"

	"log/slog"
	"github.com/urosperisic/chatapp/internal/app"
	"github.com/urosperisic/chatapp/internal/store"
	"github.com/urosperisic/chatapp/internal/ws"
	"github.com/urosperisic/chatapp/pkg/auth"
	"github.com/urosperisic/chatapp/pkg/metrics"
)

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, logger *slog.Logger, hub *ws.Hub, db *store.Postgres, presence ws.Presence) http.Handler {
	mw := NewMiddleware(cfg)

	j := auth.New(cfg.JWTSecret)
	authAPI := &AuthAPI{DB: db, JWT: j, TTL: time.Duration(cfg.JWTTTLHrs) * time.Hour}
	chatAPI := &ChatAPI{DB: db, Presence: presence, HistoryLimit: cfg.HistoryLimit}

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("GET /api/health", http.HandlerFunc(chatAPI.Health))

	// WebSocket endpoint; the room is part of the address, the token
	// rides in the subprotocol
	mux.Handle("GET /ws/chat/{room}", http.HandlerFunc(hub.ServeWS))

	// Auth endpoints
	mux.Handle("POST /api/auth/register", http.HandlerFunc(authAPI.Register))
	mux.Handle("POST /api/auth/login", http.HandlerFunc(authAPI.Login))
	mux.Handle("GET /api/auth/me", mw.Auth(http.HandlerFunc(authAPI.Me)))

	// Chat read side (JWT-protected)
	mux.Handle("GET /api/chat/rooms", mw.Auth(http.HandlerFunc(chatAPI.ListRooms)))
	mux.Handle("GET /api/chat/rooms/{room}/messages", mw.Auth(http.HandlerFunc(chatAPI.RoomMessages)))
	mux.Handle("GET /api/chat/rooms/{room}/online", mw.Auth(http.HandlerFunc(chatAPI.OnlineUsers)))

	// CORS + rate limit applied globally
	return mw.Wrap(mux)
}
