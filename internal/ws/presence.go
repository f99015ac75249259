package ws

import (
	"context"

	"github.com/redis/go-redis/v9"
	"log/slog"
	"github.com/urosperisic/chatapp/internal/app"
)

// Presence tracks which usernames are online per room for the
// read-side online-users endpoint. Best-effort: failures are logged
// and never affect the chat path.
type Presence interface {
	Add(ctx context.Context, room, username string)
	Remove(ctx context.Context, room, username string)
	Online(ctx context.Context, room string) ([]string, error)
}

type RedisPresence struct {
	rdb *redis.Client
	log *slog.Logger
}

// NewRedisPresence connects to redis and verifies connectivity
func NewRedisPresence(ctx context.Context, cfg app.Config, log *slog.Logger) (*RedisPresence, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisPresence{rdb: rdb, log: log}, nil
}

func (p *RedisPresence) Add(ctx context.Context, room, username string) {
	if err := p.rdb.SAdd(ctx, key(room), username).Err(); err != nil {
		p.log.Warn("presence.add", "room", room, "err", err)
	}
}

func (p *RedisPresence) Remove(ctx context.Context, room, username string) {
	if err := p.rdb.SRem(ctx, key(room), username).Err(); err != nil {
		p.log.Warn("presence.remove", "room", room, "err", err)
	}
}

// Online lists usernames currently joined to a room
func (p *RedisPresence) Online(ctx context.Context, room string) ([]string, error) {
	return p.rdb.SMembers(ctx, key(room)).Result()
}

// Close shuts down the redis connection
func (p *RedisPresence) Close() { _ = p.rdb.Close() }

// key namespacing for per-room presence sets
func key(room string) string { return "online:" + room }
