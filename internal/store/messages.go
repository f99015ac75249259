package store

import (
	"context"
	"strings"
)

// AppendMessage persists one message and returns the stored record
// with its id and server-assigned timestamp. Empty or whitespace-only
// content is rejected with ErrEmptyMessage before touching the database.
func (p *Postgres) AppendMessage(ctx context.Context, roomID, userID, content string) (Message, error) {
	if strings.TrimSpace(content) == "" {
		return Message{}, ErrEmptyMessage
	}

	row := p.pool.QueryRow(ctx, `
		INSERT INTO messages (room_id, user_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, room_id, user_id, content, created_at
	`, roomID, userID, content)

	var m Message
	if err := row.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Content, &m.Timestamp); err != nil {
		return Message{}, err
	}
	return m, nil
}

// RecentMessages returns up to limit most-recent messages for a room,
// re-ordered oldest first. An unknown room or a room without messages
// yields an empty slice, not an error.
func (p *Postgres) RecentMessages(ctx context.Context, roomName string, limit int) ([]Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT m.id, m.room_id, m.user_id, u.username, m.content, m.created_at
		FROM messages m
		JOIN rooms r ON r.id = m.room_id
		JOIN users u ON u.id = m.user_id
		WHERE r.name = $1
		ORDER BY m.id DESC
		LIMIT $2
	`, roomName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Username, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query is newest-first for the LIMIT; flip to chronological.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
