package store

import (
	"context"
	"strings"
)

// EnsureRoom gets or creates the room with the given name.
// Concurrent calls for the same name yield the same row; the unique
// index on rooms.name guarantees no duplicates.
func (p *Postgres) EnsureRoom(ctx context.Context, name string) (Room, error) {
	name = strings.TrimSpace(name)

	// ON CONFLICT DO NOTHING returns no row when the room already
	// exists, so always re-select.
	_, err := p.pool.Exec(ctx, `
		INSERT INTO rooms (name)
		VALUES ($1)
		ON CONFLICT (name) DO NOTHING
	`, name)
	if err != nil {
		return Room{}, err
	}

	row := p.pool.QueryRow(ctx, `
		SELECT id, name, is_active, created_at
		FROM rooms
		WHERE name = $1
	`, name)

	var r Room
	if err := row.Scan(&r.ID, &r.Name, &r.IsActive, &r.CreatedAt); err != nil {
		return Room{}, err
	}
	return r, nil
}

// ListActiveRooms returns active rooms with their message counts,
// newest room first.
func (p *Postgres) ListActiveRooms(ctx context.Context) ([]RoomWithCount, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT r.id, r.name, r.is_active, r.created_at, COUNT(m.id)
		FROM rooms r
		LEFT JOIN messages m ON m.room_id = r.id
		WHERE r.is_active
		GROUP BY r.id, r.name, r.is_active, r.created_at
		ORDER BY r.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoomWithCount
	for rows.Next() {
		var rc RoomWithCount
		if err := rows.Scan(&rc.ID, &rc.Name, &rc.IsActive, &rc.CreatedAt, &rc.MessageCount); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}
