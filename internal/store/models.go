package store

import "time"

type User struct {
	ID        string
	Username  string
	Email     string
	CreatedAt time.Time
}

type Room struct {
	ID        string
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

// RoomWithCount is a Room plus how many messages it holds,
// as returned by ListActiveRooms.
type RoomWithCount struct {
	Room
	MessageCount int64
}

type Message struct {
	ID        int64
	RoomID    string
	UserID    string
	Username  string
	Content   string
	Timestamp time.Time
}
