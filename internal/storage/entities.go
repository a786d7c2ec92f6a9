package storage

import "time"

type Room struct {
	ID        int64     `json:"id"`
	Name      string    `json:"room_name"`
	Code      string    `json:"room_code"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	ID         int64     `json:"id"`
	RoomID     int64     `json:"room_id"`
	Name       string    `json:"user_name"`
	ProfilePic string    `json:"profile_pic,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Message is a room-wide message with its author joined in for display.
type Message struct {
	ID         int64     `json:"id"`
	RoomID     int64     `json:"room_id"`
	AuthorID   int64     `json:"user_id"`
	AuthorName string    `json:"user_name"`
	AuthorPic  string    `json:"profile_pic,omitempty"`
	Text       string    `json:"message"`
	SentAt     time.Time `json:"sent_at"`
}

// Participant is one distinct author of room messages.
type Participant struct {
	UserID      int64     `json:"user_id"`
	UserName    string    `json:"user_name"`
	ProfilePic  string    `json:"profile_pic,omitempty"`
	FirstSentAt time.Time `json:"first_sent_at"`
}

type PersonalMessage struct {
	ID     int64     `json:"id"`
	RoomID int64     `json:"room_id"`
	FromID int64     `json:"from_id"`
	ToID   int64     `json:"to_id"`
	Text   string    `json:"message"`
	SentAt time.Time `json:"sent_at"`
}
