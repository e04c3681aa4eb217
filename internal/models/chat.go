package models

import "time"

// Chat represents a private chat between exactly two users.
// User1ID is always the smaller id so the pair doubles as a unique key.
type Chat struct {
	ID            int        `db:"id" json:"id" bson:"_id"`
	User1ID       int        `db:"user1_id" json:"user1_id" bson:"user1_id"`
	User2ID       int        `db:"user2_id" json:"user2_id" bson:"user2_id"`
	LastSeq       int64      `db:"last_seq" json:"last_seq" bson:"last_seq"`
	LastMessageAt *time.Time `db:"last_message_at" json:"last_message_at,omitempty" bson:"last_message_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at" bson:"created_at"`
}

// Participants returns both participant ids in key order.
func (c Chat) Participants() []int {
	return []int{c.User1ID, c.User2ID}
}

func (c Chat) HasParticipant(userID int) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// Other returns the participant that is not userID.
func (c Chat) Other(userID int) int {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// SortedPair orders two user ids the way chats are keyed.
func SortedPair(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

// ChatSummary is one row of a user's chat list.
type ChatSummary struct {
	Chat        Chat     `json:"chat"`
	FriendID    int      `json:"friend_id"`
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}
