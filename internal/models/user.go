package models

import "time"

// User is the profile data the chat subsystem reads from the user directory.
type User struct {
	ID             int    `db:"id" json:"id" bson:"_id"`
	Username       string `db:"username" json:"username" bson:"username"`
	FullName       string `db:"full_name" json:"full_name" bson:"full_name"`
	ProfilePicture string `db:"profile_picture" json:"profile_picture,omitempty" bson:"profile_picture,omitempty"`
}

type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestRejected FriendRequestStatus = "rejected"
)

// FriendRequest is directional; friendship is an accepted request in either direction.
type FriendRequest struct {
	ID         int                 `db:"id" json:"id" bson:"_id"`
	SenderID   int                 `db:"sender_id" json:"sender_id" bson:"sender_id"`
	ReceiverID int                 `db:"receiver_id" json:"receiver_id" bson:"receiver_id"`
	Status     FriendRequestStatus `db:"status" json:"status" bson:"status"`
	CreatedAt  time.Time           `db:"created_at" json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time           `db:"updated_at" json:"updated_at" bson:"updated_at"`
}

// Post carries up to five attachments.
type Post struct {
	ID        int       `json:"id" bson:"_id"`
	AuthorID  int       `json:"author_id" bson:"author_id"`
	Text      string    `json:"text,omitempty" bson:"text,omitempty"`
	Media     []Media   `json:"media" bson:"media"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
