package models

import (
	"strings"
	"time"
)

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
)

// MediaTypeFor classifies a MIME type by its top-level prefix.
func MediaTypeFor(mime string) (MediaType, bool) {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return MediaImage, true
	case strings.HasPrefix(mime, "video/"):
		return MediaVideo, true
	case strings.HasPrefix(mime, "audio/"):
		return MediaAudio, true
	}
	return "", false
}

// Media is a stored attachment.
type Media struct {
	URL  string    `json:"url" bson:"url"`
	Type MediaType `json:"type" bson:"type"`
	Key  string    `json:"-" bson:"key,omitempty"`
}

// Message represents a chat message. Seq is assigned per chat and orders
// messages created within the same instant.
type Message struct {
	ID        int       `json:"id" bson:"_id"`
	ChatID    int       `json:"chat_id" bson:"chat_id"`
	SenderID  int       `json:"sender_id" bson:"sender_id"`
	Seq       int64     `json:"seq" bson:"seq"`
	Text      string    `json:"text,omitempty" bson:"text,omitempty"`
	Media     *Media    `json:"media,omitempty" bson:"media,omitempty"`
	ReadBy    IDSet     `json:"read_by" bson:"read_by"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

func (m Message) ReadByUser(userID int) bool {
	return m.ReadBy.Contains(userID)
}

// NewMessage is the input for persisting a message.
type NewMessage struct {
	ChatID   int
	SenderID int
	Text     string
	Media    *Media
}
