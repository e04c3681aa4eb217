// Package service holds the chat, friendship and media use cases. Handlers
// and the websocket hub call into it; it owns every authorization decision.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"social-chat/internal/domain"
	"social-chat/internal/media"
	"social-chat/internal/models"
)

// Routing keys for domain events.
const (
	EventChatCreated           = "chat.created"
	EventMessageCreated        = "message.created"
	EventMessagesRead          = "messages.read"
	EventFriendRequestSent     = "friend_request.sent"
	EventFriendRequestAccepted = "friend_request.accepted"
	EventFriendRequestRejected = "friend_request.rejected"
	EventPostCreated           = "post.created"
)

// UserDirectory resolves profiles. Satisfied by the local users table and
// the gRPC user client.
type UserDirectory interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
	BulkUsers(ctx context.Context, ids []int) ([]models.User, error)
}

type FriendGate interface {
	AreFriends(ctx context.Context, userA, userB int) (bool, error)
}

// Uploader is the server stage of the media pipeline.
type Uploader interface {
	Upload(ctx context.Context, uploaderID int, files []media.File, maxFiles int) ([]models.Media, error)
	Discard(items []models.Media)
}

// Notifier pushes realtime hints to sockets joined to a chat room.
type Notifier interface {
	BroadcastMessage(chatID int, msg models.Message)
	BroadcastRead(chatID, readerID int)
	InRoom(chatID, userID int) bool
}

type PushSender interface {
	NotifyMessage(recipientID int, sender models.User, msg models.Message)
}

type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Event is the body of every domain event.
type Event struct {
	Type       string    `json:"type"`
	ChatID     int       `json:"chat_id,omitempty"`
	MessageID  int       `json:"message_id,omitempty"`
	RequestID  int       `json:"request_id,omitempty"`
	PostID     int       `json:"post_id,omitempty"`
	ActorID    int       `json:"actor_id"`
	SubjectID  int       `json:"subject_id,omitempty"`
	Count      int64     `json:"count,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func publish(ctx context.Context, events EventPublisher, log logrus.FieldLogger, ev Event) {
	if events == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := events.Publish(ctx, ev.Type, ev); err != nil && log != nil {
		log.WithError(err).WithField("event", ev.Type).Warn("event publish failed")
	}
}

// lookupUser maps a missing profile to a caller-facing NotFound.
func lookupUser(ctx context.Context, users UserDirectory, userID int) (models.User, error) {
	u, err := users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return models.User{}, domain.NotFound("user not found")
		}
		return models.User{}, err
	}
	return u, nil
}

func profilesByID(ctx context.Context, users UserDirectory, ids []int) (map[int]models.User, error) {
	out := make(map[int]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	list, err := users.BulkUsers(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, err
	}
	for _, u := range list {
		out[u.ID] = u
	}
	return out, nil
}

func uniqueIDs(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
