package repositories

import (
	"context"
	"fmt"

	"social-chat/internal/domain"
	"social-chat/internal/models"
)

var (
	ErrChatNotFound          = fmt.Errorf("chat %w", domain.ErrNotFound)
	ErrMessageNotFound       = fmt.Errorf("message %w", domain.ErrNotFound)
	ErrUserNotFound          = fmt.Errorf("user %w", domain.ErrNotFound)
	ErrFriendRequestNotFound = fmt.Errorf("friend request %w", domain.ErrNotFound)
	ErrFriendRequestExists   = fmt.Errorf("friend request already exists: %w", domain.ErrConflict)
	ErrFriendRequestSettled  = fmt.Errorf("friend request is not pending: %w", domain.ErrConflict)
)

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	// GetOrCreateChat returns the chat for the unordered pair, creating it
	// atomically when absent. The bool reports whether it was created.
	GetOrCreateChat(ctx context.Context, userID, otherUserID int) (models.Chat, bool, error)
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	IsParticipant(ctx context.Context, chatID, userID int) (bool, error)
	ListChats(ctx context.Context, userID int) ([]models.ChatSummary, error)
}

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	// CreateMessage assigns the next per-chat seq and records the sender as a reader.
	CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error)
	// ListMessages returns a newest-first window reversed into chronological order.
	ListMessages(ctx context.Context, chatID, offset, limit int) ([]models.Message, error)
	// MarkChatRead adds readerID to every message in the chat it did not send.
	MarkChatRead(ctx context.Context, chatID, readerID int) (int64, error)
}

// FriendRepository stores directional friend requests.
type FriendRepository interface {
	CreateRequest(ctx context.Context, senderID, receiverID int) (models.FriendRequest, error)
	GetRequest(ctx context.Context, requestID int) (models.FriendRequest, error)
	FindRequest(ctx context.Context, senderID, receiverID int) (models.FriendRequest, error)
	// UpdateStatus moves a pending request addressed to receiverID to status.
	UpdateStatus(ctx context.Context, requestID, receiverID int, status models.FriendRequestStatus) (models.FriendRequest, error)
	AreFriends(ctx context.Context, userA, userB int) (bool, error)
	ListRequests(ctx context.Context, userID int) ([]models.FriendRequest, error)
	ListFriendIDs(ctx context.Context, userID int) ([]int, error)
}

// UserRepository is the local user directory.
type UserRepository interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
	BulkUsers(ctx context.Context, ids []int) ([]models.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error)
	SetProfilePicture(ctx context.Context, userID int, url string) error
}

type PostRepository interface {
	CreatePost(ctx context.Context, authorID int, text string, media []models.Media) (models.Post, error)
}
