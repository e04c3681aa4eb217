package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"social-chat/internal/models"
)

const chatColumns = `id, user1_id, user2_id, last_seq, last_message_at, created_at`

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// GetOrCreateChat inserts the sorted pair and falls back to the existing row
// when the unique key already holds it.
func (r *ChatRepo) GetOrCreateChat(ctx context.Context, userID, otherUserID int) (models.Chat, bool, error) {
	user1, user2 := models.SortedPair(userID, otherUserID)

	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `INSERT INTO chats (user1_id, user2_id) VALUES ($1, $2)
        ON CONFLICT (user1_id, user2_id) DO NOTHING
        RETURNING `+chatColumns, user1, user2)
	if err == nil {
		return chat, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, false, err
	}

	err = r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE user1_id=$1 AND user2_id=$2`, user1, user2)
	if err != nil {
		return models.Chat{}, false, err
	}
	return chat, false, nil
}

// IsParticipant checks whether a user belongs to the chat.
func (r *ChatRepo) IsParticipant(ctx context.Context, chatID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chats WHERE id=$1 AND (user1_id=$2 OR user2_id=$2))`, chatID, userID)
	return exists, err
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

type chatSummaryRow struct {
	models.Chat
	LastID        sql.NullInt64  `db:"lm_id"`
	LastSenderID  sql.NullInt64  `db:"lm_sender_id"`
	LastSeqNo     sql.NullInt64  `db:"lm_seq"`
	LastText      sql.NullString `db:"lm_text"`
	LastMediaURL  sql.NullString `db:"lm_media_url"`
	LastMediaType sql.NullString `db:"lm_media_type"`
	LastCreatedAt sql.NullTime   `db:"lm_created_at"`
	UnreadCount   int            `db:"unread_count"`
}

// ListChats returns the user's chats with a last-message preview, most recent first.
func (r *ChatRepo) ListChats(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	query := `SELECT c.id, c.user1_id, c.user2_id, c.last_seq, c.last_message_at, c.created_at,
            lm.id AS lm_id, lm.sender_id AS lm_sender_id, lm.seq AS lm_seq, lm.text AS lm_text,
            lm.media_url AS lm_media_url, lm.media_type AS lm_media_type, lm.created_at AS lm_created_at,
            (SELECT COUNT(*) FROM messages m
                LEFT JOIN message_reads mr ON mr.message_id = m.id AND mr.user_id = $1
                WHERE m.chat_id = c.id AND m.sender_id <> $1 AND mr.message_id IS NULL) AS unread_count
        FROM chats c
        LEFT JOIN LATERAL (
            SELECT id, sender_id, seq, text, media_url, media_type, created_at
            FROM messages WHERE chat_id = c.id ORDER BY seq DESC LIMIT 1
        ) lm ON TRUE
        WHERE c.user1_id=$1 OR c.user2_id=$1
        ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC`

	var rows []chatSummaryRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}

	result := make([]models.ChatSummary, 0, len(rows))
	for _, row := range rows {
		summary := models.ChatSummary{
			Chat:        row.Chat,
			FriendID:    row.Chat.Other(userID),
			UnreadCount: row.UnreadCount,
		}
		if row.LastID.Valid {
			last := &models.Message{
				ID:        int(row.LastID.Int64),
				ChatID:    row.Chat.ID,
				SenderID:  int(row.LastSenderID.Int64),
				Seq:       row.LastSeqNo.Int64,
				Text:      row.LastText.String,
				Media:     mediaFromColumns(row.LastMediaURL, row.LastMediaType, sql.NullString{}),
				CreatedAt: timeOrZero(row.LastCreatedAt),
			}
			summary.LastMessage = last
		}
		result = append(result, summary)
	}
	return result, nil
}

func timeOrZero(t sql.NullTime) time.Time {
	if t.Valid {
		return t.Time
	}
	return time.Time{}
}
