package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"social-chat/internal/models"
)

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

type messageRow struct {
	ID        int            `db:"id"`
	ChatID    int            `db:"chat_id"`
	SenderID  int            `db:"sender_id"`
	Seq       int64          `db:"seq"`
	Text      string         `db:"text"`
	MediaURL  sql.NullString `db:"media_url"`
	MediaType sql.NullString `db:"media_type"`
	MediaKey  sql.NullString `db:"media_key"`
	ReadBy    pq.Int64Array  `db:"read_by"`
	CreatedAt time.Time      `db:"created_at"`
}

func (row messageRow) toModel() models.Message {
	readBy := make(models.IDSet, 0, len(row.ReadBy))
	for _, id := range row.ReadBy {
		readBy = readBy.Add(int(id))
	}
	return models.Message{
		ID:        row.ID,
		ChatID:    row.ChatID,
		SenderID:  row.SenderID,
		Seq:       row.Seq,
		Text:      row.Text,
		Media:     mediaFromColumns(row.MediaURL, row.MediaType, row.MediaKey),
		ReadBy:    readBy,
		CreatedAt: row.CreatedAt,
	}
}

func mediaFromColumns(url, kind, key sql.NullString) *models.Media {
	if !url.Valid || url.String == "" {
		return nil
	}
	return &models.Media{URL: url.String, Type: models.MediaType(kind.String), Key: key.String}
}

// CreateMessage bumps the chat sequence and inserts the message and the
// sender's read marker in one transaction.
func (r *MessageRepo) CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var mediaURL, mediaType, mediaKey any
	if in.Media != nil {
		mediaURL, mediaType, mediaKey = in.Media.URL, string(in.Media.Type), in.Media.Key
	}

	var row messageRow
	err = tx.QueryRowxContext(ctx, `WITH s AS (
            UPDATE chats SET last_seq = last_seq + 1, last_message_at = NOW()
            WHERE id = $1
            RETURNING last_seq
        )
        INSERT INTO messages (chat_id, sender_id, seq, text, media_url, media_type, media_key)
        SELECT $1, $2, s.last_seq, $3, $4, $5, $6 FROM s
        RETURNING id, chat_id, sender_id, seq, text, media_url, media_type, media_key, created_at`,
		in.ChatID, in.SenderID, in.Text, mediaURL, mediaType, mediaKey).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrChatNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id) VALUES ($1, $2)`, row.ID, in.SenderID); err != nil {
		return models.Message{}, fmt.Errorf("insert sender read: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, fmt.Errorf("commit: %w", err)
	}

	row.ReadBy = pq.Int64Array{int64(in.SenderID)}
	return row.toModel(), nil
}

// ListMessages returns one page of a chat in chronological order.
func (r *MessageRepo) ListMessages(ctx context.Context, chatID, offset, limit int) ([]models.Message, error) {
	query := `SELECT m.id, m.chat_id, m.sender_id, m.seq, m.text, m.media_url, m.media_type, m.media_key, m.created_at,
            COALESCE(array_agg(mr.user_id ORDER BY mr.user_id) FILTER (WHERE mr.user_id IS NOT NULL), '{}') AS read_by
        FROM messages m
        LEFT JOIN message_reads mr ON mr.message_id = m.id
        WHERE m.chat_id = $1
        GROUP BY m.id
        ORDER BY m.seq DESC
        OFFSET $2 LIMIT $3`

	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query, chatID, offset, limit); err != nil {
		return nil, err
	}

	msgs := make([]models.Message, len(rows))
	for i, row := range rows {
		msgs[len(rows)-1-i] = row.toModel()
	}
	return msgs, nil
}

// MarkChatRead records readerID against every message in the chat sent by
// someone else. Existing markers are left untouched.
func (r *MessageRepo) MarkChatRead(ctx context.Context, chatID, readerID int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id)
        SELECT id, $2 FROM messages WHERE chat_id = $1 AND sender_id <> $2
        ON CONFLICT (message_id, user_id) DO NOTHING`, chatID, readerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
