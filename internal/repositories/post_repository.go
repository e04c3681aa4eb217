package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"social-chat/internal/models"
)

type PostRepo struct {
	db *sqlx.DB
}

func NewPostRepo(db *sqlx.DB) *PostRepo {
	return &PostRepo{db: db}
}

// CreatePost stores the post and its attachments together.
func (r *PostRepo) CreatePost(ctx context.Context, authorID int, text string, media []models.Media) (models.Post, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Post{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	post := models.Post{AuthorID: authorID, Text: text, Media: media}
	if err := tx.QueryRowxContext(ctx, `INSERT INTO posts (author_id, text) VALUES ($1, $2) RETURNING id, created_at`,
		authorID, text).Scan(&post.ID, &post.CreatedAt); err != nil {
		return models.Post{}, fmt.Errorf("insert post: %w", err)
	}

	for i, m := range media {
		if _, err := tx.ExecContext(ctx, `INSERT INTO post_media (post_id, position, url, media_type, media_key)
            VALUES ($1, $2, $3, $4, $5)`, post.ID, i, m.URL, string(m.Type), m.Key); err != nil {
			return models.Post{}, fmt.Errorf("insert post media: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Post{}, fmt.Errorf("commit: %w", err)
	}
	if post.Media == nil {
		post.Media = []models.Media{}
	}
	return post, nil
}
