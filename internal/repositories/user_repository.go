package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"social-chat/internal/models"
)

const userColumns = `id, username, full_name, profile_picture`

type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return u, err
}

// BulkUsers returns the users that exist among ids; missing ids are skipped.
func (r *UserRepo) BulkUsers(ctx context.Context, ids []int) ([]models.User, error) {
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	id64s := make(pq.Int64Array, 0, len(ids))
	for _, id := range ids {
		id64s = append(id64s, int64(id))
	}
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE id = ANY($1) ORDER BY id`, id64s)
	return users, err
}

func (r *UserRepo) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	users := []models.User{}
	query = strings.TrimSpace(query)
	if query == "" {
		return users, nil
	}
	pattern := escapeLike(query) + "%"
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users
        WHERE username ILIKE $1 OR full_name ILIKE $1
        ORDER BY username LIMIT $2`, pattern, limit)
	return users, err
}

func (r *UserRepo) SetProfilePicture(ctx context.Context, userID int, url string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET profile_picture=$2 WHERE id=$1`, userID, url)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
