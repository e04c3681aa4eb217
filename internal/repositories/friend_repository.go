package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"social-chat/internal/models"
)

const friendRequestColumns = `id, sender_id, receiver_id, status, created_at, updated_at`

const pqUniqueViolation = "23505"

// FriendRepo is the sqlx implementation of FriendRepository.
type FriendRepo struct {
	db *sqlx.DB
}

func NewFriendRepo(db *sqlx.DB) *FriendRepo {
	return &FriendRepo{db: db}
}

func (r *FriendRepo) CreateRequest(ctx context.Context, senderID, receiverID int) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := r.db.GetContext(ctx, &req, `INSERT INTO friend_requests (sender_id, receiver_id)
        VALUES ($1, $2) RETURNING `+friendRequestColumns, senderID, receiverID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return models.FriendRequest{}, ErrFriendRequestExists
		}
		return models.FriendRequest{}, err
	}
	return req, nil
}

func (r *FriendRepo) GetRequest(ctx context.Context, requestID int) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := r.db.GetContext(ctx, &req, `SELECT `+friendRequestColumns+` FROM friend_requests WHERE id=$1`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FriendRequest{}, ErrFriendRequestNotFound
	}
	return req, err
}

func (r *FriendRepo) FindRequest(ctx context.Context, senderID, receiverID int) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := r.db.GetContext(ctx, &req, `SELECT `+friendRequestColumns+` FROM friend_requests
        WHERE sender_id=$1 AND receiver_id=$2`, senderID, receiverID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FriendRequest{}, ErrFriendRequestNotFound
	}
	return req, err
}

// UpdateStatus only transitions requests that are still pending.
func (r *FriendRepo) UpdateStatus(ctx context.Context, requestID, receiverID int, status models.FriendRequestStatus) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := r.db.GetContext(ctx, &req, `UPDATE friend_requests SET status=$3, updated_at=NOW()
        WHERE id=$1 AND receiver_id=$2 AND status='pending'
        RETURNING `+friendRequestColumns, requestID, receiverID, status)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FriendRequest{}, ErrFriendRequestSettled
	}
	return req, err
}

func (r *FriendRepo) AreFriends(ctx context.Context, userA, userB int) (bool, error) {
	var ok bool
	err := r.db.GetContext(ctx, &ok, `SELECT EXISTS(SELECT 1 FROM friend_requests
        WHERE status='accepted'
        AND ((sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)))`, userA, userB)
	return ok, err
}

// ListRequests returns requests the user sent or received, newest first.
func (r *FriendRepo) ListRequests(ctx context.Context, userID int) ([]models.FriendRequest, error) {
	reqs := []models.FriendRequest{}
	err := r.db.SelectContext(ctx, &reqs, `SELECT `+friendRequestColumns+` FROM friend_requests
        WHERE sender_id=$1 OR receiver_id=$1
        ORDER BY created_at DESC, id DESC`, userID)
	return reqs, err
}

func (r *FriendRepo) ListFriendIDs(ctx context.Context, userID int) ([]int, error) {
	ids := []int{}
	err := r.db.SelectContext(ctx, &ids, `SELECT CASE WHEN sender_id=$1 THEN receiver_id ELSE sender_id END
        FROM friend_requests
        WHERE status='accepted' AND (sender_id=$1 OR receiver_id=$1)
        ORDER BY updated_at DESC`, userID)
	return ids, err
}
