package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"social-chat/internal/domain"
	"social-chat/internal/media"
	"social-chat/internal/models"
	"social-chat/internal/repositories"
)

const (
	DefaultSearchLimit = 20
	minSearchLength    = 1
)

// ProfileWriter stores the avatar URL on the user directory.
type ProfileWriter interface {
	SetProfilePicture(ctx context.Context, userID int, url string) error
}

// PostService records posts with up to media.MaxPostFiles attachments.
type PostService struct {
	Posts  repositories.PostRepository
	Media  Uploader
	Events EventPublisher
	Log    logrus.FieldLogger
}

func (s *PostService) CreatePost(ctx context.Context, authorID int, text string, files []media.File) (models.Post, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(files) == 0 {
		return models.Post{}, domain.Invalid("text", "text is required if no media is provided")
	}

	stored, err := s.Media.Upload(ctx, authorID, files, media.MaxPostFiles)
	if err != nil {
		return models.Post{}, err
	}
	post, err := s.Posts.CreatePost(ctx, authorID, text, stored)
	if err != nil {
		s.Media.Discard(stored)
		return models.Post{}, err
	}
	publish(ctx, s.Events, s.Log, Event{Type: EventPostCreated, PostID: post.ID, ActorID: authorID})
	return post, nil
}

type ProfileService struct {
	Users    ProfileWriter
	Media    Uploader
	Profiles UserDirectory
}

// UpdateProfilePicture uploads exactly one image and stores its URL.
func (s *ProfileService) UpdateProfilePicture(ctx context.Context, userID int, file *media.File) (models.User, error) {
	if file == nil {
		return models.User{}, domain.Invalid("profile_picture", "an image is required")
	}
	if kind, ok := models.MediaTypeFor(strings.ToLower(file.ContentType)); !ok || kind != models.MediaImage {
		return models.User{}, domain.Invalid("profile_picture", "profile picture must be an image")
	}

	stored, err := s.Media.Upload(ctx, userID, []media.File{*file}, media.MaxAvatarFiles)
	if err != nil {
		return models.User{}, err
	}
	if err := s.Users.SetProfilePicture(ctx, userID, stored[0].URL); err != nil {
		s.Media.Discard(stored)
		return models.User{}, err
	}
	return lookupUser(ctx, s.Profiles, userID)
}

// UserFinder matches users by username prefix. Both the local user store and
// the external directory implement it.
type UserFinder interface {
	SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error)
}

// UserSearch looks users up by username prefix.
type UserSearch struct {
	Users UserFinder
}

func (s *UserSearch) SearchUsers(ctx context.Context, requesterID int, query string) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if len(query) < minSearchLength {
		return []models.User{}, nil
	}
	users, err := s.Users.SearchUsers(ctx, query, DefaultSearchLimit+1)
	if err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.ID == requesterID {
			continue
		}
		out = append(out, u)
		if len(out) == DefaultSearchLimit {
			break
		}
	}
	return out, nil
}
