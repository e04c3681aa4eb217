package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"social-chat/internal/media"
	"social-chat/internal/models"
	"social-chat/internal/telemetry"
)

type PostService interface {
	CreatePost(ctx context.Context, authorID int, text string, files []media.File) (models.Post, error)
}

type ProfileService interface {
	UpdateProfilePicture(ctx context.Context, userID int, file *media.File) (models.User, error)
}

// MediaHandler serves the upload-backed endpoints outside of chats.
type MediaHandler struct {
	posts    PostService
	profiles ProfileService
	audit    *telemetry.AuditEmitter
	log      logrus.FieldLogger
}

func NewMediaHandler(posts PostService, profiles ProfileService, audit *telemetry.AuditEmitter, log logrus.FieldLogger) *MediaHandler {
	return &MediaHandler{posts: posts, profiles: profiles, audit: audit, log: log}
}

// CreatePost accepts text plus up to five files under the "media" field.
func (h *MediaHandler) CreatePost(c *gin.Context) {
	files, err := formFiles(c, "media", media.MaxPostFiles)
	if err != nil {
		writeFormError(c, h.log, err)
		return
	}

	post, err := h.posts.CreatePost(c.Request.Context(), c.GetInt("userID"), c.PostForm("text"), files)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	emitAudit(c, h.audit, "INFO", "Post created")
	c.JSON(http.StatusCreated, gin.H{"post": post})
}

func (h *MediaHandler) UpdateProfilePicture(c *gin.Context) {
	files, err := formFiles(c, "profile_picture", media.MaxAvatarFiles)
	if err != nil {
		writeFormError(c, h.log, err)
		return
	}
	var file *media.File
	if len(files) == 1 {
		file = &files[0]
	}

	user, err := h.profiles.UpdateProfilePicture(c.Request.Context(), c.GetInt("userID"), file)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
