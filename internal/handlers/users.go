package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"social-chat/internal/models"
)

type UserSearcher interface {
	SearchUsers(ctx context.Context, requesterID int, query string) ([]models.User, error)
}

type UserHandler struct {
	users UserSearcher
	log   logrus.FieldLogger
}

func NewUserHandler(users UserSearcher, log logrus.FieldLogger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

// Search matches users by name, excluding the caller.
func (h *UserHandler) Search(c *gin.Context) {
	users, err := h.users.SearchUsers(c.Request.Context(), c.GetInt("userID"), c.Query("q"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
