package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"social-chat/internal/models"
	"social-chat/internal/service"
	"social-chat/internal/telemetry"
)

type FriendService interface {
	SendRequest(ctx context.Context, senderID, receiverID int) (models.FriendRequest, error)
	Accept(ctx context.Context, requestID, receiverID int) (models.FriendRequest, models.Chat, error)
	Reject(ctx context.Context, requestID, receiverID int) (models.FriendRequest, error)
	ListRequests(ctx context.Context, userID int) ([]service.FriendRequestView, error)
	ListFriends(ctx context.Context, userID int) ([]models.User, error)
}

// FriendHandler serves friend requests and the friend list.
type FriendHandler struct {
	friends FriendService
	audit   *telemetry.AuditEmitter
	log     logrus.FieldLogger
}

func NewFriendHandler(friends FriendService, audit *telemetry.AuditEmitter, log logrus.FieldLogger) *FriendHandler {
	return &FriendHandler{friends: friends, audit: audit, log: log}
}

func (h *FriendHandler) SendRequest(c *gin.Context) {
	receiverID, ok := pathID(c, "id", "user id")
	if !ok {
		return
	}
	req, err := h.friends.SendRequest(c.Request.Context(), c.GetInt("userID"), receiverID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	emitAudit(c, h.audit, "INFO", "Friend request sent")
	c.JSON(http.StatusCreated, gin.H{"request": req})
}

func (h *FriendHandler) Accept(c *gin.Context) {
	requestID, ok := pathID(c, "requestId", "request id")
	if !ok {
		return
	}
	req, chat, err := h.friends.Accept(c.Request.Context(), requestID, c.GetInt("userID"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	emitAudit(c, h.audit, "INFO", "Friend request accepted")
	c.JSON(http.StatusOK, gin.H{"request": req, "chat_id": chat.ID})
}

func (h *FriendHandler) Reject(c *gin.Context) {
	requestID, ok := pathID(c, "requestId", "request id")
	if !ok {
		return
	}
	req, err := h.friends.Reject(c.Request.Context(), requestID, c.GetInt("userID"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	emitAudit(c, h.audit, "INFO", "Friend request rejected")
	c.JSON(http.StatusOK, gin.H{"request": req})
}

// ListRequests returns pending requests received by the caller.
func (h *FriendHandler) ListRequests(c *gin.Context) {
	reqs, err := h.friends.ListRequests(c.Request.Context(), c.GetInt("userID"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

func (h *FriendHandler) ListFriends(c *gin.Context) {
	friends, err := h.friends.ListFriends(c.Request.Context(), c.GetInt("userID"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}
