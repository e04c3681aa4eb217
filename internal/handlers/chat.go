package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"social-chat/internal/media"
	"social-chat/internal/service"
	"social-chat/internal/telemetry"
)

// ChatService is the use-case surface the chat endpoints need.
type ChatService interface {
	GetOrCreateChat(ctx context.Context, userID, otherID int) (service.ChatView, error)
	SendMessage(ctx context.Context, chatID, senderID int, in service.SendMessageInput) (service.MessageView, error)
	ListMessages(ctx context.Context, chatID, requesterID, page, limit int) (service.MessagePage, error)
	ListChats(ctx context.Context, userID int) ([]service.ChatListItem, error)
}

// ChatHandler manages private chat endpoints.
type ChatHandler struct {
	chats ChatService
	audit *telemetry.AuditEmitter
	log   logrus.FieldLogger
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chats ChatService, audit *telemetry.AuditEmitter, log logrus.FieldLogger) *ChatHandler {
	return &ChatHandler{chats: chats, audit: audit, log: log}
}

// ListChats returns the chats visible to the authenticated user.
func (h *ChatHandler) ListChats(c *gin.Context) {
	chats, err := h.chats.ListChats(c.Request.Context(), c.GetInt("userID"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// StartChat returns the chat with another user, creating it on first contact.
func (h *ChatHandler) StartChat(c *gin.Context) {
	otherID, ok := pathID(c, "userId", "user id")
	if !ok {
		return
	}

	chat, err := h.chats.GetOrCreateChat(c.Request.Context(), c.GetInt("userID"), otherID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	status := http.StatusOK
	if chat.Created {
		status = http.StatusCreated
		emitAudit(c, h.audit, "INFO", "Chat created")
	}
	c.JSON(status, gin.H{"chat": chat})
}

// GetChatMessages returns one page of messages and marks the chat read.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	chatID, ok := pathID(c, "chatId", "chat id")
	if !ok {
		return
	}
	page, err := queryInt(c, "page", service.DefaultPage)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	limit, err := queryInt(c, "limit", service.DefaultLimit)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	result, err := h.chats.ListMessages(c.Request.Context(), chatID, c.GetInt("userID"), page, limit)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PostChatMessage stores a message from a multipart form with optional media.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	chatID, ok := pathID(c, "chatId", "chat id")
	if !ok {
		return
	}

	files, err := formFiles(c, "media", media.MaxMessageFiles)
	if err != nil {
		writeFormError(c, h.log, err)
		return
	}
	in := service.SendMessageInput{Text: c.PostForm("text")}
	if len(files) == 1 {
		in.Media = &files[0]
	}

	msg, err := h.chats.SendMessage(c.Request.Context(), chatID, c.GetInt("userID"), in)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	emitAudit(c, h.audit, "INFO", "Chat message sent")
	c.JSON(http.StatusCreated, msg)
}
