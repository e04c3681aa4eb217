package handlers

import (
	"context"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type SubscriptionSaver interface {
	Save(ctx context.Context, userID int, sub webpush.Subscription) error
}

// PushHandler registers browser push subscriptions.
type PushHandler struct {
	subs      SubscriptionSaver
	publicKey string
	log       logrus.FieldLogger
}

func NewPushHandler(subs SubscriptionSaver, publicKey string, log logrus.FieldLogger) *PushHandler {
	return &PushHandler{subs: subs, publicKey: publicKey, log: log}
}

func (h *PushHandler) PublicKey(c *gin.Context) {
	if h.publicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push notifications are disabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.publicKey})
}

func (h *PushHandler) Subscribe(c *gin.Context) {
	if h.subs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push notifications are disabled"})
		return
	}
	var sub webpush.Subscription
	if err := c.ShouldBindJSON(&sub); err != nil || sub.Endpoint == "" || sub.Keys.Auth == "" || sub.Keys.P256dh == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription"})
		return
	}
	if err := h.subs.Save(c.Request.Context(), c.GetInt("userID"), sub); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusCreated)
}
