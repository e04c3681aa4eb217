package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"social-chat/internal/middleware"
	"social-chat/internal/models"
	"social-chat/internal/observability"
)

// TokenParser resolves a bearer token to a user id.
type TokenParser interface {
	ParseToken(token string) (int, error)
}

// RoomAuthorizer decides who may join a chat room.
type RoomAuthorizer interface {
	CanJoin(ctx context.Context, chatID, userID int) (bool, error)
}

// ChatWebSocketHandler serves the single realtime endpoint.
type ChatWebSocketHandler struct {
	hub      *Hub
	tokens   TokenParser
	rooms    RoomAuthorizer
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewChatWebSocketHandler(hub *Hub, tokens TokenParser, rooms RoomAuthorizer, log logrus.FieldLogger) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{
		hub:    hub,
		tokens: tokens,
		rooms:  rooms,
		log:    log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// AllowOrigins restricts browser upgrades to the given origins. An empty list
// allows any origin.
func (h *ChatWebSocketHandler) AllowOrigins(origins []string) {
	h.upgrader.CheckOrigin = middleware.OriginAllowed(origins)
}

// Handle authenticates, upgrades and serves the connection until it closes.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := observability.StartSpan(c.Request.Context(), "ws.handshake")
	defer span.End()

	token := middleware.TokenFromRequest(c.Request)
	userID, err := h.tokens.ParseToken(token)
	if token == "" || err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromContext(c),
		TraceID:     observability.TraceID(ctx),
		ConnectedAt: time.Now(),
	}
	client := newClient(conn, info)
	h.lifecycle(ctx, "ws_connect", client, "")
	observability.IncWSActive()

	go client.writePump()
	go func() {
		err := client.readPump(func(data []byte) { h.dispatch(client, data) })
		reason := err.Error()
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			h.lifecycle(context.Background(), "ws_error", client, reason)
		}
		h.hub.Remove(client)
		observability.DecWSActive()
		h.lifecycle(context.Background(), "ws_disconnect", client, reason)
	}()
}

func (h *ChatWebSocketHandler) dispatch(client *Client, data []byte) {
	var ev models.ChatEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		h.reject(client, 0, "invalid frame")
		return
	}
	if ev.ChatID <= 0 {
		h.reject(client, 0, "chat_id is required")
		return
	}

	switch ev.Event {
	case models.EventJoinChat:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		ok, err := h.rooms.CanJoin(ctx, ev.ChatID, client.UserID())
		cancel()
		if err != nil {
			h.log.WithError(err).WithField("chat_id", ev.ChatID).Error("websocket join check failed")
			h.reject(client, ev.ChatID, "could not join chat")
			return
		}
		if !ok {
			h.reject(client, ev.ChatID, "not authorized for chat")
			return
		}
		h.hub.Join(ev.ChatID, client)
		observability.IncWSEvent(models.EventJoinChat)
		h.hub.SendTo(client, models.ChatEvent{Event: models.EventJoined, ChatID: ev.ChatID})

	case models.EventLeaveChat:
		h.hub.Leave(ev.ChatID, client)

	case models.EventTyping:
		if !h.requireJoined(client, ev.ChatID) {
			return
		}
		typing := ev.IsTyping != nil && *ev.IsTyping
		h.hub.Relay(ev.ChatID, client, models.ChatEvent{
			Event:    models.EventTyping,
			ChatID:   ev.ChatID,
			UserID:   client.UserID(),
			IsTyping: &typing,
		})

	case models.EventSendMessage:
		if !h.requireJoined(client, ev.ChatID) {
			return
		}
		// Only ids are forwarded; receivers re-fetch from the store.
		h.hub.Relay(ev.ChatID, client, models.ChatEvent{
			Event:     models.EventReceiveMessage,
			ChatID:    ev.ChatID,
			MessageID: ev.MessageID,
			SenderID:  client.UserID(),
		})
		observability.IncWSEvent(models.EventSendMessage)

	default:
		h.reject(client, ev.ChatID, "unknown event")
	}
}

func (h *ChatWebSocketHandler) requireJoined(client *Client, chatID int) bool {
	if h.hub.Joined(chatID, client) {
		return true
	}
	h.reject(client, chatID, "join the chat first")
	return false
}

func (h *ChatWebSocketHandler) reject(client *Client, chatID int, reason string) {
	h.hub.SendTo(client, models.ChatEvent{Event: models.EventError, ChatID: chatID, Error: reason})
}

func (h *ChatWebSocketHandler) lifecycle(ctx context.Context, name string, client *Client, reason string) {
	observability.IncWSEvent(name)
	info := client.info
	_ = observability.PublishEvent(ctx, observability.WSRoutingKey,
		observability.WSEvent(name, info.ConnID, 0, info.ConnectedAt, reason, info.identity()),
		info.headers())
}
