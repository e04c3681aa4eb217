package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"social-chat/internal/models"
	"social-chat/internal/observability"
)

const sendBufferSize = 32

// Hub keeps chat rooms of connected clients. Delivery is best-effort: a
// client whose buffer is full is disconnected.
type Hub struct {
	mu    sync.RWMutex
	rooms map[int]map[*Client]struct{}
	log   logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		rooms: make(map[int]map[*Client]struct{}),
		log:   log,
	}
}

// Join adds c to the room of chatID. Callers check participation first.
func (h *Hub) Join(chatID int, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	room, ok := h.rooms[chatID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[chatID] = room
	}
	room[c] = struct{}{}
	c.rooms[chatID] = struct{}{}
}

func (h *Hub) Leave(chatID int, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(chatID, c)
}

func (h *Hub) leaveLocked(chatID int, c *Client) {
	if room, ok := h.rooms[chatID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, chatID)
		}
	}
	delete(c.rooms, chatID)
}

// Remove drops c from every room and closes its send channel. Safe to call
// more than once.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	if c.closed {
		return
	}
	for chatID := range c.rooms {
		h.leaveLocked(chatID, c)
	}
	c.closed = true
	close(c.send)
}

// Joined reports whether c is in the room of chatID.
func (h *Hub) Joined(chatID int, c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[chatID]
	return ok
}

// InRoom reports whether any socket of userID has joined chatID.
func (h *Hub) InRoom(chatID, userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[chatID] {
		if c.info.UserID == userID {
			return true
		}
	}
	return false
}

// BroadcastMessage tells the room a message was stored.
func (h *Hub) BroadcastMessage(chatID int, msg models.Message) {
	h.broadcast(chatID, nil, models.ChatEvent{
		Event:     models.EventReceiveMessage,
		ChatID:    chatID,
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
		Message:   &msg,
	})
}

// BroadcastRead tells the room readerID has read the chat.
func (h *Hub) BroadcastRead(chatID, readerID int) {
	h.broadcast(chatID, nil, models.ChatEvent{
		Event:  models.EventMessagesRead,
		ChatID: chatID,
		UserID: readerID,
	})
}

// Relay forwards a client frame to everyone else in the room.
func (h *Hub) Relay(chatID int, from *Client, ev models.ChatEvent) {
	h.broadcast(chatID, from, ev)
}

// SendTo writes a frame to a single client.
func (h *Hub) SendTo(c *Client, ev models.ChatEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).Error("encode websocket event")
		return
	}
	h.mu.Lock()
	var dropped []*Client
	if !c.closed {
		dropped = h.deliverLocked([]*Client{c}, payload)
	}
	h.mu.Unlock()
	h.reportDropped(ev.ChatID, dropped)
}

func (h *Hub) broadcast(chatID int, except *Client, ev models.ChatEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).Error("encode websocket event")
		return
	}

	h.mu.Lock()
	targets := make([]*Client, 0, len(h.rooms[chatID]))
	for c := range h.rooms[chatID] {
		if c != except {
			targets = append(targets, c)
		}
	}
	dropped := h.deliverLocked(targets, payload)
	h.mu.Unlock()
	h.reportDropped(chatID, dropped)
}

// deliverLocked enqueues payload and removes clients whose buffer is full.
func (h *Hub) deliverLocked(targets []*Client, payload []byte) []*Client {
	var dropped []*Client
	for _, c := range targets {
		select {
		case c.send <- payload:
		default:
			h.removeLocked(c)
			dropped = append(dropped, c)
		}
	}
	return dropped
}

func (h *Hub) reportDropped(chatID int, dropped []*Client) {
	for _, c := range dropped {
		observability.IncWSEvent("ws_error")
		_ = observability.PublishEvent(context.Background(), observability.WSRoutingKey,
			observability.WSEvent("ws_error", c.info.ConnID, chatID, c.info.ConnectedAt, "send buffer full", c.info.identity()),
			c.info.headers())
		h.log.WithFields(logrus.Fields{"conn_id": c.info.ConnID, "chat_id": chatID}).Warn("dropping slow websocket client")
	}
}
