package models

// Realtime event names shared by the hub and its clients.
const (
	EventJoinChat       = "join_chat"
	EventLeaveChat      = "leave_chat"
	EventTyping         = "typing"
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
	EventMessagesRead   = "messages_read"
	EventJoined         = "joined"
	EventError          = "error"
)

// ChatEvent is the frame exchanged over the chat websocket in both directions.
// Payloads relayed between clients carry ids only; the message itself is
// always re-fetched from the store.
type ChatEvent struct {
	Event     string   `json:"event"`
	ChatID    int      `json:"chat_id,omitempty"`
	MessageID int      `json:"message_id,omitempty"`
	SenderID  int      `json:"sender_id,omitempty"`
	UserID    int      `json:"user_id,omitempty"`
	IsTyping  *bool    `json:"is_typing,omitempty"`
	Message   *Message `json:"message,omitempty"`
	Error     string   `json:"error,omitempty"`
}
