package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"social-chat/internal/domain"
	"social-chat/internal/media"
	"social-chat/internal/models"
	"social-chat/internal/observability"
	"social-chat/internal/repositories"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// ChatView is a chat with both participant profiles.
type ChatView struct {
	ID            int           `json:"id"`
	Participants  []models.User `json:"participants"`
	LastMessageAt *time.Time    `json:"last_message_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	Created       bool          `json:"-"`
}

// MessageView is a stored message with its sender's profile.
type MessageView struct {
	models.Message
	Sender *models.User `json:"sender,omitempty"`
}

type MessagePage struct {
	Chat     ChatView      `json:"chat"`
	Messages []MessageView `json:"messages"`
	Page     int           `json:"page"`
	Limit    int           `json:"limit"`
	HasMore  bool          `json:"has_more"`
}

// ChatListItem is one row of the chat list.
type ChatListItem struct {
	ID            int             `json:"id"`
	Friend        models.User     `json:"friend"`
	LastMessage   *models.Message `json:"last_message,omitempty"`
	UnreadCount   int             `json:"unread_count"`
	LastMessageAt *time.Time      `json:"last_message_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type SendMessageInput struct {
	Text  string
	Media *media.File
}

// ChatService implements chat get-or-create, sending and reading. Notifier,
// Push and Events are optional.
type ChatService struct {
	Chats    repositories.ChatRepository
	Messages repositories.MessageRepository
	Users    UserDirectory
	Gate     FriendGate
	Media    Uploader
	Notifier Notifier
	Push     PushSender
	Events   EventPublisher
	Log      logrus.FieldLogger
}

// GetOrCreateChat returns the chat between userID and otherID, creating it
// on first contact. Only friends may start a chat.
func (s *ChatService) GetOrCreateChat(ctx context.Context, userID, otherID int) (ChatView, error) {
	ctx, span := observability.StartSpan(ctx, "chat.get_or_create")
	defer span.End()

	if userID == otherID {
		return ChatView{}, domain.Invalid("userId", "cannot start a chat with yourself")
	}
	if _, err := lookupUser(ctx, s.Users, otherID); err != nil {
		return ChatView{}, err
	}

	friends, err := s.Gate.AreFriends(ctx, userID, otherID)
	if err != nil {
		return ChatView{}, err
	}
	if !friends {
		return ChatView{}, domain.Forbidden("you need to be friends to start a chat")
	}

	chat, created, err := s.Chats.GetOrCreateChat(ctx, userID, otherID)
	if err != nil {
		return ChatView{}, err
	}
	view, err := s.chatView(ctx, chat)
	if err != nil {
		return ChatView{}, err
	}
	view.Created = created

	if created {
		observability.IncChatCreated()
		publish(ctx, s.Events, s.Log, Event{Type: EventChatCreated, ChatID: chat.ID, ActorID: userID, SubjectID: otherID})
	}
	return view, nil
}

// SendMessage stores a message from senderID. Attachments are uploaded
// before anything is written; realtime, event and push side effects follow
// the commit and never fail the call.
func (s *ChatService) SendMessage(ctx context.Context, chatID, senderID int, in SendMessageInput) (MessageView, error) {
	ctx, span := observability.StartSpan(ctx, "chat.send_message")
	defer span.End()

	text := strings.TrimSpace(in.Text)
	if text == "" && in.Media == nil {
		return MessageView{}, domain.Invalid("text", "text is required if no media is provided")
	}

	chat, err := s.Chats.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return MessageView{}, domain.NotFound("chat not found")
		}
		return MessageView{}, err
	}
	if !chat.HasParticipant(senderID) {
		return MessageView{}, domain.Forbidden("you are not a participant of this chat")
	}

	var attachment *models.Media
	var stored []models.Media
	if in.Media != nil {
		if s.Media == nil {
			return MessageView{}, domain.Invalid("media", "media uploads are disabled")
		}
		stored, err = s.Media.Upload(ctx, senderID, []media.File{*in.Media}, media.MaxMessageFiles)
		if err != nil {
			return MessageView{}, err
		}
		attachment = &stored[0]
		observability.ObserveMediaUpload(string(attachment.Type), in.Media.Size)
	}

	msg, err := s.Messages.CreateMessage(ctx, models.NewMessage{
		ChatID:   chatID,
		SenderID: senderID,
		Text:     text,
		Media:    attachment,
	})
	if err != nil {
		if len(stored) > 0 {
			s.Media.Discard(stored)
		}
		return MessageView{}, err
	}

	sender, err := s.Users.GetUser(ctx, senderID)
	if err != nil {
		s.logger().WithError(err).WithField("user_id", senderID).Warn("sender profile lookup failed")
		sender = models.User{ID: senderID}
	}

	mediaType := ""
	if msg.Media != nil {
		mediaType = string(msg.Media.Type)
	}
	observability.IncMessageSent(mediaType)

	if s.Notifier != nil {
		s.Notifier.BroadcastMessage(chatID, msg)
	}
	publish(ctx, s.Events, s.Log, Event{Type: EventMessageCreated, ChatID: chatID, MessageID: msg.ID, ActorID: senderID})

	recipient := chat.Other(senderID)
	if s.Push != nil && (s.Notifier == nil || !s.Notifier.InRoom(chatID, recipient)) {
		s.Push.NotifyMessage(recipient, sender, msg)
	}

	return MessageView{Message: msg, Sender: &sender}, nil
}

// ListMessages marks the chat read for requesterID and returns one page,
// newest page first, each page in chronological order.
func (s *ChatService) ListMessages(ctx context.Context, chatID, requesterID, page, limit int) (MessagePage, error) {
	ctx, span := observability.StartSpan(ctx, "chat.list_messages")
	defer span.End()

	fields := map[string]string{}
	if page < 1 {
		fields["page"] = "must be at least 1"
	}
	if limit < 1 {
		fields["limit"] = "must be at least 1"
	}
	if len(fields) > 0 {
		return MessagePage{}, domain.NewValidationError(fields)
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if page-1 > math.MaxInt/limit {
		return MessagePage{}, domain.Invalid("page", "is too large")
	}

	chat, err := s.Chats.GetChat(ctx, chatID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return MessagePage{}, err
	}
	if err != nil || !chat.HasParticipant(requesterID) {
		return MessagePage{}, domain.NotFound("chat not found or access denied")
	}

	marked, err := s.Messages.MarkChatRead(ctx, chatID, requesterID)
	if err != nil {
		return MessagePage{}, err
	}

	msgs, err := s.Messages.ListMessages(ctx, chatID, (page-1)*limit, limit)
	if err != nil {
		return MessagePage{}, err
	}

	view, err := s.chatView(ctx, chat)
	if err != nil {
		return MessagePage{}, err
	}
	profiles := make(map[int]models.User, len(view.Participants))
	for _, u := range view.Participants {
		profiles[u.ID] = u
	}

	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		mv := MessageView{Message: m}
		if u, ok := profiles[m.SenderID]; ok {
			mv.Sender = &u
		}
		out = append(out, mv)
	}

	if marked > 0 {
		if s.Notifier != nil {
			s.Notifier.BroadcastRead(chatID, requesterID)
		}
		publish(ctx, s.Events, s.Log, Event{Type: EventMessagesRead, ChatID: chatID, ActorID: requesterID, Count: marked})
	}

	return MessagePage{
		Chat:     view,
		Messages: out,
		Page:     page,
		Limit:    limit,
		HasMore:  len(msgs) == limit,
	}, nil
}

// ListChats returns userID's chats, most recently active first.
func (s *ChatService) ListChats(ctx context.Context, userID int) ([]ChatListItem, error) {
	summaries, err := s.Chats.ListChats(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(summaries))
	for _, cs := range summaries {
		ids = append(ids, cs.FriendID)
	}
	profiles, err := profilesByID(ctx, s.Users, ids)
	if err != nil {
		return nil, err
	}

	items := make([]ChatListItem, 0, len(summaries))
	for _, cs := range summaries {
		friend, ok := profiles[cs.FriendID]
		if !ok {
			friend = models.User{ID: cs.FriendID}
		}
		items = append(items, ChatListItem{
			ID:            cs.Chat.ID,
			Friend:        friend,
			LastMessage:   cs.LastMessage,
			UnreadCount:   cs.UnreadCount,
			LastMessageAt: cs.Chat.LastMessageAt,
			CreatedAt:     cs.Chat.CreatedAt,
		})
	}
	return items, nil
}

// CanJoin reports whether userID may join the realtime room of chatID.
func (s *ChatService) CanJoin(ctx context.Context, chatID, userID int) (bool, error) {
	return s.Chats.IsParticipant(ctx, chatID, userID)
}

func (s *ChatService) chatView(ctx context.Context, chat models.Chat) (ChatView, error) {
	profiles, err := profilesByID(ctx, s.Users, chat.Participants())
	if err != nil {
		return ChatView{}, err
	}
	participants := make([]models.User, 0, 2)
	for _, id := range chat.Participants() {
		u, ok := profiles[id]
		if !ok {
			u = models.User{ID: id}
		}
		participants = append(participants, u)
	}
	return ChatView{
		ID:            chat.ID,
		Participants:  participants,
		LastMessageAt: chat.LastMessageAt,
		CreatedAt:     chat.CreatedAt,
	}, nil
}

func (s *ChatService) logger() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}
