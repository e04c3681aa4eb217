// Package memory is an in-process implementation of every repository
// interface. It backs tests and the memory store driver.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"social-chat/internal/models"
	"social-chat/internal/repositories"
)

type pairKey struct{ a, b int }

// Store keeps all state behind a single mutex.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	users    map[int]models.User
	chats    map[int]models.Chat
	chatKeys map[pairKey]int
	messages map[int][]models.Message
	requests map[int]models.FriendRequest
	posts    map[int]models.Post

	nextUser, nextChat, nextMessage, nextRequest, nextPost int
}

func NewStore() *Store {
	return &Store{
		now:      time.Now,
		users:    make(map[int]models.User),
		chats:    make(map[int]models.Chat),
		chatKeys: make(map[pairKey]int),
		messages: make(map[int][]models.Message),
		requests: make(map[int]models.FriendRequest),
		posts:    make(map[int]models.Post),
	}
}

// SetClock overrides the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddUser registers a user and returns it with its assigned id.
func (s *Store) AddUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		s.nextUser++
		u.ID = s.nextUser
	} else if u.ID > s.nextUser {
		s.nextUser = u.ID
	}
	s.users[u.ID] = u
	return u
}

var (
	_ repositories.ChatRepository    = (*Store)(nil)
	_ repositories.MessageRepository = (*Store)(nil)
	_ repositories.FriendRepository  = (*Store)(nil)
	_ repositories.UserRepository    = (*Store)(nil)
	_ repositories.PostRepository    = (*Store)(nil)
)

func (s *Store) GetOrCreateChat(_ context.Context, userID, otherUserID int) (models.Chat, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, b := models.SortedPair(userID, otherUserID)
	if id, ok := s.chatKeys[pairKey{a, b}]; ok {
		return s.chats[id], false, nil
	}
	s.nextChat++
	chat := models.Chat{ID: s.nextChat, User1ID: a, User2ID: b, CreatedAt: s.now()}
	s.chats[chat.ID] = chat
	s.chatKeys[pairKey{a, b}] = chat.ID
	return chat, true, nil
}

func (s *Store) GetChat(_ context.Context, chatID int) (models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	return chat, nil
}

func (s *Store) IsParticipant(_ context.Context, chatID, userID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	return ok && chat.HasParticipant(userID), nil
}

func (s *Store) ListChats(_ context.Context, userID int) ([]models.ChatSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.ChatSummary{}
	for _, chat := range s.chats {
		if !chat.HasParticipant(userID) {
			continue
		}
		summary := models.ChatSummary{Chat: chat, FriendID: chat.Other(userID)}
		msgs := s.messages[chat.ID]
		if n := len(msgs); n > 0 {
			last := copyMessage(msgs[n-1])
			summary.LastMessage = &last
		}
		for _, m := range msgs {
			if m.SenderID != userID && !m.ReadBy.Contains(userID) {
				summary.UnreadCount++
			}
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := recency(out[i].Chat), recency(out[j].Chat)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].Chat.ID > out[j].Chat.ID
	})
	return out, nil
}

func recency(c models.Chat) time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

func (s *Store) CreateMessage(_ context.Context, in models.NewMessage) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[in.ChatID]
	if !ok {
		return models.Message{}, repositories.ErrChatNotFound
	}
	now := s.now()
	chat.LastSeq++
	chat.LastMessageAt = &now
	s.chats[chat.ID] = chat

	s.nextMessage++
	msg := models.Message{
		ID:        s.nextMessage,
		ChatID:    in.ChatID,
		SenderID:  in.SenderID,
		Seq:       chat.LastSeq,
		Text:      in.Text,
		ReadBy:    models.NewIDSet(in.SenderID),
		CreatedAt: now,
	}
	if in.Media != nil {
		m := *in.Media
		msg.Media = &m
	}
	s.messages[in.ChatID] = append(s.messages[in.ChatID], msg)
	return copyMessage(msg), nil
}

func (s *Store) ListMessages(_ context.Context, chatID, offset, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[chatID]
	end := len(msgs) - offset
	if offset < 0 || end <= 0 || limit <= 0 {
		return []models.Message{}, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]models.Message, 0, end-start)
	for _, m := range msgs[start:end] {
		out = append(out, copyMessage(m))
	}
	return out, nil
}

func (s *Store) MarkChatRead(_ context.Context, chatID, readerID int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	msgs := s.messages[chatID]
	for i := range msgs {
		if msgs[i].SenderID == readerID || msgs[i].ReadBy.Contains(readerID) {
			continue
		}
		msgs[i].ReadBy = append(models.IDSet(nil), msgs[i].ReadBy...).Add(readerID)
		n++
	}
	return n, nil
}

func copyMessage(m models.Message) models.Message {
	m.ReadBy = append(models.IDSet{}, m.ReadBy...)
	if m.Media != nil {
		media := *m.Media
		m.Media = &media
	}
	return m
}

func (s *Store) CreateRequest(_ context.Context, senderID, receiverID int) (models.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.SenderID == senderID && r.ReceiverID == receiverID {
			return models.FriendRequest{}, repositories.ErrFriendRequestExists
		}
	}
	s.nextRequest++
	now := s.now()
	req := models.FriendRequest{
		ID:         s.nextRequest,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.FriendRequestPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.requests[req.ID] = req
	return req, nil
}

func (s *Store) GetRequest(_ context.Context, requestID int) (models.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return models.FriendRequest{}, repositories.ErrFriendRequestNotFound
	}
	return req, nil
}

func (s *Store) FindRequest(_ context.Context, senderID, receiverID int) (models.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.SenderID == senderID && r.ReceiverID == receiverID {
			return r, nil
		}
	}
	return models.FriendRequest{}, repositories.ErrFriendRequestNotFound
}

func (s *Store) UpdateStatus(_ context.Context, requestID, receiverID int, status models.FriendRequestStatus) (models.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok || req.ReceiverID != receiverID || req.Status != models.FriendRequestPending {
		return models.FriendRequest{}, repositories.ErrFriendRequestSettled
	}
	req.Status = status
	req.UpdatedAt = s.now()
	s.requests[requestID] = req
	return req, nil
}

func (s *Store) AreFriends(_ context.Context, userA, userB int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.Status != models.FriendRequestAccepted {
			continue
		}
		if (r.SenderID == userA && r.ReceiverID == userB) || (r.SenderID == userB && r.ReceiverID == userA) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListRequests(_ context.Context, userID int) ([]models.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.FriendRequest{}
	for _, r := range s.requests {
		if r.SenderID == userID || r.ReceiverID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) ListFriendIDs(_ context.Context, userID int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := []int{}
	for _, r := range s.requests {
		if r.Status != models.FriendRequestAccepted {
			continue
		}
		switch userID {
		case r.SenderID:
			ids = append(ids, r.ReceiverID)
		case r.ReceiverID:
			ids = append(ids, r.SenderID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (s *Store) GetUser(_ context.Context, userID int) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) BulkUsers(_ context.Context, ids []int) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.User{}
	seen := map[int]bool{}
	for _, id := range ids {
		if u, ok := s.users[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SearchUsers(_ context.Context, query string, limit int) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.User{}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return out, nil
	}
	for _, u := range s.users {
		if strings.HasPrefix(strings.ToLower(u.Username), q) || strings.HasPrefix(strings.ToLower(u.FullName), q) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SetProfilePicture(_ context.Context, userID int, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.ProfilePicture = url
	s.users[userID] = u
	return nil
}

func (s *Store) CreatePost(_ context.Context, authorID int, text string, media []models.Media) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPost++
	post := models.Post{
		ID:        s.nextPost,
		AuthorID:  authorID,
		Text:      text,
		Media:     append([]models.Media{}, media...),
		CreatedAt: s.now(),
	}
	s.posts[post.ID] = post
	return post, nil
}

// Posts returns every stored post, oldest first.
func (s *Store) Posts() []models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
