package mocks

import (
	"context"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/mock"

	"social-chat/internal/media"
	"social-chat/internal/models"
	"social-chat/internal/service"
)

type ChatServiceMock struct {
	mock.Mock
}

func (m *ChatServiceMock) GetOrCreateChat(ctx context.Context, userID, otherID int) (service.ChatView, error) {
	args := m.Called(ctx, userID, otherID)
	var chat service.ChatView
	if val := args.Get(0); val != nil {
		chat = val.(service.ChatView)
	}
	return chat, args.Error(1)
}

func (m *ChatServiceMock) SendMessage(ctx context.Context, chatID, senderID int, in service.SendMessageInput) (service.MessageView, error) {
	args := m.Called(ctx, chatID, senderID, in)
	var msg service.MessageView
	if val := args.Get(0); val != nil {
		msg = val.(service.MessageView)
	}
	return msg, args.Error(1)
}

func (m *ChatServiceMock) ListMessages(ctx context.Context, chatID, requesterID, page, limit int) (service.MessagePage, error) {
	args := m.Called(ctx, chatID, requesterID, page, limit)
	var result service.MessagePage
	if val := args.Get(0); val != nil {
		result = val.(service.MessagePage)
	}
	return result, args.Error(1)
}

func (m *ChatServiceMock) ListChats(ctx context.Context, userID int) ([]service.ChatListItem, error) {
	args := m.Called(ctx, userID)
	var list []service.ChatListItem
	if val := args.Get(0); val != nil {
		list = val.([]service.ChatListItem)
	}
	return list, args.Error(1)
}

type FriendServiceMock struct {
	mock.Mock
}

func (m *FriendServiceMock) SendRequest(ctx context.Context, senderID, receiverID int) (models.FriendRequest, error) {
	args := m.Called(ctx, senderID, receiverID)
	var req models.FriendRequest
	if val := args.Get(0); val != nil {
		req = val.(models.FriendRequest)
	}
	return req, args.Error(1)
}

func (m *FriendServiceMock) Accept(ctx context.Context, requestID, receiverID int) (models.FriendRequest, models.Chat, error) {
	args := m.Called(ctx, requestID, receiverID)
	var req models.FriendRequest
	if val := args.Get(0); val != nil {
		req = val.(models.FriendRequest)
	}
	var chat models.Chat
	if val := args.Get(1); val != nil {
		chat = val.(models.Chat)
	}
	return req, chat, args.Error(2)
}

func (m *FriendServiceMock) Reject(ctx context.Context, requestID, receiverID int) (models.FriendRequest, error) {
	args := m.Called(ctx, requestID, receiverID)
	var req models.FriendRequest
	if val := args.Get(0); val != nil {
		req = val.(models.FriendRequest)
	}
	return req, args.Error(1)
}

func (m *FriendServiceMock) ListRequests(ctx context.Context, userID int) ([]service.FriendRequestView, error) {
	args := m.Called(ctx, userID)
	var list []service.FriendRequestView
	if val := args.Get(0); val != nil {
		list = val.([]service.FriendRequestView)
	}
	return list, args.Error(1)
}

func (m *FriendServiceMock) ListFriends(ctx context.Context, userID int) ([]models.User, error) {
	args := m.Called(ctx, userID)
	var list []models.User
	if val := args.Get(0); val != nil {
		list = val.([]models.User)
	}
	return list, args.Error(1)
}

type PostServiceMock struct {
	mock.Mock
}

func (m *PostServiceMock) CreatePost(ctx context.Context, authorID int, text string, files []media.File) (models.Post, error) {
	args := m.Called(ctx, authorID, text, files)
	var post models.Post
	if val := args.Get(0); val != nil {
		post = val.(models.Post)
	}
	return post, args.Error(1)
}

type ProfileServiceMock struct {
	mock.Mock
}

func (m *ProfileServiceMock) UpdateProfilePicture(ctx context.Context, userID int, file *media.File) (models.User, error) {
	args := m.Called(ctx, userID, file)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

type UserSearcherMock struct {
	mock.Mock
}

func (m *UserSearcherMock) SearchUsers(ctx context.Context, requesterID int, query string) ([]models.User, error) {
	args := m.Called(ctx, requesterID, query)
	var list []models.User
	if val := args.Get(0); val != nil {
		list = val.([]models.User)
	}
	return list, args.Error(1)
}

type SubscriptionSaverMock struct {
	mock.Mock
}

func (m *SubscriptionSaverMock) Save(ctx context.Context, userID int, sub webpush.Subscription) error {
	args := m.Called(ctx, userID, sub)
	return args.Error(0)
}
