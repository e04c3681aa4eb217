package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"social-chat/internal/domain"
	"social-chat/internal/mocks"
	"social-chat/internal/models"
	"social-chat/internal/service"
	"social-chat/internal/telemetry"
)

func setupChatRouter(handler *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.GET("/chat", handler.ListChats)
	r.POST("/chat/user/:userId", handler.StartChat)
	r.GET("/chat/:chatId", handler.GetChatMessages)
	r.POST("/chat/:chatId/messages", handler.PostChatMessage)
	return r
}

func newChatHandler(chats ChatService) *ChatHandler {
	logger, _ := test.NewNullLogger()
	return NewChatHandler(chats, nil, logger)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestListChatsSuccess(t *testing.T) {
	chats := new(mocks.ChatServiceMock)
	router := setupChatRouter(newChatHandler(chats))

	chats.On("ListChats", mock.Anything, 1).Return([]service.ChatListItem{{ID: 3, Friend: models.User{ID: 2, Username: "bob"}, UnreadCount: 2}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	list := resp["chats"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, float64(2), list[0].(map[string]any)["unread_count"])
	chats.AssertExpectations(t)
}

func TestListChatsServiceErrorIsGeneric(t *testing.T) {
	chats := new(mocks.ChatServiceMock)
	logger, hook := test.NewNullLogger()
	router := setupChatRouter(NewChatHandler(chats, nil, logger))

	chats.On("ListChats", mock.Anything, 1).Return(nil, errors.New("pq: connection refused")).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeBody(t, rec)["error"])
	assert.NotContains(t, rec.Body.String(), "pq:")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "request failed", hook.LastEntry().Message)
}

func TestStartChatCreated(t *testing.T) {
	chats := new(mocks.ChatServiceMock)
	router := setupChatRouter(newChatHandler(chats))

	chats.On("GetOrCreateChat", mock.Anything, 1, 2).Return(service.ChatView{ID: 9, Created: true}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chat/user/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	chat := decodeBody(t, rec)["chat"].(map[string]any)
	assert.Equal(t, float64(9), chat["id"])
	assert.NotContains(t, chat, "Created")
}

func TestStartChatExisting(t *testing.T) {
	chats := new(mocks.ChatServiceMock)
	router := setupChatRouter(newChatHandler(chats))

	chats.On("GetOrCreateChat", mock.Anything, 1, 2).Return(service.ChatView{ID: 9}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chat/user/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartChatNotFriendsMapsTo404(t *testing.T) {
	chats := new(mocks.ChatServiceMock)
	router := setupChatRouter(newChatHandler(chats))

	chats.On("GetOrCreateChat", mock.Anything, 1, 2).Return(nil, domain.Forbidden("you need to be friends to start a chat")).Once()

	req := httptest.NewRequest(http.MethodPost, "/chat/user/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "you need to be friends to start a chat", decodeBody(t, rec)["error"])
}

func TestStartChatWithSelfIsValidationError(t *testing.T) {
	chats := new(mocks.ChatServiceMock)
	router := setupChatRouter(newChatHandler(chats))

	chats.On("GetOrCreateChat", mock.Anything, 1, 1).Return(nil, domain.Invalid("userId", "cannot start a chat with yourself")).Once()

	req := httptest.NewRequest(http.MethodPost, "/chat/user/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, "validation failed", resp["error"])
	assert.Contains(t, resp["fields"], "userId")
}

func TestStartChatInvalidUserID(t *testing.T) {
	chats := new(mocks.ChatServiceMock)
	router := setupChatRouter(newChatHandler(chats))

	req := httptest.NewRequest(http.MethodPost, "/chat/user/abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	chats.AssertNotCalled(t, "GetOrCreateChat", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartChatEmitsAudit(t *testing.T) {
	chats := new(mocks.ChatServiceMock)
	pub := new(mocks.PublisherMock)
	logger, _ := test.NewNullLogger()
	audit := telemetry.NewAuditEmitter(pub, "audit.events", "social-chat", "test", logger)
	router := setupChatRouter(NewChatHandler(chats, audit, logger))

	chats.On("GetOrCreateChat", mock.Anything, 1, 2).Return(service.ChatView{ID: 9, Created: true}, nil).Once()
	pub.On("Publish", mock.Anything, "audit.events", mock.Anything).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chat/user/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	pub.AssertExpectations(t)
}

func TestGetChatMessagesDefaults(t *testing.T) {
	chats := new(mocks.ChatServiceMock)
	router := setupChatRouter(newChatHandler(chats))

	chats.On("ListMessages", mock.Anything, 5, 1, 1, 20).Return(service.MessagePage{Page: 1, Limit: 20}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	chats.AssertExpectations(t)
}

func TestGetChatMessagesPassesPaging(t *testing.T) {
	chats := new(mocks.ChatServiceMock)
	router := setupChatRouter(newChatHandler(chats))

	chats.On("ListMessages", mock.Anything, 5, 1, 3, 10).Return(service.MessagePage{Page: 3, Limit: 10, HasMore: true}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat/5?page=3&limit=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["has_more"])
}

func TestGetChatMessagesNonNumericPage(t *testing.T) {
	chats := new(mocks.ChatServiceMock)
	router := setupChatRouter(newChatHandler(chats))

	req := httptest.NewRequest(http.MethodGet, "/chat/5?page=two", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["fields"], "page")
	chats.AssertNotCalled(t, "ListMessages", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetChatMessagesNotParticipant(t *testing.T) {
	chats := new(mocks.ChatServiceMock)
	router := setupChatRouter(newChatHandler(chats))

	chats.On("ListMessages", mock.Anything, 5, 1, 1, 20).Return(nil, domain.NotFound("chat not found or access denied")).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "chat not found or access denied", decodeBody(t, rec)["error"])
}

func TestPostChatMessageTextOnly(t *testing.T) {
	chats := new(mocks.ChatServiceMock)
	router := setupChatRouter(newChatHandler(chats))

	chats.On("SendMessage", mock.Anything, 5, 1, service.SendMessageInput{Text: "hello"}).
		Return(service.MessageView{Message: models.Message{ID: 1, ChatID: 5, SenderID: 1, Text: "hello"}}, nil).Once()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	require.NoError(t, w.WriteField("text", "hello"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/chat/5/messages", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "hello", decodeBody(t, rec)["text"])
}

func TestPostChatMessageWithMedia(t *testing.T) {
	chats := new(mocks.ChatServiceMock)
	router := setupChatRouter(newChatHandler(chats))

	chats.On("SendMessage", mock.Anything, 5, 1, mock.MatchedBy(func(in service.SendMessageInput) bool {
		return in.Text == "" && in.Media != nil && in.Media.Name == "photo.png"
	})).Return(service.MessageView{Message: models.Message{ID: 2}}, nil).Once()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("media", "photo.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/chat/5/messages", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	chats.AssertExpectations(t)
}

func TestPostChatMessageEmptyIsValidationError(t *testing.T) {
	chats := new(mocks.ChatServiceMock)
	router := setupChatRouter(newChatHandler(chats))

	chats.On("SendMessage", mock.Anything, 5, 1, service.SendMessageInput{}).
		Return(nil, domain.Invalid("text", "text is required if no media is provided")).Once()

	req := httptest.NewRequest(http.MethodPost, "/chat/5/messages", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decodeBody(t, rec)["fields"].(map[string]any)
	assert.Equal(t, "text is required if no media is provided", fields["text"])
}

func TestPostChatMessageRejectsSecondAttachment(t *testing.T) {
	chats := new(mocks.ChatServiceMock)
	router := setupChatRouter(newChatHandler(chats))

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	require.NoError(t, w.WriteField("text", "two files"))
	for _, name := range []string{"a.png", "b.png"} {
		part, err := w.CreateFormFile("media", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("\x89PNG\r\n\x1a\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/chat/5/messages", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["fields"], "media")
	chats.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
