package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-chat/internal/models"
)

type staticTokens map[string]int

func (s staticTokens) ParseToken(token string) (int, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return 0, errors.New("invalid token")
}

type participants map[int][]int

func (p participants) CanJoin(_ context.Context, chatID, userID int) (bool, error) {
	for _, id := range p[chatID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func startServer(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	hub := NewHub(logger)
	handler := NewChatWebSocketHandler(hub,
		staticTokens{"alice": 1, "bob": 2, "carol": 3},
		participants{5: {1, 2}},
		logger,
	)
	r := gin.New()
	r.GET("/ws", handler.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func next(t *testing.T, conn *websocket.Conn) models.ChatEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev models.ChatEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func join(t *testing.T, conn *websocket.Conn, chatID int) models.ChatEvent {
	t.Helper()
	require.NoError(t, conn.WriteJSON(models.ChatEvent{Event: models.EventJoinChat, ChatID: chatID}))
	return next(t, conn)
}

func TestHandshakeRequiresToken(t *testing.T) {
	_, url := startServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=mallory", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestJoinRequiresParticipation(t *testing.T) {
	_, url := startServer(t)
	carol := dial(t, url, "carol")

	ev := join(t, carol, 5)

	assert.Equal(t, models.EventError, ev.Event)
	assert.Equal(t, "not authorized for chat", ev.Error)
}

func TestTypingAndSendHintsReachOtherParticipant(t *testing.T) {
	hub, url := startServer(t)
	alice := dial(t, url, "alice")
	bob := dial(t, url, "bob")

	assert.Equal(t, models.EventJoined, join(t, alice, 5).Event)
	assert.Equal(t, models.EventJoined, join(t, bob, 5).Event)
	assert.True(t, hub.InRoom(5, 2))

	typing := true
	require.NoError(t, alice.WriteJSON(models.ChatEvent{Event: models.EventTyping, ChatID: 5, IsTyping: &typing}))
	ev := next(t, bob)
	assert.Equal(t, models.EventTyping, ev.Event)
	assert.Equal(t, 1, ev.UserID)

	require.NoError(t, alice.WriteJSON(models.ChatEvent{
		Event:     models.EventSendMessage,
		ChatID:    5,
		MessageID: 77,
		Message:   &models.Message{Text: "forged"},
	}))
	ev = next(t, bob)
	assert.Equal(t, models.EventReceiveMessage, ev.Event)
	assert.Equal(t, 77, ev.MessageID)
	assert.Equal(t, 1, ev.SenderID)
	assert.Nil(t, ev.Message)
}

func TestTypingBeforeJoinIsRejected(t *testing.T) {
	_, url := startServer(t)
	alice := dial(t, url, "alice")

	require.NoError(t, alice.WriteJSON(models.ChatEvent{Event: models.EventTyping, ChatID: 5}))
	ev := next(t, alice)

	assert.Equal(t, models.EventError, ev.Event)
	assert.Equal(t, "join the chat first", ev.Error)
}

func TestDisconnectLeavesRooms(t *testing.T) {
	hub, url := startServer(t)
	alice := dial(t, url, "alice")
	join(t, alice, 5)
	require.True(t, hub.InRoom(5, 1))

	require.NoError(t, alice.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	alice.Close()

	assert.Eventually(t, func() bool { return !hub.InRoom(5, 1) }, 2*time.Second, 10*time.Millisecond)
}

func TestHandshakeChecksOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	handler := NewChatWebSocketHandler(NewHub(logger), staticTokens{"alice": 1}, participants{}, logger)
	handler.AllowOrigins([]string{"https://app.example.com"})
	r := gin.New()
	r.GET("/ws", handler.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=alice"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://app.example.com"}})
	require.NoError(t, err)
	conn.Close()
}
