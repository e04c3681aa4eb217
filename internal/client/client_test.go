package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-chat/internal/media"
	"social-chat/internal/models"
	"social-chat/internal/service"
)

func loggedIn(t *testing.T) *Session {
	t.Helper()
	s := NewSession(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, s.Save("tok", 1))
	return s
}

func TestSessionLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	s := NewSession(path)
	require.NoError(t, s.Init())
	assert.False(t, s.LoggedIn())

	require.NoError(t, s.Save("tok", 7))

	reloaded := NewSession(path)
	require.NoError(t, reloaded.Init())
	assert.Equal(t, "tok", reloaded.Token())
	assert.Equal(t, 7, reloaded.UserID())

	require.NoError(t, reloaded.Clear())
	assert.False(t, reloaded.LoggedIn())
	require.NoError(t, NewSession(path).Init())
	require.NoError(t, reloaded.Clear())
}

func TestAPIRequiresSession(t *testing.T) {
	api := NewAPI("http://unused", NewSession(filepath.Join(t.TempDir(), "none")), nil)
	_, err := api.ListChats(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestAPISendMessageMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/5/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "hi", r.FormValue("text"))
		f, fh, err := r.FormFile("media")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "note.mp3", fh.Filename)
		assert.Equal(t, "audio/mpeg", fh.Header.Get("Content-Type"))
		assert.Equal(t, []byte("ID3"), data)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(service.MessageView{Message: models.Message{ID: 9, ChatID: 5, Seq: 3, Text: "hi"}})
	}))
	defer srv.Close()

	api := NewAPI(srv.URL+"/api/v1/", loggedIn(t), srv.Client())
	msg, err := api.SendMessage(context.Background(), 5, "hi", &media.Attachment{Name: "note.mp3", ContentType: "audio/mpeg", Data: []byte("ID3")})
	require.NoError(t, err)
	assert.Equal(t, 9, msg.ID)
	assert.Equal(t, int64(3), msg.Seq)
}

func TestAPIDecodesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "limit=20&page=0", r.URL.RawQuery)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"validation failed","fields":{"page":"must be at least 1"}}`))
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, loggedIn(t), srv.Client())
	_, err := api.ListMessages(context.Background(), 5, 0, 20)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "must be at least 1", apiErr.Fields["page"])
}

func TestConversationOptimisticFlow(t *testing.T) {
	c := NewConversation(5)
	c.ApplyPage([]service.MessageView{
		{Message: models.Message{ID: 2, Seq: 2, Text: "second"}},
		{Message: models.Message{ID: 1, Seq: 1, Text: "first"}},
	})

	a := c.AddPending("third", nil)
	b := c.AddPending("lost", nil)
	assert.Equal(t, 2, c.PendingCount())

	entries := c.Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, "first", entries[0].Text)
	assert.True(t, entries[2].Pending)

	c.Confirm(a.TempID, service.MessageView{Message: models.Message{ID: 3, Seq: 3, Text: "third"}})
	assert.True(t, c.Fail(b.TempID))
	assert.False(t, c.Fail(b.TempID))

	entries = c.Entries()
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.False(t, e.Pending)
		assert.Equal(t, int64(i+1), e.Message.Seq)
	}

	// A later fetch carries updated read state for an existing message.
	c.ApplyPage([]service.MessageView{{Message: models.Message{ID: 3, Seq: 3, Text: "third", ReadBy: models.NewIDSet(1, 2)}}})
	assert.True(t, c.Entries()[2].Message.ReadByUser(2))
}

func TestPollerTriggerAndStop(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var calls atomic.Int32
	p := NewPoller(time.Hour, func(context.Context) error {
		calls.Add(1)
		return nil
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	p.Trigger()
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestPollerInterval(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var calls atomic.Int32
	p := NewPoller(10*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return io.ErrUnexpectedEOF
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestDebouncerCoalesces(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var calls atomic.Int32
	for i := 0; i < 5; i++ {
		d.Do(func() { calls.Add(1) })
	}
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	d.Do(func() { calls.Add(1) })
	d.Stop()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSocketTriggersPollerOnReceiveMessage(t *testing.T) {
	received := make(chan models.ChatEvent, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.URL.Query().Get("token"))
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		var join models.ChatEvent
		if err := wsjson.Read(ctx, conn, &join); err != nil {
			return
		}
		received <- join
		_ = wsjson.Write(ctx, conn, models.ChatEvent{Event: models.EventReceiveMessage, ChatID: join.ChatID, MessageID: 4})
		_ = wsjson.Write(ctx, conn, models.ChatEvent{Event: models.EventJoined, ChatID: join.ChatID})
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sock, err := DialSocket(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), loggedIn(t), logger)
	require.NoError(t, err)
	require.NoError(t, sock.Join(ctx, 5))

	var polls atomic.Int32
	poller := NewPoller(time.Hour, func(context.Context) error {
		polls.Add(1)
		return nil
	}, logger)

	var events []string
	require.NoError(t, sock.Listen(ctx, poller, func(ev models.ChatEvent) { events = append(events, ev.Event) }))

	assert.Equal(t, models.EventJoinChat, (<-received).Event)
	assert.Equal(t, []string{models.EventReceiveMessage, models.EventJoined}, events)
	// the trigger is queued for the next Run
	assert.Len(t, poller.trigger, 1)
}
