package client

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"

	"social-chat/internal/models"
)

// Socket is the realtime side channel. Incoming message events are hints
// only; the caller re-fetches from the API.
type Socket struct {
	conn *websocket.Conn
	log  logrus.FieldLogger

	mu       sync.Mutex
	typing   map[int]bool
	debounce map[int]*Debouncer
}

// DialSocket connects to wsURL (e.g. ws://localhost:8080/ws) with the
// session token as a query parameter.
func DialSocket(ctx context.Context, wsURL string, session *Session, log logrus.FieldLogger) (*Socket, error) {
	token := session.Token()
	if token == "" {
		return nil, ErrNotLoggedIn
	}
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return &Socket{conn: conn, log: log, typing: map[int]bool{}, debounce: map[int]*Debouncer{}}, nil
}

func (s *Socket) send(ctx context.Context, ev models.ChatEvent) error {
	return wsjson.Write(ctx, s.conn, ev)
}

func (s *Socket) Join(ctx context.Context, chatID int) error {
	return s.send(ctx, models.ChatEvent{Event: models.EventJoinChat, ChatID: chatID})
}

func (s *Socket) Leave(ctx context.Context, chatID int) error {
	return s.send(ctx, models.ChatEvent{Event: models.EventLeaveChat, ChatID: chatID})
}

// AnnounceMessage tells the room a message was stored.
func (s *Socket) AnnounceMessage(ctx context.Context, chatID, messageID int) error {
	return s.send(ctx, models.ChatEvent{Event: models.EventSendMessage, ChatID: chatID, MessageID: messageID})
}

// Typing sends is_typing=true on the first keystroke and is_typing=false
// once keystrokes stop for DefaultDebounce.
func (s *Socket) Typing(ctx context.Context, chatID int) error {
	s.mu.Lock()
	d, ok := s.debounce[chatID]
	if !ok {
		d = NewDebouncer(DefaultDebounce)
		s.debounce[chatID] = d
	}
	started := !s.typing[chatID]
	s.typing[chatID] = true
	s.mu.Unlock()

	d.Do(func() {
		s.mu.Lock()
		s.typing[chatID] = false
		s.mu.Unlock()
		stopped := false
		if err := s.send(context.Background(), models.ChatEvent{Event: models.EventTyping, ChatID: chatID, IsTyping: &stopped}); err != nil {
			s.log.WithError(err).Debug("typing stop not sent")
		}
	})
	if !started {
		return nil
	}
	on := true
	return s.send(ctx, models.ChatEvent{Event: models.EventTyping, ChatID: chatID, IsTyping: &on})
}

// Listen reads events until ctx is done or the socket closes. Every
// receive_message triggers the poller; other events go to onEvent.
func (s *Socket) Listen(ctx context.Context, poller *Poller, onEvent func(models.ChatEvent)) error {
	for {
		var ev models.ChatEvent
		if err := wsjson.Read(ctx, s.conn, &ev); err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return err
		}
		switch ev.Event {
		case models.EventReceiveMessage, models.EventMessagesRead:
			if poller != nil {
				poller.Trigger()
			}
		}
		if onEvent != nil {
			onEvent(ev)
		}
	}
}

func (s *Socket) Close() error {
	s.mu.Lock()
	for _, d := range s.debounce {
		d.Stop()
	}
	s.mu.Unlock()
	err := s.conn.Close(websocket.StatusNormalClosure, "bye")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
