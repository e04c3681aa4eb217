package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"social-chat/internal/friendship"
	"social-chat/internal/media"
	"social-chat/internal/models"
	"social-chat/internal/repositories/memory"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type objectStore struct {
	mu      sync.Mutex
	objects map[string]media.Object
	deleted []string
}

func (s *objectStore) Put(_ context.Context, obj media.Object) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.Copy(io.Discard, obj.Body)
	s.objects[obj.Key] = obj
	return "https://cdn.test/" + obj.Key, nil
}

func (s *objectStore) Delete(_ context.Context, key string, _ models.MediaType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []models.Message
	reads    [][2]int
	joined   map[[2]int]bool
}

func (n *recordingNotifier) BroadcastMessage(_ int, msg models.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) BroadcastRead(chatID, readerID int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reads = append(n.reads, [2]int{chatID, readerID})
}

func (n *recordingNotifier) InRoom(chatID, userID int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.joined[[2]int{chatID, userID}]
}

type recordingPush struct {
	mu   sync.Mutex
	sent []int
}

func (p *recordingPush) NotifyMessage(recipientID int, _ models.User, _ models.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, recipientID)
}

type recordingEvents struct {
	mu   sync.Mutex
	keys []string
}

func (e *recordingEvents) Publish(_ context.Context, routingKey string, _ any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keys = append(e.keys, routingKey)
	return nil
}

type fixture struct {
	store    *memory.Store
	objects  *objectStore
	notifier *recordingNotifier
	push     *recordingPush
	events   *recordingEvents
	chats    *ChatService
	friends  *FriendService
	posts    *PostService
	profiles *ProfileService

	alice, bob, carol models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	store := memory.NewStore()
	var tick int64
	var clockMu sync.Mutex
	store.SetClock(func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		tick++
		return time.Unix(1700000000+tick, 0)
	})
	objects := &objectStore{objects: map[string]media.Object{}}
	pipeline := media.NewPipeline(objects, media.DefaultMaxFileSize, logger)
	gate := friendship.NewGate(store, nil, logger)

	f := &fixture{
		store:    store,
		objects:  objects,
		notifier: &recordingNotifier{joined: map[[2]int]bool{}},
		push:     &recordingPush{},
		events:   &recordingEvents{},
		alice:    store.AddUser(models.User{Username: "alice"}),
		bob:      store.AddUser(models.User{Username: "bob"}),
		carol:    store.AddUser(models.User{Username: "carol"}),
	}
	f.chats = &ChatService{
		Chats:    store,
		Messages: store,
		Users:    store,
		Gate:     gate,
		Media:    pipeline,
		Notifier: f.notifier,
		Push:     f.push,
		Events:   f.events,
		Log:      logger,
	}
	f.friends = &FriendService{
		Requests: store,
		Chats:    store,
		Users:    store,
		Cache:    gate,
		Events:   f.events,
		Log:      logger,
	}
	f.posts = &PostService{Posts: store, Media: pipeline, Events: f.events, Log: logger}
	f.profiles = &ProfileService{Users: store, Media: pipeline, Profiles: store}
	return f
}

// befriend sends and accepts a request from a to b.
func (f *fixture) befriend(t *testing.T, a, b models.User) models.Chat {
	t.Helper()
	req, err := f.friends.SendRequest(context.Background(), a.ID, b.ID)
	require.NoError(t, err)
	_, chat, err := f.friends.Accept(context.Background(), req.ID, b.ID)
	require.NoError(t, err)
	return chat
}

func upload(name, contentType string, data []byte, size int64) *media.File {
	return &media.File{
		Name:        name,
		ContentType: contentType,
		Size:        size,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func text(i int) SendMessageInput {
	return SendMessageInput{Text: fmt.Sprintf("message %d", i)}
}
