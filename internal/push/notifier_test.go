package push

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-chat/internal/models"
)

type memSubs struct {
	mu   sync.Mutex
	subs map[int][]webpush.Subscription
}

func (m *memSubs) Save(_ context.Context, userID int, sub webpush.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[userID] = append(m.subs[userID], sub)
	return nil
}

func (m *memSubs) List(_ context.Context, userID int) ([]webpush.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]webpush.Subscription(nil), m.subs[userID]...), nil
}

func (m *memSubs) Delete(_ context.Context, userID int, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.subs[userID][:0]
	for _, s := range m.subs[userID] {
		if s.Endpoint != endpoint {
			kept = append(kept, s)
		}
	}
	m.subs[userID] = kept
	return nil
}

func response(code int) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(""))}
}

func TestDeliverRemovesGoneSubscriptions(t *testing.T) {
	subs := &memSubs{subs: map[int][]webpush.Subscription{
		2: {{Endpoint: "https://push.test/live"}, {Endpoint: "https://push.test/gone"}},
	}}
	logger, _ := test.NewNullLogger()
	n := NewNotifier(subs, "pub", "priv", "mailto:ops@example.com", logger)

	var mu sync.Mutex
	var bodies [][]byte
	n.send = func(_ context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error) {
		mu.Lock()
		bodies = append(bodies, payload)
		mu.Unlock()
		assert.Equal(t, "priv", opts.VAPIDPrivateKey)
		if strings.HasSuffix(sub.Endpoint, "gone") {
			return response(http.StatusGone), nil
		}
		return response(http.StatusCreated), nil
	}

	err := n.Deliver(context.Background(), 2, Payload{Title: "hi", Body: "there"})

	require.NoError(t, err)
	assert.Len(t, bodies, 2)
	left, _ := subs.List(context.Background(), 2)
	require.Len(t, left, 1)
	assert.Equal(t, "https://push.test/live", left[0].Endpoint)
}

func TestNotifyMessageBuildsPreview(t *testing.T) {
	subs := &memSubs{subs: map[int][]webpush.Subscription{2: {{Endpoint: "https://push.test/a"}}}}
	logger, _ := test.NewNullLogger()
	n := NewNotifier(subs, "pub", "priv", "mailto:ops@example.com", logger)

	got := make(chan Payload, 1)
	n.send = func(_ context.Context, payload []byte, _ *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
		var p Payload
		require.NoError(t, json.Unmarshal(payload, &p))
		got <- p
		return response(http.StatusCreated), nil
	}

	n.NotifyMessage(2, models.User{ID: 1, Username: "alice"}, models.Message{
		ID: 9, ChatID: 4, Media: &models.Media{Type: models.MediaImage}, CreatedAt: time.Unix(100, 0),
	})
	n.Wait()

	p := <-got
	assert.Equal(t, "alice sent a message", p.Title)
	assert.Equal(t, "[image]", p.Body)
	assert.EqualValues(t, 4, p.Data["chat_id"])
}

func TestDeliverWithoutSubscriptionsIsNoop(t *testing.T) {
	n := NewNotifier(&memSubs{subs: map[int][]webpush.Subscription{}}, "", "", "", nil)
	n.send = func(context.Context, []byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
		t.Fatal("send must not be called")
		return nil, nil
	}
	assert.NoError(t, n.Deliver(context.Background(), 1, Payload{}))
}
