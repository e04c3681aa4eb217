// Package push delivers Web Push notifications for new chat messages.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"

	"social-chat/internal/models"
)

const previewLength = 100

// Subscriptions is the per-user subscription store.
type Subscriptions interface {
	Save(ctx context.Context, userID int, sub webpush.Subscription) error
	List(ctx context.Context, userID int) ([]webpush.Subscription, error)
	Delete(ctx context.Context, userID int, endpoint string) error
}

type sendFunc func(ctx context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

// Payload is the JSON body the service worker receives.
type Payload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Icon  string         `json:"icon,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// Notifier sends with VAPID credentials. NotifyMessage never blocks the
// caller; Wait drains in-flight deliveries on shutdown.
type Notifier struct {
	Subs      Subscriptions
	PublicKey string
	Log       logrus.FieldLogger

	privateKey string
	subscriber string
	send       sendFunc
	wg         sync.WaitGroup
}

func NewNotifier(subs Subscriptions, publicKey, privateKey, subscriber string, log logrus.FieldLogger) *Notifier {
	return &Notifier{
		Subs:       subs,
		PublicKey:  publicKey,
		Log:        log,
		privateKey: privateKey,
		subscriber: subscriber,
		send:       webpush.SendNotificationWithContext,
	}
}

// NotifyMessage tells recipientID about msg from sender in the background.
func (n *Notifier) NotifyMessage(recipientID int, sender models.User, msg models.Message) {
	name := sender.Username
	if name == "" {
		name = "Someone"
	}
	body := msg.Text
	if body == "" && msg.Media != nil {
		body = "[" + string(msg.Media.Type) + "]"
	}
	if r := []rune(body); len(r) > previewLength {
		body = string(r[:previewLength]) + "..."
	}
	payload := Payload{
		Title: name + " sent a message",
		Body:  body,
		Icon:  sender.ProfilePicture,
		Data: map[string]any{
			"chat_id":    msg.ChatID,
			"message_id": msg.ID,
			"timestamp":  msg.CreatedAt.Unix(),
		},
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := n.Deliver(ctx, recipientID, payload); err != nil {
			n.Log.WithError(err).WithField("user_id", recipientID).Warn("push delivery failed")
		}
	}()
}

// Deliver sends payload to every subscription of userID. Subscriptions the
// push service reports as gone are removed.
func (n *Notifier) Deliver(ctx context.Context, userID int, payload Payload) error {
	subs, err := n.Subs.List(ctx, userID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var firstErr error
	for i := range subs {
		sub := subs[i]
		resp, err := n.send(ctx, body, &sub, &webpush.Options{
			Subscriber:      n.subscriber,
			VAPIDPublicKey:  n.PublicKey,
			VAPIDPrivateKey: n.privateKey,
			TTL:             30,
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			if err := n.Subs.Delete(ctx, userID, sub.Endpoint); err != nil {
				n.Log.WithError(err).Warn("failed to delete expired push subscription")
			}
		case resp.StatusCode >= 400 && firstErr == nil:
			firstErr = fmt.Errorf("push service returned %d", resp.StatusCode)
		}
	}
	return firstErr
}

// Wait blocks until background deliveries finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
