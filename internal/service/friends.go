package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"social-chat/internal/domain"
	"social-chat/internal/models"
	"social-chat/internal/observability"
	"social-chat/internal/repositories"
)

// FriendshipCache is warmed when a request is accepted.
type FriendshipCache interface {
	Remember(ctx context.Context, userA, userB int)
}

// FriendRequestView carries both profiles of a request.
type FriendRequestView struct {
	models.FriendRequest
	Sender   models.User `json:"sender"`
	Receiver models.User `json:"receiver"`
}

type FriendService struct {
	Requests repositories.FriendRepository
	Chats    repositories.ChatRepository
	Users    UserDirectory
	Cache    FriendshipCache
	Events   EventPublisher
	Log      logrus.FieldLogger
}

func (s *FriendService) SendRequest(ctx context.Context, senderID, receiverID int) (models.FriendRequest, error) {
	if senderID == receiverID {
		return models.FriendRequest{}, domain.Invalid("userId", "cannot send a friend request to yourself")
	}
	if _, err := lookupUser(ctx, s.Users, receiverID); err != nil {
		return models.FriendRequest{}, err
	}

	if existing, err := s.Requests.FindRequest(ctx, senderID, receiverID); err == nil {
		if existing.Status == models.FriendRequestAccepted {
			return models.FriendRequest{}, domain.Conflict("already friends")
		}
		return models.FriendRequest{}, domain.Conflict("friend request already sent")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return models.FriendRequest{}, err
	}

	if reverse, err := s.Requests.FindRequest(ctx, receiverID, senderID); err == nil {
		if reverse.Status == models.FriendRequestAccepted {
			return models.FriendRequest{}, domain.Conflict("already friends")
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return models.FriendRequest{}, err
	}

	req, err := s.Requests.CreateRequest(ctx, senderID, receiverID)
	if err != nil {
		if errors.Is(err, repositories.ErrFriendRequestExists) {
			return models.FriendRequest{}, domain.Conflict("friend request already sent")
		}
		return models.FriendRequest{}, err
	}
	publish(ctx, s.Events, s.Log, Event{Type: EventFriendRequestSent, RequestID: req.ID, ActorID: senderID, SubjectID: receiverID})
	return req, nil
}

// Accept settles a pending request addressed to receiverID and opens the
// chat between the two users.
func (s *FriendService) Accept(ctx context.Context, requestID, receiverID int) (models.FriendRequest, models.Chat, error) {
	req, err := s.settle(ctx, requestID, receiverID, models.FriendRequestAccepted)
	if err != nil {
		return models.FriendRequest{}, models.Chat{}, err
	}
	if s.Cache != nil {
		s.Cache.Remember(ctx, req.SenderID, req.ReceiverID)
	}

	chat, created, err := s.Chats.GetOrCreateChat(ctx, req.SenderID, req.ReceiverID)
	if err != nil {
		return req, models.Chat{}, fmt.Errorf("open chat after accept: %w", err)
	}
	if created {
		observability.IncChatCreated()
		publish(ctx, s.Events, s.Log, Event{Type: EventChatCreated, ChatID: chat.ID, ActorID: receiverID, SubjectID: req.SenderID})
	}
	publish(ctx, s.Events, s.Log, Event{Type: EventFriendRequestAccepted, RequestID: req.ID, ChatID: chat.ID, ActorID: receiverID, SubjectID: req.SenderID})
	return req, chat, nil
}

func (s *FriendService) Reject(ctx context.Context, requestID, receiverID int) (models.FriendRequest, error) {
	req, err := s.settle(ctx, requestID, receiverID, models.FriendRequestRejected)
	if err != nil {
		return models.FriendRequest{}, err
	}
	publish(ctx, s.Events, s.Log, Event{Type: EventFriendRequestRejected, RequestID: req.ID, ActorID: receiverID, SubjectID: req.SenderID})
	return req, nil
}

func (s *FriendService) settle(ctx context.Context, requestID, receiverID int, status models.FriendRequestStatus) (models.FriendRequest, error) {
	req, err := s.Requests.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return models.FriendRequest{}, domain.NotFound("friend request not found")
		}
		return models.FriendRequest{}, err
	}
	if req.ReceiverID != receiverID {
		return models.FriendRequest{}, domain.Forbidden("only the receiver can respond to this request")
	}
	if req.Status != models.FriendRequestPending {
		return models.FriendRequest{}, domain.Conflict("friend request already " + string(req.Status))
	}

	updated, err := s.Requests.UpdateStatus(ctx, requestID, receiverID, status)
	if err != nil {
		if errors.Is(err, repositories.ErrFriendRequestSettled) {
			return models.FriendRequest{}, domain.Conflict("friend request already settled")
		}
		return models.FriendRequest{}, err
	}
	return updated, nil
}

// ListRequests returns requests sent and received by userID, newest first.
func (s *FriendService) ListRequests(ctx context.Context, userID int) ([]FriendRequestView, error) {
	reqs, err := s.Requests.ListRequests(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(reqs)*2)
	for _, r := range reqs {
		ids = append(ids, r.SenderID, r.ReceiverID)
	}
	profiles, err := profilesByID(ctx, s.Users, ids)
	if err != nil {
		return nil, err
	}

	out := make([]FriendRequestView, 0, len(reqs))
	for _, r := range reqs {
		v := FriendRequestView{FriendRequest: r, Sender: profiles[r.SenderID], Receiver: profiles[r.ReceiverID]}
		v.Sender.ID, v.Receiver.ID = r.SenderID, r.ReceiverID
		out = append(out, v)
	}
	return out, nil
}

func (s *FriendService) ListFriends(ctx context.Context, userID int) ([]models.User, error) {
	ids, err := s.Requests.ListFriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	return s.Users.BulkUsers(ctx, ids)
}
