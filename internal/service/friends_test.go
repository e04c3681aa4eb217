package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-chat/internal/domain"
	"social-chat/internal/models"
)

func TestSendRequestGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.friends.SendRequest(ctx, f.alice.ID, f.alice.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.friends.SendRequest(ctx, f.alice.ID, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.friends.SendRequest(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	_, err = f.friends.SendRequest(ctx, f.alice.ID, f.bob.ID)
	require.ErrorIs(t, err, domain.ErrConflict)
	msg, _ := domain.PublicMessage(err)
	assert.Equal(t, "friend request already sent", msg)
}

func TestSendRequestToExistingFriend(t *testing.T) {
	f := newFixture(t)
	f.befriend(t, f.alice, f.bob)

	_, err := f.friends.SendRequest(context.Background(), f.bob.ID, f.alice.ID)

	require.ErrorIs(t, err, domain.ErrConflict)
	msg, _ := domain.PublicMessage(err)
	assert.Equal(t, "already friends", msg)
}

func TestAcceptOpensChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.friends.SendRequest(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	_, _, err = f.friends.Accept(ctx, req.ID, f.alice.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	accepted, chat, err := f.friends.Accept(ctx, req.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FriendRequestAccepted, accepted.Status)
	assert.True(t, chat.HasParticipant(f.alice.ID))
	assert.True(t, chat.HasParticipant(f.bob.ID))

	_, _, err = f.friends.Accept(ctx, req.ID, f.bob.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	view, err := f.chats.GetOrCreateChat(ctx, f.bob.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.ID, view.ID)
}

func TestRejectIsFinal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.friends.SendRequest(ctx, f.alice.ID, f.carol.ID)
	require.NoError(t, err)

	rejected, err := f.friends.Reject(ctx, req.ID, f.carol.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FriendRequestRejected, rejected.Status)

	_, _, err = f.friends.Accept(ctx, req.ID, f.carol.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.friends.Reject(ctx, 999, f.carol.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.chats.GetOrCreateChat(ctx, f.alice.ID, f.carol.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestListRequestsAndFriends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.befriend(t, f.alice, f.bob)
	_, err := f.friends.SendRequest(ctx, f.carol.ID, f.alice.ID)
	require.NoError(t, err)

	reqs, err := f.friends.ListRequests(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "carol", reqs[0].Sender.Username)
	assert.Equal(t, models.FriendRequestPending, reqs[0].Status)

	friends, err := f.friends.ListFriends(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, "bob", friends[0].Username)

	none, err := f.friends.ListFriends(ctx, f.carol.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}
