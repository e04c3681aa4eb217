package handlers

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"social-chat/internal/domain"
	"social-chat/internal/media"
	"social-chat/internal/mocks"
	"social-chat/internal/models"
	"social-chat/internal/service"
)

func setupSocialRouter(friends *FriendHandler, media *MediaHandler, users *UserHandler, push *PushHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	if friends != nil {
		r.POST("/users/:id/friend-request", friends.SendRequest)
		r.PUT("/users/friend-request/:requestId/accept", friends.Accept)
		r.PUT("/users/friend-request/:requestId/reject", friends.Reject)
		r.GET("/users/friend-requests", friends.ListRequests)
		r.GET("/users/friends", friends.ListFriends)
	}
	if media != nil {
		r.POST("/posts", media.CreatePost)
		r.PUT("/users/profile-picture", media.UpdateProfilePicture)
	}
	if users != nil {
		r.GET("/users/search", users.Search)
	}
	if push != nil {
		r.GET("/push/vapid-public-key", push.PublicKey)
		r.POST("/push/subscribe", push.Subscribe)
	}
	r.GET("/health", Health)
	return r
}

func TestSendFriendRequestConflict(t *testing.T) {
	friends := new(mocks.FriendServiceMock)
	logger, _ := test.NewNullLogger()
	router := setupSocialRouter(NewFriendHandler(friends, nil, logger), nil, nil, nil)

	friends.On("SendRequest", mock.Anything, 1, 2).Return(nil, domain.Conflict("friend request already sent")).Once()

	req := httptest.NewRequest(http.MethodPost, "/users/2/friend-request", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "friend request already sent", decodeBody(t, rec)["error"])
}

func TestAcceptFriendRequestReturnsChat(t *testing.T) {
	friends := new(mocks.FriendServiceMock)
	logger, _ := test.NewNullLogger()
	router := setupSocialRouter(NewFriendHandler(friends, nil, logger), nil, nil, nil)

	friends.On("Accept", mock.Anything, 4, 1).
		Return(models.FriendRequest{ID: 4, SenderID: 2, ReceiverID: 1, Status: models.FriendRequestAccepted}, models.Chat{ID: 11}, nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/users/friend-request/4/accept", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, float64(11), resp["chat_id"])
	assert.Equal(t, "accepted", resp["request"].(map[string]any)["status"])
}

func TestRejectByNonReceiverIsHidden(t *testing.T) {
	friends := new(mocks.FriendServiceMock)
	logger, _ := test.NewNullLogger()
	router := setupSocialRouter(NewFriendHandler(friends, nil, logger), nil, nil, nil)

	friends.On("Reject", mock.Anything, 4, 1).Return(nil, domain.Forbidden("only the receiver can respond to this request")).Once()

	req := httptest.NewRequest(http.MethodPut, "/users/friend-request/4/reject", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListFriendsAndRequests(t *testing.T) {
	friends := new(mocks.FriendServiceMock)
	logger, _ := test.NewNullLogger()
	router := setupSocialRouter(NewFriendHandler(friends, nil, logger), nil, nil, nil)

	friends.On("ListFriends", mock.Anything, 1).Return([]models.User{{ID: 2, Username: "bob"}}, nil).Once()
	friends.On("ListRequests", mock.Anything, 1).Return([]service.FriendRequestView{{FriendRequest: models.FriendRequest{ID: 3}}}, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/friends", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["friends"], 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/friend-requests", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["requests"], 1)
	friends.AssertExpectations(t)
}

func TestCreatePostCollectsFiles(t *testing.T) {
	posts := new(mocks.PostServiceMock)
	logger, _ := test.NewNullLogger()
	router := setupSocialRouter(nil, NewMediaHandler(posts, nil, nil, logger), nil, nil)

	posts.On("CreatePost", mock.Anything, 1, "trip", mock.MatchedBy(func(files []media.File) bool {
		return len(files) == 2 && files[0].Name == "a.jpg" && files[1].Name == "b.jpg"
	})).Return(models.Post{ID: 8, AuthorID: 1, Text: "trip"}, nil).Once()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	require.NoError(t, w.WriteField("text", "trip"))
	for _, name := range []string{"a.jpg", "b.jpg"} {
		part, err := w.CreateFormFile("media", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("\xff\xd8\xff\xe0"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/posts", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	posts.AssertExpectations(t)
}

func TestUpdateProfilePictureMissingFile(t *testing.T) {
	profiles := new(mocks.ProfileServiceMock)
	logger, _ := test.NewNullLogger()
	router := setupSocialRouter(nil, NewMediaHandler(nil, profiles, nil, logger), nil, nil)

	profiles.On("UpdateProfilePicture", mock.Anything, 1, (*media.File)(nil)).
		Return(nil, domain.Invalid("profile_picture", "an image file is required")).Once()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPut, "/users/profile-picture", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["fields"], "profile_picture")
}

func TestSearchUsers(t *testing.T) {
	users := new(mocks.UserSearcherMock)
	logger, _ := test.NewNullLogger()
	router := setupSocialRouter(nil, nil, NewUserHandler(users, logger), nil)

	users.On("SearchUsers", mock.Anything, 1, "bo").Return([]models.User{{ID: 2, Username: "bob"}}, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/search?q=bo", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["users"], 1)
}

func TestPushSubscribe(t *testing.T) {
	subs := new(mocks.SubscriptionSaverMock)
	logger, _ := test.NewNullLogger()
	router := setupSocialRouter(nil, nil, nil, NewPushHandler(subs, "BPub", logger))

	expected := webpush.Subscription{Endpoint: "https://push.test/abc", Keys: webpush.Keys{Auth: "a", P256dh: "p"}}
	subs.On("Save", mock.Anything, 1, expected).Return(nil).Once()

	body := `{"endpoint":"https://push.test/abc","keys":{"auth":"a","p256dh":"p"}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/push/subscribe", strings.NewReader(body)))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/push/subscribe", strings.NewReader(`{"endpoint":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/push/vapid-public-key", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BPub", decodeBody(t, rec)["public_key"])
	subs.AssertExpectations(t)
}

func TestPushDisabled(t *testing.T) {
	logger, _ := test.NewNullLogger()
	router := setupSocialRouter(nil, nil, nil, NewPushHandler(nil, "", logger))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/push/vapid-public-key", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWriteErrorUnauthorized(t *testing.T) {
	logger, _ := test.NewNullLogger()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { writeError(c, logger, errors.Join(domain.ErrUnauthorized)) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	router := setupSocialRouter(nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateProfilePictureRejectsTwoFiles(t *testing.T) {
	profiles := new(mocks.ProfileServiceMock)
	logger, _ := test.NewNullLogger()
	router := setupSocialRouter(nil, NewMediaHandler(nil, profiles, nil, logger), nil, nil)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, name := range []string{"a.jpg", "b.jpg"} {
		part, err := w.CreateFormFile("profile_picture", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("\xff\xd8\xff\xe0"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPut, "/users/profile-picture", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["fields"], "profile_picture")
	profiles.AssertNotCalled(t, "UpdateProfilePicture", mock.Anything, mock.Anything, mock.Anything)
}
