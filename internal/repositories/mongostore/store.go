// Package mongostore implements the repository interfaces on MongoDB.
// Integer ids are drawn from a counters collection so documents stay
// interchangeable with the Postgres rows.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"social-chat/internal/models"
	"social-chat/internal/repositories"
)

const (
	collCounters = "counters"
	collUsers    = "users"
	collChats    = "chats"
	collMessages = "messages"
	collRequests = "friend_requests"
	collPosts    = "posts"
)

type Store struct {
	db  *mongo.Database
	now func() time.Time
}

func NewStore(db *mongo.Database) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var (
	_ repositories.ChatRepository    = (*Store)(nil)
	_ repositories.MessageRepository = (*Store)(nil)
	_ repositories.FriendRepository  = (*Store)(nil)
	_ repositories.UserRepository    = (*Store)(nil)
	_ repositories.PostRepository    = (*Store)(nil)
)

func (s *Store) nextID(ctx context.Context, name string) (int, error) {
	var doc struct {
		Seq int `bson:"seq"`
	}
	err := s.db.Collection(collCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("next %s id: %w", name, err)
	}
	return doc.Seq, nil
}

func (s *Store) GetOrCreateChat(ctx context.Context, userID, otherUserID int) (models.Chat, bool, error) {
	a, b := models.SortedPair(userID, otherUserID)
	filter := bson.M{"user1_id": a, "user2_id": b}

	var chat models.Chat
	err := s.db.Collection(collChats).FindOne(ctx, filter).Decode(&chat)
	if err == nil {
		return chat, false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Chat{}, false, err
	}

	id, err := s.nextID(ctx, collChats)
	if err != nil {
		return models.Chat{}, false, err
	}
	err = s.db.Collection(collChats).FindOneAndUpdate(ctx, filter,
		bson.M{"$setOnInsert": bson.M{"_id": id, "last_seq": int64(0), "created_at": s.now()}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&chat)
	if mongo.IsDuplicateKeyError(err) {
		// lost the upsert race; the winner's document is now visible
		err = s.db.Collection(collChats).FindOne(ctx, filter).Decode(&chat)
		return chat, false, err
	}
	if err != nil {
		return models.Chat{}, false, err
	}
	return chat, chat.ID == id, nil
}

func (s *Store) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := s.db.Collection(collChats).FindOne(ctx, bson.M{"_id": chatID}).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	return chat, err
}

func (s *Store) IsParticipant(ctx context.Context, chatID, userID int) (bool, error) {
	n, err := s.db.Collection(collChats).CountDocuments(ctx, bson.M{
		"_id": chatID,
		"$or": bson.A{bson.M{"user1_id": userID}, bson.M{"user2_id": userID}},
	}, options.Count().SetLimit(1))
	return n > 0, err
}

func (s *Store) ListChats(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	cur, err := s.db.Collection(collChats).Aggregate(ctx, listChatsPipeline(userID))
	if err != nil {
		return nil, err
	}
	var chats []models.Chat
	if err := cur.All(ctx, &chats); err != nil {
		return nil, err
	}

	out := make([]models.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		summary := models.ChatSummary{Chat: chat, FriendID: chat.Other(userID)}

		var last models.Message
		err := s.db.Collection(collMessages).FindOne(ctx, bson.M{"chat_id": chat.ID},
			options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})).Decode(&last)
		switch {
		case err == nil:
			last.ReadBy = models.NewIDSet(last.ReadBy...)
			summary.LastMessage = &last
		case !errors.Is(err, mongo.ErrNoDocuments):
			return nil, err
		}

		unread, err := s.db.Collection(collMessages).CountDocuments(ctx, bson.M{
			"chat_id":   chat.ID,
			"sender_id": bson.M{"$ne": userID},
			"read_by":   bson.M{"$ne": userID},
		})
		if err != nil {
			return nil, err
		}
		summary.UnreadCount = int(unread)
		out = append(out, summary)
	}
	return out, nil
}

// listChatsPipeline orders chats by last activity, falling back to creation
// time for chats without messages, newest first with id as the tie-break.
func listChatsPipeline(userID int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{bson.M{"user1_id": userID}, bson.M{"user2_id": userID}}}}},
		{{Key: "$addFields", Value: bson.M{"activity": bson.M{"$ifNull": bson.A{"$last_message_at", "$created_at"}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "activity", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$project", Value: bson.M{"activity": 0}}},
	}
}

// CreateMessage reserves the next seq on the chat document before inserting.
func (s *Store) CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	now := s.now()
	var chat models.Chat
	err := s.db.Collection(collChats).FindOneAndUpdate(ctx,
		bson.M{"_id": in.ChatID},
		bson.M{"$inc": bson.M{"last_seq": 1}, "$set": bson.M{"last_message_at": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Message{}, repositories.ErrChatNotFound
	}
	if err != nil {
		return models.Message{}, err
	}

	id, err := s.nextID(ctx, collMessages)
	if err != nil {
		return models.Message{}, err
	}
	msg := models.Message{
		ID:        id,
		ChatID:    in.ChatID,
		SenderID:  in.SenderID,
		Seq:       chat.LastSeq,
		Text:      in.Text,
		Media:     in.Media,
		ReadBy:    models.NewIDSet(in.SenderID),
		CreatedAt: now,
	}
	if _, err := s.db.Collection(collMessages).InsertOne(ctx, msg); err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, chatID, offset, limit int) ([]models.Message, error) {
	cur, err := s.db.Collection(collMessages).Find(ctx, bson.M{"chat_id": chatID},
		options.Find().
			SetSort(bson.D{{Key: "seq", Value: -1}}).
			SetSkip(int64(offset)).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	var newest []models.Message
	if err := cur.All(ctx, &newest); err != nil {
		return nil, err
	}
	msgs := make([]models.Message, len(newest))
	for i, m := range newest {
		m.ReadBy = models.NewIDSet(m.ReadBy...)
		msgs[len(newest)-1-i] = m
	}
	return msgs, nil
}

// MarkChatRead relies on $addToSet so concurrent readers never overwrite each other.
func (s *Store) MarkChatRead(ctx context.Context, chatID, readerID int) (int64, error) {
	res, err := s.db.Collection(collMessages).UpdateMany(ctx,
		bson.M{"chat_id": chatID, "sender_id": bson.M{"$ne": readerID}, "read_by": bson.M{"$ne": readerID}},
		bson.M{"$addToSet": bson.M{"read_by": readerID}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *Store) CreateRequest(ctx context.Context, senderID, receiverID int) (models.FriendRequest, error) {
	id, err := s.nextID(ctx, collRequests)
	if err != nil {
		return models.FriendRequest{}, err
	}
	now := s.now()
	req := models.FriendRequest{
		ID:         id,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.FriendRequestPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.db.Collection(collRequests).InsertOne(ctx, req); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.FriendRequest{}, repositories.ErrFriendRequestExists
		}
		return models.FriendRequest{}, err
	}
	return req, nil
}

func (s *Store) GetRequest(ctx context.Context, requestID int) (models.FriendRequest, error) {
	return s.findRequest(ctx, bson.M{"_id": requestID})
}

func (s *Store) FindRequest(ctx context.Context, senderID, receiverID int) (models.FriendRequest, error) {
	return s.findRequest(ctx, bson.M{"sender_id": senderID, "receiver_id": receiverID})
}

func (s *Store) findRequest(ctx context.Context, filter bson.M) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := s.db.Collection(collRequests).FindOne(ctx, filter).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.FriendRequest{}, repositories.ErrFriendRequestNotFound
	}
	return req, err
}

func (s *Store) UpdateStatus(ctx context.Context, requestID, receiverID int, status models.FriendRequestStatus) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := s.db.Collection(collRequests).FindOneAndUpdate(ctx,
		bson.M{"_id": requestID, "receiver_id": receiverID, "status": models.FriendRequestPending},
		bson.M{"$set": bson.M{"status": status, "updated_at": s.now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.FriendRequest{}, repositories.ErrFriendRequestSettled
	}
	return req, err
}

func (s *Store) AreFriends(ctx context.Context, userA, userB int) (bool, error) {
	n, err := s.db.Collection(collRequests).CountDocuments(ctx, bson.M{
		"status": models.FriendRequestAccepted,
		"$or": bson.A{
			bson.M{"sender_id": userA, "receiver_id": userB},
			bson.M{"sender_id": userB, "receiver_id": userA},
		},
	}, options.Count().SetLimit(1))
	return n > 0, err
}

func (s *Store) ListRequests(ctx context.Context, userID int) ([]models.FriendRequest, error) {
	cur, err := s.db.Collection(collRequests).Find(ctx,
		bson.M{"$or": bson.A{bson.M{"sender_id": userID}, bson.M{"receiver_id": userID}}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	reqs := []models.FriendRequest{}
	if err := cur.All(ctx, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

func (s *Store) ListFriendIDs(ctx context.Context, userID int) ([]int, error) {
	cur, err := s.db.Collection(collRequests).Find(ctx, bson.M{
		"status": models.FriendRequestAccepted,
		"$or":    bson.A{bson.M{"sender_id": userID}, bson.M{"receiver_id": userID}},
	}, options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var reqs []models.FriendRequest
	if err := cur.All(ctx, &reqs); err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(reqs))
	for _, r := range reqs {
		if r.SenderID == userID {
			ids = append(ids, r.ReceiverID)
		} else {
			ids = append(ids, r.SenderID)
		}
	}
	return ids, nil
}

func (s *Store) GetUser(ctx context.Context, userID int) (models.User, error) {
	var u models.User
	err := s.db.Collection(collUsers).FindOne(ctx, bson.M{"_id": userID}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, repositories.ErrUserNotFound
	}
	return u, err
}

func (s *Store) BulkUsers(ctx context.Context, ids []int) ([]models.User, error) {
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	cur, err := s.db.Collection(collUsers).Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	users := []models.User{}
	if query == "" {
		return users, nil
	}
	pattern := "^" + regexp.QuoteMeta(query)
	cur, err := s.db.Collection(collUsers).Find(ctx, bson.M{"$or": bson.A{
		bson.M{"username": bson.M{"$regex": pattern, "$options": "i"}},
		bson.M{"full_name": bson.M{"$regex": pattern, "$options": "i"}},
	}}, options.Find().SetSort(bson.D{{Key: "username", Value: 1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) SetProfilePicture(ctx context.Context, userID int, url string) error {
	res, err := s.db.Collection(collUsers).UpdateOne(ctx, bson.M{"_id": userID},
		bson.M{"$set": bson.M{"profile_picture": url}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repositories.ErrUserNotFound
	}
	return nil
}

func (s *Store) CreatePost(ctx context.Context, authorID int, text string, media []models.Media) (models.Post, error) {
	id, err := s.nextID(ctx, collPosts)
	if err != nil {
		return models.Post{}, err
	}
	if media == nil {
		media = []models.Media{}
	}
	post := models.Post{ID: id, AuthorID: authorID, Text: text, Media: media, CreatedAt: s.now()}
	if _, err := s.db.Collection(collPosts).InsertOne(ctx, post); err != nil {
		return models.Post{}, fmt.Errorf("insert post: %w", err)
	}
	return post, nil
}
