// Package cache holds the Redis-backed friendship cache and push
// subscription store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/redis/go-redis/v9"
)

const DefaultFriendTTL = 10 * time.Minute

// Connect opens a client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// FriendCache stores positive friendship answers under friends:{min}:{max}.
type FriendCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewFriendCache(rdb *redis.Client, ttl time.Duration) *FriendCache {
	if ttl <= 0 {
		ttl = DefaultFriendTTL
	}
	return &FriendCache{rdb: rdb, ttl: ttl}
}

// FriendKey is symmetric in its arguments.
func FriendKey(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("friends:%d:%d", a, b)
}

func (c *FriendCache) IsFriends(ctx context.Context, a, b int) (bool, error) {
	n, err := c.rdb.Exists(ctx, FriendKey(a, b)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *FriendCache) MarkFriends(ctx context.Context, a, b int) error {
	return c.rdb.Set(ctx, FriendKey(a, b), "1", c.ttl).Err()
}

// SubscriptionStore keeps Web Push subscriptions in a hash per user,
// field = endpoint.
type SubscriptionStore struct {
	rdb *redis.Client
}

func NewSubscriptionStore(rdb *redis.Client) *SubscriptionStore {
	return &SubscriptionStore{rdb: rdb}
}

func subscriptionsKey(userID int) string {
	return fmt.Sprintf("push:subs:%d", userID)
}

func (s *SubscriptionStore) Save(ctx context.Context, userID int, sub webpush.Subscription) error {
	if sub.Endpoint == "" {
		return errors.New("subscription endpoint is empty")
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, subscriptionsKey(userID), sub.Endpoint, data).Err()
}

func (s *SubscriptionStore) List(ctx context.Context, userID int) ([]webpush.Subscription, error) {
	fields, err := s.rdb.HGetAll(ctx, subscriptionsKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	subs := make([]webpush.Subscription, 0, len(fields))
	for endpoint, raw := range fields {
		var sub webpush.Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			_ = s.rdb.HDel(ctx, subscriptionsKey(userID), endpoint).Err()
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (s *SubscriptionStore) Delete(ctx context.Context, userID int, endpoint string) error {
	return s.rdb.HDel(ctx, subscriptionsKey(userID), endpoint).Err()
}
