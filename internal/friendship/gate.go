// Package friendship answers whether two users may start a chat.
package friendship

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Store reports accepted friend requests in either direction.
type Store interface {
	AreFriends(ctx context.Context, userA, userB int) (bool, error)
}

// Cache remembers positive answers. Friendships are never revoked, so a
// cached true never goes stale.
type Cache interface {
	IsFriends(ctx context.Context, userA, userB int) (bool, error)
	MarkFriends(ctx context.Context, userA, userB int) error
}

// Gate is a read-only friendship check used before chat creation.
type Gate struct {
	Store Store
	Cache Cache
	Log   logrus.FieldLogger
}

func NewGate(store Store, cache Cache, log logrus.FieldLogger) *Gate {
	return &Gate{Store: store, Cache: cache, Log: log}
}

func (g *Gate) AreFriends(ctx context.Context, userA, userB int) (bool, error) {
	if userA == userB {
		return false, nil
	}

	if g.Cache != nil {
		ok, err := g.Cache.IsFriends(ctx, userA, userB)
		if err != nil {
			g.logCacheError(err, "friendship cache read failed")
		} else if ok {
			return true, nil
		}
	}

	ok, err := g.Store.AreFriends(ctx, userA, userB)
	if err != nil {
		return false, err
	}
	if ok {
		g.Remember(ctx, userA, userB)
	}
	return ok, nil
}

// Remember warms the cache after a request is accepted.
func (g *Gate) Remember(ctx context.Context, userA, userB int) {
	if g.Cache == nil || userA == userB {
		return
	}
	if err := g.Cache.MarkFriends(ctx, userA, userB); err != nil {
		g.logCacheError(err, "friendship cache write failed")
	}
}

func (g *Gate) logCacheError(err error, msg string) {
	if g.Log != nil {
		g.Log.WithError(err).Warn(msg)
	}
}
