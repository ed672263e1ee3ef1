// Package cache is a Redis-backed read cache for user records, sitting
// in front of the store to keep token verification off the database on
// every request. A nil cache or an unreachable Redis degrades to plain
// store reads.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"teletable/store"
)

const userTTL = 5 * time.Minute

type UserCache struct {
	client *redis.Client
}

func NewUserCache(client *redis.Client) *UserCache {
	return &UserCache{client: client}
}

func userKey(id uuid.UUID) string {
	return "teletable:user:" + id.String()
}

// Get returns the cached user, or nil on a miss or any Redis error.
func (c *UserCache) Get(ctx context.Context, id uuid.UUID) *store.User {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := c.client.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		return nil
	}
	var u store.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil
	}
	return &u
}

// Put stores the user with a short TTL. Errors are ignored; the cache is
// advisory.
func (c *UserCache) Put(ctx context.Context, u *store.User) {
	if c == nil || c.client == nil || u == nil {
		return
	}
	data, err := json.Marshal(u)
	if err != nil {
		return
	}
	c.client.Set(ctx, userKey(u.ID), data, userTTL)
}

// Invalidate drops the cached entry, used after role changes and deletes.
func (c *UserCache) Invalidate(ctx context.Context, id uuid.UUID) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(ctx, userKey(id))
}
