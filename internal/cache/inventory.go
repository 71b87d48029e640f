package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"murmur/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	UserKeyPrefix      = "user:%d"
	PostKeyPrefix      = "post:%d"
	UserPostsGenPrefix = "user:%d:posts:gen"
	UserPostsKeyFormat = "user:%d:posts:g%d:%d:%d"
)

const (
	UserTTL      = 5 * time.Minute
	PostTTL      = 30 * time.Minute
	UserPostsTTL = 2 * time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func PostKey(postID uint) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

func userPostsGenKey(userID uint) string {
	return fmt.Sprintf(UserPostsGenPrefix, userID)
}

// Cache is a cache-aside helper over Redis. A Cache with a nil client is
// valid: every read misses and every write is a no-op.
type Cache struct {
	rdb *redis.Client
}

// New returns a Cache backed by rdb, which may be nil.
func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Enabled reports whether a Redis client is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.rdb != nil
}

// GetJSON loads key into dest. It reports false on a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON stores v under key for ttl.
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, ttl).Err()
}

// Aside tries Redis first; on a miss it calls fetch, which must populate dest,
// and stores the result with ttl. Redis failures degrade to calling fetch.
func (c *Cache) Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	found, err := c.GetJSON(ctx, key, dest)
	if err != nil {
		middleware.Logger.DebugContext(ctx, "cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	if found {
		return nil
	}

	if err := fetch(); err != nil {
		return err
	}

	if err := c.SetJSON(ctx, key, dest, ttl); err != nil {
		middleware.Logger.DebugContext(ctx, "cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return nil
}

// Invalidate deletes keys. Failures are logged and ignored.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if !c.Enabled() || len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "cache invalidation failed", slog.Any("keys", keys), slog.String("error", err.Error()))
	}
}

// UserPostsKey returns the list-page key for a user's posts under the current
// generation, so one INCR drops every cached page.
func (c *Cache) UserPostsKey(ctx context.Context, userID uint, limit, offset int) string {
	var gen int64
	if c.Enabled() {
		g, err := c.rdb.Get(ctx, userPostsGenKey(userID)).Int64()
		if err == nil {
			gen = g
		}
	}
	return fmt.Sprintf(UserPostsKeyFormat, userID, gen, limit, offset)
}

// InvalidateUserPosts drops every cached page of userID's posts.
func (c *Cache) InvalidateUserPosts(ctx context.Context, userID uint) {
	if !c.Enabled() {
		return
	}
	if err := c.rdb.Incr(ctx, userPostsGenKey(userID)).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "cache invalidation failed", slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
	}
}

// InvalidateUser drops the cached profile of userID.
func (c *Cache) InvalidateUser(ctx context.Context, userID uint) {
	c.Invalidate(ctx, UserKey(userID))
}
