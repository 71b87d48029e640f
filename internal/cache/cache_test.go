package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedThing struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func newTestCache(t *testing.T) (*miniredis.Miniredis, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewClient(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, New(rdb)
}

func TestAside_FetchesOnceThenHits(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *cachedThing) func() error {
		return func() error {
			calls++
			*dest = cachedThing{ID: 1, Name: "first"}
			return nil
		}
	}

	var a cachedThing
	require.NoError(t, c.Aside(ctx, PostKey(1), &a, PostTTL, fetch(&a)))
	var b cachedThing
	require.NoError(t, c.Aside(ctx, PostKey(1), &b, PostTTL, fetch(&b)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, a, b)
	assert.Equal(t, PostTTL, mr.TTL(PostKey(1)))
}

func TestAside_FetchErrorIsNotCached(t *testing.T) {
	mr, c := newTestCache(t)

	var dest cachedThing
	err := c.Aside(context.Background(), PostKey(2), &dest, PostTTL, func() error {
		return errors.New("db down")
	})
	require.Error(t, err)
	assert.False(t, mr.Exists(PostKey(2)))
}

func TestNilCache_DegradesToFetch(t *testing.T) {
	var c *Cache
	assert.False(t, c.Enabled())

	calls := 0
	var dest cachedThing
	require.NoError(t, New(nil).Aside(context.Background(), "k", &dest, time.Minute, func() error {
		calls++
		return nil
	}))
	assert.Equal(t, 1, calls)

	New(nil).Invalidate(context.Background(), "k")
	New(nil).InvalidateUserPosts(context.Background(), 1)
}

func TestInvalidate(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, UserKey(3), cachedThing{ID: 3}, UserTTL))
	c.InvalidateUser(ctx, 3)
	assert.False(t, mr.Exists(UserKey(3)))
}

func TestUserPostsKey_ChangesAfterInvalidation(t *testing.T) {
	_, c := newTestCache(t)
	ctx := context.Background()

	before := c.UserPostsKey(ctx, 5, 10, 0)
	assert.Equal(t, "user:5:posts:g0:10:0", before)

	c.InvalidateUserPosts(ctx, 5)
	after := c.UserPostsKey(ctx, 5, 10, 0)
	assert.NotEqual(t, before, after)
	assert.Equal(t, "user:5:posts:g1:10:0", after)

	assert.Equal(t, "user:6:posts:g0:10:0", c.UserPostsKey(ctx, 6, 10, 0))
}

func TestNewClient_ParsesURL(t *testing.T) {
	rdb, err := NewClient("redis://localhost:6390/2")
	require.NoError(t, err)
	defer rdb.Close()
	assert.Equal(t, "localhost:6390", rdb.Options().Addr)
	assert.Equal(t, 2, rdb.Options().DB)

	_, err = NewClient("redis://%zz")
	assert.Error(t, err)
}

func TestConnect_UnreachableReturnsNil(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()
	assert.Nil(t, Connect(addr))
}
