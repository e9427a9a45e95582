package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestPresence_LocalOnly(t *testing.T) {
	ctx := context.Background()
	p := NewPresence(nil, PresenceConfig{})

	assert.False(t, p.IsOnline(ctx, 1))
	p.Register(ctx, 1)
	p.Register(ctx, 1)
	assert.True(t, p.IsOnline(ctx, 1))
	assert.Equal(t, []uint{1}, p.OnlineUserIDs(ctx))

	p.Unregister(ctx, 1)
	assert.True(t, p.IsOnline(ctx, 1), "one stream still open")
	p.Unregister(ctx, 1)
	assert.False(t, p.IsOnline(ctx, 1))
	assert.Empty(t, p.OnlineUserIDs(ctx))
}

func TestPresence_SharedThroughRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	first := NewPresence(rdb, PresenceConfig{LastSeenTTL: time.Minute})
	second := NewPresence(rdb, PresenceConfig{LastSeenTTL: time.Minute})

	first.Register(ctx, 5)
	assert.True(t, second.IsOnline(ctx, 5))
	assert.Equal(t, []uint{5}, second.OnlineUserIDs(ctx))

	first.Unregister(ctx, 5)
	assert.False(t, second.IsOnline(ctx, 5))
}

func TestPresence_ExpiredEntriesArePruned(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	writer := NewPresence(rdb, PresenceConfig{LastSeenTTL: 30 * time.Second})
	reader := NewPresence(rdb, PresenceConfig{LastSeenTTL: 30 * time.Second})

	writer.Register(ctx, 9)
	mr.FastForward(time.Minute)

	assert.False(t, reader.IsOnline(ctx, 9))
	assert.Empty(t, reader.OnlineUserIDs(ctx))
	members, _ := mr.Members(defaultPresenceSetKey)
	assert.Empty(t, members)
}

func TestPresence_NilIsSafe(t *testing.T) {
	var p *Presence
	ctx := context.Background()
	p.Register(ctx, 1)
	p.Unregister(ctx, 1)
	assert.False(t, p.IsOnline(ctx, 1))
	assert.Nil(t, p.OnlineUserIDs(ctx))
}
