package biz

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/docuchat/internal/model"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("redis not available, skipping")
	}
	client.FlushDB(ctx)
	return client
}

func newTestAnswerCache(t *testing.T) (*AnswerCache, *redis.Client) {
	client := setupTestRedis(t)
	t.Cleanup(func() { _ = client.Close() })

	cache := NewAnswerCache(client, &AnswerCacheConfig{
		Enabled:   true,
		TTL:       time.Hour,
		KeyPrefix: "test:chat:answer:",
	})
	return cache, client
}

func TestAnswerCacheDisabledByDefault(t *testing.T) {
	cache := NewAnswerCache(nil, nil)
	assert.False(t, cache.Enabled())

	// Disabled cache is a no-op, never an error.
	result, err := cache.Get(context.Background(), "alice", "q")
	require.NoError(t, err)
	assert.Nil(t, result)
	require.NoError(t, cache.Set(context.Background(), "alice", "q", &model.ChatResult{Answer: "a"}))
}

func TestAnswerCacheRoundTrip(t *testing.T) {
	cache, _ := newTestAnswerCache(t)
	ctx := context.Background()

	result, err := cache.Get(ctx, "alice", "what is go?")
	require.NoError(t, err)
	assert.Nil(t, result)

	stored := &model.ChatResult{
		Answer: "Go is a programming language.",
		Sources: []model.ScoredPassage{
			{ChunkID: "c1", DocumentID: "d1", Filename: "go.txt", Text: "Go is...", Score: 0.9},
		},
	}
	require.NoError(t, cache.Set(ctx, "alice", "what is go?", stored))

	cached, err := cache.Get(ctx, "alice", "what is go?")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, stored.Answer, cached.Answer)
	require.Len(t, cached.Sources, 1)
	assert.Equal(t, "go.txt", cached.Sources[0].Filename)
}

func TestAnswerCacheOwnerScoping(t *testing.T) {
	cache, _ := newTestAnswerCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "alice", "what is go?", &model.ChatResult{Answer: "alice's answer"}))

	// Same question, different owner: no leak.
	cached, err := cache.Get(ctx, "bob", "what is go?")
	require.NoError(t, err)
	assert.Nil(t, cached)

	// Keys differ per owner even for identical questions.
	assert.NotEqual(t, cache.cacheKey("alice", "what is go?"), cache.cacheKey("bob", "what is go?"))
}

func TestAnswerCacheInvalidateOwner(t *testing.T) {
	cache, _ := newTestAnswerCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "alice", "q1", &model.ChatResult{Answer: "a1"}))
	require.NoError(t, cache.Set(ctx, "alice", "q2", &model.ChatResult{Answer: "a2"}))
	require.NoError(t, cache.Set(ctx, "bob", "q1", &model.ChatResult{Answer: "b1"}))

	require.NoError(t, cache.InvalidateOwner(ctx, "alice"))

	for _, q := range []string{"q1", "q2"} {
		cached, err := cache.Get(ctx, "alice", q)
		require.NoError(t, err)
		assert.Nil(t, cached)
	}

	// Bob's entries survive alice's invalidation.
	cached, err := cache.Get(ctx, "bob", "q1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "b1", cached.Answer)
}

func TestAnswerCacheCorruptEntry(t *testing.T) {
	cache, client := newTestAnswerCache(t)
	ctx := context.Background()

	key := cache.cacheKey("alice", "broken")
	require.NoError(t, client.Set(ctx, key, "not-json{", time.Hour).Err())

	// Corrupt entries are treated as a miss and removed.
	cached, err := cache.Get(ctx, "alice", "broken")
	require.NoError(t, err)
	assert.Nil(t, cached)

	exists, err := client.Exists(ctx, key).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}
