package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/docuchat/docuchat/internal/model"
	"github.com/docuchat/docuchat/pkg/utils/json"
)

// AnswerCacheConfig configures the chat answer cache.
type AnswerCacheConfig struct {
	// Enabled toggles the cache.
	Enabled bool
	// TTL is the cache entry lifetime.
	TTL time.Duration
	// KeyPrefix namespaces the cache keys.
	KeyPrefix string
}

// DefaultAnswerCacheConfig returns the default answer cache config.
func DefaultAnswerCacheConfig() *AnswerCacheConfig {
	return &AnswerCacheConfig{
		Enabled:   false,
		TTL:       time.Hour,
		KeyPrefix: "chat:answer:",
	}
}

// AnswerCache caches chat answers in Redis, keyed by owner and question
// so one owner's cached answer can never serve another owner. Ingest and
// delete invalidate the owner's entries because the grounding set changed.
type AnswerCache struct {
	redis  *goredis.Client
	config *AnswerCacheConfig
}

// NewAnswerCache creates an answer cache. A nil config disables it.
func NewAnswerCache(redis *goredis.Client, config *AnswerCacheConfig) *AnswerCache {
	if config == nil {
		config = DefaultAnswerCacheConfig()
	}
	return &AnswerCache{
		redis:  redis,
		config: config,
	}
}

// Enabled reports whether the cache is active.
func (c *AnswerCache) Enabled() bool {
	return c.config.Enabled && c.redis != nil
}

func (c *AnswerCache) ownerPrefix(ownerID string) string {
	ownerHash := sha256.Sum256([]byte(ownerID))
	return c.config.KeyPrefix + hex.EncodeToString(ownerHash[:8]) + ":"
}

func (c *AnswerCache) cacheKey(ownerID, question string) string {
	hash := sha256.Sum256([]byte(question))
	return c.ownerPrefix(ownerID) + hex.EncodeToString(hash[:])
}

// Get returns the cached result for the owner's question, or nil on miss.
func (c *AnswerCache) Get(ctx context.Context, ownerID, question string) (*model.ChatResult, error) {
	if !c.Enabled() {
		return nil, nil
	}

	key := c.cacheKey(ownerID, question)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		logger.Warnw("failed to get from answer cache", "error", err.Error(), "key", key)
		return nil, err
	}

	var result model.ChatResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warnw("failed to unmarshal cached answer, deleting", "error", err.Error(), "key", key)
		_ = c.redis.Del(ctx, key).Err()
		return nil, nil
	}

	logger.Debugw("answer cache hit", "key", key)
	return &result, nil
}

// Set stores a chat result for the owner's question.
func (c *AnswerCache) Set(ctx context.Context, ownerID, question string, result *model.ChatResult) error {
	if !c.Enabled() {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	key := c.cacheKey(ownerID, question)
	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to set answer cache", "error", err.Error(), "key", key)
		return err
	}
	return nil
}

// InvalidateOwner removes every cached answer for the owner.
func (c *AnswerCache) InvalidateOwner(ctx context.Context, ownerID string) error {
	if !c.Enabled() {
		return nil
	}

	iter := c.redis.Scan(ctx, 0, c.ownerPrefix(ownerID)+"*", 0).Iterator()

	deleted := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete cache key", "error", err.Error(), "key", iter.Val())
		} else {
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if deleted > 0 {
		logger.Infow("invalidated answer cache", "owner", ownerID, "deleted_count", deleted)
	}
	return nil
}
