package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"tapassist/internal/model"
)

// Cache is a read-through Redis cache in front of the chats collection,
// keyed "conversation:<id>" with a sliding TTL. Misses and failures are
// always safe: callers fall back to Mongo.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(id string) string {
	return "conversation:" + id
}

func (c *Cache) Get(ctx context.Context, id string) (*model.Conversation, bool) {
	data, err := c.client.Get(ctx, cacheKey(id)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("conversation_id", id).Msg("conversation cache read failed")
		}
		return nil, false
	}

	var conv model.Conversation
	if err := sonic.Unmarshal([]byte(data), &conv); err != nil {
		log.Warn().Err(err).Str("conversation_id", id).Msg("corrupt cache entry, dropping")
		c.Invalidate(ctx, id)
		return nil, false
	}

	// Sliding expiry: reads keep hot conversations cached.
	if err := c.client.Expire(ctx, cacheKey(id), c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("conversation_id", id).Msg("cache ttl refresh failed")
	}
	return &conv, true
}

func (c *Cache) Put(ctx context.Context, conv *model.Conversation) {
	data, err := sonic.Marshal(conv)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to marshal conversation for cache")
		return
	}
	if err := c.client.Set(ctx, cacheKey(conv.ID), data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("conversation cache write failed")
	}
}

func (c *Cache) Invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		log.Warn().Err(err).Str("conversation_id", id).Msg("conversation cache invalidation failed")
	}
}
