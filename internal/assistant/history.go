package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
)

// threadHistory is the cached message list for one service thread.
type threadHistory struct {
	Messages []*schema.Message `json:"messages"`
}

// ThreadStore caches per-thread message history so the model sees prior turns
// on every call. History is a cache, not the system of record: the chat
// repository keeps the durable transcript.
//
// Resolve and SetAlias track thread rollover: the conversation record keeps
// the first assigned thread id forever, and the alias maps it to whichever
// thread is currently active.
type ThreadStore interface {
	Load(ctx context.Context, threadID string) ([]*schema.Message, error)
	Append(ctx context.Context, threadID string, messages ...*schema.Message) error
	Resolve(ctx context.Context, threadID string) (string, error)
	SetAlias(ctx context.Context, original, current string) error
	HealthCheck(ctx context.Context) error
}

// RedisThreadStore keeps thread history in Redis under "thread:<id>" with a
// sliding TTL.
type RedisThreadStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisThreadStore(client *redis.Client, ttl time.Duration) *RedisThreadStore {
	return &RedisThreadStore{client: client, ttl: ttl}
}

func threadKey(threadID string) string {
	return "thread:" + threadID
}

func (r *RedisThreadStore) Load(ctx context.Context, threadID string) ([]*schema.Message, error) {
	data, err := r.client.Get(ctx, threadKey(threadID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load thread history: %w", err)
	}

	var history threadHistory
	if err := sonic.Unmarshal([]byte(data), &history); err != nil {
		return nil, fmt.Errorf("failed to unmarshal thread history: %w", err)
	}
	return history.Messages, nil
}

func (r *RedisThreadStore) Append(ctx context.Context, threadID string, messages ...*schema.Message) error {
	existing, err := r.Load(ctx, threadID)
	if err != nil {
		return err
	}
	history := threadHistory{Messages: append(existing, messages...)}

	data, err := sonic.Marshal(&history)
	if err != nil {
		return fmt.Errorf("failed to marshal thread history: %w", err)
	}
	return r.client.Set(ctx, threadKey(threadID), data, r.ttl).Err()
}

func aliasKey(threadID string) string {
	return "thread-alias:" + threadID
}

// Resolve follows a rollover alias to the currently active thread. A thread
// without an alias resolves to itself.
func (r *RedisThreadStore) Resolve(ctx context.Context, threadID string) (string, error) {
	current, err := r.client.Get(ctx, aliasKey(threadID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return threadID, nil
		}
		return "", fmt.Errorf("failed to resolve thread alias: %w", err)
	}
	return current, nil
}

// SetAlias points the original thread id at the thread that replaced it.
func (r *RedisThreadStore) SetAlias(ctx context.Context, original, current string) error {
	if err := r.client.Set(ctx, aliasKey(original), current, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set thread alias: %w", err)
	}
	return nil
}

func (r *RedisThreadStore) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
