package cache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"HabitPact/storage/redis"
)

const (
	messageProcessedPrefix = "mq:processed"
	processedTTL           = 24 * time.Hour
)

// MessageMarker 消费端去重标记
type MessageMarker interface {
	TryMarkProcessing(ctx context.Context, messageID string, ttl time.Duration) (bool, error)
	MarkProcessed(ctx context.Context, messageID string, ttl time.Duration) error
	UnmarkProcessing(ctx context.Context, messageID string) error
}

// RedisMarker SETNX 实现，processing 状态在 ttl 后自动释放
type RedisMarker struct {
	client *goredis.Client
}

func NewRedisMarker(client *goredis.Client) *RedisMarker {
	return &RedisMarker{client: client}
}

// TryMarkProcessing 返回 false 表示消息已处理或正在处理
func (m *RedisMarker) TryMarkProcessing(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = processedTTL
	}
	result, err := m.client.SetNX(ctx, redis.Key(messageProcessedPrefix, messageID), "processing", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark message as processing: %w", err)
	}
	return result, nil
}

// MarkProcessed 处理成功后延长 TTL
func (m *RedisMarker) MarkProcessed(ctx context.Context, messageID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = processedTTL
	}
	return m.client.Set(ctx, redis.Key(messageProcessedPrefix, messageID), "completed", ttl).Err()
}

// UnmarkProcessing 处理失败时删除标记，允许重投
func (m *RedisMarker) UnmarkProcessing(ctx context.Context, messageID string) error {
	return m.client.Del(ctx, redis.Key(messageProcessedPrefix, messageID)).Err()
}
