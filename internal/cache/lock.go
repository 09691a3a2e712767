package cache

import (
	"context"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"HabitPact/storage/redis"
)

const lockPrefix = "lock"

// Locker 跨进程互斥，调度器与打款派发共用
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// RedisLocker 基于 SETNX 的分布式锁
type RedisLocker struct {
	client *goredis.Client
}

func NewRedisLocker(client *goredis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, redis.Key(lockPrefix, key), 1, ttl).Result()
}

func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	return l.client.Del(ctx, redis.Key(lockPrefix, key)).Err()
}

// LocalLocker 进程内锁，单实例部署和测试使用
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), clock: time.Now}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

func (l *LocalLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

// TryLock 使用全局 Redis 客户端加锁
func TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return NewRedisLocker(redis.Client()).TryLock(ctx, key, ttl)
}

func Unlock(ctx context.Context, key string) error {
	return NewRedisLocker(redis.Client()).Unlock(ctx, key)
}
