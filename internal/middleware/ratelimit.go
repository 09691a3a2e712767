package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appconfig "HabitPact/config"
	"HabitPact/pkg/errors"
	"HabitPact/pkg/logger"
	"HabitPact/pkg/response"
	"HabitPact/storage/redis"
)

// RateLimitConfig 滑动窗口限流配置
type RateLimitConfig struct {
	KeyPrefix     string
	Window        time.Duration
	BlockDuration time.Duration // 超限后的封禁时长，0 表示不封禁
	MaxRequests   int
	ByCaller      bool // 优先按调用方 ID 限流，缺失时回退到 IP
}

// WindowStore 限流计数的存储
type WindowStore interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration) (int, error)
	Block(ctx context.Context, key string, ttl time.Duration) error
	Blocked(ctx context.Context, key string) (bool, error)
}

// RedisWindowStore 用 zset 记录窗口内的请求时间戳
type RedisWindowStore struct {
	client *goredis.Client
}

func NewRedisWindowStore(client *goredis.Client) *RedisWindowStore {
	return &RedisWindowStore{client: client}
}

func (s *RedisWindowStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
	windowStart := now.Add(-window)

	pipe := s.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, key, goredis.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window+10*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to execute pipeline: %w", err)
	}
	return int(card.Val()), nil
}

func (s *RedisWindowStore) Block(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Set(ctx, key+":block", "1", ttl).Err()
}

func (s *RedisWindowStore) Blocked(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key+":block").Result()
	return n > 0, err
}

type RateLimiter struct {
	store  WindowStore
	now    func() time.Time
	config RateLimitConfig
}

func NewRateLimiter(store WindowStore, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{store: store, now: time.Now, config: config}
}

func (rl *RateLimiter) key(ctx context.Context, c *app.RequestContext) string {
	if rl.config.ByCaller {
		if id, ok := GetCallerID(ctx, c); ok {
			return redis.Key(rl.config.KeyPrefix, "user", id)
		}
	}
	return redis.Key(rl.config.KeyPrefix, "ip", c.ClientIP())
}

// Middleware 存储不可用时放行，限流不应成为打卡的单点
func (rl *RateLimiter) Middleware() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		key := rl.key(ctx, c)

		if rl.config.BlockDuration > 0 {
			blocked, err := rl.store.Blocked(ctx, key)
			if err != nil {
				logger.Logger.Warn("Failed to check block status", zap.String("key", key), zap.Error(err))
				c.Next(ctx)
				return
			}
			if blocked {
				rl.reject(ctx, c)
				return
			}
		}

		now := rl.now()
		count, err := rl.store.Hit(ctx, key, now, rl.config.Window)
		if err != nil {
			logger.Logger.Warn("Failed to check rate limit", zap.String("key", key), zap.Error(err))
			c.Next(ctx)
			return
		}

		remaining := rl.config.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(rl.config.MaxRequests))
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Response.Header.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(rl.config.Window).Unix(), 10))

		if count > rl.config.MaxRequests {
			if rl.config.BlockDuration > 0 {
				if err := rl.store.Block(ctx, key, rl.config.BlockDuration); err != nil {
					logger.Logger.Warn("Failed to block caller", zap.String("key", key), zap.Error(err))
				}
			}
			rl.reject(ctx, c)
			return
		}

		c.Next(ctx)
	}
}

func (rl *RateLimiter) reject(ctx context.Context, c *app.RequestContext) {
	response.Error(ctx, c, errors.TooManyRequests)
	c.Abort()
}

var (
	checkInLimiterOnce sync.Once
	checkInLimiter     app.HandlerFunc
)

// CheckInRateLimitMiddleware 打卡接口按调用方限流，窗口 1 秒，上限取 RATE_LIMIT_RPS
func CheckInRateLimitMiddleware() app.HandlerFunc {
	checkInLimiterOnce.Do(func() {
		if !appconfig.Cfg.RateLimitEnabled {
			checkInLimiter = func(ctx context.Context, c *app.RequestContext) { c.Next(ctx) }
			return
		}
		checkInLimiter = NewRateLimiter(NewRedisWindowStore(redis.Client()), RateLimitConfig{
			KeyPrefix:   "rate:checkin",
			Window:      time.Second,
			MaxRequests: appconfig.Cfg.RateLimitRPS,
			ByCaller:    true,
		}).Middleware()
	})
	return checkInLimiter
}
