package redis

import (
	"context"
	"fmt"
	"time"

	"Trendline/backend/go/internal/config"
	"Trendline/backend/go/internal/state"
	"Trendline/backend/go/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// 启动时 Redis 可能还没就绪，Ping 失败后按指数退避重试。
const (
	connectAttempts = 5
	connectBackoff  = 500 * time.Millisecond
)

// Conn 持有实体存储使用的 Redis 连接。
type Conn struct {
	client *redis.Client
	cfg    config.RedisConfig
}

// Connect 建立连接并确认 Redis 可用，ctx 取消时立即放弃重试。
func Connect(ctx context.Context, cfg *config.RedisConfig, log *logger.Logger) (*Conn, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	log = log.WithField("address", cfg.Address)

	wait := connectBackoff
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if err = rdb.Ping(ctx).Err(); err == nil {
			log.Info("成功连接到 Redis")
			return &Conn{client: rdb, cfg: *cfg}, nil
		}
		if attempt == connectAttempts {
			break
		}
		log.WithErr("redis_error", err).WithField("attempt", attempt).Warn("Redis 暂不可用，稍后重试")
		select {
		case <-ctx.Done():
			_ = rdb.Close()
			return nil, fmt.Errorf("无法连接到 Redis: %w", ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}
	_ = rdb.Close()
	return nil, fmt.Errorf("无法连接到 Redis: %w", err)
}

// Store 返回按配置的键前缀和锁过期时间构造的实体存储。
func (c *Conn) Store(init state.Initializer) *state.RedisStore {
	return state.NewRedisStore(c.client,
		state.WithRedisPrefix(c.cfg.KeyPrefix),
		state.WithRedisLockTTL(config.Duration(c.cfg.LockTTL, 2*time.Minute)),
		state.WithRedisInitializer(init),
	)
}

// HealthCheck 供 /healthz 使用。
func (c *Conn) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Conn) Close() error {
	return c.client.Close()
}
