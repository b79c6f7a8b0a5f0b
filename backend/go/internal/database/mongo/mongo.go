package mongo

import (
	"context"
	"fmt"
	"time"

	"Trendline/backend/go/internal/config"
	"Trendline/backend/go/internal/state"
	"Trendline/backend/go/pkg/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const connectTimeout = 10 * time.Second

// Conn 持有实体存储使用的 MongoDB 连接。
type Conn struct {
	client *mongo.Client
	cfg    config.MongoConfig
}

// Connect 建立连接并 Ping 主节点。实体的版本比较要求读写都落在主节点上。
func Connect(ctx context.Context, cfg *config.MongoConfig, log *logger.Logger) (*Conn, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.Address).
		SetAppName("trendline").
		SetReadPreference(readpref.Primary())
	// 如果配置了用户名和密码，则设置认证信息。
	if cfg.Username != "" && cfg.Password != "" {
		clientOptions.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	c, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("无法连接到 MongoDB: %w", err)
	}
	if err = c.Ping(ctx, readpref.Primary()); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, fmt.Errorf("无法 Ping MongoDB: %w", err)
	}

	log.WithField("database", cfg.Database).Info("成功连接到 MongoDB")
	return &Conn{client: c, cfg: *cfg}, nil
}

// Store 在配置的集合上构造实体存储，并确保 ListEntities 用到的索引存在。
func (c *Conn) Store(ctx context.Context, init state.Initializer) (*state.MongoStore, error) {
	s := state.NewMongoStore(c.client.Database(c.cfg.Database), c.cfg.Collection, state.WithMongoInitializer(init))
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("创建 MongoDB 索引失败: %w", err)
	}
	return s, nil
}

// HealthCheck 供 /healthz 使用。
func (c *Conn) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close 断开客户端连接。
func (c *Conn) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
