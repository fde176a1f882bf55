package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/z-wentao/speechflow/pkg/config"
)

// New 根据配置创建存储
func New(ctx context.Context, cfg config.StorageConfig, log *logrus.Entry) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewJobStore(), nil

	case "redis":
		return NewRedisJobStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)

	case "postgres":
		return NewPostgresJobStore(ctx, cfg.Postgres.DSN)

	case "hybrid":
		hot, err := NewRedisJobStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			return nil, err
		}
		cold, err := NewPostgresJobStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			hot.Close()
			return nil, err
		}
		return NewHybridJobStore(hot, cold, log), nil

	default:
		return nil, fmt.Errorf("不支持的存储类型: %s", cfg.Type)
	}
}
