package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// NewClient 创建 Redis 客户端并检查连通性
func NewClient(ctx context.Context, cfg *Config) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("Redis 地址为空")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 20
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}
	return rdb, nil
}
