package database

import (
	"context"
	"time"

	"farm-advisor-go/internal/config"
	"farm-advisor-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// RDB 保存最近对话与已注销的 token。
var RDB *redis.Client

// InitRedis 连接 Redis，连接失败时终止进程。
func InitRedis(cfg config.RedisConfig) {
	RDB = redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	log.Infof("Redis client connected: %s (db %d)", cfg.Addr, cfg.DB)
}

// CloseRedis 关闭 Redis 连接池。
func CloseRedis() {
	if RDB == nil {
		return
	}
	if err := RDB.Close(); err != nil {
		log.Errorf("关闭 Redis 连接失败: %v", err)
	}
}
