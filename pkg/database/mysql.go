// Package database 负责 MySQL 与 Redis 连接的初始化。
package database

import (
	"time"

	"farm-advisor-go/internal/config"
	"farm-advisor-go/pkg/log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 保存用户与聊天记录表。
var DB *gorm.DB

// InitMySQL 连接 MySQL 并自动迁移给定的模型，任一步失败都会终止进程。
func InitMySQL(cfg config.MySQLConfig, models ...interface{}) {
	var err error
	DB, err = gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatal("failed to connect database", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatal("failed to get sql.DB", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if len(models) > 0 {
		if err := DB.AutoMigrate(models...); err != nil {
			log.Fatal("failed to migrate database", err)
		}
	}

	log.Infof("MySQL connected, %d models migrated", len(models))
}
