package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/anoixa/image-gallery/config"
	"github.com/anoixa/image-gallery/database/models"
	"github.com/anoixa/image-gallery/utils"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// defaultSQLitePath db_file_path 为空时的会话库位置
const defaultSQLitePath = "./data/gallery.db"

// NewDB 按 session_store_type 打开会话库
func NewDB(cfg *config.Config) (*gorm.DB, error) {
	dialector, target, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 sessionDBLogger(),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open session database %s: %w", target, err)
	}
	utils.LogIfDevf("[Database] Session store: %s", target)

	if sqlDB, err := db.DB(); err == nil {
		if cfg.DBMaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
		}
		if cfg.DBMaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
		}
		if cfg.DBConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Second)
		}
	}
	return db, nil
}

// dialectorFor 返回驱动和用于日志的目标描述（不含密码）
func dialectorFor(cfg *config.Config) (gorm.Dialector, string, error) {
	switch cfg.SessionStoreType {
	case "", "sqlite", "sqlite3":
		path := cfg.DBFilePath
		if path == "" {
			path = defaultSQLitePath
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, "", fmt.Errorf("create session database directory: %w", err)
		}
		// 单用户客户端，WAL 足够
		return sqlite.Open(path + "?_journal_mode=WAL"), "sqlite:" + path, nil
	case "postgres", "postgresql":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.DBHost, cfg.DBPort, cfg.DBUsername, cfg.DBPassword, cfg.DBName)
		target := fmt.Sprintf("postgres:%s@%s:%d/%s", cfg.DBUsername, cfg.DBHost, cfg.DBPort, cfg.DBName)
		return postgres.Open(dsn), target, nil
	}
	return nil, "", fmt.Errorf("unsupported database type: %s", cfg.SessionStoreType)
}

// sessionDBLogger 开发环境输出慢查询和错误，其余情况静默
func sessionDBLogger() logger.Interface {
	if !config.IsDevelopment() {
		return logger.Default.LogMode(logger.Silent)
	}
	return logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  true,
	})
}

// AutoMigrate 迁移客户端状态表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.ClientState{})
}
