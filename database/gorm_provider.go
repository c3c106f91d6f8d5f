package database

import (
	"context"
	"fmt"
	"log"

	"github.com/anoixa/image-gallery/config"
	"gorm.io/gorm"
)

// GormProvider GORM 数据库提供者实现
type GormProvider struct {
	db     *gorm.DB
	dbType string
}

// NewGormProvider 连接数据库并完成迁移
func NewGormProvider(cfg *config.Config) (*GormProvider, error) {
	db, err := NewDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to auto migrate database: %w", err)
	}
	return &GormProvider{db: db, dbType: cfg.SessionStoreType}, nil
}

// NewGormProviderFromDB 包装已有连接，测试中使用内存 SQLite
func NewGormProviderFromDB(db *gorm.DB, dbType string) (*GormProvider, error) {
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to auto migrate database: %w", err)
	}
	return &GormProvider{db: db, dbType: dbType}, nil
}

// DB 返回底层 *gorm.DB 实例
func (p *GormProvider) DB() *gorm.DB {
	return p.db
}

// Ping 检查数据库连接，/health 通过会话存储调用
func (p *GormProvider) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (p *GormProvider) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	log.Println("[Database] Closing database connection...")
	return sqlDB.Close()
}

// Name 返回数据库名称
func (p *GormProvider) Name() string {
	return p.dbType
}
