package database

import (
	"context"

	"gorm.io/gorm"
)

// Provider 数据库提供者接口
type Provider interface {
	// DB 返回底层 *gorm.DB 实例
	DB() *gorm.DB

	// Ping 检查数据库连接
	Ping(ctx context.Context) error

	Close() error

	// Name 返回数据库类型
	Name() string
}
