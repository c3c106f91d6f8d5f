package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/anoixa/image-gallery/config"
)

// Provider 缓存提供者接口
type Provider interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
	Name() string
}

// ErrCacheMiss 缓存未命中错误
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Config 缓存配置
type Config struct {
	Type        string // "memory" or "redis"
	NumCounters int64  // memory only
	MaxCost     int64  // memory only
	BufferItems int64  // memory only
	Metrics     bool   // memory only
	Address     string // redis only
	Password    string // redis only
	DB          int    // redis only
	PoolSize    int    // redis only
}

// New 按配置创建缓存提供者
func New(cfg Config) (Provider, error) {
	switch cfg.Type {
	case "memory", "":
		memConfig := MemoryConfig{
			NumCounters: cfg.NumCounters,
			MaxCost:     cfg.MaxCost,
			BufferItems: cfg.BufferItems,
			Metrics:     cfg.Metrics,
		}
		if memConfig.NumCounters == 0 {
			memConfig.NumCounters = 100000
		}
		if memConfig.MaxCost == 0 {
			memConfig.MaxCost = 268435456 // 256MB
		}
		if memConfig.BufferItems == 0 {
			memConfig.BufferItems = 64
		}
		return NewMemoryCache(memConfig)
	case "redis":
		return NewRedisCache(RedisConfig{
			Address:  cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		})
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// NewFromConfig 使用全局配置创建滤镜变体缓存
// redis 不可用时退回内存缓存，变体缓存丢失只影响性能
func NewFromConfig(cfg *config.Config) (Provider, error) {
	cacheCfg := Config{
		Type:    cfg.CacheType,
		MaxCost: cfg.CacheMaxCostMB * 1024 * 1024,
		Metrics: true,
	}
	if cfg.CacheType == "redis" {
		cacheCfg.Address = cfg.CacheRedisAddr
		cacheCfg.Password = cfg.CacheRedisPassword
		cacheCfg.DB = cfg.CacheRedisDB
		cacheCfg.PoolSize = 10
	}

	provider, err := New(cacheCfg)
	if err != nil && cfg.CacheType == "redis" {
		log.Printf("[Cache] Redis at %s unavailable, falling back to memory: %v", cfg.CacheRedisAddr, err)
		return New(Config{Type: "memory", MaxCost: cacheCfg.MaxCost, Metrics: true})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create cache provider: %w", err)
	}
	return provider, nil
}
