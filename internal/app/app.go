package app

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/anoixa/image-gallery/cache"
	"github.com/anoixa/image-gallery/config"
	"github.com/anoixa/image-gallery/internal/fetch"
	store "github.com/anoixa/image-gallery/internal/gallery"
	"github.com/anoixa/image-gallery/internal/services/gallery"
	"github.com/anoixa/image-gallery/internal/session"
	"github.com/anoixa/image-gallery/internal/transport"
	"github.com/anoixa/image-gallery/internal/worker"
	"github.com/anoixa/image-gallery/utils"
	cryptopackage "github.com/anoixa/image-gallery/utils/crypto"
)

// Container 依赖注入容器 - 管理所有服务的生命周期
type Container struct {
	config *config.Config

	client    *transport.Client
	session   *session.Context
	cache     cache.Provider
	store     *store.Store
	gallery   *gallery.Service
	pool      *worker.Pool
	refresher *worker.Refresher
}

// NewContainer 创建新的依赖注入容器
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config: cfg,
	}
}

// Init 初始化所有服务，会话会从持久化存储中恢复
func (c *Container) Init(ctx context.Context) error {
	utils.LogIfDev("Initializing container...")

	client, err := transport.NewFromConfig(c.config)
	if err != nil {
		return fmt.Errorf("failed to initialize transport: %w", err)
	}
	c.client = client

	if err := c.initSession(ctx); err != nil {
		return fmt.Errorf("failed to initialize session: %w", err)
	}

	provider, err := cache.NewFromConfig(c.config)
	if err != nil {
		// 释放会话存储，bolt 持有文件锁
		if closeErr := c.session.Close(); closeErr != nil {
			log.Printf("[Container] Error closing session store: %v", closeErr)
		}
		c.session = nil
		return fmt.Errorf("failed to initialize variant cache: %w", err)
	}
	c.cache = provider

	c.store = store.New()
	c.gallery = gallery.NewService(c.client, c.session, c.store,
		cache.NewVariantCache(provider, c.config.CacheVariantTTL), c.config.HydrateConcurrency)
	c.gallery.SetScope(DefaultScope(c.config))

	utils.LogIfDev("Container initialized successfully")
	return nil
}

// initSession 派生会话密钥并恢复上次的会话
func (c *Container) initSession(ctx context.Context) error {
	st, err := session.NewStoreFromConfig(c.config)
	if err != nil {
		return err
	}

	keys := cryptopackage.NewMasterKeyManager(keyDir(c.config))
	if err := keys.Initialize(c.config.SessionSecret); err != nil {
		_ = st.Close()
		return err
	}
	codec, err := session.NewCodec(keys.GetKey())
	if err != nil {
		_ = st.Close()
		return err
	}

	c.session = session.New(c.client, st, codec)
	c.session.Restore(ctx)
	return nil
}

// StartBackground 启动协程池与定时刷新，仅 serve 模式需要
func (c *Container) StartBackground() {
	if c.pool != nil {
		return
	}
	c.pool = worker.NewPool(c.config.WorkerCount, 16)
	c.refresher = worker.NewRefresher(c.pool, c.config.RefreshInterval, RefreshTimeout(c.config), c.gallery.Refresh)
	c.refresher.Start()
}

// TriggerRefresh 在后台刷新画廊，已有刷新在进行时返回 false
func (c *Container) TriggerRefresh() bool {
	if c.refresher == nil {
		return false
	}
	return c.refresher.Trigger()
}

// Gallery 画廊服务
func (c *Container) Gallery() *gallery.Service {
	return c.gallery
}

// Session 会话上下文
func (c *Container) Session() *session.Context {
	return c.session
}

// Store 共享画廊缓存
func (c *Container) Store() *store.Store {
	return c.store
}

// Cache 滤镜变体缓存提供者
func (c *Container) Cache() cache.Provider {
	return c.cache
}

// Pool 后台协程池，未启动时为 nil
func (c *Container) Pool() *worker.Pool {
	return c.pool
}

// GetConfig 获取配置
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// Close 关闭所有服务
func (c *Container) Close() error {
	utils.LogIfDev("Closing container...")

	if c.refresher != nil {
		c.refresher.Stop()
	}
	if c.pool != nil {
		c.pool.Stop()
	}
	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			log.Printf("[Container] Error closing cache: %v", err)
		}
	}
	if c.session != nil {
		if err := c.session.Close(); err != nil {
			log.Printf("[Container] Error closing session store: %v", err)
		}
	}

	utils.LogIfDev("Container closed")
	return nil
}

// DefaultScope 根据配置确定启动时的画廊范围
func DefaultScope(cfg *config.Config) fetch.Scope {
	switch cfg.DefaultScope {
	case "own":
		return gallery.OwnImages(true)
	case "user":
		if cfg.DefaultUser != "" {
			return fetch.UserImages(cfg.DefaultUser, false, "")
		}
		log.Println("[Container] default_scope=user without default_user, using all")
	}
	return fetch.AllImages()
}

// keyDir master.key 所在目录，与会话文件放在一起
func keyDir(cfg *config.Config) string {
	var path string
	switch strings.ToLower(cfg.SessionStoreType) {
	case "bolt":
		path = cfg.SessionBoltPath
	case "sqlite":
		path = cfg.DBFilePath
	default:
		path = cfg.SessionFilePath
	}
	if path == "" {
		return "./data"
	}
	return filepath.Dir(path)
}

// RefreshTimeout 单次刷新的超时时间
func RefreshTimeout(cfg *config.Config) time.Duration {
	if cfg.RemoteTimeout <= 0 {
		return time.Minute
	}
	return cfg.RemoteTimeout * 2
}
