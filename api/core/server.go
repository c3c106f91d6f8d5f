package core

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anoixa/image-gallery/api/middleware"
	"github.com/anoixa/image-gallery/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter 创建 gin 引擎并注册全部路由，返回的 cleanup 用于停止后台清理
func NewRouter(deps *RouterDependencies) (*gin.Engine, func()) {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Get()
	}

	router := gin.New()
	// 仅在开发版本时启用 gin 日志
	if config.IsDevelopment() {
		router.Use(gin.Logger())
	}
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOriginFunc:  isLocalOrigin,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	_ = router.SetTrustedProxies(nil)

	uploadMaxSizeMB := cfg.UploadMaxSizeMB
	if uploadMaxSizeMB <= 0 {
		uploadMaxSizeMB = 50
	}
	router.MaxMultipartMemory = int64(uploadMaxSizeMB) << 20

	// 每个请求都可能扇出成多次远端请求
	router.Use(middleware.NewConcurrencyLimiter(int64(cfg.WorkerCount) * 16).Middleware())
	// 请求体上限留出 multipart 头部的余量
	router.Use(middleware.MaxBytesReader(int64(uploadMaxSizeMB+1) << 20))
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())

	if deps.APIRateLimit == nil {
		deps.APIRateLimit = middleware.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute)
	}
	RegisterRoutes(router, deps)

	return router, deps.APIRateLimit.StopCleanup
}

// StartServer 创建 http.Server
func StartServer(deps *RouterDependencies) (*http.Server, func()) {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Get()
	}
	router, cleanup := NewRouter(deps)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// 上传与整页水合可能较慢
		WriteTimeout: 2 * cfg.RemoteTimeout,
		IdleTimeout:  2 * time.Minute,
	}
	if srv.WriteTimeout <= 0 {
		srv.WriteTimeout = time.Minute
	}
	return srv, cleanup
}

// isLocalOrigin 只允许本机上的视图跨域访问
func isLocalOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
