package core

import (
	"context"
	"net/http"
	"time"

	"github.com/anoixa/image-gallery/cache"
	"github.com/anoixa/image-gallery/config"
	"github.com/anoixa/image-gallery/internal/session"
	"github.com/anoixa/image-gallery/internal/worker"
	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

// HealthHandler 健康检查
type HealthHandler struct {
	deps *RouterDependencies
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(deps *RouterDependencies) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// Handle 任何一项检查失败时返回 503
func (h *HealthHandler) Handle(context *gin.Context) {
	checks := gin.H{
		"cache":         checkCacheHealth(context.Request.Context(), h.deps.CacheProvider),
		"worker":        checkWorkerHealth(h.deps.Pool),
		"session_store": checkSessionStoreHealth(context.Request.Context(), h.deps.Sessions),
	}
	health := gin.H{
		"status":  "ok",
		"uptime":  time.Since(startTime).Round(time.Second).String(),
		"version": config.Version,
		"checks":  checks,
	}
	if h.deps.Gallery != nil {
		st := h.deps.Gallery.Store()
		health["gallery"] = gin.H{
			"records": st.Len(),
			"version": st.Version(),
			"scope":   h.deps.Gallery.Scope().String(),
		}
	}
	if h.deps.Sessions != nil {
		_, authenticated := h.deps.Sessions.Current()
		health["authenticated"] = authenticated
	}

	httpStatus := http.StatusOK
	for _, result := range checks {
		if result != "ok" && result != "disabled" {
			health["status"] = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}
	context.JSON(httpStatus, health)
}

// checkCacheHealth 只有 redis 需要探测
func checkCacheHealth(ctx context.Context, provider cache.Provider) string {
	if provider == nil {
		return "disabled"
	}
	if pinger, ok := provider.(interface{ Health(context.Context) error }); ok {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := pinger.Health(ctx); err != nil {
			return "unavailable: " + err.Error()
		}
	}
	return "ok"
}

// checkSessionStoreHealth 数据库存储时探测连接
func checkSessionStoreHealth(ctx context.Context, sessions *session.Context) string {
	if sessions == nil {
		return "disabled"
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sessions.StoreHealth(ctx); err != nil {
		return "unavailable: " + err.Error()
	}
	return "ok"
}

func checkWorkerHealth(pool *worker.Pool) string {
	if pool == nil {
		return "disabled"
	}
	stats := pool.GetStats()
	if stats.QueueLen >= stats.QueueCap {
		return "queue full"
	}
	return "ok"
}
