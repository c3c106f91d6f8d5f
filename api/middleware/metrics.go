package middleware

import (
	"time"

	"github.com/anoixa/image-gallery/internal/metrics"
	"github.com/gin-gonic/gin"
)

// Metrics 记录请求耗时，按路由模板聚合
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.ObserveAPIRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start).Seconds())
	}
}
