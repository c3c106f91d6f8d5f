package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/anoixa/image-gallery/api/common"
	"github.com/anoixa/image-gallery/utils"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// IPRateLimiter 按客户端地址限流，本地 API 通常只有少数几个视图在用
type IPRateLimiter struct {
	rps        float64
	burst      int
	expireTime time.Duration
	limiterMap sync.Map
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// NewIPRateLimiter 创建限流器，rps <= 0 时不限流
func NewIPRateLimiter(rps float64, burst int, expireTime time.Duration) *IPRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if expireTime <= 0 {
		expireTime = 10 * time.Minute
	}
	limiter := &IPRateLimiter{
		rps:        rps,
		burst:      burst,
		expireTime: expireTime,
		stopChan:   make(chan struct{}),
	}
	if rps > 0 {
		utils.SafeGo(limiter.cleanupStaleClients)
	}
	return limiter
}

// Middleware 返回 gin 中间件
func (rl *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rps <= 0 {
			c.Next()
			return
		}

		val, _ := rl.limiterMap.LoadOrStore(c.ClientIP(), &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(rl.rps), rl.burst),
		})
		client := val.(*clientLimiter)
		client.mu.Lock()
		client.lastSeen = time.Now()
		client.mu.Unlock()

		if !client.limiter.Allow() {
			common.RespondErrorAbort(c, http.StatusTooManyRequests, "Too many requests")
			return
		}
		c.Next()
	}
}

// StopCleanup 停止后台清理
func (rl *IPRateLimiter) StopCleanup() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}

func (rl *IPRateLimiter) cleanupStaleClients() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.limiterMap.Range(func(key, value interface{}) bool {
				client := value.(*clientLimiter)
				client.mu.Lock()
				stale := time.Since(client.lastSeen) > rl.expireTime
				client.mu.Unlock()
				if stale {
					rl.limiterMap.Delete(key)
				}
				return true
			})
		case <-rl.stopChan:
			return
		}
	}
}
