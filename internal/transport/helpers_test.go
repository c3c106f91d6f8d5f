package transport

import (
	"io"
	"strings"

	"golang.org/x/time/rate"
)

func bytesReader(s string) io.Reader {
	return strings.NewReader(s)
}

// newTestLimiter 每分钟一个令牌，足以让第二次请求等待
func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(1.0/60), 1)
}
