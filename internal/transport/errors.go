package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// Error 远端请求失败（网络错误或非 2xx 状态码）
type Error struct {
	Method     string
	Path       string
	StatusCode int    // 0 表示请求未得到响应
	Body       string // 服务端返回的错误信息，截断后保存
	Cause      error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Cause)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrUnexpectedStatus 非 2xx 响应的底层原因
var ErrUnexpectedStatus = errors.New("unexpected status")

// StatusCode 提取错误中的 HTTP 状态码，不是传输错误时返回 0
func StatusCode(err error) int {
	var te *Error
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}

// IsNotFound 服务端返回 404
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsUnauthorized 服务端拒绝身份（401 / 403）
func IsUnauthorized(err error) bool {
	code := StatusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
