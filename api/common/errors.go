package common

import (
	"context"
	"errors"
	"net/http"

	"github.com/anoixa/image-gallery/internal/display"
	"github.com/anoixa/image-gallery/internal/fetch"
	store "github.com/anoixa/image-gallery/internal/gallery"
	"github.com/anoixa/image-gallery/internal/services/gallery"
	"github.com/anoixa/image-gallery/internal/session"
	"github.com/anoixa/image-gallery/internal/transport"
	"github.com/gin-gonic/gin"
)

// StatusFor 将服务层错误映射为本地 API 状态码
// 远端的 4xx 原样透传，远端 5xx 与网络错误统一为 502
func StatusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrMissingCredentials),
		errors.Is(err, gallery.ErrInvalidUpload),
		errors.Is(err, gallery.ErrInvalidFilter),
		errors.Is(err, fetch.ErrInvalidScope):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotInCache):
		return http.StatusNotFound
	case errors.Is(err, gallery.ErrReloadSuperseded):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case display.IsDecodeError(err), errors.Is(err, gallery.ErrUnexpectedResponse):
		return http.StatusBadGateway
	}

	if code := transport.StatusCode(err); code >= 400 && code < 500 {
		return code
	}
	var te *transport.Error
	if errors.As(err, &te) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// RespondServiceError 按错误类型返回错误响应
func RespondServiceError(c *gin.Context, err error) {
	RespondError(c, StatusFor(err), err.Error())
}
