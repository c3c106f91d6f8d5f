package images

import (
	"net/http"
	"strconv"

	"github.com/anoixa/image-gallery/api/common"
	"github.com/anoixa/image-gallery/internal/services/gallery"
	"github.com/gin-gonic/gin"
)

// Refresher 后台刷新
type Refresher interface {
	TriggerRefresh() bool
}

// Handler 图片处理器
type Handler struct {
	service        *gallery.Service
	refresher      Refresher
	maxUploadBytes int64
}

// NewHandler 图片处理器
func NewHandler(service *gallery.Service, refresher Refresher, uploadMaxSizeMB int) *Handler {
	if uploadMaxSizeMB <= 0 {
		uploadMaxSizeMB = 50
	}
	return &Handler{
		service:        service,
		refresher:      refresher,
		maxUploadBytes: int64(uploadMaxSizeMB) << 20,
	}
}

// imageID 解析路径中的图片 ID，失败时已经写入响应
func imageID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		common.RespondError(c, http.StatusBadRequest, "Invalid image id")
		return 0, false
	}
	return id, true
}
