package images

import (
	"net/http"

	"github.com/anoixa/image-gallery/api/common"
	"github.com/anoixa/image-gallery/internal/fetch"
	"github.com/anoixa/image-gallery/internal/models"
	"github.com/anoixa/image-gallery/internal/services/gallery"
	"github.com/gin-gonic/gin"
)

type galleryResponse struct {
	Version uint64               `json:"version"`
	Scope   string               `json:"scope"`
	Total   int                  `json:"total"`
	Images  []models.ImageRecord `json:"images"`
}

// ListImages 当前缓存中的图片
// metadata_only=true 时省略 payload
// @Summary      List gallery
// @Description  Current records of the shared gallery cache
// @Tags         gallery
// @Produce      json
// @Param        metadata_only  query  bool  false  "Omit display payloads"
// @Success      200  {object}  common.Response  "Gallery snapshot"
// @Router       /gallery [get]
func (h *Handler) ListImages(c *gin.Context) {
	st := h.service.Store()
	version := st.Version()
	records := st.Snapshot()

	if c.Query("metadata_only") == "true" {
		for i := range records {
			records[i].Payload = ""
		}
	}

	common.RespondSuccess(c, galleryResponse{
		Version: version,
		Scope:   h.service.Scope().String(),
		Total:   len(records),
		Images:  records,
	})
}

// GetImage 读取单条缓存记录
// @Summary      Get cached image
// @Description  Single record from the shared gallery cache
// @Tags         gallery
// @Produce      json
// @Param        id  path  int  true  "Image ID"
// @Success      200  {object}  common.Response  "Image record"
// @Failure      400  {object}  common.Response  "Invalid image ID"
// @Failure      404  {object}  common.Response  "Image not in cache"
// @Router       /gallery/{id} [get]
func (h *Handler) GetImage(c *gin.Context) {
	id, ok := imageID(c)
	if !ok {
		return
	}
	record, err := h.service.Image(id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	common.RespondSuccess(c, record)
}

type refreshRequest struct {
	Scope          string `json:"scope" binding:"omitempty,oneof=all own user"`
	UserID         string `json:"userid"`
	IncludePrivate bool   `json:"include_private"`
}

// RefreshGallery 在后台重新加载画廊，可同时切换范围
// @Summary      Refresh gallery
// @Description  Reload the gallery from the remote service, optionally switching scope
// @Tags         gallery
// @Accept       json
// @Produce      json
// @Param        request  body  refreshRequest  false  "Scope to load"
// @Success      202  {object}  common.Response  "Refresh queued"
// @Failure      400  {object}  common.Response  "Invalid scope"
// @Failure      401  {object}  common.Response  "Own scope requires a session"
// @Failure      502  {object}  common.Response  "Remote service failure"
// @Router       /gallery/refresh [post]
func (h *Handler) RefreshGallery(c *gin.Context) {
	var req refreshRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			common.RespondError(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	switch req.Scope {
	case "all":
		h.service.SetScope(fetch.AllImages())
	case "own":
		h.service.SetScope(gallery.OwnImages(req.IncludePrivate))
	case "user":
		if req.UserID == "" {
			common.RespondError(c, http.StatusBadRequest, "userid is required for the user scope")
			return
		}
		h.service.SetScope(fetch.UserImages(req.UserID, req.IncludePrivate, ""))
	}

	if h.refresher == nil {
		if err := h.service.Refresh(c.Request.Context()); err != nil {
			common.RespondServiceError(c, err)
			return
		}
		common.RespondSuccessMessage(c, "Gallery refreshed", gin.H{"version": h.service.Store().Version()})
		return
	}

	if !h.refresher.TriggerRefresh() {
		common.RespondAccepted(c, "Refresh already in progress")
		return
	}
	common.RespondAccepted(c, "Refresh queued")
}
