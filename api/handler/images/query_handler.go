package images

import (
	"net/http"
	"strconv"

	"github.com/anoixa/image-gallery/api/common"
	"github.com/anoixa/image-gallery/internal/models"
	"github.com/anoixa/image-gallery/internal/services/gallery"
	"github.com/gin-gonic/gin"
)

// LikeStatus 当前用户是否已点赞
// @Summary      Like status
// @Description  Whether the current user likes the image
// @Tags         likes
// @Produce      json
// @Param        id  path  int  true  "Image ID"
// @Success      200  {object}  common.Response  "Like status"
// @Failure      401  {object}  common.Response  "Login required"
// @Failure      502  {object}  common.Response  "Remote service failure"
// @Router       /gallery/images/{id}/like-status [get]
func (h *Handler) LikeStatus(c *gin.Context) {
	id, ok := imageID(c)
	if !ok {
		return
	}
	liked, err := h.service.LikeStatus(c.Request.Context(), id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	common.RespondSuccess(c, gin.H{"id": id, "isLiked": liked})
}

type similarQuery struct {
	Number     int    `form:"number" binding:"required,min=1"`
	Descriptor string `form:"descriptor" binding:"required,oneof=rgbcube huesat"`
}

// Similar 相似图片，结果不进入共享缓存
// @Summary      Similar images
// @Description  Similarity search; results are not merged into the gallery
// @Tags         gallery
// @Produce      json
// @Param        id  path  int  true  "Image ID"
// @Param        number      query  int     true   "Number of results"
// @Param        descriptor  query  string  false  "rgbcube or huesat"
// @Success      200  {object}  common.Response  "Similar images"
// @Failure      400  {object}  common.Response  "Invalid query"
// @Failure      502  {object}  common.Response  "Remote service failure"
// @Router       /gallery/images/{id}/similar [get]
func (h *Handler) Similar(c *gin.Context) {
	id, ok := imageID(c)
	if !ok {
		return
	}
	var q similarQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.service.Similar(c.Request.Context(), id, q.Number, models.SimilarityDescriptor(q.Descriptor))
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	common.RespondSuccess(c, gin.H{"source": id, "images": records})
}

// Filter 滤镜变体
// @Summary      Filter image
// @Description  Server-side filter variant as a data URL
// @Tags         gallery
// @Produce      json
// @Param        id  path  int  true  "Image ID"
// @Param        filter  query  string  true   "gradienImage, modif_lum, invert or rotation"
// @Param        number  query  int     false  "Filter parameter"
// @Param        height  query  int     false  "Output height"
// @Success      200  {object}  common.Response  "Filtered data URL"
// @Failure      400  {object}  common.Response  "Invalid filter"
// @Failure      502  {object}  common.Response  "Remote service failure"
// @Router       /gallery/images/{id}/filter [get]
func (h *Handler) Filter(c *gin.Context) {
	id, ok := imageID(c)
	if !ok {
		return
	}

	params := gallery.FilterParams{Filter: c.Query("filter")}
	var err error
	if v := c.Query("number"); v != "" {
		if params.Number, err = strconv.Atoi(v); err != nil {
			common.RespondError(c, http.StatusBadRequest, "'number' must be an integer")
			return
		}
	}
	if v := c.Query("height"); v != "" {
		if params.Height, err = strconv.Atoi(v); err != nil {
			common.RespondError(c, http.StatusBadRequest, "'height' must be an integer")
			return
		}
	}

	dataURL, err := h.service.Filter(c.Request.Context(), id, params)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	common.RespondSuccess(c, gin.H{"id": id, "filter": params.Filter, "payload": dataURL})
}
