package images

import (
	"context"
	"net/http"
	"strconv"

	"github.com/anoixa/image-gallery/api/common"
	"github.com/gin-gonic/gin"
)

// DeleteImage 删除图片
// @Summary      Delete image
// @Description  Delete an image on the remote service and drop it from the cache
// @Tags         images
// @Produce      json
// @Param        id  path  int  true  "Image ID"
// @Success      200  {object}  common.Response  "Image deleted"
// @Failure      400  {object}  common.Response  "Invalid image ID"
// @Failure      502  {object}  common.Response  "Remote service failure"
// @Router       /gallery/images/{id} [delete]
func (h *Handler) DeleteImage(c *gin.Context) {
	id, ok := imageID(c)
	if !ok {
		return
	}
	if _, err := h.service.Delete(c.Request.Context(), id); err != nil {
		common.RespondServiceError(c, err)
		return
	}
	common.RespondSuccessMessage(c, "Image deleted successfully", gin.H{"id": id})
}

// TogglePrivacy 切换公开状态
// @Summary      Toggle privacy
// @Description  Flip the public flag of an image
// @Tags         images
// @Produce      json
// @Param        id  path  int  true  "Image ID"
// @Success      200  {object}  common.Response  "New public flag"
// @Failure      400  {object}  common.Response  "Invalid image ID"
// @Failure      403  {object}  common.Response  "Not allowed by the remote service"
// @Failure      502  {object}  common.Response  "Remote service failure"
// @Router       /gallery/images/{id}/privacy [patch]
func (h *Handler) TogglePrivacy(c *gin.Context) {
	id, ok := imageID(c)
	if !ok {
		return
	}
	public, err := h.service.TogglePrivacy(c.Request.Context(), id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	visibility := "private"
	if public {
		visibility = "public"
	}
	common.RespondSuccessMessage(c, "Image visibility updated successfully", gin.H{
		"id":         id,
		"ispublic":   public,
		"visibility": visibility,
	})
}

// Like 点赞
// @Summary      Like image
// @Description  Like an image as the current user
// @Tags         likes
// @Produce      json
// @Param        id  path  int  true  "Image ID"
// @Success      200  {object}  common.Response  "Server like count"
// @Failure      401  {object}  common.Response  "Login required"
// @Failure      502  {object}  common.Response  "Remote service failure"
// @Router       /gallery/images/{id}/like [post]
func (h *Handler) Like(c *gin.Context) {
	h.likes(c, h.service.Like)
}

// Unlike 取消点赞
// @Summary      Unlike image
// @Description  Remove the current user's like
// @Tags         likes
// @Produce      json
// @Param        id  path  int  true  "Image ID"
// @Success      200  {object}  common.Response  "Server like count"
// @Failure      401  {object}  common.Response  "Login required"
// @Failure      502  {object}  common.Response  "Remote service failure"
// @Router       /gallery/images/{id}/unlike [post]
func (h *Handler) Unlike(c *gin.Context) {
	h.likes(c, h.service.Unlike)
}

// ToggleLike 切换点赞
// @Summary      Toggle like
// @Description  Toggle the current user's like
// @Tags         likes
// @Produce      json
// @Param        id  path  int  true  "Image ID"
// @Success      200  {object}  common.Response  "Server like count"
// @Failure      401  {object}  common.Response  "Login required"
// @Failure      502  {object}  common.Response  "Remote service failure"
// @Router       /gallery/images/{id}/toggle-like [put]
func (h *Handler) ToggleLike(c *gin.Context) {
	h.likes(c, h.service.ToggleLike)
}

// SetLikes 直接设置点赞数
// @Summary      Set like count
// @Description  Set the like count of an image
// @Tags         likes
// @Produce      json
// @Param        id  path  int  true  "Image ID"
// @Param        likes  query  int  true  "Like count"
// @Success      200  {object}  common.Response  "Server like count"
// @Failure      400  {object}  common.Response  "Invalid like count"
// @Failure      502  {object}  common.Response  "Remote service failure"
// @Router       /gallery/images/{id}/set-likes [put]
func (h *Handler) SetLikes(c *gin.Context) {
	id, ok := imageID(c)
	if !ok {
		return
	}
	n, err := strconv.Atoi(c.Query("likes"))
	if err != nil || n < 0 {
		common.RespondError(c, http.StatusBadRequest, "'likes' must be a non-negative integer")
		return
	}
	likes, err := h.service.SetLikes(c.Request.Context(), id, n)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	common.RespondSuccess(c, gin.H{"id": id, "likes": likes})
}

func (h *Handler) likes(c *gin.Context, op func(context.Context, int64) (int, error)) {
	id, ok := imageID(c)
	if !ok {
		return
	}
	likes, err := op(c.Request.Context(), id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	common.RespondSuccess(c, gin.H{"id": id, "likes": likes})
}
