package images

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/anoixa/image-gallery/api/common"
	"github.com/anoixa/image-gallery/internal/services/gallery"
	"github.com/gin-gonic/gin"
)

// UploadImage 上传单张图片
// 表单字段: file（必填），ispublic（可选，仅登录后生效）
// @Summary      Upload image
// @Description  Upload a jpg/jpeg/png image to the remote service
// @Tags         images
// @Accept       multipart/form-data
// @Produce      json
// @Param        file      formData  file    true   "Image file"
// @Param        ispublic  formData  bool    false  "Make public (logged-in users only)"
// @Success      201  {object}  common.Response  "Image uploaded"
// @Failure      400  {object}  common.Response  "Invalid upload"
// @Failure      413  {object}  common.Response  "File too large"
// @Failure      502  {object}  common.Response  "Remote service failure"
// @Router       /gallery/images [post]
func (h *Handler) UploadImage(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "Missing 'file' field")
		return
	}
	if fileHeader.Size > h.maxUploadBytes {
		common.RespondError(c, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File exceeds the %d MB limit", h.maxUploadBytes>>20))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	public, _ := strconv.ParseBool(c.PostForm("ispublic"))
	record, err := h.service.Upload(c.Request.Context(), gallery.UploadInput{
		Name:        fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
		Public:      public,
	})
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	common.RespondCreated(c, "Image uploaded successfully", record)
}
