package gallery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/anoixa/image-gallery/internal/fetch"
	"github.com/anoixa/image-gallery/internal/models"
	"github.com/anoixa/image-gallery/internal/transport"
	"github.com/anoixa/image-gallery/utils"
)

// ErrInvalidUpload 上传内容在本地校验阶段被拒绝，不会发出请求
var ErrInvalidUpload = errors.New("invalid upload")

// allowedExtensions 服务端接受的扩展名
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// UploadInput 上传参数
type UploadInput struct {
	Name        string
	ContentType string // 为空时根据内容推断
	Data        []byte
	Public      bool // 匿名上传时忽略，总是私有
}

// Upload 上传图片
// 服务端返回创建的描述时直接追加到缓存；只返回文本时重新加载当前范围
func (s *Service) Upload(ctx context.Context, in UploadInput) (models.ImageRecord, error) {
	contentType, err := s.validateUpload(&in)
	if err != nil {
		return models.ImageRecord{}, err
	}

	fields := map[string]string{}
	if sess, ok := s.session.Current(); ok {
		fields["userid"] = sess.ActorID
		fields["ispublic"] = strconv.FormatBool(in.Public)
	} else if in.Public {
		utils.LogIfDevf("[Gallery] Anonymous upload of %s forced private", utils.SanitizeLogMessage(in.Name))
	}

	resp, err := s.client.PostMultipart(ctx, "/images", transport.File{
		Field:       "file",
		Name:        in.Name,
		ContentType: contentType,
		Content:     bytes.NewReader(in.Data),
	}, fields)
	if err != nil {
		log.Printf("[Gallery] Upload of %s failed: %v", utils.SanitizeLogMessage(in.Name), err)
		return models.ImageRecord{}, err
	}

	descriptor, ok := decodeCreated(resp.Body)
	if !ok {
		return s.reloadAfterUpload(ctx, in.Name)
	}
	if descriptor.MediaType == "" {
		descriptor.MediaType = contentType
	}

	// 内容就在手上，不再向服务端请求 payload
	payload, err := s.converter.ToDisplayString(ctx, in.Data)
	if err != nil {
		return models.ImageRecord{}, err
	}
	record := descriptor.Hydrate(payload)

	if s.acceptsRecord(record) {
		if _, err := s.store.Append(record); err != nil {
			return record, err
		}
	}
	return record, nil
}

// validateUpload 与服务端一致的前置校验，返回最终的 Content-Type
func (s *Service) validateUpload(in *UploadInput) (string, error) {
	if len(in.Data) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrInvalidUpload)
	}
	in.Name = filepath.Base(strings.TrimSpace(in.Name))
	ext := utils.GetExtensionFromFilename(in.Name)
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("%w: unsupported extension %q", ErrInvalidUpload, ext)
	}

	contentType := in.ContentType
	// 浏览器与 multipart 客户端对未知类型一律填 octet-stream
	if contentType == "" || contentType == "application/octet-stream" {
		detected, err := s.converter.MediaType(in.Data)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidUpload, err)
		}
		contentType = detected
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: content type %q is not an image", ErrInvalidUpload, contentType)
	}
	return contentType, nil
}

// decodeCreated 解析上传响应中的描述，旧版服务只返回一行文本
func decodeCreated(body []byte) (models.Descriptor, bool) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.Descriptor{}, false
	}
	d, err := fetch.DecodeDescriptor(raw)
	if err != nil {
		return models.Descriptor{}, false
	}
	return d, true
}

// reloadAfterUpload 服务端没有返回描述时，重新加载后按文件名找到新图片
func (s *Service) reloadAfterUpload(ctx context.Context, name string) (models.ImageRecord, error) {
	records, err := s.Reload(ctx, s.Scope())
	if err != nil && !errors.Is(err, ErrReloadSuperseded) {
		return models.ImageRecord{}, fmt.Errorf("image uploaded but reload failed: %w", err)
	}

	var created models.ImageRecord
	for _, r := range records {
		if r.Name == name && r.ID >= created.ID {
			created = r
		}
	}
	if created.Name == "" {
		// 不在当前范围内（例如匿名上传到他人画廊），上传本身是成功的
		return models.ImageRecord{}, nil
	}
	return created, nil
}
