package display

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrEmptyPayload 空内容
var ErrEmptyPayload = errors.New("empty payload")

// ErrNotImage 内容不是图片
var ErrNotImage = errors.New("payload is not an image")

// DecodeError 二进制内容无法转换为可显示形式
type DecodeError struct {
	MediaType string
	Cause     error
}

func (e *DecodeError) Error() string {
	if e.MediaType == "" {
		return fmt.Sprintf("decode payload: %v", e.Cause)
	}
	return fmt.Sprintf("decode payload (%s): %v", e.MediaType, e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// IsDecodeError 判断是否为转换失败
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// Converter 将二进制图片转换为 data URL
type Converter struct{}

// NewConverter 创建转换器
func NewConverter() *Converter {
	return &Converter{}
}

// ToDisplayString 返回 data:<mime>;base64,<...>，相同输入结果一致
func (c *Converter) ToDisplayString(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", &DecodeError{Cause: ErrEmptyPayload}
	}

	mediaType, err := c.MediaType(data)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.Grow(len("data:;base64,") + len(mediaType) + base64.StdEncoding.EncodedLen(len(data)))
	sb.WriteString("data:")
	sb.WriteString(mediaType)
	sb.WriteString(";base64,")
	sb.WriteString(base64.StdEncoding.EncodeToString(data))

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// MediaType 根据 magic bytes 检测图片类型，非图片返回 *DecodeError
func (c *Converter) MediaType(data []byte) (string, error) {
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return normalize(detected.String()), nil
		}
	}
	return "", &DecodeError{MediaType: detected.String(), Cause: ErrNotImage}
}

// normalize 去掉参数部分
func normalize(mediaType string) string {
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.TrimSpace(mediaType)
}

// ParseDataURL 拆分 data URL，返回媒体类型和原始字节
func ParseDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, errors.New("not a data URL")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("malformed data URL")
	}
	mediaType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, errors.New("data URL is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URL: %w", err)
	}
	return mediaType, data, nil
}
