package cache

import (
	"fmt"
	"strings"
)

// KeyBuilder 缓存键构建器
type KeyBuilder struct {
	prefix string
	sep    string
}

// NewKeyBuilder 创建新的键构建器
func NewKeyBuilder(prefix string) *KeyBuilder {
	return &KeyBuilder{
		prefix: prefix,
		sep:    ":",
	}
}

// WithSeparator 设置分隔符
func (kb *KeyBuilder) WithSeparator(sep string) *KeyBuilder {
	kb.sep = sep
	return kb
}

// Build 构建缓存键
func (kb *KeyBuilder) Build(parts ...string) string {
	if len(parts) == 0 {
		return kb.prefix
	}
	return kb.prefix + kb.sep + strings.Join(parts, kb.sep)
}

// BuildID 构建带 ID 的缓存键
func (kb *KeyBuilder) BuildID(id interface{}) string {
	return fmt.Sprintf("%s%s%v", kb.prefix, kb.sep, id)
}

var (
	// FilterVariant 滤镜结果
	FilterVariant = NewKeyBuilder("filter_variant")

	// VariantVersion 单张图片的变体版本号，删除图片时更新
	VariantVersion = NewKeyBuilder("variant_version")
)
