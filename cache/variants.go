package cache

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"github.com/anoixa/image-gallery/utils"
)

// DefaultVariantTTL 滤镜变体默认过期时间
const DefaultVariantTTL = 10 * time.Minute

// addJitter 添加随机抖动（+0~10%），避免同一批变体同时过期
func addJitter(duration time.Duration) time.Duration {
	if duration < 10 {
		return duration
	}
	jitter := time.Duration(rand.Int63n(int64(duration) / 10))
	return duration + jitter
}

// VariantKey 一次滤镜请求的参数
type VariantKey struct {
	ImageID int64
	Filter  string
	Number  int
	Height  int // 0 表示未指定
}

// VariantCache 滤镜变体缓存
// 键中带有图片的版本号，删除图片时只需更新版本号，旧变体自然失效
type VariantCache struct {
	provider Provider
	ttl      time.Duration
}

// NewVariantCache 创建变体缓存，provider 为 nil 时所有操作都是空操作
func NewVariantCache(provider Provider, ttl time.Duration) *VariantCache {
	if ttl <= 0 {
		ttl = DefaultVariantTTL
	}
	return &VariantCache{provider: provider, ttl: ttl}
}

// Get 读取变体，未命中或出错时返回 false
func (v *VariantCache) Get(ctx context.Context, key VariantKey) (string, bool) {
	if v == nil || v.provider == nil {
		return "", false
	}
	var dataURL string
	if err := v.provider.Get(ctx, v.key(ctx, key), &dataURL); err != nil {
		if !IsCacheMiss(err) {
			utils.LogIfDevf("[VariantCache] get image %d failed: %v", key.ImageID, err)
		}
		return "", false
	}
	return dataURL, true
}

// Put 写入变体
func (v *VariantCache) Put(ctx context.Context, key VariantKey, dataURL string) error {
	if v == nil || v.provider == nil {
		return nil
	}
	return v.provider.Set(ctx, v.key(ctx, key), dataURL, addJitter(v.ttl))
}

// Invalidate 使某张图片的所有变体失效
func (v *VariantCache) Invalidate(ctx context.Context, imageID int64) error {
	if v == nil || v.provider == nil {
		return nil
	}
	version := time.Now().UnixNano()
	// 版本号比变体活得久即可
	return v.provider.Set(ctx, VariantVersion.BuildID(imageID), version, 4*v.ttl)
}

func (v *VariantCache) key(ctx context.Context, key VariantKey) string {
	var version int64
	if err := v.provider.Get(ctx, VariantVersion.BuildID(key.ImageID), &version); err != nil {
		version = 0
	}
	return FilterVariant.Build(
		strconv.FormatInt(key.ImageID, 10),
		strconv.FormatInt(version, 10),
		key.Filter,
		strconv.Itoa(key.Number),
		strconv.Itoa(key.Height),
	)
}
