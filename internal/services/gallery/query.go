package gallery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/anoixa/image-gallery/cache"
	"github.com/anoixa/image-gallery/internal/fetch"
	"github.com/anoixa/image-gallery/internal/models"
	"github.com/anoixa/image-gallery/utils"
)

// ErrInvalidFilter 滤镜参数非法，不会发出请求
var ErrInvalidFilter = errors.New("invalid filter parameters")

// 服务端支持的滤镜
const (
	FilterGradient   = "gradienImage"
	FilterBrightness = "modif_lum"
	FilterInvert     = "invert"
	FilterRotation   = "rotation"
)

// FilterParams 滤镜参数
type FilterParams struct {
	Filter string
	Number int
	Height int // 0 表示不指定
}

// Validate 本地校验
func (p FilterParams) Validate() error {
	switch p.Filter {
	case FilterGradient:
		if p.Number <= 0 {
			return fmt.Errorf("%w: %s needs a positive number", ErrInvalidFilter, p.Filter)
		}
	case FilterBrightness, FilterInvert, FilterRotation:
	default:
		return fmt.Errorf("%w: unknown filter %q", ErrInvalidFilter, p.Filter)
	}
	if p.Height < 0 {
		return fmt.Errorf("%w: height must not be negative", ErrInvalidFilter)
	}
	return nil
}

// Similar 相似图片检索，结果独立于共享缓存
func (s *Service) Similar(ctx context.Context, id int64, n int, kind models.SimilarityDescriptor) ([]models.ImageRecord, error) {
	descriptors, err := s.fetcher.Fetch(ctx, fetch.Similar(id, n, kind))
	if err != nil {
		return []models.ImageRecord{}, err
	}
	records := s.hydrator.Hydrate(ctx, descriptors)
	// 超时或取消时 Hydrate 只剩部分结果，不能当作成功返回
	if err := ctx.Err(); err != nil {
		return []models.ImageRecord{}, err
	}
	return records, nil
}

// LikeStatus 当前用户是否已点赞，失败时返回 false
func (s *Service) LikeStatus(ctx context.Context, id int64) (bool, error) {
	actor, err := s.session.RequireActor()
	if err != nil {
		return false, err
	}
	patch, err := s.patchCall(ctx, http.MethodGet, imagePath(id, "like-status"), url.Values{"userid": {actor}})
	if err != nil {
		return false, err
	}
	if patch.LikedByViewer == nil {
		return false, fmt.Errorf("%w: missing isLiked", ErrUnexpectedResponse)
	}
	return *patch.LikedByViewer, nil
}

// Filter 返回滤镜处理后的 data URL，结果缓存在变体缓存中
func (s *Service) Filter(ctx context.Context, id int64, params FilterParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}

	key := cache.VariantKey{ImageID: id, Filter: params.Filter, Number: params.Number, Height: params.Height}
	if dataURL, ok := s.variants.Get(ctx, key); ok {
		return dataURL, nil
	}

	query := url.Values{
		"filter": {params.Filter},
		"number": {strconv.Itoa(params.Number)},
	}
	if params.Height > 0 {
		query.Set("height", strconv.Itoa(params.Height))
	}
	resp, err := s.client.GetBinary(ctx, imagePath(id, "filter"), query)
	if err != nil {
		return "", err
	}
	dataURL, err := s.converter.ToDisplayString(ctx, resp.Body)
	if err != nil {
		return "", err
	}

	// 变体缓存写入失败只影响性能
	if err := s.variants.Put(ctx, key, dataURL); err != nil {
		utils.LogIfDevf("[Gallery] Failed to cache %s variant of image %d: %v", params.Filter, id, err)
	}
	return dataURL, nil
}
