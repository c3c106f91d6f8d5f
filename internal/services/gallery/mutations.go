package gallery

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/anoixa/image-gallery/internal/fetch"
	"github.com/anoixa/image-gallery/internal/models"
	"github.com/anoixa/image-gallery/internal/transport"
	"github.com/anoixa/image-gallery/utils"
)

// Delete 删除图片，成功后从缓存移除并使滤镜变体失效
func (s *Service) Delete(ctx context.Context, id int64) (bool, error) {
	_, err := s.client.Do(ctx, transport.Request{
		Method: http.MethodDelete,
		Path:   imagePath(id, ""),
		Query:  s.actorQuery(),
	}, transport.KindJSON)
	if err != nil {
		log.Printf("[Gallery] Delete image %d failed: %v", id, err)
		return false, err
	}

	if !s.store.RemoveByID(id) {
		utils.LogIfDevf("[Gallery] Deleted image %d was not cached", id)
	}
	if err := s.variants.Invalidate(ctx, id); err != nil {
		log.Printf("[Gallery] Failed to invalidate variants of image %d: %v", id, err)
	}
	return true, nil
}

// TogglePrivacy 切换公开状态，缓存写入服务端返回的值
func (s *Service) TogglePrivacy(ctx context.Context, id int64) (bool, error) {
	patch, err := s.patchCall(ctx, http.MethodPatch, imagePath(id, "privacy"), s.actorQuery())
	if err != nil {
		log.Printf("[Gallery] Toggle privacy of image %d failed: %v", id, err)
		return false, err
	}
	if patch.IsPublic == nil {
		return false, fmt.Errorf("%w: missing ispublic", ErrUnexpectedResponse)
	}

	s.store.PatchByID(id, models.Patch{IsPublic: patch.IsPublic})
	return *patch.IsPublic, nil
}

// Like 点赞，返回服务端的点赞数，失败时返回 -1
func (s *Service) Like(ctx context.Context, id int64) (int, error) {
	return s.likeCall(ctx, id, http.MethodPost, "like", nil)
}

// Unlike 取消点赞
func (s *Service) Unlike(ctx context.Context, id int64) (int, error) {
	return s.likeCall(ctx, id, http.MethodPost, "unlike", nil)
}

// ToggleLike 切换点赞状态
func (s *Service) ToggleLike(ctx context.Context, id int64) (int, error) {
	return s.likeCall(ctx, id, http.MethodPut, "toggle-like", nil)
}

// SetLikes 直接设置点赞数
func (s *Service) SetLikes(ctx context.Context, id int64, likes int) (int, error) {
	if likes < 0 {
		return -1, fmt.Errorf("likes must not be negative: %d", likes)
	}
	return s.likeCall(ctx, id, http.MethodPut, "set-likes", url.Values{"likes": {strconv.Itoa(likes)}})
}

// likeCall 点赞类操作需要登录；点赞数总是取服务端的值，不在本地加减
func (s *Service) likeCall(ctx context.Context, id int64, method, action string, extra url.Values) (int, error) {
	actor, err := s.session.RequireActor()
	if err != nil {
		return -1, err
	}
	query := url.Values{"userid": {actor}}
	for k, v := range extra {
		query[k] = v
	}

	patch, err := s.patchCall(ctx, method, imagePath(id, action), query)
	if err != nil {
		log.Printf("[Gallery] %s on image %d failed: %v", action, id, err)
		return -1, err
	}
	if patch.Likes == nil {
		return -1, fmt.Errorf("%w: missing likes", ErrUnexpectedResponse)
	}

	s.store.PatchByID(id, models.Patch{Likes: patch.Likes, LikedByViewer: patch.LikedByViewer})
	return *patch.Likes, nil
}

// patchCall 发送请求并从 JSON 响应中取出局部字段
func (s *Service) patchCall(ctx context.Context, method, path string, query url.Values) (models.Patch, error) {
	var raw map[string]interface{}
	if err := s.client.SendJSON(ctx, method, path, query, nil, &raw); err != nil {
		return models.Patch{}, err
	}
	patch, err := fetch.DecodePatch(raw)
	if err != nil {
		return models.Patch{}, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return patch, nil
}

// actorQuery 登录时附带 userid，服务端据此鉴权
func (s *Service) actorQuery() url.Values {
	sess, ok := s.session.Current()
	if !ok {
		return nil
	}
	return url.Values{"userid": {sess.ActorID}}
}
