// Package gallery 画廊的读写操作，所有对共享缓存的修改都经过这里
package gallery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"

	"github.com/anoixa/image-gallery/cache"
	"github.com/anoixa/image-gallery/internal/display"
	"github.com/anoixa/image-gallery/internal/fetch"
	store "github.com/anoixa/image-gallery/internal/gallery"
	"github.com/anoixa/image-gallery/internal/models"
	"github.com/anoixa/image-gallery/internal/transport"
	"github.com/anoixa/image-gallery/utils"
)

// ErrReloadSuperseded 更晚发起的刷新已经提交，本次结果被丢弃
var ErrReloadSuperseded = errors.New("reload superseded by a newer one")

// ErrUnexpectedResponse 服务端响应缺少必要字段
var ErrUnexpectedResponse = errors.New("unexpected response from image service")

// Remote 画廊操作所需的传输能力
type Remote interface {
	fetch.JSONGetter
	fetch.BinaryGetter
	SendJSON(ctx context.Context, method, path string, query url.Values, in, out interface{}) error
	Do(ctx context.Context, req transport.Request, kind transport.Kind) (*transport.Response, error)
	PostMultipart(ctx context.Context, path string, file transport.File, fields map[string]string) (*transport.Response, error)
}

// Session 当前用户
type Session interface {
	Current() (models.Session, bool)
	RequireActor() (string, error)
}

// Service 画廊服务
type Service struct {
	client    Remote
	session   Session
	store     *store.Store
	fetcher   *fetch.MetadataFetcher
	hydrator  *fetch.Hydrator
	converter *display.Converter
	variants  *cache.VariantCache

	scopeMu sync.RWMutex
	scope   fetch.Scope

	// 刷新按发起顺序编号，较旧的结果不会覆盖较新的
	reloadMu  sync.Mutex
	issued    uint64
	committed uint64
}

// NewService 创建画廊服务
func NewService(client Remote, session Session, st *store.Store, variants *cache.VariantCache, hydrateConcurrency int) *Service {
	converter := display.NewConverter()
	return &Service{
		client:    client,
		session:   session,
		store:     st,
		fetcher:   fetch.NewMetadataFetcher(client),
		hydrator:  fetch.NewHydrator(client, converter, hydrateConcurrency),
		converter: converter,
		variants:  variants,
		scope:     fetch.AllImages(),
	}
}

// OwnImages 当前登录用户的图片，用户 ID 在刷新时才解析
func OwnImages(includePrivate bool) fetch.Scope {
	return fetch.Scope{Kind: fetch.ScopeUser, IncludePrivate: includePrivate}
}

// Store 共享缓存
func (s *Service) Store() *store.Store {
	return s.store
}

// Images 当前缓存内容
func (s *Service) Images() []models.ImageRecord {
	return s.store.Snapshot()
}

// Image 按 id 读取缓存
func (s *Service) Image(id int64) (models.ImageRecord, error) {
	r, ok := s.store.Get(id)
	if !ok {
		return models.ImageRecord{}, store.ErrNotInCache
	}
	return r, nil
}

// Scope 当前画廊范围
func (s *Service) Scope() fetch.Scope {
	s.scopeMu.RLock()
	defer s.scopeMu.RUnlock()
	return s.scope
}

// SetScope 修改画廊范围，下次刷新生效
func (s *Service) SetScope(scope fetch.Scope) {
	s.scopeMu.Lock()
	defer s.scopeMu.Unlock()
	s.scope = scope
}

// Reload 拉取元数据并水合后整体替换缓存
// 失败时缓存不变，返回空切片和原因
func (s *Service) Reload(ctx context.Context, scope fetch.Scope) ([]models.ImageRecord, error) {
	if scope.Kind == fetch.ScopeSimilar {
		return []models.ImageRecord{}, fmt.Errorf("%w: similarity results are never cached", fetch.ErrInvalidScope)
	}
	resolved, err := s.resolveScope(scope)
	if err != nil {
		return []models.ImageRecord{}, err
	}

	s.reloadMu.Lock()
	s.issued++
	seq := s.issued
	s.reloadMu.Unlock()

	descriptors, err := s.fetcher.Fetch(ctx, resolved)
	if err != nil {
		return []models.ImageRecord{}, err
	}
	records := s.hydrator.Hydrate(ctx, descriptors)
	// 取消后的水合结果不完整，不能提交
	if err := ctx.Err(); err != nil {
		return []models.ImageRecord{}, err
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	if seq < s.committed {
		utils.LogIfDevf("[Gallery] Discarding reload #%d of %s, #%d already committed", seq, resolved, s.committed)
		return records, ErrReloadSuperseded
	}
	s.committed = seq
	s.store.ReplaceAll(records)
	s.SetScope(scope)

	log.Printf("[Gallery] Loaded %d of %d images for %s", len(records), len(descriptors), resolved)
	return records, nil
}

// Refresh 按当前范围重新加载
func (s *Service) Refresh(ctx context.Context) error {
	_, err := s.Reload(ctx, s.Scope())
	// 被更新的加载取代不算失败；其余错误由调用方记录
	if errors.Is(err, ErrReloadSuperseded) {
		return nil
	}
	return err
}

// resolveScope 补全用户范围中的用户 ID 与查看者
func (s *Service) resolveScope(scope fetch.Scope) (fetch.Scope, error) {
	if scope.Kind != fetch.ScopeUser {
		return scope, nil
	}
	viewer, _ := s.session.Current()
	if scope.UserID == "" {
		actor, err := s.session.RequireActor()
		if err != nil {
			return scope, err
		}
		scope.UserID = actor
	}
	scope.ViewerID = viewer.ActorID
	return scope, nil
}

// acceptsRecord 新上传的图片是否属于当前画廊范围
func (s *Service) acceptsRecord(r models.ImageRecord) bool {
	scope, err := s.resolveScope(s.Scope())
	if err != nil {
		return false
	}
	switch scope.Kind {
	case fetch.ScopeAll:
		return true
	case fetch.ScopeUser:
		// 无归属的旧图片只出现在全部图片里
		if !r.Owned() || r.OwnerID != scope.UserID {
			return false
		}
		return r.IsPublic || (scope.IncludePrivate && scope.ViewerID == scope.UserID)
	}
	return false
}

func imagePath(id int64, suffix string) string {
	if suffix == "" {
		return fmt.Sprintf("/images/%d", id)
	}
	return fmt.Sprintf("/images/%d/%s", id, suffix)
}
