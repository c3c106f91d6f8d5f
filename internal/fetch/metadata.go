package fetch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/anoixa/image-gallery/internal/models"
	"github.com/anoixa/image-gallery/utils"
	"github.com/mitchellh/mapstructure"
)

// ScopeKind 元数据查询范围
type ScopeKind int

const (
	ScopeAll ScopeKind = iota
	ScopeUser
	ScopeSimilar
)

// Scope 描述要拉取哪些图片的元数据
type Scope struct {
	Kind ScopeKind

	// ScopeUser
	UserID         string
	IncludePrivate bool
	ViewerID       string // 当前会话用户，服务端据此决定是否返回私有图片

	// ScopeSimilar
	SourceID   int64
	Count      int
	Descriptor models.SimilarityDescriptor
}

// AllImages 全部图片
func AllImages() Scope {
	return Scope{Kind: ScopeAll}
}

// UserImages 某个用户的图片
func UserImages(userID string, includePrivate bool, viewerID string) Scope {
	return Scope{Kind: ScopeUser, UserID: userID, IncludePrivate: includePrivate, ViewerID: viewerID}
}

// Similar 与 sourceID 相似的 count 张图片
func Similar(sourceID int64, count int, descriptor models.SimilarityDescriptor) Scope {
	return Scope{Kind: ScopeSimilar, SourceID: sourceID, Count: count, Descriptor: descriptor}
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeUser:
		return fmt.Sprintf("user:%s", s.UserID)
	case ScopeSimilar:
		return fmt.Sprintf("similar:%d:%s:%d", s.SourceID, s.Descriptor, s.Count)
	default:
		return "all"
	}
}

// ErrInvalidScope 查询参数非法，不会发出请求
var ErrInvalidScope = errors.New("invalid metadata scope")

// JSONGetter 元数据拉取所需的传输能力
type JSONGetter interface {
	GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error
}

// MetadataFetcher 拉取不含二进制内容的图片描述
type MetadataFetcher struct {
	client JSONGetter
}

// NewMetadataFetcher 创建元数据拉取器
func NewMetadataFetcher(client JSONGetter) *MetadataFetcher {
	return &MetadataFetcher{client: client}
}

// Fetch 失败时返回空切片和原因，不会 panic 也不会返回 nil
func (f *MetadataFetcher) Fetch(ctx context.Context, scope Scope) ([]models.Descriptor, error) {
	path, query, err := f.request(scope)
	if err != nil {
		log.Printf("[Metadata] Rejected scope %s: %v", scope, err)
		return []models.Descriptor{}, err
	}

	var raw []map[string]interface{}
	if err := f.client.GetJSON(ctx, path, query, &raw); err != nil {
		if !utils.IsContextCanceled(err) {
			log.Printf("[Metadata] Failed to fetch %s: %v", scope, err)
		}
		return []models.Descriptor{}, err
	}

	descriptors := make([]models.Descriptor, 0, len(raw))
	for i, item := range raw {
		d, err := DecodeDescriptor(item)
		if err != nil {
			log.Printf("[Metadata] Skipping descriptor #%d from %s: %v", i, scope, err)
			continue
		}
		// 相似度只在相似检索结果中有意义
		if scope.Kind != ScopeSimilar {
			d.Similarity = nil
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

func (f *MetadataFetcher) request(scope Scope) (string, url.Values, error) {
	switch scope.Kind {
	case ScopeAll:
		return "/images", nil, nil

	case ScopeUser:
		if scope.UserID == "" {
			return "", nil, fmt.Errorf("%w: empty user id", ErrInvalidScope)
		}
		query := url.Values{}
		includePrivate := scope.IncludePrivate
		if includePrivate && scope.ViewerID != scope.UserID {
			// 服务端同样会降级，这里只是避免无意义的请求参数
			utils.LogIfDevf("[Metadata] includePrivate dropped for %s viewed by %q",
				utils.SanitizeLogUsername(scope.UserID), utils.SanitizeLogUsername(scope.ViewerID))
			includePrivate = false
		}
		query.Set("includePrivate", strconv.FormatBool(includePrivate))
		if scope.ViewerID != "" {
			query.Set("currentUserid", scope.ViewerID)
		}
		return "/images/user/" + url.PathEscape(scope.UserID), query, nil

	case ScopeSimilar:
		if scope.Count <= 0 {
			return "", nil, fmt.Errorf("%w: number must be greater than 0", ErrInvalidScope)
		}
		if !scope.Descriptor.Valid() {
			return "", nil, fmt.Errorf("%w: unknown descriptor %q", ErrInvalidScope, scope.Descriptor)
		}
		query := url.Values{}
		query.Set("number", strconv.Itoa(scope.Count))
		query.Set("descriptor", string(scope.Descriptor))
		return fmt.Sprintf("/images/%d/similar", scope.SourceID), query, nil
	}
	return "", nil, fmt.Errorf("%w: kind %d", ErrInvalidScope, scope.Kind)
}

// DecodeDescriptor 宽松解码服务端返回的单条描述（size 可能是数字或字符串）
func DecodeDescriptor(raw map[string]interface{}) (models.Descriptor, error) {
	var d models.Descriptor
	if err := checkRawID(raw["id"]); err != nil {
		return d, err
	}
	if err := weakDecode(raw, &d); err != nil {
		return d, err
	}
	if d.ID < 0 {
		return d, fmt.Errorf("invalid id %d", d.ID)
	}
	if d.Likes < 0 {
		d.Likes = 0
	}
	return d, nil
}

// checkRawID 弱类型解码会把 null / "" 变成 0、把 2.9 截断成 2，这里先拦下
func checkRawID(v interface{}) error {
	switch id := v.(type) {
	case nil:
		return errors.New("missing id")
	case string:
		if strings.TrimSpace(id) == "" {
			return errors.New("missing id")
		}
	case float64:
		if id != math.Trunc(id) {
			return fmt.Errorf("non-integral id %v", id)
		}
	case float32:
		if float64(id) != math.Trunc(float64(id)) {
			return fmt.Errorf("non-integral id %v", id)
		}
	}
	return nil
}

// DecodePatch 从 like / privacy 接口的响应中提取服务端返回的字段
func DecodePatch(raw map[string]interface{}) (models.Patch, error) {
	var p models.Patch
	if err := weakDecode(raw, &p); err != nil {
		return p, err
	}
	return p, nil
}

func weakDecode(input interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("decode descriptor: %w", err)
	}
	return nil
}
