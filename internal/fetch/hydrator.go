package fetch

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/anoixa/image-gallery/internal/metrics"
	"github.com/anoixa/image-gallery/internal/models"
	"github.com/anoixa/image-gallery/internal/transport"
	"github.com/anoixa/image-gallery/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("image-gallery/fetch")

const defaultConcurrency = 8

// BinaryGetter 拉取 payload 所需的传输能力
type BinaryGetter interface {
	GetBinary(ctx context.Context, path string, query url.Values) (*transport.Response, error)
}

// DisplayConverter 二进制到可显示字符串的转换
type DisplayConverter interface {
	ToDisplayString(ctx context.Context, data []byte) (string, error)
}

// Hydrator 为描述拉取 payload 并合并成完整记录
type Hydrator struct {
	client      BinaryGetter
	converter   DisplayConverter
	concurrency int
}

// NewHydrator 创建水合器，concurrency <= 0 时使用默认并发
func NewHydrator(client BinaryGetter, converter DisplayConverter, concurrency int) *Hydrator {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Hydrator{client: client, converter: converter, concurrency: concurrency}
}

// Hydrate 并发水合，结果保持输入顺序，失败的条目被剔除
func (h *Hydrator) Hydrate(ctx context.Context, descriptors []models.Descriptor) []models.ImageRecord {
	ctx, span := tracer.Start(ctx, "hydrate")
	defer span.End()
	span.SetAttributes(attribute.Int("descriptors", len(descriptors)))

	type slot struct {
		record models.ImageRecord
		ok     bool
	}
	slots := make([]slot, len(descriptors))

	// 单条失败不取消其他条目，因此 goroutine 不返回错误
	var g errgroup.Group
	g.SetLimit(h.concurrency)
	for i, d := range descriptors {
		g.Go(func() error {
			record, err := h.HydrateOne(ctx, d)
			if err != nil {
				metrics.HydrationFailures.Inc()
				if !utils.IsContextCanceled(err) {
					log.Printf("[Hydrator] Dropping image %d (%s): %v", d.ID, utils.SanitizeLogMessage(d.Name), err)
				}
				return nil
			}
			slots[i] = slot{record: record, ok: true}
			return nil
		})
	}
	_ = g.Wait()

	records := make([]models.ImageRecord, 0, len(descriptors))
	for _, s := range slots {
		if s.ok {
			records = append(records, s.record)
		}
	}

	if dropped := len(descriptors) - len(records); dropped > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d descriptors dropped", dropped, len(descriptors)))
	}
	span.SetAttributes(attribute.Int("hydrated", len(records)))
	return records
}

// HydrateOne 拉取单条 payload 并合并
func (h *Hydrator) HydrateOne(ctx context.Context, d models.Descriptor) (models.ImageRecord, error) {
	resp, err := h.client.GetBinary(ctx, fmt.Sprintf("/images/%d", d.ID), nil)
	if err != nil {
		return models.ImageRecord{}, err
	}

	payload, err := h.converter.ToDisplayString(ctx, resp.Body)
	if err != nil {
		return models.ImageRecord{}, err
	}

	record := d.Hydrate(payload)
	if record.MediaType == "" {
		record.MediaType = mediaTypeOf(payload)
	}
	return record, nil
}

// mediaTypeOf 从 data URL 中取出媒体类型
func mediaTypeOf(dataURL string) string {
	meta, _, _ := strings.Cut(strings.TrimPrefix(dataURL, "data:"), ",")
	return strings.TrimSuffix(meta, ";base64")
}
