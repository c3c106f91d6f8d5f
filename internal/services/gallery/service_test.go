package gallery

import (
	"bytes"
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/anoixa/image-gallery/cache"
	"github.com/anoixa/image-gallery/internal/fetch"
	store "github.com/anoixa/image-gallery/internal/gallery"
	"github.com/anoixa/image-gallery/internal/models"
	"github.com/anoixa/image-gallery/internal/session"
	"github.com/anoixa/image-gallery/internal/testutil/fakeremote"
	"github.com/anoixa/image-gallery/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	remote *fakeremote.Server
	sess   *session.Context
	svc    *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	remote := fakeremote.New(t)
	remote.AddUser("alice", "Alice", "pw", "")
	remote.AddUser("bob", "Bob", "pw", "")

	client, err := transport.NewClient(remote.URL(), transport.Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	codec, err := session.NewCodec([]byte("test-key"))
	require.NoError(t, err)
	sess := session.New(client, session.NewMemoryStore(), codec)

	provider, err := cache.NewMemoryCache(cache.MemoryConfig{NumCounters: 1000, MaxCost: 1 << 20, BufferItems: 64})
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Close() })

	svc := NewService(client, sess, store.New(), cache.NewVariantCache(provider, time.Minute), 4)
	return &harness{remote: remote, sess: sess, svc: svc}
}

func (h *harness) login(t *testing.T, user string) {
	t.Helper()
	require.NoError(t, h.sess.Login(context.Background(), user, "pw"))
}

func (h *harness) reload(t *testing.T) {
	t.Helper()
	_, err := h.svc.Reload(context.Background(), fetch.AllImages())
	require.NoError(t, err)
}

func ids(records []models.ImageRecord) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestReload_ReplacesCache(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.remote.Add(fakeremote.Image{Name: "x.png", Public: true})
	}

	records, err := h.svc.Reload(context.Background(), fetch.AllImages())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids(records))
	assert.Equal(t, []int64{1, 2, 3}, h.svc.Store().IDs())
	for _, r := range h.svc.Images() {
		assert.True(t, r.Hydrated())
	}
}

// TestReload_PartialHydrationFailure #2 的 payload 失败时缓存为 [#1, #3]
func TestReload_PartialHydrationFailure(t *testing.T) {
	h := newHarness(t)
	h.remote.Add(fakeremote.Image{Name: "1.png"})
	id2 := h.remote.Add(fakeremote.Image{Name: "2.png"})
	h.remote.Add(fakeremote.Image{Name: "3.png"})
	h.remote.FailPayload(id2)

	h.reload(t)
	assert.Equal(t, []int64{1, 3}, h.svc.Store().IDs())
}

// TestReload_FailureLeavesCacheUnchanged 元数据拉取失败时缓存不变
func TestReload_FailureLeavesCacheUnchanged(t *testing.T) {
	h := newHarness(t)
	h.remote.Add(fakeremote.Image{Name: "1.png"})
	h.reload(t)
	version := h.svc.Store().Version()

	h.remote.Add(fakeremote.Image{Name: "2.png"})
	h.remote.SetFailList(true)

	records, err := h.svc.Reload(context.Background(), fetch.AllImages())
	require.Error(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.Equal(t, []int64{1}, h.svc.Store().IDs())
	assert.Equal(t, version, h.svc.Store().Version())

	assert.Error(t, h.svc.Refresh(context.Background()))
	assert.Equal(t, version, h.svc.Store().Version())
}

func TestReload_CancelledNotCommitted(t *testing.T) {
	h := newHarness(t)
	h.remote.Add(fakeremote.Image{Name: "1.png"})
	h.reload(t)
	version := h.svc.Store().Version()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.svc.Reload(ctx, fetch.AllImages())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, version, h.svc.Store().Version())
}

func TestReload_RejectsSimilarScope(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Reload(context.Background(), fetch.Similar(1, 3, models.DescriptorRGBCube))
	assert.ErrorIs(t, err, fetch.ErrInvalidScope)
}

func TestReload_OwnScope(t *testing.T) {
	h := newHarness(t)
	h.remote.Add(fakeremote.Image{Name: "pub.png", Owner: "alice", Public: true})
	h.remote.Add(fakeremote.Image{Name: "priv.png", Owner: "alice"})
	h.remote.Add(fakeremote.Image{Name: "bob.png", Owner: "bob", Public: true})

	_, err := h.svc.Reload(context.Background(), OwnImages(true))
	assert.ErrorIs(t, err, session.ErrNoSession)

	h.login(t, "alice")
	_, err = h.svc.Reload(context.Background(), OwnImages(true))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, h.svc.Store().IDs())

	// 显式指定自己的 ID 与 OwnImages 等价
	_, err = h.svc.Reload(context.Background(), fetch.UserImages("alice", true, ""))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, h.svc.Store().IDs())

	h.sess.Logout(context.Background())
	h.login(t, "bob")
	_, err = h.svc.Reload(context.Background(), fetch.UserImages("alice", true, ""))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, h.svc.Store().IDs())
}

// TestReload_SupersededDiscarded 先发起的慢刷新不会覆盖后发起的刷新
func TestReload_SupersededDiscarded(t *testing.T) {
	h := newHarness(t)
	slow := h.remote.Add(fakeremote.Image{Name: "slow.png"})
	h.remote.Add(fakeremote.Image{Name: "alice.png", Owner: "alice", Public: true})
	h.remote.DelayPayload(slow, 300*time.Millisecond)

	var slowErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, slowErr = h.svc.Reload(context.Background(), fetch.AllImages())
	}()
	require.Eventually(t, func() bool { return h.remote.Calls("GET /images/:id") > 0 }, 2*time.Second, 5*time.Millisecond)

	_, err := h.svc.Reload(context.Background(), fetch.UserImages("alice", false, ""))
	require.NoError(t, err)
	<-done

	assert.ErrorIs(t, slowErr, ErrReloadSuperseded)
	assert.Equal(t, []int64{2}, h.svc.Store().IDs())
	assert.Equal(t, fetch.ScopeUser, h.svc.Scope().Kind)
}

func TestRefresh_UsesCurrentScope(t *testing.T) {
	h := newHarness(t)
	h.remote.Add(fakeremote.Image{Name: "a.png", Owner: "alice", Public: true})
	h.remote.Add(fakeremote.Image{Name: "b.png", Owner: "bob", Public: true})

	_, err := h.svc.Reload(context.Background(), fetch.UserImages("bob", false, ""))
	require.NoError(t, err)

	h.remote.Add(fakeremote.Image{Name: "b2.png", Owner: "bob", Public: true})
	require.NoError(t, h.svc.Refresh(context.Background()))
	assert.Equal(t, []int64{2, 3}, h.svc.Store().IDs())
}

// TestRefresh_FailureLeftToCaller 失败由调用方（刷新器或 API）记录，这里只返回错误
func TestRefresh_FailureLeftToCaller(t *testing.T) {
	h := newHarness(t)
	h.remote.Add(fakeremote.Image{Name: "a.png"})
	h.reload(t)
	h.remote.SetFailList(true)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	err := h.svc.Refresh(context.Background())
	assert.Error(t, err)
	assert.NotContains(t, buf.String(), "Refresh failed")
	assert.Equal(t, []int64{1}, h.svc.Store().IDs())
}

// TestUpload_Anonymous 匿名上传没有所有者且总是私有
func TestUpload_Anonymous(t *testing.T) {
	h := newHarness(t)
	h.reload(t)

	record, err := h.svc.Upload(context.Background(), UploadInput{Name: "cat.png", Data: fakeremote.PNG, Public: true})
	require.NoError(t, err)
	assert.Equal(t, "", record.OwnerID)
	assert.False(t, record.IsPublic)
	assert.Equal(t, "image/png", record.MediaType)
	assert.True(t, record.Hydrated())

	cached, err := h.svc.Image(record.ID)
	require.NoError(t, err)
	assert.Equal(t, record, cached)

	img, ok := h.remote.Image(record.ID)
	require.True(t, ok)
	assert.Equal(t, "", img.Owner)
	assert.False(t, img.Public)
}

func TestUpload_WithSession(t *testing.T) {
	h := newHarness(t)
	h.login(t, "alice")

	record, err := h.svc.Upload(context.Background(), UploadInput{Name: "dog.jpg", Data: fakeremote.JPEG, Public: true})
	require.NoError(t, err)
	assert.Equal(t, "alice", record.OwnerID)
	assert.True(t, record.IsPublic)
	assert.Equal(t, "image/jpeg", record.MediaType)
	assert.Equal(t, []int64{record.ID}, h.svc.Store().IDs())
}

// TestUpload_OutOfScopeNotAppended 不属于当前画廊的上传不进入缓存
func TestUpload_OutOfScopeNotAppended(t *testing.T) {
	h := newHarness(t)
	h.login(t, "alice")
	_, err := h.svc.Reload(context.Background(), fetch.UserImages("bob", false, ""))
	require.NoError(t, err)

	record, err := h.svc.Upload(context.Background(), UploadInput{Name: "a.png", Data: fakeremote.PNG, Public: true})
	require.NoError(t, err)
	assert.NotZero(t, record.ID)
	assert.Empty(t, h.svc.Store().IDs())
}

// TestAcceptsRecord_UserScopeSkipsUnowned 用户范围不接收无归属的图片
func TestAcceptsRecord_UserScopeSkipsUnowned(t *testing.T) {
	h := newHarness(t)
	h.login(t, "alice")
	h.svc.SetScope(OwnImages(true))

	assert.False(t, h.svc.acceptsRecord(models.ImageRecord{Descriptor: models.Descriptor{ID: 1}}))
	assert.False(t, h.svc.acceptsRecord(models.ImageRecord{Descriptor: models.Descriptor{ID: 2, OwnerID: "bob", IsPublic: true}}))
	assert.True(t, h.svc.acceptsRecord(models.ImageRecord{Descriptor: models.Descriptor{ID: 3, OwnerID: "alice"}}))

	h.svc.SetScope(fetch.AllImages())
	assert.True(t, h.svc.acceptsRecord(models.ImageRecord{Descriptor: models.Descriptor{ID: 1}}))
}

// TestUpload_TextResponseReloads 服务端只返回文本时重新加载
func TestUpload_TextResponseReloads(t *testing.T) {
	h := newHarness(t)
	h.remote.Add(fakeremote.Image{Name: "old.png"})
	h.reload(t)
	h.remote.SetEchoUpload(false)

	record, err := h.svc.Upload(context.Background(), UploadInput{Name: "new.png", Data: fakeremote.PNG})
	require.NoError(t, err)
	assert.Equal(t, "new.png", record.Name)
	assert.Equal(t, int64(2), record.ID)
	assert.Equal(t, []int64{1, 2}, h.svc.Store().IDs())
	assert.Equal(t, 2, h.remote.Calls("GET /images"))
}

func TestUpload_Validation(t *testing.T) {
	h := newHarness(t)

	for name, in := range map[string]UploadInput{
		"empty":     {Name: "a.png"},
		"extension": {Name: "a.gif", Data: fakeremote.PNG},
		"content":   {Name: "a.png", Data: []byte("plain text, not an image")},
		"type":      {Name: "a.png", Data: fakeremote.PNG, ContentType: "text/plain"},
	} {
		_, err := h.svc.Upload(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidUpload, name)
	}
	assert.Equal(t, 0, h.remote.Calls("POST /images"))
}

func TestUpload_FailureLeavesCacheUnchanged(t *testing.T) {
	h := newHarness(t)
	h.remote.Add(fakeremote.Image{Name: "1.png"})
	h.reload(t)
	version := h.svc.Store().Version()
	h.remote.SetFailWrites(true)

	_, err := h.svc.Upload(context.Background(), UploadInput{Name: "a.png", Data: fakeremote.PNG})
	require.Error(t, err)
	assert.Equal(t, 500, transport.StatusCode(err))
	assert.Equal(t, version, h.svc.Store().Version())
}

func TestDelete(t *testing.T) {
	h := newHarness(t)
	h.remote.Add(fakeremote.Image{Name: "1.png"})
	h.remote.Add(fakeremote.Image{Name: "2.png"})
	h.reload(t)

	ok, err := h.svc.Delete(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int64{2}, h.svc.Store().IDs())

	// 已删除的图片服务端返回 404
	ok, err = h.svc.Delete(context.Background(), 1)
	assert.False(t, ok)
	assert.True(t, transport.IsNotFound(err))
	assert.Equal(t, []int64{2}, h.svc.Store().IDs())
}

func TestDelete_FailureLeavesCacheUnchanged(t *testing.T) {
	h := newHarness(t)
	h.remote.Add(fakeremote.Image{Name: "1.png"})
	h.reload(t)
	h.remote.SetFailWrites(true)

	ok, err := h.svc.Delete(context.Background(), 1)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, []int64{1}, h.svc.Store().IDs())
}

// TestLike_WritesServerCount 缓存中的点赞数等于服务端返回值
func TestLike_WritesServerCount(t *testing.T) {
	h := newHarness(t)
	h.remote.Add(fakeremote.Image{Name: "1.png", Likes: 2})
	h.reload(t)
	h.login(t, "alice")
	h.remote.ForceLikes(7)

	likes, err := h.svc.Like(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 7, likes)

	r, err := h.svc.Image(1)
	require.NoError(t, err)
	assert.Equal(t, 7, r.Likes)
	require.NotNil(t, r.LikedByViewer)
	assert.True(t, *r.LikedByViewer)
}

func TestLike_RequiresSession(t *testing.T) {
	h := newHarness(t)
	h.remote.Add(fakeremote.Image{Name: "1.png"})
	h.reload(t)

	for _, fn := range []func(context.Context, int64) (int, error){h.svc.Like, h.svc.Unlike, h.svc.ToggleLike} {
		likes, err := fn(context.Background(), 1)
		assert.Equal(t, -1, likes)
		assert.ErrorIs(t, err, session.ErrNoSession)
	}
	_, err := h.svc.LikeStatus(context.Background(), 1)
	assert.ErrorIs(t, err, session.ErrNoSession)

	assert.Equal(t, 0, h.remote.Calls("POST /images/:id/like"))
	assert.Equal(t, 0, h.remote.Calls("PUT /images/:id/toggle-like"))
}

func TestLike_FailureReturnsMinusOne(t *testing.T) {
	h := newHarness(t)
	h.remote.Add(fakeremote.Image{Name: "1.png", Likes: 3})
	h.reload(t)
	h.login(t, "alice")
	h.remote.SetFailWrites(true)

	likes, err := h.svc.Like(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, -1, likes)

	r, _ := h.svc.Image(1)
	assert.Equal(t, 3, r.Likes)
	assert.Nil(t, r.LikedByViewer)
}

func TestToggleLikeAndStatus(t *testing.T) {
	h := newHarness(t)
	h.remote.Add(fakeremote.Image{Name: "1.png"})
	h.reload(t)
	h.login(t, "alice")
	ctx := context.Background()

	likes, err := h.svc.ToggleLike(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, likes)
	liked, err := h.svc.LikeStatus(ctx, 1)
	require.NoError(t, err)
	assert.True(t, liked)

	likes, err = h.svc.ToggleLike(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, likes)
	r, _ := h.svc.Image(1)
	assert.Equal(t, 0, r.Likes)
	require.NotNil(t, r.LikedByViewer)
	assert.False(t, *r.LikedByViewer)

	likes, err = h.svc.Like(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, likes)
	likes, err = h.svc.Unlike(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, likes)
}

func TestSetLikes(t *testing.T) {
	h := newHarness(t)
	h.remote.Add(fakeremote.Image{Name: "1.png"})
	h.reload(t)
	h.login(t, "alice")

	likes, err := h.svc.SetLikes(context.Background(), 1, 42)
	require.NoError(t, err)
	assert.Equal(t, 42, likes)
	r, _ := h.svc.Image(1)
	assert.Equal(t, 42, r.Likes)

	likes, err = h.svc.SetLikes(context.Background(), 1, -1)
	assert.Error(t, err)
	assert.Equal(t, -1, likes)
}

func TestTogglePrivacy(t *testing.T) {
	h := newHarness(t)
	h.remote.Add(fakeremote.Image{Name: "1.png"})
	h.reload(t)

	public, err := h.svc.TogglePrivacy(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, public)
	r, _ := h.svc.Image(1)
	assert.True(t, r.IsPublic)

	public, err = h.svc.TogglePrivacy(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, public)
}

func TestTogglePrivacy_FailureLeavesCacheUnchanged(t *testing.T) {
	h := newHarness(t)
	h.remote.Add(fakeremote.Image{Name: "1.png"})
	h.reload(t)
	version := h.svc.Store().Version()
	h.remote.SetFailWrites(true)

	_, err := h.svc.TogglePrivacy(context.Background(), 1)
	assert.True(t, transport.IsUnauthorized(err))
	assert.Equal(t, version, h.svc.Store().Version())
}

// TestTogglePrivacy_Concurrent 两次并发切换，缓存取最后到达的响应
func TestTogglePrivacy_Concurrent(t *testing.T) {
	h := newHarness(t)
	h.remote.Add(fakeremote.Image{Name: "1.png"})
	h.reload(t)
	h.remote.SetPrivacyDelay(func(call int) time.Duration {
		if call == 1 {
			return 200 * time.Millisecond
		}
		return 0
	})

	var wg sync.WaitGroup
	var first bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, _ = h.svc.TogglePrivacy(context.Background(), 1)
	}()
	require.Eventually(t, func() bool {
		return h.remote.Calls("PATCH /images/:id/privacy") == 1
	}, 2*time.Second, 5*time.Millisecond)

	second, err := h.svc.TogglePrivacy(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, second)
	r, _ := h.svc.Image(1)
	assert.False(t, r.IsPublic)

	wg.Wait()
	assert.True(t, first)
	r, _ = h.svc.Image(1)
	assert.True(t, r.IsPublic, "the later arriving response wins")
	assert.Len(t, h.svc.Images(), 1)
}

// TestSimilar_TimeoutReturnsEmpty 检索超时不能返回部分结果
func TestSimilar_TimeoutReturnsEmpty(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.remote.Add(fakeremote.Image{Name: "x.png"})
	}
	// #5 很快返回，超时后不能只拿到它
	h.remote.DelayPayload(1, 2*time.Second)
	h.remote.DelayPayload(3, 2*time.Second)
	h.remote.DelayPayload(4, 2*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	similar, err := h.svc.Similar(ctx, 2, 4, models.DescriptorRGBCube)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotNil(t, similar)
	assert.Empty(t, similar)
}

// TestSimilar_DoesNotMutateCache 相似检索不修改共享缓存
func TestSimilar_DoesNotMutateCache(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 4; i++ {
		h.remote.Add(fakeremote.Image{Name: "x.png"})
	}
	h.reload(t)
	before := h.svc.Images()
	version := h.svc.Store().Version()

	similar, err := h.svc.Similar(context.Background(), 2, 2, models.DescriptorHueSat)
	require.NoError(t, err)
	require.Len(t, similar, 2)
	for _, r := range similar {
		require.NotNil(t, r.Similarity)
		assert.True(t, r.Hydrated())
	}

	assert.Equal(t, version, h.svc.Store().Version())
	assert.Equal(t, before, h.svc.Images())
	for _, r := range h.svc.Images() {
		assert.Nil(t, r.Similarity)
	}

	similar, err = h.svc.Similar(context.Background(), 2, 0, models.DescriptorHueSat)
	assert.Error(t, err)
	assert.Empty(t, similar)
}

// TestFilter_CachedAndInvalidatedOnDelete 变体命中缓存，删除后失效
func TestFilter_CachedAndInvalidatedOnDelete(t *testing.T) {
	h := newHarness(t)
	h.remote.Add(fakeremote.Image{Name: "1.png", Filtered: fakeremote.JPEG})
	h.reload(t)
	ctx := context.Background()
	params := FilterParams{Filter: FilterInvert, Number: 1}

	dataURL, err := h.svc.Filter(ctx, 1, params)
	require.NoError(t, err)
	assert.Contains(t, dataURL, "data:image/jpeg;base64,")

	again, err := h.svc.Filter(ctx, 1, params)
	require.NoError(t, err)
	assert.Equal(t, dataURL, again)
	assert.Equal(t, 1, h.remote.Calls("GET /images/:id/filter"))

	_, err = h.svc.Delete(ctx, 1)
	require.NoError(t, err)

	_, err = h.svc.Filter(ctx, 1, params)
	assert.True(t, transport.IsNotFound(err))
	assert.Equal(t, 2, h.remote.Calls("GET /images/:id/filter"))
}

func TestFilterParams_Validate(t *testing.T) {
	assert.NoError(t, FilterParams{Filter: FilterRotation, Number: 90}.Validate())
	assert.NoError(t, FilterParams{Filter: FilterBrightness, Number: -20}.Validate())
	assert.ErrorIs(t, FilterParams{Filter: FilterGradient, Number: 0}.Validate(), ErrInvalidFilter)
	assert.ErrorIs(t, FilterParams{Filter: "resize", Number: 10}.Validate(), ErrInvalidFilter)
	assert.ErrorIs(t, FilterParams{Filter: FilterInvert, Height: -1}.Validate(), ErrInvalidFilter)
}
