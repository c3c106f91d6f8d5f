package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/anoixa/image-gallery/config"
	"github.com/anoixa/image-gallery/internal/fetch"
	"github.com/anoixa/image-gallery/internal/session"
	"github.com/anoixa/image-gallery/internal/testutil/fakeremote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, remoteURL string) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		RemoteBaseURL:        remoteURL,
		RemoteTimeout:        5 * time.Second,
		RemoteRateLimitBurst: 1,
		HydrateConcurrency:   2,
		DefaultScope:         "all",
		SessionStoreType:     "file",
		SessionFilePath:      filepath.Join(dir, "session.jwt"),
		CacheType:            "memory",
		CacheMaxCostMB:       1,
		CacheVariantTTL:      time.Minute,
		WorkerCount:          1,
	}
}

func TestContainer_SessionSurvivesRestart(t *testing.T) {
	remote := fakeremote.New(t)
	remote.AddUser("alice", "Alice", "pw", "hello")
	cfg := testConfig(t, remote.URL())
	ctx := context.Background()

	c := NewContainer(cfg)
	require.NoError(t, c.Init(ctx))
	require.NoError(t, c.Session().Login(ctx, "alice", "pw"))
	require.NoError(t, c.Close())

	// 未配置口令时生成的 master.key 与会话文件放在一起
	assert.FileExists(t, filepath.Join(filepath.Dir(cfg.SessionFilePath), "master.key"))

	restarted := NewContainer(cfg)
	require.NoError(t, restarted.Init(ctx))
	defer restarted.Close()

	s, ok := restarted.Session().Current()
	require.True(t, ok)
	assert.Equal(t, "alice", s.ActorID)
	assert.Equal(t, "Alice", s.DisplayName)
}

// TestContainer_InitFailureReleasesSessionStore 缓存初始化失败时 bolt 文件锁必须释放
func TestContainer_InitFailureReleasesSessionStore(t *testing.T) {
	remote := fakeremote.New(t)
	cfg := testConfig(t, remote.URL())
	cfg.SessionStoreType = "bolt"
	cfg.SessionBoltPath = filepath.Join(t.TempDir(), "session.bolt")
	cfg.CacheType = "memcached"

	c := NewContainer(cfg)
	err := c.Init(context.Background())
	require.Error(t, err)
	assert.Nil(t, c.Session())
	require.NoError(t, c.Close())

	// 锁未释放时这里会超时
	store, err := session.NewBoltStore(cfg.SessionBoltPath)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestContainer_BackgroundRefresh(t *testing.T) {
	remote := fakeremote.New(t)
	remote.Add(fakeremote.Image{Name: "a.png", Public: true})
	remote.Add(fakeremote.Image{Name: "b.png", Public: true})

	c := NewContainer(testConfig(t, remote.URL()))
	require.NoError(t, c.Init(context.Background()))
	defer c.Close()

	assert.False(t, c.TriggerRefresh(), "refresh needs the background pool")
	c.StartBackground()
	require.NotNil(t, c.Pool())

	assert.True(t, c.TriggerRefresh())
	require.Eventually(t, func() bool { return c.Store().Len() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int64{1, 2}, c.Gallery().Store().IDs())
}

func TestDefaultScope(t *testing.T) {
	assert.Equal(t, fetch.AllImages(), DefaultScope(&config.Config{}))
	assert.Equal(t, fetch.AllImages(), DefaultScope(&config.Config{DefaultScope: "user"}))

	user := DefaultScope(&config.Config{DefaultScope: "user", DefaultUser: "bob"})
	assert.Equal(t, fetch.ScopeUser, user.Kind)
	assert.Equal(t, "bob", user.UserID)

	own := DefaultScope(&config.Config{DefaultScope: "own"})
	assert.Equal(t, fetch.ScopeUser, own.Kind)
	assert.Empty(t, own.UserID)
	assert.True(t, own.IncludePrivate)
}

func TestKeyDir(t *testing.T) {
	assert.Equal(t, "data", keyDir(&config.Config{SessionFilePath: "data/session.jwt"}))
	assert.Equal(t, "/var/lib/gallery", keyDir(&config.Config{SessionStoreType: "bolt", SessionBoltPath: "/var/lib/gallery/s.bolt"}))
	assert.Equal(t, "./data", keyDir(&config.Config{SessionStoreType: "postgres"}))
}
