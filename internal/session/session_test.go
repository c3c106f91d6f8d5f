package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/anoixa/image-gallery/internal/models"
	"github.com/anoixa/image-gallery/internal/testutil/fakeremote"
	"github.com/anoixa/image-gallery/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCodec(t *testing.T, key string) *Codec {
	t.Helper()
	codec, err := NewCodec([]byte(key))
	require.NoError(t, err)
	return codec
}

func setup(t *testing.T, store Store) (*fakeremote.Server, *Context) {
	t.Helper()
	remote := fakeremote.New(t)
	remote.AddUser("alice", "Alice", "pw", "hello")
	client, err := transport.NewClient(remote.URL(), transport.Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	return remote, New(client, store, newCodec(t, "test-key"))
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := newCodec(t, "k1")
	token, err := codec.Encode(models.Session{ActorID: "alice", DisplayName: "Alice", Bio: "hi"})
	require.NoError(t, err)

	s, err := codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, models.Session{ActorID: "alice", DisplayName: "Alice", Bio: "hi"}, s)

	_, err = codec.Encode(models.Session{})
	assert.ErrorIs(t, err, ErrMalformedSession)
}

func TestCodec_RejectsTampered(t *testing.T) {
	token, err := newCodec(t, "k1").Encode(models.Session{ActorID: "alice"})
	require.NoError(t, err)

	_, err = newCodec(t, "k2").Decode(token)
	assert.ErrorIs(t, err, ErrMalformedSession)

	_, err = newCodec(t, "k1").Decode(token[:len(token)-4])
	assert.ErrorIs(t, err, ErrMalformedSession)

	_, err = newCodec(t, "k1").Decode(`{"userid":"alice"}`)
	assert.ErrorIs(t, err, ErrMalformedSession)
}

func TestNewCodec_EmptyKey(t *testing.T) {
	_, err := NewCodec(nil)
	assert.Error(t, err)
}

func TestRestore_Empty(t *testing.T) {
	_, sc := setup(t, NewMemoryStore())
	sc.Restore(context.Background())

	_, ok := sc.Current()
	assert.False(t, ok)
	_, err := sc.RequireActor()
	assert.ErrorIs(t, err, ErrNoSession)
}

// TestLogin_PersistsAcrossRestart 登录后新的进程可以恢复会话
func TestLogin_PersistsAcrossRestart(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "session.jwt"))
	remote, sc := setup(t, store)
	ctx := context.Background()

	require.NoError(t, sc.Login(ctx, "alice", "pw"))
	s, ok := sc.Current()
	require.True(t, ok)
	assert.Equal(t, "Alice", s.DisplayName)
	assert.Equal(t, "hello", s.Bio)

	client, err := transport.NewClient(remote.URL(), transport.Options{})
	require.NoError(t, err)
	restarted := New(client, store, newCodec(t, "test-key"))
	restarted.Restore(ctx)

	actor, err := restarted.RequireActor()
	require.NoError(t, err)
	assert.Equal(t, "alice", actor)
}

func TestLogin_Failure(t *testing.T) {
	store := NewMemoryStore()
	_, sc := setup(t, store)
	ctx := context.Background()

	err := sc.Login(ctx, "alice", "wrong")
	require.Error(t, err)
	assert.True(t, transport.IsUnauthorized(err))

	assert.ErrorIs(t, sc.Login(ctx, "", "pw"), ErrMissingCredentials)

	_, ok := sc.Current()
	assert.False(t, ok)
	_, stored, _ := store.Load(ctx)
	assert.False(t, stored)
}

// TestLogout_ClearsSessionAndStorage 登出后内存与存储都为空
func TestLogout_ClearsSessionAndStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jwt")
	_, sc := setup(t, NewFileStore(path))
	ctx := context.Background()

	require.NoError(t, sc.Login(ctx, "alice", "pw"))
	_, err := os.Stat(path)
	require.NoError(t, err)

	sc.Logout(ctx)
	_, ok := sc.Current()
	assert.False(t, ok)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// 重复登出
	sc.Logout(ctx)
}

// TestRestore_MalformedDiscarded 损坏的会话被丢弃且存储被清理
func TestRestore_MalformedDiscarded(t *testing.T) {
	for name, value := range map[string]string{
		"garbage":   "not a token",
		"json":      `{"userid":"alice"}`,
		"truncated": "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJzdWIi",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "session.jwt")
			require.NoError(t, os.WriteFile(path, []byte(value), 0600))

			_, sc := setup(t, NewFileStore(path))
			sc.Restore(context.Background())

			_, ok := sc.Current()
			assert.False(t, ok)
			_, err := os.Stat(path)
			assert.True(t, os.IsNotExist(err), "malformed session must be removed")
		})
	}
}

func TestRestore_WrongKeyDiscarded(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	token, err := newCodec(t, "other-key").Encode(models.Session{ActorID: "alice"})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, token))

	_, sc := setup(t, store)
	sc.Restore(ctx)

	_, ok := sc.Current()
	assert.False(t, ok)
	_, stored, _ := store.Load(ctx)
	assert.False(t, stored)
}

// TestRegister_DoesNotInstall 注册成功不会登录
func TestRegister_DoesNotInstall(t *testing.T) {
	_, sc := setup(t, NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, sc.Register(ctx, "bob", "Bob", "pw"))
	_, ok := sc.Current()
	assert.False(t, ok)

	err := sc.Register(ctx, "bob", "Bob", "pw")
	assert.Equal(t, 409, transport.StatusCode(err))

	require.NoError(t, sc.Login(ctx, "bob", "pw"))
	assert.Equal(t, "bob", sc.ActorID())
}

func TestProfile(t *testing.T) {
	_, sc := setup(t, NewMemoryStore())
	ctx := context.Background()

	p, err := sc.Profile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.Profile{UserID: "alice", Name: "Alice", Bio: "hello"}, p)

	p, err = sc.Profile(ctx, "nobody")
	assert.True(t, transport.IsNotFound(err))
	assert.Equal(t, models.Profile{}, p)
}
