// Package session 当前用户会话：登录、注册、登出以及跨重启的恢复
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/anoixa/image-gallery/internal/models"
	"github.com/anoixa/image-gallery/utils"
	"github.com/mitchellh/mapstructure"
)

// ErrNoSession 操作需要登录用户
var ErrNoSession = errors.New("no active session")

// ErrMissingCredentials 用户 ID 或密码为空，不会发出请求
var ErrMissingCredentials = errors.New("userid and password are required")

// Remote 会话操作所需的传输能力
type Remote interface {
	GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error
	SendJSON(ctx context.Context, method, path string, query url.Values, in, out interface{}) error
}

// Context 进程内唯一的会话持有者
type Context struct {
	mu      sync.RWMutex
	current *models.Session

	// writeMu 串行化安装与持久化，登出不会被较早的登录覆盖
	writeMu sync.Mutex

	remote Remote
	store  Store
	codec  *Codec
}

// New 创建会话上下文，初始为未登录，调用 Restore 恢复持久化的会话
func New(remote Remote, store Store, codec *Codec) *Context {
	return &Context{remote: remote, store: store, codec: codec}
}

// Restore 启动时恢复会话
// 读取失败视为未登录；内容损坏时丢弃并清理存储。启动不会因此失败
func (c *Context) Restore(ctx context.Context) {
	value, ok, err := c.store.Load(ctx)
	if err != nil {
		log.Printf("[Session] Failed to load persisted session from %s: %v", c.store.Name(), err)
		return
	}
	if !ok {
		return
	}

	s, err := c.codec.Decode(strings.TrimSpace(value))
	if err != nil {
		log.Printf("[Session] Discarding persisted session: %v", err)
		if err := c.store.Clear(ctx); err != nil {
			log.Printf("[Session] Failed to clear %s store: %v", c.store.Name(), err)
		}
		return
	}

	c.install(&s)
	log.Printf("[Session] Restored session for %s", utils.SanitizeLogUsername(s.ActorID))
}

// Current 当前会话
func (c *Context) Current() (models.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return models.Session{}, false
	}
	return *c.current, true
}

// ActorID 当前用户 ID，未登录时为空
func (c *Context) ActorID() string {
	s, _ := c.Current()
	return s.ActorID
}

// RequireActor 返回当前用户 ID，未登录时返回 ErrNoSession
func (c *Context) RequireActor() (string, error) {
	s, ok := c.Current()
	if !ok {
		return "", ErrNoSession
	}
	return s.ActorID, nil
}

// Login 远端验证通过后安装并持久化会话
func (c *Context) Login(ctx context.Context, actorID, password string) error {
	if actorID == "" || password == "" {
		return ErrMissingCredentials
	}

	var raw map[string]interface{}
	body := map[string]string{"userid": actorID, "password": password}
	if err := c.remote.SendJSON(ctx, http.MethodPost, "/api/auth/login", nil, body, &raw); err != nil {
		log.Printf("[Session] Login failed for %s: %v", utils.SanitizeLogUsername(actorID), err)
		return err
	}

	var s models.Session
	if err := mapstructure.WeakDecode(raw, &s); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	if s.ActorID == "" {
		s.ActorID = actorID
	}

	c.writeMu.Lock()
	c.install(&s)
	c.persist(ctx, s)
	c.writeMu.Unlock()
	log.Printf("[Session] Logged in as %s", utils.SanitizeLogUsername(s.ActorID))
	return nil
}

// Register 注册新用户，不会自动登录
func (c *Context) Register(ctx context.Context, actorID, name, password string) error {
	if actorID == "" || password == "" {
		return ErrMissingCredentials
	}
	body := map[string]string{"userid": actorID, "name": name, "password": password}
	if err := c.remote.SendJSON(ctx, http.MethodPost, "/api/auth/register", nil, body, nil); err != nil {
		log.Printf("[Session] Register failed for %s: %v", utils.SanitizeLogUsername(actorID), err)
		return err
	}
	return nil
}

// Logout 清除内存与持久化的会话，总是成功
func (c *Context) Logout(ctx context.Context) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.install(nil)
	if err := c.store.Clear(ctx); err != nil {
		log.Printf("[Session] Failed to clear %s store: %v", c.store.Name(), err)
	}
}

// Profile 查询用户公开资料，失败时返回空资料
func (c *Context) Profile(ctx context.Context, userID string) (models.Profile, error) {
	if userID == "" {
		return models.Profile{}, errors.New("empty user id")
	}
	var raw map[string]interface{}
	if err := c.remote.GetJSON(ctx, "/users/"+url.PathEscape(userID), nil, &raw); err != nil {
		if !utils.IsContextCanceled(err) {
			log.Printf("[Session] Failed to fetch profile of %s: %v", utils.SanitizeLogUsername(userID), err)
		}
		return models.Profile{}, err
	}

	var p models.Profile
	if err := mapstructure.WeakDecode(raw, &p); err != nil {
		return models.Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	if p.UserID == "" {
		p.UserID = userID
	}
	return p, nil
}

// StoreHealth 探测持久化存储，本地文件类存储不需要探测
func (c *Context) StoreHealth(ctx context.Context) error {
	if pinger, ok := c.store.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// Close 关闭持久化存储
func (c *Context) Close() error {
	return c.store.Close()
}

func (c *Context) install(s *models.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = s
}

// persist 写入失败只记录日志，内存中的会话仍然有效
func (c *Context) persist(ctx context.Context, s models.Session) {
	token, err := c.codec.Encode(s)
	if err != nil {
		log.Printf("[Session] Failed to encode session: %v", err)
		return
	}
	if err := c.store.Save(ctx, token); err != nil {
		log.Printf("[Session] Failed to persist session to %s: %v", c.store.Name(), err)
	}
}
