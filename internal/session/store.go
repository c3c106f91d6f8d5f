package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/anoixa/image-gallery/config"
	"github.com/anoixa/image-gallery/database"
	"github.com/anoixa/image-gallery/database/repo/state"
	"go.etcd.io/bbolt"
)

// Store 会话的持久化存储，只保存一个值
type Store interface {
	// Load 读取保存的值，不存在时 ok 为 false
	Load(ctx context.Context) (value string, ok bool, err error)
	Save(ctx context.Context, value string) error
	// Clear 删除保存的值，不存在时不报错
	Clear(ctx context.Context) error
	Close() error
	Name() string
}

// NewStoreFromConfig 按 session_store_type 创建存储
func NewStoreFromConfig(cfg *config.Config) (Store, error) {
	switch cfg.SessionStoreType {
	case "file", "":
		return NewFileStore(cfg.SessionFilePath), nil
	case "bolt", "bbolt":
		return NewBoltStore(cfg.SessionBoltPath)
	case "sqlite", "sqlite3", "postgres", "postgresql":
		provider, err := database.NewGormProvider(cfg)
		if err != nil {
			return nil, err
		}
		return NewGormStore(provider), nil
	case "memory", "none":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported session store type: %s", cfg.SessionStoreType)
	}
}

// FileStore 单文件存储
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore 创建文件存储
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = "./data/session.jwt"
	}
	return &FileStore{path: path}
}

func (s *FileStore) Load(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

// Save 先写临时文件再重命名，进程中断不会留下半个文件
func (s *FileStore) Save(ctx context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) Name() string { return "file" }

var (
	boltBucket = []byte("session")
	boltKey    = []byte("current")
)

// BoltStore bbolt 存储
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore 打开（必要时创建）bbolt 文件
func NewBoltStore(path string) (*BoltStore, error) {
	if path == "" {
		path = "./data/session.bolt"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bolt bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Load(ctx context.Context) (string, bool, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(boltBucket).Get(boltKey); v != nil {
			// v 只在事务内有效
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	if value == nil {
		return "", false, nil
	}
	return string(value), true, nil
}

func (s *BoltStore) Save(ctx context.Context, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Put(boltKey, []byte(value))
	})
}

func (s *BoltStore) Clear(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Delete(boltKey)
	})
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) Name() string { return "bolt" }

const gormSessionKey = "session"

// GormStore 数据库存储，适合多台机器共享同一个会话
type GormStore struct {
	provider database.Provider
	repo     *state.Repository
}

// NewGormStore 创建数据库存储，表结构由 provider 负责迁移
func NewGormStore(provider database.Provider) *GormStore {
	return &GormStore{provider: provider, repo: state.NewRepository(provider.DB())}
}

func (s *GormStore) Load(ctx context.Context) (string, bool, error) {
	return s.repo.Get(ctx, gormSessionKey)
}

func (s *GormStore) Save(ctx context.Context, value string) error {
	return s.repo.Put(ctx, gormSessionKey, value)
}

func (s *GormStore) Clear(ctx context.Context) error {
	return s.repo.Delete(ctx, gormSessionKey)
}

func (s *GormStore) Close() error { return s.provider.Close() }

// Ping 数据库存储依赖外部连接，供健康检查使用
func (s *GormStore) Ping(ctx context.Context) error { return s.provider.Ping(ctx) }

func (s *GormStore) Name() string { return s.provider.Name() }

// MemoryStore 进程内存储，不跨进程保留
type MemoryStore struct {
	mu    sync.Mutex
	value *string
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value == nil {
		return "", false, nil
	}
	return *s.value, true, nil
}

func (s *MemoryStore) Save(ctx context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = &value
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = nil
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Name() string { return "memory" }
