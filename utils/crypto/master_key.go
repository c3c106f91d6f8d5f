package cryptopackage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// MasterKeyFile 主密钥文件名
const MasterKeyFile = "master.key"

const masterKeyLength = 32

// SecureKey 安全密钥封装，支持内存清理
type SecureKey struct {
	key  []byte
	lock sync.RWMutex
}

// Get 获取密钥
func (sk *SecureKey) Get() []byte {
	sk.lock.RLock()
	defer sk.lock.RUnlock()
	return sk.key
}

// Clear 清零内存并释放
func (sk *SecureKey) Clear() {
	sk.lock.Lock()
	defer sk.lock.Unlock()
	for i := range sk.key {
		sk.key[i] = 0
	}
	sk.key = nil
}

// MasterKeyManager 会话签名密钥管理器
type MasterKeyManager struct {
	key    *SecureKey
	keyDir string
	source string // "config" | "file" | "generated"
}

// NewMasterKeyManager 创建主密钥管理器，keyDir 为密钥文件所在目录
func NewMasterKeyManager(keyDir string) *MasterKeyManager {
	return &MasterKeyManager{keyDir: keyDir}
}

// Initialize 初始化主密钥
// 优先使用配置的口令；否则读取密钥文件；都没有时生成新密钥并写入文件
func (m *MasterKeyManager) Initialize(secret string) error {
	var key []byte

	if secret != "" {
		key = DeriveKey(secret)
		m.source = "config"
	} else {
		keyPath := filepath.Join(m.keyDir, MasterKeyFile)
		if data, err := os.ReadFile(keyPath); err == nil {
			key, err = base64.StdEncoding.DecodeString(string(data))
			if err != nil {
				return fmt.Errorf("invalid master key file: %w", err)
			}
			if len(key) != masterKeyLength {
				return fmt.Errorf("master key must be %d bytes, got %d bytes", masterKeyLength, len(key))
			}
			m.source = "file"
		} else {
			key = make([]byte, masterKeyLength)
			if _, err := rand.Read(key); err != nil {
				return fmt.Errorf("failed to generate master key: %w", err)
			}

			if err := os.MkdirAll(filepath.Dir(keyPath), 0755); err != nil {
				return fmt.Errorf("failed to create key directory: %w", err)
			}
			encoded := base64.StdEncoding.EncodeToString(key)
			if err := os.WriteFile(keyPath, []byte(encoded), 0600); err != nil {
				return fmt.Errorf("failed to write master key file: %w", err)
			}
			m.source = "generated"
		}
	}

	m.key = &SecureKey{key: key}
	m.printFingerprint()
	return nil
}

// printFingerprint 打印密钥指纹（SHA256 前8字节）
func (m *MasterKeyManager) printFingerprint() {
	hash := sha256.Sum256(m.key.Get())
	log.Printf("[Session] Signing key source: %s, fingerprint: %s", m.source, hex.EncodeToString(hash[:8]))
}

// GetKey 获取主密钥
func (m *MasterKeyManager) GetKey() []byte {
	if m.key == nil {
		return nil
	}
	return m.key.Get()
}

// GetSource 获取密钥来源
func (m *MasterKeyManager) GetSource() string {
	return m.source
}
