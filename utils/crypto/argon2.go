package cryptopackage

import (
	"golang.org/x/crypto/argon2"
)

// Argon2id 参数，派生密钥只在启动时计算一次
const (
	// memory 以 KiB 为单位
	argon2Memory uint32 = 19456 // 19 MB

	argon2Iterations  uint32 = 2
	argon2Parallelism uint8  = 1

	// keyLength HS256 签名密钥长度
	argon2KeyLength uint32 = 32
)

// sessionSalt 固定盐值，同一个口令在不同进程间派生出同一把密钥
var sessionSalt = []byte("image-gallery/session/v1")

// DeriveKey 使用 Argon2id 从口令派生签名密钥
func DeriveKey(secret string) []byte {
	return argon2.IDKey([]byte(secret), sessionSalt, argon2Iterations, argon2Memory, argon2Parallelism, argon2KeyLength)
}
