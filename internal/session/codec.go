package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/anoixa/image-gallery/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "image-gallery"

// ErrMalformedSession 持久化的会话无法解析或签名不符
var ErrMalformedSession = errors.New("malformed persisted session")

// sessionClaims 落盘的会话内容
type sessionClaims struct {
	Name string `json:"name"`
	Bio  string `json:"bio,omitempty"`
	jwt.RegisteredClaims
}

// Codec 会话与签名字符串之间的转换
// 签名只防止存储内容被篡改或截断，不做加密
type Codec struct {
	key []byte
}

// NewCodec 创建编解码器
func NewCodec(key []byte) (*Codec, error) {
	if len(key) == 0 {
		return nil, errors.New("session signing key is empty")
	}
	return &Codec{key: key}, nil
}

// Encode 签名会话
func (c *Codec) Encode(s models.Session) (string, error) {
	if !s.Valid() {
		return "", fmt.Errorf("%w: empty actor id", ErrMalformedSession)
	}
	claims := sessionClaims{
		Name: s.DisplayName,
		Bio:  s.Bio,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  s.ActorID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return token, nil
}

// Decode 校验签名并还原会话，任何问题都返回 ErrMalformedSession
func (c *Codec) Decode(value string) (models.Session, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(value, &claims, func(token *jwt.Token) (interface{}, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return models.Session{}, fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}

	s := models.Session{ActorID: claims.Subject, DisplayName: claims.Name, Bio: claims.Bio}
	if !s.Valid() {
		return models.Session{}, fmt.Errorf("%w: empty actor id", ErrMalformedSession)
	}
	return s, nil
}
