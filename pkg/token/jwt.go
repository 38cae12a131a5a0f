// Package token 校验（以及为开发环境签发）身份提供方的 JSON Web Token。
package token

import (
	"errors"
	"time"

	"gemini-chat-go/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every verification failure.
var ErrInvalidToken = errors.New("invalid token")

// JWTManager 负责管理 JWT 的生成和验证。
type JWTManager struct {
	secretKey []byte
	issuer    string
	ttl       time.Duration
}

// IdentityClaims 是身份提供方放入令牌的用户信息，sub 即稳定的用户标识。
type IdentityClaims struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Identity 返回声明中的用户信息。
func (c *IdentityClaims) Identity() model.Identity {
	return model.Identity{Subject: c.Subject, Name: c.Name, Email: c.Email, Picture: c.Picture}
}

// NewJWTManager 创建一个新的 JWTManager。issuer 为空时不校验 iss。
func NewJWTManager(secret, issuer string, ttlHours int) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secret),
		issuer:    issuer,
		ttl:       time.Duration(ttlHours) * time.Hour,
	}
}

// GenerateToken 为给定身份签发一个 HS256 令牌。
func (m *JWTManager) GenerateToken(id model.Identity) (string, error) {
	now := time.Now()
	claims := IdentityClaims{
		Name:    id.Name,
		Email:   id.Email,
		Picture: id.Picture,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
}

// VerifyToken 验证给定的 token 字符串并返回其声明。
func (m *JWTManager) VerifyToken(tokenString string) (*IdentityClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Remaining 返回令牌距过期的剩余时间。
func (c *IdentityClaims) Remaining() time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return time.Until(c.ExpiresAt.Time)
}
