// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"gemini-chat-go/internal/model"
	"gemini-chat-go/internal/service"
	"gemini-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

const (
	identityKey = "identity"
	tokenKey    = "token"
)

// BearerToken 从 Authorization 请求头中提取 token，不存在时返回空串。
func BearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
}

// OptionalAuth 在请求携带 token 时解析身份并存入上下文；没有 token 的请求照常放行。
// 携带了无效或已注销的 token 则返回 401。
func OptionalAuth(identities service.IdentityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := BearerToken(c)
		if tokenString == "" {
			c.Next()
			return
		}
		identity, err := identities.Authenticate(c.Request.Context(), tokenString)
		if err != nil {
			log.Warnf("OptionalAuth: rejecting token, error: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token", "data": nil})
			return
		}
		c.Set(identityKey, identity)
		c.Set(tokenKey, tokenString)
		c.Next()
	}
}

// RequireAuth 要求请求携带有效 token。
func RequireAuth(identities service.IdentityService) gin.HandlerFunc {
	optional := OptionalAuth(identities)
	return func(c *gin.Context) {
		if BearerToken(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权头", "data": nil})
			return
		}
		optional(c)
	}
}

// CurrentIdentity 返回 OptionalAuth/RequireAuth 存入的身份。
func CurrentIdentity(c *gin.Context) (*model.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*model.Identity)
	return identity, ok
}

// CurrentToken 返回已验证的原始 token。
func CurrentToken(c *gin.Context) string {
	return c.GetString(tokenKey)
}
