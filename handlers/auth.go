package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// CallerKey 上下文中保存调用者地址的键
const CallerKey = "addr"

// JWTAuth 校验 Bearer token 并把 addr 声明写入上下文
func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		bearer := c.GetHeader("Authorization")
		if !strings.HasPrefix(bearer, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "code": "unauthenticated"})
			return
		}
		token, err := jwt.Parse(bearer[7:], func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "unauthenticated"})
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		addr, _ := claims["addr"].(string)
		if !ok || addr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token has no addr claim", "code": "unauthenticated"})
			return
		}
		c.Set(CallerKey, addr)
		c.Next()
	}
}

// Caller 返回已认证的调用者地址，未认证时为空
func Caller(c *gin.Context) string {
	return c.GetString(CallerKey)
}

// IssueToken 签发携带 addr 声明的 HS256 token
func IssueToken(secret []byte, addr string, ttl time.Duration) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"addr": addr,
		"exp":  time.Now().Add(ttl).Unix(),
	})
	return tok.SignedString(secret)
}

// AdminChecker 管理员角色判定
type AdminChecker interface {
	IsAdmin(ctx context.Context, account string) (bool, error)
}

// AdminOnly 只允许管理员通过，必须在 JWTAuth 之后使用
func AdminOnly(checker AdminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := checker.IsAdmin(c.Request.Context(), Caller(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "role lookup failed", "code": "internal"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "administrator role required", "code": "permission_denied"})
			return
		}
		c.Next()
	}
}
