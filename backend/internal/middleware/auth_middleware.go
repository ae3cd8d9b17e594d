package middleware

import (
	"net/http"
	"strings"

	response "prompthub/backend/internal/infra/common"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// 上下文键，供 handler 读取当前用户信息。
const (
	ContextUserIDKey   = "userID"
	ContextUserNameKey = "userName"
	ContextUserRoleKey = "userRole"
)

// AuthMiddleware 基于共享密钥校验 JWT 的合法性，保护受限路由。
type AuthMiddleware struct {
	secret string
}

// NewAuthMiddleware 创建鉴权中间件实例，注入 JWT 签名密钥。
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: secret}
}

// Handle 返回 Gin 中间件，验证 Bearer Token 并在上下文中注入用户信息。
// 缺失或非法的令牌直接以 401 拒绝。
func (m *AuthMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "missing authorization header", nil)
			c.Abort()
			return
		}

		claims, err := m.parseAccessToken(raw)
		if err != nil {
			response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "invalid token", nil)
			c.Abort()
			return
		}

		injectClaims(c, claims)
		c.Next()
	}
}

// Optional 返回可选鉴权中间件：令牌缺失或非法时按匿名放行，不中断请求。
// 发现页等接口用它来区分登录用户与游客。
func (m *AuthMiddleware) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, ok := bearerToken(c); ok {
			if claims, err := m.parseAccessToken(raw); err == nil {
				injectClaims(c, claims)
			}
		}
		c.Next()
	}
}

// parseAccessToken 校验签名与有效期，并确认令牌类型为 access。
func (m *AuthMiddleware) parseAccessToken(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return []byte(m.secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}

	// 刷新令牌不能用于访问受保护接口。
	if tokenType, _ := claims["token_type"].(string); tokenType != "access" {
		return nil, jwt.ErrTokenInvalidClaims
	}

	if sub, _ := claims["sub"].(string); sub == "" {
		return nil, jwt.ErrTokenInvalidSubject
	}

	return claims, nil
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authHeader[7:])
	if token == "" {
		return "", false
	}
	return token, true
}

func injectClaims(c *gin.Context, claims jwt.MapClaims) {
	if sub, _ := claims["sub"].(string); sub != "" {
		c.Set(ContextUserIDKey, sub)
	}
	if name, _ := claims["name"].(string); name != "" {
		c.Set(ContextUserNameKey, name)
	}
	if role, _ := claims["role"].(string); role != "" {
		c.Set(ContextUserRoleKey, role)
	}
}

// CurrentUserID 读取上下文中的用户 ID，匿名请求返回空串。
func CurrentUserID(c *gin.Context) string {
	if value, ok := c.Get(ContextUserIDKey); ok {
		if id, ok := value.(string); ok {
			return id
		}
	}
	return ""
}

// CurrentUserRole 读取上下文中的用户角色。
func CurrentUserRole(c *gin.Context) string {
	if value, ok := c.Get(ContextUserRoleKey); ok {
		if role, ok := value.(string); ok {
			return role
		}
	}
	return ""
}
