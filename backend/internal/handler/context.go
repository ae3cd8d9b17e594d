package handler

import (
	"prompthub/backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

// extractUserID 读取鉴权中间件注入的用户 ID。
// 第二个返回值表示当前请求是否携带了有效登录态。
func extractUserID(c *gin.Context) (string, bool) {
	id := middleware.CurrentUserID(c)
	return id, id != ""
}
