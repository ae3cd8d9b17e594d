package middleware

import "github.com/gin-gonic/gin"

// Authenticator 抽象鉴权中间件：Handle 为强制鉴权，Optional 为可选鉴权。
// 实现该接口的结构体即可插入路由。
type Authenticator interface {
	Handle() gin.HandlerFunc
	Optional() gin.HandlerFunc
}
