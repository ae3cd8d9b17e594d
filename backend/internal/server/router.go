package server

import (
	"fmt"
	"strings"
	"time"

	"prompthub/backend/internal/handler"
	"prompthub/backend/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterOptions struct {
	AuthHandler        *handler.AuthHandler
	UserHandler        *handler.UserHandler
	FeedHandler        *handler.FeedHandler
	PromptHandler      *handler.PromptHandler
	InteractionHandler *handler.InteractionHandler
	CommentHandler     *handler.CommentHandler
	AuthMW             middleware.Authenticator
}

// NewRouter 构建应用的 Gin Engine，汇总所有 REST 接口与公共中间件配置。
func NewRouter(opts RouterOptions) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// gin 中间件配置
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  false,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
		AllowOriginFunc: func(origin string) bool {
			if origin == "" {
				return false
			}
			if strings.HasPrefix(origin, "http://localhost:") {
				return true
			}
			if strings.HasPrefix(origin, "http://127.0.0.1:") {
				return true
			}
			if strings.HasPrefix(origin, "https://") {
				return true
			}
			return false
		},
	}))
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: gin.LogFormatter(func(params gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s\" %d %s\n",
				params.ClientIP,
				params.TimeStamp.Format(time.RFC3339),
				params.Method,
				params.Path,
				params.StatusCode,
				params.Latency,
			)
		}),
	}))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		authGroup := api.Group("/auth")
		if opts.AuthHandler != nil {
			authGroup.GET("/captcha", opts.AuthHandler.Captcha)
			authGroup.POST("/otp/request", opts.AuthHandler.RequestOTP)
			authGroup.POST("/signup", opts.AuthHandler.Signup)
			authGroup.POST("/login", opts.AuthHandler.Login)
			authGroup.POST("/refresh", opts.AuthHandler.Refresh)
			authGroup.POST("/logout", opts.AuthHandler.Logout)
		}

		if opts.PromptHandler != nil {
			api.GET("/categories", opts.PromptHandler.Categories)
		}

		prompts := api.Group("/prompts")
		{
			// 发现页与详情页对游客开放，登录用户额外返回互动状态。
			if opts.AuthMW != nil {
				prompts.Use(opts.AuthMW.Optional())
			}
			if opts.FeedHandler != nil {
				prompts.GET("", opts.FeedHandler.List)
			}
			if opts.PromptHandler != nil {
				prompts.GET("/:id", opts.PromptHandler.Detail)
			}
			if opts.CommentHandler != nil {
				prompts.GET("/:id/comments", opts.CommentHandler.List)
			}
			if opts.InteractionHandler != nil {
				// 复制计数允许匿名上报。
				prompts.POST("/:id/copy", opts.InteractionHandler.IncrementCopy)
			}

			authed := prompts.Group("")
			if opts.AuthMW != nil {
				authed.Use(opts.AuthMW.Handle())
			}
			if opts.PromptHandler != nil {
				authed.POST("", opts.PromptHandler.Create)
				authed.PUT("/:id", opts.PromptHandler.Update)
				authed.DELETE("/:id", opts.PromptHandler.Delete)
			}
			if opts.InteractionHandler != nil {
				authed.POST("/:id/upvote", opts.InteractionHandler.ToggleUpvote)
				authed.POST("/:id/bookmark", opts.InteractionHandler.ToggleBookmark)
			}
			if opts.CommentHandler != nil {
				authed.POST("/:id/comments", opts.CommentHandler.Create)
			}
		}

		if opts.CommentHandler != nil {
			comments := api.Group("/comments")
			if opts.AuthMW != nil {
				comments.Use(opts.AuthMW.Handle())
			}
			comments.DELETE("/:commentId", opts.CommentHandler.Delete)
		}

		// /api/users 下的路由需要登录才能访问，所以单独分组，再挂载 JWT 鉴权中间件。
		userGroup := api.Group("/users")
		if opts.AuthMW != nil {
			userGroup.Use(opts.AuthMW.Handle())
		}
		if opts.UserHandler != nil {
			userGroup.GET("/me", opts.UserHandler.GetMe)
			userGroup.PUT("/me", opts.UserHandler.UpdateMe)
			userGroup.GET("/me/stats", opts.UserHandler.GetMyStats)
			userGroup.GET("/me/prompts", opts.UserHandler.GetMyPrompts)
			userGroup.GET("/me/bookmarks", opts.UserHandler.GetMyBookmarks)
		}
	}

	return r
}
