package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"prompthub/backend/internal/app"
	"prompthub/backend/internal/handler"
	"prompthub/backend/internal/infra/cache"
	"prompthub/backend/internal/infra/captcha"
	"prompthub/backend/internal/infra/email"
	"prompthub/backend/internal/infra/metrics"
	"prompthub/backend/internal/infra/otp"
	"prompthub/backend/internal/infra/ratelimit"
	"prompthub/backend/internal/infra/token"
	"prompthub/backend/internal/middleware"
	"prompthub/backend/internal/repository"
	"prompthub/backend/internal/server"
	authsvc "prompthub/backend/internal/service/auth"
	commentsvc "prompthub/backend/internal/service/comment"
	feedsvc "prompthub/backend/internal/service/feed"
	interactionsvc "prompthub/backend/internal/service/interaction"
	promptsvc "prompthub/backend/internal/service/prompt"
	usersvc "prompthub/backend/internal/service/user"

	"go.uber.org/zap"
)

// otpCodeTTLMinutes 与 otp.Store 的默认有效期保持一致，用于邮件正文提示。
const otpCodeTTLMinutes = 10

// Application 聚合构建完成的服务与路由，供 main 启动 HTTP 服务。
type Application struct {
	Resources *app.Resources
	Router    http.Handler
}

// BuildApplication 完成依赖装配：仓储、缓存、服务、handler 与路由。
// Redis 缺席时缓存、限流、验证码存储自动退化为内存实现。
func BuildApplication(ctx context.Context, logger *zap.SugaredLogger, resources *app.Resources) (*Application, error) {
	cfg := resources.Config

	metrics.MustRegister()

	userRepo := repository.NewUserRepository(resources.DB)
	promptRepo := repository.NewPromptRepository(resources.DB)
	upvoteRepo := repository.NewUpvoteRepository(resources.DB)
	bookmarkRepo := repository.NewBookmarkRepository(resources.DB)
	commentRepo := repository.NewCommentRepository(resources.DB)

	var feedCache cache.FeedCache
	if resources.Redis != nil {
		feedCache = cache.NewRedisFeedCache(resources.Redis, "")
	} else {
		feedCache = cache.NewMemoryFeedCache()
		logger.Infow("using in-memory feed cache; entries are per-process only")
	}

	tokens := token.NewJWTManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)

	var refreshStore authsvc.RefreshTokenStore
	if resources.Redis != nil {
		refreshStore = token.NewRedisRefreshTokenStore(resources.Redis, "")
	} else {
		refreshStore = token.NewMemoryRefreshTokenStore()
		logger.Infow("using in-memory refresh token store; tokens won't persist across restarts")
	}

	var otpStore otp.Store
	var otpLimiter ratelimit.Limiter
	if resources.Redis != nil {
		otpStore = otp.NewRedisStore(resources.Redis, "", 0)
		otpLimiter = ratelimit.NewRedisLimiter(resources.Redis, "")
	} else {
		otpStore = otp.NewMemoryStore(0)
		otpLimiter = ratelimit.NewMemoryLimiter()
		logger.Infow("using in-memory otp store and rate limiter")
	}

	captchaManager, err := initCaptchaManager(resources, logger)
	if err != nil {
		return nil, err
	}

	emailSender, err := initEmailSender(logger)
	if err != nil {
		return nil, err
	}

	authService := authsvc.NewService(userRepo, tokens, refreshStore, authsvc.Options{
		Captcha:     captchaManager,
		OTPStore:    otpStore,
		OTPLimiter:  otpLimiter,
		OTPLimit:    cfg.OTPRequestLimit,
		OTPWindow:   cfg.OTPRequestWindow,
		EmailSender: emailSender,
	})
	userService := usersvc.NewService(userRepo)
	feedService := feedsvc.NewService(promptRepo, userRepo, feedsvc.Options{
		Cache:       feedCache,
		CacheTTL:    cfg.FeedCacheTTL,
		PageSize:    cfg.FeedPageSize,
		PageSizeMax: cfg.FeedPageSizeMax,
	})
	interactionService := interactionsvc.NewService(promptRepo, upvoteRepo, bookmarkRepo, feedCache)
	promptService := promptsvc.NewService(promptRepo, upvoteRepo, bookmarkRepo, commentRepo, userRepo, feedCache)
	commentService := commentsvc.NewService(commentRepo, promptRepo, userRepo, feedCache)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)

	router := server.NewRouter(server.RouterOptions{
		AuthHandler:        handler.NewAuthHandler(authService),
		UserHandler:        handler.NewUserHandler(userService, promptService),
		FeedHandler:        handler.NewFeedHandler(feedService, interactionService),
		PromptHandler:      handler.NewPromptHandler(promptService),
		InteractionHandler: handler.NewInteractionHandler(interactionService),
		CommentHandler:     handler.NewCommentHandler(commentService),
		AuthMW:             authMiddleware,
	})

	return &Application{
		Resources: resources,
		Router:    router,
	}, nil
}

// initCaptchaManager 按环境配置初始化图形验证码；未启用时返回 nil。
func initCaptchaManager(resources *app.Resources, logger *zap.SugaredLogger) (authsvc.CaptchaManager, error) {
	captchaOpts, captchaEnabled, err := captcha.LoadOptionsFromEnv()
	if err != nil {
		logger.Errorw("load captcha config failed", "error", err)
		return nil, fmt.Errorf("load captcha config: %w", err)
	}

	if !captchaEnabled {
		return nil, nil
	}

	if resources.Redis == nil {
		return nil, fmt.Errorf("captcha enabled but redis not configured")
	}

	manager := captcha.NewManager(resources.Redis, captchaOpts)
	logger.Infow("captcha enabled", "prefix", captchaOpts.Prefix, "ttl", captchaOpts.TTL)
	return manager, nil
}

// initEmailSender 依次尝试阿里云 DirectMail 与 SMTP；两者都未配置时返回 nil，
// 此时 auth 服务会把验证码打到日志里，仅适合开发环境。
func initEmailSender(logger *zap.SugaredLogger) (authsvc.EmailSender, error) {
	aliyunCfg, aliyunEnabled, err := email.LoadAliyunConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load aliyun email config: %w", err)
	}
	if aliyunEnabled {
		sender, err := email.NewAliyunSender(aliyunCfg, otpCodeTTLMinutes)
		if err != nil {
			return nil, fmt.Errorf("init aliyun email sender: %w", err)
		}
		logger.Infow("email sender enabled", "provider", "aliyun", "account", aliyunCfg.AccountName)
		return sender, nil
	}

	smtpCfg, smtpEnabled, err := email.LoadSMTPConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load smtp config: %w", err)
	}
	if smtpEnabled {
		sender, err := email.NewSender(smtpCfg, otpCodeTTLMinutes)
		if err != nil {
			return nil, fmt.Errorf("init smtp sender: %w", err)
		}
		logger.Infow("email sender enabled", "provider", "smtp", "host", smtpCfg.Host)
		return sender, nil
	}

	logger.Infow("no email sender configured; otp codes will be logged")
	return nil, nil
}
