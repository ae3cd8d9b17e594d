package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "prompthub/backend/internal/domain/user"
	"prompthub/backend/internal/infra/captcha"
	appLogger "prompthub/backend/internal/infra/logger"
	"prompthub/backend/internal/infra/otp"
	"prompthub/backend/internal/infra/ratelimit"
	"prompthub/backend/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken           = errors.New("email already registered")
	ErrInvalidLogin         = errors.New("invalid email or password")
	ErrCaptchaRequired      = errors.New("captcha is required")
	ErrCaptchaInvalid       = errors.New("captcha verification failed")
	ErrCaptchaExpired       = errors.New("captcha expired or not found")
	ErrCaptchaRateLimited   = errors.New("captcha requests too frequent")
	ErrOTPInvalid           = errors.New("verification code is invalid")
	ErrOTPExpired           = errors.New("verification code expired or not found")
	ErrOTPRateLimited       = errors.New("verification code requests too frequent")
	ErrRefreshTokenInvalid  = errors.New("refresh token is invalid")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
	ErrRefreshTokenRevoked  = errors.New("refresh token revoked")
	ErrRefreshTokenRequired = errors.New("refresh token is required")
)

// CaptchaManager 聚合验证码生成与校验能力，便于在服务层替换实现。
type CaptchaManager interface {
	captcha.Generator
	captcha.Verifier
}

// TokenPair 表示一次鉴权流程中生成的访问令牌、刷新令牌及其过期时间。
// AccessToken 用于每次请求的身份校验；RefreshToken 用于续签新的 TokenPair。
// RefreshTokenID/RefreshTokenExpiresAt 是内部使用的元信息，帮助我们把刷新令牌写入存储并控制生命周期。
type TokenPair struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	ExpiresIn             int64     `json:"expires_in"` // seconds
	RefreshTokenID        string    `json:"-"`
	RefreshTokenExpiresAt time.Time `json:"-"`
}

// TokenManager 抽象出签发 JWT 或其他令牌的能力，便于在不同实现之间切换。
// 目前仅有 JWTManager 一种实现。
type TokenManager interface {
	GenerateTokens(ctx context.Context, user *domain.User) (TokenPair, error)
	ParseRefreshToken(token string) (RefreshTokenClaims, error)
}

// RefreshTokenClaims 描述解析刷新令牌后得到的关键信息。
type RefreshTokenClaims struct {
	UserID    string
	TokenID   string
	ExpiresAt time.Time
}

// RefreshTokenStore 负责存储和验证刷新令牌，用于登出和令牌续期。
type RefreshTokenStore interface {
	Save(ctx context.Context, userID string, tokenID string, expiresAt time.Time) error
	Delete(ctx context.Context, userID string, tokenID string) error
	Exists(ctx context.Context, userID string, tokenID string) (bool, error)
}

// EmailSender 定义发送注册验证码邮件的能力，SMTP 与阿里云 DirectMail 均实现该接口。
type EmailSender interface {
	SendOTP(ctx context.Context, toEmail, name, code string) error
}

// loggingEmailSender 在未配置任何邮件服务时把验证码打到日志里，仅用于开发环境。
type loggingEmailSender struct {
	logger *zap.SugaredLogger
}

func (l *loggingEmailSender) SendOTP(_ context.Context, toEmail, _ string, code string) error {
	if l == nil {
		return nil
	}
	l.logger.Infow("otp code issued", "email", toEmail, "code", code)
	return nil
}

// Service 负责处理注册验证码、注册、登录、刷新、登出等鉴权业务。
//
// 依赖说明：
//   - UserRepository：读写用户数据（注册、查询、更新登录时间）。
//   - TokenManager：生成 / 解析 access token 与 refresh token。
//   - RefreshTokenStore：保存刷新令牌的“指纹”（userID + jti），用于防止重复使用、实现登出。
//   - otp.Store + ratelimit.Limiter：注册验证码的存储与发送频控。
//   - CaptchaManager：在请求验证码时提供图形验证码校验能力，按需注入。
type Service struct {
	users        *repository.UserRepository
	tokenManager TokenManager
	refreshStore RefreshTokenStore
	captcha      CaptchaManager
	otpStore     otp.Store
	otpLimiter   ratelimit.Limiter
	otpLimit     int
	otpWindow    time.Duration
	emailSender  EmailSender
	logger       *zap.SugaredLogger
}

// Options 聚合 Service 的可选依赖，避免构造函数参数继续膨胀。
type Options struct {
	Captcha     CaptchaManager
	OTPStore    otp.Store
	OTPLimiter  ratelimit.Limiter
	OTPLimit    int
	OTPWindow   time.Duration
	EmailSender EmailSender
}

// NewService 创建鉴权服务实例，并注入用户仓储与令牌管理器等核心依赖。
func NewService(users *repository.UserRepository, tm TokenManager, store RefreshTokenStore, opts Options) *Service {
	baseLogger := appLogger.S().With("component", "auth.service")

	sender := opts.EmailSender
	if sender == nil {
		sender = &loggingEmailSender{logger: baseLogger}
	}

	otpStore := opts.OTPStore
	if otpStore == nil {
		otpStore = otp.NewMemoryStore(0)
	}

	limit := opts.OTPLimit
	if limit <= 0 {
		limit = 5
	}
	window := opts.OTPWindow
	if window <= 0 {
		window = time.Hour
	}

	return &Service{
		users:        users,
		tokenManager: tm,
		refreshStore: store,
		captcha:      opts.Captcha,
		otpStore:     otpStore,
		otpLimiter:   opts.OTPLimiter,
		otpLimit:     limit,
		otpWindow:    window,
		emailSender:  sender,
		logger:       baseLogger,
	}
}

// RequestOTPParams 封装请求注册验证码所需的输入参数。
type RequestOTPParams struct {
	Email       string
	CaptchaID   string
	CaptchaCode string
}

// SignupParams 封装注册接口所需的输入参数。
type SignupParams struct {
	Name     string
	Email    string
	Password string
	Code     string
}

// LoginParams 封装登录接口所需的输入参数。
type LoginParams struct {
	Email    string
	Password string
}

// RequestOTP 为注册流程签发邮箱验证码：先校验图形验证码（若启用），
// 再确认邮箱未被占用，然后做按邮箱的发送频控，最后生成验证码并发邮件。
// 返回验证码有效期内剩余可请求次数，便于前端提示。
func (s *Service) RequestOTP(ctx context.Context, params RequestOTPParams) error {
	email := normalizeEmail(params.Email)
	log := s.scope("request_otp").With("email", email)

	log.Infow("otp request")

	if s.captcha != nil {
		if strings.TrimSpace(params.CaptchaID) == "" || strings.TrimSpace(params.CaptchaCode) == "" {
			log.Warn("captcha required but missing")
			return ErrCaptchaRequired
		}
		if err := s.captcha.Verify(ctx, params.CaptchaID, params.CaptchaCode); err != nil {
			switch {
			case errors.Is(err, captcha.ErrCaptchaNotFound):
				log.Warnw("captcha expired or not found", "captcha_id", params.CaptchaID)
				return ErrCaptchaExpired
			case errors.Is(err, captcha.ErrCaptchaMismatch):
				log.Warnw("captcha mismatch", "captcha_id", params.CaptchaID)
				return ErrCaptchaInvalid
			default:
				log.Errorw("captcha verify failed", "error", err)
				return fmt.Errorf("captcha verify: %w", err)
			}
		}
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		log.Warnw("email already registered")
		return ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Errorw("check email unique failed", "error", err)
		return fmt.Errorf("check email unique: %w", err)
	}

	if s.otpLimiter != nil {
		result, err := s.otpLimiter.Allow(ctx, "otp:"+email, s.otpLimit, s.otpWindow)
		if err != nil {
			log.Errorw("otp rate limit check failed", "error", err)
			return fmt.Errorf("otp rate limit: %w", err)
		}
		if !result.Allowed {
			log.Warnw("otp requests too frequent", "retry_after", result.RetryAfter)
			return ErrOTPRateLimited
		}
	}

	code, err := otp.GenerateCode()
	if err != nil {
		log.Errorw("generate otp code failed", "error", err)
		return fmt.Errorf("generate otp: %w", err)
	}

	if err := s.otpStore.Save(ctx, email, code); err != nil {
		log.Errorw("save otp code failed", "error", err)
		return fmt.Errorf("save otp: %w", err)
	}

	if err := s.emailSender.SendOTP(ctx, email, "", code); err != nil {
		log.Errorw("send otp email failed", "error", err)
		return fmt.Errorf("send otp email: %w", err)
	}

	log.Infow("otp code sent")
	return nil
}

// Signup 完成注册流程：消费邮箱验证码、校验邮箱唯一性、加密密码、
// 持久化用户并签发 TokenPair。验证码一次性消费，失败需重新请求。
func (s *Service) Signup(ctx context.Context, params SignupParams) (*domain.User, TokenPair, error) {
	email := normalizeEmail(params.Email)
	log := s.scope("signup").With("email", email, "name", params.Name)

	log.Infow("signup attempt")

	if err := s.otpStore.VerifyAndConsume(ctx, email, strings.TrimSpace(params.Code)); err != nil {
		switch {
		case errors.Is(err, otp.ErrCodeNotFound):
			log.Warnw("otp code expired or not found")
			return nil, TokenPair{}, ErrOTPExpired
		case errors.Is(err, otp.ErrCodeMismatch):
			log.Warnw("otp code mismatch")
			return nil, TokenPair{}, ErrOTPInvalid
		default:
			log.Errorw("otp verify failed", "error", err)
			return nil, TokenPair{}, fmt.Errorf("otp verify: %w", err)
		}
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		log.Warnw("email already registered")
		return nil, TokenPair{}, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Errorw("check email unique failed", "error", err)
		return nil, TokenPair{}, fmt.Errorf("check email unique: %w", err)
	}

	hash, err := hashPassword(params.Password)
	if err != nil {
		log.Errorw("hash password failed", "error", err)
		return nil, TokenPair{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now()
	user := &domain.User{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(params.Name),
		Email:           email,
		PasswordHash:    hash,
		Role:            domain.RoleUser,
		EmailVerifiedAt: &now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		log.Errorw("create user failed", "error", err)
		return nil, TokenPair{}, fmt.Errorf("create user: %w", err)
	}

	tokens, err := s.issueAndStoreTokens(ctx, user)
	if err != nil {
		return nil, TokenPair{}, err
	}

	log.With("user_id", user.ID).Infow("user registered")

	return user, tokens, nil
}

// Login 校验邮箱与密码，更新登录时间，并重新签发新的 TokenPair。
// 当用户在多端登录时，每次登录都会获得独立的 refresh token，互不影响。
func (s *Service) Login(ctx context.Context, params LoginParams) (*domain.User, TokenPair, error) {
	email := normalizeEmail(params.Email)
	log := s.scope("login").With("email", email)

	log.Infow("login attempt")

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		log.Warnw("login email not found or repo error", "error", err)
		return nil, TokenPair{}, ErrInvalidLogin
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(params.Password)); err != nil {
		log.Warnw("password mismatch")
		return nil, TokenPair{}, ErrInvalidLogin
	}

	if err := s.users.TouchLastLogin(ctx, user.ID, time.Now()); err != nil {
		log.Errorw("update last login failed", "error", err, "user_id", user.ID)
		return nil, TokenPair{}, fmt.Errorf("update last login: %w", err)
	}

	tokens, err := s.issueAndStoreTokens(ctx, user)
	if err != nil {
		return nil, TokenPair{}, err
	}

	log.With("user_id", user.ID).Infow("login success")

	return user, tokens, nil
}

// Refresh 使用刷新令牌换取新的访问令牌与刷新令牌。
//
// 链路说明：
//  1. 解析 refresh token -> 得到 userID、jti（令牌指纹）、过期时间。
//  2. 校验是否过期；若刷新令牌也过期，则返回 ErrRefreshTokenExpired，前端需要重新登录。
//  3. 到 RefreshTokenStore 查 jti 是否存在，确保这张令牌没有被提前吊销或重复使用。
//  4. 删除旧 jti（实现“单次使用”），重新签发 access/refresh，并将新的 jti 写回存储。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	log := s.scope("refresh")

	if strings.TrimSpace(refreshToken) == "" {
		log.Warn("missing refresh token")
		return TokenPair{}, ErrRefreshTokenRequired
	}

	claims, err := s.tokenManager.ParseRefreshToken(refreshToken)
	if err != nil {
		log.Warnw("parse refresh token failed", "error", err)
		return TokenPair{}, ErrRefreshTokenInvalid
	}

	if claims.ExpiresAt.IsZero() {
		log.Warnw("refresh token missing expiry", "user_id", claims.UserID)
		return TokenPair{}, ErrRefreshTokenInvalid
	}

	if time.Now().After(claims.ExpiresAt) {
		log.Warnw("refresh token expired", "user_id", claims.UserID)
		return TokenPair{}, ErrRefreshTokenExpired
	}

	if s.refreshStore == nil {
		log.Error("refresh store not configured")
		return TokenPair{}, fmt.Errorf("refresh token store missing")
	}

	ok, storeErr := s.refreshStore.Exists(ctx, claims.UserID, claims.TokenID)
	if storeErr != nil {
		log.Errorw("refresh store check failed", "error", storeErr)
		return TokenPair{}, fmt.Errorf("check refresh token: %w", storeErr)
	}
	if !ok {
		log.Warnw("refresh token revoked", "user_id", claims.UserID)
		return TokenPair{}, ErrRefreshTokenRevoked
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		log.Errorw("load user failed", "error", err, "user_id", claims.UserID)
		return TokenPair{}, fmt.Errorf("load user: %w", err)
	}

	// 旋转刷新令牌：删除旧的，再生成新的。
	if err := s.refreshStore.Delete(ctx, claims.UserID, claims.TokenID); err != nil {
		log.Errorw("delete old refresh token failed", "error", err, "token_id", claims.TokenID)
		return TokenPair{}, fmt.Errorf("delete refresh token: %w", err)
	}

	return s.issueAndStoreTokens(ctx, user)
}

// Logout 撤销指定刷新令牌。删除成功后这张 refresh token 将无法再换取新的
// access token，达到“彻底退出”的目的。
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	log := s.scope("logout")

	if strings.TrimSpace(refreshToken) == "" {
		log.Warn("missing refresh token")
		return ErrRefreshTokenRequired
	}

	claims, err := s.tokenManager.ParseRefreshToken(refreshToken)
	if err != nil {
		log.Warnw("parse refresh token failed", "error", err)
		return ErrRefreshTokenInvalid
	}

	if s.refreshStore == nil {
		log.Error("refresh store not configured")
		return fmt.Errorf("refresh token store missing")
	}

	if err := s.refreshStore.Delete(ctx, claims.UserID, claims.TokenID); err != nil {
		log.Errorw("delete refresh token failed", "error", err, "token_id", claims.TokenID)
		return fmt.Errorf("delete refresh token: %w", err)
	}

	return nil
}

// CaptchaEnabled 表示当前服务是否启用了验证码依赖。
func (s *Service) CaptchaEnabled() bool {
	return s != nil && s.captcha != nil
}

// GenerateCaptcha 调用底层验证码管理器生成图形验证码。
func (s *Service) GenerateCaptcha(ctx context.Context, ip string) (string, string, error) {
	if !s.CaptchaEnabled() {
		return "", "", ErrCaptchaRequired
	}

	id, b64, err := s.captcha.Generate(ctx, ip)
	if err != nil {
		if errors.Is(err, captcha.ErrRateLimited) {
			return "", "", ErrCaptchaRateLimited
		}
		return "", "", fmt.Errorf("generate captcha: %w", err)
	}

	return id, b64, nil
}

// issueAndStoreTokens 是注册/登录/刷新等场景的公共步骤：
//  1. 调用 TokenManager 生成访问令牌 + 刷新令牌（含 jti、过期时间）。
//  2. 把刷新令牌的指纹写入 RefreshTokenStore，方便后续刷新、登出、吊销。
//
// 若保存刷新令牌失败，会把错误直接冒泡出去，确保不会返回“不可刷新”的令牌对。
func (s *Service) issueAndStoreTokens(ctx context.Context, user *domain.User) (TokenPair, error) {
	log := s.scope("issue_tokens").With("user_id", user.ID)

	tokens, err := s.tokenManager.GenerateTokens(ctx, user)
	if err != nil {
		log.Errorw("generate tokens failed", "error", err)
		return TokenPair{}, fmt.Errorf("generate tokens: %w", err)
	}

	if s.refreshStore == nil {
		return TokenPair{}, fmt.Errorf("refresh token store missing")
	}
	if tokens.RefreshTokenID == "" {
		return TokenPair{}, fmt.Errorf("refresh token id missing")
	}
	if tokens.RefreshTokenExpiresAt.IsZero() {
		return TokenPair{}, fmt.Errorf("refresh token expiry missing")
	}

	if err := s.refreshStore.Save(ctx, user.ID, tokens.RefreshTokenID, tokens.RefreshTokenExpiresAt); err != nil {
		log.Errorw("save refresh token failed", "error", err)
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}

	return tokens, nil
}

// hashPassword 使用 bcrypt 对明文密码加盐哈希，确保存储安全。
func hashPassword(password string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) scope(operation string) *zap.SugaredLogger {
	if s.logger == nil {
		s.logger = appLogger.S().With("component", "auth.service")
	}
	return s.logger.With("operation", operation)
}
