package handler

import (
	"errors"
	"net/http"

	response "prompthub/backend/internal/infra/common"
	appLogger "prompthub/backend/internal/infra/logger"
	"prompthub/backend/internal/service/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthHandler 负责对接 Gin，处理鉴权相关的 HTTP 请求。
type AuthHandler struct {
	service *auth.Service
	logger  *zap.SugaredLogger
}

// NewAuthHandler 构造鉴权 handler，注入业务层服务做实际处理。
func NewAuthHandler(service *auth.Service) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  appLogger.S().With("component", "auth.handler"),
	}
}

type requestOTPRequest struct {
	Email       string `json:"email" binding:"required,email"`
	CaptchaID   string `json:"captcha_id"`
	CaptchaCode string `json:"captcha_code"`
}

type signupRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Code     string `json:"code" binding:"required,len=6"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// authPayload 是注册/登录成功后的响应载荷。
type authPayload struct {
	User   any            `json:"user"`
	Tokens auth.TokenPair `json:"tokens"`
}

// Captcha 处理 GET /api/auth/captcha，生成图形验证码。
func (h *AuthHandler) Captcha(c *gin.Context) {
	log := h.logger.With("operation", "captcha")

	id, b64, err := h.service.GenerateCaptcha(c.Request.Context(), c.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrCaptchaRequired):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound, "captcha is not enabled", nil)
		case errors.Is(err, auth.ErrCaptchaRateLimited):
			log.Warnw("captcha rate limited", "ip", c.ClientIP())
			response.Fail(c, http.StatusTooManyRequests, response.ErrTooManyRequests, err.Error(), nil)
		default:
			log.Errorw("generate captcha failed", "error", err)
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "failed to generate captcha", nil)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"captcha_id": id, "captcha_image": b64}, nil)
}

// RequestOTP 处理 POST /api/auth/otp/request，发送注册验证码邮件。
func (h *AuthHandler) RequestOTP(c *gin.Context) {
	log := h.logger.With("operation", "request_otp")

	var req requestOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnw("invalid request body", "error", err)
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, err.Error(), nil)
		return
	}

	err := h.service.RequestOTP(c.Request.Context(), auth.RequestOTPParams{
		Email:       req.Email,
		CaptchaID:   req.CaptchaID,
		CaptchaCode: req.CaptchaCode,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrCaptchaRequired),
			errors.Is(err, auth.ErrCaptchaInvalid),
			errors.Is(err, auth.ErrCaptchaExpired):
			log.Warnw("captcha rejected", "error", err)
			response.Fail(c, http.StatusBadRequest, response.ErrCaptchaInvalid, err.Error(), nil)
		case errors.Is(err, auth.ErrEmailTaken):
			response.Fail(c, http.StatusConflict, response.ErrConflict, err.Error(), nil)
		case errors.Is(err, auth.ErrOTPRateLimited):
			log.Warnw("otp rate limited")
			response.Fail(c, http.StatusTooManyRequests, response.ErrTooManyRequests, err.Error(), nil)
		default:
			log.Errorw("request otp failed", "error", err)
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "failed to send verification code", nil)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sent": true}, nil)
}

// Signup 处理 POST /api/auth/signup，消费验证码并创建账号。
func (h *AuthHandler) Signup(c *gin.Context) {
	log := h.logger.With("operation", "signup")

	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnw("invalid request body", "error", err)
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, err.Error(), nil)
		return
	}

	user, tokens, err := h.service.Signup(c.Request.Context(), auth.SignupParams{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Code:     req.Code,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrOTPInvalid), errors.Is(err, auth.ErrOTPExpired):
			log.Warnw("otp rejected", "error", err)
			response.Fail(c, http.StatusBadRequest, response.ErrOTPInvalid, err.Error(), nil)
		case errors.Is(err, auth.ErrEmailTaken):
			response.Fail(c, http.StatusConflict, response.ErrConflict, err.Error(), nil)
		default:
			log.Errorw("signup failed", "error", err)
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "failed to sign up", nil)
		}
		return
	}

	response.Created(c, authPayload{User: user, Tokens: tokens}, nil)
}

// Login 处理 POST /api/auth/login。
func (h *AuthHandler) Login(c *gin.Context) {
	log := h.logger.With("operation", "login")

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnw("invalid request body", "error", err)
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, err.Error(), nil)
		return
	}

	user, tokens, err := h.service.Login(c.Request.Context(), auth.LoginParams{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidLogin) {
			log.Warnw("invalid credentials")
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials, err.Error(), nil)
			return
		}
		log.Errorw("login failed", "error", err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "failed to log in", nil)
		return
	}

	response.Success(c, http.StatusOK, authPayload{User: user, Tokens: tokens}, nil)
}

// Refresh 处理 POST /api/auth/refresh，轮换刷新令牌。
func (h *AuthHandler) Refresh(c *gin.Context) {
	log := h.logger.With("operation", "refresh")

	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnw("invalid request body", "error", err)
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, err.Error(), nil)
		return
	}

	tokens, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrRefreshTokenRequired),
			errors.Is(err, auth.ErrRefreshTokenInvalid),
			errors.Is(err, auth.ErrRefreshTokenExpired),
			errors.Is(err, auth.ErrRefreshTokenRevoked):
			log.Warnw("refresh rejected", "error", err)
			response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, err.Error(), nil)
		default:
			log.Errorw("refresh failed", "error", err)
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "failed to refresh tokens", nil)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"tokens": tokens}, nil)
}

// Logout 处理 POST /api/auth/logout，吊销刷新令牌。
func (h *AuthHandler) Logout(c *gin.Context) {
	log := h.logger.With("operation", "logout")

	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnw("invalid request body", "error", err)
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, err.Error(), nil)
		return
	}

	if err := h.service.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		switch {
		case errors.Is(err, auth.ErrRefreshTokenRequired), errors.Is(err, auth.ErrRefreshTokenInvalid):
			log.Warnw("logout rejected", "error", err)
			response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, err.Error(), nil)
		default:
			log.Errorw("logout failed", "error", err)
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "failed to log out", nil)
		}
		return
	}

	response.NoContent(c)
}
