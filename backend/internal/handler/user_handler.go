package handler

import (
	"errors"
	"net/http"

	response "prompthub/backend/internal/infra/common"
	appLogger "prompthub/backend/internal/infra/logger"
	promptsvc "prompthub/backend/internal/service/prompt"
	usersvc "prompthub/backend/internal/service/user"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserHandler 负责个人中心相关的 HTTP 入口。
type UserHandler struct {
	users   *usersvc.Service
	prompts *promptsvc.Service
	logger  *zap.SugaredLogger
}

// NewUserHandler 构造用户 handler。
func NewUserHandler(users *usersvc.Service, prompts *promptsvc.Service) *UserHandler {
	return &UserHandler{
		users:   users,
		prompts: prompts,
		logger:  appLogger.S().With("component", "user.handler"),
	}
}

// UpdateMeRequest 描述更新当前登录用户资料的请求体。
type UpdateMeRequest struct {
	Name  *string `json:"name" binding:"omitempty,min=2,max=64"`
	Image *string `json:"image"`
	Bio   *string `json:"bio" binding:"omitempty,max=500"`
}

// GetMe 返回当前登录用户资料。
func (h *UserHandler) GetMe(c *gin.Context) {
	log := h.scope("get_me")

	userID, ok := extractUserID(c)
	if !ok {
		log.Warnw("missing user id")
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "missing user id", nil)
		return
	}
	log = log.With("user_id", userID)

	profile, err := h.users.GetProfile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, usersvc.ErrUserNotFound) {
			log.Warnw("user not found")
			response.Fail(c, http.StatusNotFound, response.ErrNotFound, err.Error(), nil)
			return
		}
		log.Errorw("get profile failed", "error", err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "failed to load profile", nil)
		return
	}

	response.Success(c, http.StatusOK, profile, nil)
}

// UpdateMe 更新当前登录用户资料。
func (h *UserHandler) UpdateMe(c *gin.Context) {
	log := h.scope("update_me")

	userID, ok := extractUserID(c)
	if !ok {
		log.Warnw("missing user id")
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "missing user id", nil)
		return
	}
	log = log.With("user_id", userID)

	var req UpdateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnw("invalid request body", "error", err)
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, err.Error(), nil)
		return
	}

	updated, err := h.users.UpdateProfile(c.Request.Context(), userID, usersvc.UpdateProfileParams{
		Name:  req.Name,
		Image: req.Image,
		Bio:   req.Bio,
	})
	if err != nil {
		if errors.Is(err, usersvc.ErrUserNotFound) {
			log.Warnw("user not found")
			response.Fail(c, http.StatusNotFound, response.ErrNotFound, err.Error(), nil)
			return
		}
		log.Errorw("update profile failed", "error", err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "failed to update profile", nil)
		return
	}

	log.Infow("profile updated")
	response.Success(c, http.StatusOK, updated, nil)
}

// GetMyStats 返回当前用户的创作统计。
func (h *UserHandler) GetMyStats(c *gin.Context) {
	log := h.scope("get_my_stats")

	userID, ok := extractUserID(c)
	if !ok {
		log.Warnw("missing user id")
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "missing user id", nil)
		return
	}

	stats, err := h.prompts.StatsByAuthor(c.Request.Context(), userID)
	if err != nil {
		log.Errorw("load author stats failed", "error", err, "user_id", userID)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "failed to load stats", nil)
		return
	}

	response.Success(c, http.StatusOK, stats, nil)
}

// GetMyPrompts 返回当前用户创建的提示词，含草稿。
func (h *UserHandler) GetMyPrompts(c *gin.Context) {
	log := h.scope("get_my_prompts")

	userID, ok := extractUserID(c)
	if !ok {
		log.Warnw("missing user id")
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "missing user id", nil)
		return
	}

	records, err := h.prompts.ListByAuthor(c.Request.Context(), userID)
	if err != nil {
		log.Errorw("list my prompts failed", "error", err, "user_id", userID)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "failed to load prompts", nil)
		return
	}

	response.Success(c, http.StatusOK, records, nil)
}

// GetMyBookmarks 返回当前用户收藏的提示词。
func (h *UserHandler) GetMyBookmarks(c *gin.Context) {
	log := h.scope("get_my_bookmarks")

	userID, ok := extractUserID(c)
	if !ok {
		log.Warnw("missing user id")
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "missing user id", nil)
		return
	}

	records, err := h.prompts.ListBookmarked(c.Request.Context(), userID)
	if err != nil {
		log.Errorw("list bookmarks failed", "error", err, "user_id", userID)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "failed to load bookmarks", nil)
		return
	}

	response.Success(c, http.StatusOK, records, nil)
}

func (h *UserHandler) scope(operation string) *zap.SugaredLogger {
	return h.logger.With("operation", operation)
}
