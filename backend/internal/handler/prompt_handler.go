package handler

import (
	"errors"
	"net/http"

	response "prompthub/backend/internal/infra/common"
	appLogger "prompthub/backend/internal/infra/logger"
	promptsvc "prompthub/backend/internal/service/prompt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PromptHandler 负责提示词增删改查的 HTTP 入口。
type PromptHandler struct {
	service *promptsvc.Service
	logger  *zap.SugaredLogger
}

// NewPromptHandler 构造提示词 handler。
func NewPromptHandler(service *promptsvc.Service) *PromptHandler {
	return &PromptHandler{
		service: service,
		logger:  appLogger.S().With("component", "prompt.handler"),
	}
}

// CreatePromptRequest 描述创建提示词的请求体。
type CreatePromptRequest struct {
	Title       string   `json:"title" binding:"required,min=1,max=255"`
	Content     string   `json:"content" binding:"required,min=1"`
	Description string   `json:"description" binding:"max=1000"`
	Category    string   `json:"category" binding:"required"`
	AITools     []string `json:"aiTool"`
	Tags        []string `json:"tags"`
	Difficulty  string   `json:"difficulty"`
	Published   *bool    `json:"published"`
}

// UpdatePromptRequest 描述部分更新提示词的请求体，nil 字段保持原值。
type UpdatePromptRequest struct {
	Title       *string  `json:"title" binding:"omitempty,min=1,max=255"`
	Content     *string  `json:"content" binding:"omitempty,min=1"`
	Description *string  `json:"description" binding:"omitempty,max=1000"`
	Category    *string  `json:"category"`
	AITools     []string `json:"aiTool"`
	Tags        []string `json:"tags"`
	Difficulty  *string  `json:"difficulty"`
	Published   *bool    `json:"published"`
}

// Create 处理 POST /api/prompts。
func (h *PromptHandler) Create(c *gin.Context) {
	log := h.scope("create")

	userID, ok := extractUserID(c)
	if !ok {
		log.Warnw("missing user id")
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "missing user id", nil)
		return
	}
	log = log.With("user_id", userID)

	var req CreatePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnw("invalid request body", "error", err)
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, err.Error(), nil)
		return
	}

	created, err := h.service.Create(c.Request.Context(), userID, promptsvc.CreateParams{
		Title:       req.Title,
		Content:     req.Content,
		Description: req.Description,
		Category:    req.Category,
		AITools:     req.AITools,
		Tags:        req.Tags,
		Difficulty:  req.Difficulty,
		Published:   req.Published,
	})
	if err != nil {
		h.fail(c, log, err, "create prompt failed")
		return
	}

	response.Created(c, created, nil)
}

// Detail 处理 GET /api/prompts/:id，浏览数在服务层原子自增。
func (h *PromptHandler) Detail(c *gin.Context) {
	log := h.scope("detail").With("prompt_id", c.Param("id"))

	viewerID, _ := extractUserID(c)

	detail, err := h.service.GetDetail(c.Request.Context(), viewerID, c.Param("id"))
	if err != nil {
		h.fail(c, log, err, "load prompt detail failed")
		return
	}

	response.Success(c, http.StatusOK, detail, nil)
}

// Update 处理 PUT /api/prompts/:id。
func (h *PromptHandler) Update(c *gin.Context) {
	log := h.scope("update").With("prompt_id", c.Param("id"))

	userID, ok := extractUserID(c)
	if !ok {
		log.Warnw("missing user id")
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "missing user id", nil)
		return
	}
	log = log.With("user_id", userID)

	var req UpdatePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnw("invalid request body", "error", err)
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, err.Error(), nil)
		return
	}

	updated, err := h.service.Update(c.Request.Context(), userID, c.Param("id"), promptsvc.UpdateParams{
		Title:       req.Title,
		Content:     req.Content,
		Description: req.Description,
		Category:    req.Category,
		AITools:     req.AITools,
		Tags:        req.Tags,
		Difficulty:  req.Difficulty,
		Published:   req.Published,
	})
	if err != nil {
		h.fail(c, log, err, "update prompt failed")
		return
	}

	response.Success(c, http.StatusOK, updated, nil)
}

// Delete 处理 DELETE /api/prompts/:id。
func (h *PromptHandler) Delete(c *gin.Context) {
	log := h.scope("delete").With("prompt_id", c.Param("id"))

	userID, ok := extractUserID(c)
	if !ok {
		log.Warnw("missing user id")
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "missing user id", nil)
		return
	}
	log = log.With("user_id", userID)

	if err := h.service.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.fail(c, log, err, "delete prompt failed")
		return
	}

	response.NoContent(c)
}

// Categories 处理 GET /api/categories，返回固定分类及计数。
func (h *PromptHandler) Categories(c *gin.Context) {
	log := h.scope("categories")

	counts, err := h.service.Categories(c.Request.Context())
	if err != nil {
		log.Errorw("load categories failed", "error", err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "failed to load categories", nil)
		return
	}

	response.Success(c, http.StatusOK, counts, nil)
}

// fail 按服务层错误类型映射状态码并输出统一响应。
func (h *PromptHandler) fail(c *gin.Context, log *zap.SugaredLogger, err error, message string) {
	switch {
	case errors.Is(err, promptsvc.ErrPromptNotFound):
		log.Warnw("prompt not found")
		response.Fail(c, http.StatusNotFound, response.ErrNotFound, "prompt not found", nil)
	case errors.Is(err, promptsvc.ErrNotOwner):
		log.Warnw("prompt not owned by user")
		response.Fail(c, http.StatusForbidden, response.ErrForbidden, err.Error(), nil)
	case errors.Is(err, promptsvc.ErrTitleRequired),
		errors.Is(err, promptsvc.ErrContentRequired),
		errors.Is(err, promptsvc.ErrInvalidCategory),
		errors.Is(err, promptsvc.ErrInvalidDifficulty):
		log.Warnw("invalid prompt payload", "error", err)
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, err.Error(), nil)
	default:
		log.Errorw(message, "error", err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, message, nil)
	}
}

func (h *PromptHandler) scope(operation string) *zap.SugaredLogger {
	return h.logger.With("operation", operation)
}
