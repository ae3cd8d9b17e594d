package handler

import (
	"context"
	"errors"
	"net/http"

	response "prompthub/backend/internal/infra/common"
	appLogger "prompthub/backend/internal/infra/logger"
	interactionsvc "prompthub/backend/internal/service/interaction"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// InteractionHandler 负责点赞、收藏与复制计数的 HTTP 入口。
type InteractionHandler struct {
	service *interactionsvc.Service
	logger  *zap.SugaredLogger
}

// NewInteractionHandler 构造互动 handler。
func NewInteractionHandler(service *interactionsvc.Service) *InteractionHandler {
	return &InteractionHandler{
		service: service,
		logger:  appLogger.S().With("component", "interaction.handler"),
	}
}

// ToggleUpvote 处理 POST /api/prompts/:id/upvote，返回翻转后的状态与最新计数。
func (h *InteractionHandler) ToggleUpvote(c *gin.Context) {
	h.toggle(c, "toggle_upvote", h.service.ToggleUpvote, func(result interactionsvc.ToggleResult) gin.H {
		return gin.H{"upvoted": result.Active, "count": result.Count}
	})
}

// ToggleBookmark 处理 POST /api/prompts/:id/bookmark，收藏不携带计数。
func (h *InteractionHandler) ToggleBookmark(c *gin.Context) {
	h.toggle(c, "toggle_bookmark", h.service.ToggleBookmark, func(result interactionsvc.ToggleResult) gin.H {
		return gin.H{"bookmarked": result.Active}
	})
}

func (h *InteractionHandler) toggle(
	c *gin.Context,
	operation string,
	fn func(ctx context.Context, userID, promptID string) (interactionsvc.ToggleResult, error),
	render func(interactionsvc.ToggleResult) gin.H,
) {
	log := h.logger.With("operation", operation)

	userID, ok := extractUserID(c)
	if !ok {
		log.Warnw("missing user id")
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "missing user id", nil)
		return
	}

	promptID := c.Param("id")
	log = log.With("user_id", userID, "prompt_id", promptID)

	result, err := fn(c.Request.Context(), userID, promptID)
	if err != nil {
		if errors.Is(err, interactionsvc.ErrPromptNotFound) {
			log.Warnw("prompt not found")
			response.Fail(c, http.StatusNotFound, response.ErrNotFound, "prompt not found", nil)
			return
		}
		log.Errorw("toggle failed", "error", err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "failed to toggle", nil)
		return
	}

	response.Success(c, http.StatusOK, render(result), nil)
}

// IncrementCopy 处理 POST /api/prompts/:id/copy，匿名可调用。
func (h *InteractionHandler) IncrementCopy(c *gin.Context) {
	log := h.logger.With("operation", "increment_copy", "prompt_id", c.Param("id"))

	if err := h.service.IncrementCopy(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, interactionsvc.ErrPromptNotFound) {
			log.Warnw("prompt not found")
			response.Fail(c, http.StatusNotFound, response.ErrNotFound, "prompt not found", nil)
			return
		}
		log.Errorw("increment copy failed", "error", err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "failed to record copy", nil)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"success": true}, nil)
}
