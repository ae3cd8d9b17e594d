package handler

import (
	"errors"
	"net/http"

	response "prompthub/backend/internal/infra/common"
	appLogger "prompthub/backend/internal/infra/logger"
	commentsvc "prompthub/backend/internal/service/comment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CommentHandler 负责评论相关的 HTTP 入口。
type CommentHandler struct {
	service *commentsvc.Service
	logger  *zap.SugaredLogger
}

// NewCommentHandler 构造评论 handler。
func NewCommentHandler(service *commentsvc.Service) *CommentHandler {
	return &CommentHandler{
		service: service,
		logger:  appLogger.S().With("component", "comment.handler"),
	}
}

// CreateCommentRequest 描述新增评论的请求体。
type CreateCommentRequest struct {
	Content string `json:"content" binding:"required,min=1"`
}

// List 处理 GET /api/prompts/:id/comments。
func (h *CommentHandler) List(c *gin.Context) {
	log := h.logger.With("operation", "list", "prompt_id", c.Param("id"))

	comments, err := h.service.ListByPrompt(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, commentsvc.ErrPromptNotFound) {
			log.Warnw("prompt not found")
			response.Fail(c, http.StatusNotFound, response.ErrNotFound, "prompt not found", nil)
			return
		}
		log.Errorw("list comments failed", "error", err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "failed to load comments", nil)
		return
	}

	response.Success(c, http.StatusOK, comments, nil)
}

// Create 处理 POST /api/prompts/:id/comments。
func (h *CommentHandler) Create(c *gin.Context) {
	log := h.logger.With("operation", "create", "prompt_id", c.Param("id"))

	userID, ok := extractUserID(c)
	if !ok {
		log.Warnw("missing user id")
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "missing user id", nil)
		return
	}
	log = log.With("user_id", userID)

	var req CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnw("invalid request body", "error", err)
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, err.Error(), nil)
		return
	}

	created, err := h.service.Create(c.Request.Context(), userID, c.Param("id"), req.Content)
	if err != nil {
		switch {
		case errors.Is(err, commentsvc.ErrPromptNotFound):
			log.Warnw("prompt not found")
			response.Fail(c, http.StatusNotFound, response.ErrNotFound, "prompt not found", nil)
		case errors.Is(err, commentsvc.ErrContentRequired):
			log.Warnw("empty comment content")
			response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, err.Error(), nil)
		default:
			log.Errorw("create comment failed", "error", err)
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "failed to create comment", nil)
		}
		return
	}

	response.Created(c, created, nil)
}

// Delete 处理 DELETE /api/comments/:commentId。
func (h *CommentHandler) Delete(c *gin.Context) {
	log := h.logger.With("operation", "delete", "comment_id", c.Param("commentId"))

	userID, ok := extractUserID(c)
	if !ok {
		log.Warnw("missing user id")
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "missing user id", nil)
		return
	}
	log = log.With("user_id", userID)

	if err := h.service.Delete(c.Request.Context(), userID, c.Param("commentId")); err != nil {
		switch {
		case errors.Is(err, commentsvc.ErrCommentNotFound):
			log.Warnw("comment not found")
			response.Fail(c, http.StatusNotFound, response.ErrNotFound, "comment not found", nil)
		case errors.Is(err, commentsvc.ErrNotOwner):
			log.Warnw("comment not owned by user")
			response.Fail(c, http.StatusForbidden, response.ErrForbidden, err.Error(), nil)
		default:
			log.Errorw("delete comment failed", "error", err)
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "failed to delete comment", nil)
		}
		return
	}

	response.NoContent(c)
}
