package handler

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	response "prompthub/backend/internal/infra/common"
	appLogger "prompthub/backend/internal/infra/logger"
	feedsvc "prompthub/backend/internal/service/feed"
	interactionsvc "prompthub/backend/internal/service/interaction"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FeedHandler 负责发现页查询的 HTTP 入口。
type FeedHandler struct {
	feed         *feedsvc.Service
	interactions *interactionsvc.Service
	logger       *zap.SugaredLogger
}

// NewFeedHandler 构造发现页 handler。
func NewFeedHandler(feed *feedsvc.Service, interactions *interactionsvc.Service) *FeedHandler {
	return &FeedHandler{
		feed:         feed,
		interactions: interactions,
		logger:       appLogger.S().With("component", "feed.handler"),
	}
}

// viewerState 是登录用户在当前结果集上的互动状态。
type viewerState struct {
	UpvotedIDs    []string `json:"upvotedIds"`
	BookmarkedIDs []string `json:"bookmarkedIds"`
}

// feedResponse 在查询结果之外补充当前用户的互动状态。
type feedResponse struct {
	feedsvc.FeedPage
	Viewer viewerState `json:"interactionState"`
}

// List 处理 GET /api/prompts：过滤、排序、分页，可选登录态补充互动状态。
func (h *FeedHandler) List(c *gin.Context) {
	log := h.logger.With("operation", "list")

	spec := feedsvc.QuerySpec{
		Category:   c.Query("category"),
		AITool:     c.Query("aiTool"),
		Difficulty: c.Query("difficulty"),
		Search:     c.Query("search"),
		Sort:       c.Query("sort"),
		Page:       queryInt(c, "page"),
		Limit:      queryInt(c, "limit"),
	}

	page, err := h.feed.GetPrompts(c.Request.Context(), spec)
	if err != nil {
		switch {
		case errors.Is(err, feedsvc.ErrInvalidSort), errors.Is(err, feedsvc.ErrInvalidDifficulty):
			log.Warnw("invalid feed query", "error", err)
			response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, err.Error(), nil)
		default:
			log.Errorw("feed query failed", "error", err)
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "failed to load prompts", nil)
		}
		return
	}

	payload := feedResponse{
		FeedPage: page,
		Viewer: viewerState{
			UpvotedIDs:    []string{},
			BookmarkedIDs: []string{},
		},
	}

	if viewerID, ok := extractUserID(c); ok {
		ids := make([]string, 0, len(page.Prompts))
		for i := range page.Prompts {
			ids = append(ids, page.Prompts[i].ID)
		}
		state, err := h.interactions.ResolveState(c.Request.Context(), viewerID, ids)
		if err != nil {
			log.Errorw("resolve viewer state failed", "error", err, "user_id", viewerID)
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "failed to load prompts", nil)
			return
		}
		payload.Viewer.UpvotedIDs = sortedKeys(state.UpvotedIDs)
		payload.Viewer.BookmarkedIDs = sortedKeys(state.BookmarkedIDs)
	}

	meta := response.MetaPagination{
		Page:         page.Page,
		PageSize:     len(page.Prompts),
		TotalItems:   int(page.Total),
		TotalPages:   page.TotalPages,
		CurrentCount: len(page.Prompts),
	}

	response.Success(c, http.StatusOK, payload, meta)
}

// queryInt 解析整型查询参数，缺失或非法时返回 0，由服务层统一钳制。
func queryInt(c *gin.Context, name string) int {
	raw := c.Query(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}

// sortedKeys 把集合转为稳定排序的切片，保证响应可比较。
func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key, ok := range set {
		if ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
