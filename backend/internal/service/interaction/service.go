package interaction

import (
	"context"
	"errors"
	"fmt"

	"prompthub/backend/internal/infra/cache"
	appLogger "prompthub/backend/internal/infra/logger"
	"prompthub/backend/internal/infra/metrics"
	"prompthub/backend/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrPromptNotFound = errors.New("prompt not found")

// State 描述某个用户在一批提示词上的点赞与收藏状态。
type State struct {
	UpvotedIDs    map[string]bool
	BookmarkedIDs map[string]bool
}

// ToggleResult 描述一次点赞/收藏切换后的最新状态。
// Count 仅对点赞有意义，收藏切换时恒为 0。
type ToggleResult struct {
	Active bool  `json:"active"`
	Count  int64 `json:"count"`
}

// Service 聚合点赞、收藏与浏览/复制计数的互动逻辑。
// 任何写操作都会整体失效发现页缓存，保证聚合计数的排序及时生效。
type Service struct {
	prompts   *repository.PromptRepository
	upvotes   *repository.UpvoteRepository
	bookmarks *repository.BookmarkRepository
	feedCache cache.FeedCache
	logger    *zap.SugaredLogger
}

// NewService 创建互动服务。
func NewService(
	prompts *repository.PromptRepository,
	upvotes *repository.UpvoteRepository,
	bookmarks *repository.BookmarkRepository,
	feedCache cache.FeedCache,
) *Service {
	return &Service{
		prompts:   prompts,
		upvotes:   upvotes,
		bookmarks: bookmarks,
		feedCache: feedCache,
		logger:    appLogger.S().With("component", "interaction.service"),
	}
}

// ResolveState 返回用户对给定提示词集合的点赞与收藏状态。
// 匿名用户或空集合直接返回空状态，不访问存储层。
func (s *Service) ResolveState(ctx context.Context, viewerID string, promptIDs []string) (State, error) {
	state := State{
		UpvotedIDs:    make(map[string]bool),
		BookmarkedIDs: make(map[string]bool),
	}
	if viewerID == "" || len(promptIDs) == 0 {
		return state, nil
	}

	upvoted, err := s.upvotes.ListUserUpvotedIDs(ctx, viewerID, promptIDs)
	if err != nil {
		return State{}, fmt.Errorf("resolve upvoted ids: %w", err)
	}
	bookmarked, err := s.bookmarks.ListUserBookmarkedIDs(ctx, viewerID, promptIDs)
	if err != nil {
		return State{}, fmt.Errorf("resolve bookmarked ids: %w", err)
	}

	state.UpvotedIDs = upvoted
	state.BookmarkedIDs = bookmarked
	return state, nil
}

// ToggleUpvote 切换用户对提示词的点赞状态，返回最新状态与点赞总数。
// 插入遇到主键冲突说明已点赞，转而删除记录；总数在切换之后重新统计。
func (s *Service) ToggleUpvote(ctx context.Context, userID, promptID string) (ToggleResult, error) {
	log := s.scope("toggle_upvote").With("user_id", userID, "prompt_id", promptID)

	if err := s.ensurePromptExists(ctx, promptID); err != nil {
		return ToggleResult{}, err
	}

	inserted, err := s.upvotes.Add(ctx, userID, promptID)
	if err != nil {
		log.Errorw("add upvote failed", "error", err)
		metrics.RecordInteractionMutation("upvote", "error")
		return ToggleResult{}, fmt.Errorf("add upvote: %w", err)
	}

	active := true
	if !inserted {
		if _, err := s.upvotes.Remove(ctx, userID, promptID); err != nil {
			log.Errorw("remove upvote failed", "error", err)
			metrics.RecordInteractionMutation("upvote", "error")
			return ToggleResult{}, fmt.Errorf("remove upvote: %w", err)
		}
		active = false
	}

	count, err := s.upvotes.CountByPrompt(ctx, promptID)
	if err != nil {
		log.Errorw("count upvotes failed", "error", err)
		return ToggleResult{}, fmt.Errorf("count upvotes: %w", err)
	}

	s.invalidateFeedCache(ctx, log)

	if active {
		metrics.RecordInteractionMutation("upvote", "added")
	} else {
		metrics.RecordInteractionMutation("upvote", "removed")
	}

	log.Infow("upvote toggled", "active", active, "count", count)
	return ToggleResult{Active: active, Count: count}, nil
}

// ToggleBookmark 切换用户对提示词的收藏状态。
func (s *Service) ToggleBookmark(ctx context.Context, userID, promptID string) (ToggleResult, error) {
	log := s.scope("toggle_bookmark").With("user_id", userID, "prompt_id", promptID)

	if err := s.ensurePromptExists(ctx, promptID); err != nil {
		return ToggleResult{}, err
	}

	inserted, err := s.bookmarks.Add(ctx, userID, promptID)
	if err != nil {
		log.Errorw("add bookmark failed", "error", err)
		metrics.RecordInteractionMutation("bookmark", "error")
		return ToggleResult{}, fmt.Errorf("add bookmark: %w", err)
	}

	active := true
	if !inserted {
		if _, err := s.bookmarks.Remove(ctx, userID, promptID); err != nil {
			log.Errorw("remove bookmark failed", "error", err)
			metrics.RecordInteractionMutation("bookmark", "error")
			return ToggleResult{}, fmt.Errorf("remove bookmark: %w", err)
		}
		active = false
	}

	s.invalidateFeedCache(ctx, log)

	if active {
		metrics.RecordInteractionMutation("bookmark", "added")
	} else {
		metrics.RecordInteractionMutation("bookmark", "removed")
	}

	log.Infow("bookmark toggled", "active", active)
	return ToggleResult{Active: active}, nil
}

// IncrementView 记录一次浏览，匿名用户同样计数。
func (s *Service) IncrementView(ctx context.Context, promptID string) error {
	log := s.scope("increment_view").With("prompt_id", promptID)

	if err := s.prompts.IncrementViews(ctx, promptID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPromptNotFound
		}
		log.Errorw("increment views failed", "error", err)
		return fmt.Errorf("increment views: %w", err)
	}

	s.invalidateFeedCache(ctx, log)
	metrics.RecordCounterIncrement("view")
	return nil
}

// IncrementCopy 记录一次复制，匿名用户同样计数。
func (s *Service) IncrementCopy(ctx context.Context, promptID string) error {
	log := s.scope("increment_copy").With("prompt_id", promptID)

	if err := s.prompts.IncrementCopies(ctx, promptID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPromptNotFound
		}
		log.Errorw("increment copies failed", "error", err)
		return fmt.Errorf("increment copies: %w", err)
	}

	s.invalidateFeedCache(ctx, log)
	metrics.RecordCounterIncrement("copy")
	return nil
}

// ensurePromptExists 在切换点赞/收藏前确认目标存在且可见。
func (s *Service) ensurePromptExists(ctx context.Context, promptID string) error {
	if _, err := s.prompts.FindByID(ctx, promptID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPromptNotFound
		}
		return fmt.Errorf("find prompt: %w", err)
	}
	return nil
}

// invalidateFeedCache 整体失效发现页缓存；失效失败只记日志，不阻断写操作。
func (s *Service) invalidateFeedCache(ctx context.Context, log *zap.SugaredLogger) {
	if s.feedCache == nil {
		return
	}
	if err := s.feedCache.InvalidateAll(ctx); err != nil {
		log.Warnw("invalidate feed cache failed", "error", err)
	}
}

func (s *Service) scope(operation string) *zap.SugaredLogger {
	if s.logger == nil {
		s.logger = appLogger.S().With("component", "interaction.service")
	}
	return s.logger.With("operation", operation)
}
