package comment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	promptdomain "prompthub/backend/internal/domain/prompt"
	"prompthub/backend/internal/infra/cache"
	appLogger "prompthub/backend/internal/infra/logger"
	"prompthub/backend/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrPromptNotFound  = errors.New("prompt not found")
	ErrCommentNotFound = errors.New("comment not found")
	ErrNotOwner        = errors.New("comment does not belong to current user")
	ErrContentRequired = errors.New("comment content is required")
)

// Service 负责评论的读写。评论数参与发现页排序，写操作会失效缓存。
type Service struct {
	comments  *repository.CommentRepository
	prompts   *repository.PromptRepository
	users     *repository.UserRepository
	feedCache cache.FeedCache
	logger    *zap.SugaredLogger
}

// NewService 创建评论服务。
func NewService(
	comments *repository.CommentRepository,
	prompts *repository.PromptRepository,
	users *repository.UserRepository,
	feedCache cache.FeedCache,
) *Service {
	return &Service{
		comments:  comments,
		prompts:   prompts,
		users:     users,
		feedCache: feedCache,
		logger:    appLogger.S().With("component", "comment.service"),
	}
}

// ListByPrompt 返回提示词下的评论（创建时间倒序），并附带作者摘要。
func (s *Service) ListByPrompt(ctx context.Context, promptID string) ([]promptdomain.Comment, error) {
	if _, err := s.prompts.FindByID(ctx, promptID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromptNotFound
		}
		return nil, fmt.Errorf("find prompt: %w", err)
	}

	comments, err := s.comments.ListByPrompt(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if err := s.fillAuthors(ctx, comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// Create 新增评论，内容不可为空。
func (s *Service) Create(ctx context.Context, userID, promptID, content string) (*promptdomain.Comment, error) {
	log := s.scope("create").With("user_id", userID, "prompt_id", promptID)

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, ErrContentRequired
	}

	if _, err := s.prompts.FindByID(ctx, promptID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromptNotFound
		}
		return nil, fmt.Errorf("find prompt: %w", err)
	}

	entity := &promptdomain.Comment{
		ID:       uuid.NewString(),
		Content:  trimmed,
		UserID:   userID,
		PromptID: promptID,
	}

	if err := s.comments.Create(ctx, entity); err != nil {
		log.Errorw("create comment failed", "error", err)
		return nil, fmt.Errorf("create comment: %w", err)
	}

	s.invalidateFeedCache(ctx, log)

	if briefs, err := s.users.FindByIDs(ctx, []string{userID}); err == nil {
		if brief, ok := briefs[userID]; ok {
			entity.Author = &brief
		}
	}

	log.With("comment_id", entity.ID).Infow("comment created")
	return entity, nil
}

// Delete 删除评论，仅评论作者本人可以执行。
func (s *Service) Delete(ctx context.Context, userID, commentID string) error {
	log := s.scope("delete").With("user_id", userID, "comment_id", commentID)

	entity, err := s.comments.FindByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCommentNotFound
		}
		return fmt.Errorf("find comment: %w", err)
	}

	if entity.UserID != userID {
		return ErrNotOwner
	}

	if err := s.comments.Delete(ctx, commentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCommentNotFound
		}
		log.Errorw("delete comment failed", "error", err)
		return fmt.Errorf("delete comment: %w", err)
	}

	s.invalidateFeedCache(ctx, log)
	log.Infow("comment deleted")
	return nil
}

// fillAuthors 批量填充评论作者摘要。
func (s *Service) fillAuthors(ctx context.Context, comments []promptdomain.Comment) error {
	if len(comments) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(comments))
	ids := make([]string, 0, len(comments))
	for i := range comments {
		id := comments[i].UserID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	briefs, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load comment authors: %w", err)
	}
	for i := range comments {
		if brief, ok := briefs[comments[i].UserID]; ok {
			b := brief
			comments[i].Author = &b
		}
	}
	return nil
}

// invalidateFeedCache 整体失效发现页缓存；失败只记日志。
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
		s.logger = appLogger.S().With("component", "comment.service")
	}
	return s.logger.With("operation", operation)
}
