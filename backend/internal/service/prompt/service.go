package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	promptdomain "prompthub/backend/internal/domain/prompt"
	"prompthub/backend/internal/infra/cache"
	appLogger "prompthub/backend/internal/infra/logger"
	"prompthub/backend/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrPromptNotFound    = errors.New("prompt not found")
	ErrNotOwner          = errors.New("prompt does not belong to current user")
	ErrTitleRequired     = errors.New("prompt title is required")
	ErrContentRequired   = errors.New("prompt content is required")
	ErrInvalidCategory   = errors.New("unsupported prompt category")
	ErrInvalidDifficulty = errors.New("unsupported prompt difficulty")
)

// Service 负责提示词的增删改查以及个人中心相关的查询。
// 所有写操作完成后都会整体失效发现页缓存。
type Service struct {
	prompts   *repository.PromptRepository
	upvotes   *repository.UpvoteRepository
	bookmarks *repository.BookmarkRepository
	comments  *repository.CommentRepository
	users     *repository.UserRepository
	feedCache cache.FeedCache
	logger    *zap.SugaredLogger
}

// NewService 创建提示词服务。
func NewService(
	prompts *repository.PromptRepository,
	upvotes *repository.UpvoteRepository,
	bookmarks *repository.BookmarkRepository,
	comments *repository.CommentRepository,
	users *repository.UserRepository,
	feedCache cache.FeedCache,
) *Service {
	return &Service{
		prompts:   prompts,
		upvotes:   upvotes,
		bookmarks: bookmarks,
		comments:  comments,
		users:     users,
		feedCache: feedCache,
		logger:    appLogger.S().With("component", "prompt.service"),
	}
}

// CreateParams 封装创建提示词的输入。
type CreateParams struct {
	Title       string
	Content     string
	Description string
	Category    string
	AITools     []string
	Tags        []string
	Difficulty  string
	Published   *bool
}

// UpdateParams 封装更新提示词的输入，nil 字段表示保持原值。
type UpdateParams struct {
	Title       *string
	Content     *string
	Description *string
	Category    *string
	AITools     []string
	Tags        []string
	Difficulty  *string
	Published   *bool
}

// Detail 是详情页的完整载荷：提示词本体、评论以及当前用户的互动状态。
type Detail struct {
	Prompt     *promptdomain.Prompt   `json:"prompt"`
	Comments   []promptdomain.Comment `json:"comments"`
	Upvoted    bool                   `json:"upvoted"`
	Bookmarked bool                   `json:"bookmarked"`
}

// Create 校验输入并写入一条新的提示词，默认难度 BEGINNER、默认公开。
func (s *Service) Create(ctx context.Context, authorID string, params CreateParams) (*promptdomain.Prompt, error) {
	log := s.scope("create").With("author_id", authorID)

	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	content := strings.TrimSpace(params.Content)
	if content == "" {
		return nil, ErrContentRequired
	}
	if !promptdomain.ValidCategory(params.Category) {
		return nil, ErrInvalidCategory
	}

	difficulty := strings.TrimSpace(params.Difficulty)
	if difficulty == "" {
		difficulty = promptdomain.DifficultyBeginner
	}
	if !promptdomain.ValidDifficulty(difficulty) {
		return nil, ErrInvalidDifficulty
	}

	published := true
	if params.Published != nil {
		published = *params.Published
	}

	aiTools, err := marshalStringList(params.AITools)
	if err != nil {
		return nil, fmt.Errorf("encode ai tools: %w", err)
	}
	tags, err := marshalStringList(params.Tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}

	entity := &promptdomain.Prompt{
		ID:          uuid.NewString(),
		Title:       title,
		Content:     content,
		Description: strings.TrimSpace(params.Description),
		Category:    params.Category,
		AITools:     aiTools,
		Tags:        tags,
		Difficulty:  difficulty,
		Published:   published,
		AuthorID:    authorID,
	}

	if err := s.prompts.Create(ctx, entity); err != nil {
		log.Errorw("create prompt failed", "error", err)
		return nil, fmt.Errorf("create prompt: %w", err)
	}

	s.invalidateFeedCache(ctx, log)
	log.With("prompt_id", entity.ID).Infow("prompt created")

	return s.loadWithAuthor(ctx, entity.ID)
}

// Update 做部分更新，仅作者本人可以修改。
func (s *Service) Update(ctx context.Context, userID, promptID string, params UpdateParams) (*promptdomain.Prompt, error) {
	log := s.scope("update").With("user_id", userID, "prompt_id", promptID)

	entity, err := s.findOwned(ctx, userID, promptID)
	if err != nil {
		return nil, err
	}

	if params.Title != nil {
		title := strings.TrimSpace(*params.Title)
		if title == "" {
			return nil, ErrTitleRequired
		}
		entity.Title = title
	}
	if params.Content != nil {
		content := strings.TrimSpace(*params.Content)
		if content == "" {
			return nil, ErrContentRequired
		}
		entity.Content = content
	}
	if params.Description != nil {
		entity.Description = strings.TrimSpace(*params.Description)
	}
	if params.Category != nil {
		if !promptdomain.ValidCategory(*params.Category) {
			return nil, ErrInvalidCategory
		}
		entity.Category = *params.Category
	}
	if params.Difficulty != nil {
		if !promptdomain.ValidDifficulty(*params.Difficulty) {
			return nil, ErrInvalidDifficulty
		}
		entity.Difficulty = *params.Difficulty
	}
	if params.Published != nil {
		entity.Published = *params.Published
	}
	if params.AITools != nil {
		aiTools, err := marshalStringList(params.AITools)
		if err != nil {
			return nil, fmt.Errorf("encode ai tools: %w", err)
		}
		entity.AITools = aiTools
	}
	if params.Tags != nil {
		tags, err := marshalStringList(params.Tags)
		if err != nil {
			return nil, fmt.Errorf("encode tags: %w", err)
		}
		entity.Tags = tags
	}

	if err := s.prompts.Update(ctx, entity); err != nil {
		log.Errorw("update prompt failed", "error", err)
		return nil, fmt.Errorf("update prompt: %w", err)
	}

	s.invalidateFeedCache(ctx, log)
	log.Infow("prompt updated")

	return s.loadWithAuthor(ctx, promptID)
}

// Delete 删除提示词及其关联数据，仅作者本人可以执行。
func (s *Service) Delete(ctx context.Context, userID, promptID string) error {
	log := s.scope("delete").With("user_id", userID, "prompt_id", promptID)

	if _, err := s.findOwned(ctx, userID, promptID); err != nil {
		return err
	}

	if err := s.prompts.Delete(ctx, promptID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPromptNotFound
		}
		log.Errorw("delete prompt failed", "error", err)
		return fmt.Errorf("delete prompt: %w", err)
	}

	s.invalidateFeedCache(ctx, log)
	log.Infow("prompt deleted")
	return nil
}

// GetDetail 返回详情页数据：先原子自增浏览数，再加载提示词、评论与互动状态。
func (s *Service) GetDetail(ctx context.Context, viewerID, promptID string) (*Detail, error) {
	log := s.scope("detail").With("prompt_id", promptID)

	if err := s.prompts.IncrementViews(ctx, promptID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromptNotFound
		}
		log.Errorw("increment views failed", "error", err)
		return nil, fmt.Errorf("increment views: %w", err)
	}

	entity, err := s.loadWithAuthor(ctx, promptID)
	if err != nil {
		return nil, err
	}

	comments, err := s.listCommentsWithAuthors(ctx, promptID)
	if err != nil {
		return nil, err
	}

	detail := &Detail{Prompt: entity, Comments: comments}

	if viewerID != "" {
		upvoted, err := s.upvotes.Exists(ctx, viewerID, promptID)
		if err != nil {
			return nil, fmt.Errorf("check upvote: %w", err)
		}
		bookmarked, err := s.bookmarks.Exists(ctx, viewerID, promptID)
		if err != nil {
			return nil, fmt.Errorf("check bookmark: %w", err)
		}
		detail.Upvoted = upvoted
		detail.Bookmarked = bookmarked
	}

	s.invalidateFeedCache(ctx, log)
	return detail, nil
}

// ListByAuthor 返回指定作者的全部提示词，包含草稿。
func (s *Service) ListByAuthor(ctx context.Context, authorID string) ([]promptdomain.Prompt, error) {
	records, err := s.prompts.ListByAuthor(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if err := s.fillAuthors(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

// ListBookmarked 返回用户收藏的已发布提示词。
func (s *Service) ListBookmarked(ctx context.Context, userID string) ([]promptdomain.Prompt, error) {
	records, err := s.prompts.ListBookmarkedBy(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.fillAuthors(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

// StatsByAuthor 汇总作者的创作数据。
func (s *Service) StatsByAuthor(ctx context.Context, authorID string) (repository.AuthorStats, error) {
	return s.prompts.StatsByAuthor(ctx, authorID)
}

// Categories 返回固定分类列表及各分类下已发布提示词数量，空分类计为 0。
func (s *Service) Categories(ctx context.Context) ([]promptdomain.CategoryCount, error) {
	counts, err := s.prompts.CountByCategory(ctx)
	if err != nil {
		return nil, err
	}

	byCategory := make(map[string]int64, len(counts))
	for _, c := range counts {
		byCategory[c.Category] = c.Count
	}

	result := make([]promptdomain.CategoryCount, 0, len(promptdomain.Categories()))
	for _, category := range promptdomain.Categories() {
		result = append(result, promptdomain.CategoryCount{
			Category: category,
			Count:    byCategory[category],
		})
	}
	return result, nil
}

// findOwned 加载提示词并确认归属，未找到与越权分别返回明确错误。
func (s *Service) findOwned(ctx context.Context, userID, promptID string) (*promptdomain.Prompt, error) {
	entity, err := s.prompts.FindByID(ctx, promptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromptNotFound
		}
		return nil, fmt.Errorf("find prompt: %w", err)
	}
	if entity.AuthorID != userID {
		return nil, ErrNotOwner
	}
	return entity, nil
}

// loadWithAuthor 加载单条提示词并填充作者摘要。
func (s *Service) loadWithAuthor(ctx context.Context, promptID string) (*promptdomain.Prompt, error) {
	entity, err := s.prompts.FindByID(ctx, promptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromptNotFound
		}
		return nil, fmt.Errorf("find prompt: %w", err)
	}

	briefs, err := s.users.FindByIDs(ctx, []string{entity.AuthorID})
	if err != nil {
		return nil, fmt.Errorf("load author: %w", err)
	}
	if brief, ok := briefs[entity.AuthorID]; ok {
		entity.Author = &brief
	}
	return entity, nil
}

// listCommentsWithAuthors 加载评论并批量填充作者摘要。
func (s *Service) listCommentsWithAuthors(ctx context.Context, promptID string) ([]promptdomain.Comment, error) {
	comments, err := s.comments.ListByPrompt(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return comments, nil
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
		return nil, fmt.Errorf("load comment authors: %w", err)
	}
	for i := range comments {
		if brief, ok := briefs[comments[i].UserID]; ok {
			b := brief
			comments[i].Author = &b
		}
	}
	return comments, nil
}

// fillAuthors 批量填充作者摘要。
func (s *Service) fillAuthors(ctx context.Context, records []promptdomain.Prompt) error {
	if len(records) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(records))
	ids := make([]string, 0, len(records))
	for i := range records {
		id := records[i].AuthorID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	briefs, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load authors: %w", err)
	}
	for i := range records {
		if brief, ok := briefs[records[i].AuthorID]; ok {
			b := brief
			records[i].Author = &b
		}
	}
	return nil
}

// marshalStringList 把字符串切片序列化为 JSON 数组，nil 视为空数组。
func marshalStringList(values []string) (datatypes.JSON, error) {
	if values == nil {
		values = []string{}
	}
	payload, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(payload), nil
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
		s.logger = appLogger.S().With("component", "prompt.service")
	}
	return s.logger.With("operation", operation)
}
