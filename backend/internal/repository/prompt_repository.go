package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	promptdomain "prompthub/backend/internal/domain/prompt"

	"gorm.io/gorm"
)

// Feed 排序方式常量，与查询参数一一对应。
const (
	SortTrending = "trending"
	SortNewest   = "newest"
	SortOldest   = "oldest"
	SortUpvotes  = "upvotes"
	SortSaved    = "saved"
	SortViews    = "views"
	SortCopies   = "copies"
)

// feedSelect 通过子查询为每条记录补充点赞/收藏/评论数，供排序与展示使用。
const feedSelect = "prompts.*, " +
	"(SELECT COUNT(*) FROM upvotes WHERE upvotes.prompt_id = prompts.id) AS upvote_count, " +
	"(SELECT COUNT(*) FROM bookmarks WHERE bookmarks.prompt_id = prompts.id) AS bookmark_count, " +
	"(SELECT COUNT(*) FROM comments WHERE comments.prompt_id = prompts.id) AS comment_count"

// feedOrderings 将排序键映射为 SQL 排序表达式，并统一以创建时间倒序打破平局。
var feedOrderings = map[string]string{
	SortTrending: "upvote_count DESC, created_at DESC",
	SortNewest:   "created_at DESC",
	SortOldest:   "created_at ASC",
	SortUpvotes:  "upvote_count DESC, created_at DESC",
	SortSaved:    "bookmark_count DESC, created_at DESC",
	SortViews:    "views DESC, created_at DESC",
	SortCopies:   "copy_count DESC, created_at DESC",
}

// ValidSort 判断排序键是否受支持。
func ValidSort(sort string) bool {
	_, ok := feedOrderings[sort]
	return ok
}

// FeedFilter 定义发现页查询的过滤与排序条件。
// Categories 与 AITools 内部为 OR 关系，不同字段之间为 AND 关系。
type FeedFilter struct {
	Categories []string
	AITools    []string
	Difficulty string
	Search     string
	Sort       string
	Limit      int
	Offset     int
}

// PromptRepository 负责提示词及其关联数据的持久化操作。
type PromptRepository struct {
	db *gorm.DB
}

// NewPromptRepository 创建 PromptRepository。
func NewPromptRepository(db *gorm.DB) *PromptRepository {
	return &PromptRepository{db: db}
}

// ListFeed 返回符合条件的已发布提示词与过滤后的总数。
// 总数在分页截断之前统计，供上层计算总页数。
func (r *PromptRepository) ListFeed(ctx context.Context, filter FeedFilter) ([]promptdomain.Prompt, int64, error) {
	query := r.feedQuery(ctx, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count feed prompts: %w", err)
	}

	ordering, ok := feedOrderings[filter.Sort]
	if !ok {
		ordering = feedOrderings[SortTrending]
	}

	query = query.Select(feedSelect).Order(ordering)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var records []promptdomain.Prompt
	if err := query.Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("list feed prompts: %w", err)
	}
	return records, total, nil
}

// feedQuery 组装公共的过滤条件，未发布的记录永远不可见。
func (r *PromptRepository) feedQuery(ctx context.Context, filter FeedFilter) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&promptdomain.Prompt{}).
		Where("published = ?", true)

	if len(filter.Categories) > 0 {
		query = query.Where("category IN ?", filter.Categories)
	}

	if len(filter.AITools) > 0 {
		// ai_tools 为 JSON 数组，按元素的带引号文本匹配即可覆盖 MySQL 与 SQLite。
		conds := make([]string, 0, len(filter.AITools))
		args := make([]any, 0, len(filter.AITools))
		for _, tool := range filter.AITools {
			conds = append(conds, "ai_tools LIKE ?")
			args = append(args, jsonElementPattern(tool))
		}
		query = query.Where("("+strings.Join(conds, " OR ")+")", args...)
	}

	if filter.Difficulty != "" {
		query = query.Where("difficulty = ?", filter.Difficulty)
	}

	if q := strings.TrimSpace(filter.Search); q != "" {
		keyword := "%" + strings.ToLower(q) + "%"
		query = query.Where(
			"(LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(content) LIKE ? OR tags LIKE ?)",
			keyword, keyword, keyword, jsonElementPattern(q),
		)
	}

	return query
}

// jsonElementPattern 生成匹配 JSON 数组元素的 LIKE 模式，依赖元素序列化后的双引号实现精确匹配。
func jsonElementPattern(value string) string {
	escaped := strings.NewReplacer(`%`, `\%`, `_`, `\_`, `"`, `\"`).Replace(value)
	return `%"` + escaped + `"%`
}

// FindByID 根据 ID 查询单条提示词，并附带聚合计数。
func (r *PromptRepository) FindByID(ctx context.Context, id string) (*promptdomain.Prompt, error) {
	var entity promptdomain.Prompt
	if err := r.db.WithContext(ctx).
		Model(&promptdomain.Prompt{}).
		Select(feedSelect).
		Where("prompts.id = ?", id).
		First(&entity).Error; err != nil {
		return nil, err
	}
	return &entity, nil
}

// Create 新增提示词记录。
func (r *PromptRepository) Create(ctx context.Context, entity *promptdomain.Prompt) error {
	if entity == nil {
		return errors.New("prompt entity is nil")
	}
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("create prompt: %w", err)
	}
	return nil
}

// Update 保存提示词的全部字段。
func (r *PromptRepository) Update(ctx context.Context, entity *promptdomain.Prompt) error {
	if entity == nil {
		return errors.New("prompt entity is nil")
	}
	if err := r.db.WithContext(ctx).
		Model(&promptdomain.Prompt{}).
		Where("id = ?", entity.ID).
		Select("title", "content", "description", "category", "ai_tools", "tags", "difficulty", "published").
		Updates(entity).Error; err != nil {
		return fmt.Errorf("update prompt: %w", err)
	}
	return nil
}

// Delete 删除提示词并级联清理点赞、收藏与评论。
func (r *PromptRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("prompt_id = ?", id).Delete(&promptdomain.Upvote{}).Error; err != nil {
			return fmt.Errorf("delete prompt upvotes: %w", err)
		}
		if err := tx.Where("prompt_id = ?", id).Delete(&promptdomain.Bookmark{}).Error; err != nil {
			return fmt.Errorf("delete prompt bookmarks: %w", err)
		}
		if err := tx.Where("prompt_id = ?", id).Delete(&promptdomain.Comment{}).Error; err != nil {
			return fmt.Errorf("delete prompt comments: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&promptdomain.Prompt{})
		if res.Error != nil {
			return fmt.Errorf("delete prompt: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// IncrementViews 浏览一次时原子自增计数，目标不存在时返回 ErrRecordNotFound。
func (r *PromptRepository) IncrementViews(ctx context.Context, id string) error {
	return r.incrementColumn(ctx, id, "views")
}

// IncrementCopies 复制一次时原子自增计数，目标不存在时返回 ErrRecordNotFound。
func (r *PromptRepository) IncrementCopies(ctx context.Context, id string) error {
	return r.incrementColumn(ctx, id, "copy_count")
}

func (r *PromptRepository) incrementColumn(ctx context.Context, id string, column string) error {
	res := r.db.WithContext(ctx).
		Model(&promptdomain.Prompt{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + 1"))
	if res.Error != nil {
		return fmt.Errorf("increment %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountByCategory 统计各分类下已发布提示词的数量。
func (r *PromptRepository) CountByCategory(ctx context.Context) ([]promptdomain.CategoryCount, error) {
	var counts []promptdomain.CategoryCount
	if err := r.db.WithContext(ctx).
		Model(&promptdomain.Prompt{}).
		Select("category, COUNT(*) AS count").
		Where("published = ?", true).
		Group("category").
		Find(&counts).Error; err != nil {
		return nil, fmt.Errorf("count prompts by category: %w", err)
	}
	return counts, nil
}

// ListByAuthor 返回指定作者的提示词，包含未发布的草稿。
func (r *PromptRepository) ListByAuthor(ctx context.Context, authorID string) ([]promptdomain.Prompt, error) {
	var records []promptdomain.Prompt
	if err := r.db.WithContext(ctx).
		Model(&promptdomain.Prompt{}).
		Select(feedSelect).
		Where("author_id = ?", authorID).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list prompts by author: %w", err)
	}
	return records, nil
}

// ListBookmarkedBy 返回用户收藏的全部已发布提示词，按收藏时间倒序。
func (r *PromptRepository) ListBookmarkedBy(ctx context.Context, userID string) ([]promptdomain.Prompt, error) {
	var records []promptdomain.Prompt
	if err := r.db.WithContext(ctx).
		Model(&promptdomain.Prompt{}).
		Select(feedSelect).
		Joins("JOIN bookmarks ON bookmarks.prompt_id = prompts.id").
		Where("bookmarks.user_id = ? AND prompts.published = ?", userID, true).
		Order("bookmarks.created_at DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list bookmarked prompts: %w", err)
	}
	return records, nil
}

// AuthorStats 汇总作者的创作数据。
type AuthorStats struct {
	PromptCount   int64 `json:"promptCount"`
	UpvoteCount   int64 `json:"upvoteCount"`
	BookmarkCount int64 `json:"bookmarkCount"`
	TotalViews    int64 `json:"totalViews"`
	TotalCopies   int64 `json:"totalCopies"`
}

// StatsByAuthor 统计作者的提示词数量、获赞/被收藏总数以及浏览与复制总量。
func (r *PromptRepository) StatsByAuthor(ctx context.Context, authorID string) (AuthorStats, error) {
	var stats AuthorStats

	base := r.db.WithContext(ctx).Model(&promptdomain.Prompt{}).Where("author_id = ?", authorID)
	if err := base.Count(&stats.PromptCount).Error; err != nil {
		return AuthorStats{}, fmt.Errorf("count author prompts: %w", err)
	}

	type sums struct {
		Views  int64
		Copies int64
	}
	var totals sums
	if err := r.db.WithContext(ctx).
		Model(&promptdomain.Prompt{}).
		Select("COALESCE(SUM(views), 0) AS views, COALESCE(SUM(copy_count), 0) AS copies").
		Where("author_id = ?", authorID).
		Scan(&totals).Error; err != nil {
		return AuthorStats{}, fmt.Errorf("sum author counters: %w", err)
	}
	stats.TotalViews = totals.Views
	stats.TotalCopies = totals.Copies

	if err := r.db.WithContext(ctx).
		Model(&promptdomain.Upvote{}).
		Joins("JOIN prompts ON prompts.id = upvotes.prompt_id").
		Where("prompts.author_id = ?", authorID).
		Count(&stats.UpvoteCount).Error; err != nil {
		return AuthorStats{}, fmt.Errorf("count author upvotes: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Model(&promptdomain.Bookmark{}).
		Joins("JOIN prompts ON prompts.id = bookmarks.prompt_id").
		Where("prompts.author_id = ?", authorID).
		Count(&stats.BookmarkCount).Error; err != nil {
		return AuthorStats{}, fmt.Errorf("count author bookmarks: %w", err)
	}

	return stats, nil
}
