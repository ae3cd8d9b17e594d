package repository

import (
	"context"
	"fmt"

	promptdomain "prompthub/backend/internal/domain/prompt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BookmarkRepository 负责收藏关系的持久化。
type BookmarkRepository struct {
	db *gorm.DB
}

// NewBookmarkRepository 构造收藏仓储。
func NewBookmarkRepository(db *gorm.DB) *BookmarkRepository {
	return &BookmarkRepository{db: db}
}

// Add 新增收藏关系，复合主键冲突时忽略写入。
func (r *BookmarkRepository) Add(ctx context.Context, userID, promptID string) (bool, error) {
	bookmark := promptdomain.Bookmark{
		UserID:   userID,
		PromptID: promptID,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&bookmark)
	if result.Error != nil {
		return false, fmt.Errorf("create bookmark: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Remove 取消收藏关系，记录不存在时视为无操作。
func (r *BookmarkRepository) Remove(ctx context.Context, userID, promptID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND prompt_id = ?", userID, promptID).
		Delete(&promptdomain.Bookmark{})
	if result.Error != nil {
		return false, fmt.Errorf("delete bookmark: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Exists 判断用户是否已收藏指定提示词。
func (r *BookmarkRepository) Exists(ctx context.Context, userID, promptID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&promptdomain.Bookmark{}).
		Where("user_id = ? AND prompt_id = ?", userID, promptID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check bookmark: %w", err)
	}
	return count > 0, nil
}

// ListUserBookmarkedIDs 返回用户在给定集合内已收藏的提示词编号。
// 匿名用户或空集合直接返回空结果，不触发任何查询。
func (r *BookmarkRepository) ListUserBookmarkedIDs(ctx context.Context, userID string, promptIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(promptIDs))
	if userID == "" || len(promptIDs) == 0 {
		return result, nil
	}
	var bookmarkedIDs []string
	if err := r.db.WithContext(ctx).
		Model(&promptdomain.Bookmark{}).
		Where("user_id = ? AND prompt_id IN ?", userID, promptIDs).
		Pluck("prompt_id", &bookmarkedIDs).Error; err != nil {
		return nil, fmt.Errorf("list bookmarked prompt ids: %w", err)
	}
	for _, id := range bookmarkedIDs {
		result[id] = true
	}
	return result, nil
}
