package repository

import (
	"context"
	"fmt"

	promptdomain "prompthub/backend/internal/domain/prompt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpvoteRepository 负责点赞关系的持久化。
type UpvoteRepository struct {
	db *gorm.DB
}

// NewUpvoteRepository 构造点赞仓储。
func NewUpvoteRepository(db *gorm.DB) *UpvoteRepository {
	return &UpvoteRepository{db: db}
}

// Add 新增点赞关系，复合主键冲突时忽略写入。
// 返回值表示本次是否真正插入了新记录，并发重复提交时只有一方为 true。
func (r *UpvoteRepository) Add(ctx context.Context, userID, promptID string) (bool, error) {
	upvote := promptdomain.Upvote{
		UserID:   userID,
		PromptID: promptID,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&upvote)
	if result.Error != nil {
		return false, fmt.Errorf("create upvote: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Remove 取消点赞关系，记录不存在时视为无操作。
func (r *UpvoteRepository) Remove(ctx context.Context, userID, promptID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND prompt_id = ?", userID, promptID).
		Delete(&promptdomain.Upvote{})
	if result.Error != nil {
		return false, fmt.Errorf("delete upvote: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Exists 判断用户是否已点赞指定提示词。
func (r *UpvoteRepository) Exists(ctx context.Context, userID, promptID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&promptdomain.Upvote{}).
		Where("user_id = ? AND prompt_id = ?", userID, promptID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check upvote: %w", err)
	}
	return count > 0, nil
}

// CountByPrompt 统计提示词当前的点赞总数。
func (r *UpvoteRepository) CountByPrompt(ctx context.Context, promptID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&promptdomain.Upvote{}).
		Where("prompt_id = ?", promptID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count upvotes: %w", err)
	}
	return count, nil
}

// ListUserUpvotedIDs 返回用户在给定集合内已点赞的提示词编号。
// 匿名用户或空集合直接返回空结果，不触发任何查询。
func (r *UpvoteRepository) ListUserUpvotedIDs(ctx context.Context, userID string, promptIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(promptIDs))
	if userID == "" || len(promptIDs) == 0 {
		return result, nil
	}
	var upvotedIDs []string
	if err := r.db.WithContext(ctx).
		Model(&promptdomain.Upvote{}).
		Where("user_id = ? AND prompt_id IN ?", userID, promptIDs).
		Pluck("prompt_id", &upvotedIDs).Error; err != nil {
		return nil, fmt.Errorf("list upvoted prompt ids: %w", err)
	}
	for _, id := range upvotedIDs {
		result[id] = true
	}
	return result, nil
}
