package repository

import (
	"context"
	"errors"
	"fmt"

	promptdomain "prompthub/backend/internal/domain/prompt"

	"gorm.io/gorm"
)

// CommentRepository 负责评论的持久化。
type CommentRepository struct {
	db *gorm.DB
}

// NewCommentRepository 构造评论仓储。
func NewCommentRepository(db *gorm.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// Create 新增评论。
func (r *CommentRepository) Create(ctx context.Context, entity *promptdomain.Comment) error {
	if entity == nil {
		return errors.New("comment entity is nil")
	}
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

// FindByID 根据 ID 查询评论。
func (r *CommentRepository) FindByID(ctx context.Context, id string) (*promptdomain.Comment, error) {
	var entity promptdomain.Comment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, err
	}
	return &entity, nil
}

// ListByPrompt 返回提示词下的评论，按创建时间倒序。
func (r *CommentRepository) ListByPrompt(ctx context.Context, promptID string) ([]promptdomain.Comment, error) {
	var comments []promptdomain.Comment
	if err := r.db.WithContext(ctx).
		Where("prompt_id = ?", promptID).
		Order("created_at DESC").
		Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// Delete 删除评论，记录不存在时返回 ErrRecordNotFound。
func (r *CommentRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&promptdomain.Comment{})
	if res.Error != nil {
		return fmt.Errorf("delete comment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountByPrompt 统计提示词下的评论数量。
func (r *CommentRepository) CountByPrompt(ctx context.Context, promptID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&promptdomain.Comment{}).
		Where("prompt_id = ?", promptID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return count, nil
}
