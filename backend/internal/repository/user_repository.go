package repository

import (
	"context"
	"time"

	"prompthub/backend/internal/domain/user"

	"gorm.io/gorm"
)

// UserRepository 封装用户相关的数据访问方法，基于 GORM 实现。
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储实例，接收共享的 *gorm.DB。
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create 写入用户记录。
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

// FindByID 根据主键查找用户。
func (r *UserRepository) FindByID(ctx context.Context, id string) (*user.User, error) {
	var u user.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FindByEmail 通过邮箱查找用户，若不存在返回 gorm.ErrRecordNotFound。
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	var u user.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FindByIDs 批量查询用户并按主键建立映射，用于填充作者摘要。
func (r *UserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]user.Brief, error) {
	result := make(map[string]user.Brief, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var users []user.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for i := range users {
		result[users[i].ID] = users[i].Brief()
	}
	return result, nil
}

// Update 按主键更新用户信息。
func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	return r.db.WithContext(ctx).Save(u).Error
}

// TouchLastLogin 记录最近一次登录时间。
func (r *UserRepository) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&user.User{}).
		Where("id = ?", userID).
		Update("last_login_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
