package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "prompthub/backend/internal/domain/user"
	"prompthub/backend/internal/repository"

	"gorm.io/gorm"
)

// ErrUserNotFound 表示请求的用户不存在。
var ErrUserNotFound = errors.New("user not found")

// Service 负责用户资料的查询与更新。
type Service struct {
	users *repository.UserRepository
}

// NewService 构造用户服务层实例。
func NewService(users *repository.UserRepository) *Service {
	return &Service{users: users}
}

// UpdateProfileParams 封装可修改的资料字段，nil 表示保持原值。
type UpdateProfileParams struct {
	Name  *string
	Image *string
	Bio   *string
}

// GetProfile 返回指定用户的资料。
func (s *Service) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// UpdateProfile 更新资料字段并返回最新用户信息。
func (s *Service) UpdateProfile(ctx context.Context, userID string, params UpdateProfileParams) (*domain.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if params.Name != nil {
		if name := strings.TrimSpace(*params.Name); name != "" {
			u.Name = name
		}
	}
	if params.Image != nil {
		u.Image = strings.TrimSpace(*params.Image)
	}
	if params.Bio != nil {
		u.Bio = strings.TrimSpace(*params.Bio)
	}

	if err := s.users.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}
