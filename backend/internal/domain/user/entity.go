package user

import "time"

// 角色常量，普通用户与管理员。
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User 表示系统内持久化的用户实体。
type User struct {
	ID              string     `gorm:"size:36;primaryKey" json:"id"`      // UUID 主键
	Name            string     `gorm:"size:64;not null" json:"name"`      // 展示名称
	Email           string     `gorm:"size:255;uniqueIndex" json:"email"` // 登录邮箱（唯一）
	Image           string     `gorm:"size:512" json:"image"`             // 头像地址
	Bio             string     `gorm:"size:500" json:"bio"`               // 个人简介
	PasswordHash    string     `gorm:"size:255" json:"-"`                 // Bcrypt 密码哈希
	Role            string     `gorm:"size:16;default:'USER'" json:"role"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"` // 邮箱通过验证的时间，可为空
	LastLoginAt     *time.Time `json:"last_login_at"`     // 上次登录时间，可为空
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsAdmin 判断用户是否具备管理员角色。
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Brief 返回对外展示的作者摘要信息。
func (u *User) Brief() Brief {
	if u == nil {
		return Brief{}
	}
	return Brief{ID: u.ID, Name: u.Name, Image: u.Image}
}

// Brief 仅用于在列表与详情中展示作者的简要信息。
type Brief struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}
