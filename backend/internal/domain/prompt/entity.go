package prompt

import (
	"time"

	userdomain "prompthub/backend/internal/domain/user"

	"gorm.io/datatypes"
)

// 固定的分类枚举，与前端筛选项保持一致。
const (
	CategoryCoding       = "CODING"
	CategoryWriting      = "WRITING"
	CategoryMarketing    = "MARKETING"
	CategoryDesign       = "DESIGN"
	CategoryBusiness     = "BUSINESS"
	CategoryEducation    = "EDUCATION"
	CategoryProductivity = "PRODUCTIVITY"
	CategoryOther        = "OTHER"
)

// 难度枚举。
const (
	DifficultyBeginner     = "BEGINNER"
	DifficultyIntermediate = "INTERMEDIATE"
	DifficultyAdvanced     = "ADVANCED"
)

// Categories 返回全部合法分类，顺序即展示顺序。
func Categories() []string {
	return []string{
		CategoryCoding,
		CategoryWriting,
		CategoryMarketing,
		CategoryDesign,
		CategoryBusiness,
		CategoryEducation,
		CategoryProductivity,
		CategoryOther,
	}
}

// ValidCategory 判断分类是否合法。
func ValidCategory(category string) bool {
	for _, c := range Categories() {
		if c == category {
			return true
		}
	}
	return false
}

// ValidDifficulty 判断难度是否合法。
func ValidDifficulty(difficulty string) bool {
	switch difficulty {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// Prompt 表示一条对外分享的提示词记录。
// UpvoteCount 等聚合字段由查询时的 COUNT 子查询填充，不参与建表。
type Prompt struct {
	ID          string         `gorm:"size:36;primaryKey" json:"id"`
	Title       string         `gorm:"size:255;not null" json:"title"`
	Content     string         `gorm:"type:text;not null" json:"content"`
	Description string         `gorm:"size:1000" json:"description"`
	Category    string         `gorm:"size:32;not null;index:idx_prompts_category" json:"category"`
	AITools     datatypes.JSON `gorm:"column:ai_tools" json:"aiTool"`
	Tags        datatypes.JSON `gorm:"column:tags" json:"tags"`
	Difficulty  string         `gorm:"size:16;not null;default:'BEGINNER'" json:"difficulty"`
	Views       uint           `gorm:"not null;default:0" json:"views"`
	CopyCount   uint           `gorm:"column:copy_count;not null;default:0" json:"copyCount"`
	Published   bool           `gorm:"not null;default:true;index:idx_prompts_published" json:"published"`
	AuthorID    string         `gorm:"size:36;not null;index:idx_prompts_author" json:"authorId"`
	CreatedAt   time.Time      `gorm:"index:idx_prompts_created" json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`

	UpvoteCount   int64             `gorm:"->;-:migration" json:"upvoteCount"`
	BookmarkCount int64             `gorm:"->;-:migration" json:"bookmarkCount"`
	CommentCount  int64             `gorm:"->;-:migration" json:"commentCount"`
	Author        *userdomain.Brief `gorm:"-" json:"author,omitempty"`
}

// TableName 返回对应的表名。
func (Prompt) TableName() string {
	return "prompts"
}

// Upvote 记录用户对提示词的点赞，复合主键保证同一用户只能点一次。
type Upvote struct {
	UserID    string    `gorm:"size:36;primaryKey" json:"userId"`
	PromptID  string    `gorm:"size:36;primaryKey;index:idx_upvotes_prompt" json:"promptId"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 返回对应的表名。
func (Upvote) TableName() string {
	return "upvotes"
}

// Bookmark 记录用户的收藏，结构与点赞一致。
type Bookmark struct {
	UserID    string    `gorm:"size:36;primaryKey" json:"userId"`
	PromptID  string    `gorm:"size:36;primaryKey;index:idx_bookmarks_prompt" json:"promptId"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 返回对应的表名。
func (Bookmark) TableName() string {
	return "bookmarks"
}

// Comment 描述提示词下的评论。
type Comment struct {
	ID        string    `gorm:"size:36;primaryKey" json:"id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	UserID    string    `gorm:"size:36;not null;index:idx_comments_user" json:"userId"`
	PromptID  string    `gorm:"size:36;not null;index:idx_comments_prompt" json:"promptId"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`

	Author *userdomain.Brief `gorm:"-" json:"author,omitempty"`
}

// TableName 返回对应的表名。
func (Comment) TableName() string {
	return "comments"
}

// CategoryCount 描述单个分类下已发布提示词的数量。
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}
