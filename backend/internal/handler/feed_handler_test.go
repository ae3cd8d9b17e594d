package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	promptdomain "prompthub/backend/internal/domain/prompt"
	userdomain "prompthub/backend/internal/domain/user"
	"prompthub/backend/internal/middleware"
	"prompthub/backend/internal/repository"
	feedsvc "prompthub/backend/internal/service/feed"
	interactionsvc "prompthub/backend/internal/service/interaction"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&userdomain.User{},
		&promptdomain.Prompt{},
		&promptdomain.Upvote{},
		&promptdomain.Bookmark{},
		&promptdomain.Comment{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func newFeedHandler(t *testing.T, db *gorm.DB) (*FeedHandler, *interactionsvc.Service) {
	t.Helper()

	prompts := repository.NewPromptRepository(db)
	users := repository.NewUserRepository(db)
	interactions := interactionsvc.NewService(
		prompts,
		repository.NewUpvoteRepository(db),
		repository.NewBookmarkRepository(db),
		nil,
	)
	feed := feedsvc.NewService(prompts, users, feedsvc.Options{})
	return NewFeedHandler(feed, interactions), interactions
}

func seedFeedFixtures(t *testing.T, db *gorm.DB) {
	t.Helper()

	author := userdomain.User{ID: "author-1", Name: "Ada", Email: "ada@example.com"}
	if err := db.Create(&author).Error; err != nil {
		t.Fatalf("seed author: %v", err)
	}

	for i := 1; i <= 3; i++ {
		entity := promptdomain.Prompt{
			ID:      fmt.Sprintf("p%d", i),
			Title:   fmt.Sprintf("Prompt %d", i),
			Content: "body",
			Category: promptdomain.CategoryCoding, Difficulty: promptdomain.DifficultyBeginner,
			AITools: datatypes.JSON(`[]`), Tags: datatypes.JSON(`[]`),
			Published: true, AuthorID: "author-1",
		}
		if err := db.Create(&entity).Error; err != nil {
			t.Fatalf("seed prompt: %v", err)
		}
	}
}

func performRequest(t *testing.T, handler gin.HandlerFunc, method, target, userID string, params gin.Params) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, nil)
	c.Params = params
	if userID != "" {
		c.Set(middleware.ContextUserIDKey, userID)
	}
	handler(c)
	return w
}

// feedEnvelope 与统一响应结构对应，data 部分按发现页负载展开。
type feedEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Prompts    []promptdomain.Prompt `json:"prompts"`
		Total      int64                 `json:"total"`
		Page       int                   `json:"page"`
		TotalPages int                   `json:"totalPages"`
		Viewer     struct {
			UpvotedIDs    []string `json:"upvotedIds"`
			BookmarkedIDs []string `json:"bookmarkedIds"`
		} `json:"interactionState"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *struct {
		Page       int `json:"page"`
		TotalItems int `json:"total_items"`
		TotalPages int `json:"total_pages"`
	} `json:"meta"`
}

func decodeFeed(t *testing.T, w *httptest.ResponseRecorder) feedEnvelope {
	t.Helper()
	var envelope feedEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v\n%s", err, w.Body.String())
	}
	return envelope
}

func TestFeedListAnonymousEnvelope(t *testing.T) {
	db := newTestDB(t)
	seedFeedFixtures(t, db)
	h, _ := newFeedHandler(t, db)

	w := performRequest(t, h.List, http.MethodGet, "/api/prompts?sort=newest", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d\n%s", w.Code, w.Body.String())
	}

	envelope := decodeFeed(t, w)
	if !envelope.Success {
		t.Fatalf("success = false: %s", w.Body.String())
	}
	if len(envelope.Data.Prompts) != 3 || envelope.Data.Total != 3 {
		t.Fatalf("prompts = %d total = %d", len(envelope.Data.Prompts), envelope.Data.Total)
	}

	// 匿名请求的互动状态必须是空数组而非 null。
	if envelope.Data.Viewer.UpvotedIDs == nil || len(envelope.Data.Viewer.UpvotedIDs) != 0 {
		t.Fatalf("viewer upvoted = %v", envelope.Data.Viewer.UpvotedIDs)
	}
	if envelope.Data.Viewer.BookmarkedIDs == nil || len(envelope.Data.Viewer.BookmarkedIDs) != 0 {
		t.Fatalf("viewer bookmarked = %v", envelope.Data.Viewer.BookmarkedIDs)
	}

	if envelope.Meta == nil || envelope.Meta.TotalItems != 3 || envelope.Meta.Page != 1 {
		t.Fatalf("meta = %+v", envelope.Meta)
	}
}

func TestFeedListResolvesViewerState(t *testing.T) {
	db := newTestDB(t)
	seedFeedFixtures(t, db)
	h, interactions := newFeedHandler(t, db)
	ctx := context.Background()

	if _, err := interactions.ToggleUpvote(ctx, "viewer", "p2"); err != nil {
		t.Fatalf("toggle upvote: %v", err)
	}
	if _, err := interactions.ToggleUpvote(ctx, "viewer", "p1"); err != nil {
		t.Fatalf("toggle upvote: %v", err)
	}
	if _, err := interactions.ToggleBookmark(ctx, "viewer", "p3"); err != nil {
		t.Fatalf("toggle bookmark: %v", err)
	}

	w := performRequest(t, h.List, http.MethodGet, "/api/prompts", "viewer", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d\n%s", w.Code, w.Body.String())
	}

	envelope := decodeFeed(t, w)
	upvoted := envelope.Data.Viewer.UpvotedIDs
	if len(upvoted) != 2 || upvoted[0] != "p1" || upvoted[1] != "p2" {
		t.Fatalf("upvoted ids = %v, want sorted [p1 p2]", upvoted)
	}
	if got := envelope.Data.Viewer.BookmarkedIDs; len(got) != 1 || got[0] != "p3" {
		t.Fatalf("bookmarked ids = %v, want [p3]", got)
	}
}

func TestFeedListRejectsInvalidSort(t *testing.T) {
	db := newTestDB(t)
	seedFeedFixtures(t, db)
	h, _ := newFeedHandler(t, db)

	w := performRequest(t, h.List, http.MethodGet, "/api/prompts?sort=random", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	envelope := decodeFeed(t, w)
	if envelope.Success || envelope.Error == nil || envelope.Error.Code != "BAD_REQUEST" {
		t.Fatalf("error envelope = %s", w.Body.String())
	}
}

func TestFeedListPaginationMeta(t *testing.T) {
	db := newTestDB(t)
	seedFeedFixtures(t, db)
	h, _ := newFeedHandler(t, db)

	w := performRequest(t, h.List, http.MethodGet, "/api/prompts?limit=2&page=2", "", nil)
	envelope := decodeFeed(t, w)
	if envelope.Data.Page != 2 || envelope.Data.TotalPages != 2 {
		t.Fatalf("page = %d totalPages = %d", envelope.Data.Page, envelope.Data.TotalPages)
	}
	if len(envelope.Data.Prompts) != 1 {
		t.Fatalf("second page prompts = %d, want 1", len(envelope.Data.Prompts))
	}
	if envelope.Meta == nil || envelope.Meta.TotalItems != 3 || envelope.Meta.TotalPages != 2 {
		t.Fatalf("meta = %+v", envelope.Meta)
	}
}
