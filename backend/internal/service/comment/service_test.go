package comment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	promptdomain "prompthub/backend/internal/domain/prompt"
	userdomain "prompthub/backend/internal/domain/user"
	"prompthub/backend/internal/infra/cache"
	"prompthub/backend/internal/repository"

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

func newTestService(t *testing.T, db *gorm.DB, feedCache cache.FeedCache) *Service {
	t.Helper()
	return NewService(
		repository.NewCommentRepository(db),
		repository.NewPromptRepository(db),
		repository.NewUserRepository(db),
		feedCache,
	)
}

func seedFixtures(t *testing.T, db *gorm.DB) {
	t.Helper()

	users := []userdomain.User{
		{ID: "writer", Name: "Wen", Email: "wen@example.com"},
		{ID: "other", Name: "Olga", Email: "olga@example.com"},
	}
	for i := range users {
		if err := db.Create(&users[i]).Error; err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	entity := promptdomain.Prompt{
		ID: "p1", Title: "Seed", Content: "body",
		Category: promptdomain.CategoryCoding, Difficulty: promptdomain.DifficultyBeginner,
		AITools: datatypes.JSON(`[]`), Tags: datatypes.JSON(`[]`),
		Published: true, AuthorID: "writer",
	}
	if err := db.Create(&entity).Error; err != nil {
		t.Fatalf("seed prompt: %v", err)
	}
}

func TestCreateAndListWithAuthors(t *testing.T) {
	db := newTestDB(t)
	seedFixtures(t, db)
	svc := newTestService(t, db, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, "writer", "p1", "  first!  ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Content != "first!" {
		t.Fatalf("content = %q, want trimmed", created.Content)
	}
	if created.Author == nil || created.Author.Name != "Wen" {
		t.Fatalf("author not filled: %+v", created.Author)
	}

	if _, err := svc.Create(ctx, "other", "p1", "second"); err != nil {
		t.Fatalf("second Create: %v", err)
	}

	comments, err := svc.ListByPrompt(ctx, "p1")
	if err != nil {
		t.Fatalf("ListByPrompt: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("comments = %d, want 2", len(comments))
	}
	for _, c := range comments {
		if c.Author == nil || c.Author.Name == "" {
			t.Fatalf("comment author missing: %+v", c)
		}
	}
}

func TestCreateValidation(t *testing.T) {
	db := newTestDB(t)
	seedFixtures(t, db)
	svc := newTestService(t, db, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "writer", "p1", "   "); !errors.Is(err, ErrContentRequired) {
		t.Fatalf("blank content error = %v, want ErrContentRequired", err)
	}
	if _, err := svc.Create(ctx, "writer", "missing", "hello"); !errors.Is(err, ErrPromptNotFound) {
		t.Fatalf("missing prompt error = %v, want ErrPromptNotFound", err)
	}
	if _, err := svc.ListByPrompt(ctx, "missing"); !errors.Is(err, ErrPromptNotFound) {
		t.Fatalf("list missing prompt error = %v, want ErrPromptNotFound", err)
	}
}

func TestDeleteIsAuthorOnly(t *testing.T) {
	db := newTestDB(t)
	seedFixtures(t, db)
	svc := newTestService(t, db, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, "writer", "p1", "mine")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Delete(ctx, "other", created.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("foreign delete error = %v, want ErrNotOwner", err)
	}
	if err := svc.Delete(ctx, "writer", created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, "writer", created.ID); !errors.Is(err, ErrCommentNotFound) {
		t.Fatalf("second delete error = %v, want ErrCommentNotFound", err)
	}
}

func TestCommentWritesInvalidateFeedCache(t *testing.T) {
	db := newTestDB(t)
	seedFixtures(t, db)
	feedCache := cache.NewMemoryFeedCache()
	svc := newTestService(t, db, feedCache)
	ctx := context.Background()

	if err := feedCache.Set(ctx, "entry", []byte("cached"), 0); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	created, err := svc.Create(ctx, "writer", "p1", "hello")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok, _ := feedCache.Get(ctx, "entry"); ok {
		t.Fatal("cache entry survived comment create")
	}

	if err := feedCache.Set(ctx, "entry", []byte("cached"), 0); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if err := svc.Delete(ctx, "writer", created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := feedCache.Get(ctx, "entry"); ok {
		t.Fatal("cache entry survived comment delete")
	}
}
