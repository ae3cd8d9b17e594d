package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	promptdomain "prompthub/backend/internal/domain/prompt"
	userdomain "prompthub/backend/internal/domain/user"
	"prompthub/backend/internal/infra/cache"
	"prompthub/backend/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
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

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newTestService(t *testing.T, db *gorm.DB, feedCache cache.FeedCache) *Service {
	t.Helper()
	return NewService(
		repository.NewPromptRepository(db),
		repository.NewUserRepository(db),
		Options{Cache: feedCache},
	)
}

// seedFeedData 写入一位作者与四条提示词：
//   - alpha: CODING/BEGINNER，100 浏览，1 个赞，标题含 React，工具 ChatGPT
//   - bravo: WRITING/ADVANCED，50 浏览，描述含 React，工具 Claude
//   - charlie: CODING/INTERMEDIATE，10 浏览，3 个赞，工具 ChatGPT+Claude
//   - draft: 未发布，任何查询都不可见
func seedFeedData(t *testing.T, db *gorm.DB) {
	t.Helper()

	author := userdomain.User{ID: "author-1", Name: "Ada", Email: "ada@example.com"}
	if err := db.Create(&author).Error; err != nil {
		t.Fatalf("seed author: %v", err)
	}

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	prompts := []promptdomain.Prompt{
		{
			ID: "alpha", Title: "React hooks guide", Content: "how to use hooks",
			Category: promptdomain.CategoryCoding, Difficulty: promptdomain.DifficultyBeginner,
			AITools: datatypes.JSON(`["ChatGPT"]`), Tags: datatypes.JSON(`["frontend"]`),
			Views: 100, Published: true, AuthorID: author.ID, CreatedAt: base.Add(-4 * time.Hour),
		},
		{
			ID: "bravo", Title: "Essay outline", Content: "structure an essay",
			Description: "Works well for React blog posts too",
			Category:    promptdomain.CategoryWriting, Difficulty: promptdomain.DifficultyAdvanced,
			AITools: datatypes.JSON(`["Claude"]`), Tags: datatypes.JSON(`["writing"]`),
			Views: 50, Published: true, AuthorID: author.ID, CreatedAt: base.Add(-3 * time.Hour),
		},
		{
			ID: "charlie", Title: "SQL optimizer", Content: "tune slow queries",
			Category: promptdomain.CategoryCoding, Difficulty: promptdomain.DifficultyIntermediate,
			AITools: datatypes.JSON(`["ChatGPT","Claude"]`), Tags: datatypes.JSON(`["sql"]`),
			Views: 10, Published: true, AuthorID: author.ID, CreatedAt: base.Add(-2 * time.Hour),
		},
		{
			ID: "draft", Title: "Unfinished", Content: "draft content",
			Category: promptdomain.CategoryDesign, Difficulty: promptdomain.DifficultyBeginner,
			AITools: datatypes.JSON(`[]`), Tags: datatypes.JSON(`[]`),
			Views: 999, Published: false, AuthorID: author.ID, CreatedAt: base.Add(-1 * time.Hour),
		},
	}
	for i := range prompts {
		if err := db.Create(&prompts[i]).Error; err != nil {
			t.Fatalf("seed prompt %s: %v", prompts[i].ID, err)
		}
	}

	upvotes := []promptdomain.Upvote{
		{UserID: "u1", PromptID: "charlie"},
		{UserID: "u2", PromptID: "charlie"},
		{UserID: "u3", PromptID: "charlie"},
		{UserID: "u1", PromptID: "alpha"},
	}
	for i := range upvotes {
		if err := db.Create(&upvotes[i]).Error; err != nil {
			t.Fatalf("seed upvote: %v", err)
		}
	}
}

func promptIDs(page FeedPage) []string {
	ids := make([]string, 0, len(page.Prompts))
	for i := range page.Prompts {
		ids = append(ids, page.Prompts[i].ID)
	}
	return ids
}

func assertOrder(t *testing.T, page FeedPage, want ...string) {
	t.Helper()
	got := promptIDs(page)
	if len(got) != len(want) {
		t.Fatalf("result ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("result ids = %v, want %v", got, want)
		}
	}
}

func TestGetPromptsDefaultTrendingSort(t *testing.T) {
	db := newTestDB(t)
	seedFeedData(t, db)
	svc := newTestService(t, db, nil)

	page, err := svc.GetPrompts(context.Background(), QuerySpec{})
	if err != nil {
		t.Fatalf("GetPrompts: %v", err)
	}

	// 按点赞数排序，未发布的 draft 不可见。
	assertOrder(t, page, "charlie", "alpha", "bravo")
	if page.Total != 3 {
		t.Fatalf("total = %d, want 3", page.Total)
	}
	if page.Prompts[0].UpvoteCount != 3 {
		t.Fatalf("upvote count = %d, want 3", page.Prompts[0].UpvoteCount)
	}
	if page.Prompts[0].Author == nil || page.Prompts[0].Author.Name != "Ada" {
		t.Fatalf("author not filled: %+v", page.Prompts[0].Author)
	}
}

func TestGetPromptsSortVariants(t *testing.T) {
	db := newTestDB(t)
	seedFeedData(t, db)
	svc := newTestService(t, db, nil)
	ctx := context.Background()

	cases := []struct {
		sort string
		want []string
	}{
		{repository.SortViews, []string{"alpha", "bravo", "charlie"}},
		{repository.SortNewest, []string{"charlie", "bravo", "alpha"}},
		{repository.SortOldest, []string{"alpha", "bravo", "charlie"}},
		{repository.SortUpvotes, []string{"charlie", "alpha", "bravo"}},
	}
	for _, tc := range cases {
		page, err := svc.GetPrompts(ctx, QuerySpec{Sort: tc.sort})
		if err != nil {
			t.Fatalf("GetPrompts sort=%s: %v", tc.sort, err)
		}
		assertOrder(t, page, tc.want...)
	}
}

func TestGetPromptsRejectsUnknownSortAndDifficulty(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db, nil)
	ctx := context.Background()

	if _, err := svc.GetPrompts(ctx, QuerySpec{Sort: "hotness"}); !errors.Is(err, ErrInvalidSort) {
		t.Fatalf("sort error = %v, want ErrInvalidSort", err)
	}
	if _, err := svc.GetPrompts(ctx, QuerySpec{Difficulty: "NIGHTMARE"}); !errors.Is(err, ErrInvalidDifficulty) {
		t.Fatalf("difficulty error = %v, want ErrInvalidDifficulty", err)
	}
}

func TestGetPromptsFilterCombination(t *testing.T) {
	db := newTestDB(t)
	seedFeedData(t, db)
	svc := newTestService(t, db, nil)
	ctx := context.Background()

	// 同一字段多值为 OR。
	page, err := svc.GetPrompts(ctx, QuerySpec{Category: "CODING,WRITING", Sort: repository.SortNewest})
	if err != nil {
		t.Fatalf("GetPrompts: %v", err)
	}
	assertOrder(t, page, "charlie", "bravo", "alpha")

	// 不同字段之间为 AND。
	page, err = svc.GetPrompts(ctx, QuerySpec{
		Category:   promptdomain.CategoryCoding,
		Difficulty: promptdomain.DifficultyIntermediate,
	})
	if err != nil {
		t.Fatalf("GetPrompts: %v", err)
	}
	assertOrder(t, page, "charlie")
}

func TestGetPromptsAIToolMatchesJSONElement(t *testing.T) {
	db := newTestDB(t)
	seedFeedData(t, db)
	svc := newTestService(t, db, nil)

	page, err := svc.GetPrompts(context.Background(), QuerySpec{AITool: "Claude", Sort: repository.SortNewest})
	if err != nil {
		t.Fatalf("GetPrompts: %v", err)
	}
	assertOrder(t, page, "charlie", "bravo")
}

func TestGetPromptsSearchCaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	seedFeedData(t, db)
	svc := newTestService(t, db, nil)

	// 标题与描述都算命中。
	page, err := svc.GetPrompts(context.Background(), QuerySpec{Search: "rEaCt", Sort: repository.SortNewest})
	if err != nil {
		t.Fatalf("GetPrompts: %v", err)
	}
	assertOrder(t, page, "bravo", "alpha")
}

func TestGetPromptsPagination(t *testing.T) {
	db := newTestDB(t)
	seedFeedData(t, db)
	svc := newTestService(t, db, nil)
	ctx := context.Background()

	first, err := svc.GetPrompts(ctx, QuerySpec{Sort: repository.SortNewest, Limit: 2})
	if err != nil {
		t.Fatalf("GetPrompts page 1: %v", err)
	}
	if first.Total != 3 || first.TotalPages != 2 || first.Page != 1 {
		t.Fatalf("page 1 meta = %+v", first)
	}
	assertOrder(t, first, "charlie", "bravo")

	second, err := svc.GetPrompts(ctx, QuerySpec{Sort: repository.SortNewest, Limit: 2, Page: 2})
	if err != nil {
		t.Fatalf("GetPrompts page 2: %v", err)
	}
	if second.Total != 3 || second.Page != 2 {
		t.Fatalf("page 2 meta = %+v", second)
	}
	assertOrder(t, second, "alpha")
}

func TestGetPromptsServedFromCacheUntilInvalidated(t *testing.T) {
	db := newTestDB(t)
	seedFeedData(t, db)
	feedCache := cache.NewRedisFeedCache(newTestRedis(t), "feedtest")
	svc := newTestService(t, db, feedCache)
	ctx := context.Background()

	first, err := svc.GetPrompts(ctx, QuerySpec{})
	if err != nil {
		t.Fatalf("GetPrompts: %v", err)
	}
	if first.Total != 3 {
		t.Fatalf("total = %d, want 3", first.Total)
	}

	// 绕过服务层直接写库；缓存未失效前结果保持不变。
	extra := promptdomain.Prompt{
		ID: "delta", Title: "New arrival", Content: "body",
		Category: promptdomain.CategoryCoding, Difficulty: promptdomain.DifficultyBeginner,
		AITools: datatypes.JSON(`[]`), Tags: datatypes.JSON(`[]`),
		Published: true, AuthorID: "author-1",
	}
	if err := db.Create(&extra).Error; err != nil {
		t.Fatalf("insert extra prompt: %v", err)
	}

	cached, err := svc.GetPrompts(ctx, QuerySpec{})
	if err != nil {
		t.Fatalf("GetPrompts cached: %v", err)
	}
	if cached.Total != 3 {
		t.Fatalf("cached total = %d, want stale 3", cached.Total)
	}

	if err := feedCache.InvalidateAll(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	fresh, err := svc.GetPrompts(ctx, QuerySpec{})
	if err != nil {
		t.Fatalf("GetPrompts fresh: %v", err)
	}
	if fresh.Total != 4 {
		t.Fatalf("fresh total = %d, want 4", fresh.Total)
	}
}

func TestGetPromptsCacheKeyIgnoresMultiValueOrder(t *testing.T) {
	db := newTestDB(t)
	seedFeedData(t, db)
	feedCache := cache.NewMemoryFeedCache()
	svc := newTestService(t, db, feedCache)
	ctx := context.Background()

	if _, err := svc.GetPrompts(ctx, QuerySpec{Category: "CODING,WRITING"}); err != nil {
		t.Fatalf("GetPrompts: %v", err)
	}

	// 逻辑相同的查询应命中同一个缓存条目：库里删数据也不影响结果。
	if err := db.Where("id = ?", "bravo").Delete(&promptdomain.Prompt{}).Error; err != nil {
		t.Fatalf("delete prompt: %v", err)
	}

	page, err := svc.GetPrompts(ctx, QuerySpec{Category: "WRITING, CODING"})
	if err != nil {
		t.Fatalf("GetPrompts reordered: %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("total = %d, want cached 3", page.Total)
	}
}
