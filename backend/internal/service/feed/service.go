package feed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	promptdomain "prompthub/backend/internal/domain/prompt"
	"prompthub/backend/internal/infra/cache"
	appLogger "prompthub/backend/internal/infra/logger"
	"prompthub/backend/internal/infra/metrics"
	"prompthub/backend/internal/repository"

	"go.uber.org/zap"
)

var (
	ErrInvalidSort       = errors.New("unsupported sort key")
	ErrInvalidDifficulty = errors.New("unsupported difficulty")
)

const (
	cacheResultHit    = "hit"
	cacheResultMiss   = "miss"
	cacheResultBypass = "bypass"
)

// QuerySpec 描述发现页的一次查询请求，字段均为原始入参。
// Category/AITool 支持逗号分隔的多值，字段内为 OR，字段间为 AND。
type QuerySpec struct {
	Category   string `json:"category"`
	AITool     string `json:"aiTool"`
	Difficulty string `json:"difficulty"`
	Search     string `json:"search"`
	Sort       string `json:"sort"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
}

// FeedPage 是发现页查询的完整结果，整体作为缓存单元。
type FeedPage struct {
	Prompts    []promptdomain.Prompt `json:"prompts"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	TotalPages int                   `json:"totalPages"`
}

// Service 执行发现页查询：过滤、排序、分页，并维护短 TTL 的结果缓存。
type Service struct {
	prompts  *repository.PromptRepository
	users    *repository.UserRepository
	cache    cache.FeedCache
	cacheTTL time.Duration
	pageSize int
	pageMax  int
	logger   *zap.SugaredLogger
}

// Options 控制分页默认值与缓存行为。
type Options struct {
	Cache       cache.FeedCache
	CacheTTL    time.Duration
	PageSize    int
	PageSizeMax int
}

// NewService 创建发现页查询服务。
func NewService(prompts *repository.PromptRepository, users *repository.UserRepository, opts Options) *Service {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 12
	}
	pageMax := opts.PageSizeMax
	if pageMax <= 0 {
		pageMax = 60
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &Service{
		prompts:  prompts,
		users:    users,
		cache:    opts.Cache,
		cacheTTL: ttl,
		pageSize: pageSize,
		pageMax:  pageMax,
		logger:   appLogger.S().With("component", "feed.service"),
	}
}

// normalizedSpec 是参数规整后的内部查询形态，同时充当缓存 key 的来源。
type normalizedSpec struct {
	Categories []string `json:"categories"`
	AITools    []string `json:"aiTools"`
	Difficulty string   `json:"difficulty"`
	Search     string   `json:"search"`
	Sort       string   `json:"sort"`
	Page       int      `json:"page"`
	Limit      int      `json:"limit"`
}

// GetPrompts 返回符合条件的发现页数据。
// 命中缓存时直接返回缓存结果；未命中时落库查询并回填缓存。
func (s *Service) GetPrompts(ctx context.Context, spec QuerySpec) (FeedPage, error) {
	start := time.Now()
	log := s.scope("get_prompts")

	normalized, err := s.normalize(spec)
	if err != nil {
		return FeedPage{}, err
	}

	key := cacheKey(normalized)

	if s.cache != nil {
		payload, ok, cacheErr := s.cache.Get(ctx, key)
		if cacheErr != nil {
			log.Warnw("feed cache get failed", "error", cacheErr)
		} else if ok {
			var page FeedPage
			if err := json.Unmarshal(payload, &page); err == nil {
				metrics.ObserveFeedQuery(cacheResultHit, time.Since(start))
				return page, nil
			}
			log.Warnw("feed cache payload corrupt, falling back to storage", "key", key)
		}
	}

	page, err := s.queryStorage(ctx, normalized)
	if err != nil {
		return FeedPage{}, err
	}

	cacheResult := cacheResultBypass
	if s.cache != nil {
		cacheResult = cacheResultMiss
		if payload, err := json.Marshal(page); err == nil {
			if err := s.cache.Set(ctx, key, payload, s.cacheTTL); err != nil {
				log.Warnw("feed cache set failed", "error", err)
			}
		}
	}

	metrics.ObserveFeedQuery(cacheResult, time.Since(start))
	return page, nil
}

// queryStorage 执行真实的数据库查询并填充作者摘要。
func (s *Service) queryStorage(ctx context.Context, spec normalizedSpec) (FeedPage, error) {
	filter := repository.FeedFilter{
		Categories: spec.Categories,
		AITools:    spec.AITools,
		Difficulty: spec.Difficulty,
		Search:     spec.Search,
		Sort:       spec.Sort,
		Limit:      spec.Limit,
		Offset:     (spec.Page - 1) * spec.Limit,
	}

	records, total, err := s.prompts.ListFeed(ctx, filter)
	if err != nil {
		return FeedPage{}, fmt.Errorf("list feed: %w", err)
	}

	if err := s.fillAuthors(ctx, records); err != nil {
		return FeedPage{}, err
	}

	totalPages := 0
	if total > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(spec.Limit)))
	}

	return FeedPage{
		Prompts:    records,
		Total:      total,
		Page:       spec.Page,
		TotalPages: totalPages,
	}, nil
}

// fillAuthors 批量查询作者信息并挂载到结果上，避免逐条查询。
func (s *Service) fillAuthors(ctx context.Context, records []promptdomain.Prompt) error {
	if len(records) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(records))
	ids := make([]string, 0, len(records))
	for i := range records {
		id := records[i].AuthorID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	briefs, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load authors: %w", err)
	}

	for i := range records {
		if brief, ok := briefs[records[i].AuthorID]; ok {
			b := brief
			records[i].Author = &b
		}
	}
	return nil
}

// normalize 规整查询参数：拆分多值字段、校验排序与难度、钳制分页范围。
func (s *Service) normalize(spec QuerySpec) (normalizedSpec, error) {
	sortKey := strings.TrimSpace(spec.Sort)
	if sortKey == "" {
		sortKey = repository.SortTrending
	}
	if !repository.ValidSort(sortKey) {
		return normalizedSpec{}, ErrInvalidSort
	}

	difficulty := strings.TrimSpace(spec.Difficulty)
	if difficulty != "" && !promptdomain.ValidDifficulty(difficulty) {
		return normalizedSpec{}, ErrInvalidDifficulty
	}

	page := spec.Page
	if page < 1 {
		page = 1
	}

	limit := spec.Limit
	if limit <= 0 {
		limit = s.pageSize
	}
	if limit > s.pageMax {
		limit = s.pageMax
	}

	return normalizedSpec{
		Categories: splitMultiValue(spec.Category),
		AITools:    splitMultiValue(spec.AITool),
		Difficulty: difficulty,
		Search:     strings.TrimSpace(spec.Search),
		Sort:       sortKey,
		Page:       page,
		Limit:      limit,
	}, nil
}

// splitMultiValue 把逗号分隔的多值参数拆成去重排序后的切片，保证缓存 key 稳定。
func splitMultiValue(raw string) []string {
	parts := strings.Split(raw, ",")
	seen := make(map[string]struct{}, len(parts))
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		values = append(values, trimmed)
	}
	sort.Strings(values)
	return values
}

// cacheKey 由规整后的查询参数序列化并哈希得到，参数相同则 key 必然相同。
func cacheKey(spec normalizedSpec) string {
	payload, err := json.Marshal(spec)
	if err != nil {
		return fmt.Sprintf("q:%v", spec)
	}
	sum := sha256.Sum256(payload)
	return "q:" + hex.EncodeToString(sum[:16])
}

func (s *Service) scope(operation string) *zap.SugaredLogger {
	if s.logger == nil {
		s.logger = appLogger.S().With("component", "feed.service")
	}
	return s.logger.With("operation", operation)
}
