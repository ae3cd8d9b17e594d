// Package feedclient 实现发现页的客户端控制器：维护过滤/排序/分页状态，
// 发起查询、驱动无限滚动，并保证过期响应不会污染当前列表。
package feedclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State 表示控制器当前所处的加载阶段。
type State int

const (
	// StateIdle 空闲，当前列表可交互。
	StateIdle State = iota
	// StateLoading 整页替换加载中（过滤或导航变化触发）。
	StateLoading
	// StateLoadingMore 追加加载中（滚动触发）。
	StateLoadingMore
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoadingMore:
		return "loading_more"
	default:
		return "unknown"
	}
}

// Query 是一次发现页查询的过滤与排序条件。多值过滤用逗号拼接，
// 与服务端的查询参数格式一致。
type Query struct {
	Category   string
	AITool     string
	Difficulty string
	Search     string
	Sort       string
}

// Author 是卡片上展示的作者摘要。
type Author struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Prompt 是客户端渲染用的提示词条目。Upvoted/Bookmarked 由控制器
// 从初始互动状态与本地乐观切换合并而来，不在网络负载里传输。
type Prompt struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Content       string    `json:"content"`
	Category      string    `json:"category"`
	AITools       []string  `json:"aiTool"`
	Tags          []string  `json:"tags"`
	Difficulty    string    `json:"difficulty"`
	Views         int64     `json:"views"`
	CopyCount     int64     `json:"copyCount"`
	UpvoteCount   int64     `json:"upvoteCount"`
	BookmarkCount int64     `json:"bookmarkCount"`
	CommentCount  int64     `json:"commentCount"`
	Author        *Author   `json:"author,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`

	Upvoted    bool `json:"-"`
	Bookmarked bool `json:"-"`
}

// Page 是服务端返回的一页查询结果。
type Page struct {
	Prompts    []Prompt `json:"prompts"`
	Total      int64    `json:"total"`
	Page       int      `json:"page"`
	TotalPages int      `json:"totalPages"`
}

// InteractionState 是当前用户在一批提示词上的互动集合。
type InteractionState struct {
	UpvotedIDs    []string `json:"upvotedIds"`
	BookmarkedIDs []string `json:"bookmarkedIds"`
}

// Fetcher 抽象一次分页查询。实现必须可以被并发调用。
type Fetcher interface {
	FetchPage(ctx context.Context, query Query, page, limit int) (Page, error)
}

// FetcherFunc 把函数适配成 Fetcher，测试里用。
type FetcherFunc func(ctx context.Context, query Query, page, limit int) (Page, error)

// FetchPage 实现 Fetcher。
func (f FetcherFunc) FetchPage(ctx context.Context, query Query, page, limit int) (Page, error) {
	return f(ctx, query, page, limit)
}

// PrefStore 是注入式的键值偏好存储，用于新手引导等一次性提示的
// 关闭标记；不持有全局状态，便于宿主按用户隔离。
type PrefStore interface {
	Get(key string) string
	Set(key, value string)
}

const (
	defaultLimit    = 12
	defaultThrottle = 150 * time.Millisecond

	onboardingKey = "feed:onboarding_dismissed"
)

// ErrFetcherRequired 表示构造控制器时未提供 Fetcher。
var ErrFetcherRequired = errors.New("feedclient: fetcher is required")

// Options 是控制器的可选依赖与参数。
type Options struct {
	// Prefs 缺省时引导标记不持久化。
	Prefs PrefStore
	// OnError 在后台加载失败时被调用；当前列表保持不变。
	OnError func(error)
	// Limit 每页条数，缺省 12。
	Limit int
	// Throttle 滚动评估的合并窗口，缺省 150ms。
	Throttle time.Duration
	// Now 可注入时钟，测试用。
	Now func() time.Time

	Logger *zap.SugaredLogger
}

// Controller 是发现页状态机。所有方法并发安全；网络请求在调用方
// goroutine 里执行，执行期间不持锁，过期响应靠代次计数在应用时丢弃。
type Controller struct {
	fetcher  Fetcher
	prefs    PrefStore
	onError  func(error)
	limit    int
	throttle time.Duration
	now      func() time.Time
	logger   *zap.SugaredLogger

	mu          sync.Mutex
	query       Query
	state       State
	page        int
	totalPages  int
	total       int64
	generation  uint64
	loadingMore bool
	synced      bool
	lastEval    time.Time
	evaluated   bool
	prompts     []Prompt
	seen        map[string]struct{}
	upvoted     map[string]bool
	bookmarked  map[string]bool
}

// New 用初始查询、首屏数据与互动状态构造控制器。首屏由调用方提前
// 取好，第一次导航同步不会重复发请求。
func New(fetcher Fetcher, initial Query, seed Page, state InteractionState, opts Options) (*Controller, error) {
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if opts.Throttle <= 0 {
		opts.Throttle = defaultThrottle
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	c := &Controller{
		fetcher:    fetcher,
		prefs:      opts.Prefs,
		onError:    opts.OnError,
		limit:      opts.Limit,
		throttle:   opts.Throttle,
		now:        opts.Now,
		logger:     opts.Logger.With("component", "feedclient"),
		query:      initial,
		state:      StateIdle,
		upvoted:    make(map[string]bool),
		bookmarked: make(map[string]bool),
	}
	c.applyReplaceLocked(seed)
	for _, id := range state.UpvotedIDs {
		c.upvoted[id] = true
	}
	for _, id := range state.BookmarkedIDs {
		c.bookmarked[id] = true
	}
	return c, nil
}

// State 返回当前加载阶段。
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Query 返回当前生效的查询条件。
func (c *Controller) Query() Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// HasMore 报告是否还有后续页。
func (c *Controller) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMoreLocked()
}

// Total 返回当前查询的总条数。
func (c *Controller) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Prompts 返回合并了当前用户互动状态的列表快照。
func (c *Controller) Prompts() []Prompt {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Prompt, len(c.prompts))
	copy(out, c.prompts)
	for i := range out {
		out[i].Upvoted = c.upvoted[out[i].ID]
		out[i].Bookmarked = c.bookmarked[out[i].ID]
	}
	return out
}

// SetQuery 应用新的过滤/排序条件：页码归零并发起整页替换。条件与
// 当前一致时不做任何事。替换开始后，旧条件下仍在途的追加响应会在
// 应用时被代次检查丢弃。
func (c *Controller) SetQuery(ctx context.Context, q Query) error {
	c.mu.Lock()
	if q == c.query {
		c.mu.Unlock()
		return nil
	}
	c.query = q
	c.generation++
	gen := c.generation
	c.state = StateLoading
	limit := c.limit
	c.mu.Unlock()

	return c.finishReplace(ctx, q, gen, limit)
}

// SyncNavigation 把外部导航状态（如 URL 参数）同步进控制器。除首次
// 同步外与 SetQuery 等价；首次同步不发请求，因为首屏数据已在构造时
// 提供。
func (c *Controller) SyncNavigation(ctx context.Context, q Query) error {
	c.mu.Lock()
	if !c.synced {
		c.synced = true
		c.query = q
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.SetQuery(ctx, q)
}

// Refresh 在当前条件下重新拉取第一页。
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	q := c.query
	c.generation++
	gen := c.generation
	c.state = StateLoading
	limit := c.limit
	c.mu.Unlock()

	return c.finishReplace(ctx, q, gen, limit)
}

func (c *Controller) finishReplace(ctx context.Context, q Query, gen uint64, limit int) error {
	page, err := c.fetcher.FetchPage(ctx, q, 1, limit)

	c.mu.Lock()
	if gen != c.generation {
		// 更新的查询已接管，丢弃本次结果。
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.state = StateIdle
		c.mu.Unlock()
		c.report(fmt.Errorf("load feed: %w", err))
		return err
	}
	c.applyReplaceLocked(page)
	c.state = StateIdle
	c.mu.Unlock()
	return nil
}

// HandleScroll 在滚动接近底部时由宿主调用。评估被合并到一个固定
// 窗口内最多一次；同一时刻只允许一个追加请求在途，由同步标志而非
// 状态字段保证。
func (c *Controller) HandleScroll(ctx context.Context) error {
	c.mu.Lock()
	now := c.now()
	if c.evaluated && now.Sub(c.lastEval) < c.throttle {
		c.mu.Unlock()
		return nil
	}
	c.lastEval = now
	c.evaluated = true

	if c.loadingMore || c.state != StateIdle || !c.hasMoreLocked() {
		c.mu.Unlock()
		return nil
	}
	c.loadingMore = true
	c.state = StateLoadingMore
	gen := c.generation
	q := c.query
	next := c.page + 1
	limit := c.limit
	c.mu.Unlock()

	page, err := c.fetcher.FetchPage(ctx, q, next, limit)

	c.mu.Lock()
	c.loadingMore = false
	if gen != c.generation {
		// 过滤条件已变化，旧页面不再追加。
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.state = StateIdle
		c.mu.Unlock()
		c.report(fmt.Errorf("load more: %w", err))
		return err
	}
	c.applyAppendLocked(page, next)
	c.state = StateIdle
	c.mu.Unlock()
	return nil
}

// ApplyUpvote 记录某条提示词的乐观点赞结果，供卡片切换后回填。
func (c *Controller) ApplyUpvote(promptID string, active bool, count int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.upvoted[promptID] = active
	for i := range c.prompts {
		if c.prompts[i].ID == promptID {
			c.prompts[i].UpvoteCount = count
			break
		}
	}
}

// ApplyBookmark 记录某条提示词的乐观收藏结果。
func (c *Controller) ApplyBookmark(promptID string, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bookmarked[promptID] = active
}

// ApplyCopy 在复制成功后本地加一，保持与服务端计数方向一致。
func (c *Controller) ApplyCopy(promptID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.prompts {
		if c.prompts[i].ID == promptID {
			c.prompts[i].CopyCount++
			break
		}
	}
}

// OnboardingDismissed 报告新手引导是否已被关闭。
func (c *Controller) OnboardingDismissed() bool {
	if c.prefs == nil {
		return false
	}
	return c.prefs.Get(onboardingKey) == "true"
}

// DismissOnboarding 持久化新手引导的关闭标记。
func (c *Controller) DismissOnboarding() {
	if c.prefs == nil {
		return
	}
	c.prefs.Set(onboardingKey, "true")
}

func (c *Controller) hasMoreLocked() bool {
	return c.page < c.totalPages
}

func (c *Controller) applyReplaceLocked(page Page) {
	c.prompts = c.prompts[:0]
	c.seen = make(map[string]struct{}, len(page.Prompts))
	for _, p := range page.Prompts {
		if _, dup := c.seen[p.ID]; dup {
			continue
		}
		c.seen[p.ID] = struct{}{}
		c.prompts = append(c.prompts, p)
	}
	c.page = page.Page
	if c.page < 1 {
		c.page = 1
	}
	c.totalPages = page.TotalPages
	c.total = page.Total
}

func (c *Controller) applyAppendLocked(page Page, requested int) {
	for _, p := range page.Prompts {
		if _, dup := c.seen[p.ID]; dup {
			continue
		}
		c.seen[p.ID] = struct{}{}
		c.prompts = append(c.prompts, p)
	}
	c.page = page.Page
	if c.page < requested {
		c.page = requested
	}
	c.totalPages = page.TotalPages
	c.total = page.Total
}

func (c *Controller) report(err error) {
	c.logger.Warnw("feed fetch failed", "error", err)
	if c.onError != nil {
		c.onError(err)
	}
}
