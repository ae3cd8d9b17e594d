package feedclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func makePrompts(prefix string, from, count int) []Prompt {
	out := make([]Prompt, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, Prompt{
			ID:    fmt.Sprintf("%s-%03d", prefix, from+i),
			Title: fmt.Sprintf("%s prompt %d", prefix, from+i),
		})
	}
	return out
}

func TestScrollLoadsSecondPageWithoutDuplicates(t *testing.T) {
	all := makePrompts("p", 1, 20)
	var calls int
	fetcher := FetcherFunc(func(_ context.Context, _ Query, page, limit int) (Page, error) {
		calls++
		start := (page - 1) * limit
		end := start + limit
		if end > len(all) {
			end = len(all)
		}
		return Page{Prompts: all[start:end], Total: 20, Page: page, TotalPages: 2}, nil
	})

	clock := newFakeClock()
	seed := Page{Prompts: all[:12], Total: 20, Page: 1, TotalPages: 2}
	ctrl, err := New(fetcher, Query{Sort: "newest"}, seed, InteractionState{}, Options{Now: clock.Now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !ctrl.HasMore() {
		t.Fatal("expected hasMore after first page of 20 items")
	}
	if got := len(ctrl.Prompts()); got != 12 {
		t.Fatalf("seed list length = %d, want 12", got)
	}

	if err := ctrl.HandleScroll(context.Background()); err != nil {
		t.Fatalf("HandleScroll: %v", err)
	}
	if calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", calls)
	}

	prompts := ctrl.Prompts()
	if len(prompts) != 20 {
		t.Fatalf("final list length = %d, want 20", len(prompts))
	}
	seen := make(map[string]struct{}, len(prompts))
	for i, p := range prompts {
		if _, dup := seen[p.ID]; dup {
			t.Fatalf("duplicate prompt id %s", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.ID != all[i].ID {
			t.Fatalf("order broken at %d: got %s, want %s", i, p.ID, all[i].ID)
		}
	}
	if ctrl.HasMore() {
		t.Fatal("expected hasMore=false after the last page")
	}
	if ctrl.State() != StateIdle {
		t.Fatalf("state = %s, want idle", ctrl.State())
	}
}

func TestStaleLoadMoreDiscardedAfterFilterChange(t *testing.T) {
	oldItems := makePrompts("old", 1, 20)
	newItems := makePrompts("new", 1, 5)

	entered := make(chan struct{})
	release := make(chan struct{})
	fetcher := FetcherFunc(func(_ context.Context, q Query, page, _ int) (Page, error) {
		if q.Category == "engineering" {
			return Page{Prompts: newItems, Total: 5, Page: 1, TotalPages: 1}, nil
		}
		// 旧过滤条件下的追加请求，阻塞到过滤已经切换之后才返回。
		close(entered)
		<-release
		return Page{Prompts: oldItems[12:], Total: 20, Page: page, TotalPages: 2}, nil
	})

	clock := newFakeClock()
	seed := Page{Prompts: oldItems[:12], Total: 20, Page: 1, TotalPages: 2}
	ctrl, err := New(fetcher, Query{}, seed, InteractionState{}, Options{Now: clock.Now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- ctrl.HandleScroll(context.Background())
	}()
	<-entered

	if err := ctrl.SetQuery(context.Background(), Query{Category: "engineering"}); err != nil {
		t.Fatalf("SetQuery: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("HandleScroll: %v", err)
	}

	prompts := ctrl.Prompts()
	if len(prompts) != len(newItems) {
		t.Fatalf("list length = %d, want %d (stale append must be dropped)", len(prompts), len(newItems))
	}
	for i, p := range prompts {
		if p.ID != newItems[i].ID {
			t.Fatalf("unexpected prompt %s at %d", p.ID, i)
		}
	}
	if ctrl.State() != StateIdle {
		t.Fatalf("state = %s, want idle", ctrl.State())
	}
}

func TestScrollEvaluationThrottled(t *testing.T) {
	var calls int
	fetcher := FetcherFunc(func(_ context.Context, _ Query, page, _ int) (Page, error) {
		calls++
		return Page{Prompts: makePrompts("p", 12*(page-1)+1, 12), Total: 60, Page: page, TotalPages: 5}, nil
	})

	clock := newFakeClock()
	seed := Page{Prompts: makePrompts("p", 1, 12), Total: 60, Page: 1, TotalPages: 5}
	ctrl, err := New(fetcher, Query{}, seed, InteractionState{}, Options{Now: clock.Now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := ctrl.HandleScroll(context.Background()); err != nil {
		t.Fatalf("HandleScroll: %v", err)
	}
	// 150ms 窗口内的重复评估被合并掉。
	clock.Advance(50 * time.Millisecond)
	if err := ctrl.HandleScroll(context.Background()); err != nil {
		t.Fatalf("HandleScroll: %v", err)
	}
	if calls != 1 {
		t.Fatalf("fetch calls = %d, want 1 within throttle window", calls)
	}

	clock.Advance(200 * time.Millisecond)
	if err := ctrl.HandleScroll(context.Background()); err != nil {
		t.Fatalf("HandleScroll: %v", err)
	}
	if calls != 2 {
		t.Fatalf("fetch calls = %d, want 2 after throttle window", calls)
	}
}

func TestSingleLoadMoreInFlight(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	entered := make(chan struct{})
	release := make(chan struct{})
	fetcher := FetcherFunc(func(_ context.Context, _ Query, page, _ int) (Page, error) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			close(entered)
			<-release
		}
		return Page{Prompts: makePrompts("p", 13, 8), Total: 20, Page: page, TotalPages: 2}, nil
	})

	clock := newFakeClock()
	seed := Page{Prompts: makePrompts("p", 1, 12), Total: 20, Page: 1, TotalPages: 2}
	ctrl, err := New(fetcher, Query{}, seed, InteractionState{}, Options{Now: clock.Now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- ctrl.HandleScroll(context.Background())
	}()
	<-entered

	// 节流窗口已过，但同步的在途标志仍要拦下第二次追加。
	clock.Advance(time.Second)
	if err := ctrl.HandleScroll(context.Background()); err != nil {
		t.Fatalf("HandleScroll: %v", err)
	}

	mu.Lock()
	got := calls
	mu.Unlock()
	if got != 1 {
		t.Fatalf("fetch calls = %d, want 1 while a load-more is in flight", got)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("HandleScroll: %v", err)
	}
	if len(ctrl.Prompts()) != 20 {
		t.Fatalf("list length = %d, want 20", len(ctrl.Prompts()))
	}
}

func TestFetchFailureKeepsListAndNotifies(t *testing.T) {
	fetchErr := errors.New("boom")
	fetcher := FetcherFunc(func(_ context.Context, _ Query, _, _ int) (Page, error) {
		return Page{}, fetchErr
	})

	var notified error
	clock := newFakeClock()
	seed := Page{Prompts: makePrompts("p", 1, 12), Total: 20, Page: 1, TotalPages: 2}
	ctrl, err := New(fetcher, Query{}, seed, InteractionState{}, Options{
		Now:     clock.Now,
		OnError: func(err error) { notified = err },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := ctrl.HandleScroll(context.Background()); !errors.Is(err, fetchErr) {
		t.Fatalf("HandleScroll error = %v, want %v", err, fetchErr)
	}
	if notified == nil || !errors.Is(notified, fetchErr) {
		t.Fatalf("error callback got %v, want wrapped %v", notified, fetchErr)
	}
	if got := len(ctrl.Prompts()); got != 12 {
		t.Fatalf("list length after failure = %d, want 12 (previous content kept)", got)
	}
	if ctrl.State() != StateIdle {
		t.Fatalf("state = %s, want idle after failure", ctrl.State())
	}
}

func TestFirstNavigationSyncIsNoop(t *testing.T) {
	var calls int
	fetcher := FetcherFunc(func(_ context.Context, _ Query, page, _ int) (Page, error) {
		calls++
		return Page{Prompts: makePrompts("n", 1, 3), Total: 3, Page: page, TotalPages: 1}, nil
	})

	initial := Query{Sort: "newest"}
	seed := Page{Prompts: makePrompts("p", 1, 12), Total: 12, Page: 1, TotalPages: 1}
	ctrl, err := New(fetcher, initial, seed, InteractionState{}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// 首次同步：初始数据已由构造方提供，不得重复拉取。
	if err := ctrl.SyncNavigation(context.Background(), initial); err != nil {
		t.Fatalf("SyncNavigation: %v", err)
	}
	if calls != 0 {
		t.Fatalf("fetch calls after first sync = %d, want 0", calls)
	}

	// 相同条件的后续同步也不触发请求。
	if err := ctrl.SyncNavigation(context.Background(), initial); err != nil {
		t.Fatalf("SyncNavigation: %v", err)
	}
	if calls != 0 {
		t.Fatalf("fetch calls after same-query sync = %d, want 0", calls)
	}

	// 条件变化才触发整页替换。
	if err := ctrl.SyncNavigation(context.Background(), Query{Sort: "views"}); err != nil {
		t.Fatalf("SyncNavigation: %v", err)
	}
	if calls != 1 {
		t.Fatalf("fetch calls after changed sync = %d, want 1", calls)
	}
	if got := len(ctrl.Prompts()); got != 3 {
		t.Fatalf("list length = %d, want 3 after replace", got)
	}
}

func TestInteractionOverlayMergedNotReresolved(t *testing.T) {
	all := makePrompts("p", 1, 20)
	var calls int
	fetcher := FetcherFunc(func(_ context.Context, _ Query, page, limit int) (Page, error) {
		calls++
		start := (page - 1) * limit
		return Page{Prompts: all[start : start+8], Total: 20, Page: page, TotalPages: 2}, nil
	})

	clock := newFakeClock()
	seed := Page{Prompts: all[:12], Total: 20, Page: 1, TotalPages: 2}
	state := InteractionState{
		UpvotedIDs:    []string{"p-001", "p-003"},
		BookmarkedIDs: []string{"p-002"},
	}
	ctrl, err := New(fetcher, Query{}, seed, state, Options{Now: clock.Now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	prompts := ctrl.Prompts()
	if !prompts[0].Upvoted || !prompts[2].Upvoted {
		t.Fatal("initial upvote state not merged")
	}
	if !prompts[1].Bookmarked {
		t.Fatal("initial bookmark state not merged")
	}
	if prompts[3].Upvoted || prompts[3].Bookmarked {
		t.Fatal("unexpected interaction flags on untouched prompt")
	}

	ctrl.ApplyUpvote("p-004", true, 7)
	ctrl.ApplyBookmark("p-001", true)
	ctrl.ApplyUpvote("p-001", false, 2)

	if err := ctrl.HandleScroll(context.Background()); err != nil {
		t.Fatalf("HandleScroll: %v", err)
	}
	if calls != 1 {
		t.Fatalf("fetch calls = %d, want 1 (no interaction re-resolution per append)", calls)
	}

	prompts = ctrl.Prompts()
	byID := make(map[string]Prompt, len(prompts))
	for _, p := range prompts {
		byID[p.ID] = p
	}
	if p := byID["p-004"]; !p.Upvoted || p.UpvoteCount != 7 {
		t.Fatalf("optimistic upvote lost: %+v", p)
	}
	if p := byID["p-001"]; p.Upvoted || !p.Bookmarked || p.UpvoteCount != 2 {
		t.Fatalf("toggle-back state wrong: %+v", p)
	}
}

func TestOnboardingDismissalPersistedViaPrefStore(t *testing.T) {
	fetcher := FetcherFunc(func(_ context.Context, _ Query, page, _ int) (Page, error) {
		return Page{Page: page, TotalPages: 0}, nil
	})
	prefs := NewMemoryPrefStore()
	ctrl, err := New(fetcher, Query{}, Page{Page: 1}, InteractionState{}, Options{Prefs: prefs})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if ctrl.OnboardingDismissed() {
		t.Fatal("onboarding should start undismissed")
	}
	ctrl.DismissOnboarding()
	if !ctrl.OnboardingDismissed() {
		t.Fatal("dismissal not persisted")
	}

	again, err := New(fetcher, Query{}, Page{Page: 1}, InteractionState{}, Options{Prefs: prefs})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !again.OnboardingDismissed() {
		t.Fatal("dismissal not shared through injected store")
	}
}
