package feedclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPFetcher 通过 GET /api/prompts 拉取发现页数据，是 Fetcher 的
// 默认实现。AuthToken 非空时以 Bearer 方式携带，服务端会额外返回
// 当前用户的互动状态。
type HTTPFetcher struct {
	BaseURL   string
	AuthToken string
	Client    *http.Client
}

// NewHTTPFetcher 构造指向 baseURL 的 fetcher，自带 10s 超时。
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type feedPayload struct {
	Prompts    []Prompt `json:"prompts"`
	Total      int64    `json:"total"`
	Page       int      `json:"page"`
	TotalPages int      `json:"totalPages"`
	Viewer     struct {
		UpvotedIDs    []string `json:"upvotedIds"`
		BookmarkedIDs []string `json:"bookmarkedIds"`
	} `json:"interactionState"`
}

type feedEnvelope struct {
	Success bool        `json:"success"`
	Data    feedPayload `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// FetchPage 实现 Fetcher。
func (f *HTTPFetcher) FetchPage(ctx context.Context, query Query, page, limit int) (Page, error) {
	payload, err := f.fetch(ctx, query, page, limit)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Prompts:    payload.Prompts,
		Total:      payload.Total,
		Page:       payload.Page,
		TotalPages: payload.TotalPages,
	}, nil
}

// FetchInitial 拉取首屏：一页数据加当前用户的互动状态，结果直接
// 交给 New 构造控制器。
func (f *HTTPFetcher) FetchInitial(ctx context.Context, query Query, limit int) (Page, InteractionState, error) {
	payload, err := f.fetch(ctx, query, 1, limit)
	if err != nil {
		return Page{}, InteractionState{}, err
	}
	page := Page{
		Prompts:    payload.Prompts,
		Total:      payload.Total,
		Page:       payload.Page,
		TotalPages: payload.TotalPages,
	}
	state := InteractionState{
		UpvotedIDs:    payload.Viewer.UpvotedIDs,
		BookmarkedIDs: payload.Viewer.BookmarkedIDs,
	}
	return page, state, nil
}

func (f *HTTPFetcher) fetch(ctx context.Context, query Query, page, limit int) (feedPayload, error) {
	params := url.Values{}
	if query.Category != "" {
		params.Set("category", query.Category)
	}
	if query.AITool != "" {
		params.Set("aiTool", query.AITool)
	}
	if query.Difficulty != "" {
		params.Set("difficulty", query.Difficulty)
	}
	if query.Search != "" {
		params.Set("search", query.Search)
	}
	if query.Sort != "" {
		params.Set("sort", query.Sort)
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))

	endpoint := f.BaseURL + "/api/prompts?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return feedPayload{}, fmt.Errorf("build feed request: %w", err)
	}
	if f.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+f.AuthToken)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return feedPayload{}, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	var envelope feedEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return feedPayload{}, fmt.Errorf("decode feed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !envelope.Success {
		if envelope.Error != nil {
			return feedPayload{}, fmt.Errorf("feed request failed: %s (%s)", envelope.Error.Message, envelope.Error.Code)
		}
		return feedPayload{}, fmt.Errorf("feed request failed: status %d", resp.StatusCode)
	}
	return envelope.Data, nil
}
