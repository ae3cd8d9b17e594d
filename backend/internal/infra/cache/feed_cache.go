package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// FeedCache 缓存发现页的查询结果。
// 失效策略是整体失效：任何写操作都会让全部缓存条目立即不可见。
type FeedCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	InvalidateAll(ctx context.Context) error
}

const (
	defaultFeedPrefix = "feed"
	versionSuffix     = "ver"
)

// RedisFeedCache 基于 Redis 实现短 TTL 的结果缓存。
// 所有条目共享一个版本号，失效时仅自增版本号，旧条目等待 TTL 自然过期，
// 无需 SCAN 遍历删除。
type RedisFeedCache struct {
	client *redis.Client
	prefix string
}

// NewRedisFeedCache 构造 Redis 缓存，可自定义 key 前缀。
func NewRedisFeedCache(client *redis.Client, prefix string) *RedisFeedCache {
	if prefix == "" {
		prefix = defaultFeedPrefix
	}
	return &RedisFeedCache{client: client, prefix: prefix}
}

// Get 读取当前版本命名空间下的缓存条目。
func (c *RedisFeedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}

	version, err := c.currentVersion(ctx)
	if err != nil {
		return nil, false, err
	}

	payload, err := c.client.Get(ctx, c.entryKey(version, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("feed cache get: %w", err)
	}
	return payload, true, nil
}

// Set 在当前版本命名空间下写入缓存条目。
func (c *RedisFeedCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	version, err := c.currentVersion(ctx)
	if err != nil {
		return err
	}

	if err := c.client.Set(ctx, c.entryKey(version, key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("feed cache set: %w", err)
	}
	return nil
}

// InvalidateAll 自增版本号，使全部缓存条目立即不可见。
func (c *RedisFeedCache) InvalidateAll(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, c.versionKey()).Err(); err != nil {
		return fmt.Errorf("feed cache invalidate: %w", err)
	}
	return nil
}

func (c *RedisFeedCache) currentVersion(ctx context.Context) (int64, error) {
	raw, err := c.client.Get(ctx, c.versionKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("feed cache version: %w", err)
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse feed cache version: %w", err)
	}
	return version, nil
}

func (c *RedisFeedCache) versionKey() string {
	return c.prefix + ":" + versionSuffix
}

func (c *RedisFeedCache) entryKey(version int64, key string) string {
	return fmt.Sprintf("%s:v%d:%s", c.prefix, version, key)
}

// MemoryFeedCache 是 Redis 不可用时的内存替代实现，仅用于开发环境与测试。
type MemoryFeedCache struct {
	mu      sync.Mutex
	version int64
	entries map[string]memoryEntry
}

type memoryEntry struct {
	payload []byte
	version int64
	expires time.Time
}

// NewMemoryFeedCache 构建内存缓存。
func NewMemoryFeedCache() *MemoryFeedCache {
	return &MemoryFeedCache{entries: make(map[string]memoryEntry)}
}

// Get 读取未过期且版本一致的缓存条目。
func (c *MemoryFeedCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok || ent.version != c.version || time.Now().After(ent.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return ent.payload, true, nil
}

// Set 写入缓存条目并记录当前版本。
func (c *MemoryFeedCache) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{
		payload: payload,
		version: c.version,
		expires: time.Now().Add(ttl),
	}
	return nil
}

// InvalidateAll 自增版本号并清空存量条目。
func (c *MemoryFeedCache) InvalidateAll(_ context.Context) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.version++
	c.entries = make(map[string]memoryEntry)
	return nil
}
