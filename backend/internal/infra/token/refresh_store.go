package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRefreshPrefix = "auth:refresh"

// RedisRefreshTokenStore 使用 Redis 保存刷新令牌的 jti，支持多实例共享吊销状态。
// 记录的 TTL 与 refresh token 的 exp 保持一致，过期后自然失效。
type RedisRefreshTokenStore struct {
	client *redis.Client
	prefix string
}

// NewRedisRefreshTokenStore 构造 Redis 刷新令牌存储。
func NewRedisRefreshTokenStore(client *redis.Client, prefix string) *RedisRefreshTokenStore {
	if prefix == "" {
		prefix = defaultRefreshPrefix
	}
	return &RedisRefreshTokenStore{client: client, prefix: prefix}
}

func (s *RedisRefreshTokenStore) key(userID string, tokenID string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, userID, tokenID)
}

// Save 将刷新令牌存入 Redis，过期时间对齐 token 的 exp。
func (s *RedisRefreshTokenStore) Save(ctx context.Context, userID string, tokenID string, expiresAt time.Time) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis client not configured")
	}
	if tokenID == "" {
		return fmt.Errorf("token id required")
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}

	return s.client.Set(ctx, s.key(userID, tokenID), "1", ttl).Err()
}

// Delete 从 Redis 中移除刷新令牌，用于刷新轮换与主动登出。
func (s *RedisRefreshTokenStore) Delete(ctx context.Context, userID string, tokenID string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis client not configured")
	}
	if tokenID == "" {
		return nil
	}
	return s.client.Del(ctx, s.key(userID, tokenID)).Err()
}

// Exists 检查刷新令牌是否仍有效，不存在即视为已吊销。
func (s *RedisRefreshTokenStore) Exists(ctx context.Context, userID string, tokenID string) (bool, error) {
	if s == nil || s.client == nil {
		return false, fmt.Errorf("redis client not configured")
	}
	if tokenID == "" {
		return false, nil
	}
	count, err := s.client.Exists(ctx, s.key(userID, tokenID)).Result()
	if err != nil {
		return false, err
	}
	return count == 1, nil
}

// MemoryRefreshTokenStore 便于测试以及无 Redis 环境下的退化处理。
// 仅在当前进程内生效，服务重启后所有刷新令牌失效。
type MemoryRefreshTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]map[string]time.Time
}

// NewMemoryRefreshTokenStore 创建进程内刷新令牌存储。
func NewMemoryRefreshTokenStore() *MemoryRefreshTokenStore {
	return &MemoryRefreshTokenStore{tokens: make(map[string]map[string]time.Time)}
}

// Save 存储刷新令牌，外层 key 为 userID，内层为 tokenID -> expiresAt。
func (s *MemoryRefreshTokenStore) Save(_ context.Context, userID string, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return fmt.Errorf("token id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[userID]; !ok {
		s.tokens[userID] = make(map[string]time.Time)
	}
	s.tokens[userID][tokenID] = expiresAt
	return nil
}

// Delete 移除刷新令牌，用户名下没有其它令牌时顺带清理外层 map。
func (s *MemoryRefreshTokenStore) Delete(_ context.Context, userID string, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bucket, ok := s.tokens[userID]; ok {
		delete(bucket, tokenID)
		if len(bucket) == 0 {
			delete(s.tokens, userID)
		}
	}
	return nil
}

// Exists 检测令牌是否存在且未过期，过期条目顺带清理。
func (s *MemoryRefreshTokenStore) Exists(_ context.Context, userID string, tokenID string) (bool, error) {
	s.mu.RLock()
	bucket, ok := s.tokens[userID]
	if !ok {
		s.mu.RUnlock()
		return false, nil
	}
	expiresAt, ok := bucket[tokenID]
	if !ok {
		s.mu.RUnlock()
		return false, nil
	}
	if time.Now().After(expiresAt) {
		s.mu.RUnlock()
		_ = s.Delete(context.Background(), userID, tokenID)
		return false, nil
	}
	s.mu.RUnlock()
	return true, nil
}
