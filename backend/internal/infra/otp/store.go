package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCodeNotFound = errors.New("otp code not found or expired")
	ErrCodeMismatch = errors.New("otp code mismatch")
)

const (
	defaultPrefix = "otp"
	defaultTTL    = 10 * time.Minute
	codeLength    = 6
)

// Store 保存注册验证码，校验成功后一次性消费。
type Store interface {
	Save(ctx context.Context, email, code string) error
	VerifyAndConsume(ctx context.Context, email, code string) error
}

// GenerateCode 生成 6 位数字验证码，使用加密随机源。
func GenerateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeLength, n), nil
}

// RedisStore 把验证码写入 Redis，依赖 TTL 自动过期。
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore 构造 Redis 验证码存储。
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Save 覆盖写入邮箱对应的验证码，重复请求以最新一条为准。
func (s *RedisStore) Save(ctx context.Context, email, code string) error {
	if err := s.client.Set(ctx, s.key(email), code, s.ttl).Err(); err != nil {
		return fmt.Errorf("store otp code: %w", err)
	}
	return nil
}

// VerifyAndConsume 校验验证码并删除，失败时返回明确错误。
// 无论比对结果如何都先删除，防止暴力枚举同一条验证码。
func (s *RedisStore) VerifyAndConsume(ctx context.Context, email, code string) error {
	key := s.key(email)
	stored, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrCodeNotFound
	}
	if err != nil {
		return fmt.Errorf("get otp code: %w", err)
	}

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete otp code: %w", err)
	}

	if subtleEqual(stored, code) {
		return nil
	}
	return ErrCodeMismatch
}

func (s *RedisStore) key(email string) string {
	return s.prefix + ":" + strings.ToLower(strings.TrimSpace(email))
}

// MemoryStore 是 Redis 不可用时的内存实现，仅用于开发环境与测试。
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	codes map[string]memoryCode
}

type memoryCode struct {
	code    string
	expires time.Time
}

// NewMemoryStore 构造内存验证码存储。
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MemoryStore{ttl: ttl, codes: make(map[string]memoryCode)}
}

// Save 覆盖写入邮箱对应的验证码。
func (s *MemoryStore) Save(_ context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.codes[normalizeEmail(email)] = memoryCode{code: code, expires: time.Now().Add(s.ttl)}
	return nil
}

// VerifyAndConsume 校验验证码并删除。
func (s *MemoryStore) VerifyAndConsume(_ context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeEmail(email)
	stored, ok := s.codes[key]
	if !ok || time.Now().After(stored.expires) {
		delete(s.codes, key)
		return ErrCodeNotFound
	}

	delete(s.codes, key)
	if subtleEqual(stored.code, code) {
		return nil
	}
	return ErrCodeMismatch
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// subtleEqual 常数时间比较两段验证码。
func subtleEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := 0; i < len(a); i++ {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
