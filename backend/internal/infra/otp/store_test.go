package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestGenerateCodeShape(t *testing.T) {
	code, err := GenerateCode()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %q", code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit in code %q", code)
		}
	}
}

func TestRedisStoreVerifyAndConsume(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisStore(client, "otptest", time.Minute)

	if err := store.Save(ctx, "User@Example.com", "123456"); err != nil {
		t.Fatalf("save: %v", err)
	}

	// 邮箱大小写不敏感。
	if err := store.VerifyAndConsume(ctx, "user@example.com", "123456"); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// 验证码是一次性的。
	if err := store.VerifyAndConsume(ctx, "user@example.com", "123456"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestRedisStoreMismatchConsumesCode(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisStore(client, "otptest", time.Minute)

	if err := store.Save(ctx, "a@b.c", "123456"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.VerifyAndConsume(ctx, "a@b.c", "000000"); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}
	// 错误尝试同样消费掉验证码。
	if err := store.VerifyAndConsume(ctx, "a@b.c", "123456"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound after mismatch, got %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Millisecond)

	if err := store.Save(ctx, "a@b.c", "123456"); err != nil {
		t.Fatalf("save: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := store.VerifyAndConsume(ctx, "a@b.c", "123456"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}
