package auth_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	userdomain "prompthub/backend/internal/domain/user"
	"prompthub/backend/internal/infra/otp"
	"prompthub/backend/internal/infra/ratelimit"
	"prompthub/backend/internal/infra/token"
	"prompthub/backend/internal/repository"
	"prompthub/backend/internal/service/auth"

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

	if err := db.AutoMigrate(&userdomain.User{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

// captureSender 把最近一次发出的验证码留在内存里，代替真实邮件通道。
type captureSender struct {
	lastEmail string
	lastCode  string
}

func (c *captureSender) SendOTP(_ context.Context, toEmail, _ string, code string) error {
	c.lastEmail = toEmail
	c.lastCode = code
	return nil
}

func newTestService(t *testing.T, db *gorm.DB, opts auth.Options) (*auth.Service, *captureSender) {
	t.Helper()

	sender := &captureSender{}
	if opts.EmailSender == nil {
		opts.EmailSender = sender
	}
	if opts.OTPStore == nil {
		opts.OTPStore = otp.NewMemoryStore(0)
	}

	users := repository.NewUserRepository(db)
	tokens := token.NewJWTManager("test-secret", 15*time.Minute, 24*time.Hour)
	store := token.NewMemoryRefreshTokenStore()
	return auth.NewService(users, tokens, store, opts), sender
}

func signupUser(t *testing.T, svc *auth.Service, sender *captureSender, email string) (*userdomain.User, auth.TokenPair) {
	t.Helper()
	ctx := context.Background()

	if err := svc.RequestOTP(ctx, auth.RequestOTPParams{Email: email}); err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	user, tokens, err := svc.Signup(ctx, auth.SignupParams{
		Name:     "Tester",
		Email:    email,
		Password: "secret123",
		Code:     sender.lastCode,
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	return user, tokens
}

func TestSignupFlowIssuesTokens(t *testing.T) {
	db := newTestDB(t)
	svc, sender := newTestService(t, db, auth.Options{})

	user, tokens := signupUser(t, svc, sender, "New.User@Example.com")

	// 邮箱统一小写存储。
	if user.Email != "new.user@example.com" {
		t.Fatalf("email = %q, want normalized", user.Email)
	}
	if user.Role != userdomain.RoleUser {
		t.Fatalf("role = %q, want USER", user.Role)
	}
	if user.EmailVerifiedAt == nil {
		t.Fatal("email verified timestamp missing")
	}
	if user.PasswordHash == "secret123" || user.PasswordHash == "" {
		t.Fatal("password stored without hashing")
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("tokens incomplete: %+v", tokens)
	}
	if sender.lastEmail != "new.user@example.com" {
		t.Fatalf("otp sent to %q", sender.lastEmail)
	}
}

func TestOTPCodeIsConsumedOnce(t *testing.T) {
	db := newTestDB(t)
	svc, sender := newTestService(t, db, auth.Options{})
	ctx := context.Background()

	if err := svc.RequestOTP(ctx, auth.RequestOTPParams{Email: "once@example.com"}); err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	code := sender.lastCode

	if _, _, err := svc.Signup(ctx, auth.SignupParams{
		Name: "Tester", Email: "once@example.com", Password: "secret123", Code: "000000",
	}); !errors.Is(err, auth.ErrOTPInvalid) && !errors.Is(err, auth.ErrOTPExpired) {
		t.Fatalf("wrong code error = %v", err)
	}

	// 验证码无论比对结果如何都被消费，正确的码此时也已失效。
	if _, _, err := svc.Signup(ctx, auth.SignupParams{
		Name: "Tester", Email: "once@example.com", Password: "secret123", Code: code,
	}); !errors.Is(err, auth.ErrOTPExpired) {
		t.Fatalf("reused code error = %v, want ErrOTPExpired", err)
	}
}

func TestRequestOTPRejectsTakenEmailAndRateLimits(t *testing.T) {
	db := newTestDB(t)
	svc, sender := newTestService(t, db, auth.Options{
		OTPLimiter: ratelimit.NewMemoryLimiter(),
		OTPLimit:   2,
		OTPWindow:  time.Hour,
	})
	ctx := context.Background()

	signupUser(t, svc, sender, "taken@example.com")
	if err := svc.RequestOTP(ctx, auth.RequestOTPParams{Email: "taken@example.com"}); !errors.Is(err, auth.ErrEmailTaken) {
		t.Fatalf("taken email error = %v, want ErrEmailTaken", err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.RequestOTP(ctx, auth.RequestOTPParams{Email: "fresh@example.com"}); err != nil {
			t.Fatalf("RequestOTP %d: %v", i, err)
		}
	}
	if err := svc.RequestOTP(ctx, auth.RequestOTPParams{Email: "fresh@example.com"}); !errors.Is(err, auth.ErrOTPRateLimited) {
		t.Fatalf("third request error = %v, want ErrOTPRateLimited", err)
	}
}

func TestLoginVerifiesPassword(t *testing.T) {
	db := newTestDB(t)
	svc, sender := newTestService(t, db, auth.Options{})
	ctx := context.Background()

	signupUser(t, svc, sender, "login@example.com")

	user, tokens, err := svc.Login(ctx, auth.LoginParams{Email: "Login@Example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("tokens incomplete: %+v", tokens)
	}

	var stored userdomain.User
	if err := db.Where("id = ?", user.ID).First(&stored).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if stored.LastLoginAt == nil {
		t.Fatal("last login timestamp not updated")
	}

	if _, _, err := svc.Login(ctx, auth.LoginParams{Email: "login@example.com", Password: "wrong"}); !errors.Is(err, auth.ErrInvalidLogin) {
		t.Fatalf("wrong password error = %v, want ErrInvalidLogin", err)
	}
	if _, _, err := svc.Login(ctx, auth.LoginParams{Email: "ghost@example.com", Password: "secret123"}); !errors.Is(err, auth.ErrInvalidLogin) {
		t.Fatalf("unknown email error = %v, want ErrInvalidLogin", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	db := newTestDB(t)
	svc, sender := newTestService(t, db, auth.Options{})
	ctx := context.Background()

	_, tokens := signupUser(t, svc, sender, "rotate@example.com")

	renewed, err := svc.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if renewed.RefreshToken == tokens.RefreshToken {
		t.Fatal("refresh token not rotated")
	}

	// 旧令牌单次使用，再次刷新必须被拒绝。
	if _, err := svc.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, auth.ErrRefreshTokenRevoked) {
		t.Fatalf("stale refresh error = %v, want ErrRefreshTokenRevoked", err)
	}

	if _, err := svc.Refresh(ctx, "not-a-token"); !errors.Is(err, auth.ErrRefreshTokenInvalid) {
		t.Fatalf("garbage refresh error = %v, want ErrRefreshTokenInvalid", err)
	}
	if _, err := svc.Refresh(ctx, ""); !errors.Is(err, auth.ErrRefreshTokenRequired) {
		t.Fatalf("empty refresh error = %v, want ErrRefreshTokenRequired", err)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	db := newTestDB(t)
	svc, sender := newTestService(t, db, auth.Options{})
	ctx := context.Background()

	_, tokens := signupUser(t, svc, sender, "logout@example.com")

	if err := svc.Logout(ctx, tokens.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, auth.ErrRefreshTokenRevoked) {
		t.Fatalf("refresh after logout error = %v, want ErrRefreshTokenRevoked", err)
	}
}
