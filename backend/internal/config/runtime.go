package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DriverMySQL 使用 MySQL 作为主存储。
	DriverMySQL = "mysql"
	// DriverSQLite 使用本地 SQLite，便于离线开发与演示环境。
	DriverSQLite = "sqlite"

	defaultPort         = "8080"
	defaultSQLitePath   = "data/prompthub.db"
	defaultAccessTTL    = 15 * time.Minute
	defaultRefreshTTL   = 7 * 24 * time.Hour
	defaultFeedCacheTTL = 60 * time.Second
	defaultFeedPageSize = 12
	defaultFeedPageMax  = 60
)

// Runtime 汇总服务启动所需的全部运行期配置。
type Runtime struct {
	Port       string
	DBDriver   string
	SQLitePath string

	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	FeedCacheTTL    time.Duration
	FeedPageSize    int
	FeedPageSizeMax int

	OTPRequestLimit  int
	OTPRequestWindow time.Duration
}

// LoadRuntime 读取环境变量并填充默认值，缺失关键配置时由调用方决定是否拒绝启动。
func LoadRuntime() Runtime {
	LoadEnvFiles()

	cfg := Runtime{
		Port:             strings.TrimSpace(os.Getenv("APP_PORT")),
		DBDriver:         strings.ToLower(strings.TrimSpace(os.Getenv("DB_DRIVER"))),
		SQLitePath:       strings.TrimSpace(os.Getenv("SQLITE_PATH")),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		AccessTTL:        durationFromEnv("JWT_ACCESS_TTL", defaultAccessTTL),
		RefreshTTL:       durationFromEnv("JWT_REFRESH_TTL", defaultRefreshTTL),
		FeedCacheTTL:     durationFromEnv("FEED_CACHE_TTL", defaultFeedCacheTTL),
		FeedPageSize:     intFromEnv("FEED_PAGE_SIZE", defaultFeedPageSize),
		FeedPageSizeMax:  intFromEnv("FEED_PAGE_SIZE_MAX", defaultFeedPageMax),
		OTPRequestLimit:  intFromEnv("OTP_REQUEST_LIMIT", 5),
		OTPRequestWindow: durationFromEnv("OTP_REQUEST_WINDOW", time.Hour),
	}

	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.DBDriver == "" {
		cfg.DBDriver = DriverMySQL
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = defaultSQLitePath
	}

	return cfg
}

// durationFromEnv 解析时间配置，支持 "60s"/"5m" 这类 Go duration 字符串。
func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// intFromEnv 解析正整数配置，非法值回退到默认值。
func intFromEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
