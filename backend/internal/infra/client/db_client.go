package infra

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"prompthub/backend/internal/config"

	_ "github.com/go-sql-driver/mysql"
	mysqlDriver "gorm.io/driver/mysql"
	sqliteDriver "gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	defaultMySQLPort     = 3306
	defaultMySQLDatabase = "prompthub"
	defaultMySQLParams   = "charset=utf8mb4&parseTime=true&loc=Local"
)

// MySQLConfig 描述数据库连接配置项，全部从环境变量读取。
type MySQLConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
	Params   string
}

// LoadMySQLConfigFromEnv 读取 MYSQL_* 环境变量并填充默认值。
func LoadMySQLConfigFromEnv() (MySQLConfig, error) {
	config.LoadEnvFiles()

	cfg := MySQLConfig{
		Host:     strings.TrimSpace(os.Getenv("MYSQL_HOST")),
		Username: strings.TrimSpace(os.Getenv("MYSQL_USERNAME")),
		Password: os.Getenv("MYSQL_PASSWORD"),
		Database: strings.TrimSpace(os.Getenv("MYSQL_DATABASE")),
		Params:   strings.TrimSpace(os.Getenv("MYSQL_PARAMS")),
	}

	cfg.Port = defaultMySQLPort
	if raw := strings.TrimSpace(os.Getenv("MYSQL_PORT")); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return MySQLConfig{}, fmt.Errorf("parse MYSQL_PORT: %w", err)
		}
		cfg.Port = port
	}

	if cfg.Database == "" {
		cfg.Database = defaultMySQLDatabase
	}
	if cfg.Params == "" {
		cfg.Params = defaultMySQLParams
	}

	return cfg, nil
}

// NewGORMMySQL 创建 GORM 连接并返回 ORM 与底层 *sql.DB，便于控制生命周期。
func NewGORMMySQL(cfg MySQLConfig) (*gorm.DB, *sql.DB, error) {
	dsn, err := BuildMySQLDSN(cfg)
	if err != nil {
		return nil, nil, err
	}

	gormDB, err := gorm.Open(mysqlDriver.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("open gorm mysql: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("get sql db: %w", err)
	}

	sqlDB.SetConnMaxLifetime(60 * time.Minute)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("ping mysql: %w", err)
	}

	return gormDB, sqlDB, nil
}

// NewGORMSQLite 打开本地 SQLite 数据库，目录不存在时自动创建。
func NewGORMSQLite(path string) (*gorm.DB, *sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, fmt.Errorf("sqlite path is required")
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	gormDB, err := gorm.Open(sqliteDriver.Open(path), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("open gorm sqlite: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("get sql db: %w", err)
	}

	// SQLite 写并发能力有限，收紧连接数避免 database is locked。
	sqlDB.SetMaxOpenConns(1)

	return gormDB, sqlDB, nil
}

// validateMySQLConfig 校验配置字段是否完整。
func validateMySQLConfig(cfg MySQLConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("mysql host is required")
	}
	if cfg.Username == "" {
		return fmt.Errorf("mysql username is required")
	}
	if cfg.Password == "" {
		return fmt.Errorf("mysql password is required")
	}
	if cfg.Database == "" {
		return fmt.Errorf("mysql database is required")
	}
	return nil
}

// BuildMySQLDSN 在通过校验后拼接 MySQL DSN 字符串。
func BuildMySQLDSN(cfg MySQLConfig) (string, error) {
	if err := validateMySQLConfig(cfg); err != nil {
		return "", err
	}

	params := cfg.Params
	if params == "" {
		params = defaultMySQLParams
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
		params,
	)

	return dsn, nil
}
