package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"prompthub/backend/internal/config"
	promptdomain "prompthub/backend/internal/domain/prompt"
	userdomain "prompthub/backend/internal/domain/user"
	infra "prompthub/backend/internal/infra/client"
	appLogger "prompthub/backend/internal/infra/logger"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Resources 汇总应用运行所需的共享资源：数据库、Redis 与运行期配置。
// Redis 为可选依赖，未配置时各组件自动退化为内存实现。
type Resources struct {
	Config config.Runtime
	DB     *gorm.DB
	SQLDB  *sql.DB
	Redis  *redis.Client
}

// Bootstrap 加载配置、建立数据库连接并完成表结构迁移。
func Bootstrap(ctx context.Context) (*Resources, error) {
	cfg := config.LoadRuntime()

	db, sqlDB, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if err := autoMigrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	redisClient, err := openRedis(ctx)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &Resources{
		Config: cfg,
		DB:     db,
		SQLDB:  sqlDB,
		Redis:  redisClient,
	}, nil
}

// openDatabase 按配置选择 MySQL 或 SQLite。
func openDatabase(cfg config.Runtime) (*gorm.DB, *sql.DB, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		db, sqlDB, err := infra.NewGORMSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return db, sqlDB, nil
	case config.DriverMySQL:
		mysqlCfg, err := infra.LoadMySQLConfigFromEnv()
		if err != nil {
			return nil, nil, fmt.Errorf("load mysql config: %w", err)
		}
		db, sqlDB, err := infra.NewGORMMySQL(mysqlCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mysql: %w", err)
		}
		return db, sqlDB, nil
	default:
		return nil, nil, fmt.Errorf("unsupported db driver: %s", cfg.DBDriver)
	}
}

// openRedis 读取 Redis 配置；未配置时返回 nil，调用方各自退化为内存实现。
func openRedis(_ context.Context) (*redis.Client, error) {
	opts, err := infra.NewDefaultRedisOptions()
	if err != nil {
		appLogger.S().Infow("redis not configured, falling back to in-memory stores", "reason", err)
		return nil, nil
	}

	client, err := infra.NewRedisClient(opts)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// autoMigrate 维护全部业务表结构。
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&userdomain.User{},
		&promptdomain.Prompt{},
		&promptdomain.Upvote{},
		&promptdomain.Bookmark{},
		&promptdomain.Comment{},
	)
}

// Close 释放数据库与 Redis 连接。
func (r *Resources) Close() error {
	if r == nil {
		return nil
	}
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			log.Printf("close redis error: %v", err)
		}
	}
	if r.SQLDB != nil {
		if err := r.SQLDB.Close(); err != nil {
			return err
		}
	}
	return nil
}
