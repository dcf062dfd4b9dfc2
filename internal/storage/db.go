package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenDB connects to the users database and migrates the schema.
// driver is "postgres" or "sqlite". gorm's own warnings go to log.
func OpenDB(driver, dsn string, log *logger.Logger) (*gorm.DB, error) {
	if log == nil {
		log = logger.Nop()
	}

	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if driver == "sqlite" {
		// SQLite has a single writer; one connection avoids SQLITE_BUSY under concurrent handlers.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&models.User{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return db, nil
}

// gormWriter sends gorm's log lines to the zap logger.
type gormWriter struct {
	log *logger.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// newGormLogger reports slow queries and failures. A missing row is an
// expected outcome (an empty queue) and is not logged.
func newGormLogger(log *logger.Logger) gormlogger.Interface {
	return gormlogger.New(
		gormWriter{log: log.With("component", "gorm")},
		gormlogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
