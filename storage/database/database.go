package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"otelsamples/config"
	pkgdb "otelsamples/pkg/database"
	"otelsamples/pkg/logger"
)

var (
	db   *gorm.DB
	dbMu sync.Mutex
)

// Options 打开数据库所需的参数
type Options struct {
	Driver      string // sqlite, postgres
	DSN         string
	ServiceName string
	MaxIdle     int
	MaxOpen     int
}

// OptionsFromConfig 从全局配置构造 Options
func OptionsFromConfig(cfg config.Config) Options {
	opts := Options{
		Driver:      cfg.DBDriver,
		ServiceName: cfg.ServiceName,
		MaxIdle:     cfg.PostgreSQLMaxIdle,
		MaxOpen:     cfg.PostgreSQLMaxOpen,
	}
	if cfg.DBDriver == "postgres" {
		opts.DSN = cfg.GetDSN()
	} else {
		opts.DSN = cfg.SQLitePath
	}
	return opts
}

// Init 打开数据库、迁移，并在开发环境写入示例数据
func Init() error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db != nil {
		return nil
	}

	gormDB, err := Open(OptionsFromConfig(config.Cfg))
	if err != nil {
		return err
	}

	if err := Migrate(gormDB); err != nil {
		return fmt.Errorf("failed to run database migration: %w", err)
	}
	if config.Cfg.IsDevelopment() {
		if err := Seed(context.Background(), gormDB); err != nil {
			logger.Logger.Warn("Failed to seed development data", zap.Error(err))
		}
	}

	db = gormDB
	logger.Logger.Info("Database initialized successfully",
		zap.String("driver", config.Cfg.DBDriver),
	)
	return nil
}

// Open 打开数据库连接并安装 OTEL 插件
func Open(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "postgres":
		dialector = postgres.Open(opts.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		logger.Logger.Error("Failed to open database", zap.String("driver", opts.Driver), zap.Error(err))
		return nil, err
	}

	if err := pkgdb.WithOTELPlugin(gormDB, pkgdb.PluginConfig{
		ServiceName: opts.ServiceName,
		DBName:      opts.Driver,
	}); err != nil {
		return nil, fmt.Errorf("failed to install otel plugin: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, err
	}
	configureConnectionPool(sqlDB, opts)

	if err := sqlDB.Ping(); err != nil {
		logger.Logger.Error("Failed to ping database", zap.Error(err))
		return nil, err
	}
	return gormDB, nil
}

func DB() *gorm.DB {
	dbMu.Lock()
	defer dbMu.Unlock()
	return db
}

// Ping 供健康检查使用
func Ping(ctx context.Context, gormDB *gorm.DB) error {
	if gormDB == nil {
		return gorm.ErrInvalidDB
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close(ctx context.Context) error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	db = nil

	done := make(chan error, 1)
	go func() {
		done <- sqlDB.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func configureConnectionPool(sqlDB *sql.DB, opts Options) {
	if opts.Driver != "postgres" {
		// sqlite 只允许单写连接
		sqlDB.SetMaxOpenConns(1)
		return
	}
	sqlDB.SetMaxIdleConns(opts.MaxIdle)
	sqlDB.SetMaxOpenConns(opts.MaxOpen)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	sqlDB.SetConnMaxLifetime(2 * time.Hour)
}
