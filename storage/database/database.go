package database

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"

	"HabitPact/config"
	"HabitPact/internal/model"
	pkgdb "HabitPact/pkg/database"
	"HabitPact/pkg/logger"
)

var (
	db     *gorm.DB
	dbOnce sync.Once
	dbErr  error
)

// Options 打开连接时共用的 gorm 配置
func Options() *gorm.Config {
	return &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		PrepareStmt:                              true,
		SkipDefaultTransaction:                   true,
		TranslateError:                           true,
	}
}

func Init() error {
	dbOnce.Do(func() {
		cfg := config.Cfg

		var gormDB *gorm.DB
		gormDB, dbErr = gorm.Open(postgres.Open(cfg.GetDSN()), Options())
		if dbErr != nil {
			logger.Logger.Error("Failed to open database", zap.String("dsn", "please check database connection"), zap.Error(dbErr))
			return
		}

		if dbErr = registerReplica(gormDB, cfg); dbErr != nil {
			logger.Logger.Error("Failed to register read replica", zap.Error(dbErr))
			return
		}

		if err := pkgdb.WithDefaultOTELPlugin(gormDB, cfg.ServiceName); err != nil {
			logger.Logger.Warn("Failed to register gorm otel plugin", zap.Error(err))
		}

		sqlDB, err := gormDB.DB()
		if err != nil {
			dbErr = err
			logger.Logger.Error("Failed to get sql.DB from gorm", zap.Error(err))
			return
		}

		configureConnectionPool(sqlDB)

		if err := sqlDB.Ping(); err != nil {
			dbErr = err
			logger.Logger.Error("Failed to ping database", zap.Error(err))
			return
		}

		db = gormDB
		if err := Migrate(db); err != nil {
			dbErr = err
			return
		}
		logger.Logger.Info("Database initialized successfully")
	})

	return dbErr
}

// registerReplica 账本导出等只读查询走副本，事务与写入始终在主库
func registerReplica(gormDB *gorm.DB, cfg config.Config) error {
	dsn := cfg.GetReplicaDSN()
	if dsn == "" {
		return nil
	}

	return gormDB.Use(dbresolver.Register(dbresolver.Config{
		Replicas:          []gorm.Dialector{postgres.Open(dsn)},
		Policy:            dbresolver.RandomPolicy{},
		TraceResolverMode: true,
	}, &model.LedgerEntry{}).
		SetMaxIdleConns(cfg.PostgreSQLMaxIdle).
		SetMaxOpenConns(cfg.PostgreSQLMaxOpen).
		SetConnMaxIdleTime(10 * time.Minute).
		SetConnMaxLifetime(2 * time.Hour))
}

func DB() *gorm.DB {
	return db
}

func Close(ctx context.Context) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

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

func configureConnectionPool(sqlDB *sql.DB) {
	cfg := config.Cfg

	sqlDB.SetMaxIdleConns(cfg.PostgreSQLMaxIdle)
	sqlDB.SetMaxOpenConns(cfg.PostgreSQLMaxOpen)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	sqlDB.SetConnMaxLifetime(2 * time.Hour)
}
