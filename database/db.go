package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"civic-governance-backend/config"
	"civic-governance-backend/migrations"
	"civic-governance-backend/models"
)

// gormWriter 把 gorm 日志转到 zerolog
type gormWriter struct {
	logger zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.logger.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	default:
		return nil, errors.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// InitDB 初始化数据库连接并配置连接池
func InitDB(cfg config.DatabaseConfig, log zerolog.Logger) (*gorm.DB, error) {
	log = log.With().Str("component", "database").Str("driver", cfg.Driver).Logger()

	dial, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	slow := cfg.SlowThreshold
	if slow <= 0 {
		slow = time.Second
	}
	gormLogger := logger.New(gormWriter{logger: log}, logger.Config{
		SlowThreshold:             slow,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
	})

	db, err := gorm.Open(dial, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, errors.Wrap(err, "连接数据库失败")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "获取数据库连接失败")
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	log.Info().Msg("数据库连接成功")
	return db, nil
}

// Migrate 自动迁移全部模型，再补建索引
func Migrate(db *gorm.DB, log zerolog.Logger) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return errors.Wrap(err, "迁移模型失败")
	}
	if err := migrations.Apply(db, log.With().Str("component", "migrations").Logger()); err != nil {
		return err
	}
	log.Info().Int("tables", len(models.All())).Msg("数据库迁移完成")
	return nil
}

// CloseDB 关闭数据库连接
func CloseDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "获取数据库连接失败")
	}
	return errors.Wrap(sqlDB.Close(), "关闭数据库连接失败")
}
