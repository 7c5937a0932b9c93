package migrations

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"civic-governance-backend/models"
)

// indexMigration 在 AutoMigrate 之后补建的复合索引
type indexMigration struct {
	name    string
	model   interface{}
	table   string
	columns string
}

var indexMigrations = []indexMigration{
	// 按届次查询胜出者
	{name: "idx_winners_round_address", model: &models.Winner{}, table: "winners", columns: "round, address"},
	// relay 按状态和时间扫描发件箱
	{name: "idx_grant_intents_status_created", model: &models.GrantIntent{}, table: "grant_intents", columns: "status, created_at"},
	{name: "idx_articles_voting_created", model: &models.Article{}, table: "articles", columns: "voting_key, created_at"},
}

// Apply 执行全部索引迁移，已存在的索引跳过
func Apply(db *gorm.DB, logger zerolog.Logger) error {
	for _, m := range indexMigrations {
		if err := ensureIndex(db, logger, m); err != nil {
			return err
		}
	}
	return nil
}

func ensureIndex(db *gorm.DB, logger zerolog.Logger, m indexMigration) error {
	log := logger.With().Str("migration", m.name).Logger()

	if db.Migrator().HasIndex(m.model, m.name) {
		log.Debug().Msg("迁移跳过: 索引已存在")
		return nil
	}

	stmt := "CREATE INDEX " + m.name + " ON " + m.table + " (" + m.columns + ")"
	if err := db.Exec(stmt).Error; err != nil {
		log.Error().Err(err).Msg("迁移失败")
		return errors.Wrapf(err, "create index %s", m.name)
	}
	log.Info().Msg("迁移成功")
	return nil
}
