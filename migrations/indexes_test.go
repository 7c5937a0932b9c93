package migrations

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"civic-governance-backend/models"
)

func TestApplyCreatesIndexesOnce(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	require.NoError(t, Apply(db, zerolog.Nop()))
	for _, m := range indexMigrations {
		assert.True(t, db.Migrator().HasIndex(m.model, m.name), m.name)
	}

	// 第二次执行不会重复建索引
	require.NoError(t, Apply(db, zerolog.Nop()))
}

func TestApplyFailsWithoutTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = Apply(db, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "idx_winners_round_address")
}
