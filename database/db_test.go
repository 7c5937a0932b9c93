package database

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civic-governance-backend/config"
	"civic-governance-backend/models"
)

func memoryConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
	}
}

func TestInitDBAndMigrate(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	db, err := InitDB(memoryConfig(), log)
	require.NoError(t, err)
	defer func() { assert.NoError(t, CloseDB(db)) }()

	require.NoError(t, Migrate(db, log))
	for _, m := range models.All() {
		assert.True(t, db.Migrator().HasTable(m))
	}
	assert.True(t, db.Migrator().HasIndex(&models.Winner{}, "idx_winners_round_address"))

	// 重复迁移是幂等的
	require.NoError(t, Migrate(db, log))
	assert.Contains(t, buf.String(), "数据库迁移完成")
}

func TestInitDBUnknownDriver(t *testing.T) {
	_, err := InitDB(config.DatabaseConfig{Driver: "oracle", DSN: "x"}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}

func TestGormWriterRoutesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	w := gormWriter{logger: zerolog.New(&buf)}

	w.Printf("%s slow sql %d\n", "db.go:1", 42)
	assert.Contains(t, buf.String(), `"message":"db.go:1 slow sql 42"`)
}
