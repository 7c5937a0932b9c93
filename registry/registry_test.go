package registry

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"civic-governance-backend/model"
	"civic-governance-backend/models"
)

func setupTestRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.RoleAssignment{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return New(db, zerolog.Nop())
}

func TestRolePredicates(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.BootstrapAdmins(ctx, []string{" root ", ""}))
	require.NoError(t, reg.Grant(ctx, "alice", model.RoleCitizen, 0, "test"))
	require.NoError(t, reg.Grant(ctx, "alice", model.RolePoliticalActor, 3, "test"))

	ok, err := reg.IsAdmin(ctx, "root")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.IsAdmin(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = reg.IsPoliticalActor(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	credit, err := reg.PoliticalActorCredit(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), credit)

	credit, err = reg.PoliticalActorCredit(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, credit)

	roles, err := reg.Roles(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []model.Role{model.RoleCitizen, model.RolePoliticalActor}, roles)

	n, err := reg.CountCitizens(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestGrantIsIdempotentAndUpdatesCredit(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()
	intent := model.GrantIntent{ID: uuid.NewString(), Account: "w", Role: model.RolePoliticalActor, Credit: 2}

	require.NoError(t, reg.ApplyGrant(ctx, intent))
	require.NoError(t, reg.PublishGrant(ctx, intent))

	n, err := reg.CountRole(ctx, model.RolePoliticalActor)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	intent.Credit = 5
	require.NoError(t, reg.ApplyGrant(ctx, intent))
	credit, err := reg.PoliticalActorCredit(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), credit)

	require.NoError(t, reg.Revoke(ctx, "w", model.RolePoliticalActor))
	ok, err := reg.IsPoliticalActor(ctx, "w")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGrantRejectsUnknownRole(t *testing.T) {
	reg := setupTestRegistry(t)
	err := reg.Grant(context.Background(), "x", model.Role("KING"), 0, "test")
	assert.ErrorIs(t, err, ErrUnknownRole)
}
