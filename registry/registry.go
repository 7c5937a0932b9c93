package registry

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"civic-governance-backend/model"
	"civic-governance-backend/models"
)

// ErrUnknownRole 未知角色
var ErrUnknownRole = errors.New("unknown role")

// Registry is the gorm-backed role registry. It answers the engines' role
// predicates and applies grant intents relayed from the outbox.
type Registry struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New 创建角色登记表
func New(db *gorm.DB, logger zerolog.Logger) *Registry {
	return &Registry{db: db, logger: logger.With().Str("component", "registry").Logger()}
}

func (r *Registry) has(ctx context.Context, account string, role model.Role) (bool, error) {
	if account == "" {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&models.RoleAssignment{}).
		Where("account = ? AND role = ?", account, string(role)).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrapf(err, "lookup %s role", role)
	}
	return count > 0, nil
}

func (r *Registry) IsAdmin(ctx context.Context, account string) (bool, error) {
	return r.has(ctx, account, model.RoleAdmin)
}

func (r *Registry) IsPoliticalActor(ctx context.Context, account string) (bool, error) {
	return r.has(ctx, account, model.RolePoliticalActor)
}

func (r *Registry) IsCitizen(ctx context.Context, account string) (bool, error) {
	return r.has(ctx, account, model.RoleCitizen)
}

// PoliticalActorCredit returns the allowance recorded with the political
// actor role, zero when the account does not hold it.
func (r *Registry) PoliticalActorCredit(ctx context.Context, account string) (uint64, error) {
	var row models.RoleAssignment
	err := r.db.WithContext(ctx).
		Where("account = ? AND role = ?", account, string(model.RolePoliticalActor)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "lookup political actor credit")
	}
	return row.Credit, nil
}

func (r *Registry) CountCitizens(ctx context.Context) (uint64, error) {
	n, err := r.CountRole(ctx, model.RoleCitizen)
	return uint64(n), err
}

// CountRole 统计持有某角色的账户数
func (r *Registry) CountRole(ctx context.Context, role model.Role) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.RoleAssignment{}).Where("role = ?", string(role)).Count(&n).Error
	return n, errors.Wrapf(err, "count %s", role)
}

// Grant records role for account. Re-granting replaces the credit, so a
// political actor re-elected with a different share gets the new allowance.
func (r *Registry) Grant(ctx context.Context, account string, role model.Role, credit uint64, source string) error {
	if !role.Valid() {
		return errors.Wrapf(ErrUnknownRole, "%q", role)
	}
	if account == "" {
		return errors.New("grant: empty account")
	}
	now := time.Now()
	row := models.RoleAssignment{
		Account:   account,
		Role:      string(role),
		Credit:    credit,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}, {Name: "role"}},
		DoUpdates: clause.AssignmentColumns([]string{"credit", "source", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return errors.Wrapf(err, "grant %s to %s", role, account)
	}
	r.logger.Info().Str("account", account).Str("role", string(role)).Uint64("credit", credit).Str("source", source).Msg("role granted")
	return nil
}

// Revoke 撤销角色
func (r *Registry) Revoke(ctx context.Context, account string, role model.Role) error {
	err := r.db.WithContext(ctx).
		Where("account = ? AND role = ?", account, string(role)).
		Delete(&models.RoleAssignment{}).Error
	return errors.Wrapf(err, "revoke %s from %s", role, account)
}

// Roles lists the roles held by account.
func (r *Registry) Roles(ctx context.Context, account string) ([]model.Role, error) {
	var names []string
	err := r.db.WithContext(ctx).Model(&models.RoleAssignment{}).
		Where("account = ?", account).Order("role").Pluck("role", &names).Error
	if err != nil {
		return nil, errors.Wrap(err, "list roles")
	}
	roles := make([]model.Role, 0, len(names))
	for _, n := range names {
		roles = append(roles, model.Role(n))
	}
	return roles, nil
}

// ApplyGrant applies a relayed grant intent. Applying the same intent twice
// leaves the registry unchanged.
func (r *Registry) ApplyGrant(ctx context.Context, intent model.GrantIntent) error {
	return r.Grant(ctx, intent.Account, intent.Role, intent.Credit, "intent:"+intent.ID)
}

// PublishGrant lets the outbox relay write straight to the registry when no
// message queue is configured.
func (r *Registry) PublishGrant(ctx context.Context, intent model.GrantIntent) error {
	return r.ApplyGrant(ctx, intent)
}

// BootstrapAdmins grants ADMIN to every configured account.
func (r *Registry) BootstrapAdmins(ctx context.Context, accounts []string) error {
	for _, a := range accounts {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if err := r.Grant(ctx, a, model.RoleAdmin, 0, "bootstrap"); err != nil {
			return err
		}
	}
	return nil
}
