package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"civic-governance-backend/model"
	"civic-governance-backend/models"
)

const singletonID = 1

// GormLedgerRepository 基于 GORM 的账本仓库实现
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository 创建账本仓库
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

func (r *GormLedgerRepository) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// Transaction 在单个数据库事务中执行 fn
func (r *GormLedgerRepository) Transaction(ctx context.Context, fn func(tx LedgerRepository) error) error {
	return r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormLedgerRepository{db: tx})
	})
}

func wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return errors.Wrap(err, op)
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(s int64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(s, 0).UTC()
}

func deleteAll(db *gorm.DB, value interface{}) error {
	return db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(value).Error
}

// ---- 选举周期 ----

func (r *GormLedgerRepository) GetElectionCycle(ctx context.Context) (*model.ElectionCycle, error) {
	var row models.ElectionCycle
	err := r.conn(ctx).First(&row, singletonID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.ElectionCycle{}, nil
	}
	if err != nil {
		return nil, wrap(err, "get election cycle")
	}
	return &model.ElectionCycle{
		PreElectionsStart: fromUnix(row.PreElectionsStart),
		PreElectionsEnd:   fromUnix(row.PreElectionsEnd),
		ElectionsStart:    fromUnix(row.ElectionsStart),
		ElectionsEnd:      fromUnix(row.ElectionsEnd),
		Round:             row.Round,
	}, nil
}

func (r *GormLedgerRepository) SaveElectionCycle(ctx context.Context, cycle *model.ElectionCycle) error {
	row := models.ElectionCycle{
		ID:                singletonID,
		PreElectionsStart: toUnix(cycle.PreElectionsStart),
		PreElectionsEnd:   toUnix(cycle.PreElectionsEnd),
		ElectionsStart:    toUnix(cycle.ElectionsStart),
		ElectionsEnd:      toUnix(cycle.ElectionsEnd),
		Round:             cycle.Round,
	}
	err := r.conn(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	return wrap(err, "save election cycle")
}

// ---- 预选 ----

func (r *GormLedgerRepository) CreatePreElectionCandidate(ctx context.Context, address string) error {
	err := r.conn(ctx).Create(&models.PreElectionCandidate{Address: address, Score: 1}).Error
	return wrap(err, "create pre-election candidate")
}

func (r *GormLedgerRepository) GetPreElectionCandidate(ctx context.Context, address string) (*model.PreElectionCandidate, error) {
	var row models.PreElectionCandidate
	if err := r.conn(ctx).Where("address = ?", address).First(&row).Error; err != nil {
		return nil, wrap(err, "get pre-election candidate")
	}
	return &model.PreElectionCandidate{Address: row.Address, Score: row.Score}, nil
}

func (r *GormLedgerRepository) ListPreElectionCandidates(ctx context.Context) ([]model.PreElectionCandidate, error) {
	var rows []models.PreElectionCandidate
	if err := r.conn(ctx).Order("created_at, address").Find(&rows).Error; err != nil {
		return nil, wrap(err, "list pre-election candidates")
	}
	out := make([]model.PreElectionCandidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.PreElectionCandidate{Address: row.Address, Score: row.Score})
	}
	return out, nil
}

func (r *GormLedgerRepository) IncrementPreElectionScore(ctx context.Context, address string) error {
	res := r.conn(ctx).Model(&models.PreElectionCandidate{}).
		Where("address = ?", address).
		UpdateColumn("score", gorm.Expr("score + ?", 1))
	if res.Error != nil {
		return wrap(res.Error, "increment pre-election score")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormLedgerRepository) AddPreElectionBallot(ctx context.Context, voter, candidate string) error {
	err := r.conn(ctx).Create(&models.PreElectionBallot{Voter: voter, Candidate: candidate}).Error
	return wrap(err, "add pre-election ballot")
}

func (r *GormLedgerRepository) GetPreElectionVote(ctx context.Context, voter string) (*model.PreElectionVote, error) {
	var rows []models.PreElectionBallot
	if err := r.conn(ctx).Where("voter = ?", voter).Order("id").Find(&rows).Error; err != nil {
		return nil, wrap(err, "get pre-election vote")
	}
	vote := &model.PreElectionVote{Voter: voter, Candidates: make([]string, 0, len(rows))}
	for _, row := range rows {
		vote.Candidates = append(vote.Candidates, row.Candidate)
	}
	return vote, nil
}

func (r *GormLedgerRepository) CountPreElectionVoters(ctx context.Context) (uint64, error) {
	var n int64
	if err := r.conn(ctx).Model(&models.PreElectionBallot{}).Distinct("voter").Count(&n).Error; err != nil {
		return 0, wrap(err, "count pre-election voters")
	}
	return uint64(n), nil
}

func (r *GormLedgerRepository) ClearPreElection(ctx context.Context) error {
	db := r.conn(ctx)
	if err := deleteAll(db, &models.PreElectionBallot{}); err != nil {
		return wrap(err, "clear pre-election ballots")
	}
	return wrap(deleteAll(db, &models.PreElectionCandidate{}), "clear pre-election candidates")
}

// ---- 正式选举 ----

func (r *GormLedgerRepository) CreateElectionCandidates(ctx context.Context, candidates []model.ElectionCandidate) error {
	if len(candidates) == 0 {
		return nil
	}
	rows := make([]models.ElectionCandidate, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, models.ElectionCandidate{Address: c.Address, Position: c.Position, Score: c.Score})
	}
	return wrap(r.conn(ctx).Create(&rows).Error, "create election candidates")
}

func (r *GormLedgerRepository) GetElectionCandidate(ctx context.Context, address string) (*model.ElectionCandidate, error) {
	var row models.ElectionCandidate
	if err := r.conn(ctx).Where("address = ?", address).First(&row).Error; err != nil {
		return nil, wrap(err, "get election candidate")
	}
	return &model.ElectionCandidate{Address: row.Address, Position: row.Position, Score: row.Score}, nil
}

func (r *GormLedgerRepository) ListElectionCandidates(ctx context.Context) ([]model.ElectionCandidate, error) {
	var rows []models.ElectionCandidate
	if err := r.conn(ctx).Order("position").Find(&rows).Error; err != nil {
		return nil, wrap(err, "list election candidates")
	}
	out := make([]model.ElectionCandidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.ElectionCandidate{Address: row.Address, Position: row.Position, Score: row.Score})
	}
	return out, nil
}

func (r *GormLedgerRepository) IncrementElectionScore(ctx context.Context, address string) error {
	res := r.conn(ctx).Model(&models.ElectionCandidate{}).
		Where("address = ?", address).
		UpdateColumn("score", gorm.Expr("score + ?", 1))
	if res.Error != nil {
		return wrap(res.Error, "increment election score")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormLedgerRepository) CreateElectionBallot(ctx context.Context, voter, candidate string) error {
	err := r.conn(ctx).Create(&models.ElectionBallot{Voter: voter, Candidate: candidate}).Error
	return wrap(err, "create election ballot")
}

func (r *GormLedgerRepository) GetElectionVote(ctx context.Context, voter string) (*model.ElectionVote, error) {
	var row models.ElectionBallot
	if err := r.conn(ctx).Where("voter = ?", voter).First(&row).Error; err != nil {
		return nil, wrap(err, "get election vote")
	}
	return &model.ElectionVote{Voter: row.Voter, Candidate: row.Candidate}, nil
}

func (r *GormLedgerRepository) CountElectionVoters(ctx context.Context) (uint64, error) {
	var n int64
	if err := r.conn(ctx).Model(&models.ElectionBallot{}).Count(&n).Error; err != nil {
		return 0, wrap(err, "count election voters")
	}
	return uint64(n), nil
}

func (r *GormLedgerRepository) ClearElection(ctx context.Context) error {
	db := r.conn(ctx)
	if err := deleteAll(db, &models.ElectionBallot{}); err != nil {
		return wrap(err, "clear election ballots")
	}
	return wrap(deleteAll(db, &models.ElectionCandidate{}), "clear election candidates")
}

func (r *GormLedgerRepository) CreateWinners(ctx context.Context, winners []model.Winner) error {
	if len(winners) == 0 {
		return nil
	}
	rows := make([]models.Winner, 0, len(winners))
	for _, w := range winners {
		rows = append(rows, models.Winner{
			Round:        w.Round,
			Address:      w.Address,
			Score:        w.Score,
			SharePercent: w.SharePercent,
			Credit:       w.Credit,
		})
	}
	return wrap(r.conn(ctx).Create(&rows).Error, "create winners")
}

// ListWinners returns the winners of round, or of the latest round when
// round is zero.
func (r *GormLedgerRepository) ListWinners(ctx context.Context, round uint64) ([]model.Winner, error) {
	db := r.conn(ctx)
	if round == 0 {
		var last models.Winner
		err := db.Order("round desc").First(&last).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []model.Winner{}, nil
		}
		if err != nil {
			return nil, wrap(err, "latest winner round")
		}
		round = last.Round
	}

	var rows []models.Winner
	if err := db.Where("round = ?", round).Order("id").Find(&rows).Error; err != nil {
		return nil, wrap(err, "list winners")
	}
	out := make([]model.Winner, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.Winner{
			Round:        row.Round,
			Address:      row.Address,
			Score:        row.Score,
			SharePercent: row.SharePercent,
			Credit:       row.Credit,
		})
	}
	return out, nil
}
