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

// ---- 投票周期 ----

func (r *GormLedgerRepository) GetCalendar(ctx context.Context) (*model.VotingCalendar, error) {
	var row models.VotingCalendar
	err := r.conn(ctx).First(&row, singletonID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.VotingCalendar{}, nil
	}
	if err != nil {
		return nil, wrap(err, "get voting calendar")
	}
	return &model.VotingCalendar{FirstCycleStart: fromUnix(row.FirstCycleStart), Nonce: row.Nonce}, nil
}

func (r *GormLedgerRepository) SaveCalendar(ctx context.Context, calendar *model.VotingCalendar) error {
	row := models.VotingCalendar{
		ID:              singletonID,
		FirstCycleStart: toUnix(calendar.FirstCycleStart),
		Nonce:           calendar.Nonce,
	}
	err := r.conn(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	return wrap(err, "save voting calendar")
}

// ResetCycles 清空所有周期额度计数和已使用的周期索引
func (r *GormLedgerRepository) ResetCycles(ctx context.Context) error {
	db := r.conn(ctx)
	if err := deleteAll(db, &models.CycleCredit{}); err != nil {
		return wrap(err, "reset cycle credits")
	}
	return wrap(deleteAll(db, &models.CycleIndex{}), "reset cycle indexes")
}

func (r *GormLedgerRepository) GetCycleCredit(ctx context.Context, cycleIndex uint64, actor string) (uint64, error) {
	var row models.CycleCredit
	err := r.conn(ctx).Where("cycle_index = ? AND actor = ?", cycleIndex, actor).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, wrap(err, "get cycle credit")
	}
	return row.Used, nil
}

func (r *GormLedgerRepository) IncrementCycleCredit(ctx context.Context, cycleIndex uint64, actor string) error {
	db := r.conn(ctx)
	res := db.Model(&models.CycleCredit{}).
		Where("cycle_index = ? AND actor = ?", cycleIndex, actor).
		UpdateColumn("used", gorm.Expr("used + ?", 1))
	if res.Error != nil {
		return wrap(res.Error, "increment cycle credit")
	}
	if res.RowsAffected > 0 {
		return nil
	}
	err := db.Create(&models.CycleCredit{CycleIndex: cycleIndex, Actor: actor, Used: 1}).Error
	return wrap(err, "create cycle credit")
}

func (r *GormLedgerRepository) ListCycleCredits(ctx context.Context, cycleIndex uint64) (map[string]uint64, error) {
	var rows []models.CycleCredit
	if err := r.conn(ctx).Where("cycle_index = ?", cycleIndex).Find(&rows).Error; err != nil {
		return nil, wrap(err, "list cycle credits")
	}
	out := make(map[string]uint64, len(rows))
	for _, row := range rows {
		out[row.Actor] = row.Used
	}
	return out, nil
}

func (r *GormLedgerRepository) AddCycleIndex(ctx context.Context, cycleIndex uint64) error {
	err := r.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.CycleIndex{Index: cycleIndex}).Error
	return wrap(err, "add cycle index")
}

func (r *GormLedgerRepository) ListCycleIndexes(ctx context.Context) ([]uint64, error) {
	out := []uint64{}
	if err := r.conn(ctx).Model(&models.CycleIndex{}).Order("cycle_index").Pluck("cycle_index", &out).Error; err != nil {
		return nil, wrap(err, "list cycle indexes")
	}
	return out, nil
}

// ---- 提案 ----

func (r *GormLedgerRepository) CreateVoting(ctx context.Context, voting *model.Voting) error {
	row := models.Voting{
		Key:         voting.Key,
		Creator:     voting.Creator,
		ContentHash: voting.ContentHash,
		StartDate:   toUnix(voting.StartDate),
		Budget:      voting.Budget,
		CycleIndex:  voting.CycleIndex,
		Cancelled:   voting.Cancelled,
		Approved:    voting.Approved,
		QuizHash:    voting.Gate.QuizHash,
		CreatedAt:   voting.CreatedAt,
	}
	return wrap(r.conn(ctx).Create(&row).Error, "create voting")
}

func (r *GormLedgerRepository) GetVoting(ctx context.Context, key string) (*model.Voting, error) {
	db := r.conn(ctx)
	var row models.Voting
	if err := db.Where("voting_key = ?", key).First(&row).Error; err != nil {
		return nil, wrap(err, "get voting")
	}
	answers, err := loadAnswers(db, model.ContentTarget{Kind: model.ContentVoting, VotingKey: key})
	if err != nil {
		return nil, err
	}
	return votingFromRow(row, answers), nil
}

func (r *GormLedgerRepository) ListVotings(ctx context.Context, offset, limit int) ([]*model.Voting, error) {
	db := r.conn(ctx)
	var rows []models.Voting
	if err := db.Order("created_at DESC, voting_key").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, wrap(err, "list votings")
	}
	if len(rows) == 0 {
		return []*model.Voting{}, nil
	}

	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, row.Key)
	}
	var answerRows []models.ContentAnswer
	err := db.Where("kind = ? AND voting_key IN ?", uint8(model.ContentVoting), keys).
		Order("position").Find(&answerRows).Error
	if err != nil {
		return nil, wrap(err, "list voting answers")
	}
	byVoting := make(map[string][]string)
	for _, a := range answerRows {
		byVoting[a.VotingKey] = append(byVoting[a.VotingKey], a.Hash)
	}

	out := make([]*model.Voting, 0, len(rows))
	for _, row := range rows {
		out = append(out, votingFromRow(row, byVoting[row.Key]))
	}
	return out, nil
}

func (r *GormLedgerRepository) ListVotingKeys(ctx context.Context) ([]string, error) {
	keys := []string{}
	if err := r.conn(ctx).Model(&models.Voting{}).Pluck("voting_key", &keys).Error; err != nil {
		return nil, wrap(err, "list voting keys")
	}
	return keys, nil
}

// SaveVoting 持久化提案的可变字段
func (r *GormLedgerRepository) SaveVoting(ctx context.Context, voting *model.Voting) error {
	res := r.conn(ctx).Model(&models.Voting{}).
		Where("voting_key = ?", voting.Key).
		Updates(map[string]interface{}{
			"cancelled": voting.Cancelled,
			"approved":  voting.Approved,
			"quiz_hash": voting.Gate.QuizHash,
		})
	return wrap(res.Error, "save voting")
}

func votingFromRow(row models.Voting, answers []string) *model.Voting {
	if answers == nil {
		answers = []string{}
	}
	return &model.Voting{
		Key:         row.Key,
		Creator:     row.Creator,
		ContentHash: row.ContentHash,
		StartDate:   fromUnix(row.StartDate),
		Budget:      row.Budget,
		CycleIndex:  row.CycleIndex,
		Cancelled:   row.Cancelled,
		Approved:    row.Approved,
		Gate:        model.ReadGate{QuizHash: row.QuizHash, Answers: answers},
		CreatedAt:   row.CreatedAt,
	}
}

// ---- 评论与回应 ----

func (r *GormLedgerRepository) CreateArticle(ctx context.Context, article *model.Article) error {
	row := articleToRow(article)
	return wrap(r.conn(ctx).Create(&row).Error, "create article")
}

func (r *GormLedgerRepository) GetArticle(ctx context.Context, votingKey, articleKey string) (*model.Article, error) {
	db := r.conn(ctx)
	var row models.Article
	if err := db.Where("voting_key = ? AND article_key = ?", votingKey, articleKey).First(&row).Error; err != nil {
		return nil, wrap(err, "get article")
	}
	var answerRows []models.ContentAnswer
	err := db.Where("voting_key = ? AND article_key = ? AND kind IN ?", votingKey, articleKey,
		[]int{int(model.ContentArticle), int(model.ContentResponse)}).
		Order("position").Find(&answerRows).Error
	if err != nil {
		return nil, wrap(err, "get article answers")
	}
	return articleFromRow(row, answerRows), nil
}

func (r *GormLedgerRepository) ListArticles(ctx context.Context, votingKey string) ([]*model.Article, error) {
	db := r.conn(ctx)
	var rows []models.Article
	if err := db.Where("voting_key = ?", votingKey).Order("created_at, article_key").Find(&rows).Error; err != nil {
		return nil, wrap(err, "list articles")
	}
	var answerRows []models.ContentAnswer
	err := db.Where("voting_key = ? AND kind IN ?", votingKey,
		[]int{int(model.ContentArticle), int(model.ContentResponse)}).
		Order("position").Find(&answerRows).Error
	if err != nil {
		return nil, wrap(err, "list article answers")
	}
	byArticle := make(map[string][]models.ContentAnswer)
	for _, a := range answerRows {
		byArticle[a.ArticleKey] = append(byArticle[a.ArticleKey], a)
	}

	out := make([]*model.Article, 0, len(rows))
	for _, row := range rows {
		out = append(out, articleFromRow(row, byArticle[row.Key]))
	}
	return out, nil
}

// SaveArticle 持久化评论及其回应的可变字段
func (r *GormLedgerRepository) SaveArticle(ctx context.Context, article *model.Article) error {
	row := articleToRow(article)
	res := r.conn(ctx).Model(&models.Article{}).
		Where("voting_key = ? AND article_key = ?", article.VotingKey, article.Key).
		Updates(map[string]interface{}{
			"approved":           row.Approved,
			"quiz_hash":          row.QuizHash,
			"has_response":       row.HasResponse,
			"response_author":    row.ResponseAuthor,
			"response_hash":      row.ResponseHash,
			"response_approved":  row.ResponseApproved,
			"response_quiz_hash": row.ResponseQuizHash,
		})
	return wrap(res.Error, "save article")
}

func articleToRow(a *model.Article) models.Article {
	row := models.Article{
		Key:         a.Key,
		VotingKey:   a.VotingKey,
		Author:      a.Author,
		ContentHash: a.ContentHash,
		IsProSide:   a.IsProSide,
		Approved:    a.Approved,
		QuizHash:    a.Gate.QuizHash,
		CreatedAt:   a.CreatedAt,
	}
	if a.Response != nil {
		row.HasResponse = true
		row.ResponseAuthor = a.Response.Author
		row.ResponseHash = a.Response.ContentHash
		row.ResponseApproved = a.Response.Approved
		row.ResponseQuizHash = a.Response.Gate.QuizHash
	}
	return row
}

func articleFromRow(row models.Article, answers []models.ContentAnswer) *model.Article {
	article := &model.Article{
		VotingKey:   row.VotingKey,
		Key:         row.Key,
		Author:      row.Author,
		ContentHash: row.ContentHash,
		IsProSide:   row.IsProSide,
		Approved:    row.Approved,
		Gate:        model.ReadGate{QuizHash: row.QuizHash, Answers: []string{}},
		CreatedAt:   row.CreatedAt,
	}
	responseAnswers := []string{}
	for _, a := range answers {
		switch model.ContentKind(a.Kind) {
		case model.ContentArticle:
			article.Gate.Answers = append(article.Gate.Answers, a.Hash)
		case model.ContentResponse:
			responseAnswers = append(responseAnswers, a.Hash)
		}
	}
	if row.HasResponse {
		article.Response = &model.Response{
			Author:      row.ResponseAuthor,
			ContentHash: row.ResponseHash,
			Approved:    row.ResponseApproved,
			Gate:        model.ReadGate{QuizHash: row.ResponseQuizHash, Answers: responseAnswers},
		}
	}
	return article
}

func (r *GormLedgerRepository) GetPublishCredit(ctx context.Context, actor, votingKey string) (uint64, error) {
	var row models.PublishCredit
	err := r.conn(ctx).Where("actor = ? AND voting_key = ?", actor, votingKey).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, wrap(err, "get publish credit")
	}
	return row.Used, nil
}

func (r *GormLedgerRepository) IncrementPublishCredit(ctx context.Context, actor, votingKey string) error {
	db := r.conn(ctx)
	res := db.Model(&models.PublishCredit{}).
		Where("actor = ? AND voting_key = ?", actor, votingKey).
		UpdateColumn("used", gorm.Expr("used + ?", 1))
	if res.Error != nil {
		return wrap(res.Error, "increment publish credit")
	}
	if res.RowsAffected > 0 {
		return nil
	}
	err := db.Create(&models.PublishCredit{Actor: actor, VotingKey: votingKey, Used: 1}).Error
	return wrap(err, "create publish credit")
}

// ---- 内容阅读门槛 ----

func loadAnswers(db *gorm.DB, target model.ContentTarget) ([]string, error) {
	hashes := []string{}
	err := db.Model(&models.ContentAnswer{}).
		Where("kind = ? AND voting_key = ? AND article_key = ?", uint8(target.Kind), target.VotingKey, target.ArticleKey).
		Order("position").Pluck("hash", &hashes).Error
	if err != nil {
		return nil, wrap(err, "load answers")
	}
	return hashes, nil
}

// AppendAnswer 追加答案哈希，返回追加后的答案数量
func (r *GormLedgerRepository) AppendAnswer(ctx context.Context, target model.ContentTarget, hash string) (int, error) {
	db := r.conn(ctx)
	var count int64
	err := db.Model(&models.ContentAnswer{}).
		Where("kind = ? AND voting_key = ? AND article_key = ?", uint8(target.Kind), target.VotingKey, target.ArticleKey).
		Count(&count).Error
	if err != nil {
		return 0, wrap(err, "count answers")
	}
	row := models.ContentAnswer{
		Kind:       uint8(target.Kind),
		VotingKey:  target.VotingKey,
		ArticleKey: target.ArticleKey,
		Position:   int(count),
		Hash:       hash,
	}
	if err := db.Create(&row).Error; err != nil {
		return 0, wrap(err, "append answer")
	}
	return int(count) + 1, nil
}

func (r *GormLedgerRepository) CreateQuizCompletion(ctx context.Context, completion *model.QuizCompletion) error {
	row := models.QuizCompletion{
		Kind:        uint8(completion.Target.Kind),
		VotingKey:   completion.Target.VotingKey,
		ArticleKey:  completion.Target.ArticleKey,
		Account:     completion.Account,
		CompletedAt: toUnix(completion.CompletedAt),
	}
	return wrap(r.conn(ctx).Create(&row).Error, "create quiz completion")
}

func (r *GormLedgerRepository) GetQuizCompletion(ctx context.Context, target model.ContentTarget, account string) (*model.QuizCompletion, error) {
	var row models.QuizCompletion
	err := r.conn(ctx).
		Where("kind = ? AND voting_key = ? AND article_key = ? AND account = ?",
			uint8(target.Kind), target.VotingKey, target.ArticleKey, account).
		First(&row).Error
	if err != nil {
		return nil, wrap(err, "get quiz completion")
	}
	return &model.QuizCompletion{Target: target, Account: row.Account, CompletedAt: fromUnix(row.CompletedAt)}, nil
}

// ---- 授权发件箱 ----

func (r *GormLedgerRepository) CreateGrantIntent(ctx context.Context, intent *model.GrantIntent) error {
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now()
	}
	row := models.GrantIntent{
		ID:         intent.ID,
		Account:    intent.Account,
		Role:       string(intent.Role),
		Credit:     intent.Credit,
		Reason:     intent.Reason,
		Status:     string(intent.Status),
		RetryCount: intent.RetryCount,
		CreatedAt:  intent.CreatedAt,
	}
	return wrap(r.conn(ctx).Create(&row).Error, "create grant intent")
}

func (r *GormLedgerRepository) ListGrantIntents(ctx context.Context, status model.GrantStatus, limit int) ([]model.GrantIntent, error) {
	var rows []models.GrantIntent
	q := r.conn(ctx).Where("status = ?", string(status)).Order("created_at, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, wrap(err, "list grant intents")
	}
	out := make([]model.GrantIntent, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.GrantIntent{
			ID:         row.ID,
			Account:    row.Account,
			Role:       model.Role(row.Role),
			Credit:     row.Credit,
			Reason:     row.Reason,
			Status:     model.GrantStatus(row.Status),
			RetryCount: row.RetryCount,
			CreatedAt:  row.CreatedAt,
		})
	}
	return out, nil
}

func (r *GormLedgerRepository) UpdateGrantIntent(ctx context.Context, intent *model.GrantIntent, lastErr string) error {
	res := r.conn(ctx).Model(&models.GrantIntent{}).
		Where("id = ?", intent.ID).
		Updates(map[string]interface{}{
			"status":      string(intent.Status),
			"retry_count": intent.RetryCount,
			"last_error":  lastErr,
		})
	return wrap(res.Error, "update grant intent")
}

func (r *GormLedgerRepository) CountGrantIntents(ctx context.Context, status model.GrantStatus) (int64, error) {
	var n int64
	if err := r.conn(ctx).Model(&models.GrantIntent{}).Where("status = ?", string(status)).Count(&n).Error; err != nil {
		return 0, wrap(err, "count grant intents")
	}
	return n, nil
}
