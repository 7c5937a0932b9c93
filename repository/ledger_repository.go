package repository

import (
	"context"
	"errors"

	"civic-governance-backend/model"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// LedgerRepository 定义账本数据访问接口。所有写操作都应在 Transaction 内执行。
type LedgerRepository interface {
	// Transaction runs fn against a repository bound to one database
	// transaction. Returning an error rolls everything back.
	Transaction(ctx context.Context, fn func(tx LedgerRepository) error) error

	// 选举周期
	GetElectionCycle(ctx context.Context) (*model.ElectionCycle, error)
	SaveElectionCycle(ctx context.Context, cycle *model.ElectionCycle) error

	// 预选
	CreatePreElectionCandidate(ctx context.Context, address string) error
	GetPreElectionCandidate(ctx context.Context, address string) (*model.PreElectionCandidate, error)
	ListPreElectionCandidates(ctx context.Context) ([]model.PreElectionCandidate, error)
	IncrementPreElectionScore(ctx context.Context, address string) error
	AddPreElectionBallot(ctx context.Context, voter, candidate string) error
	GetPreElectionVote(ctx context.Context, voter string) (*model.PreElectionVote, error)
	CountPreElectionVoters(ctx context.Context) (uint64, error)
	ClearPreElection(ctx context.Context) error

	// 正式选举
	CreateElectionCandidates(ctx context.Context, candidates []model.ElectionCandidate) error
	GetElectionCandidate(ctx context.Context, address string) (*model.ElectionCandidate, error)
	ListElectionCandidates(ctx context.Context) ([]model.ElectionCandidate, error)
	IncrementElectionScore(ctx context.Context, address string) error
	CreateElectionBallot(ctx context.Context, voter, candidate string) error
	GetElectionVote(ctx context.Context, voter string) (*model.ElectionVote, error)
	CountElectionVoters(ctx context.Context) (uint64, error)
	ClearElection(ctx context.Context) error
	CreateWinners(ctx context.Context, winners []model.Winner) error
	ListWinners(ctx context.Context, round uint64) ([]model.Winner, error)

	// 投票周期
	GetCalendar(ctx context.Context) (*model.VotingCalendar, error)
	SaveCalendar(ctx context.Context, calendar *model.VotingCalendar) error
	ResetCycles(ctx context.Context) error
	GetCycleCredit(ctx context.Context, cycleIndex uint64, actor string) (uint64, error)
	IncrementCycleCredit(ctx context.Context, cycleIndex uint64, actor string) error
	ListCycleCredits(ctx context.Context, cycleIndex uint64) (map[string]uint64, error)
	AddCycleIndex(ctx context.Context, cycleIndex uint64) error
	ListCycleIndexes(ctx context.Context) ([]uint64, error)

	// 提案与评论
	CreateVoting(ctx context.Context, voting *model.Voting) error
	GetVoting(ctx context.Context, key string) (*model.Voting, error)
	ListVotings(ctx context.Context, offset, limit int) ([]*model.Voting, error)
	ListVotingKeys(ctx context.Context) ([]string, error)
	SaveVoting(ctx context.Context, voting *model.Voting) error
	CreateArticle(ctx context.Context, article *model.Article) error
	GetArticle(ctx context.Context, votingKey, articleKey string) (*model.Article, error)
	ListArticles(ctx context.Context, votingKey string) ([]*model.Article, error)
	SaveArticle(ctx context.Context, article *model.Article) error
	GetPublishCredit(ctx context.Context, actor, votingKey string) (uint64, error)
	IncrementPublishCredit(ctx context.Context, actor, votingKey string) error

	// 内容阅读门槛
	AppendAnswer(ctx context.Context, target model.ContentTarget, hash string) (int, error)
	CreateQuizCompletion(ctx context.Context, completion *model.QuizCompletion) error
	GetQuizCompletion(ctx context.Context, target model.ContentTarget, account string) (*model.QuizCompletion, error)

	// 授权发件箱
	CreateGrantIntent(ctx context.Context, intent *model.GrantIntent) error
	ListGrantIntents(ctx context.Context, status model.GrantStatus, limit int) ([]model.GrantIntent, error)
	UpdateGrantIntent(ctx context.Context, intent *model.GrantIntent, lastErr string) error
	CountGrantIntents(ctx context.Context, status model.GrantStatus) (int64, error)
}
