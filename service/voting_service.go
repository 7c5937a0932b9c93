package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"civic-governance-backend/challenge"
	"civic-governance-backend/model"
	"civic-governance-backend/repository"
)

const challengeCacheSize = 4096

// VotingService 审议投票引擎接口
type VotingService interface {
	// 周期与提案
	SetFirstVotingCycleStartDate(ctx context.Context, caller string, date time.Time) error
	ScheduleNewVoting(ctx context.Context, caller, contentHash string, startDate time.Time, budget uint64) (*model.Voting, error)
	CancelMyVoting(ctx context.Context, caller, votingKey string) error

	// 内容阅读门槛
	AssignQuizHash(ctx context.Context, caller string, target model.ContentTarget, quizHash string) error
	AddHashedAnswer(ctx context.Context, caller string, target model.ContentTarget, answerHash string) (int, error)
	GetAccountChallengeIndexes(ctx context.Context, target model.ContentTarget, account string) ([]int, error)
	CompleteContentReadQuiz(ctx context.Context, caller string, target model.ContentTarget, answers []string) error

	// 评论与回应
	PublishProConArticle(ctx context.Context, caller, votingKey, contentHash string, isProSide bool) (*model.Article, error)
	PublishProConArticleResponse(ctx context.Context, caller, votingKey, articleKey, contentHash string) error

	// 审批
	ApproveArticle(ctx context.Context, caller, votingKey, articleKey string) error
	ApproveArticleResponse(ctx context.Context, caller, votingKey, articleKey string) error
	ApproveVoting(ctx context.Context, caller, votingKey string) error

	// 查询
	CycleOverview(ctx context.Context) (*model.CycleOverview, error)
	CycleCredits(ctx context.Context, cycleIndex uint64) (map[string]uint64, error)
	GetVoting(ctx context.Context, key string) (*model.Voting, error)
	ListVotings(ctx context.Context, offset, limit int) ([]*model.Voting, error)
	GetArticle(ctx context.Context, votingKey, articleKey string) (*model.Article, error)
	ListArticles(ctx context.Context, votingKey string) ([]*model.Article, error)
	QuizCompletion(ctx context.Context, target model.ContentTarget, account string) (*model.QuizCompletion, error)
	PendingGrants(ctx context.Context) (int64, error)
}

// VotingEngine schedules Votings inside cycles, gates content behind read
// quizzes and runs the article, response and approval workflow.
type VotingEngine struct {
	deps       Dependencies
	challenges *lru.Cache
}

var (
	_ ElectionService = (*ElectionEngine)(nil)
	_ VotingService   = (*VotingEngine)(nil)
)

// NewVotingService 创建审议投票引擎
func NewVotingService(deps Dependencies) (*VotingEngine, error) {
	deps.withDefaults()
	deps.Logger = deps.Logger.With().Str("component", "votings").Logger()
	cache, err := lru.New(challengeCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "create challenge cache")
	}
	return &VotingEngine{deps: deps, challenges: cache}, nil
}

// WarmKeyFilter loads every stored voting key into the key filter.
func (v *VotingEngine) WarmKeyFilter(ctx context.Context) error {
	if v.deps.KeyFilter == nil {
		return nil
	}
	keys, err := v.deps.Repo.ListVotingKeys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := v.deps.KeyFilter.Add(ctx, k); err != nil {
			return errors.Wrap(err, "warm key filter")
		}
	}
	v.deps.Logger.Info().Int("keys", len(keys)).Msg("voting key filter warmed")
	return nil
}

// SetFirstVotingCycleStartDate re-anchors the cycle grid and forgets every
// per-cycle counter.
func (v *VotingEngine) SetFirstVotingCycleStartDate(ctx context.Context, caller string, date time.Time) error {
	const op = "setFirstVotingCycleStartDate"
	if err := v.deps.requireAdmin(ctx, op, caller); err != nil {
		return err
	}
	if date.IsZero() {
		return invalidInput(op, "cycle start date is empty")
	}
	date = seconds(date)

	return v.deps.run(ctx, op, func(s *txScope) error {
		cal, err := s.repo.GetCalendar(ctx)
		if err != nil {
			return internal(op, err)
		}
		cal.FirstCycleStart = date
		if err := s.repo.SaveCalendar(ctx, cal); err != nil {
			return internal(op, err)
		}
		if err := s.repo.ResetCycles(ctx); err != nil {
			return internal(op, err)
		}
		s.emit(model.TopicVotings, model.EventCycleAnchored, "", cal)
		return nil
	})
}

// ScheduleNewVoting 政治人物在当前周期内创建提案
func (v *VotingEngine) ScheduleNewVoting(ctx context.Context, caller, contentHash string, startDate time.Time, budget uint64) (*model.Voting, error) {
	const op = "scheduleNewVoting"
	if err := v.deps.requirePoliticalActor(ctx, op, caller); err != nil {
		return nil, err
	}
	allowance, err := v.deps.Authorizer.PoliticalActorCredit(ctx, caller)
	if err != nil {
		return nil, internal(op, err)
	}
	if allowance == 0 {
		allowance = v.deps.Params.DefaultScheduleCredits
	}
	if contentHash == "" {
		return nil, invalidInput(op, "content hash is empty")
	}
	startDate = seconds(startDate)
	p := v.deps.Params

	var voting *model.Voting
	err = v.deps.run(ctx, op, func(s *txScope) error {
		cal, err := s.repo.GetCalendar(ctx)
		if err != nil {
			return internal(op, err)
		}
		idx, ok := cal.CycleIndex(s.now, p.CycleInterval)
		if !ok {
			return phaseViolation(op, "voting cycles have not started")
		}
		earliest, latest := s.now.Add(p.MinScheduleLead), s.now.Add(p.MaxScheduleLead)
		if startDate.Before(earliest) || startDate.After(latest) {
			return phaseViolation(op, "start date must be between %s and %s",
				earliest.Format(time.RFC3339), latest.Format(time.RFC3339))
		}
		_, cycleEnd := cal.CycleBounds(idx, p.CycleInterval)
		if blackout := cycleEnd.Add(-p.CycleBlackout); !startDate.Before(blackout) && startDate.Before(cycleEnd) {
			return phaseViolation(op, "start date falls in the last %s of cycle %d", p.CycleBlackout, idx).
				With("cycle_end", cycleEnd)
		}

		used, err := s.repo.GetCycleCredit(ctx, idx, caller)
		if err != nil {
			return internal(op, err)
		}
		if used >= allowance {
			return creditExhausted(op, "%d of %d votings already scheduled in cycle %d", used, allowance, idx).
				With("cycle_index", idx)
		}

		cal.Nonce++
		if err := s.repo.SaveCalendar(ctx, cal); err != nil {
			return internal(op, err)
		}
		voting = &model.Voting{
			Key:         deriveKey(cal.Nonce, contentHash, caller),
			Creator:     caller,
			ContentHash: contentHash,
			StartDate:   startDate,
			Budget:      budget,
			CycleIndex:  idx,
			CreatedAt:   s.now,
		}
		if err := s.repo.CreateVoting(ctx, voting); err != nil {
			return internal(op, err)
		}
		if err := s.repo.AddCycleIndex(ctx, idx); err != nil {
			return internal(op, err)
		}
		if err := s.repo.IncrementCycleCredit(ctx, idx, caller); err != nil {
			return internal(op, err)
		}
		s.emit(model.TopicVotings, model.EventVotingScheduled, voting.Key, voting)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if v.deps.KeyFilter != nil {
		if err := v.deps.KeyFilter.Add(ctx, voting.Key); err != nil {
			v.deps.Logger.Warn().Err(err).Str("voting", voting.Key).Msg("failed to add voting key to filter")
		}
	}
	return voting, nil
}

// CancelMyVoting 创建者在开始前取消提案
func (v *VotingEngine) CancelMyVoting(ctx context.Context, caller, votingKey string) error {
	const op = "cancelMyVoting"
	return v.deps.run(ctx, op, func(s *txScope) error {
		voting, err := s.repo.GetVoting(ctx, votingKey)
		if err != nil {
			return lookupErr(op, err, "voting %s does not exist", votingKey)
		}
		if voting.Creator != caller {
			return permissionDenied(op, "only the creator can cancel a voting")
		}
		if voting.Final() {
			return phaseViolation(op, "voting is already cancelled or approved")
		}
		if !s.now.Before(voting.StartDate) {
			return phaseViolation(op, "voting already started")
		}
		voting.Cancelled = true
		if err := s.repo.SaveVoting(ctx, voting); err != nil {
			return internal(op, err)
		}
		s.emit(model.TopicVotings, model.EventVotingCancelled, voting.Key, nil)
		return nil
	})
}

// gated is a resolved content-read target.
type gated struct {
	target  model.ContentTarget
	voting  *model.Voting
	article *model.Article
	gate    *model.ReadGate
}

func (g *gated) approved() bool {
	switch g.target.Kind {
	case model.ContentArticle:
		return g.article.Approved
	case model.ContentResponse:
		return g.article.Response.Approved
	default:
		return g.voting.Approved
	}
}

func (g *gated) save(ctx context.Context, repo repository.LedgerRepository) error {
	if g.target.Kind == model.ContentVoting {
		return repo.SaveVoting(ctx, g.voting)
	}
	return repo.SaveArticle(ctx, g.article)
}

func resolveGate(ctx context.Context, repo repository.LedgerRepository, op string, target model.ContentTarget) (*gated, error) {
	if !target.Kind.Valid() {
		return nil, invalidInput(op, "unknown content kind %d", target.Kind)
	}
	if target.Kind == model.ContentVoting {
		target.ArticleKey = ""
	}
	voting, err := repo.GetVoting(ctx, target.VotingKey)
	if err != nil {
		return nil, lookupErr(op, err, "voting %s does not exist", target.VotingKey)
	}
	g := &gated{target: target, voting: voting}
	if target.Kind == model.ContentVoting {
		g.gate = &voting.Gate
		return g, nil
	}

	article, err := repo.GetArticle(ctx, target.VotingKey, target.ArticleKey)
	if err != nil {
		return nil, lookupErr(op, err, "article %s does not exist", target.ArticleKey)
	}
	g.article = article
	if target.Kind == model.ContentArticle {
		g.gate = &article.Gate
		return g, nil
	}
	if article.Response == nil {
		return nil, notFound(op, "article %s has no response", target.ArticleKey)
	}
	g.gate = &article.Response.Gate
	return g, nil
}

// AssignQuizHash 管理员为内容设置测验哈希，只能设置一次
func (v *VotingEngine) AssignQuizHash(ctx context.Context, caller string, target model.ContentTarget, quizHash string) error {
	const op = "assignQuizHash"
	if err := v.deps.requireAdmin(ctx, op, caller); err != nil {
		return err
	}
	if quizHash == "" {
		return invalidInput(op, "quiz hash is empty")
	}

	return v.deps.run(ctx, op, func(s *txScope) error {
		g, err := resolveGate(ctx, s.repo, op, target)
		if err != nil {
			return err
		}
		if g.voting.Final() || g.approved() {
			return phaseViolation(op, "%s is no longer editable", g.target.Kind)
		}
		if g.gate.HasQuiz() {
			return duplicateAction(op, "%s already has a quiz", g.target.Kind)
		}
		g.gate.QuizHash = quizHash
		if err := g.save(ctx, s.repo); err != nil {
			return internal(op, err)
		}
		s.emit(model.TopicVotings, model.EventQuizAssigned, g.target.ContentKey(), g.target)
		return nil
	})
}

// AddHashedAnswer appends one committed answer hash and returns how many
// the item now holds.
func (v *VotingEngine) AddHashedAnswer(ctx context.Context, caller string, target model.ContentTarget, answerHash string) (int, error) {
	const op = "addHashedAnswer"
	if err := v.deps.requireAdmin(ctx, op, caller); err != nil {
		return 0, err
	}
	if answerHash == "" {
		return 0, invalidInput(op, "answer hash is empty")
	}

	var count int
	err := v.deps.run(ctx, op, func(s *txScope) error {
		g, err := resolveGate(ctx, s.repo, op, target)
		if err != nil {
			return err
		}
		if g.voting.Final() || g.approved() {
			return phaseViolation(op, "%s is no longer editable", g.target.Kind)
		}
		if !g.gate.HasQuiz() {
			return phaseViolation(op, "%s has no quiz assigned", g.target.Kind)
		}
		if count, err = s.repo.AppendAnswer(ctx, g.target, answerHash); err != nil {
			return internal(op, err)
		}
		s.emit(model.TopicVotings, model.EventAnswerAdded, g.target.ContentKey(), map[string]interface{}{
			"target":  g.target,
			"answers": count,
		})
		return nil
	})
	return count, err
}

// GetAccountChallengeIndexes returns the answer positions account must
// answer to prove it read the content.
func (v *VotingEngine) GetAccountChallengeIndexes(ctx context.Context, target model.ContentTarget, account string) ([]int, error) {
	const op = "getAccountChallengeIndexes"
	g, err := resolveGate(ctx, v.deps.Repo, op, target)
	if err != nil {
		return nil, err
	}
	return v.challengeFor(op, g, account)
}

func (v *VotingEngine) challengeFor(op string, g *gated, account string) ([]int, error) {
	// 答案数达到 MinAnswers 之前下标会随列表长度变化
	n := len(g.gate.Answers)
	if n < v.deps.Params.MinAnswers || n < v.deps.Params.ChallengeSize {
		return nil, phaseViolation(op, "%s has %d answers, need at least %d", g.target.Kind, n, v.deps.Params.MinAnswers)
	}

	cacheKey := fmt.Sprintf("%s|%s|%d", g.target.ContentKey(), account, n)
	if cached, ok := v.challenges.Get(cacheKey); ok {
		return cached.([]int), nil
	}
	idx, err := challenge.Indexes(g.target.ContentKey(), account, n, v.deps.Params.ChallengeSize)
	if err != nil {
		return nil, internal(op, err)
	}
	v.challenges.Add(cacheKey, idx)
	return idx, nil
}

// CompleteContentReadQuiz checks the caller's plaintext answers against the
// committed hashes at its challenge positions. Accounts without the citizen
// role get one queued.
func (v *VotingEngine) CompleteContentReadQuiz(ctx context.Context, caller string, target model.ContentTarget, answers []string) error {
	const op = "completeContentReadQuiz"
	isCitizen, err := v.deps.Authorizer.IsCitizen(ctx, caller)
	if err != nil {
		return internal(op, err)
	}

	return v.deps.run(ctx, op, func(s *txScope) error {
		g, err := resolveGate(ctx, s.repo, op, target)
		if err != nil {
			return err
		}
		if !g.gate.HasQuiz() || len(g.gate.Answers) < v.deps.Params.MinAnswers {
			return phaseViolation(op, "%s quiz is not ready", g.target.Kind)
		}
		_, err = s.repo.GetQuizCompletion(ctx, g.target, caller)
		switch {
		case err == nil:
			return duplicateAction(op, "%s already completed this quiz", caller)
		case !errors.Is(err, repository.ErrNotFound):
			return internal(op, err)
		}
		if len(answers) != v.deps.Params.ChallengeSize {
			return invalidInput(op, "expected %d answers, got %d", v.deps.Params.ChallengeSize, len(answers))
		}

		idx, err := v.challengeFor(op, g, caller)
		if err != nil {
			return err
		}
		for i, pos := range idx {
			if !challenge.Matches(g.gate.Answers[pos], answers[i]) {
				return proofRejected(op, "answer %d does not match", i).With("position", i)
			}
		}

		completion := &model.QuizCompletion{Target: g.target, Account: caller, CompletedAt: s.now}
		if err := s.repo.CreateQuizCompletion(ctx, completion); err != nil {
			return internal(op, err)
		}
		if !isCitizen {
			intent := &model.GrantIntent{
				ID:        uuid.NewString(),
				Account:   caller,
				Role:      model.RoleCitizen,
				Reason:    "content read quiz " + g.target.ContentKey(),
				Status:    model.GrantPending,
				CreatedAt: s.now,
			}
			if err := s.repo.CreateGrantIntent(ctx, intent); err != nil {
				return internal(op, err)
			}
			s.grants++
		}
		s.emit(model.TopicVotings, model.EventReadQuizCompleted, g.target.ContentKey(), completion)
		return nil
	})
}

// PublishProConArticle 政治人物针对他人的提案发布正方或反方评论
func (v *VotingEngine) PublishProConArticle(ctx context.Context, caller, votingKey, contentHash string, isProSide bool) (*model.Article, error) {
	const op = "publishProConArticle"
	if err := v.deps.requirePoliticalActor(ctx, op, caller); err != nil {
		return nil, err
	}
	if contentHash == "" {
		return nil, invalidInput(op, "content hash is empty")
	}

	var article *model.Article
	err := v.deps.run(ctx, op, func(s *txScope) error {
		voting, err := s.repo.GetVoting(ctx, votingKey)
		if err != nil {
			return lookupErr(op, err, "voting %s does not exist", votingKey)
		}
		if voting.Final() || !s.now.Before(voting.StartDate) {
			return phaseViolation(op, "voting no longer accepts articles")
		}
		if voting.Creator == caller {
			return selfReference(op, "creators cannot publish articles on their own voting")
		}
		used, err := s.repo.GetPublishCredit(ctx, caller, votingKey)
		if err != nil {
			return internal(op, err)
		}
		if used >= v.deps.Params.ArticleCredits {
			return creditExhausted(op, "article credit for voting %s used", votingKey)
		}

		cal, err := s.repo.GetCalendar(ctx)
		if err != nil {
			return internal(op, err)
		}
		cal.Nonce++
		if err := s.repo.SaveCalendar(ctx, cal); err != nil {
			return internal(op, err)
		}
		article = &model.Article{
			VotingKey:   votingKey,
			Key:         deriveKey(cal.Nonce, votingKey, contentHash, caller),
			Author:      caller,
			ContentHash: contentHash,
			IsProSide:   isProSide,
			CreatedAt:   s.now,
		}
		if err := s.repo.CreateArticle(ctx, article); err != nil {
			return internal(op, err)
		}
		if err := s.repo.IncrementPublishCredit(ctx, caller, votingKey); err != nil {
			return internal(op, err)
		}
		s.emit(model.TopicVotings, model.EventArticlePublished, article.Key, article)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return article, nil
}

// PublishProConArticleResponse 提案创建者对评论做出唯一一次回应
func (v *VotingEngine) PublishProConArticleResponse(ctx context.Context, caller, votingKey, articleKey, contentHash string) error {
	const op = "publishProConArticleResponse"
	if contentHash == "" {
		return invalidInput(op, "content hash is empty")
	}

	return v.deps.run(ctx, op, func(s *txScope) error {
		voting, err := s.repo.GetVoting(ctx, votingKey)
		if err != nil {
			return lookupErr(op, err, "voting %s does not exist", votingKey)
		}
		if voting.Creator != caller {
			return permissionDenied(op, "only the voting creator can respond")
		}
		if voting.Final() || !s.now.Before(voting.StartDate) {
			return phaseViolation(op, "voting no longer accepts responses")
		}
		article, err := s.repo.GetArticle(ctx, votingKey, articleKey)
		if err != nil {
			return lookupErr(op, err, "article %s does not exist", articleKey)
		}
		if article.Response != nil {
			return duplicateAction(op, "article %s already has a response", articleKey)
		}

		article.Response = &model.Response{Author: caller, ContentHash: contentHash}
		if err := s.repo.SaveArticle(ctx, article); err != nil {
			return internal(op, err)
		}
		s.emit(model.TopicVotings, model.EventResponsePublished, articleKey, article.Response)
		return nil
	})
}

// loadArticle loads the article an approval targets.
func loadArticle(ctx context.Context, s *txScope, op, votingKey, articleKey string) (*model.Article, error) {
	if _, err := s.repo.GetVoting(ctx, votingKey); err != nil {
		return nil, lookupErr(op, err, "voting %s does not exist", votingKey)
	}
	article, err := s.repo.GetArticle(ctx, votingKey, articleKey)
	if err != nil {
		return nil, lookupErr(op, err, "article %s does not exist", articleKey)
	}
	return article, nil
}

// approvable is loadArticle for approvals that close once the voting starts.
func approvable(ctx context.Context, s *txScope, op, votingKey, articleKey string) (*model.Article, error) {
	voting, err := s.repo.GetVoting(ctx, votingKey)
	if err != nil {
		return nil, lookupErr(op, err, "voting %s does not exist", votingKey)
	}
	if voting.Final() || !s.now.Before(voting.StartDate) {
		return nil, phaseViolation(op, "voting no longer accepts approvals")
	}
	article, err := s.repo.GetArticle(ctx, votingKey, articleKey)
	if err != nil {
		return nil, lookupErr(op, err, "article %s does not exist", articleKey)
	}
	return article, nil
}

// ApproveArticle 管理员批准评论
func (v *VotingEngine) ApproveArticle(ctx context.Context, caller, votingKey, articleKey string) error {
	const op = "approveArticle"
	if err := v.deps.requireAdmin(ctx, op, caller); err != nil {
		return err
	}

	return v.deps.run(ctx, op, func(s *txScope) error {
		article, err := loadArticle(ctx, s, op, votingKey, articleKey)
		if err != nil {
			return err
		}
		if article.Approved {
			return duplicateAction(op, "article %s is already approved", articleKey)
		}
		if n := len(article.Gate.Answers); n < v.deps.Params.MinAnswers {
			return phaseViolation(op, "article has %d answers, need %d", n, v.deps.Params.MinAnswers)
		}
		article.Approved = true
		if err := s.repo.SaveArticle(ctx, article); err != nil {
			return internal(op, err)
		}
		s.emit(model.TopicVotings, model.EventArticleApproved, articleKey, nil)
		return nil
	})
}

// ApproveArticleResponse 管理员批准提案创建者的回应
func (v *VotingEngine) ApproveArticleResponse(ctx context.Context, caller, votingKey, articleKey string) error {
	const op = "approveArticleResponse"
	if err := v.deps.requireAdmin(ctx, op, caller); err != nil {
		return err
	}

	return v.deps.run(ctx, op, func(s *txScope) error {
		article, err := approvable(ctx, s, op, votingKey, articleKey)
		if err != nil {
			return err
		}
		if article.Response == nil {
			return notFound(op, "article %s has no response", articleKey)
		}
		if article.Response.Approved {
			return duplicateAction(op, "response to %s is already approved", articleKey)
		}
		if n := len(article.Response.Gate.Answers); n < v.deps.Params.MinAnswers {
			return phaseViolation(op, "response has %d answers, need %d", n, v.deps.Params.MinAnswers)
		}
		article.Response.Approved = true
		if err := s.repo.SaveArticle(ctx, article); err != nil {
			return internal(op, err)
		}
		s.emit(model.TopicVotings, model.EventResponseApproved, articleKey, nil)
		return nil
	})
}

// ApproveVoting approves a Voting inside the window before it starts, once
// its own quiz is complete and every article is settled.
func (v *VotingEngine) ApproveVoting(ctx context.Context, caller, votingKey string) error {
	const op = "approveVoting"
	if err := v.deps.requireAdmin(ctx, op, caller); err != nil {
		return err
	}

	return v.deps.run(ctx, op, func(s *txScope) error {
		voting, err := s.repo.GetVoting(ctx, votingKey)
		if err != nil {
			return lookupErr(op, err, "voting %s does not exist", votingKey)
		}
		if voting.Cancelled {
			return phaseViolation(op, "voting %s is cancelled", votingKey)
		}
		if voting.Approved {
			return duplicateAction(op, "voting %s is already approved", votingKey)
		}
		opens := voting.StartDate.Add(-v.deps.Params.ApprovalWindow)
		if s.now.Before(opens) || !s.now.Before(voting.StartDate) {
			return phaseViolation(op, "approval window is [%s, %s)",
				opens.Format(time.RFC3339), voting.StartDate.Format(time.RFC3339))
		}
		if n := len(voting.Gate.Answers); n < v.deps.Params.MinAnswers {
			return phaseViolation(op, "voting has %d answers, need %d", n, v.deps.Params.MinAnswers)
		}

		articles, err := s.repo.ListArticles(ctx, votingKey)
		if err != nil {
			return internal(op, err)
		}
		for _, a := range articles {
			if !a.ResponseSettled() {
				return phaseViolation(op, "article %s has an unsettled response", a.Key).With("article", a.Key)
			}
		}

		voting.Approved = true
		if err := s.repo.SaveVoting(ctx, voting); err != nil {
			return internal(op, err)
		}
		s.emit(model.TopicVotings, model.EventVotingApproved, votingKey, nil)
		return nil
	})
}

// CycleOverview reports the anchor, the current cycle window and every cycle
// that holds a Voting.
func (v *VotingEngine) CycleOverview(ctx context.Context) (*model.CycleOverview, error) {
	const op = "cycleOverview"
	cal, err := v.deps.Repo.GetCalendar(ctx)
	if err != nil {
		return nil, internal(op, err)
	}
	used, err := v.deps.Repo.ListCycleIndexes(ctx)
	if err != nil {
		return nil, internal(op, err)
	}

	overview := &model.CycleOverview{FirstCycleStart: cal.FirstCycleStart, UsedIndexes: used}
	if idx, ok := cal.CycleIndex(v.deps.now(), v.deps.Params.CycleInterval); ok {
		overview.CurrentIndex = &idx
		overview.CycleStart, overview.CycleEnd = cal.CycleBounds(idx, v.deps.Params.CycleInterval)
	}
	return overview, nil
}

// CycleCredits 查询某个周期内每个政治人物已使用的额度
func (v *VotingEngine) CycleCredits(ctx context.Context, cycleIndex uint64) (map[string]uint64, error) {
	credits, err := v.deps.Repo.ListCycleCredits(ctx, cycleIndex)
	return credits, internal("cycleCredits", err)
}

// GetVoting consults the key filter first so unknown keys skip the database.
func (v *VotingEngine) GetVoting(ctx context.Context, key string) (*model.Voting, error) {
	const op = "getVoting"
	if v.deps.KeyFilter != nil {
		ok, err := v.deps.KeyFilter.Contains(ctx, key)
		if err != nil {
			v.deps.Logger.Warn().Err(err).Msg("key filter unavailable")
		} else if !ok {
			return nil, notFound(op, "voting %s does not exist", key)
		}
	}
	voting, err := v.deps.Repo.GetVoting(ctx, key)
	if err != nil {
		return nil, lookupErr(op, err, "voting %s does not exist", key)
	}
	return voting, nil
}

// ListVotings 分页列出提案，最新的在前
func (v *VotingEngine) ListVotings(ctx context.Context, offset, limit int) ([]*model.Voting, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	list, err := v.deps.Repo.ListVotings(ctx, offset, limit)
	return list, internal("listVotings", err)
}

func (v *VotingEngine) GetArticle(ctx context.Context, votingKey, articleKey string) (*model.Article, error) {
	const op = "getArticle"
	article, err := v.deps.Repo.GetArticle(ctx, votingKey, articleKey)
	if err != nil {
		return nil, lookupErr(op, err, "article %s does not exist", articleKey)
	}
	return article, nil
}

// ListArticles 列出提案下的所有评论及回应
func (v *VotingEngine) ListArticles(ctx context.Context, votingKey string) ([]*model.Article, error) {
	const op = "listArticles"
	if _, err := v.deps.Repo.GetVoting(ctx, votingKey); err != nil {
		return nil, lookupErr(op, err, "voting %s does not exist", votingKey)
	}
	list, err := v.deps.Repo.ListArticles(ctx, votingKey)
	return list, internal(op, err)
}

// QuizCompletion returns when account passed the quiz, NotFound otherwise.
func (v *VotingEngine) QuizCompletion(ctx context.Context, target model.ContentTarget, account string) (*model.QuizCompletion, error) {
	const op = "quizCompletion"
	if target.Kind == model.ContentVoting {
		target.ArticleKey = ""
	}
	c, err := v.deps.Repo.GetQuizCompletion(ctx, target, account)
	if err != nil {
		return nil, lookupErr(op, err, "%s has not completed this quiz", account)
	}
	return c, nil
}

// PendingGrants counts grant intents not yet handed to the registry.
func (v *VotingEngine) PendingGrants(ctx context.Context) (int64, error) {
	n, err := v.deps.Repo.CountGrantIntents(ctx, model.GrantPending)
	return n, internal("pendingGrants", err)
}
