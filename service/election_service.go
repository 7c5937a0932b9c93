package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"civic-governance-backend/model"
	"civic-governance-backend/repository"
)

const winnersCacheTTL = 10 * time.Minute

// ElectionService 选举引擎接口
type ElectionService interface {
	// 状态变更
	ScheduleNextElections(ctx context.Context, caller string, preStart, preEnd, elStart, elEnd time.Time) error
	RegisterPreElectionCandidate(ctx context.Context, caller, address string) error
	VoteOnPreElections(ctx context.Context, caller, candidate string) error
	ClosePreElections(ctx context.Context, caller string) ([]model.ElectionCandidate, error)
	VoteOnElections(ctx context.Context, caller, candidate string) error
	CloseElections(ctx context.Context, caller string) ([]model.Winner, error)

	// 查询
	Summary(ctx context.Context) (*model.ElectionSummary, error)
	PreElectionCandidates(ctx context.Context) ([]model.PreElectionCandidate, error)
	PreElectionCandidate(ctx context.Context, address string) (*model.PreElectionCandidate, error)
	PreElectionVote(ctx context.Context, voter string) (*model.PreElectionVote, error)
	ElectionCandidates(ctx context.Context) ([]model.ElectionCandidate, error)
	ElectionVote(ctx context.Context, voter string) (*model.ElectionVote, error)
	Winners(ctx context.Context, round uint64) ([]model.Winner, error)
}

// ElectionEngine runs the pre-election, election and apportionment phases.
type ElectionEngine struct {
	deps Dependencies
}

// NewElectionService 创建选举引擎
func NewElectionService(deps Dependencies) *ElectionEngine {
	deps.withDefaults()
	deps.Logger = deps.Logger.With().Str("component", "elections").Logger()
	return &ElectionEngine{deps: deps}
}

func seconds(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Unix(t.Unix(), 0).UTC()
}

// lookupErr turns a repository miss into a NotFound engine error.
func lookupErr(op string, err error, format string, args ...interface{}) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(op, format, args...)
	}
	return internal(op, err)
}

func winnersCacheKey(round uint64) string {
	if round == 0 {
		return "governance:winners:latest"
	}
	return fmt.Sprintf("governance:winners:round:%d", round)
}

// ScheduleNextElections 安排下一轮预选和正式选举
func (e *ElectionEngine) ScheduleNextElections(ctx context.Context, caller string, preStart, preEnd, elStart, elEnd time.Time) error {
	const op = "scheduleNextElections"
	if err := e.deps.requireAdmin(ctx, op, caller); err != nil {
		return err
	}
	preStart, preEnd, elStart, elEnd = seconds(preStart), seconds(preEnd), seconds(elStart), seconds(elEnd)

	return e.deps.run(ctx, op, func(s *txScope) error {
		cycle, err := s.repo.GetElectionCycle(ctx)
		if err != nil {
			return internal(op, err)
		}
		if !cycle.IsIdle() {
			return phaseViolation(op, "previous election cycle is not closed").With("phase", cycle.Phase(s.now))
		}
		if preStart.IsZero() || !preStart.Before(preEnd) || preEnd.After(elStart) || !elStart.Before(elEnd) {
			return invalidInput(op, "dates must satisfy preStart < preEnd <= elStart < elEnd")
		}
		if earliest := s.now.Add(e.deps.Params.PreElectionLead); preStart.Before(earliest) {
			return phaseViolation(op, "pre-elections must start at least %s from now", e.deps.Params.PreElectionLead).
				With("earliest", earliest)
		}

		cycle.PreElectionsStart = preStart
		cycle.PreElectionsEnd = preEnd
		cycle.ElectionsStart = elStart
		cycle.ElectionsEnd = elEnd
		if err := s.repo.SaveElectionCycle(ctx, cycle); err != nil {
			return internal(op, err)
		}
		s.emit(model.TopicElections, model.EventElectionsScheduled, "", cycle)
		return nil
	})
}

// RegisterPreElectionCandidate 注册预选候选人，初始得分为1
func (e *ElectionEngine) RegisterPreElectionCandidate(ctx context.Context, caller, address string) error {
	const op = "registerPreElectionCandidate"
	if err := e.deps.requireAdmin(ctx, op, caller); err != nil {
		return err
	}
	if address == "" {
		return invalidInput(op, "candidate address is empty")
	}

	return e.deps.run(ctx, op, func(s *txScope) error {
		cycle, err := s.repo.GetElectionCycle(ctx)
		if err != nil {
			return internal(op, err)
		}
		if cycle.PreElectionsStart.IsZero() {
			return phaseViolation(op, "pre-elections are not scheduled")
		}
		if !s.now.Before(cycle.PreElectionsStart) {
			return phaseViolation(op, "registration closed when pre-elections started").
				With("pre_elections_start", cycle.PreElectionsStart)
		}

		_, err = s.repo.GetPreElectionCandidate(ctx, address)
		switch {
		case err == nil:
			return duplicateAction(op, "%s is already registered", address)
		case !errors.Is(err, repository.ErrNotFound):
			return internal(op, err)
		}

		if err := s.repo.CreatePreElectionCandidate(ctx, address); err != nil {
			return internal(op, err)
		}
		s.emit(model.TopicElections, model.EventCandidateRegistered, address, nil)
		return nil
	})
}

// VoteOnPreElections 公民在预选中投票，每人最多3票且不能重复
func (e *ElectionEngine) VoteOnPreElections(ctx context.Context, caller, candidate string) error {
	const op = "voteOnPreElections"
	if err := e.deps.requireCitizen(ctx, op, caller); err != nil {
		return err
	}

	return e.deps.run(ctx, op, func(s *txScope) error {
		cycle, err := s.repo.GetElectionCycle(ctx)
		if err != nil {
			return internal(op, err)
		}
		if cycle.PreElectionsStart.IsZero() || s.now.Before(cycle.PreElectionsStart) || !s.now.Before(cycle.PreElectionsEnd) {
			return phaseViolation(op, "pre-elections are not open").With("phase", cycle.Phase(s.now))
		}
		if candidate == caller {
			return selfReference(op, "voters cannot vote for themselves")
		}
		if _, err := s.repo.GetPreElectionCandidate(ctx, candidate); err != nil {
			return lookupErr(op, err, "%s is not a pre-election candidate", candidate)
		}

		vote, err := s.repo.GetPreElectionVote(ctx, caller)
		if err != nil {
			return internal(op, err)
		}
		if vote.HasVotedFor(candidate) {
			return duplicateAction(op, "already voted for %s", candidate)
		}
		if vote.VoteCount() >= e.deps.Params.PreElectionCredits {
			return creditExhausted(op, "all %d pre-election votes used", e.deps.Params.PreElectionCredits)
		}

		if err := s.repo.AddPreElectionBallot(ctx, caller, candidate); err != nil {
			return internal(op, err)
		}
		if err := s.repo.IncrementPreElectionScore(ctx, candidate); err != nil {
			return internal(op, err)
		}
		s.emit(model.TopicElections, model.EventPreElectionVoteCast, candidate, map[string]string{"voter": caller})
		return nil
	})
}

// ClosePreElections promotes every candidate above the threshold to the
// election round and wipes pre-election storage.
func (e *ElectionEngine) ClosePreElections(ctx context.Context, caller string) ([]model.ElectionCandidate, error) {
	const op = "closePreElections"
	if err := e.deps.requireAdmin(ctx, op, caller); err != nil {
		return nil, err
	}
	var citizens uint64
	if e.deps.Params.ThresholdBase == ThresholdCitizens {
		n, err := e.deps.Authorizer.CountCitizens(ctx)
		if err != nil {
			return nil, internal(op, err)
		}
		citizens = n
	}

	var promoted []model.ElectionCandidate
	err := e.deps.run(ctx, op, func(s *txScope) error {
		cycle, err := s.repo.GetElectionCycle(ctx)
		if err != nil {
			return internal(op, err)
		}
		if cycle.PreElectionsStart.IsZero() {
			return phaseViolation(op, "no pre-elections to close")
		}
		if closable := cycle.PreElectionsEnd.Add(e.deps.Params.CloseGrace); s.now.Before(closable) {
			return phaseViolation(op, "pre-elections can be closed from %s", closable.Format(time.RFC3339)).
				With("closable_at", closable)
		}

		denominator := citizens
		if e.deps.Params.ThresholdBase == ThresholdVoters {
			if denominator, err = s.repo.CountPreElectionVoters(ctx); err != nil {
				return internal(op, err)
			}
		}
		candidates, err := s.repo.ListPreElectionCandidates(ctx)
		if err != nil {
			return internal(op, err)
		}

		promoted = promoted[:0]
		for i, c := range candidates {
			// 没有分母时所有候选人都晋级
			if denominator == 0 || passesThreshold(c.Score, denominator, e.deps.Params.ThresholdPercent) {
				promoted = append(promoted, model.ElectionCandidate{Address: c.Address, Position: i})
			}
		}
		if len(promoted) > 0 {
			if err := s.repo.CreateElectionCandidates(ctx, promoted); err != nil {
				return internal(op, err)
			}
		}
		if err := s.repo.ClearPreElection(ctx); err != nil {
			return internal(op, err)
		}

		cycle.PreElectionsStart = time.Time{}
		cycle.PreElectionsEnd = time.Time{}
		if err := s.repo.SaveElectionCycle(ctx, cycle); err != nil {
			return internal(op, err)
		}
		s.emit(model.TopicElections, model.EventPreElectionsClosed, "", map[string]interface{}{
			"promoted":    promoted,
			"denominator": denominator,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

// VoteOnElections 公民在正式选举中投一票
func (e *ElectionEngine) VoteOnElections(ctx context.Context, caller, candidate string) error {
	const op = "voteOnElections"
	if err := e.deps.requireCitizen(ctx, op, caller); err != nil {
		return err
	}

	return e.deps.run(ctx, op, func(s *txScope) error {
		cycle, err := s.repo.GetElectionCycle(ctx)
		if err != nil {
			return internal(op, err)
		}
		if !cycle.PreElectionsClosed() {
			return phaseViolation(op, "pre-elections are not closed").With("phase", cycle.Phase(s.now))
		}
		if s.now.Before(cycle.ElectionsStart) || !s.now.Before(cycle.ElectionsEnd) {
			return phaseViolation(op, "elections are not open").With("phase", cycle.Phase(s.now))
		}
		if candidate == caller {
			return selfReference(op, "voters cannot vote for themselves")
		}
		if _, err := s.repo.GetElectionCandidate(ctx, candidate); err != nil {
			return lookupErr(op, err, "%s is not an election candidate", candidate)
		}

		_, err = s.repo.GetElectionVote(ctx, caller)
		switch {
		case err == nil:
			return duplicateAction(op, "%s already voted in this election", caller)
		case !errors.Is(err, repository.ErrNotFound):
			return internal(op, err)
		}

		if err := s.repo.CreateElectionBallot(ctx, caller, candidate); err != nil {
			return internal(op, err)
		}
		if err := s.repo.IncrementElectionScore(ctx, candidate); err != nil {
			return internal(op, err)
		}
		s.emit(model.TopicElections, model.EventElectionVoteCast, candidate, map[string]string{"voter": caller})
		return nil
	})
}

// CloseElections apportions scheduling credit to every candidate that
// received votes and queues a political actor grant for each.
func (e *ElectionEngine) CloseElections(ctx context.Context, caller string) ([]model.Winner, error) {
	const op = "closeElections"
	if err := e.deps.requireAdmin(ctx, op, caller); err != nil {
		return nil, err
	}

	var winners []model.Winner
	var round uint64
	err := e.deps.run(ctx, op, func(s *txScope) error {
		cycle, err := s.repo.GetElectionCycle(ctx)
		if err != nil {
			return internal(op, err)
		}
		if !cycle.PreElectionsClosed() {
			return phaseViolation(op, "no elections to close").With("phase", cycle.Phase(s.now))
		}
		if closable := cycle.ElectionsEnd.Add(e.deps.Params.CloseGrace); s.now.Before(closable) {
			return phaseViolation(op, "elections can be closed from %s", closable.Format(time.RFC3339)).
				With("closable_at", closable)
		}

		candidates, err := s.repo.ListElectionCandidates(ctx)
		if err != nil {
			return internal(op, err)
		}
		var total uint64
		for _, c := range candidates {
			total += c.Score
		}

		round = cycle.Round + 1
		winners = winners[:0]
		for _, c := range candidates {
			if c.Score == 0 {
				continue
			}
			share := c.Score * 100 / total
			winners = append(winners, model.Winner{
				Round:        round,
				Address:      c.Address,
				Score:        c.Score,
				SharePercent: share,
				Credit:       WinnerCredit(share),
			})
		}

		if len(winners) > 0 {
			if err := s.repo.CreateWinners(ctx, winners); err != nil {
				return internal(op, err)
			}
		}
		for _, w := range winners {
			intent := &model.GrantIntent{
				ID:        uuid.NewString(),
				Account:   w.Address,
				Role:      model.RolePoliticalActor,
				Credit:    w.Credit,
				Reason:    fmt.Sprintf("election round %d", round),
				Status:    model.GrantPending,
				CreatedAt: s.now,
			}
			if err := s.repo.CreateGrantIntent(ctx, intent); err != nil {
				return internal(op, err)
			}
			s.grants++
		}
		if err := s.repo.ClearElection(ctx); err != nil {
			return internal(op, err)
		}

		cycle.ElectionsStart = time.Time{}
		cycle.ElectionsEnd = time.Time{}
		cycle.Round = round
		if err := s.repo.SaveElectionCycle(ctx, cycle); err != nil {
			return internal(op, err)
		}
		s.emit(model.TopicElections, model.EventElectionsClosed, "", map[string]interface{}{
			"round":   round,
			"winners": winners,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.deps.ReadCache != nil {
		if err := e.deps.ReadCache.Invalidate(ctx, winnersCacheKey(0), winnersCacheKey(round)); err != nil {
			e.deps.Logger.Warn().Err(err).Msg("failed to invalidate winners cache")
		}
	}
	return winners, nil
}

// Summary returns the election calendar and storage counters.
func (e *ElectionEngine) Summary(ctx context.Context) (*model.ElectionSummary, error) {
	const op = "electionSummary"
	cycle, err := e.deps.Repo.GetElectionCycle(ctx)
	if err != nil {
		return nil, internal(op, err)
	}
	pre, err := e.deps.Repo.ListPreElectionCandidates(ctx)
	if err != nil {
		return nil, internal(op, err)
	}
	preVoters, err := e.deps.Repo.CountPreElectionVoters(ctx)
	if err != nil {
		return nil, internal(op, err)
	}
	candidates, err := e.deps.Repo.ListElectionCandidates(ctx)
	if err != nil {
		return nil, internal(op, err)
	}
	voters, err := e.deps.Repo.CountElectionVoters(ctx)
	if err != nil {
		return nil, internal(op, err)
	}

	return &model.ElectionSummary{
		Cycle:                 *cycle,
		Phase:                 cycle.Phase(e.deps.now()),
		PreElectionCandidates: len(pre),
		PreElectionVoters:     preVoters,
		ElectionCandidates:    len(candidates),
		ElectionVoters:        voters,
	}, nil
}

func (e *ElectionEngine) PreElectionCandidates(ctx context.Context) ([]model.PreElectionCandidate, error) {
	list, err := e.deps.Repo.ListPreElectionCandidates(ctx)
	return list, internal("preElectionCandidates", err)
}

// PreElectionCandidate 查询预选候选人得分
func (e *ElectionEngine) PreElectionCandidate(ctx context.Context, address string) (*model.PreElectionCandidate, error) {
	const op = "preElectionCandidate"
	c, err := e.deps.Repo.GetPreElectionCandidate(ctx, address)
	if err != nil {
		return nil, lookupErr(op, err, "%s is not a pre-election candidate", address)
	}
	return c, nil
}

// PreElectionVote returns the voter's picks, empty when the voter has not
// voted.
func (e *ElectionEngine) PreElectionVote(ctx context.Context, voter string) (*model.PreElectionVote, error) {
	v, err := e.deps.Repo.GetPreElectionVote(ctx, voter)
	if err != nil {
		return nil, internal("preElectionVote", err)
	}
	return v, nil
}

func (e *ElectionEngine) ElectionCandidates(ctx context.Context) ([]model.ElectionCandidate, error) {
	list, err := e.deps.Repo.ListElectionCandidates(ctx)
	return list, internal("electionCandidates", err)
}

// ElectionVote 查询选民在正式选举中的投票
func (e *ElectionEngine) ElectionVote(ctx context.Context, voter string) (*model.ElectionVote, error) {
	const op = "electionVote"
	v, err := e.deps.Repo.GetElectionVote(ctx, voter)
	if err != nil {
		return nil, lookupErr(op, err, "%s has not voted", voter)
	}
	return v, nil
}

// Winners returns the winners of round, or of the latest round when round
// is zero. Results are served from the read cache when one is configured.
func (e *ElectionEngine) Winners(ctx context.Context, round uint64) ([]model.Winner, error) {
	const op = "winners"
	if e.deps.ReadCache == nil {
		list, err := e.deps.Repo.ListWinners(ctx, round)
		return list, internal(op, err)
	}

	var winners []model.Winner
	err := e.deps.ReadCache.GetWithCache(ctx, winnersCacheKey(round), winnersCacheTTL, &winners, func() (interface{}, error) {
		return e.deps.Repo.ListWinners(ctx, round)
	})
	if err != nil {
		return nil, internal(op, err)
	}
	return winners, nil
}
