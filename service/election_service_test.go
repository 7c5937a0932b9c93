package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civic-governance-backend/model"
)

// electionDates returns a calendar that opens just after the scheduling lead.
func electionDates() (preStart, preEnd, elStart, elEnd time.Time) {
	preStart = t0.Add(31 * day)
	preEnd = preStart.Add(10 * day)
	elStart = preEnd.Add(7 * day)
	elEnd = elStart.Add(10 * day)
	return
}

func scheduleElections(t *testing.T, env *testEnv) {
	t.Helper()
	preStart, preEnd, elStart, elEnd := electionDates()
	require.NoError(t, env.elections.ScheduleNextElections(context.Background(), "admin", preStart, preEnd, elStart, elEnd))
}

func TestWinnerCredit(t *testing.T) {
	cases := map[uint64]uint64{
		0:   1,
		10:  1,
		12:  1,
		20:  2,
		39:  3,
		49:  4,
		50:  5,
		100: 10,
	}
	for share, want := range cases {
		assert.Equal(t, want, WinnerCredit(share), "share %d", share)
	}
}

func TestScheduleNextElectionsValidation(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	preStart, preEnd, elStart, elEnd := electionDates()

	err := env.elections.ScheduleNextElections(ctx, "mallory", preStart, preEnd, elStart, elEnd)
	requireCode(t, err, ErrorCodePermissionDenied)

	err = env.elections.ScheduleNextElections(ctx, "admin", t0.Add(29*day), preEnd, elStart, elEnd)
	requireCode(t, err, ErrorCodePhaseViolation)

	err = env.elections.ScheduleNextElections(ctx, "admin", preStart, preStart, elStart, elEnd)
	requireCode(t, err, ErrorCodeInvalidInput)

	err = env.elections.ScheduleNextElections(ctx, "admin", preStart, elStart.Add(time.Hour), elStart, elEnd)
	requireCode(t, err, ErrorCodeInvalidInput)

	require.NoError(t, env.elections.ScheduleNextElections(ctx, "admin", preStart, preEnd, elStart, elEnd))

	err = env.elections.ScheduleNextElections(ctx, "admin", preStart, preEnd, elStart, elEnd)
	requireCode(t, err, ErrorCodePhaseViolation)

	summary, err := env.elections.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PhasePreScheduled, summary.Phase)
	assert.Equal(t, preStart, summary.Cycle.PreElectionsStart)
	assert.Equal(t, []string{model.EventElectionsScheduled}, env.events.types())
}

func TestRegisterPreElectionCandidate(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	err := env.elections.RegisterPreElectionCandidate(ctx, "admin", "alice")
	requireCode(t, err, ErrorCodePhaseViolation)

	scheduleElections(t, env)

	requireCode(t, env.elections.RegisterPreElectionCandidate(ctx, "alice", "alice"), ErrorCodePermissionDenied)
	requireCode(t, env.elections.RegisterPreElectionCandidate(ctx, "admin", ""), ErrorCodeInvalidInput)

	require.NoError(t, env.elections.RegisterPreElectionCandidate(ctx, "admin", "alice"))
	requireCode(t, env.elections.RegisterPreElectionCandidate(ctx, "admin", "alice"), ErrorCodeDuplicateAction)

	c, err := env.elections.PreElectionCandidate(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.Score)

	preStart, _, _, _ := electionDates()
	env.clock.Set(preStart)
	requireCode(t, env.elections.RegisterPreElectionCandidate(ctx, "admin", "bob"), ErrorCodePhaseViolation)

	_, err = env.elections.PreElectionCandidate(ctx, "bob")
	requireCode(t, err, ErrorCodeNotFound)
}

func TestVoteOnPreElectionsRules(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	scheduleElections(t, env)
	for _, c := range []string{"a", "b", "c", "d"} {
		require.NoError(t, env.elections.RegisterPreElectionCandidate(ctx, "admin", c))
	}
	env.auth.addCitizens("voter", "a")

	requireCode(t, env.elections.VoteOnPreElections(ctx, "voter", "a"), ErrorCodePhaseViolation)

	preStart, preEnd, _, _ := electionDates()
	env.clock.Set(preStart)

	requireCode(t, env.elections.VoteOnPreElections(ctx, "stranger", "a"), ErrorCodePermissionDenied)
	requireCode(t, env.elections.VoteOnPreElections(ctx, "a", "a"), ErrorCodeSelfReference)
	requireCode(t, env.elections.VoteOnPreElections(ctx, "voter", "zed"), ErrorCodeNotFound)

	require.NoError(t, env.elections.VoteOnPreElections(ctx, "voter", "a"))
	requireCode(t, env.elections.VoteOnPreElections(ctx, "voter", "a"), ErrorCodeDuplicateAction)
	require.NoError(t, env.elections.VoteOnPreElections(ctx, "voter", "b"))
	require.NoError(t, env.elections.VoteOnPreElections(ctx, "voter", "c"))
	requireCode(t, env.elections.VoteOnPreElections(ctx, "voter", "d"), ErrorCodeCreditExhausted)

	vote, err := env.elections.PreElectionVote(ctx, "voter")
	require.NoError(t, err)
	assert.Equal(t, 3, vote.VoteCount())

	d, err := env.elections.PreElectionCandidate(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), d.Score)

	env.clock.Set(preEnd)
	requireCode(t, env.elections.VoteOnPreElections(ctx, "a", "d"), ErrorCodePhaseViolation)
}

func TestFullElectionCycle(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	scheduleElections(t, env)
	preStart, preEnd, elStart, elEnd := electionDates()

	for _, c := range []string{"a", "b", "c"} {
		require.NoError(t, env.elections.RegisterPreElectionCandidate(ctx, "admin", c))
	}
	voters := make([]string, 10)
	for i := range voters {
		voters[i] = fmt.Sprintf("v%d", i)
	}
	env.auth.addCitizens(voters...)
	env.auth.addCitizens("b")

	env.clock.Set(preStart.Add(time.Hour))
	for i, v := range voters {
		require.NoError(t, env.elections.VoteOnPreElections(ctx, v, "b"))
		if i < 7 {
			require.NoError(t, env.elections.VoteOnPreElections(ctx, v, "a"))
		}
		if i == 7 {
			require.NoError(t, env.elections.VoteOnPreElections(ctx, v, "c"))
		}
	}

	scores := map[string]uint64{}
	list, err := env.elections.PreElectionCandidates(ctx)
	require.NoError(t, err)
	for _, c := range list {
		scores[c.Address] = c.Score
	}
	assert.Equal(t, map[string]uint64{"a": 8, "b": 11, "c": 2}, scores)

	// 宽限期内不能关闭
	env.clock.Set(preEnd.Add(6 * day))
	_, err = env.elections.ClosePreElections(ctx, "admin")
	requireCode(t, err, ErrorCodePhaseViolation)

	// 正式选举在预选关闭前不能投票
	requireCode(t, env.elections.VoteOnElections(ctx, "v0", "a"), ErrorCodePhaseViolation)

	env.clock.Set(preEnd.Add(7 * day))
	promoted, err := env.elections.ClosePreElections(ctx, "admin")
	require.NoError(t, err)
	require.Len(t, promoted, 2)
	assert.Equal(t, "a", promoted[0].Address)
	assert.Equal(t, "b", promoted[1].Address)

	summary, err := env.elections.Summary(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.PreElectionCandidates)
	assert.Zero(t, summary.PreElectionVoters)
	assert.True(t, summary.Cycle.PreElectionsStart.IsZero())
	assert.Equal(t, 2, summary.ElectionCandidates)
	assert.Equal(t, model.PhaseElectionOpen, summary.Phase)

	env.clock.Set(elStart)
	requireCode(t, env.elections.VoteOnElections(ctx, "b", "b"), ErrorCodeSelfReference)
	requireCode(t, env.elections.VoteOnElections(ctx, "v0", "c"), ErrorCodeNotFound)
	for i, v := range voters[:9] {
		candidate := "b"
		if i >= 6 {
			candidate = "a"
		}
		require.NoError(t, env.elections.VoteOnElections(ctx, v, candidate))
	}
	requireCode(t, env.elections.VoteOnElections(ctx, "v0", "a"), ErrorCodeDuplicateAction)

	vote, err := env.elections.ElectionVote(ctx, "v0")
	require.NoError(t, err)
	assert.Equal(t, "b", vote.Candidate)

	env.clock.Set(elEnd)
	requireCode(t, env.elections.VoteOnElections(ctx, "v9", "a"), ErrorCodePhaseViolation)
	_, err = env.elections.CloseElections(ctx, "admin")
	requireCode(t, err, ErrorCodePhaseViolation)

	env.clock.Set(elEnd.Add(7 * day))
	_, err = env.elections.CloseElections(ctx, "v0")
	requireCode(t, err, ErrorCodePermissionDenied)

	winners, err := env.elections.CloseElections(ctx, "admin")
	require.NoError(t, err)
	require.Len(t, winners, 2)
	byAddr := map[string]model.Winner{}
	for _, w := range winners {
		byAddr[w.Address] = w
	}
	assert.Equal(t, uint64(33), byAddr["a"].SharePercent)
	assert.Equal(t, uint64(3), byAddr["a"].Credit)
	assert.Equal(t, uint64(66), byAddr["b"].SharePercent)
	assert.Equal(t, uint64(6), byAddr["b"].Credit)
	assert.Equal(t, uint64(1), byAddr["b"].Round)

	pending, err := env.votings.PendingGrants(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)
	assert.Equal(t, 1, env.notifier.count())

	_, err = env.elections.CloseElections(ctx, "admin")
	requireCode(t, err, ErrorCodePhaseViolation)

	stored, err := env.elections.Winners(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	summary, err = env.elections.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseIdle, summary.Phase)
	assert.Equal(t, uint64(1), summary.Cycle.Round)
	assert.Zero(t, summary.ElectionCandidates)
	assert.Zero(t, summary.ElectionVoters)

	// 新一轮可以重新安排
	env.clock.Set(elEnd.Add(8 * day))
	next := env.clock.Now().Add(31 * day)
	require.NoError(t, env.elections.ScheduleNextElections(ctx, "admin", next, next.Add(day), next.Add(2*day), next.Add(3*day)))
}

func TestClosePreElectionsWithoutVotersPromotesAll(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	scheduleElections(t, env)
	require.NoError(t, env.elections.RegisterPreElectionCandidate(ctx, "admin", "a"))
	require.NoError(t, env.elections.RegisterPreElectionCandidate(ctx, "admin", "b"))

	_, preEnd, _, _ := electionDates()
	env.clock.Set(preEnd.Add(7 * day))
	promoted, err := env.elections.ClosePreElections(ctx, "admin")
	require.NoError(t, err)
	assert.Len(t, promoted, 2)

	_, err = env.elections.ClosePreElections(ctx, "admin")
	requireCode(t, err, ErrorCodePhaseViolation)
}

func TestClosePreElectionsCitizenDenominator(t *testing.T) {
	env := setupTestEnv(t, func(p *Params) { p.ThresholdBase = ThresholdCitizens })
	ctx := context.Background()
	scheduleElections(t, env)
	require.NoError(t, env.elections.RegisterPreElectionCandidate(ctx, "admin", "a"))
	require.NoError(t, env.elections.RegisterPreElectionCandidate(ctx, "admin", "b"))

	citizens := make([]string, 20)
	for i := range citizens {
		citizens[i] = fmt.Sprintf("c%d", i)
	}
	env.auth.addCitizens(citizens...)

	preStart, preEnd, _, _ := electionDates()
	env.clock.Set(preStart)
	// a: 1 + 4 = 5 -> 500 > 400 passes; b: 1 + 3 = 4 -> 400 is not above 400
	for _, v := range citizens[:4] {
		require.NoError(t, env.elections.VoteOnPreElections(ctx, v, "a"))
	}
	for _, v := range citizens[4:7] {
		require.NoError(t, env.elections.VoteOnPreElections(ctx, v, "b"))
	}

	env.clock.Set(preEnd.Add(7 * day))
	promoted, err := env.elections.ClosePreElections(ctx, "admin")
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.Equal(t, "a", promoted[0].Address)
}

func TestFailedOperationPublishesNothing(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	scheduleElections(t, env)
	before := len(env.events.types())

	requireCode(t, env.elections.RegisterPreElectionCandidate(ctx, "admin", ""), ErrorCodeInvalidInput)
	env.clock.Set(t0.Add(40 * day))
	requireCode(t, env.elections.RegisterPreElectionCandidate(ctx, "admin", "late"), ErrorCodePhaseViolation)

	assert.Len(t, env.events.types(), before)
}
