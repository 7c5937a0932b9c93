package model

import "time"

// ElectionPhase 选举周期所处阶段
type ElectionPhase string

const (
	PhaseIdle          ElectionPhase = "idle"
	PhasePreScheduled  ElectionPhase = "pre_scheduled"
	PhasePreOpen       ElectionPhase = "pre_open"
	PhasePreTallying   ElectionPhase = "pre_tallying"
	PhaseElectionWait  ElectionPhase = "election_pending"
	PhaseElectionOpen  ElectionPhase = "election_open"
	PhaseElectionTally ElectionPhase = "election_tallying"
)

// ElectionCycle is the singleton election calendar. All four dates are zero
// while idle.
type ElectionCycle struct {
	PreElectionsStart time.Time `json:"pre_elections_start"`
	PreElectionsEnd   time.Time `json:"pre_elections_end"`
	ElectionsStart    time.Time `json:"elections_start"`
	ElectionsEnd      time.Time `json:"elections_end"`
	Round             uint64    `json:"round"`
}

// IsIdle reports whether the previous cycle is fully closed.
func (c ElectionCycle) IsIdle() bool {
	return c.PreElectionsStart.IsZero() && c.PreElectionsEnd.IsZero() &&
		c.ElectionsStart.IsZero() && c.ElectionsEnd.IsZero()
}

// PreElectionsClosed reports whether the filtering round is over and the
// binding round is still pending.
func (c ElectionCycle) PreElectionsClosed() bool {
	return c.PreElectionsStart.IsZero() && c.PreElectionsEnd.IsZero() && !c.ElectionsEnd.IsZero()
}

// Phase derives the state machine position at the given instant.
func (c ElectionCycle) Phase(now time.Time) ElectionPhase {
	switch {
	case c.IsIdle():
		return PhaseIdle
	case !c.PreElectionsStart.IsZero() && now.Before(c.PreElectionsStart):
		return PhasePreScheduled
	case !c.PreElectionsStart.IsZero() && now.Before(c.PreElectionsEnd):
		return PhasePreOpen
	case !c.PreElectionsStart.IsZero():
		return PhasePreTallying
	case now.Before(c.ElectionsStart):
		return PhaseElectionWait
	case now.Before(c.ElectionsEnd):
		return PhaseElectionOpen
	default:
		return PhaseElectionTally
	}
}

// PreElectionCandidate 预选候选人，注册时自带1票
type PreElectionCandidate struct {
	Address string `json:"address"`
	Score   uint64 `json:"score"`
}

// PreElectionVote records the candidates a voter has backed in the filtering
// round, in the order the votes were cast.
type PreElectionVote struct {
	Voter      string   `json:"voter"`
	Candidates []string `json:"candidates"`
}

// VoteCount returns the number of pre-election credits the voter has spent.
func (v PreElectionVote) VoteCount() int {
	return len(v.Candidates)
}

// HasVotedFor reports whether candidate is already among the voter's picks.
func (v PreElectionVote) HasVotedFor(candidate string) bool {
	for _, c := range v.Candidates {
		if c == candidate {
			return true
		}
	}
	return false
}

// ElectionCandidate 正式选举候选人
type ElectionCandidate struct {
	Address  string `json:"address"`
	Position int    `json:"position"`
	Score    uint64 `json:"score"`
}

// ElectionVote 正式选举投票记录，每个选民每轮一票
type ElectionVote struct {
	Voter     string `json:"voter"`
	Candidate string `json:"candidate"`
}

// Winner is an elected political actor and the per-cycle scheduling credit
// apportioned from its vote share.
type Winner struct {
	Round        uint64 `json:"round"`
	Address      string `json:"address"`
	Score        uint64 `json:"score"`
	SharePercent uint64 `json:"share_percent"`
	Credit       uint64 `json:"credit"`
}

// ElectionSummary is the read model behind the cycle accessor.
type ElectionSummary struct {
	Cycle                 ElectionCycle `json:"cycle"`
	Phase                 ElectionPhase `json:"phase"`
	PreElectionCandidates int           `json:"pre_election_candidates"`
	PreElectionVoters     uint64        `json:"pre_election_voters"`
	ElectionCandidates    int           `json:"election_candidates"`
	ElectionVoters        uint64        `json:"election_voters"`
}
