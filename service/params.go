package service

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

const day = 24 * time.Hour

// ThresholdBase 预选晋级门槛的分母
type ThresholdBase string

const (
	// ThresholdVoters divides by the distinct pre-election voters.
	ThresholdVoters ThresholdBase = "voters"
	// ThresholdCitizens divides by the registry's citizen population.
	ThresholdCitizens ThresholdBase = "citizens"
)

// Params holds the timing and credit constants of both engines.
type Params struct {
	PreElectionLead        time.Duration
	CloseGrace             time.Duration
	PreElectionCredits     int
	ThresholdPercent       uint64
	ThresholdBase          ThresholdBase
	CycleInterval          time.Duration
	MinScheduleLead        time.Duration
	MaxScheduleLead        time.Duration
	CycleBlackout          time.Duration
	DefaultScheduleCredits uint64
	ArticleCredits         uint64
	ApprovalWindow         time.Duration
	MinAnswers             int
	ChallengeSize          int
}

// DefaultParams returns the production constants.
func DefaultParams() Params {
	return Params{
		PreElectionLead:        30 * day,
		CloseGrace:             7 * day,
		PreElectionCredits:     3,
		ThresholdPercent:       20,
		ThresholdBase:          ThresholdVoters,
		CycleInterval:          30 * day,
		MinScheduleLead:        10 * day,
		MaxScheduleLead:        30 * day,
		CycleBlackout:          10 * day,
		DefaultScheduleCredits: 2,
		ArticleCredits:         1,
		ApprovalWindow:         3 * day,
		MinAnswers:             10,
		ChallengeSize:          5,
	}
}

// Validate reports every inconsistent field at once.
func (p Params) Validate() error {
	var result *multierror.Error
	if p.PreElectionCredits <= 0 {
		result = multierror.Append(result, fmt.Errorf("pre-election credits must be positive"))
	}
	if p.ThresholdPercent > 100 {
		result = multierror.Append(result, fmt.Errorf("threshold percent %d exceeds 100", p.ThresholdPercent))
	}
	if p.ThresholdBase != ThresholdVoters && p.ThresholdBase != ThresholdCitizens {
		result = multierror.Append(result, fmt.Errorf("unknown threshold base %q", p.ThresholdBase))
	}
	if p.CycleInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("cycle interval must be positive"))
	}
	if p.MinScheduleLead > p.MaxScheduleLead {
		result = multierror.Append(result, fmt.Errorf("min schedule lead %s exceeds max %s", p.MinScheduleLead, p.MaxScheduleLead))
	}
	if p.CycleBlackout >= p.CycleInterval {
		result = multierror.Append(result, fmt.Errorf("cycle blackout %s must be shorter than the cycle", p.CycleBlackout))
	}
	if p.ChallengeSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("challenge size must be positive"))
	}
	if p.MinAnswers < p.ChallengeSize {
		result = multierror.Append(result, fmt.Errorf("min answers %d below challenge size %d", p.MinAnswers, p.ChallengeSize))
	}
	return result.ErrorOrNil()
}

// WinnerCredit apportions the per-cycle scheduling credit from a vote share:
// max(1, floor((share-10)/10)+1).
func WinnerCredit(sharePercent uint64) uint64 {
	if sharePercent <= 10 {
		return 1
	}
	return (sharePercent-10)/10 + 1
}

// passesThreshold is the strict promotion test score*100 > pct*base.
func passesThreshold(score, base, percent uint64) bool {
	return score*100 > percent*base
}
