package models

import "time"

// RoleAssignment 角色登记表，Credit 仅对 POLITICAL_ACTOR 有意义
type RoleAssignment struct {
	Account   string `gorm:"primaryKey;size:128"`
	Role      string `gorm:"primaryKey;size:32"`
	Credit    uint64 `gorm:"not null;default:0"`
	Source    string `gorm:"size:64"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GrantIntent 授权发件箱行，和产生它的账本变更在同一事务内写入
type GrantIntent struct {
	ID         string `gorm:"primaryKey;size:36"`
	Account    string `gorm:"size:128;not null"`
	Role       string `gorm:"size:32;not null"`
	Credit     uint64 `gorm:"not null;default:0"`
	Reason     string `gorm:"size:64"`
	Status     string `gorm:"size:16;not null;index"`
	RetryCount int    `gorm:"not null;default:0"`
	LastError  string `gorm:"type:text"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// All lists every table the service owns, in migration order.
func All() []interface{} {
	return []interface{}{
		&ElectionCycle{},
		&PreElectionCandidate{},
		&PreElectionBallot{},
		&ElectionCandidate{},
		&ElectionBallot{},
		&Winner{},
		&VotingCalendar{},
		&CycleCredit{},
		&CycleIndex{},
		&Voting{},
		&Article{},
		&ContentAnswer{},
		&PublishCredit{},
		&QuizCompletion{},
		&RoleAssignment{},
		&GrantIntent{},
	}
}
