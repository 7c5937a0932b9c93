package models

import "time"

// ElectionCycle 选举周期单例行，ID 恒为 1；日期以 unix 秒存储，0 表示未设置
type ElectionCycle struct {
	ID                uint   `gorm:"primaryKey"`
	PreElectionsStart int64  `gorm:"not null;default:0"`
	PreElectionsEnd   int64  `gorm:"not null;default:0"`
	ElectionsStart    int64  `gorm:"not null;default:0"`
	ElectionsEnd      int64  `gorm:"not null;default:0"`
	Round             uint64 `gorm:"not null;default:0"`
	UpdatedAt         time.Time
}

// PreElectionCandidate 预选候选人及其得分
type PreElectionCandidate struct {
	Address   string `gorm:"primaryKey;size:128"`
	Score     uint64 `gorm:"not null;default:1"`
	CreatedAt time.Time
}

// PreElectionBallot is one credit spent by a voter on a candidate.
type PreElectionBallot struct {
	ID        uint   `gorm:"primaryKey"`
	Voter     string `gorm:"size:128;not null;uniqueIndex:idx_pre_ballot_pair"`
	Candidate string `gorm:"size:128;not null;uniqueIndex:idx_pre_ballot_pair"`
	CreatedAt time.Time
}

// ElectionCandidate 正式选举候选人，Position 保留晋级顺序
type ElectionCandidate struct {
	Address  string `gorm:"primaryKey;size:128"`
	Position int    `gorm:"not null;index"`
	Score    uint64 `gorm:"not null;default:0"`
}

// ElectionBallot 正式选举投票，每个选民一行
type ElectionBallot struct {
	Voter     string `gorm:"primaryKey;size:128"`
	Candidate string `gorm:"size:128;not null;index"`
	CreatedAt time.Time
}

// Winner 历届选举胜出者
type Winner struct {
	ID           uint   `gorm:"primaryKey"`
	Round        uint64 `gorm:"not null;index"`
	Address      string `gorm:"size:128;not null"`
	Score        uint64 `gorm:"not null"`
	SharePercent uint64 `gorm:"not null"`
	Credit       uint64 `gorm:"not null"`
	CreatedAt    time.Time
}
