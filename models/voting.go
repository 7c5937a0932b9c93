package models

import "time"

// VotingCalendar 投票周期锚点单例行，ID 恒为 1
type VotingCalendar struct {
	ID              uint   `gorm:"primaryKey"`
	FirstCycleStart int64  `gorm:"not null;default:0"`
	Nonce           uint64 `gorm:"not null;default:0"`
	UpdatedAt       time.Time
}

// CycleCredit counts the votings an actor scheduled within one cycle.
type CycleCredit struct {
	CycleIndex uint64 `gorm:"primaryKey;autoIncrement:false"`
	Actor      string `gorm:"primaryKey;size:128"`
	Used       uint64 `gorm:"not null;default:0"`
}

// CycleIndex marks a cycle in which at least one voting was scheduled.
type CycleIndex struct {
	Index uint64 `gorm:"primaryKey;autoIncrement:false;column:cycle_index"`
}

// TableName pins the table so the reserved word never reaches the dialect.
func (CycleIndex) TableName() string {
	return "voting_cycle_indexes"
}

// Voting 提案行
type Voting struct {
	Key         string `gorm:"primaryKey;size:80;column:voting_key"`
	Creator     string `gorm:"size:128;not null;index"`
	ContentHash string `gorm:"size:256;not null"`
	StartDate   int64  `gorm:"not null;index"`
	Budget      uint64 `gorm:"not null;default:0"`
	CycleIndex  uint64 `gorm:"not null"`
	Cancelled   bool   `gorm:"not null;default:false"`
	Approved    bool   `gorm:"not null;default:false"`
	QuizHash    string `gorm:"size:256"`
	CreatedAt   time.Time
}

// Article 评论行，回应字段内联存储（每篇评论至多一个回应）
type Article struct {
	Key              string `gorm:"primaryKey;size:80;column:article_key"`
	VotingKey        string `gorm:"size:80;not null;index"`
	Author           string `gorm:"size:128;not null"`
	ContentHash      string `gorm:"size:256;not null"`
	IsProSide        bool   `gorm:"not null"`
	Approved         bool   `gorm:"not null;default:false"`
	QuizHash         string `gorm:"size:256"`
	HasResponse      bool   `gorm:"not null;default:false"`
	ResponseAuthor   string `gorm:"size:128"`
	ResponseHash     string `gorm:"size:256"`
	ResponseApproved bool   `gorm:"not null;default:false"`
	ResponseQuizHash string `gorm:"size:256"`
	CreatedAt        time.Time
}

// ContentAnswer is one committed answer hash; Position keeps commit order.
type ContentAnswer struct {
	ID         uint   `gorm:"primaryKey"`
	Kind       uint8  `gorm:"not null;uniqueIndex:idx_answer_slot"`
	VotingKey  string `gorm:"size:80;not null;uniqueIndex:idx_answer_slot"`
	ArticleKey string `gorm:"size:80;not null;default:'';uniqueIndex:idx_answer_slot"`
	Position   int    `gorm:"not null;uniqueIndex:idx_answer_slot"`
	Hash       string `gorm:"size:256;not null"`
}

// PublishCredit counts articles an actor published under one voting.
type PublishCredit struct {
	Actor     string `gorm:"primaryKey;size:128"`
	VotingKey string `gorm:"primaryKey;size:80"`
	Used      uint64 `gorm:"not null;default:0"`
}

// QuizCompletion 账户通过内容阅读测验的记录
type QuizCompletion struct {
	Kind        uint8  `gorm:"primaryKey;autoIncrement:false"`
	VotingKey   string `gorm:"primaryKey;size:80"`
	ArticleKey  string `gorm:"primaryKey;size:80"`
	Account     string `gorm:"primaryKey;size:128"`
	CompletedAt int64  `gorm:"not null"`
}
