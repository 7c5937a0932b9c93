package model

// ScheduleElectionsRequest 安排下一轮选举
type ScheduleElectionsRequest struct {
	PreElectionsStart int64 `json:"pre_elections_start" binding:"required"`
	PreElectionsEnd   int64 `json:"pre_elections_end" binding:"required"`
	ElectionsStart    int64 `json:"elections_start" binding:"required"`
	ElectionsEnd      int64 `json:"elections_end" binding:"required"`
}

// CandidateRequest 注册预选候选人
type CandidateRequest struct {
	Address string `json:"address" binding:"required"`
}

// BallotRequest 投票给候选人（预选或正式选举）
type BallotRequest struct {
	Candidate string `json:"candidate" binding:"required"`
}

// AnchorRequest 设置第一个投票周期的开始时间（unix 秒）
type AnchorRequest struct {
	FirstCycleStart int64 `json:"first_cycle_start" binding:"required"`
}

// ScheduleVotingRequest 创建新提案
type ScheduleVotingRequest struct {
	ContentHash string `json:"content_hash" binding:"required"`
	StartDate   int64  `json:"start_date" binding:"required"`
	Budget      uint64 `json:"budget"`
}

// PublishArticleRequest 发布正反方评论
type PublishArticleRequest struct {
	ContentHash string `json:"content_hash" binding:"required"`
	IsProSide   bool   `json:"is_pro_side"`
}

// PublishResponseRequest 提案创建者的回应
type PublishResponseRequest struct {
	ContentHash string `json:"content_hash" binding:"required"`
}

// QuizRequest assigns a quiz hash to a gated item.
type QuizRequest struct {
	Kind       ContentKind `json:"kind"`
	VotingKey  string      `json:"voting_key" binding:"required"`
	ArticleKey string      `json:"article_key"`
	QuizHash   string      `json:"quiz_hash" binding:"required"`
}

// AnswerRequest commits one hashed answer to a gated item.
type AnswerRequest struct {
	Kind       ContentKind `json:"kind"`
	VotingKey  string      `json:"voting_key" binding:"required"`
	ArticleKey string      `json:"article_key"`
	AnswerHash string      `json:"answer_hash" binding:"required"`
}

// ReadProofRequest 提交内容阅读测验答案
type ReadProofRequest struct {
	Kind       ContentKind `json:"kind"`
	VotingKey  string      `json:"voting_key" binding:"required"`
	ArticleKey string      `json:"article_key"`
	Answers    []string    `json:"answers" binding:"required,min=1"`
}

// Target returns the gated item the request addresses.
func (r ReadProofRequest) Target() ContentTarget {
	return ContentTarget{Kind: r.Kind, VotingKey: r.VotingKey, ArticleKey: r.ArticleKey}
}

// Target returns the gated item the request addresses.
func (r QuizRequest) Target() ContentTarget {
	return ContentTarget{Kind: r.Kind, VotingKey: r.VotingKey, ArticleKey: r.ArticleKey}
}

// Target returns the gated item the request addresses.
func (r AnswerRequest) Target() ContentTarget {
	return ContentTarget{Kind: r.Kind, VotingKey: r.VotingKey, ArticleKey: r.ArticleKey}
}

// RoleGrantRequest 管理员直接授予角色
type RoleGrantRequest struct {
	Account string `json:"account" binding:"required"`
	Role    Role   `json:"role" binding:"required"`
	Credit  uint64 `json:"credit"`
}
