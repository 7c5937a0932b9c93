package model

import "time"

// ContentKind selects which gated item a quiz operation targets.
type ContentKind uint8

const (
	ContentVoting   ContentKind = 0
	ContentArticle  ContentKind = 1
	ContentResponse ContentKind = 2
)

func (k ContentKind) String() string {
	switch k {
	case ContentVoting:
		return "voting"
	case ContentArticle:
		return "article"
	case ContentResponse:
		return "response"
	default:
		return "unknown"
	}
}

// ParseContentKind accepts the kind name or its numeric value. An empty string
// selects the Voting itself.
func ParseContentKind(s string) (ContentKind, bool) {
	switch s {
	case "", "voting", "0":
		return ContentVoting, true
	case "article", "1":
		return ContentArticle, true
	case "response", "2":
		return ContentResponse, true
	}
	return 0, false
}

// Valid reports whether k is one of the three gated kinds.
func (k ContentKind) Valid() bool {
	return k <= ContentResponse
}

// ContentTarget addresses a Voting, an Article or an Article's Response.
type ContentTarget struct {
	Kind       ContentKind `json:"kind"`
	VotingKey  string      `json:"voting_key"`
	ArticleKey string      `json:"article_key,omitempty"`
}

// ContentKey is the identifier challenge indexes are derived from. A Response
// shares its Article's key under a distinct prefix so both get independent
// challenges.
func (t ContentTarget) ContentKey() string {
	switch t.Kind {
	case ContentArticle:
		return t.ArticleKey
	case ContentResponse:
		return "response:" + t.ArticleKey
	default:
		return t.VotingKey
	}
}

// ReadGate 内容阅读门槛：测验哈希与按顺序提交的答案哈希
type ReadGate struct {
	QuizHash string   `json:"quiz_hash"`
	Answers  []string `json:"answers"`
}

// HasQuiz reports whether an administrator assigned a quiz.
func (g ReadGate) HasQuiz() bool {
	return g.QuizHash != ""
}

// Voting 提案
type Voting struct {
	Key         string    `json:"key"`
	Creator     string    `json:"creator"`
	ContentHash string    `json:"content_hash"`
	StartDate   time.Time `json:"start_date"`
	Budget      uint64    `json:"budget"`
	CycleIndex  uint64    `json:"cycle_index"`
	Cancelled   bool      `json:"cancelled"`
	Approved    bool      `json:"approved"`
	Gate        ReadGate  `json:"gate"`
	CreatedAt   time.Time `json:"created_at"`
}

// Final reports whether the voting no longer accepts mutations.
func (v Voting) Final() bool {
	return v.Cancelled || v.Approved
}

// Response is the Voting creator's rebuttal to one Article.
type Response struct {
	Author      string   `json:"author"`
	ContentHash string   `json:"content_hash"`
	Approved    bool     `json:"approved"`
	Gate        ReadGate `json:"gate"`
}

// Article 针对提案的正反方评论
type Article struct {
	VotingKey   string    `json:"voting_key"`
	Key         string    `json:"key"`
	Author      string    `json:"author"`
	ContentHash string    `json:"content_hash"`
	IsProSide   bool      `json:"is_pro_side"`
	Approved    bool      `json:"approved"`
	Gate        ReadGate  `json:"gate"`
	Response    *Response `json:"response,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ResponseSettled reports whether the article no longer blocks approval of
// its Voting: an approved critique needs an approved rebuttal, and a submitted
// rebuttal must itself be approved.
func (a Article) ResponseSettled() bool {
	if a.Response != nil {
		return a.Response.Approved
	}
	return !a.Approved
}

// VotingCalendar anchors the voting cycle grid.
type VotingCalendar struct {
	FirstCycleStart time.Time `json:"first_cycle_start"`
	Nonce           uint64    `json:"nonce"`
}

// Anchored reports whether an administrator has set the cycle grid.
func (c VotingCalendar) Anchored() bool {
	return !c.FirstCycleStart.IsZero()
}

// CycleIndex returns floor((now - anchor) / interval). ok is false before the
// anchor is set or reached.
func (c VotingCalendar) CycleIndex(now time.Time, interval time.Duration) (uint64, bool) {
	if !c.Anchored() || now.Before(c.FirstCycleStart) || interval <= 0 {
		return 0, false
	}
	return uint64(now.Sub(c.FirstCycleStart) / interval), true
}

// CycleBounds returns the [start, end) window of cycle idx.
func (c VotingCalendar) CycleBounds(idx uint64, interval time.Duration) (time.Time, time.Time) {
	start := c.FirstCycleStart.Add(time.Duration(idx) * interval)
	return start, start.Add(interval)
}

// CycleOverview is the read model behind the voting cycle accessor.
type CycleOverview struct {
	FirstCycleStart time.Time `json:"first_cycle_start"`
	CurrentIndex    *uint64   `json:"current_index,omitempty"`
	CycleStart      time.Time `json:"cycle_start,omitempty"`
	CycleEnd        time.Time `json:"cycle_end,omitempty"`
	UsedIndexes     []uint64  `json:"used_indexes"`
}

// QuizCompletion records that an account passed a content-read quiz.
type QuizCompletion struct {
	Target      ContentTarget `json:"target"`
	Account     string        `json:"account"`
	CompletedAt time.Time     `json:"completed_at"`
}
