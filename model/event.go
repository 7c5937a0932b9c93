package model

import (
	"encoding/json"
	"time"
)

// 事件主题
const (
	TopicElections = "elections"
	TopicVotings   = "votings"
)

// 事件类型
const (
	EventElectionsScheduled  = "elections.scheduled"
	EventCandidateRegistered = "elections.candidate_registered"
	EventPreElectionVoteCast = "elections.pre_vote_cast"
	EventPreElectionsClosed  = "elections.pre_closed"
	EventElectionVoteCast    = "elections.vote_cast"
	EventElectionsClosed     = "elections.closed"
	EventCycleAnchored       = "votings.cycle_anchored"
	EventVotingScheduled     = "votings.scheduled"
	EventVotingCancelled     = "votings.cancelled"
	EventQuizAssigned        = "votings.quiz_assigned"
	EventAnswerAdded         = "votings.answer_added"
	EventReadQuizCompleted   = "votings.read_quiz_completed"
	EventArticlePublished    = "votings.article_published"
	EventResponsePublished   = "votings.response_published"
	EventArticleApproved     = "votings.article_approved"
	EventResponseApproved    = "votings.response_approved"
	EventVotingApproved      = "votings.approved"
)

// Event is a committed ledger change pushed to live subscribers.
type Event struct {
	Topic   string      `json:"topic"`
	Type    string      `json:"type"`
	Key     string      `json:"key,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	At      time.Time   `json:"at"`
}

// ToJSON 将事件转换为JSON字节数组
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
