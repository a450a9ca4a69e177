package model

import "time"

// JudgeTask is the dispatch message consumed from the judge topic.
type JudgeTask struct {
	SubmissionID string `json:"submission_id"`
	ProblemID    int64  `json:"problem_id"`
	UserID       int64  `json:"user_id"`
	Language     string `json:"language"`
	SourceCode   string `json:"source_code"`
	IsRemote     bool   `json:"is_remote"`
	RemoteOj     string `json:"remote_oj,omitempty"`
	SubmitTime   int64  `json:"submit_time"`
}

// VerdictEvent is published once a submission reaches a terminal status.
type VerdictEvent struct {
	SubmissionID string    `json:"submission_id"`
	ProblemID    int64     `json:"problem_id"`
	UserID       int64     `json:"user_id"`
	Status       int       `json:"status"`
	Score        int       `json:"score"`
	RankScore    int       `json:"rank_score"`
	TimeMs       int64     `json:"time_ms"`
	MemoryKB     int64     `json:"memory_kb"`
	ErrMsg       string    `json:"err_msg,omitempty"`
	JudgedAt     time.Time `json:"judged_at"`
}
