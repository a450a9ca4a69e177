package model

import "time"

// Submission identifies one judging request. The judge pipeline mutates
// status, judger and the final resource/score fields; everything else is
// immutable for the duration of a run.
type Submission struct {
	SubmissionID string
	ProblemID    int64
	UserID       int64
	Language     string
	SourceCode   string

	Status Status
	Judger string

	TimeMs    int64
	MemoryKB  int64
	Score     int
	RankScore int
	ErrMsg    string

	IsRemote  bool
	RemoteOj  string
	CreatedAt time.Time
}

// JudgeCase is the persisted per-test-case outcome.
type JudgeCase struct {
	SubmissionID string
	ProblemID    int64
	UserID       int64
	CaseID       int64
	Status       Status
	TimeMs       int64
	MemoryKB     int64
	Score        int
	InputData    string
	OutputData   string
	UserOutput   string
}

// CaseResult is the in-memory outcome of running one test case, produced by
// the case runner and consumed by the aggregator.
type CaseResult struct {
	CaseID     int64
	Status     Status
	TimeMs     int64
	MemoryKB   int64
	Score      int
	FullScore  int
	Percentage float64
	Output     string
	InputName  string
	OutputName string
}

// SubmissionOutcome is the aggregated final verdict for a submission.
type SubmissionOutcome struct {
	Status    Status
	TimeMs    int64
	MemoryKB  int64
	Score     int
	RankScore int
	ErrMsg    string
	Cases     []CaseResult
}
