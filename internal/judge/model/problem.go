package model

// ProblemCase describes one test case of a problem. Score is only meaningful
// for point-scored problems; InputName/OutputName are file names inside the
// problem's test-data pack.
type ProblemCase struct {
	CaseID     int64
	InputName  string
	OutputName string
	Score      int
}

// Problem carries the judging-relevant fields of a problem.
type Problem struct {
	ID          int64
	DisplayID   string
	JudgeMode   JudgeMode
	Difficulty  int
	CaseVersion string

	TimeLimitMs   int64
	MemoryLimitMB int64

	SpjCode     string
	SpjLanguage string

	Cases []ProblemCase
}

// TotalPossibleScore sums the per-case full scores.
func (p *Problem) TotalPossibleScore() int {
	total := 0
	for _, c := range p.Cases {
		total += c.Score
	}
	return total
}

// HasAuxProgram reports whether judging this problem needs a compiled
// auxiliary program (special judge or interactor) beside the user program.
func (p *Problem) HasAuxProgram() bool {
	return p.JudgeMode == ModeSpecialJudge || p.JudgeMode == ModeInteractive
}
