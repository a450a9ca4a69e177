package model

// Status is the lifecycle state of a submission. Pending, Compiling and
// Judging are transient; everything else is terminal.
type Status int

const (
	StatusPending Status = iota
	StatusCompiling
	StatusJudging
	StatusAccepted
	StatusPartialAccepted
	StatusWrongAnswer
	StatusTimeExceeded
	StatusMemoryExceeded
	StatusRuntimeError
	StatusCompileError
	StatusSystemError
	StatusSubmittedFailed
)

var statusNames = map[Status]string{
	StatusPending:         "Pending",
	StatusCompiling:       "Compiling",
	StatusJudging:         "Judging",
	StatusAccepted:        "Accepted",
	StatusPartialAccepted: "Partial Accepted",
	StatusWrongAnswer:     "Wrong Answer",
	StatusTimeExceeded:    "Time Limit Exceeded",
	StatusMemoryExceeded:  "Memory Limit Exceeded",
	StatusRuntimeError:    "Runtime Error",
	StatusCompileError:    "Compile Error",
	StatusSystemError:     "System Error",
	StatusSubmittedFailed: "Submitted Failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Terminal reports whether the status ends the judging lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusPending, StatusCompiling, StatusJudging:
		return false
	}
	return true
}

// JudgeMode selects how a test case verdict is produced.
type JudgeMode string

const (
	ModeDefault      JudgeMode = "default"
	ModeSpecialJudge JudgeMode = "spj"
	ModeInteractive  JudgeMode = "interactive"
)

// ParseJudgeMode validates a raw judge mode string.
func ParseJudgeMode(raw string) (JudgeMode, bool) {
	switch JudgeMode(raw) {
	case ModeDefault, ModeSpecialJudge, ModeInteractive:
		return JudgeMode(raw), true
	}
	return "", false
}
