// Package sandbox talks to the external sandbox service that actually runs
// untrusted programs. The judge never executes user code itself; it builds
// command specs, posts them to the sandbox and interprets the results.
package sandbox

import "context"

// Runner is the capability the rest of the judge programs against. The HTTP
// client implements it against a real sandbox; tests substitute fakes.
type Runner interface {
	// Run executes one request, which may carry several commands when they
	// must run together (interactive judging pipes two commands).
	Run(ctx context.Context, req *Request) ([]Result, error)

	// DeleteFile removes a cached artifact from the sandbox. Artifacts are
	// leaked if the owner forgets this, so every successful compile pairs
	// with a deferred DeleteFile.
	DeleteFile(ctx context.Context, fileID string) error
}

// CmdFile is one input or output slot of a command. Exactly one field set.
type CmdFile struct {
	Src     *string `json:"src,omitempty"`
	Content *string `json:"content,omitempty"`
	FileID  *string `json:"fileId,omitempty"`
	Name    *string `json:"name,omitempty"`
	Max     *int64  `json:"max,omitempty"`
}

// Cmd describes one process to run inside the sandbox. A nil entry in Files
// leaves that fd to the request's pipe mapping.
type Cmd struct {
	Args  []string   `json:"args"`
	Env   []string   `json:"env,omitempty"`
	Files []*CmdFile `json:"files,omitempty"`

	CPULimit    uint64 `json:"cpuLimit"`    // ns
	ClockLimit  uint64 `json:"clockLimit"`  // ns
	MemoryLimit uint64 `json:"memoryLimit"` // bytes
	StackLimit  uint64 `json:"stackLimit,omitempty"`
	ProcLimit   uint64 `json:"procLimit"`

	CopyIn map[string]CmdFile `json:"copyIn,omitempty"`

	CopyOut       []string `json:"copyOut,omitempty"`
	CopyOutCached []string `json:"copyOutCached,omitempty"`
	CopyOutMax    uint64   `json:"copyOutMax,omitempty"`
}

// PipeIndex addresses one fd of one command in a request.
type PipeIndex struct {
	Index int `json:"index"`
	Fd    int `json:"fd"`
}

// PipeMap connects an output fd of one command to an input fd of another.
type PipeMap struct {
	In    PipeIndex `json:"in"`
	Out   PipeIndex `json:"out"`
	Max   int64     `json:"max,omitempty"`
	Name  string    `json:"name,omitempty"`
	Proxy bool      `json:"proxy,omitempty"`
}

// Request is the body of POST /run.
type Request struct {
	RequestID   string    `json:"requestId,omitempty"`
	Cmd         []Cmd     `json:"cmd"`
	PipeMapping []PipeMap `json:"pipeMapping,omitempty"`
}

// RunStatus is the sandbox's own classification of one command run.
type RunStatus string

const (
	StatusAccepted          RunStatus = "Accepted"
	StatusMemoryLimit       RunStatus = "Memory Limit Exceeded"
	StatusTimeLimit         RunStatus = "Time Limit Exceeded"
	StatusOutputLimit       RunStatus = "Output Limit Exceeded"
	StatusFileError         RunStatus = "File Error"
	StatusNonzeroExitStatus RunStatus = "Nonzero Exit Status"
	StatusSignalled         RunStatus = "Signalled"
	StatusInternalError     RunStatus = "Internal Error"
)

// Result is the sandbox's report for one command.
type Result struct {
	Status     RunStatus         `json:"status"`
	ExitStatus int               `json:"exitStatus"`
	Error      string            `json:"error,omitempty"`
	Time       uint64            `json:"time"`    // ns
	Memory     uint64            `json:"memory"`  // bytes
	RunTime    uint64            `json:"runTime"` // ns
	Files      map[string]string `json:"files,omitempty"`
	FileIDs    map[string]string `json:"fileIds,omitempty"`
}

// TimeMs returns the consumed cpu time in milliseconds.
func (r *Result) TimeMs() int64 {
	return int64(r.Time / 1e6)
}

// MemoryKB returns the peak memory in kilobytes.
func (r *Result) MemoryKB() int64 {
	return int64(r.Memory / 1024)
}

// StrPtr is a convenience for building CmdFile literals.
func StrPtr(s string) *string { return &s }

// Int64Ptr is a convenience for building CmdFile literals.
func Int64Ptr(v int64) *int64 { return &v }
