// Package run executes a compiled submission against individual test cases
// and classifies each outcome.
package run

import (
	"context"

	"vjudge/internal/judge/compile"
	"vjudge/internal/judge/model"
	"vjudge/internal/judge/sandbox"
	appErr "vjudge/pkg/errors"
)

const (
	runProcLimit  = 64
	userOutputMax = 1024 * 1024
	// clockFactor pads the wall clock limit so a sleeping program is still
	// killed, without charging scheduler noise against the cpu limit.
	clockFactor = 2
)

// CaseSpec is everything needed to judge one test case.
type CaseSpec struct {
	User compile.Program
	Aux  *compile.Program

	TimeLimitMs   int64
	MemoryLimitMB int64

	Case       model.ProblemCase
	InputPath  string
	OutputPath string
}

// Strategy judges one test case in a particular mode.
type Strategy interface {
	Judge(ctx context.Context, runner sandbox.Runner, spec *CaseSpec) (*model.CaseResult, error)
}

// NewStrategy returns the strategy for a judge mode. The switch is closed:
// an unknown mode is a system fault, not a fallback to default judging.
func NewStrategy(mode model.JudgeMode) (Strategy, error) {
	switch mode {
	case model.ModeDefault:
		return &defaultStrategy{}, nil
	case model.ModeSpecialJudge:
		return &spjStrategy{}, nil
	case model.ModeInteractive:
		return &interactiveStrategy{}, nil
	default:
		return nil, appErr.Newf(appErr.JudgeModeUnknown, "judge mode %q", mode)
	}
}

// CaseRunner runs test cases through the strategy for the problem's mode.
type CaseRunner struct {
	runner   sandbox.Runner
	strategy Strategy
}

func NewCaseRunner(runner sandbox.Runner, mode model.JudgeMode) (*CaseRunner, error) {
	strategy, err := NewStrategy(mode)
	if err != nil {
		return nil, err
	}
	return &CaseRunner{runner: runner, strategy: strategy}, nil
}

// RunCase judges one test case. A non-nil error means the run could not be
// carried out at all; wrong answers and limit violations are results, not
// errors.
func (r *CaseRunner) RunCase(ctx context.Context, spec *CaseSpec) (*model.CaseResult, error) {
	result, err := r.strategy.Judge(ctx, r.runner, spec)
	if err != nil {
		return nil, err
	}
	result.CaseID = spec.Case.CaseID
	result.FullScore = spec.Case.Score
	result.InputName = spec.Case.InputName
	result.OutputName = spec.Case.OutputName
	return result, nil
}

// programCopyIn maps a program into the sandbox working directory.
func programCopyIn(p compile.Program) map[string]sandbox.CmdFile {
	switch {
	case p.FileID != "":
		return map[string]sandbox.CmdFile{
			p.Language.ExeName: {FileID: &p.FileID},
		}
	case p.HostPath != "":
		return map[string]sandbox.CmdFile{
			p.Language.ExeName: {Src: &p.HostPath},
		}
	default:
		src := p.Source
		return map[string]sandbox.CmdFile{
			p.Language.SrcName: {Content: &src},
		}
	}
}

// userCmd builds the sandbox command for the user program with stdin wired
// to the case input file.
func userCmd(spec *CaseSpec, stdin *sandbox.CmdFile) sandbox.Cmd {
	return sandbox.Cmd{
		Args: spec.User.Language.RunArgs,
		Env:  spec.User.Language.Env,
		Files: []*sandbox.CmdFile{
			stdin,
			{Name: sandbox.StrPtr("stdout"), Max: sandbox.Int64Ptr(userOutputMax)},
			{Name: sandbox.StrPtr("stderr"), Max: sandbox.Int64Ptr(userOutputMax)},
		},
		CPULimit:    uint64(spec.TimeLimitMs) * 1e6,
		ClockLimit:  uint64(spec.TimeLimitMs) * clockFactor * 1e6,
		MemoryLimit: uint64(spec.MemoryLimitMB) * 1024 * 1024,
		ProcLimit:   runProcLimit,
		CopyIn:      programCopyIn(spec.User),
		CopyOut:     []string{"stdout", "stderr"},
	}
}

// classify maps a sandbox run status onto a verdict. Accepted here only
// means the program ran within limits; output checking happens afterwards.
func classify(res *sandbox.Result) (model.Status, bool) {
	switch res.Status {
	case sandbox.StatusAccepted:
		return model.StatusAccepted, true
	case sandbox.StatusTimeLimit:
		return model.StatusTimeExceeded, false
	case sandbox.StatusMemoryLimit:
		return model.StatusMemoryExceeded, false
	case sandbox.StatusOutputLimit, sandbox.StatusNonzeroExitStatus, sandbox.StatusSignalled:
		return model.StatusRuntimeError, false
	default:
		return model.StatusSystemError, false
	}
}

// failedResult builds the case result for a run that ended before output
// checking.
func failedResult(res *sandbox.Result, status model.Status) *model.CaseResult {
	return &model.CaseResult{
		Status:   status,
		TimeMs:   res.TimeMs(),
		MemoryKB: res.MemoryKB(),
		Output:   capturedOutput(res),
	}
}
