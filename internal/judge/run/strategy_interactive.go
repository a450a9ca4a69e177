package run

import (
	"context"

	"vjudge/internal/judge/model"
	"vjudge/internal/judge/sandbox"
	appErr "vjudge/pkg/errors"
)

// interactiveStrategy runs the user program and the problem's interactor as
// one sandbox request with their stdio cross-connected: the user's stdout
// feeds the interactor's stdin and vice versa. The interactor reads the
// case input and answer from files and its exit code decides the verdict.
// Resource usage is charged from the user program's command.
type interactiveStrategy struct{}

func (s *interactiveStrategy) Judge(ctx context.Context, runner sandbox.Runner, spec *CaseSpec) (*model.CaseResult, error) {
	if spec.Aux == nil {
		return nil, appErr.New(appErr.AuxProgramMissing).WithMessage("interactive judging requires an interactor program")
	}
	aux := *spec.Aux

	// Both stdio ends of the user program come from the pipe mapping; only
	// stderr is a regular captured file.
	user := sandbox.Cmd{
		Args: spec.User.Language.RunArgs,
		Env:  spec.User.Language.Env,
		Files: []*sandbox.CmdFile{
			nil,
			nil,
			{Name: sandbox.StrPtr("stderr"), Max: sandbox.Int64Ptr(userOutputMax)},
		},
		CPULimit:    uint64(spec.TimeLimitMs) * 1e6,
		ClockLimit:  uint64(spec.TimeLimitMs) * clockFactor * 1e6,
		MemoryLimit: uint64(spec.MemoryLimitMB) * 1024 * 1024,
		ProcLimit:   runProcLimit,
		CopyIn:      programCopyIn(spec.User),
		CopyOut:     []string{"stderr"},
	}

	interactorCopyIn := programCopyIn(aux)
	interactorCopyIn["input"] = sandbox.CmdFile{Src: &spec.InputPath}
	interactorCopyIn["answer"] = sandbox.CmdFile{Src: &spec.OutputPath}

	interactor := sandbox.Cmd{
		Args: append(append([]string{}, aux.Language.RunArgs...), "input", "answer"),
		Env:  aux.Language.Env,
		Files: []*sandbox.CmdFile{
			nil,
			nil,
			{Name: sandbox.StrPtr("stderr"), Max: sandbox.Int64Ptr(userOutputMax)},
		},
		CPULimit:    spjTimeLimitMs * 1e6,
		ClockLimit:  uint64(spec.TimeLimitMs)*clockFactor*1e6 + spjTimeLimitMs*1e6,
		MemoryLimit: spjMemoryLimitMB * 1024 * 1024,
		ProcLimit:   runProcLimit,
		CopyIn:      interactorCopyIn,
		CopyOut:     []string{"stderr"},
	}

	req := &sandbox.Request{
		Cmd: []sandbox.Cmd{user, interactor},
		PipeMapping: []sandbox.PipeMap{
			{Out: sandbox.PipeIndex{Index: 0, Fd: 1}, In: sandbox.PipeIndex{Index: 1, Fd: 0}},
			{Out: sandbox.PipeIndex{Index: 1, Fd: 1}, In: sandbox.PipeIndex{Index: 0, Fd: 0}},
		},
	}

	results, err := runner.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	userRes, interRes := results[0], results[1]

	result := &model.CaseResult{
		TimeMs:   userRes.TimeMs(),
		MemoryKB: userRes.MemoryKB(),
		Output:   capturedOutput(&userRes),
	}

	// The user program failing on its own trumps the interactor's verdict.
	if status, ran := classify(&userRes); !ran {
		// When the interactor rejects early the user side often dies on a
		// closed pipe; treat that as the interactor's wrong answer.
		if userRes.Status == sandbox.StatusSignalled && interactorRejected(&interRes) {
			result.Status = model.StatusWrongAnswer
			return result, nil
		}
		result.Status = status
		return result, nil
	}

	switch {
	case interRes.Status == sandbox.StatusAccepted && interRes.ExitStatus == spjExitAccepted:
		result.Status = model.StatusAccepted
		result.Score = spec.Case.Score
		result.Percentage = 1
	case interactorRejected(&interRes):
		result.Status = model.StatusWrongAnswer
	default:
		return nil, appErr.Newf(appErr.SubmitFailed, "interactor crashed: %s %s", interRes.Status, interRes.Error)
	}
	return result, nil
}

func interactorRejected(res *sandbox.Result) bool {
	return res.Status == sandbox.StatusNonzeroExitStatus && res.ExitStatus == spjExitWrong
}
